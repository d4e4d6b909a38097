package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Structs

// Env holds information specific to the host a replica
// runs on. This enables per-host adaptions, e.g. fixed
// replica IDs on machines running several replicas,
// without maintaining multiple config files. Use the
// .env file to populate these values.
type Env struct {
	ReplicaID string
	Port      string
}

// Functions

// LoadEnv looks for an .env file in the working
// directory and reads in all defined values.
func LoadEnv() (*Env, error) {

	// Load environment file.
	err := godotenv.Load(".env")
	if err != nil {
		return nil, fmt.Errorf("failed to read in .env file with: %v", err)
	}

	env := new(Env)

	// Fill variables from .env into struct.
	env.ReplicaID = os.Getenv("DOTLIST_REPLICA_ID")
	env.Port = os.Getenv("DOTLIST_PORT")

	return env, nil
}

// ApplyEnv overrides config values with the ones set in
// the supplied environment, leaving unset ones alone.
func (conf *Config) ApplyEnv(env *Env) error {

	if env.ReplicaID != "" {

		id, err := strconv.Atoi(env.ReplicaID)
		if err != nil || id < 0 || id > 255 {
			return fmt.Errorf("DOTLIST_REPLICA_ID '%s' is not a replica ID in 0..255", env.ReplicaID)
		}

		conf.Replica.ID = id
	}

	if env.Port != "" {

		port, err := strconv.ParseUint(env.Port, 10, 16)
		if err != nil || port == 0 {
			return fmt.Errorf("DOTLIST_PORT '%s' is not a valid port", env.Port)
		}

		conf.Network.Port = uint16(port)
	}

	return nil
}
