package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	uuid "github.com/satori/go.uuid"

	"github.com/numbleroot/dotlist/comm"
	"github.com/numbleroot/dotlist/config"
	"github.com/numbleroot/dotlist/crdt"
	"github.com/numbleroot/dotlist/list"
	"github.com/numbleroot/dotlist/node"
)

// Functions

// initLogger initializes a JSON gokit-logger set
// to the according log level supplied via cli flag.
func initLogger(loglevel string) log.Logger {

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"caller", log.DefaultCaller,
	)

	switch strings.ToLower(loglevel) {
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowDebug())
	}

	return logger
}

// deriveReplicaID returns the configured replica ID or, if
// none was configured, draws one from the first byte of a
// fresh v4 UUID. Two peers drawing the same byte would
// mint colliding dots and corrupt convergence, so a fixed
// ID is the safe choice on networks with many replicas.
func deriveReplicaID(logger log.Logger, configured int) uint8 {

	if configured >= 0 && configured <= 255 {
		return uint8(configured)
	}

	id := uuid.NewV4().Bytes()[0]

	level.Info(logger).Log(
		"msg", "no replica ID configured, drew one at random",
		"replica", id,
	)

	return id
}

// renderItems prints the current projection of the list.
func renderItems(items []list.Item) {

	if len(items) == 0 {
		fmt.Println("(list is empty)")
		return
	}

	for i, it := range items {

		check := " "
		if it.PrimaryDone() {
			check = "x"
		}

		line := fmt.Sprintf("%3d [%s] %s", i, check, strings.Join(it.Text, " | "))
		if it.HasConflict() {
			line = line + "  (conflict)"
		}

		fmt.Println(line)
	}
}

// resolveIndex maps a display index typed by the user onto
// the item key it currently denotes.
func resolveIndex(svc node.Service, arg string) (string, error) {

	idx, err := strconv.Atoi(arg)
	if err != nil {
		return "", fmt.Errorf("'%s' is not an index", arg)
	}

	var key string
	err = svc.View(func(s *crdt.CausalDotStore) {

		items := list.Items(s)
		if idx >= 0 && idx < len(items) {
			key = items[idx].Key
		}
	})
	if err != nil {
		return "", err
	}

	if key == "" {
		return "", fmt.Errorf("no item at index %d", idx)
	}

	return key, nil
}

// commandLoop reads line-oriented commands from stdin and
// drives the replication service until quit or EOF.
func commandLoop(logger log.Logger, svc node.Service, isolated bool) {

	fmt.Println("commands: ls | add <text> | edit <i> <text> | done <i> | rm <i> | mv <i> <j> | seed | iso | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, " ", 3)
		cmd := fields[0]

		var err error

		switch cmd {

		case "ls":
			err = svc.View(func(s *crdt.CausalDotStore) {
				renderItems(list.Items(s))
			})

		case "add":
			if len(fields) < 2 {
				err = fmt.Errorf("usage: add <text>")
				break
			}
			text := strings.TrimSpace(strings.Join(fields[1:], " "))
			err = svc.Update(func(tx *crdt.Transaction) {
				list.Add(tx, text)
			})

		case "edit":
			if len(fields) < 3 {
				err = fmt.Errorf("usage: edit <i> <text>")
				break
			}
			var key string
			key, err = resolveIndex(svc, fields[1])
			if err != nil {
				break
			}
			err = svc.Update(func(tx *crdt.Transaction) {
				list.SetText(tx, key, fields[2])
			})

		case "done":
			if len(fields) != 2 {
				err = fmt.Errorf("usage: done <i>")
				break
			}
			var key string
			key, err = resolveIndex(svc, fields[1])
			if err != nil {
				break
			}
			err = svc.Update(func(tx *crdt.Transaction) {
				list.Toggle(tx, key)
			})

		case "rm":
			if len(fields) != 2 {
				err = fmt.Errorf("usage: rm <i>")
				break
			}
			var key string
			key, err = resolveIndex(svc, fields[1])
			if err != nil {
				break
			}
			err = svc.Update(func(tx *crdt.Transaction) {
				list.Delete(tx, key)
			})

		case "mv":
			if len(fields) != 3 {
				err = fmt.Errorf("usage: mv <i> <j>")
				break
			}
			var key string
			key, err = resolveIndex(svc, fields[1])
			if err != nil {
				break
			}
			var to int
			to, err = strconv.Atoi(strings.TrimSpace(fields[2]))
			if err != nil {
				err = fmt.Errorf("'%s' is not an index", fields[2])
				break
			}
			err = svc.Update(func(tx *crdt.Transaction) {
				list.Move(tx, key, to)
			})

		case "seed":
			err = svc.Update(func(tx *crdt.Transaction) {
				list.Seed(tx)
			})

		case "iso":
			isolated = !isolated
			err = svc.SetIsolated(isolated)
			if err == nil {
				if isolated {
					fmt.Println("detached from network")
				} else {
					fmt.Println("reattached to network")
				}
			}

		case "quit", "exit":
			return

		default:
			err = fmt.Errorf("unknown command '%s'", cmd)
		}

		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		level.Warn(logger).Log("msg", "stdin read failed", "err", err)
	}
}

func main() {

	// Set CPUs usable by dotlist to all available.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Parse command-line flags, values beat the config file.
	configFlag := flag.String("config", "config.toml", "Provide path to configuration file in TOML syntax.")
	loglevelFlag := flag.String("loglevel", "", "Override the log level defined in the config file.")
	replicaFlag := flag.Int("replica", -1, "Override the replica ID defined in the config file (0..255).")
	portFlag := flag.Int("port", 0, "Override the broadcast port defined in the config file.")
	isolatedFlag := flag.Bool("isolated", false, "Start detached from the network.")
	flag.Parse()

	// Read configuration from file.
	conf, err := config.LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load the config: %v\n", err)
		os.Exit(1)
	}

	// A host-local .env file overrides the config, flags
	// override both.
	if env, envErr := config.LoadEnv(); envErr == nil {

		if err := conf.ApplyEnv(env); err != nil {
			fmt.Fprintf(os.Stderr, "failed to apply environment overrides: %v\n", err)
			os.Exit(1)
		}
	}

	if *loglevelFlag != "" {
		conf.LogLevel = *loglevelFlag
	}
	if *replicaFlag >= 0 {
		conf.Replica.ID = *replicaFlag
	}
	if *portFlag > 0 && *portFlag <= 65535 {
		conf.Network.Port = uint16(*portFlag)
	}

	logger := initLogger(conf.LogLevel)

	replica := deriveReplicaID(logger, conf.Replica.ID)

	metrics := NewDotlistMetrics(conf.Metrics.PrometheusAddr)
	go runPromHTTP(logger, conf.Metrics.PrometheusAddr)

	// Bring up the shared broadcast socket. SO_REUSEPORT
	// lets several replicas coexist on one host.
	conn, err := comm.InitSocket(int(conf.Network.Port))
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to initialize broadcast socket",
			"err", err,
		)
		os.Exit(1)
	}

	sender, err := comm.InitSender(
		log.With(logger, "component", "sender"),
		conn,
		conf.Network.BroadcastAddr,
		int(conf.Network.Port),
	)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to initialize sender",
			"err", err,
		)
		os.Exit(1)
	}

	receiver, inbound := comm.InitReceiver(
		log.With(logger, "component", "receiver"),
		conn,
	)

	svc := node.InitService(
		log.With(logger, "component", "node"),
		metrics.Node,
		replica,
		sender,
		inbound,
		time.Duration(conf.Network.AntiEntropySecs)*time.Second,
	)
	svc = node.NewLoggingService(svc, log.With(logger, "component", "node"))
	svc = node.NewMetricsService(svc, metrics.Updates, metrics.Views)

	go func() {

		if err := svc.Run(); err != nil {
			level.Error(logger).Log(
				"msg", "replication service failed",
				"err", err,
			)
			os.Exit(1)
		}
	}()

	if *isolatedFlag {

		if err := svc.SetIsolated(true); err != nil {
			level.Error(logger).Log(
				"msg", "failed to start isolated",
				"err", err,
			)
			os.Exit(1)
		}
	}

	level.Info(logger).Log(
		"msg", "dotlist replica running",
		"replica", replica,
		"port", conf.Network.Port,
		"broadcast_addr", conf.Network.BroadcastAddr,
	)

	commandLoop(logger, svc, *isolatedFlag)

	svc.Close()
	receiver.Close()
}
