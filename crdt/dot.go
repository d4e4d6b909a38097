package crdt

import (
	"fmt"
	"strconv"
	"strings"
)

// Structs

// Dot uniquely names one causal event: the counter-th
// operation performed by one replica. A dot is minted
// exactly once and is never reused or rewound.
type Dot struct {
	Replica uint8  `msgpack:"r"`
	Counter uint64 `msgpack:"c"`
}

// Functions

// ParseDot parses the string representation produced
// by String back into a Dot.
func ParseDot(s string) (Dot, error) {

	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Dot{}, fmt.Errorf("invalid dot representation: '%s'", s)
	}

	replica, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return Dot{}, fmt.Errorf("invalid replica part in dot '%s': %v", s, err)
	}

	counter, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Dot{}, fmt.Errorf("invalid counter part in dot '%s': %v", s, err)
	}

	return Dot{
		Replica: uint8(replica),
		Counter: counter,
	}, nil
}

// String returns the canonical "replica:counter"
// representation of this dot.
func (d Dot) String() string {
	return fmt.Sprintf("%d:%d", d.Replica, d.Counter)
}

// Less imposes a total order on dots, first by
// replica, then by counter. It only serves as a
// deterministic tiebreak, it carries no causal meaning.
func (d Dot) Less(other Dot) bool {

	if d.Replica != other.Replica {
		return d.Replica < other.Replica
	}

	return d.Counter < other.Counter
}
