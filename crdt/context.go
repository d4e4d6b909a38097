package crdt

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Structs

// CausalContext compactly records every dot a replica
// has observed. Per replica it keeps a frontier ("all
// counters up to N seen contiguously") plus a cloud of
// out-of-order exception counters beyond that frontier.
// Exceptions are retained indefinitely until their causal
// predecessors arrive, they are never discarded.
type CausalContext struct {
	frontier map[uint8]uint64
	cloud    map[uint8]mapset.Set[uint64]
}

// wireContext is the serialized shape of a CausalContext.
// The cloud sets flatten into sorted slices so that the
// encoding stays deterministic across replicas.
type wireContext struct {
	Frontier map[uint8]uint64   `msgpack:"f"`
	Cloud    map[uint8][]uint64 `msgpack:"c"`
}

// Functions

// NewContext returns an empty initialized causal context.
func NewContext() *CausalContext {

	return &CausalContext{
		frontier: make(map[uint8]uint64),
		cloud:    make(map[uint8]mapset.Set[uint64]),
	}
}

// Contains reports whether the supplied dot has been
// observed, either below the replica's frontier or as
// an exception beyond it.
func (cc *CausalContext) Contains(d Dot) bool {

	if d.Counter <= cc.frontier[d.Replica] {
		return true
	}

	if exc, found := cc.cloud[d.Replica]; found {
		return exc.Contains(d.Counter)
	}

	return false
}

// Insert adds the supplied dot to the context. Duplicate
// insertion is a no-op. After insertion the affected
// replica's exceptions are recompacted into the frontier
// wherever contiguity now holds.
func (cc *CausalContext) Insert(d Dot) {

	if cc.Contains(d) {
		return
	}

	exc, found := cc.cloud[d.Replica]
	if !found {
		exc = mapset.NewThreadUnsafeSet[uint64]()
		cc.cloud[d.Replica] = exc
	}
	exc.Add(d.Counter)

	cc.compact(d.Replica)
}

// Next mints the next dot for the supplied replica. The
// caller is expected to Insert the returned dot into this
// context immediately, local dots are always contiguous.
func (cc *CausalContext) Next(replica uint8) Dot {

	next := cc.frontier[replica] + 1

	// Guard against a stray exception of our own replica,
	// which can only appear after an id collision on the
	// broadcast domain (see package doc on degradation).
	if exc, found := cc.cloud[replica]; found {

		for _, counter := range exc.ToSlice() {
			if counter >= next {
				next = counter + 1
			}
		}
	}

	return Dot{
		Replica: replica,
		Counter: next,
	}
}

// NextDot mints the next dot for the supplied replica and
// records it as observed in one step.
func (cc *CausalContext) NextDot(replica uint8) Dot {

	d := cc.Next(replica)
	cc.Insert(d)

	return d
}

// Union merges the supplied context into this one: the
// per-replica maximum of both frontiers plus the union of
// both exception clouds, followed by recompaction. Unioning
// the same context twice is a no-op.
func (cc *CausalContext) Union(other *CausalContext) {

	if other == nil || other == cc {
		return
	}

	for replica, frontier := range other.frontier {

		if frontier > cc.frontier[replica] {
			cc.frontier[replica] = frontier
		}
	}

	for replica, exc := range other.cloud {

		for _, counter := range exc.ToSlice() {

			if counter <= cc.frontier[replica] {
				continue
			}

			own, found := cc.cloud[replica]
			if !found {
				own = mapset.NewThreadUnsafeSet[uint64]()
				cc.cloud[replica] = own
			}
			own.Add(counter)
		}

		cc.compact(replica)
	}
}

// compact folds exceptions of the supplied replica into
// the frontier for as long as contiguity holds and drops
// exceptions the frontier has caught up with.
func (cc *CausalContext) compact(replica uint8) {

	exc, found := cc.cloud[replica]
	if !found {
		return
	}

	for {

		next := cc.frontier[replica] + 1

		if !exc.Contains(next) {
			break
		}

		cc.frontier[replica] = next
		exc.Remove(next)
	}

	for _, counter := range exc.ToSlice() {

		if counter <= cc.frontier[replica] {
			exc.Remove(counter)
		}
	}

	if exc.Cardinality() == 0 {
		delete(cc.cloud, replica)
	}
}

// Dots enumerates every observed dot, frontier ranges
// and exceptions alike, in deterministic order.
func (cc *CausalContext) Dots() []Dot {

	dots := make([]Dot, 0, 16)

	for replica, frontier := range cc.frontier {

		for counter := uint64(1); counter <= frontier; counter++ {
			dots = append(dots, Dot{Replica: replica, Counter: counter})
		}
	}

	for replica, exc := range cc.cloud {

		for _, counter := range exc.ToSlice() {
			dots = append(dots, Dot{Replica: replica, Counter: counter})
		}
	}

	sort.Slice(dots, func(i, j int) bool {
		return dots[i].Less(dots[j])
	})

	return dots
}

// Subtract returns every dot this context has observed
// that the supplied context has not.
func (cc *CausalContext) Subtract(other *CausalContext) []Dot {

	missing := make([]Dot, 0, 4)

	for _, d := range cc.Dots() {

		if other == nil || !other.Contains(d) {
			missing = append(missing, d)
		}
	}

	return missing
}

// Equal reports whether both contexts describe the exact
// same observed dot set.
func (cc *CausalContext) Equal(other *CausalContext) bool {

	if other == nil {
		return false
	}

	return len(cc.Subtract(other)) == 0 && len(other.Subtract(cc)) == 0
}

// Clone returns a deep copy of this context.
func (cc *CausalContext) Clone() *CausalContext {

	clone := NewContext()

	for replica, frontier := range cc.frontier {
		clone.frontier[replica] = frontier
	}

	for replica, exc := range cc.cloud {
		clone.cloud[replica] = exc.Clone()
	}

	return clone
}

// EncodeMsgpack flattens the exception clouds into sorted
// slices and writes the wire shape of this context.
func (cc *CausalContext) EncodeMsgpack(enc *msgpack.Encoder) error {

	wire := wireContext{
		Frontier: cc.frontier,
		Cloud:    make(map[uint8][]uint64, len(cc.cloud)),
	}

	for replica, exc := range cc.cloud {

		counters := exc.ToSlice()
		sort.Slice(counters, func(i, j int) bool {
			return counters[i] < counters[j]
		})

		wire.Cloud[replica] = counters
	}

	return enc.Encode(wire)
}

// DecodeMsgpack restores a context from its wire shape.
func (cc *CausalContext) DecodeMsgpack(dec *msgpack.Decoder) error {

	var wire wireContext
	if err := dec.Decode(&wire); err != nil {
		return err
	}

	cc.frontier = wire.Frontier
	if cc.frontier == nil {
		cc.frontier = make(map[uint8]uint64)
	}

	cc.cloud = make(map[uint8]mapset.Set[uint64], len(wire.Cloud))
	for replica, counters := range wire.Cloud {
		cc.cloud[replica] = mapset.NewThreadUnsafeSet[uint64](counters...)
	}

	// Received contexts may be arbitrarily shaped, fold
	// whatever turns out contiguous.
	for replica := range cc.cloud {
		cc.compact(replica)
	}

	return nil
}
