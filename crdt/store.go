package crdt

import "reflect"

// Structs

// CausalDotStore pairs a causal context with a payload
// tree. Invariant: every dot referenced anywhere inside
// the payload is contained in the context (the context
// dominates the payload); a dot in the context without a
// payload entry means observed-and-superseded and is the
// tombstone that keeps removed state from resurrecting.
//
// A replica owns exactly one authoritative store for the
// process lifetime. Deltas received from peers are
// immutable inputs merged into it, never referenced by
// identity afterwards.
type CausalDotStore struct {
	Context *CausalContext `msgpack:"c"`
	Root    *Node          `msgpack:"p"`
}

// Delta is a causal dot store whose context covers only a
// slice of a full store's knowledge. It is structurally
// identical to a full store and joins with the exact same
// algebra, the distinction is size and intent.
type Delta = CausalDotStore

// Functions

// NewStore returns an empty initialized store whose
// payload root is an observed-remove map.
func NewStore() *CausalDotStore {

	return &CausalDotStore{
		Context: NewContext(),
		Root:    NewMapNode(),
	}
}

// NextDot mints the next dot for the supplied replica and
// records it in the store's context.
func (s *CausalDotStore) NextDot(replica uint8) Dot {
	return s.Context.NextDot(replica)
}

// Merge folds the supplied store or delta into this one:
// recursive per-type payload join under both contexts,
// then context union. Merging is commutative, associative
// and idempotent, so arbitrary delivery interleavings of
// the same deltas converge to the same state.
func (s *CausalDotStore) Merge(other *CausalDotStore) {

	if other == nil {
		return
	}

	otherCtx := other.Context
	if otherCtx == nil {
		otherCtx = NewContext()
	}

	s.Root = joinNode(s.Root, other.Root, s.Context, otherCtx)
	s.Context.Union(otherCtx)

	if s.Root == nil {
		s.Root = NewMapNode()
	}
}

// Join merges two stores into a fresh third one, leaving
// both inputs untouched.
func Join(a, b *CausalDotStore) *CausalDotStore {

	out := a.Clone()
	out.Merge(b)

	return out
}

// Diff computes the minimal delta that brings a replica
// whose knowledge is the supplied remote context up to
// date with this store. The delta payload carries exactly
// the entries touching dots the remote has not observed;
// the delta context additionally carries this store's
// tombstoned dots, because a bare context entry is the
// only way superseded state travels.
func (s *CausalDotStore) Diff(remote *CausalContext) *Delta {

	missing := make(map[Dot]struct{})
	for _, d := range s.Context.Subtract(remote) {
		missing[d] = struct{}{}
	}

	delta := &Delta{
		Context: NewContext(),
		Root:    s.Root.filterNode(missing),
	}

	for d := range missing {
		delta.Context.Insert(d)
	}

	// Tombstones: observed dots with no surviving payload
	// entry anywhere in the tree.
	live := make(map[Dot]struct{})
	s.Root.dots(live)

	for _, d := range s.Context.Dots() {
		if _, found := live[d]; !found {
			delta.Context.Insert(d)
		}
	}

	// The filtered payload may reference dots outside the
	// missing set, e.g. the full creation dot list of a map
	// entry whose subtree changed. The context must dominate
	// those as well.
	payload := make(map[Dot]struct{})
	delta.Root.dots(payload)
	for d := range payload {
		delta.Context.Insert(d)
	}

	return delta
}

// IsEmpty reports whether the delta carries neither
// payload nor context knowledge.
func (s *CausalDotStore) IsEmpty() bool {
	return s.Root.IsEmpty() && len(s.Context.Dots()) == 0
}

// Equal reports whether two stores are structurally
// identical: same observed dot set and same payload tree.
func (s *CausalDotStore) Equal(other *CausalDotStore) bool {

	if other == nil {
		return false
	}

	if !s.Context.Equal(other.Context) {
		return false
	}

	return reflect.DeepEqual(normalize(s.Root), normalize(other.Root))
}

// Clone returns a deep copy of the store.
func (s *CausalDotStore) Clone() *CausalDotStore {

	return &CausalDotStore{
		Context: s.Context.Clone(),
		Root:    s.Root.clone(),
	}
}

// normalize maps empty payload shapes onto nil so that
// structural comparison ignores representation noise.
func normalize(n *Node) *Node {

	if n.IsEmpty() {
		return nil
	}

	switch n.Kind {

	case KindMap:
		out := NewMapNode()
		for key, entry := range n.Map.Entries {
			dots := append([]Dot(nil), entry.Dots...)
			sortDots(dots)
			out.Map.Entries[key] = &MapEntry{
				Dots:  dots,
				Value: normalize(entry.Value),
			}
		}
		return out

	case KindArray:
		out := NewArrayNode()
		for _, e := range n.Array.Entries {
			out.Array.Entries = append(out.Array.Entries, ArrayEntry{
				Dot:   e.Dot,
				Pos:   e.Pos,
				Value: normalize(e.Value),
			})
		}
		out.Array.sort()
		return out

	default:
		return n
	}
}

// sortDots orders a dot slice by the deterministic total
// order.
func sortDots(dots []Dot) {

	for i := 1; i < len(dots); i++ {
		for j := i; j > 0 && dots[j].Less(dots[j-1]); j-- {
			dots[j], dots[j-1] = dots[j-1], dots[j]
		}
	}
}
