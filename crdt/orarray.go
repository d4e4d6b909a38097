package crdt

import "sort"

// Structs

// ArrayEntry is one element of an ordered sequence: the
// element dot naming its creation, the dense order key
// positioning it, and the nested payload node.
type ArrayEntry struct {
	Dot   Dot   `msgpack:"d"`
	Pos   Pos   `msgpack:"p"`
	Value *Node `msgpack:"v"`
}

// OrArray is an ordered sequence with observed-remove
// element semantics. The global order is ascending by
// order key with the element dot as tiebreak. Concurrent
// inserts into the same gap converge to one deterministic
// order on all replicas, though not necessarily to either
// author's intended relative placement.
type OrArray struct {
	Entries []ArrayEntry `msgpack:"e"`
}

// Functions

// NewOrArray returns an empty initialized array.
func NewOrArray() *OrArray {
	return &OrArray{}
}

// Len returns the number of live elements.
func (a *OrArray) Len() int {
	return len(a.Entries)
}

// Get returns the element at the supplied index in global
// order, or nil if the index is out of range.
func (a *OrArray) Get(idx int) *ArrayEntry {

	if idx < 0 || idx >= len(a.Entries) {
		return nil
	}

	return &a.Entries[idx]
}

// InsertAt mints a fresh element of the supplied kind at
// the given index: its order key lands strictly between
// the keys of the current neighbors, which never fails
// regardless of how dense the gap already is. Indexes
// beyond the end append.
func (a *OrArray) InsertAt(idx int, kind NodeKind, cc *CausalContext, replica uint8) (*ArrayEntry, *Node) {

	if idx < 0 {
		idx = 0
	}
	if idx > len(a.Entries) {
		idx = len(a.Entries)
	}

	var lo, hi Pos
	if idx > 0 {
		lo = a.Entries[idx-1].Pos
	}
	if idx < len(a.Entries) {
		hi = a.Entries[idx].Pos
	}

	var value *Node
	switch kind {
	case KindMap:
		value = NewMapNode()
	case KindArray:
		value = NewArrayNode()
	default:
		value = NewRegNode()
	}

	entry := ArrayEntry{
		Dot:   cc.NextDot(replica),
		Pos:   Between(lo, hi, replica),
		Value: value,
	}

	a.Entries = append(a.Entries, entry)
	a.sort()

	return a.find(entry.Dot), value
}

// Remove deletes the element stored under the supplied
// dot. The dot stays known through the enclosing context,
// tombstoning the element against resurrection. A cover
// dot is minted so removal-only changes remain visible to
// context comparison.
func (a *OrArray) Remove(d Dot, cc *CausalContext, replica uint8) bool {

	for i, e := range a.Entries {

		if e.Dot == d {
			a.Entries = append(a.Entries[:i], a.Entries[i+1:]...)
			cc.NextDot(replica)
			return true
		}
	}

	return false
}

// Move relocates the element stored under the supplied
// dot to the given index. It tombstones the old entry and
// reinserts the payload under a fresh dot and a fresh
// order key; reusing the dot would leave two concurrent
// moves of one element irreconcilable under the dot-keyed
// join.
func (a *OrArray) Move(d Dot, idx int, cc *CausalContext, replica uint8) (*ArrayEntry, bool) {

	old := a.find(d)
	if old == nil {
		return nil, false
	}

	value := old.Value
	if !a.Remove(d, cc, replica) {
		return nil, false
	}

	entry, _ := a.InsertAt(idx, KindReg, cc, replica)
	entry.Value = value

	return entry, true
}

// find returns the live entry stored under the supplied
// dot, or nil.
func (a *OrArray) find(d Dot) *ArrayEntry {

	for i := range a.Entries {
		if a.Entries[i].Dot == d {
			return &a.Entries[i]
		}
	}

	return nil
}

// joinArray merges two arrays under their owning
// contexts. Elements are keyed by dot with the same
// add/tombstone rule as the observed-remove map; elements
// present on both sides join their payloads recursively.
func joinArray(a, b *OrArray, actx, bctx *CausalContext) *OrArray {

	out := NewOrArray()

	for _, ea := range a.Entries {

		if eb := b.find(ea.Dot); eb != nil {

			out.Entries = append(out.Entries, ArrayEntry{
				Dot:   ea.Dot,
				Pos:   append(Pos(nil), ea.Pos...),
				Value: joinNode(ea.Value, eb.Value, actx, bctx),
			})
			continue
		}

		// One-side entries are adopted as copies, the joined
		// store must not share mutable state with its inputs.
		if !bctx.Contains(ea.Dot) {
			out.Entries = append(out.Entries, ArrayEntry{
				Dot:   ea.Dot,
				Pos:   append(Pos(nil), ea.Pos...),
				Value: ea.Value.clone(),
			})
		}
	}

	for _, eb := range b.Entries {

		if a.find(eb.Dot) != nil {
			continue
		}

		if !actx.Contains(eb.Dot) {
			out.Entries = append(out.Entries, ArrayEntry{
				Dot:   eb.Dot,
				Pos:   append(Pos(nil), eb.Pos...),
				Value: eb.Value.clone(),
			})
		}
	}

	out.sort()

	return out
}

// filter projects the array down to elements whose dots
// are in the supplied set or whose subtree is touched.
func (a *OrArray) filter(keep map[Dot]struct{}) *OrArray {

	if a == nil {
		return nil
	}

	out := NewOrArray()

	for _, e := range a.Entries {

		// Same rule as the map filter: fresh elements travel
		// with their whole payload, known elements only with
		// the touched slice.
		var sub *Node
		_, touched := keep[e.Dot]
		if touched {
			sub = e.Value.clone()
		} else {
			sub = e.Value.filterNode(keep)
			if sub == nil {
				continue
			}
		}

		out.Entries = append(out.Entries, ArrayEntry{
			Dot:   e.Dot,
			Pos:   e.Pos,
			Value: sub,
		})
	}

	if len(out.Entries) == 0 {
		return nil
	}

	out.sort()

	return out
}

// clone returns a deep copy of the array.
func (a *OrArray) clone() *OrArray {

	if a == nil {
		return nil
	}

	out := NewOrArray()
	for _, e := range a.Entries {
		out.Entries = append(out.Entries, ArrayEntry{
			Dot:   e.Dot,
			Pos:   append(Pos(nil), e.Pos...),
			Value: e.Value.clone(),
		})
	}

	return out
}

// sort orders elements ascending by order key, ties
// broken by dot.
func (a *OrArray) sort() {

	sort.Slice(a.Entries, func(i, j int) bool {

		if c := ComparePos(a.Entries[i].Pos, a.Entries[j].Pos); c != 0 {
			return c < 0
		}

		return a.Entries[i].Dot.Less(a.Entries[j].Dot)
	})
}
