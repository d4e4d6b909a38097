package crdt

import "sort"

// Structs

// RegEntry is one stored write of a multi-value register:
// the minted dot plus the written value.
type RegEntry struct {
	Dot   Dot   `msgpack:"d"`
	Value Value `msgpack:"v"`
}

// MvReg is a multi-value register. Causally informed
// writes supersede everything the writer has observed,
// while mutually unobserved concurrent writes coexist, so
// a read yields the full set of surviving values instead
// of a silently picked winner.
type MvReg struct {
	Entries []RegEntry `msgpack:"e"`
}

// Functions

// NewMvReg returns an empty initialized register.
func NewMvReg() *MvReg {
	return &MvReg{}
}

// Write stores the supplied value under a freshly minted
// dot. Every existing entry whose dot the writer has
// already observed (i.e. is contained in the writer's own
// context at write time) is superseded and removed from
// the payload; its dot stays known through the context and
// is never resurrected.
func (r *MvReg) Write(cc *CausalContext, replica uint8, v Value) Dot {

	kept := r.Entries[:0]
	for _, e := range r.Entries {

		if !cc.Contains(e.Dot) {
			kept = append(kept, e)
		}
	}
	r.Entries = kept

	d := cc.NextDot(replica)
	r.Entries = append(r.Entries, RegEntry{Dot: d, Value: v})
	r.sort()

	return d
}

// Read returns all currently stored values. Once at least
// one write has been observed the result has size >= 1;
// size > 1 means genuinely concurrent writes are in
// conflict.
func (r *MvReg) Read() []Value {

	values := make([]Value, len(r.Entries))
	for i, e := range r.Entries {
		values[i] = e.Value
	}

	return values
}

// contains reports whether the register stores an entry
// under the supplied dot.
func (r *MvReg) contains(d Dot) bool {

	for _, e := range r.Entries {
		if e.Dot == d {
			return true
		}
	}

	return false
}

// joinReg merges two registers under their owning
// contexts: the union of both entry sets, minus every
// entry that the other side has observed but no longer
// carries, because that absence means the entry was
// superseded there.
func joinReg(a, b *MvReg, actx, bctx *CausalContext) *MvReg {

	out := NewMvReg()

	for _, e := range a.Entries {

		if b.contains(e.Dot) || !bctx.Contains(e.Dot) {
			out.Entries = append(out.Entries, e)
		}
	}

	for _, e := range b.Entries {

		if !out.contains(e.Dot) && !actx.Contains(e.Dot) {
			out.Entries = append(out.Entries, e)
		}
	}

	out.sort()

	return out
}

// filter projects the register down to entries whose dots
// are in the supplied set.
func (r *MvReg) filter(keep map[Dot]struct{}) *MvReg {

	if r == nil {
		return nil
	}

	out := NewMvReg()
	for _, e := range r.Entries {

		if _, found := keep[e.Dot]; found {
			out.Entries = append(out.Entries, e)
		}
	}

	if len(out.Entries) == 0 {
		return nil
	}

	return out
}

// clone returns a deep copy of the register.
func (r *MvReg) clone() *MvReg {

	if r == nil {
		return nil
	}

	out := NewMvReg()
	out.Entries = append(out.Entries, r.Entries...)

	return out
}

// sort keeps entries in deterministic dot order so that
// structural equality holds across replicas.
func (r *MvReg) sort() {

	sort.Slice(r.Entries, func(i, j int) bool {
		return r.Entries[i].Dot.Less(r.Entries[j].Dot)
	})
}
