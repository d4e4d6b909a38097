package crdt

// Structs

// MapEntry is one key of an observed-remove map: the set
// of creation dots under which the key is alive plus the
// nested CRDT value. Concurrent creations of the same key
// accumulate multiple creation dots; the key dies only
// once every creation dot has been observed and removed.
type MapEntry struct {
	Dots  []Dot `msgpack:"d"`
	Value *Node `msgpack:"v"`
}

// OrMap is an observed-remove map from string keys to
// nested CRDT nodes. A remove can only shadow creations
// the remover has causally observed; a concurrent,
// unobserved creation always survives a merge with an
// unrelated remove.
type OrMap struct {
	Entries map[string]*MapEntry `msgpack:"e"`
}

// Functions

// NewOrMap returns an empty initialized map.
func NewOrMap() *OrMap {

	return &OrMap{
		Entries: make(map[string]*MapEntry),
	}
}

// Get returns the nested node stored under the supplied
// key, or nil if the key does not exist.
func (m *OrMap) Get(key string) *Node {

	entry, found := m.Entries[key]
	if !found {
		return nil
	}

	return entry.Value
}

// GetOrCreate returns the nested node stored under the
// supplied key, creating an empty node of the supplied
// kind under a freshly minted creation dot if the key
// does not exist yet.
func (m *OrMap) GetOrCreate(key string, kind NodeKind, cc *CausalContext, replica uint8) *Node {

	if entry, found := m.Entries[key]; found {
		return entry.Value
	}

	return m.Create(key, kind, cc.NextDot(replica))
}

// Create inserts an empty node of the supplied kind under
// the supplied key and creation dot. The dot must already
// be recorded in the enclosing context.
func (m *OrMap) Create(key string, kind NodeKind, d Dot) *Node {

	var value *Node
	switch kind {
	case KindMap:
		value = NewMapNode()
	case KindArray:
		value = NewArrayNode()
	default:
		value = NewRegNode()
	}

	m.Entries[key] = &MapEntry{
		Dots:  []Dot{d},
		Value: value,
	}

	return value
}

// Remove deletes the map entry under the supplied key.
// The creation dots stay known through the enclosing
// context only, which is exactly the tombstone that keeps
// the key from resurrecting. A cover dot is minted so the
// removal shows up in context comparisons even though no
// payload changes hands.
func (m *OrMap) Remove(key string, cc *CausalContext, replica uint8) bool {

	if _, found := m.Entries[key]; !found {
		return false
	}

	delete(m.Entries, key)
	cc.NextDot(replica)

	return true
}

// Keys returns all currently live keys in unspecified
// order.
func (m *OrMap) Keys() []string {

	keys := make([]string, 0, len(m.Entries))
	for key := range m.Entries {
		keys = append(keys, key)
	}

	return keys
}

// joinMap merges two maps under their owning contexts,
// key-wise. Per key and creation dot the observed-remove
// rule applies: a dot survives unless the other side has
// observed it without still carrying it. Keys whose
// creation dots are all gone are dropped entirely.
func joinMap(a, b *OrMap, actx, bctx *CausalContext) *OrMap {

	out := NewOrMap()

	keys := make(map[string]struct{}, len(a.Entries)+len(b.Entries))
	for key := range a.Entries {
		keys[key] = struct{}{}
	}
	for key := range b.Entries {
		keys[key] = struct{}{}
	}

	for key := range keys {

		ea := a.Entries[key]
		eb := b.Entries[key]

		dots := joinEntryDots(ea, eb, actx, bctx)
		if len(dots) == 0 {
			continue
		}

		var va, vb *Node
		if ea != nil {
			va = ea.Value
		}
		if eb != nil {
			vb = eb.Value
		}

		out.Entries[key] = &MapEntry{
			Dots:  dots,
			Value: joinNode(va, vb, actx, bctx),
		}
	}

	return out
}

// joinEntryDots computes the surviving creation dots of
// one key across both sides.
func joinEntryDots(ea, eb *MapEntry, actx, bctx *CausalContext) []Dot {

	surviving := make([]Dot, 0, 2)

	contains := func(e *MapEntry, d Dot) bool {
		if e == nil {
			return false
		}
		for _, own := range e.Dots {
			if own == d {
				return true
			}
		}
		return false
	}

	if ea != nil {
		for _, d := range ea.Dots {
			if contains(eb, d) || !bctx.Contains(d) {
				surviving = append(surviving, d)
			}
		}
	}

	if eb != nil {
		for _, d := range eb.Dots {
			if contains(ea, d) {
				continue
			}
			if !actx.Contains(d) {
				surviving = append(surviving, d)
			}
		}
	}

	return surviving
}

// filter projects the map down to entries touching the
// supplied dot set. An entry is included when one of its
// creation dots is in the set or when its subtree is
// touched; included entries always carry their full
// creation dot list so receivers learn all of them.
func (m *OrMap) filter(keep map[Dot]struct{}) *OrMap {

	if m == nil {
		return nil
	}

	out := NewOrMap()

	for key, entry := range m.Entries {

		touched := false
		for _, d := range entry.Dots {
			if _, found := keep[d]; found {
				touched = true
				break
			}
		}

		// A freshly created entry travels whole, the receiver
		// has nothing to complete it against. Entries the
		// receiver already knows travel as the touched slice
		// of their subtree only.
		var sub *Node
		if touched {
			sub = entry.Value.clone()
		} else {
			sub = entry.Value.filterNode(keep)
			if sub == nil {
				continue
			}
		}

		out.Entries[key] = &MapEntry{
			Dots:  append([]Dot(nil), entry.Dots...),
			Value: sub,
		}
	}

	if len(out.Entries) == 0 {
		return nil
	}

	return out
}

// clone returns a deep copy of the map.
func (m *OrMap) clone() *OrMap {

	if m == nil {
		return nil
	}

	out := NewOrMap()
	for key, entry := range m.Entries {
		out.Entries[key] = &MapEntry{
			Dots:  append([]Dot(nil), entry.Dots...),
			Value: entry.Value.clone(),
		}
	}

	return out
}
