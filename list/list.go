package list

import (
	"sort"

	"github.com/numbleroot/dotlist/crdt"
)

// Constants

// Reserved root key holding the display order array, and
// the field keys of one item map.
const (
	orderKey  = "order"
	fieldText = "text"
	fieldDone = "done"
)

// Structs

// Item is the projection of one list entry. Text and Done
// carry every concurrent version currently alive; a
// single-element slice is the common conflict-free case.
type Item struct {
	Key  string
	Text []string
	Done []bool
}

// Functions

// HasConflict reports whether any field of this item holds
// more than one concurrent version.
func (it Item) HasConflict() bool {
	return len(it.Text) > 1 || len(it.Done) > 1
}

// PrimaryText returns the first text version, or the empty
// string for an item without one.
func (it Item) PrimaryText() string {

	if len(it.Text) == 0 {
		return ""
	}

	return it.Text[0]
}

// PrimaryDone returns the first done version, defaulting
// to false.
func (it Item) PrimaryDone() bool {

	if len(it.Done) == 0 {
		return false
	}

	return it.Done[0]
}

// ReadItem projects the item stored under the supplied key
// out of the store.
func ReadItem(s *crdt.CausalDotStore, key string) (Item, bool) {

	node := s.Root.Map.Get(key)
	if node == nil || node.Kind != crdt.KindMap {
		return Item{}, false
	}

	it := Item{Key: key}

	if f := node.Map.Get(fieldText); f != nil && f.Reg != nil {
		for _, v := range f.Reg.Read() {
			it.Text = append(it.Text, v.Str)
		}
	}

	if f := node.Map.Get(fieldDone); f != nil && f.Reg != nil {
		for _, v := range f.Reg.Read() {
			it.Done = append(it.Done, v.Bool)
		}
	}

	return it, true
}

// Items projects the whole list in display order. Order
// references to deleted items are skipped, duplicate
// references (possible after concurrent moves of one item)
// collapse onto the first occurrence, and items the order
// array does not reference yet are appended in creation
// dot order so nothing known ever disappears from view.
func Items(s *crdt.CausalDotStore) []Item {

	var out []Item
	seen := make(map[string]struct{})

	if order := s.Root.Map.Get(orderKey); order != nil && order.Array != nil {

		for i := 0; i < order.Array.Len(); i++ {

			key := refKey(order.Array.Get(i).Value)
			if key == "" {
				continue
			}

			if _, dup := seen[key]; dup {
				continue
			}

			it, ok := ReadItem(s, key)
			if !ok {
				continue
			}

			seen[key] = struct{}{}
			out = append(out, it)
		}
	}

	var orphans []string
	for _, key := range s.Root.Map.Keys() {

		if key == orderKey {
			continue
		}
		if _, found := seen[key]; found {
			continue
		}

		orphans = append(orphans, key)
	}

	sort.Slice(orphans, func(i, j int) bool {

		di, erri := crdt.ParseDot(orphans[i])
		dj, errj := crdt.ParseDot(orphans[j])
		if erri != nil || errj != nil {
			return orphans[i] < orphans[j]
		}

		return di.Less(dj)
	})

	for _, key := range orphans {

		if it, ok := ReadItem(s, key); ok {
			out = append(out, it)
		}
	}

	return out
}

// Add buffers the creation of a new item appended to the
// end of the list.
func Add(tx *crdt.Transaction, text string) {
	AddAt(tx, -1, text)
}

// AddAt buffers the creation of a new item at the supplied
// display index. A negative index appends.
func AddAt(tx *crdt.Transaction, idx int, text string) {

	tx.Do(func(st *crdt.CausalDotStore, r uint8) {

		d := st.NextDot(r)
		key := d.String()

		item := st.Root.Map.Create(key, crdt.KindMap, d)
		item.Map.GetOrCreate(fieldText, crdt.KindReg, st.Context, r).Reg.Write(st.Context, r, crdt.String(text))
		item.Map.GetOrCreate(fieldDone, crdt.KindReg, st.Context, r).Reg.Write(st.Context, r, crdt.Bool(false))

		order := st.Root.Map.GetOrCreate(orderKey, crdt.KindArray, st.Context, r)

		at := idx
		if at < 0 {
			at = order.Array.Len()
		}

		_, ref := order.Array.InsertAt(at, crdt.KindReg, st.Context, r)
		ref.Reg.Write(st.Context, r, crdt.String(key))
	})
}

// SetText buffers a text edit on the item stored under the
// supplied key. The write supersedes every text version
// this replica has observed, which is how a user resolves
// a conflict: edit once more, aware of both versions.
func SetText(tx *crdt.Transaction, key string, text string) {

	tx.Do(func(st *crdt.CausalDotStore, r uint8) {

		item := st.Root.Map.Get(key)
		if item == nil || item.Kind != crdt.KindMap {
			return
		}

		item.Map.GetOrCreate(fieldText, crdt.KindReg, st.Context, r).Reg.Write(st.Context, r, crdt.String(text))
	})
}

// SetDone buffers a done flag write on the item stored
// under the supplied key.
func SetDone(tx *crdt.Transaction, key string, done bool) {

	tx.Do(func(st *crdt.CausalDotStore, r uint8) {

		item := st.Root.Map.Get(key)
		if item == nil || item.Kind != crdt.KindMap {
			return
		}

		item.Map.GetOrCreate(fieldDone, crdt.KindReg, st.Context, r).Reg.Write(st.Context, r, crdt.Bool(done))
	})
}

// Toggle buffers a flip of the item's done flag, taking
// the first live version as the current one.
func Toggle(tx *crdt.Transaction, key string) {

	tx.Do(func(st *crdt.CausalDotStore, r uint8) {

		item := st.Root.Map.Get(key)
		if item == nil || item.Kind != crdt.KindMap {
			return
		}

		cur := false
		field := item.Map.GetOrCreate(fieldDone, crdt.KindReg, st.Context, r)
		if values := field.Reg.Read(); len(values) > 0 {
			cur = values[0].Bool
		}

		field.Reg.Write(st.Context, r, crdt.Bool(!cur))
	})
}

// Delete buffers the removal of the item stored under the
// supplied key together with every order reference
// pointing at it.
func Delete(tx *crdt.Transaction, key string) {

	tx.Do(func(st *crdt.CausalDotStore, r uint8) {

		if order := st.Root.Map.Get(orderKey); order != nil && order.Array != nil {

			for _, d := range refDots(order.Array, key) {
				order.Array.Remove(d, st.Context, r)
			}
		}

		st.Root.Map.Remove(key, st.Context, r)
	})
}

// Move buffers the relocation of the item stored under the
// supplied key to the given display index.
func Move(tx *crdt.Transaction, key string, idx int) {

	tx.Do(func(st *crdt.CausalDotStore, r uint8) {

		order := st.Root.Map.Get(orderKey)
		if order == nil || order.Array == nil {
			return
		}

		dots := refDots(order.Array, key)
		if len(dots) == 0 {
			return
		}

		order.Array.Move(dots[0], idx, st.Context, r)
	})
}

// Seed buffers a handful of canned items, all inside the
// caller's one transaction.
func Seed(tx *crdt.Transaction) {

	for _, text := range []string{
		"Buy groceries",
		"Water the plants",
		"Call the landlord",
		"Fix the bike light",
	} {
		Add(tx, text)
	}
}

// refKey reads the item key out of one order reference
// node. References are written once at insert time, so the
// register holds exactly one value.
func refKey(node *crdt.Node) string {

	if node == nil || node.Reg == nil {
		return ""
	}

	values := node.Reg.Read()
	if len(values) == 0 {
		return ""
	}

	return values[0].Str
}

// refDots collects the element dots of every order
// reference pointing at the supplied key.
func refDots(order *crdt.OrArray, key string) []crdt.Dot {

	var out []crdt.Dot

	for i := 0; i < order.Len(); i++ {

		e := order.Get(i)
		if refKey(e.Value) == key {
			out = append(out, e.Dot)
		}
	}

	return out
}
