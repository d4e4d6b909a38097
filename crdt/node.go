package crdt

// Constants

// Node kinds of the closed payload family.
const (
	KindReg NodeKind = iota + 1
	KindMap
	KindArray
)

// Structs

// NodeKind tags which member of the payload family a
// Node carries.
type NodeKind uint8

// Node is one vertex of a causal dot store's payload
// tree. The CRDT behaviors form a fixed family (register,
// map, array) whose merge algebra is statically known, so
// the payload is a tagged variant rather than an open
// interface.
type Node struct {
	Kind  NodeKind `msgpack:"k"`
	Reg   *MvReg   `msgpack:"r,omitempty"`
	Map   *OrMap   `msgpack:"m,omitempty"`
	Array *OrArray `msgpack:"a,omitempty"`
}

// Functions

// NewRegNode returns a node holding an empty register.
func NewRegNode() *Node {
	return &Node{Kind: KindReg, Reg: NewMvReg()}
}

// NewMapNode returns a node holding an empty map.
func NewMapNode() *Node {
	return &Node{Kind: KindMap, Map: NewOrMap()}
}

// NewArrayNode returns a node holding an empty array.
func NewArrayNode() *Node {
	return &Node{Kind: KindArray, Array: NewOrArray()}
}

// emptyLike returns an empty node of the same kind as the
// supplied template. Joins against an absent side join
// against this.
func emptyLike(template *Node) *Node {

	switch template.Kind {
	case KindMap:
		return NewMapNode()
	case KindArray:
		return NewArrayNode()
	default:
		return NewRegNode()
	}
}

// IsEmpty reports whether the node carries no payload
// entries at all.
func (n *Node) IsEmpty() bool {

	if n == nil {
		return true
	}

	switch n.Kind {
	case KindReg:
		return n.Reg == nil || len(n.Reg.Entries) == 0
	case KindMap:
		return n.Map == nil || len(n.Map.Entries) == 0
	case KindArray:
		return n.Array == nil || len(n.Array.Entries) == 0
	default:
		return true
	}
}

// dots appends every dot referenced anywhere in this
// node's subtree to the supplied accumulator.
func (n *Node) dots(acc map[Dot]struct{}) {

	if n == nil {
		return
	}

	switch n.Kind {

	case KindReg:
		if n.Reg != nil {
			for _, e := range n.Reg.Entries {
				acc[e.Dot] = struct{}{}
			}
		}

	case KindMap:
		if n.Map != nil {
			for _, entry := range n.Map.Entries {
				for _, d := range entry.Dots {
					acc[d] = struct{}{}
				}
				entry.Value.dots(acc)
			}
		}

	case KindArray:
		if n.Array != nil {
			for _, e := range n.Array.Entries {
				acc[e.Dot] = struct{}{}
				e.Value.dots(acc)
			}
		}
	}
}

// joinNode merges two payload nodes under their owning
// contexts. Both inputs stay untouched, the result is a
// fresh node. A nil side joins as an empty node, which is
// what makes a bare context (payload entry absent, dot
// observed) act as the tombstone signal.
func joinNode(a, b *Node, actx, bctx *CausalContext) *Node {

	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		a = emptyLike(b)
	}
	if b == nil {
		b = emptyLike(a)
	}

	// Kind mismatches cannot arise from well-formed replicas
	// but must not crash the join. The smaller kind wins on
	// both sides, keeping the join commutative.
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			b = emptyLike(a)
		} else {
			a = emptyLike(b)
		}
	}

	switch a.Kind {
	case KindReg:
		return &Node{Kind: KindReg, Reg: joinReg(a.Reg, b.Reg, actx, bctx)}
	case KindMap:
		return &Node{Kind: KindMap, Map: joinMap(a.Map, b.Map, actx, bctx)}
	case KindArray:
		return &Node{Kind: KindArray, Array: joinArray(a.Array, b.Array, actx, bctx)}
	default:
		return nil
	}
}

// filterNode projects the node down to the entries that
// touch the supplied dot set, preserving structure. It
// returns nil when nothing in the subtree is touched.
func (n *Node) filterNode(keep map[Dot]struct{}) *Node {

	if n == nil {
		return nil
	}

	switch n.Kind {

	case KindReg:
		reg := n.Reg.filter(keep)
		if reg == nil {
			return nil
		}
		return &Node{Kind: KindReg, Reg: reg}

	case KindMap:
		m := n.Map.filter(keep)
		if m == nil {
			return nil
		}
		return &Node{Kind: KindMap, Map: m}

	case KindArray:
		arr := n.Array.filter(keep)
		if arr == nil {
			return nil
		}
		return &Node{Kind: KindArray, Array: arr}

	default:
		return nil
	}
}

// clone returns a deep copy of the node.
func (n *Node) clone() *Node {

	if n == nil {
		return nil
	}

	switch n.Kind {
	case KindReg:
		return &Node{Kind: KindReg, Reg: n.Reg.clone()}
	case KindMap:
		return &Node{Kind: KindMap, Map: n.Map.clone()}
	case KindArray:
		return &Node{Kind: KindArray, Array: n.Array.clone()}
	default:
		return &Node{Kind: n.Kind}
	}
}
