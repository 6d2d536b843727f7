package tree

import "sync"

// Node is one entry in the tree: a type tag, a property map, and an ordered list of
// children. Parent links are non-owning and exist only for ancestor lookup.
type Node struct {
	tree   *Tree
	kind   Kind
	mu     sync.RWMutex
	props  map[string]Value
	parent *Node
	// children []*Node is read far more often than it's written (every listener
	// walks it); keep it a plain slice guarded by mu rather than a fancier
	// structure.
	children []*Node
}

func newNode(t *Tree, kind Kind, props map[string]Value) *Node {
	n := &Node{tree: t, kind: kind, props: map[string]Value{}}
	for k, v := range props {
		n.props[k] = v
	}
	return n
}

// Kind returns the node's type tag.
func (n *Node) Kind() Kind { return n.kind }

// Parent returns the node's parent, or nil for the root.
func (n *Node) Parent() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent
}

// HasKind reports whether n is tagged with k.
func (n *Node) HasKind(k Kind) bool { return n.kind == k }

// AncestorOfKind walks up the parent chain and returns the nearest ancestor tagged k,
// or nil if none exists.
func (n *Node) AncestorOfKind(k Kind) *Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.HasKind(k) {
			return p
		}
	}
	return nil
}

// GetProperty returns the named property and whether it is set.
func (n *Node) GetProperty(name string) (Value, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.props[name]
	return v, ok
}

// SetProperty sets the named property, firing PropertyChanged synchronously.
func (n *Node) SetProperty(name string, v Value) {
	n.mu.Lock()
	old := n.props[name]
	n.props[name] = v
	n.mu.Unlock()
	n.tree.notify(Event{Kind: PropertyChanged, Node: n, Parent: n.Parent(), Property: name, OldValue: old, NewValue: v})
}

// Properties returns a snapshot copy of every property set on n.
func (n *Node) Properties() map[string]Value {
	n.mu.RLock()
	defer n.mu.RUnlock()
	cp := make(map[string]Value, len(n.props))
	for k, v := range n.props {
		cp[k] = v
	}
	return cp
}

// Children returns a snapshot copy of n's children, in insertion order.
func (n *Node) Children() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	cp := make([]*Node, len(n.children))
	copy(cp, n.children)
	return cp
}

// ChildWithProperty returns the first child whose named property equals v, or nil.
func (n *Node) ChildWithProperty(name string, v Value) *Node {
	for _, c := range n.Children() {
		if cv, ok := c.GetProperty(name); ok && cv.equal(v) {
			return c
		}
	}
	return nil
}

// ChildOfKindWithProperty is ChildWithProperty additionally filtered by kind; most
// callers know both (e.g. "the Service child whose uuid is X").
func (n *Node) ChildOfKindWithProperty(k Kind, name string, v Value) *Node {
	for _, c := range n.Children() {
		if !c.HasKind(k) {
			continue
		}
		if cv, ok := c.GetProperty(name); ok && cv.equal(v) {
			return c
		}
	}
	return nil
}

// AppendChild creates a new, persisted child of kind k with the given initial
// properties, appends it, and fires ChildAdded synchronously.
func (n *Node) AppendChild(k Kind, props map[string]Value) *Node {
	child := newNode(n.tree, k, props)
	child.parent = n

	n.mu.Lock()
	n.children = append(n.children, child)
	n.mu.Unlock()

	n.tree.notify(Event{Kind: ChildAdded, Node: child, Parent: n})
	return child
}

// RemoveChild removes child from n's children and fires ChildRemoved synchronously. It
// reports whether child was actually found.
func (n *Node) RemoveChild(child *Node) bool {
	n.mu.Lock()
	found := -1
	for i, c := range n.children {
		if c == child {
			found = i
			break
		}
	}
	if found >= 0 {
		n.children = append(n.children[:found], n.children[found+1:]...)
	}
	n.mu.Unlock()

	if found < 0 {
		return false
	}
	n.tree.notify(Event{Kind: ChildRemoved, Node: child, Parent: n})
	return true
}

// Command delivers a transient command: child is appended (firing ChildAdded), and
// then immediately removed (firing ChildRemoved), both before Command returns. This is
// the sole mechanism by which the seven command kinds are conveyed — a listener that
// only reacts to ChildAdded sees the command exactly once, synchronously, and the tree
// never retains it. filterChildren (used by SCAN's service-UUID filter list) are
// attached under the command node before it is announced and are only reachable for
// the duration of the callback.
func (n *Node) Command(kind Kind, props map[string]Value, filterChildren ...*Node) *Node {
	cmd := newNode(n.tree, kind, props)
	cmd.parent = n
	for _, fc := range filterChildren {
		fc.parent = cmd
		fc.tree = n.tree
		cmd.children = append(cmd.children, fc)
	}

	n.mu.Lock()
	n.children = append(n.children, cmd)
	n.mu.Unlock()
	n.tree.notify(Event{Kind: ChildAdded, Node: cmd, Parent: n})

	n.mu.Lock()
	for i, c := range n.children {
		if c == cmd {
			n.children = append(n.children[:i], n.children[i+1:]...)
			break
		}
	}
	n.mu.Unlock()
	n.tree.notify(Event{Kind: ChildRemoved, Node: cmd, Parent: n})

	return cmd
}

// NewServiceFilter builds a detached leaf node representing one UUID entry in a SCAN
// command's inclusion filter.
func NewServiceFilter(uuid string) *Node {
	return &Node{kind: kindServiceFilter, props: map[string]Value{PropUUID: UUID(uuid)}}
}

// SetBackendRef stores a backend-opaque key on a Service/Characteristic node. The core
// never interprets this value.
func (n *Node) SetBackendRef(ref string) {
	n.SetProperty(propBackendRef, String(ref))
}

// BackendRef returns the backend-opaque key previously stored with SetBackendRef.
func (n *Node) BackendRef() (string, bool) {
	v, ok := n.GetProperty(propBackendRef)
	if !ok {
		return "", false
	}
	return v.AsStringOK()
}

func (v Value) equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case typeString, typeUUID:
		return v.str == o.str
	case typeInt:
		return v.num == o.num
	case typeBool:
		return v.boo == o.boo
	case typeBytes:
		if len(v.bytes) != len(o.bytes) {
			return false
		}
		for i := range v.bytes {
			if v.bytes[i] != o.bytes[i] {
				return false
			}
		}
		return true
	default:
		return true
	}
}
