package tree

import "sync"

// Tree owns the root Node and the tree-wide listener multiplexer. There is one
// listener list for the whole tree rather than one per Node: cheaper to maintain, and
// every mutation already carries enough information (Node, Parent) for a listener to
// filter by kind or ancestor itself (see Node.AncestorOfKind).
type Tree struct {
	mu        sync.Mutex
	root      *Node
	listeners []Listener
}

// New creates a Tree whose root is a single node of the given kind (normally
// KindAdapter).
func New(rootKind Kind) *Tree {
	t := &Tree{}
	t.root = &Node{tree: t, kind: rootKind, props: map[string]Value{}}
	return t
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node { return t.root }

// Listen registers fn to be invoked for every Event in this tree, in registration
// order. It returns an unsubscribe function.
func (t *Tree) Listen(fn Listener) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := len(t.listeners)
	t.listeners = append(t.listeners, fn)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if idx < len(t.listeners) {
			t.listeners[idx] = nil
		}
	}
}

// notify fires ev to every listener currently registered, in registration order. Callers
// must not hold a Node's lock while calling notify, since a listener is free to mutate
// the tree.
func (t *Tree) notify(ev Event) {
	t.mu.Lock()
	snapshot := make([]Listener, len(t.listeners))
	copy(snapshot, t.listeners)
	t.mu.Unlock()

	for _, fn := range snapshot {
		if fn != nil {
			fn(ev)
		}
	}
}
