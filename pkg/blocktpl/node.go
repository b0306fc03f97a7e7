package blocktpl

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"sort"
)

// Scope is the name to value mapping threaded through a render pass.
type Scope map[string]string

func (s Scope) clone() Scope {
	c := make(Scope, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

type indexEntry struct {
	enabled bool
	elem    int
}

// Node is one nesting level of a template: an ordered set of elements plus
// the name tables used to address them.
//
// Elements are never removed. The index layer maps render positions to
// elements and carries the enabled bit; the order holds index positions and
// is the only table that is spliced into.
type Node struct {
	parent *Node
	block  *Block
	cond   *Conditional

	forced bool

	// elements is append-only; each element appears once.
	elements []Element
	// index entries point at elements; an element may be indexed many times.
	index []indexEntry
	// order holds positions into index in render order.
	order []int

	segments map[string][]int // segment name -> index positions
	vars     map[string]int   // variable name -> element
	blocks   map[string]int   // block name -> element
	options  map[string]string

	onRender handlers
	onLoad   handlers
}

// NewNode returns an empty, parentless node.
func NewNode() *Node {
	return &Node{}
}

// Parent returns the enclosing node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// ParentBlock returns the nearest enclosing Block, skipping conditionals.
func (n *Node) ParentBlock() *Block {
	for p := n.parent; p != nil; p = p.parent {
		if p.block != nil {
			return p.block
		}
	}
	return nil
}

// Clear drops every element, table and option. Parent links and event
// subscriptions are kept.
func (n *Node) Clear() {
	n.elements = nil
	n.index = nil
	n.order = nil
	n.segments = nil
	n.vars = nil
	n.blocks = nil
	n.options = nil
	n.forced = false
}

// Load parses a template from r into n, replacing its contents. On error n is
// left empty.
func (n *Node) Load(r io.Reader) error {
	n.Clear()
	if err := parse(n, r); err != nil {
		n.Clear()
		return err
	}
	return nil
}

// Block finds a direct child block by name.
func (n *Node) Block(name string) *Block {
	if i, ok := n.blocks[name]; ok {
		return n.elements[i].(*Block)
	}
	return nil
}

func (n *Node) HasBlock(name string) bool {
	_, ok := n.blocks[name]
	return ok
}

func (n *Node) HasVar(name string) bool {
	_, ok := n.vars[name]
	return ok
}

// Blocks returns the registered child blocks in render order.
func (n *Node) Blocks() []*Block {
	out := make([]*Block, 0, len(n.blocks))
	seen := make(map[int]bool, len(n.blocks))
	for _, pos := range n.order {
		i := n.index[pos].elem
		if b, ok := n.elements[i].(*Block); ok && !seen[i] {
			seen[i] = true
			out = append(out, b)
		}
	}
	return out
}

// Vars returns the declared variables in declaration order.
func (n *Node) Vars() []*Variable {
	idx := make([]int, 0, len(n.vars))
	for _, i := range n.vars {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]*Variable, len(idx))
	for j, i := range idx {
		out[j] = n.elements[i].(*Variable)
	}
	return out
}

// Options returns a copy of the options declared by opt tags in this node.
func (n *Node) Options() map[string]string {
	if n.options == nil {
		return map[string]string{}
	}
	return maps.Clone(n.options)
}

func (n *Node) Option(key string) (string, bool) {
	v, ok := n.options[key]
	return v, ok
}

// Var finds or creates the variable name.
func (n *Node) Var(name string) *Variable {
	if i, ok := n.vars[name]; ok {
		return n.elements[i].(*Variable)
	}
	v := &Variable{name: name}
	n.registerVar(name, n.addElement(v))
	return v
}

// GetVar returns the value of name, or the empty string if it is unset or
// undeclared.
func (n *Node) GetVar(name string) string {
	if i, ok := n.vars[name]; ok {
		return n.elements[i].(*Variable).value
	}
	return ""
}

// SetVar sets name to value, declaring it when needed.
func (n *Node) SetVar(name, value string) *Variable {
	v := n.Var(name)
	v.Set(value)
	return v
}

// Complete reports whether the node renders without help from the scope:
// every declared variable carries a value, or it was forced complete.
func (n *Node) Complete() bool {
	if n.forced {
		return true
	}
	for _, i := range n.vars {
		if !n.elements[i].(*Variable).set {
			return false
		}
	}
	return true
}

// ForceComplete makes the node render even when some of its variables are
// satisfied neither by a value nor by the scope.
func (n *Node) ForceComplete() { n.forced = true }

// EnableSegment enables every render position of the named segment.
func (n *Node) EnableSegment(name string) { n.toggleSegment(name, true) }

// DisableSegment disables every render position of the named segment.
func (n *Node) DisableSegment(name string) { n.toggleSegment(name, false) }

// SegmentEnabled reports whether any position of the named segment is enabled.
func (n *Node) SegmentEnabled(name string) bool {
	for _, pos := range n.segments[name] {
		if n.index[pos].enabled {
			return true
		}
	}
	return false
}

// Segments returns the names of the segments declared in this node.
func (n *Node) Segments() []string {
	names := slices.Collect(maps.Keys(n.segments))
	sort.Strings(names)
	return names
}

func (n *Node) toggleSegment(name string, on bool) {
	for _, pos := range n.segments[name] {
		n.index[pos].enabled = on
	}
}

// AddBlock appends a new empty block to the render order.
func (n *Node) AddBlock(name string) (*Block, error) {
	if err := n.checkNewBlock(name); err != nil {
		return nil, err
	}
	b := n.newBlock(name)
	n.order = append(n.order, n.addIndex(n.registerBlock(name, b), ""))
	return b, nil
}

// InsertBlock prepends a new empty block to the render order.
func (n *Node) InsertBlock(name string) (*Block, error) {
	if err := n.checkNewBlock(name); err != nil {
		return nil, err
	}
	b := n.newBlock(name)
	n.order = slices.Insert(n.order, 0, n.addIndex(n.registerBlock(name, b), ""))
	return b, nil
}

// AddBlockAt adds a new block directly after the block named after.
func (n *Node) AddBlockAt(name, after string) (*Block, error) {
	return n.spliceBlock(name, after, 1)
}

// InsertBlockAt inserts a new block directly before the block named before.
func (n *Node) InsertBlockAt(name, before string) (*Block, error) {
	return n.spliceBlock(name, before, 0)
}

func (n *Node) spliceBlock(name, anchor string, offset int) (*Block, error) {
	at := n.orderOfBlock(anchor)
	if at < 0 {
		return nil, fmt.Errorf("%w: %q", ErrBlockNotFound, anchor)
	}
	if err := n.checkNewBlock(name); err != nil {
		return nil, err
	}
	b := n.newBlock(name)
	n.order = slices.Insert(n.order, at+offset, n.addIndex(n.registerBlock(name, b), ""))
	n.loadBlock(b)
	return b, nil
}

// Attach grafts a detached block, usually a Copy, as the last child of n.
// Values set in n and its ancestors fill the block's unset variables.
func (n *Node) Attach(b *Block) error {
	for p := n; p != nil; p = p.parent {
		if p == &b.Node {
			return fmt.Errorf("attach %q: %w", b.name, ErrAttached)
		}
	}
	if b.Node.parent != nil {
		return fmt.Errorf("attach %q: %w", b.name, ErrAttached)
	}
	if err := n.checkNewBlock(b.name); err != nil {
		return err
	}
	n.order = append(n.order, n.addIndex(n.registerBlock(b.name, b), ""))
	b.Node.parent = n
	b.refreshPaths()
	n.newChild(&b.Node)
	n.onLoad.fire(b)
	return nil
}

func (n *Node) checkNewBlock(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if n.HasBlock(name) {
		return fmt.Errorf("%w: %q", ErrDuplicateBlock, name)
	}
	return nil
}

// orderOfBlock returns the order position rendering the named block, or -1.
func (n *Node) orderOfBlock(name string) int {
	i, ok := n.blocks[name]
	if !ok {
		return -1
	}
	for at, pos := range n.order {
		if n.index[pos].elem == i {
			return at
		}
	}
	return -1
}

// loadBlock hands a freshly spliced block the values set in n.
func (n *Node) loadBlock(b *Block) {
	for _, v := range n.Vars() {
		if v.set && v.value != "" {
			b.SetVar(v.name, v.value)
		}
	}
	n.onLoad.fire(b)
}

// newChild pushes values set in n and its ancestors down into child's unset
// variables, nearest ancestor first.
func (n *Node) newChild(child *Node) {
	for p := n; p != nil; p = p.parent {
		if child.Complete() {
			return
		}
		for name, i := range child.vars {
			cv := child.elements[i].(*Variable)
			if cv.set {
				continue
			}
			if pi, ok := p.vars[name]; ok {
				if pv := p.elements[pi].(*Variable); pv.set {
					cv.Set(pv.value)
				}
			}
		}
	}
}

func (n *Node) newBlock(name string) *Block {
	b := newBlock(name)
	b.Node.parent = n
	b.path = b.computePath()
	return b
}

func (n *Node) addElement(e Element) int {
	n.elements = append(n.elements, e)
	return len(n.elements) - 1
}

// addIndex adds an enabled index entry for elem and returns its position.
func (n *Node) addIndex(elem int, segment string) int {
	pos := len(n.index)
	n.index = append(n.index, indexEntry{enabled: true, elem: elem})
	if segment != "" {
		if n.segments == nil {
			n.segments = map[string][]int{}
		}
		n.segments[segment] = append(n.segments[segment], pos)
	}
	return pos
}

func (n *Node) registerVar(name string, elem int) {
	if n.vars == nil {
		n.vars = map[string]int{}
	}
	if _, ok := n.vars[name]; !ok {
		n.vars[name] = elem
	}
}

func (n *Node) registerBlock(name string, b *Block) int {
	i := n.addElement(b)
	if n.blocks == nil {
		n.blocks = map[string]int{}
	}
	if _, ok := n.blocks[name]; !ok {
		n.blocks[name] = i
	}
	return i
}

func (n *Node) setOption(key, value string) {
	if n.options == nil {
		n.options = map[string]string{}
	}
	if _, ok := n.options[key]; !ok {
		n.options[key] = value
	}
}

// appendSegment adds literal text at the end of the render order.
func (n *Node) appendSegment(text, segment string) {
	if text == "" {
		return
	}
	n.order = append(n.order, n.addIndex(n.addElement(&Segment{text: text}), segment))
}

// appendVariable renders name at the end of the render order, reusing an
// already declared variable of the same name.
func (n *Node) appendVariable(name, segment string) {
	i, ok := n.vars[name]
	if !ok {
		i = n.addElement(&Variable{name: name})
		n.registerVar(name, i)
	}
	n.order = append(n.order, n.addIndex(i, segment))
}

func (n *Node) appendBlock(name, segment string) *Block {
	b := n.newBlock(name)
	n.order = append(n.order, n.addIndex(n.registerBlock(name, b), segment))
	return b
}

func (n *Node) appendConditional(expr string) *Conditional {
	c := newConditional(expr)
	c.Node.parent = n
	n.order = append(n.order, n.addIndex(n.addElement(c), ""))
	return c
}

// cloneFrom replaces n's contents with a deep copy of src. Parent links and
// event subscriptions of n are kept.
func (n *Node) cloneFrom(src *Node) {
	n.elements = make([]Element, len(src.elements))
	for i, e := range src.elements {
		n.elements[i] = e.copy()
	}
	n.index = slices.Clone(src.index)
	n.order = slices.Clone(src.order)
	n.segments = nil
	if src.segments != nil {
		n.segments = make(map[string][]int, len(src.segments))
		for k, v := range src.segments {
			n.segments[k] = slices.Clone(v)
		}
	}
	n.vars = maps.Clone(src.vars)
	n.blocks = maps.Clone(src.blocks)
	n.options = maps.Clone(src.options)
	n.forced = src.forced
	for _, e := range n.elements {
		switch c := e.(type) {
		case *Block:
			c.Node.parent = n
		case *Conditional:
			c.Node.parent = n
		}
	}
}

// refreshPaths recomputes the path of every block at or below n.
func (n *Node) refreshPaths() {
	if n.block != nil {
		n.block.path = n.block.computePath()
	}
	for _, e := range n.elements {
		switch c := e.(type) {
		case *Block:
			c.refreshPaths()
		case *Conditional:
			c.refreshPaths()
		}
	}
}

// top returns the outermost ancestor of n, or nil when n has no parent.
func (n *Node) top() *Node {
	if n.parent == nil {
		return nil
	}
	t := n.parent
	for t.parent != nil {
		t = t.parent
	}
	return t
}

// Render renders the node body against scope.
func (n *Node) Render(w io.Writer, scope Scope) error {
	return renderTo(w, scope, n.renderBody)
}

// renderBody runs the variable pass and, when every variable is satisfied,
// renders the enabled entries in order. r.vars must already be private to n.
func (n *Node) renderBody(r *renderer) {
	satisfied := 0
	for name, i := range n.vars {
		v := n.variableAt(i)
		if v.set {
			r.vars[name] = v.value
			satisfied++
		} else if _, ok := r.vars[name]; ok {
			satisfied++
		}
	}
	if satisfied != len(n.vars) && !n.forced {
		return
	}
	for _, pos := range n.order {
		if pos < 0 || pos >= len(n.index) {
			panic(ErrCorruptOrder)
		}
		entry := n.index[pos]
		if entry.elem < 0 || entry.elem >= len(n.elements) {
			panic(ErrCorruptOrder)
		}
		if !entry.enabled {
			continue
		}
		n.elements[entry.elem].render(r)
	}
}

func (n *Node) variableAt(i int) *Variable {
	if i < 0 || i >= len(n.elements) {
		panic(ErrCorruptOrder)
	}
	return n.elements[i].(*Variable)
}

type renderer struct {
	buf  *bytes.Buffer
	vars Scope
}

// descend returns a renderer sharing the output with a private scope copy.
func (r *renderer) descend() *renderer {
	return &renderer{buf: r.buf, vars: r.vars.clone()}
}

func renderTo(w io.Writer, scope Scope, fn func(*renderer)) error {
	var buf bytes.Buffer
	fn(&renderer{buf: &buf, vars: scope.clone()})
	_, err := buf.WriteTo(w)
	return err
}
