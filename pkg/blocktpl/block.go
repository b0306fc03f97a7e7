package blocktpl

import (
	"io"
	"maps"
	"slices"
	"strings"
)

// Row is one set of values for a repeated block.
type Row map[string]string

// Block is a named, addressable Node. It renders only while enabled and,
// when it holds rows, renders its body once per row.
type Block struct {
	Node

	name    string
	path    string
	enabled bool
	rows    []Row
}

func newBlock(name string) *Block {
	b := &Block{name: name, path: name, enabled: true}
	b.Node.block = b
	return b
}

// NewBlock returns a detached, empty block. A root template is a block with
// an empty name.
func NewBlock(name string) *Block {
	return newBlock(name)
}

// Parse reads a template into a new root block.
func Parse(r io.Reader) (*Block, error) {
	b := newBlock("")
	if err := parse(&b.Node, r); err != nil {
		return nil, err
	}
	return b, nil
}

// ParseString is Parse for in-memory sources.
func ParseString(src string) (*Block, error) {
	return Parse(strings.NewReader(src))
}

func (b *Block) Kind() Kind { return KindBlock }

func (b *Block) Name() string { return b.name }

// Path is the slash-joined chain of enclosing block names ending with this
// block's name. The outermost block of a tree is not part of any path.
func (b *Block) Path() string { return b.path }

func (b *Block) Enabled() bool { return b.enabled }

// Enable switches the block on or off independently of its completeness.
func (b *Block) Enable(on bool) { b.enabled = on }

// Rows returns the block's value rows.
func (b *Block) Rows() []Row { return b.rows }

// SetRows replaces the value rows.
func (b *Block) SetRows(rows []Row) {
	b.rows = cloneRows(rows)
}

// AddRow appends a value row. The first row also becomes the block's
// variable values so the block renders sensibly before any repetition.
func (b *Block) AddRow(row Row) {
	if len(b.rows) == 0 {
		for _, k := range slices.Sorted(maps.Keys(row)) {
			b.SetVar(k, row[k])
		}
	}
	b.rows = append(b.rows, maps.Clone(row))
}

func (b *Block) ClearRows() { b.rows = nil }

// Find resolves a slash-separated path of block names relative to b. Blocks
// nested in conditionals are found as if the conditional were not there.
func (b *Block) Find(path string) *Block {
	path = strings.Trim(path, "/")
	if path == "" {
		return b
	}
	cur := b
	for _, name := range strings.Split(path, "/") {
		next := cur.Node.lookup(name)
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

func (n *Node) lookup(name string) *Block {
	if b := n.Block(name); b != nil {
		return b
	}
	for _, e := range n.elements {
		if c, ok := e.(*Conditional); ok {
			if b := c.Node.lookup(name); b != nil {
				return b
			}
		}
	}
	return nil
}

// Copy returns a detached deep copy of b. Event subscriptions are not copied.
func (b *Block) Copy() *Block {
	c := &Block{name: b.name, enabled: b.enabled, rows: cloneRows(b.rows)}
	c.Node.block = c
	c.Node.cloneFrom(&b.Node)
	c.refreshPaths()
	return c
}

// Assign replaces b's contents with a deep copy of src while keeping b's
// name, parent and enabled state. Values set in b's ancestors then fill any
// variables of the copy that are still unset.
func (b *Block) Assign(src *Block) {
	if src == b {
		return
	}
	b.Node.cloneFrom(&src.Node)
	b.rows = cloneRows(src.rows)
	b.refreshPaths()
	if b.Node.parent != nil {
		b.Node.parent.newChild(&b.Node)
	}
}

func (b *Block) copy() Element { return b.Copy() }

func (b *Block) computePath() string {
	var names []string
	if b.name != "" {
		names = append(names, b.name)
	}
	for p := b.Node.parent; p != nil && p.parent != nil; p = p.parent {
		if p.block != nil && p.block.name != "" {
			names = append(names, p.block.name)
		}
	}
	slices.Reverse(names)
	return strings.Join(names, "/")
}

// Render renders the block against scope and writes the result to w.
func (b *Block) Render(w io.Writer, scope Scope) error {
	return renderTo(w, scope, b.render)
}

// RenderString renders the block against scope.
func (b *Block) RenderString(scope Scope) string {
	var sb strings.Builder
	_ = b.Render(&sb, scope)
	return sb.String()
}

func (b *Block) render(r *renderer) {
	if top := b.Node.top(); top != nil {
		top.onRender.fire(b)
	}
	b.onRender.fire(b)

	if !b.enabled {
		return
	}
	scope := r.descend()
	for _, v := range b.Vars() {
		if v.set {
			scope.vars[v.name] = v.value
		}
	}
	if len(b.rows) == 0 {
		b.Node.renderBody(scope)
		return
	}
	// one element tree, rendered once per row by rewriting its variables
	for _, row := range b.rows {
		for k, v := range row {
			b.SetVar(k, v)
		}
		b.Node.renderBody(scope.descend())
	}
}

func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = maps.Clone(r)
	}
	return out
}
