package blocktpl

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Entry is one render position seen by a Visitor.
type Entry struct {
	Element Element
	Enabled bool
	Segment string // segment name owning the position, if any
	Depth   int
}

type Visitor interface {
	Visit(e Entry) error
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(e Entry) error

func (f VisitorFunc) Visit(e Entry) error { return f(e) }

// Walk visits every render position below n in order, descending into blocks
// and conditionals. Disabled positions are visited too.
func Walk(v Visitor, n *Node) error {
	return walk(v, n, 0)
}

func walk(v Visitor, n *Node, depth int) error {
	owner := make(map[int]string)
	for name, positions := range n.segments {
		for _, pos := range positions {
			owner[pos] = name
		}
	}
	for _, pos := range n.order {
		entry := n.index[pos]
		e := n.elements[entry.elem]
		if err := v.Visit(Entry{Element: e, Enabled: entry.enabled, Segment: owner[pos], Depth: depth}); err != nil {
			return err
		}
		switch t := e.(type) {
		case *Block:
			if err := walk(v, &t.Node, depth+1); err != nil {
				return err
			}
		case *Conditional:
			if err := walk(v, &t.Node, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Pretty returns a line-oriented dump of the tree below b.
func Pretty(b *Block) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Block(%s)%s\n", b.name, describeNode(&b.Node))
	_ = Walk(VisitorFunc(func(e Entry) error {
		buf.WriteString(strings.Repeat("  ", e.Depth+1))
		buf.WriteString(Describe(e))
		buf.WriteByte('\n')
		return nil
	}), &b.Node)
	return buf.String()
}

// Describe renders a single entry the way Pretty does, without indentation.
func Describe(e Entry) string {
	var s string
	switch t := e.Element.(type) {
	case *Segment:
		s = fmt.Sprintf("Text(%q)", t.text)
	case *Variable:
		if t.set {
			s = fmt.Sprintf("Var(%s = %q)", t.name, t.value)
		} else {
			s = fmt.Sprintf("Var(%s)", t.name)
		}
	case *Block:
		s = fmt.Sprintf("Block(%s path=%q)", t.name, t.path)
		if !t.enabled {
			s += " hidden"
		}
		if len(t.rows) > 0 {
			s += fmt.Sprintf(" rows=%d", len(t.rows))
		}
		s += describeNode(&t.Node)
	case *Conditional:
		s = fmt.Sprintf("If(%s)", t.expr)
	}
	if e.Segment != "" {
		s += " seg=" + e.Segment
	}
	if !e.Enabled {
		s += " disabled"
	}
	return s
}

func describeNode(n *Node) string {
	if len(n.options) == 0 {
		return ""
	}
	keys := make([]string, 0, len(n.options))
	for k := range n.options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + n.options[k]
	}
	return " opts[" + strings.Join(parts, " ") + "]"
}
