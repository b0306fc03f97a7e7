package blocktpl

import (
	"io"
	"strings"
)

// Conditional renders its body only when the scope holds a non-empty value
// for its expression.
type Conditional struct {
	Node

	expr string
}

func newConditional(expr string) *Conditional {
	c := &Conditional{expr: expr}
	c.Node.cond = c
	return c
}

func (c *Conditional) Kind() Kind { return KindConditional }

// Expr is the scope name the conditional tests.
func (c *Conditional) Expr() string { return c.expr }

func (c *Conditional) copy() Element {
	n := newConditional(c.expr)
	n.Node.cloneFrom(&c.Node)
	return n
}

// Render renders the conditional against scope and writes the result to w.
func (c *Conditional) Render(w io.Writer, scope Scope) error {
	return renderTo(w, scope, c.render)
}

// RenderString renders the conditional against scope.
func (c *Conditional) RenderString(scope Scope) string {
	var sb strings.Builder
	_ = c.Render(&sb, scope)
	return sb.String()
}

func (c *Conditional) render(r *renderer) {
	if r.vars[c.expr] == "" {
		return
	}
	c.Node.renderBody(r.descend())
}
