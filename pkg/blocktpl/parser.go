package blocktpl

import (
	"fmt"
	"io"
	"strings"
)

// The template language is a set of {%name[:param]%} tags embedded in
// literal text:
//
//	{%var:x%}              substitute x
//	{%block:b%}            declare an empty block b at this position
//	{%begin:b%}..{%end:b%} block b with a body
//	{%if:x%}..{%endif%}    body rendered when x is non-empty in scope
//	{%seg:s%}..{%end:s%}   text toggled as segment s
//	{%opt:key=value%}      option of the enclosing block
//
// Tags with an unknown name or a malformed param are left in the output.

var tagNames = map[string]bool{
	"opt": true, "seg": true, "begin": true, "end": true,
	"if": true, "endif": true, "var": true, "block": true,
}

var reservedNames = map[string]bool{
	"block": true, "var": true, "blocks": true, "vars": true,
}

func isNameChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func validParam(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isNameChar(s[i]) {
			return false
		}
	}
	return true
}

// checkName validates a block or variable name.
func checkName(name string) error {
	switch {
	case name == "":
		return ErrMissingName
	case !validParam(name):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case reservedNames[name]:
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	return nil
}

// splitTag splits the inside of a {%...%} tag and reports whether it is a tag
// of the language at all.
func splitTag(inside string) (name, param string, ok bool) {
	name, param, _ = strings.Cut(inside, ":")
	name = strings.ToLower(name)
	if !tagNames[name] {
		return "", "", false
	}
	if name != "opt" && !validParam(param) {
		return "", "", false
	}
	return name, param, true
}

type parser struct {
	root    *Node
	stack   []*Node // open blocks and conditionals, innermost last
	buf     strings.Builder
	segment string
	line    int
}

func parse(root *Node, r io.Reader) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}
	p := &parser{root: root}
	lines := strings.Split(string(src), "\n")
	skipNL := false
	for i, line := range lines {
		p.line = i + 1
		if i > 0 && !skipNL {
			p.buf.WriteByte('\n')
		}
		if skipNL, err = p.scanLine(line); err != nil {
			return &LoadError{Line: p.line, Err: err}
		}
	}
	if len(p.stack) > 0 {
		return &LoadError{Line: p.line, Err: fmt.Errorf("%w: %s", ErrUnclosedBlock, p.describe(p.top()))}
	}
	if p.segment != "" {
		return &LoadError{Line: p.line, Err: fmt.Errorf("%w: %q", ErrUnclosedSegment, p.segment)}
	}
	p.flush(root, "")
	return nil
}

// scanLine consumes one line and reports whether the newline that follows it
// should be dropped.
func (p *parser) scanLine(line string) (skipNL bool, err error) {
	var kept strings.Builder
	start, cur := 0, 0
	for cur < len(line) {
		open := strings.Index(line[cur:], "{%")
		if open < 0 {
			break
		}
		open += cur
		cls := strings.Index(line[open+2:], "%}")
		if cls < 0 {
			break
		}
		cls += open + 2
		end := cls + 2

		name, param, ok := splitTag(line[open+2 : cls])
		if !ok {
			cur = end
			continue
		}
		text := line[start:open]
		p.buf.WriteString(text)
		kept.WriteString(text)
		if err := p.tag(name, param); err != nil {
			return false, err
		}
		if name != "var" && name != "block" {
			skipNL = strings.TrimSpace(kept.String()+line[end:]) == ""
		}
		start, cur = end, end
	}
	p.buf.WriteString(line[start:])
	return skipNL, nil
}

func (p *parser) top() *Node {
	if len(p.stack) == 0 {
		return p.root
	}
	return p.stack[len(p.stack)-1]
}

func (p *parser) push(n *Node) { p.stack = append(p.stack, n) }
func (p *parser) pop()         { p.stack = p.stack[:len(p.stack)-1] }

// flush moves the buffered text into n as a segment.
func (p *parser) flush(n *Node, segment string) {
	n.appendSegment(p.buf.String(), segment)
	p.buf.Reset()
}

func (p *parser) describe(n *Node) string {
	switch {
	case n.block != nil:
		return fmt.Sprintf("block %q", n.block.name)
	case n.cond != nil:
		return fmt.Sprintf("if %q", n.cond.expr)
	}
	return "template"
}

func (p *parser) tag(name, param string) error {
	top := p.top()
	switch name {
	case "opt":
		// text before an option never belongs to the open segment
		p.flush(top, "")
		key, value, _ := strings.Cut(param, "=")
		top.setOption(key, value)

	case "seg":
		if p.segment != "" {
			return fmt.Errorf("%w: %q inside %q", ErrNestedSegment, param, p.segment)
		}
		if param == "" {
			return fmt.Errorf("seg: %w", ErrMissingName)
		}
		p.flush(top, "")
		p.segment = param

	case "begin":
		if p.segment != "" {
			return fmt.Errorf("%w: block %q inside %q", ErrBlockInSegment, param, p.segment)
		}
		if err := checkName(param); err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if top.HasBlock(param) {
			return fmt.Errorf("%w: %q", ErrDuplicateBlock, param)
		}
		p.flush(top, "")
		p.push(&top.appendBlock(param, "").Node)

	case "end":
		if p.segment != "" {
			if param != p.segment {
				return fmt.Errorf("%w: expected segment %q, got %q", ErrEndMismatch, p.segment, param)
			}
			p.flush(top, p.segment)
			p.segment = ""
			return nil
		}
		if len(p.stack) == 0 || top.block == nil {
			return fmt.Errorf("%w: %q", ErrUnexpectedEnd, param)
		}
		if param != top.block.name {
			return fmt.Errorf("%w: expected block %q, got %q", ErrEndMismatch, top.block.name, param)
		}
		p.flush(top, "")
		p.pop()

	case "if":
		if p.segment != "" {
			return fmt.Errorf("%w: if %q inside %q", ErrBlockInSegment, param, p.segment)
		}
		if param == "" {
			return fmt.Errorf("if: %w", ErrMissingName)
		}
		p.flush(top, "")
		p.push(&top.appendConditional(param).Node)

	case "endif":
		if param != "" {
			return fmt.Errorf("%w: %q", ErrEndifParam, param)
		}
		if len(p.stack) == 0 || top.cond == nil {
			return ErrUnexpectedEndif
		}
		if p.segment != "" {
			return fmt.Errorf("%w: %q", ErrEndifInSegment, p.segment)
		}
		p.flush(top, "")
		p.pop()

	case "var":
		if err := checkName(param); err != nil {
			return fmt.Errorf("var: %w", err)
		}
		p.flush(top, p.segment)
		top.appendVariable(param, p.segment)

	case "block":
		if err := checkName(param); err != nil {
			return fmt.Errorf("block: %w", err)
		}
		if top.HasBlock(param) {
			return fmt.Errorf("%w: %q", ErrDuplicateBlock, param)
		}
		p.flush(top, p.segment)
		top.appendBlock(param, p.segment)
	}
	return nil
}
