package blocktpl

// Kind identifies one of the four element variants.
type Kind int

const (
	KindSegment Kind = iota
	KindVariable
	KindBlock
	KindConditional
)

func (k Kind) String() string {
	switch k {
	case KindSegment:
		return "segment"
	case KindVariable:
		return "var"
	case KindBlock:
		return "block"
	case KindConditional:
		return "if"
	}
	return "unknown"
}

// Element is any renderable member of a Node. The set of implementations is
// closed: *Segment, *Variable, *Block and *Conditional.
type Element interface {
	Kind() Kind
	render(r *renderer)
	copy() Element
}

// Segment is a literal run of template text.
type Segment struct {
	text string
}

func (s *Segment) Kind() Kind    { return KindSegment }
func (s *Segment) Text() string  { return s.text }
func (s *Segment) copy() Element { return &Segment{text: s.text} }

func (s *Segment) render(r *renderer) {
	r.buf.WriteString(s.text)
}

// Variable is a named value. An unset variable takes its value from the scope
// it is rendered in; a set variable always renders its own value.
type Variable struct {
	name  string
	value string
	set   bool
}

func (v *Variable) Kind() Kind   { return KindVariable }
func (v *Variable) Name() string { return v.name }

// Value returns the variable's own value and whether one is set.
func (v *Variable) Value() (string, bool) { return v.value, v.set }

// String returns the value, or the empty string when unset.
func (v *Variable) String() string { return v.value }

func (v *Variable) HasValue() bool { return v.set }

func (v *Variable) Set(value string) {
	v.value = value
	v.set = true
}

// Unset clears the value so the variable reads from scope again.
func (v *Variable) Unset() {
	v.value = ""
	v.set = false
}

func (v *Variable) copy() Element {
	c := *v
	return &c
}

func (v *Variable) render(r *renderer) {
	if v.set {
		r.buf.WriteString(v.value)
		return
	}
	r.buf.WriteString(r.vars[v.name])
}

var (
	_ Element = &Segment{}
	_ Element = &Variable{}
	_ Element = &Block{}
	_ Element = &Conditional{}
)
