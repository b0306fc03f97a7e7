package blocktpl

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRows(t *testing.T) {
	root := mustParse(t, "{%begin:r%}{%var:x%}{%end:r%}")
	r := root.Block("r")
	r.SetRows([]Row{{"x": "1"}, {"x": "2"}})
	if got := root.RenderString(nil); got != "12" {
		t.Fatalf("got %q", got)
	}
	if got := r.GetVar("x"); got != "2" {
		t.Fatalf("last row not left in place: %q", got)
	}

	r.ClearRows()
	r.AddRow(Row{"x": "a"})
	if got := r.GetVar("x"); got != "a" {
		t.Fatalf("first row did not seed variables: %q", got)
	}
	r.AddRow(Row{"x": "b"})
	if got := r.GetVar("x"); got != "a" {
		t.Fatalf("second row overwrote variables: %q", got)
	}
	if got := root.RenderString(nil); got != "ab" {
		t.Fatalf("got %q", got)
	}
}

func TestRowsDoNotLeakBetweenRows(t *testing.T) {
	root := mustParse(t, "{%begin:r%}{%var:a%}{%begin:inner%}{%var:b%}{%end:inner%};{%end:r%}")
	r := root.Block("r")
	r.SetRows([]Row{{"a": "1", "b": "x"}, {"a": "2"}})
	// the second row keeps b from the first since the tree is rewritten in place
	if got := root.RenderString(nil); got != "1x;2x;" {
		t.Fatalf("got %q", got)
	}
}

func TestEnableBlock(t *testing.T) {
	root := mustParse(t, "<{%begin:b%}B{%end:b%}>")
	b := root.Block("b")
	var seen []string
	root.OnRenderBlock(func(blk *Block) { seen = append(seen, blk.Name()) })

	b.Enable(false)
	if b.Enabled() {
		t.Fatalf("block still enabled")
	}
	if got := root.RenderString(nil); got != "<>" {
		t.Fatalf("got %q", got)
	}
	b.Enable(true)
	if got := root.RenderString(nil); got != "<B>" {
		t.Fatalf("got %q", got)
	}
	if diff := cmp.Diff([]string{"", "b", "", "b"}, seen); diff != "" {
		t.Fatalf("render events (-want +got):\n%s", diff)
	}
}

func TestRenderEvents(t *testing.T) {
	root := mustParse(t, "{%begin:a%}{%begin:b%}{%end:b%}{%end:a%}")
	var top, own []string
	cancel := root.OnRenderBlock(func(b *Block) { top = append(top, b.Name()) })
	root.Block("a").OnRenderBlock(func(b *Block) { own = append(own, b.Name()) })

	root.RenderString(nil)
	if diff := cmp.Diff([]string{"", "a", "b"}, top); diff != "" {
		t.Fatalf("outermost subscriber (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, own); diff != "" {
		t.Fatalf("block subscriber (-want +got):\n%s", diff)
	}

	cancel()
	root.RenderString(nil)
	if len(top) != 3 {
		t.Fatalf("cancelled handler still called: %v", top)
	}
}

func TestRenderHandlerCanMutate(t *testing.T) {
	root := mustParse(t, "{%begin:user%}hi {%var:name%}{%end:user%}")
	root.OnRenderBlock(func(b *Block) {
		if b.Name() == "user" {
			b.SetVar("name", "bob")
		}
	})
	if got := root.RenderString(nil); got != "hi bob" {
		t.Fatalf("got %q", got)
	}
}

func TestConditionals(t *testing.T) {
	root := mustParse(t, "{%var:x%}{%if:x%}[{%var:x%}]{%endif%}")
	root.SetVar("x", "1")
	if got := root.RenderString(nil); got != "1[1]" {
		t.Fatalf("got %q", got)
	}

	tools := mustParse(t, "{%if:admin%}{%begin:tools%}T{%end:tools%}{%endif%}")
	b := tools.Find("tools")
	if b == nil {
		t.Fatalf("block inside conditional not found")
	}
	if b.Path() != "tools" {
		t.Fatalf("path = %q", b.Path())
	}
	if got := tools.RenderString(Scope{"admin": "y"}); got != "T" {
		t.Fatalf("got %q", got)
	}
	if got := tools.RenderString(nil); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestCopyAndAttach(t *testing.T) {
	root1 := mustParse(t, "{%begin:p%}{%begin:b%}B{%var:v%}{%end:b%}{%end:p%}")
	b := root1.Find("p/b")
	c := b.Copy()
	if c.Parent() != nil {
		t.Fatalf("copy is attached")
	}
	if c.Path() != "b" {
		t.Fatalf("detached copy path = %q", c.Path())
	}

	root2 := mustParse(t, "{%begin:q%}{%end:q%}")
	q := root2.Block("q")
	var loaded []string
	q.OnLoadBlock(func(blk *Block) { loaded = append(loaded, blk.Path()) })
	if err := q.Attach(c); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if c.Path() != "q/b" {
		t.Fatalf("attached path = %q", c.Path())
	}
	if b.Path() != "p/b" {
		t.Fatalf("original path changed to %q", b.Path())
	}
	if diff := cmp.Diff([]string{"q/b"}, loaded); diff != "" {
		t.Fatalf("load events (-want +got):\n%s", diff)
	}

	c.SetVar("v", "x")
	if got := root2.RenderString(nil); got != "Bx" {
		t.Fatalf("got %q", got)
	}
	if got := root1.RenderString(Scope{"v": "1"}); got != "B1" {
		t.Fatalf("original affected by copy: %q", got)
	}
	if b.GetVar("v") != "" {
		t.Fatalf("original variable set through copy")
	}

	if err := root2.Attach(c); !errors.Is(err, ErrAttached) {
		t.Fatalf("re-attach: got %v", err)
	}
	if err := q.Attach(q); !errors.Is(err, ErrAttached) {
		t.Fatalf("self attach: got %v", err)
	}
	if err := q.Attach(b.Copy()); !errors.Is(err, ErrDuplicateBlock) {
		t.Fatalf("duplicate attach: got %v", err)
	}
}

func TestAttachFillsUnsetVariables(t *testing.T) {
	src := mustParse(t, "{%begin:b%}{%var:v%}{%var:w%}{%end:b%}")
	dst := mustParse(t, "{%var:v%}{%begin:mid%}{%var:w%}{%end:mid%}")
	dst.SetVar("v", "outer")
	dst.Block("mid").SetVar("w", "inner")

	cp := src.Block("b").Copy()
	if err := dst.Block("mid").Attach(cp); err != nil {
		t.Fatal(err)
	}
	if cp.GetVar("v") != "outer" || cp.GetVar("w") != "inner" {
		t.Fatalf("values not pushed: v=%q w=%q", cp.GetVar("v"), cp.GetVar("w"))
	}
	if src.Block("b").Var("v").HasValue() {
		t.Fatalf("source modified")
	}
}

func TestCopyOfSubtreeRepathsOnAttach(t *testing.T) {
	root1 := mustParse(t, "{%begin:p%}{%begin:b%}{%end:b%}{%end:p%}")
	pc := root1.Block("p").Copy()
	pc.Find("b").SetVar("v", "q")
	if root1.Find("p/b").HasVar("v") {
		t.Fatalf("copy shares nested nodes with the original")
	}

	root2 := mustParse(t, "")
	if err := root2.Attach(pc); err != nil {
		t.Fatal(err)
	}
	if got := pc.Find("b").Path(); got != "p/b" {
		t.Fatalf("path = %q", got)
	}
	if pc.Find("b").ParentBlock() != pc {
		t.Fatalf("nested parent not rewired to the copy")
	}
}

func TestAssign(t *testing.T) {
	root := mustParse(t, "{%var:user%}{%begin:slot%}{%end:slot%}")
	root.SetVar("user", "ann")
	slot := root.Block("slot")
	slot.Enable(false)

	src := mustParse(t, "hi {%var:user%}")
	slot.Assign(src)
	if slot.Name() != "slot" || slot.Path() != "slot" {
		t.Fatalf("identity lost: name=%q path=%q", slot.Name(), slot.Path())
	}
	if slot.Enabled() {
		t.Fatalf("enabled state not kept")
	}
	if got := slot.GetVar("user"); got != "ann" {
		t.Fatalf("user = %q", got)
	}
	if src.Var("user").HasValue() {
		t.Fatalf("source modified")
	}
	slot.Enable(true)
	if got := root.RenderString(nil); got != "annhi ann" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyCommands(t *testing.T) {
	root := mustParse(t, "{%begin:list%}{%begin:item%}{%var:x%}{%end:item%}{%end:list%}{%seg:foot%}F{%end:foot%}")
	cmds := []Command{
		{Op: OpAddRow, Target: "list/item", Row: Row{"x": "a"}},
		{Op: OpAddRow, Target: "list/item", Row: Row{"x": "b"}},
		{Op: OpDisableSegment, Name: "foot"},
		{Op: OpAddBlockAt, Target: "list", Name: "extra", Anchor: "item"},
		{Op: OpInsertBlockAt, Target: "list", Name: "head", Anchor: "item"},
		{Op: OpSetVar, Target: "list/head", Name: "h", Value: "H"},
	}
	for _, cmd := range cmds {
		if _, err := root.Apply(cmd); err != nil {
			t.Fatalf("%s: %v", cmd, err)
		}
	}
	if err := root.Find("list/head").Load(strings.NewReader("{%var:h%}:")); err != nil {
		t.Fatal(err)
	}
	root.Find("list/head").SetVar("h", "H")
	if got := root.RenderString(nil); got != "H:ab" {
		t.Fatalf("got %q", got)
	}
	if diff := cmp.Diff([]string{"head", "item", "extra"}, blockNames(root.Block("list").Blocks())); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}

	if _, err := root.Apply(Command{Op: OpDisableBlock, Target: "list/item"}); err != nil {
		t.Fatal(err)
	}
	if got := root.RenderString(nil); got != "H:" {
		t.Fatalf("got %q", got)
	}

	if _, err := root.Apply(Command{Op: OpSetVar, Name: "bad-name"}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("got %v", err)
	}
	if _, err := root.Apply(Command{Op: OpClearRows, Target: "nope"}); !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("got %v", err)
	}
	if _, err := root.Apply(Command{Op: Op(99)}); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("got %v", err)
	}
}

func TestCommandString(t *testing.T) {
	cmd := Command{Op: OpAddBlockAt, Target: "list", Name: "extra", Anchor: "item"}
	if got := cmd.String(); got != "add_block_at @list extra ~item" {
		t.Fatalf("got %q", got)
	}
	if got := Op(42).String(); got != "Op(42)" {
		t.Fatalf("got %q", got)
	}
}

func TestWalk(t *testing.T) {
	root := mustParse(t, "a{%seg:s%}b{%end:s%}{%begin:x%}{%var:v%}{%end:x%}")
	root.DisableSegment("s")
	var got []string
	err := Walk(VisitorFunc(func(e Entry) error {
		got = append(got, strings.Repeat(">", e.Depth)+Describe(e))
		return nil
	}), &root.Node)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		`Text("a")`,
		`Text("b") seg=s disabled`,
		`Block(x path="x")`,
		`>Var(v)`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("walk (-want +got):\n%s", diff)
	}

	stop := errors.New("stop")
	calls := 0
	err = Walk(VisitorFunc(func(Entry) error {
		calls++
		return stop
	}), &root.Node)
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("walk did not stop: err=%v calls=%d", err, calls)
	}

	if p := Pretty(root); !strings.Contains(p, `Block(x path="x")`) {
		t.Fatalf("pretty output:\n%s", p)
	}
}
