package blocktpl

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func blockNames(bs []*Block) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Name()
	}
	return out
}

func TestSpliceBlocks(t *testing.T) {
	root := mustParse(t, "{%begin:n1%}1{%end:n1%}")
	n2, err := root.InsertBlockAt("n2", "n1")
	if err != nil {
		t.Fatalf("InsertBlockAt: %v", err)
	}
	n3, err := root.AddBlockAt("n3", "n1")
	if err != nil {
		t.Fatalf("AddBlockAt: %v", err)
	}
	if diff := cmp.Diff([]string{"n2", "n1", "n3"}, blockNames(root.Blocks())); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if err := n2.Load(strings.NewReader("2")); err != nil {
		t.Fatal(err)
	}
	if err := n3.Load(strings.NewReader("3")); err != nil {
		t.Fatal(err)
	}
	if got := root.RenderString(nil); got != "213" {
		t.Fatalf("got %q", got)
	}

	if _, err := root.InsertBlock("n0"); err != nil {
		t.Fatal(err)
	}
	if _, err := root.AddBlock("n4"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"n0", "n2", "n1", "n3", "n4"}, blockNames(root.Blocks())); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSpliceErrors(t *testing.T) {
	root := mustParse(t, "{%block:n1%}")
	cases := []struct {
		name string
		fn   func() (*Block, error)
		err  error
	}{
		{"missing anchor", func() (*Block, error) { return root.AddBlockAt("x", "missing") }, ErrBlockNotFound},
		{"missing anchor before", func() (*Block, error) { return root.InsertBlockAt("x", "missing") }, ErrBlockNotFound},
		{"duplicate", func() (*Block, error) { return root.AddBlock("n1") }, ErrDuplicateBlock},
		{"duplicate at", func() (*Block, error) { return root.AddBlockAt("n1", "n1") }, ErrDuplicateBlock},
		{"invalid", func() (*Block, error) { return root.AddBlock("bad-name") }, ErrInvalidName},
		{"reserved", func() (*Block, error) { return root.InsertBlock("blocks") }, ErrReservedName},
		{"empty", func() (*Block, error) { return root.AddBlock("") }, ErrMissingName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := tc.fn()
			if !errors.Is(err, tc.err) {
				t.Fatalf("got %v, want %v", err, tc.err)
			}
			if b != nil {
				t.Fatalf("block returned on error")
			}
		})
	}
	if n := len(root.Blocks()); n != 1 {
		t.Fatalf("failed mutations changed the tree: %d blocks", n)
	}
}

func TestSplicedBlockReceivesParentValues(t *testing.T) {
	root := mustParse(t, "{%var:user%}{%block:anchor%}")
	root.SetVar("user", "ann")
	var loaded []string
	root.OnLoadBlock(func(b *Block) { loaded = append(loaded, b.Name()) })

	b, err := root.AddBlockAt("greet", "anchor")
	if err != nil {
		t.Fatal(err)
	}
	if got := b.GetVar("user"); got != "ann" {
		t.Fatalf("user = %q", got)
	}
	if _, err := root.AddBlock("plain"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"greet"}, loaded); diff != "" {
		t.Fatalf("load events (-want +got):\n%s", diff)
	}
}

func TestNestedBlockPath(t *testing.T) {
	root := mustParse(t, "{%begin:p%}{%end:p%}")
	c, err := root.Block("p").AddBlock("c")
	if err != nil {
		t.Fatal(err)
	}
	if c.Path() != "p/c" {
		t.Fatalf("path = %q", c.Path())
	}
	if c.ParentBlock() != root.Block("p") {
		t.Fatalf("ParentBlock mismatch")
	}
	if root.Find("p/c") != c {
		t.Fatalf("Find did not resolve the new block")
	}
}

func TestScopeCascadesDownward(t *testing.T) {
	root := mustParse(t, "{%var:title%}{%begin:inner%}[{%var:title%}]{%end:inner%}")
	root.SetVar("title", "T")
	if got := root.RenderString(nil); got != "T[T]" {
		t.Fatalf("got %q", got)
	}

	siblings := mustParse(t, "{%begin:a%}{%var:x%}{%end:a%}{%begin:b%}{%var:x%}{%end:b%}")
	siblings.Block("a").SetVar("x", "1")
	if got := siblings.RenderString(nil); got != "1" {
		t.Fatalf("value leaked to a sibling: %q", got)
	}
	if siblings.Block("b").Var("x").HasValue() {
		t.Fatalf("scope value copied into a variable")
	}
}

func TestScopeValueIsNotStored(t *testing.T) {
	root := mustParse(t, "{%var:x%}")
	if got := root.RenderString(Scope{"x": "1"}); got != "1" {
		t.Fatalf("got %q", got)
	}
	if got := root.RenderString(Scope{"x": "2"}); got != "2" {
		t.Fatalf("stale scope value: %q", got)
	}
	if root.Var("x").HasValue() {
		t.Fatalf("render stored the scope value")
	}
}

func TestSetValueOverridesScope(t *testing.T) {
	root := mustParse(t, "{%var:x%}")
	root.SetVar("x", "own")
	if got := root.RenderString(Scope{"x": "scope"}); got != "own" {
		t.Fatalf("got %q", got)
	}
	root.Var("x").Unset()
	if got := root.RenderString(Scope{"x": "scope"}); got != "scope" {
		t.Fatalf("got %q", got)
	}
}

func TestForceComplete(t *testing.T) {
	root := mustParse(t, "{%var:x%}a")
	if got := root.RenderString(nil); got != "" {
		t.Fatalf("got %q", got)
	}
	root.ForceComplete()
	if !root.Complete() {
		t.Fatalf("forced node not complete")
	}
	if got := root.RenderString(nil); got != "a" {
		t.Fatalf("got %q", got)
	}
}

func TestVarsAndSegmentsListing(t *testing.T) {
	root := mustParse(t, "{%var:b%}{%var:a%}{%seg:z%}z{%end:z%}{%seg:m%}m{%end:m%}{%var:b%}")
	var names []string
	for _, v := range root.Vars() {
		names = append(names, v.Name())
	}
	if diff := cmp.Diff([]string{"b", "a"}, names); diff != "" {
		t.Fatalf("vars (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"m", "z"}, root.Segments()); diff != "" {
		t.Fatalf("segments (-want +got):\n%s", diff)
	}
	if root.SegmentEnabled("nope") {
		t.Fatalf("unknown segment reported enabled")
	}
}

func TestOptionsAreCopied(t *testing.T) {
	root := mustParse(t, "{%opt:k=v%}")
	opts := root.Options()
	opts["k"] = "changed"
	if v, _ := root.Option("k"); v != "v" {
		t.Fatalf("Options exposed internal map")
	}
}

func TestCorruptOrderPanics(t *testing.T) {
	n := NewNode()
	n.order = []int{3}
	defer func() {
		if r := recover(); r != ErrCorruptOrder {
			t.Fatalf("recovered %v, want ErrCorruptOrder", r)
		}
	}()
	_ = n.Render(&strings.Builder{}, nil)
	t.Fatalf("render did not panic")
}

func TestClearKeepsSubscriptions(t *testing.T) {
	root := mustParse(t, "{%begin:a%}x{%end:a%}")
	calls := 0
	root.OnRenderBlock(func(*Block) { calls++ })
	root.Clear()
	if len(root.Blocks()) != 0 || root.RenderString(nil) != "" {
		t.Fatalf("Clear left content behind")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
