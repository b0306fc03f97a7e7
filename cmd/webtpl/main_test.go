package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"a=1", "b=x=y", "c="})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]string{"a": "1", "b": "x=y", "c": ""}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseAssignments([]string{bad}); err == nil {
			t.Errorf("parseAssignments(%q) should fail", bad)
		}
	}
}

func TestPreparePage(t *testing.T) {
	dir := t.TempDir()
	tpl := write(t, dir, "page.html", "{%var:title%} {%var:who%}{%begin:list%} {%var:n%}{%end:list%}")
	data := write(t, dir, "page.yaml", "vars:\n  title: Hi\n")
	script := write(t, dir, "page.star", `
def handle(page, request):
    page.block("list").set_rows([{"n": request["who"]}, {"n": "b"}])
`)
	scope := map[string]string{"who": "ann"}
	f, err := preparePage(tpl, data, script, scope)
	if err != nil {
		t.Fatalf("preparePage: %v", err)
	}
	var sb strings.Builder
	if err := f.RenderTo(&sb, scope); err != nil {
		t.Fatal(err)
	}
	if got := sb.String(); got != "Hi ann ann b" {
		t.Errorf("render = %q", got)
	}

	if _, err := preparePage(tpl, filepath.Join(dir, "missing.yaml"), "", nil); err == nil {
		t.Errorf("expected error for a missing data file")
	}
}

func TestRenderBatch(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "src/a.html", "A {%var:x%}")
	write(t, dir, "src/a.yaml", "vars:\n  x: from data\n")
	b := write(t, dir, "src/b.html", "B")
	out := filepath.Join(dir, "out")

	urls, err := renderBatch(context.Background(), []string{a, b}, out, 2)
	if err != nil {
		t.Fatalf("renderBatch: %v", err)
	}
	if diff := cmp.Diff([]string{"/cache/a.html", "/cache/b.html"}, urls); diff != "" {
		t.Errorf("urls mismatch (-want +got):\n%s", diff)
	}
	for name, want := range map[string]string{"a.html": "A from data", "b.html": "B"} {
		got, err := os.ReadFile(filepath.Join(out, name))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	other := write(t, dir, "other/a.html", "again")
	if _, err := renderBatch(context.Background(), []string{a, other}, out, 1); err == nil {
		t.Errorf("expected error for clashing output names")
	}
	broken := write(t, dir, "src/broken.html", "{%begin:x%}")
	if _, err := renderBatch(context.Background(), []string{broken}, out, 1); err == nil {
		t.Errorf("expected error for an unparsable template")
	}
}

func TestStyledTree(t *testing.T) {
	dir := t.TempDir()
	tpl := write(t, dir, "page.html", "<p>{%var:x%}</p>{%begin:b%}{%if:y%}Y{%endif%}{%end:b%}")
	f, err := preparePage(tpl, "", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	out := styledTree(f.Template())
	for _, want := range []string{"Var(x)", "Block(b", "If(y)", `Text("<p>")`} {
		if !strings.Contains(out, want) {
			t.Errorf("styled tree missing %q:\n%s", want, out)
		}
	}
	if got := len(strings.Split(strings.TrimSpace(out), "\n")); got != 7 {
		t.Errorf("styled tree has %d lines, want 7:\n%s", got, out)
	}
}

func TestRenderBatchRefusesToOverwriteTemplates(t *testing.T) {
	dir := t.TempDir()
	src := "page {%var:x%}"
	tpl := write(t, dir, "page.html", src)

	if _, err := renderBatch(context.Background(), []string{tpl}, dir, 1); err == nil {
		t.Fatalf("expected error when the output directory holds the template")
	}
	got, err := os.ReadFile(tpl)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != src {
		t.Errorf("template was overwritten: %q", got)
	}
}
