package starlark

import (
	"fmt"
	"sort"

	"github.com/itease/webtpl/pkg/blocktpl"
	"go.starlark.net/starlark"
)

// BlockValue exposes a template block to scripts. Every mutating method is
// translated into a blocktpl.Command so scripts can do nothing the engine
// does not already offer.
type BlockValue struct {
	block *blocktpl.Block
	cache Cacher
}

// Cacher renders a whole page into the cache directory and returns the URL
// the file is served at.
type Cacher interface {
	CacheFile(name string) (string, error)
	CacheFileRandom(prefix, suffix string) (string, error)
}

// NewBlockValue wraps b.
func NewBlockValue(b *blocktpl.Block) *BlockValue {
	return &BlockValue{block: b}
}

// NewPageValue wraps the root block of a page. Scripts may additionally call
// cache_file() on it, which is served by c.
func NewPageValue(root *blocktpl.Block, c Cacher) *BlockValue {
	return &BlockValue{block: root, cache: c}
}

// Block returns the wrapped block.
func (v *BlockValue) Block() *blocktpl.Block { return v.block }

func (v *BlockValue) String() string {
	if v.block.Path() == "" {
		return "<template>"
	}
	return fmt.Sprintf("<block %s>", v.block.Path())
}

func (v *BlockValue) Type() string          { return "block" }
func (v *BlockValue) Freeze()               {}
func (v *BlockValue) Truth() starlark.Bool  { return starlark.True }
func (v *BlockValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: block") }

func (v *BlockValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(v.block.Name()), nil
	case "path":
		return starlark.String(v.block.Path()), nil
	case "enabled":
		return starlark.Bool(v.block.Enabled()), nil
	case "blocks":
		var names []starlark.Value
		for _, b := range v.block.Blocks() {
			names = append(names, starlark.String(b.Name()))
		}
		return starlark.NewList(names), nil
	case "vars":
		vars := make(map[string]string)
		for _, variable := range v.block.Vars() {
			if val, ok := variable.Value(); ok {
				vars[variable.Name()] = val
			}
		}
		return stringMap(vars), nil
	case "options":
		return stringMap(v.block.Options()), nil
	}
	if name == "cache_file" && v.cache != nil {
		return starlark.NewBuiltin(name, pageCacheFile).BindReceiver(v), nil
	}
	if m, ok := blockMethods[name]; ok {
		return starlark.NewBuiltin(name, m).BindReceiver(v), nil
	}
	return nil, nil
}

func (v *BlockValue) AttrNames() []string {
	names := []string{"name", "path", "enabled", "blocks", "vars", "options"}
	for name := range blockMethods {
		names = append(names, name)
	}
	if v.cache != nil {
		names = append(names, "cache_file")
	}
	sort.Strings(names)
	return names
}

var (
	_ starlark.HasAttrs = (*BlockValue)(nil)
)

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

var blockMethods map[string]builtinFunc

func init() {
	blockMethods = map[string]builtinFunc{
		"enable":       segmentMethod(blocktpl.OpEnableSegment),
		"disable":      segmentMethod(blocktpl.OpDisableSegment),
		"show":         toggleMethod(blocktpl.OpEnableBlock),
		"hide":         toggleMethod(blocktpl.OpDisableBlock),
		"add_block":    spliceMethod(blocktpl.OpAddBlock, blocktpl.OpAddBlockAt, "after?"),
		"insert_block": spliceMethod(blocktpl.OpInsertBlock, blocktpl.OpInsertBlockAt, "before?"),
		"set_var":      blockSetVar,
		"get_var":      blockGetVar,
		"block":        blockFind,
		"has_block":    blockHas,
		"add_row":      blockAddRow,
		"set_rows":     blockSetRows,
		"clear_rows":   toggleMethod(blocktpl.OpClearRows),
		"render":       blockRender,
		"fill":         blockFill,
		"copy":         blockCopy,
		"attach":       blockAttach,
		"on_render":    subscribeMethod((*blocktpl.Block).OnRenderBlock),
		"on_load":      subscribeMethod((*blocktpl.Block).OnLoadBlock),
	}
}

func receiver(fn *starlark.Builtin) *blocktpl.Block {
	return fn.Receiver().(*BlockValue).block
}

func apply(fn *starlark.Builtin, cmd blocktpl.Command) (*blocktpl.Block, error) {
	b, err := receiver(fn).Apply(cmd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return b, nil
}

func segmentMethod(op blocktpl.Op) builtinFunc {
	return func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name); err != nil {
			return nil, err
		}
		if _, err := apply(fn, blocktpl.Command{Op: op, Name: name}); err != nil {
			return nil, err
		}
		return starlark.None, nil
	}
}

func toggleMethod(op blocktpl.Op) builtinFunc {
	return func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
			return nil, err
		}
		if _, err := apply(fn, blocktpl.Command{Op: op}); err != nil {
			return nil, err
		}
		return starlark.None, nil
	}
}

// spliceMethod adds a block at the end (or start) of the order, or next to
// the anchor block when one is named.
func spliceMethod(plain, anchored blocktpl.Op, anchorParam string) builtinFunc {
	return func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name, anchor string
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, anchorParam, &anchor); err != nil {
			return nil, err
		}
		cmd := blocktpl.Command{Op: plain, Name: name}
		if anchor != "" {
			cmd.Op = anchored
			cmd.Anchor = anchor
		}
		b, err := apply(fn, cmd)
		if err != nil {
			return nil, err
		}
		return NewBlockValue(b), nil
	}
}

func blockSetVar(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var value starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "value", &value); err != nil {
		return nil, err
	}
	if _, err := apply(fn, blocktpl.Command{Op: blocktpl.OpSetVar, Name: name, Value: Flatten(value)}); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func blockGetVar(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	return starlark.String(receiver(fn).GetVar(name)), nil
}

func blockFind(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "path", &path); err != nil {
		return nil, err
	}
	if b := receiver(fn).Find(path); b != nil {
		return NewBlockValue(b), nil
	}
	return starlark.None, nil
}

func blockHas(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "path", &path); err != nil {
		return nil, err
	}
	return starlark.Bool(receiver(fn).Find(path) != nil), nil
}

func blockAddRow(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var row *starlark.Dict
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "row", &row); err != nil {
		return nil, err
	}
	if _, err := apply(fn, blocktpl.Command{Op: blocktpl.OpAddRow, Row: ToRow(row)}); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func blockSetRows(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var list starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "rows", &list); err != nil {
		return nil, err
	}
	rows, err := ToRows(list)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	receiver(fn).SetRows(rows)
	return starlark.None, nil
}

// render(**vars) renders the block with the keyword arguments as scope.
func blockRender(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: unexpected positional arguments", fn.Name())
	}
	scope := make(blocktpl.Scope, len(kwargs))
	for _, kv := range kwargs {
		key, _ := starlark.AsString(kv[0])
		scope[key] = Flatten(kv[1])
	}
	return starlark.String(receiver(fn).RenderString(scope)), nil
}

func blockFill(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "value", &value); err != nil {
		return nil, err
	}
	if err := FillBlock(receiver(fn), value); err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return starlark.None, nil
}

func blockCopy(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return NewBlockValue(receiver(fn).Copy()), nil
}

func blockAttach(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var child *BlockValue
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "block", &child); err != nil {
		return nil, err
	}
	if err := receiver(fn).Attach(child.block); err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return child, nil
}

// subscribeMethod builds on_render and on_load: fn is called with each
// notified block, and the returned function cancels the subscription. Errors
// raised by fn are logged.
func subscribeMethod(subscribe func(*blocktpl.Block, blocktpl.BlockHandler) func()) builtinFunc {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var callback starlark.Callable
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "fn", &callback); err != nil {
			return nil, err
		}
		event := fn.Name()
		cancel := subscribe(receiver(fn), func(b *blocktpl.Block) {
			if _, err := starlark.Call(thread, callback, starlark.Tuple{NewBlockValue(b)}, nil); err != nil {
				threadLogger(thread).Error("block handler failed", "event", event, "block", b.Path(), "error", err)
			}
		})
		return starlark.NewBuiltin("cancel", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			cancel()
			return starlark.None, nil
		}), nil
	}
}

// cache_file(name="", prefix="", suffix="") renders the page into the cache
// directory, under name or under a random name between prefix and suffix.
func pageCacheFile(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, prefix, suffix string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name?", &name, "prefix?", &prefix, "suffix?", &suffix); err != nil {
		return nil, err
	}
	c := fn.Receiver().(*BlockValue).cache
	var url string
	var err error
	if name != "" {
		url, err = c.CacheFile(name)
	} else {
		url, err = c.CacheFileRandom(prefix, suffix)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return starlark.String(url), nil
}
