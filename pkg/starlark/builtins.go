package starlark

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/itease/webtpl/pkg/blocktpl"
	"go.starlark.net/starlark"
)

// CreateBuiltins creates the functions every controller script can call.
func CreateBuiltins(logger *slog.Logger) starlark.StringDict {
	return starlark.StringDict{
		"print": starlark.NewBuiltin("print", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var buf []string
			for i := 0; i < len(args); i++ {
				buf = append(buf, Flatten(args[i]))
			}
			logger.Info(strings.Join(buf, " "), "thread", thread.Name)
			return starlark.None, nil
		}),

		// log(msg, level="info", **attrs)
		"log": starlark.NewBuiltin("log", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var msg string
			level := "info"
			var attrs []any
			for _, kv := range kwargs {
				key, _ := starlark.AsString(kv[0])
				if key == "level" {
					level = Flatten(kv[1])
					continue
				}
				attrs = append(attrs, key, Flatten(kv[1]))
			}
			if err := starlark.UnpackPositionalArgs(fn.Name(), args, nil, 1, &msg); err != nil {
				return nil, err
			}
			var lvl slog.Level
			if err := lvl.UnmarshalText([]byte(level)); err != nil {
				return nil, fmt.Errorf("%s: %w", fn.Name(), err)
			}
			logger.Log(context.Background(), lvl, msg, attrs...)
			return starlark.None, nil
		}),

		// parse_template(src) returns a detached block that can be attached
		// into a page.
		"parse_template": starlark.NewBuiltin("parse_template", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var src string
			var name string
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "src", &src, "name?", &name); err != nil {
				return nil, err
			}
			b := blocktpl.NewBlock(name)
			if err := b.Load(strings.NewReader(src)); err != nil {
				return nil, fmt.Errorf("%s: %w", fn.Name(), err)
			}
			return NewBlockValue(b), nil
		}),
	}
}
