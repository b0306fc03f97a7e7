package starlark

import (
	"fmt"
	"log/slog"

	"go.starlark.net/starlark"
)

// Evaluator runs controller scripts against templates. It is not safe for
// concurrent use; create one per request.
type Evaluator struct {
	thread   *starlark.Thread
	builtins starlark.StringDict
	globals  starlark.StringDict
	logger   *slog.Logger
}

// NewEvaluator creates a new Starlark evaluator. A nil logger means
// slog.Default().
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	thread := &starlark.Thread{Name: "webtpl"}
	thread.SetLocal(loggerKey, logger)

	return &Evaluator{
		thread:   thread,
		builtins: CreateBuiltins(logger),
		globals:  make(starlark.StringDict),
		logger:   logger,
	}
}

const loggerKey = "webtpl.logger"

// threadLogger returns the logger of the evaluator that owns thread.
func threadLogger(thread *starlark.Thread) *slog.Logger {
	if logger, ok := thread.Local(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// SetGlobal converts a Go value and makes it visible to scripts under name.
func (e *Evaluator) SetGlobal(name string, value any) {
	e.globals[name] = ConvertToStarlark(value)
}

// SetGlobalStarlark sets a global variable using a native Starlark value
func (e *Evaluator) SetGlobalStarlark(name string, value starlark.Value) {
	e.globals[name] = value
}

func (e *Evaluator) predeclared() starlark.StringDict {
	predeclared := make(starlark.StringDict, len(e.builtins)+len(e.globals))
	for k, v := range e.builtins {
		predeclared[k] = v
	}
	for k, v := range e.globals {
		predeclared[k] = v
	}
	return predeclared
}

// Eval evaluates a Starlark expression
func (e *Evaluator) Eval(expr string) (starlark.Value, error) {
	val, err := starlark.Eval(e.thread, "<eval>", expr, e.predeclared())
	if err != nil {
		return nil, fmt.Errorf("starlark evaluation error: %w", err)
	}
	return val, nil
}

// ExecFile executes a Starlark file. src may be nil (read filename), a string
// or a []byte. Globals defined by the file become visible to later calls.
func (e *Evaluator) ExecFile(filename string, src any) (starlark.StringDict, error) {
	globals, err := starlark.ExecFile(e.thread, filename, src, e.predeclared())
	if err != nil {
		return nil, fmt.Errorf("starlark execution error: %w", err)
	}

	for k, v := range globals {
		e.globals[k] = v
	}

	return globals, nil
}

// ExecString executes a Starlark script from a string
func (e *Evaluator) ExecString(script string) (starlark.StringDict, error) {
	return e.ExecFile("<script>", script)
}

func (e *Evaluator) GetGlobal(name string) (starlark.Value, bool) {
	val, ok := e.globals[name]
	return val, ok
}

// Call invokes the global function name. Keyword arguments are passed as a
// flat name, value list.
func (e *Evaluator) Call(name string, args starlark.Tuple, kwargs ...starlark.Tuple) (starlark.Value, error) {
	fn, ok := e.globals[name]
	if !ok {
		return nil, fmt.Errorf("calling %s: not defined", name)
	}
	if _, ok := fn.(starlark.Callable); !ok {
		return nil, fmt.Errorf("calling %s: %s is not callable", name, fn.Type())
	}
	val, err := starlark.Call(e.thread, fn, args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", name, err)
	}
	return val, nil
}

// HasFunc reports whether the scripts defined a callable global name.
func (e *Evaluator) HasFunc(name string) bool {
	_, ok := e.globals[name].(starlark.Callable)
	return ok
}

// RunPage executes a controller script against page. The script sees the page
// as the global "page" and request as "request". A script may act at top level
// or define handle(page, request), which is then called.
func (e *Evaluator) RunPage(filename string, src any, page *BlockValue, request starlark.Value) error {
	if request == nil {
		request = starlark.None
	}
	e.SetGlobalStarlark("page", page)
	e.SetGlobalStarlark("request", request)
	if _, err := e.ExecFile(filename, src); err != nil {
		return err
	}
	if !e.HasFunc("handle") {
		return nil
	}
	_, err := e.Call("handle", starlark.Tuple{page, request})
	return err
}
