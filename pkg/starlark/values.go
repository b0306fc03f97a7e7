package starlark

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/itease/webtpl/pkg/blocktpl"
	"go.starlark.net/starlark"
)

// ConvertToStarlark converts a Go value, as produced by YAML or JSON decoding
// or by request parsing, to a Starlark value.
func ConvertToStarlark(val any) starlark.Value {
	switch v := val.(type) {
	case nil:
		return starlark.None
	case starlark.Value:
		return v
	case *blocktpl.Block:
		return NewBlockValue(v)
	case string:
		return starlark.String(v)
	case bool:
		return starlark.Bool(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case uint64:
		return starlark.MakeUint64(v)
	case float64:
		return starlark.Float(v)
	case []string:
		items := make([]starlark.Value, len(v))
		for i, item := range v {
			items[i] = starlark.String(item)
		}
		return starlark.NewList(items)
	case []any:
		items := make([]starlark.Value, len(v))
		for i, item := range v {
			items[i] = ConvertToStarlark(item)
		}
		return starlark.NewList(items)
	case map[string]string:
		return stringMap(v)
	case blocktpl.Row:
		return stringMap(v)
	case map[string][]string:
		dict := starlark.NewDict(len(v))
		for _, key := range sortedKeys(v) {
			dict.SetKey(starlark.String(key), ConvertToStarlark(v[key]))
		}
		return dict
	case map[string]any:
		dict := starlark.NewDict(len(v))
		for _, key := range sortedKeys(v) {
			dict.SetKey(starlark.String(key), ConvertToStarlark(v[key]))
		}
		return dict
	default:
		return starlark.String(fmt.Sprint(val))
	}
}

func stringMap(m map[string]string) *starlark.Dict {
	dict := starlark.NewDict(len(m))
	for _, key := range sortedKeys(m) {
		dict.SetKey(starlark.String(key), starlark.String(m[key]))
	}
	return dict
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flatten converts a script value to the string a template variable holds.
// None and False become the empty string so they test false in if-blocks.
func Flatten(val starlark.Value) string {
	switch v := val.(type) {
	case nil, starlark.NoneType:
		return ""
	case starlark.String:
		return string(v)
	case starlark.Bool:
		if v {
			return "1"
		}
		return ""
	case starlark.Int:
		return v.String()
	case starlark.Float:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case *BlockValue:
		return v.block.RenderString(nil)
	case starlark.Iterable:
		var parts []string
		iter := v.Iterate()
		defer iter.Done()
		var x starlark.Value
		for iter.Next(&x) {
			parts = append(parts, Flatten(x))
		}
		return strings.Join(parts, ",")
	default:
		return val.String()
	}
}

// ToRow flattens a dict into one row. Non-string keys use their Starlark
// representation.
func ToRow(d *starlark.Dict) blocktpl.Row {
	row := make(blocktpl.Row, d.Len())
	for _, item := range d.Items() {
		key, ok := starlark.AsString(item[0])
		if !ok {
			key = item[0].String()
		}
		row[key] = Flatten(item[1])
	}
	return row
}

// ToRows flattens a sequence of dicts.
func ToRows(val starlark.Value) ([]blocktpl.Row, error) {
	seq, ok := val.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("rows must be a list of dicts, got %s", val.Type())
	}
	var rows []blocktpl.Row
	iter := seq.Iterate()
	defer iter.Done()
	var x starlark.Value
	for i := 0; iter.Next(&x); i++ {
		d, ok := x.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("row %d: want dict, got %s", i, x.Type())
		}
		rows = append(rows, ToRow(d))
	}
	return rows, nil
}

// FillBlock copies a script value into b:
//
//   - a block replaces b's contents
//   - a string is parsed as b's template text
//   - a list of dicts is appended as rows
//   - a dict sets "vars" (a dict of values or a list of rows), toggles
//     "segments", recurses into "blocks", and recurses into any child
//     block named by another key; unknown keys are ignored
func FillBlock(b *blocktpl.Block, val starlark.Value) error {
	switch v := val.(type) {
	case *BlockValue:
		b.Assign(v.block)
	case starlark.String:
		if err := b.Load(strings.NewReader(string(v))); err != nil {
			return err
		}
	case *starlark.List, starlark.Tuple:
		rows, err := ToRows(v)
		if err != nil {
			return err
		}
		for _, row := range rows {
			b.AddRow(row)
		}
	case *starlark.Dict:
		for _, item := range v.Items() {
			key, _ := starlark.AsString(item[0])
			switch key {
			case "vars":
				if err := fillVars(b, item[1]); err != nil {
					return err
				}
			case "segments":
				segs, ok := item[1].(*starlark.Dict)
				if !ok {
					return fmt.Errorf("segments: want dict, got %s", item[1].Type())
				}
				for _, seg := range segs.Items() {
					name, _ := starlark.AsString(seg[0])
					if seg[1].Truth() {
						b.EnableSegment(name)
					} else {
						b.DisableSegment(name)
					}
				}
			case "blocks":
				if err := FillBlock(b, item[1]); err != nil {
					return err
				}
			default:
				if child := b.Block(key); child != nil {
					if err := FillBlock(child, item[1]); err != nil {
						return fmt.Errorf("%s: %w", key, err)
					}
				}
			}
		}
	default:
		return fmt.Errorf("cannot fill block %q from %s", b.Path(), val.Type())
	}
	return nil
}

func fillVars(b *blocktpl.Block, val starlark.Value) error {
	if d, ok := val.(*starlark.Dict); ok {
		for k, v := range ToRow(d) {
			b.SetVar(k, v)
		}
		return nil
	}
	rows, err := ToRows(val)
	if err != nil {
		return fmt.Errorf("vars: %w", err)
	}
	for _, row := range rows {
		b.AddRow(row)
	}
	return nil
}
