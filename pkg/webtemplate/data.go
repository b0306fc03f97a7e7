package webtemplate

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/itease/webtpl/pkg/blocktpl"
	v "github.com/itease/webtpl/pkg/validator"

	"gopkg.in/yaml.v3"
)

// Scalar is a YAML scalar flattened to template text. Booleans become "1" or
// the empty string so they work with if-blocks; null becomes empty.
type Scalar string

func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	switch node.Tag {
	case "!!null":
		*s = ""
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		if b {
			*s = "1"
		} else {
			*s = ""
		}
	default:
		*s = Scalar(node.Value)
	}
	return nil
}

// Data fills a block. It mirrors what page scripts can do with fill():
// replace the block text, set variables, append rows, toggle segments and
// recurse into child blocks.
type Data struct {
	Template string              `yaml:"template,omitempty"`
	Vars     map[string]Scalar   `yaml:"vars,omitempty"`
	Rows     []map[string]Scalar `yaml:"rows,omitempty"`
	Segments map[string]bool     `yaml:"segments,omitempty"`
	Blocks   map[string]Data     `yaml:"blocks,omitempty"`
	Hidden   bool                `yaml:"hidden,omitempty"`
}

func (d Data) Validate() error {
	return v.All(
		v.MapDict(d.Vars, func(key string, _ Scalar) error {
			return v.Identifier(key, "variable name")
		}),
		v.Map(d.Rows, func(row map[string]Scalar, desc string) error {
			return v.MapDict(row, func(key string, _ Scalar) error {
				return v.Identifier(key, desc+" column")
			})
		}, "rows"),
		v.MapDict(d.Segments, func(key string, _ bool) error {
			return v.All(
				v.NotEmpty(key, "segment name"),
				v.HasNoTags(key, "segment name"),
			)
		}),
		v.MapDict(d.Blocks, func(key string, child Data) error {
			if err := v.Identifier(key, "block name"); err != nil {
				return err
			}
			if err := child.Validate(); err != nil {
				return fmt.Errorf("block %q: %w", key, err)
			}
			return nil
		}),
	)
}

// ApplyTo copies d into b. Named child blocks must exist once the template
// text, if any, has been loaded.
func (d Data) ApplyTo(b *blocktpl.Block) error {
	if d.Template != "" {
		if err := b.Load(strings.NewReader(d.Template)); err != nil {
			return fmt.Errorf("loading template text: %w", err)
		}
	}
	for _, key := range sortedKeys(d.Vars) {
		b.SetVar(key, string(d.Vars[key]))
	}
	for _, row := range d.Rows {
		r := make(blocktpl.Row, len(row))
		for k, val := range row {
			r[k] = string(val)
		}
		b.AddRow(r)
	}
	for _, name := range sortedKeys(d.Segments) {
		if d.Segments[name] {
			b.EnableSegment(name)
		} else {
			b.DisableSegment(name)
		}
	}
	for _, name := range sortedKeys(d.Blocks) {
		child := b.Find(name)
		if child == nil {
			return fmt.Errorf("block %q: %w", name, blocktpl.ErrBlockNotFound)
		}
		if err := d.Blocks[name].ApplyTo(child); err != nil {
			return fmt.Errorf("block %q: %w", name, err)
		}
	}
	if d.Hidden {
		b.Enable(false)
	}
	return nil
}

// DecodeData reads one YAML data document. Unknown fields are rejected.
func DecodeData(r io.Reader) (Data, error) {
	var d Data
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil && err != io.EOF {
		return Data{}, fmt.Errorf("decoding data: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Data{}, fmt.Errorf("invalid data: %w", err)
	}
	return d, nil
}

// LoadData reads a YAML data document from path.
func LoadData(path string) (Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return Data{}, fmt.Errorf("opening data file: %w", err)
	}
	defer f.Close()
	d, err := DecodeData(f)
	if err != nil {
		return Data{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
