package blocktpl

import "fmt"

// Op enumerates the mutations available to code outside the engine.
type Op int

const (
	OpAddBlock Op = iota
	OpInsertBlock
	OpAddBlockAt
	OpInsertBlockAt
	OpEnableSegment
	OpDisableSegment
	OpSetVar
	OpEnableBlock
	OpDisableBlock
	OpAddRow
	OpClearRows
)

var opNames = map[Op]string{
	OpAddBlock:       "add_block",
	OpInsertBlock:    "insert_block",
	OpAddBlockAt:     "add_block_at",
	OpInsertBlockAt:  "insert_block_at",
	OpEnableSegment:  "enable_segment",
	OpDisableSegment: "disable_segment",
	OpSetVar:         "set_var",
	OpEnableBlock:    "enable_block",
	OpDisableBlock:   "disable_block",
	OpAddRow:         "add_row",
	OpClearRows:      "clear_rows",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Command is one mutation. Target is a block path relative to the block the
// command is applied to; empty means that block itself.
type Command struct {
	Op     Op
	Target string
	Name   string // block, segment or variable name
	Anchor string // AddBlockAt / InsertBlockAt
	Value  string // SetVar
	Row    Row    // AddRow
}

func (c Command) String() string {
	s := c.Op.String()
	if c.Target != "" {
		s += " @" + c.Target
	}
	if c.Name != "" {
		s += " " + c.Name
	}
	if c.Anchor != "" {
		s += " ~" + c.Anchor
	}
	return s
}

// Apply resolves the command's target below b and executes it. Commands that
// create a block return it; others return the target block.
func (b *Block) Apply(cmd Command) (*Block, error) {
	t := b.Find(cmd.Target)
	if t == nil {
		return nil, fmt.Errorf("%s: %w: %q", cmd.Op, ErrBlockNotFound, cmd.Target)
	}
	switch cmd.Op {
	case OpAddBlock:
		return t.AddBlock(cmd.Name)
	case OpInsertBlock:
		return t.InsertBlock(cmd.Name)
	case OpAddBlockAt:
		return t.AddBlockAt(cmd.Name, cmd.Anchor)
	case OpInsertBlockAt:
		return t.InsertBlockAt(cmd.Name, cmd.Anchor)
	case OpEnableSegment:
		t.EnableSegment(cmd.Name)
	case OpDisableSegment:
		t.DisableSegment(cmd.Name)
	case OpSetVar:
		if err := checkName(cmd.Name); err != nil {
			return nil, fmt.Errorf("%s: %w", cmd.Op, err)
		}
		t.SetVar(cmd.Name, cmd.Value)
	case OpEnableBlock:
		t.Enable(true)
	case OpDisableBlock:
		t.Enable(false)
	case OpAddRow:
		t.AddRow(cmd.Row)
	case OpClearRows:
		t.ClearRows()
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCommand, cmd.Op)
	}
	return t, nil
}
