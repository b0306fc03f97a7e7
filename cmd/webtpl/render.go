package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/itease/webtpl/pkg/blocktpl"
	"github.com/itease/webtpl/pkg/starlark"
	"github.com/itease/webtpl/pkg/webtemplate"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var renderCmd = cobra.Command{
	Use:   "render [template]",
	Short: "Render a template to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataPath, _ := cmd.Flags().GetString("data")
		scriptPath, _ := cmd.Flags().GetString("script")
		sets, _ := cmd.Flags().GetStringArray("set")
		output, _ := cmd.Flags().GetString("output")

		scope, err := parseAssignments(sets)
		if err != nil {
			return err
		}

		f, err := preparePage(args[0], dataPath, scriptPath, scope)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			out, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output: %w", err)
			}
			defer out.Close()
			w = out
		}
		return f.RenderTo(w, blocktpl.Scope(scope))
	},
}

// preparePage opens a template and fills it from an optional data document
// and an optional controller script. The script sees the scope assignments
// as its request.
func preparePage(path, dataPath, scriptPath string, scope map[string]string) (*webtemplate.File, error) {
	f, err := webtemplate.Open(path, webtemplate.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	if dataPath != "" {
		d, err := webtemplate.LoadData(dataPath)
		if err != nil {
			return nil, err
		}
		if err := f.Apply(d); err != nil {
			return nil, err
		}
	}
	if scriptPath != "" {
		src, err := os.ReadFile(scriptPath)
		if err != nil {
			return nil, fmt.Errorf("reading script: %w", err)
		}
		e := starlark.NewEvaluator(slog.Default().With("script", scriptPath))
		if err := e.RunPage(scriptPath, src, starlark.NewPageValue(f.Template(), f), starlark.ConvertToStarlark(scope)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

var dumpCmd = cobra.Command{
	Use:   "dump [template]",
	Short: "Print the element tree of a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, _ := cmd.Flags().GetBool("plain")
		f, err := webtemplate.Open(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if plain || !isTerminal(out) {
			_, err := io.WriteString(out, blocktpl.Pretty(f.Template()))
			return err
		}
		_, err = io.WriteString(out, styledTree(f.Template()))
		return err
	},
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

var (
	blockStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	varStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	condStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	textStyle     = lipgloss.NewStyle().Faint(true)
	disabledStyle = lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("8"))
)

// styledTree is Pretty with colors per element kind.
func styledTree(root *blocktpl.Block) string {
	var sb strings.Builder
	sb.WriteString(blockStyle.Render("Block(" + root.Name() + ")"))
	sb.WriteByte('\n')
	_ = blocktpl.Walk(blocktpl.VisitorFunc(func(e blocktpl.Entry) error {
		style := textStyle
		switch e.Element.(type) {
		case *blocktpl.Block:
			style = blockStyle
		case *blocktpl.Variable:
			style = varStyle
		case *blocktpl.Conditional:
			style = condStyle
		}
		if !e.Enabled {
			style = disabledStyle
		}
		sb.WriteString(strings.Repeat("  ", e.Depth+1))
		sb.WriteString(style.Render(blocktpl.Describe(e)))
		sb.WriteByte('\n')
		return nil
	}), &root.Node)
	return sb.String()
}
