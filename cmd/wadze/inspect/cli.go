package inspect

import (
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [path to module]",
		Short: "Browse a WebAssembly module interactively",
		Long:  "Browse a WebAssembly module's sections and disassembled code in a terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("inspect requires a terminal; use dump for non-interactive output")
			}
			p := tea.NewProgram(newBrowserModel(args[0]), tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}
}
