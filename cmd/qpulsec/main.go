// Command qpulsec is an interactive inspector for the pulse-compilation
// pipeline: it runs a demo circuit through decompose/schedule/compile and
// shows every intermediate artifact in a TUI.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	m, err := initialModel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "qpulsec: %v\n", err)
		os.Exit(1)
	}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "qpulsec: %v\n", err)
		os.Exit(1)
	}
}
