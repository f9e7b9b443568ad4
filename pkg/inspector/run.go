package inspector

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run connects to addr's livegraph endpoint and blocks running the
// inspector TUI until the user quits.
func Run(addr string) error {
	p := tea.NewProgram(New(addr), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
