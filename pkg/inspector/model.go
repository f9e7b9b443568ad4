package inspector

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/recera/fiberiso/pkg/livegraph"
)

// fiberStat tracks the running view of a single fiber's state, updated as
// Events arrive.
type fiberStat struct {
	id        uint64
	pending   int
	lastFault *livegraph.Event
}

// keyMap mirrors the teacher's KeyMap shape: named bindings instead of
// bare rune comparisons, so help text and matching stay in one place.
type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
}

// Model is the inspector's bubbletea model.
type Model struct {
	width, height int

	client *client
	addr   string

	connected bool
	connErr   error

	fibers map[uint64]*fiberStat
	order  []uint64 // first-seen order, for stable rendering

	log      []string
	viewport viewport.Model
	spin     spinner.Model

	styleHeader lipgloss.Style
	styleFault  lipgloss.Style
	styleOK     lipgloss.Style
}

// New constructs a Model that will dial addr once the bubbletea program
// starts.
func New(addr string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		addr:        addr,
		fibers:      make(map[uint64]*fiberStat),
		spin:        sp,
		viewport:    viewport.New(80, 20),
		styleHeader: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		styleFault:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		styleOK:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
}

// eventMsg wraps a single livegraph.Event delivered from the client's read
// loop into a tea.Msg.
type eventMsg livegraph.Event

// connectedMsg reports the outcome of the initial dial.
type connectedMsg struct {
	c   *client
	err error
}

// disconnectedMsg reports that the event stream ended.
type disconnectedMsg struct{ err error }

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, connectCmd(m.addr))
}

func connectCmd(addr string) tea.Cmd {
	return func() tea.Msg {
		c, err := dial(addr)
		return connectedMsg{c: c, err: err}
	}
}

func waitForEvent(c *client) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-c.Events
		if !ok {
			select {
			case err := <-c.errs:
				return disconnectedMsg{err: err}
			default:
				return disconnectedMsg{}
			}
		}
		return eventMsg(ev)
	}
}

func (m Model) statusLine() string {
	if m.connErr != nil {
		return m.styleFault.Render(fmt.Sprintf("disconnected: %v", m.connErr))
	}
	if !m.connected {
		return fmt.Sprintf("%s connecting to %s", m.spin.View(), m.addr)
	}
	return m.styleOK.Render(fmt.Sprintf("connected to %s — %d fibers observed", m.addr, len(m.order)))
}
