package inspector

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/recera/fiberiso/pkg/fault"
	"github.com/recera/fiberiso/pkg/livegraph"
)

const maxLogLines = 500

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - headerHeight
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			if m.client != nil {
				m.client.Close()
			}
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.viewport.LineUp(1)
			return m, nil
		case key.Matches(msg, keys.Down):
			m.viewport.LineDown(1)
			return m, nil
		}
		return m, nil

	case connectedMsg:
		if msg.err != nil {
			m.connErr = msg.err
			return m, nil
		}
		m.client = msg.c
		m.connected = true
		return m, waitForEvent(m.client)

	case disconnectedMsg:
		m.connected = false
		m.connErr = msg.err
		return m, nil

	case eventMsg:
		m.applyEvent(livegraph.Event(msg))
		m.viewport.SetContent(m.renderLog())
		m.viewport.GotoBottom()
		return m, waitForEvent(m.client)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// applyEvent folds ev into the running per-fiber view and appends a
// formatted line to the scrollback log.
func (m *Model) applyEvent(ev livegraph.Event) {
	st, ok := m.fibers[ev.FiberID]
	if !ok {
		st = &fiberStat{id: ev.FiberID}
		m.fibers[ev.FiberID] = st
		m.order = append(m.order, ev.FiberID)
	}

	switch ev.Kind {
	case livegraph.EventInit, livegraph.EventBefore:
		st.pending++
	case livegraph.EventAfter, livegraph.EventResolve:
		if st.pending > 0 {
			st.pending--
		}
	case livegraph.EventFault:
		evCopy := ev
		st.lastFault = &evCopy
	}

	m.log = append(m.log, m.formatEvent(ev))
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m Model) formatEvent(ev livegraph.Event) string {
	ts := ev.Timestamp.Format("15:04:05.000")
	switch ev.Kind {
	case livegraph.EventFault:
		code := ev.FaultCode
		if !knownFault(code) {
			code = "UNKNOWN(" + code + ")"
		}
		return m.styleFault.Render(fmt.Sprintf("%s fiber=%d %s %s", ts, ev.FiberID, code, ev.Message))
	default:
		return fmt.Sprintf("%s fiber=%d %-8s node=%d type=%s", ts, ev.FiberID, ev.Kind, ev.AsyncID, ev.NodeType)
	}
}

func (m Model) renderLog() string {
	out := ""
	for _, line := range m.log {
		out += line + "\n"
	}
	return out
}

// knownFault reports whether ev.FaultCode matches a real fault.Code, for
// callers that want to distinguish a genuine classification from a
// malformed event.
func knownFault(code string) bool {
	switch fault.Code(code) {
	case fault.ForeignAsyncTrigger, fault.ParentAsyncTrigger, fault.ForeignAsyncAborted, fault.FiberAborted, fault.FiberStall:
		return true
	default:
		return false
	}
}
