package inspector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// headerHeight is how many lines View reserves above the scrollable log
// for the status line and the per-fiber summary.
const headerHeight = 4

func (m Model) View() string {
	if m.width == 0 {
		return "initializing...\n"
	}

	var b strings.Builder
	b.WriteString(m.styleHeader.Render("fiberiso inspector"))
	b.WriteByte('\n')
	b.WriteString(m.statusLine())
	b.WriteByte('\n')
	b.WriteString(m.fiberSummary())
	b.WriteByte('\n')
	b.WriteString(m.viewport.View())
	return b.String()
}

// fiberSummary renders one line per observed fiber: its pending-resource
// count and, if any, its most recent fault code.
func (m Model) fiberSummary() string {
	ids := make([]uint64, len(m.order))
	copy(ids, m.order)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		st := m.fibers[id]
		if st.lastFault != nil {
			parts = append(parts, m.styleFault.Render(fmt.Sprintf("fiber#%d pending=%d fault=%s", id, st.pending, st.lastFault.FaultCode)))
			continue
		}
		parts = append(parts, m.styleOK.Render(fmt.Sprintf("fiber#%d pending=%d", id, st.pending)))
	}
	if len(parts) == 0 {
		return "(no fibers observed yet)"
	}
	return strings.Join(parts, "  ")
}
