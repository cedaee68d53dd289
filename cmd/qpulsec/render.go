package main

import (
	"fmt"
	"math/cmplx"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"qpulsec/circuit"
)

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sb strings.Builder
	sb.WriteString(m.renderTabs())
	sb.WriteString("\n\n")

	if m.runErr != nil {
		sb.WriteString(errStyle.Render(fmt.Sprintf("run failed: %v", m.runErr)))
		sb.WriteString("\n\n")
	}

	switch m.tab {
	case tabCircuit:
		sb.WriteString(m.renderCircuit())
	case tabSchedule:
		sb.WriteString(m.renderSchedule())
	case tabPulses:
		sb.WriteString(m.renderPulses())
	case tabState:
		sb.WriteString(m.renderState())
	}

	body := panelStyle.Width(m.width - 2).Render(sb.String())
	controls := m.renderControls()
	return lipgloss.JoinVertical(lipgloss.Left, body, controls)
}

func (m Model) renderTabs() string {
	parts := make([]string, 0, int(tabCount))
	for t := tab(0); t < tabCount; t++ {
		if t == m.tab {
			parts = append(parts, tabActiveStyle.Render("["+t.title()+"]"))
		} else {
			parts = append(parts, tabStyle.Render(" "+t.title()+" "))
		}
	}
	return strings.Join(parts, " ")
}

// renderCircuit lists the source gates next to the decomposed native
// sequence the transpiler produced.
func (m Model) renderCircuit() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Demo circuit"))
	fmt.Fprintf(&sb, "  %s\n\n", dimStyle.Render(fmt.Sprintf("RZ angle: %s", formatParam(m.angle))))

	src := demoCircuit(m.angle)
	for i, g := range src.Gates {
		fmt.Fprintf(&sb, "  %2d  %s\n", i, gateStyle.Render(gateLabel(g)))
	}

	if m.result == nil || len(m.result.Native.Gates) == 0 {
		return sb.String()
	}
	sb.WriteString("\n")
	sb.WriteString(titleStyle.Render("Native decomposition"))
	fmt.Fprintf(&sb, "  %s\n\n", dimStyle.Render(fmt.Sprintf("%d gates, depth %d", len(m.result.Native.Gates), m.result.Native.Depth())))
	for i, g := range m.result.Native.Gates {
		fmt.Fprintf(&sb, "  %2d  %s\n", i, gateLabel(g))
	}
	return sb.String()
}

func gateLabel(g circuit.Gate) string {
	var sb strings.Builder
	sb.WriteString(g.Name)
	if len(g.Params) > 0 {
		sb.WriteString("(")
		for i, p := range g.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(formatParam(p))
		}
		sb.WriteString(")")
	}
	sb.WriteString(" ")
	for _, q := range g.Controls {
		fmt.Fprintf(&sb, "c:q[%d] ", q)
	}
	for _, q := range g.Targets {
		fmt.Fprintf(&sb, "q[%d] ", q)
	}
	if g.Name == circuit.MeasureGate {
		fmt.Fprintf(&sb, "-> c[%d] ", g.Cbit)
	}
	if g.Condition != nil {
		fmt.Fprintf(&sb, "if c[%d]==%d ", g.Condition.Bit, g.Condition.Value)
	}
	return strings.TrimRight(sb.String(), " ")
}

// renderSchedule draws per-qubit occupancy lanes on a shared time axis.
func (m Model) renderSchedule() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Schedule"))
	if m.result == nil {
		return sb.String()
	}
	sched := m.result.Schedule
	fmt.Fprintf(&sb, "  %s\n\n", dimStyle.Render(fmt.Sprintf("%d gates, makespan %.3f", len(sched.Gates), sched.Duration)))

	width := m.timelineWidth()
	lanes := sched.Lanes(demoQubits)
	for q, lane := range lanes {
		row := []rune(strings.Repeat("·", width))
		for _, iv := range lane {
			a, b := m.timeToCol(iv.Start, width), m.timeToCol(iv.End, width)
			if b <= a {
				b = a + 1
			}
			for col := a; col < b && col < width; col++ {
				row[col] = '█'
			}
		}
		label := laneLabelStyle.Render(fmt.Sprintf("%-*s", labelW, fmt.Sprintf("q[%d]", q)))
		sb.WriteString("  " + label + gateStyle.Render(string(row)) + "\n")
	}

	sb.WriteString("\n")
	for _, sg := range sched.Gates {
		fmt.Fprintf(&sb, "  %2d  [%.3f, %.3f)  %s\n",
			sg.Index, sg.Start, sg.End(), gateLabel(sg.Gate))
	}
	return sb.String()
}

// renderPulses draws one row per active channel with its segments placed
// on the shared time axis.
func (m Model) renderPulses() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Pulse schedule"))
	if m.result == nil {
		return sb.String()
	}
	ps := m.result.Pulses
	fmt.Fprintf(&sb, "  %s\n\n", dimStyle.Render(fmt.Sprintf("%d channels, duration %.3f", len(ps.Channels), ps.Duration)))

	width := m.timelineWidth()
	for _, name := range ps.ChannelNames() {
		row := []rune(strings.Repeat("·", width))
		for _, seg := range ps.Channels[name] {
			a, b := m.timeToCol(seg.Start, width), m.timeToCol(seg.End(), width)
			if b <= a {
				b = a + 1
			}
			for col := a; col < b && col < width; col++ {
				row[col] = '▓'
			}
		}
		label := laneLabelStyle.Render(fmt.Sprintf("%-*s", labelW, name))
		sb.WriteString("  " + label + pulseStyle.Render(string(row)) + "\n")
	}

	sb.WriteString("\n")
	for _, seg := range ps.Segments() {
		cond := ""
		if seg.Conditional != nil {
			cond = accentStyle.Render(fmt.Sprintf("  if c[%d]==%d", seg.Conditional.Bit, seg.Conditional.Value))
		}
		fmt.Fprintf(&sb, "  %-*s [%.3f, %.3f)  %s amp=%+.3f %s%s\n",
			labelW, seg.Channel, seg.Start, seg.End(), seg.Operator, seg.Amplitude, dimStyle.Render(string(seg.Envelope)), cond)
	}
	return sb.String()
}

// renderState lists the final statevector amplitudes with probabilities.
func (m Model) renderState() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Final state"))
	if m.result == nil {
		return sb.String()
	}
	fmt.Fprintf(&sb, "  %s\n\n", dimStyle.Render(fmt.Sprintf("run %s, %s", m.result.RunID, m.result.State)))

	for i, a := range m.result.Final.Amps {
		p := real(a)*real(a) + imag(a)*imag(a)
		if p < 1e-9 {
			continue
		}
		bar := strings.Repeat("█", int(p*30+0.5))
		fmt.Fprintf(&sb, "  |%0*b>  %6.3f∠%+6.2f  %5.1f%%  %s\n",
			demoQubits, i, cmplx.Abs(a), cmplx.Phase(a), p*100, gateStyle.Render(bar))
	}

	if len(m.result.Final.Cbits) > 0 {
		fmt.Fprintf(&sb, "\n  %s\n", dimStyle.Render(fmt.Sprintf("classical register %v", m.result.Final.Cbits)))
	}

	sb.WriteString("\n")
	for name, d := range m.result.Timings {
		fmt.Fprintf(&sb, "  %s%s\n", dimStyle.Render(fmt.Sprintf("%-12s", name)), dimStyle.Render(d.String()))
	}
	return sb.String()
}

func (m Model) renderControls() string {
	var sb strings.Builder
	if m.focus == focusAngle {
		sb.WriteString(accentStyle.Render("RZ angle: "))
		sb.WriteString(m.angleInput.View())
		sb.WriteString(dimStyle.Render("   ⏎ Apply  Esc Cancel"))
	} else {
		sb.WriteString(accentStyle.Render("Tab/←→"))
		sb.WriteString(" Switch view  ")
		sb.WriteString(accentStyle.Render("a"))
		sb.WriteString(" Edit angle  ")
		sb.WriteString(accentStyle.Render("r"))
		sb.WriteString(" Re-run  ")
		sb.WriteString(accentStyle.Render("q"))
		sb.WriteString(" Quit")
	}
	if m.statusMsg != "" {
		sb.WriteString("  │  " + accentStyle.Render(m.statusMsg))
	}
	return controlsStyle.Width(m.width - 2).Render(sb.String())
}

func (m Model) timelineWidth() int {
	w := m.width - labelW - 8
	if w < 10 {
		w = timelineW
	}
	return w
}

// timeToCol maps a time point onto the timeline columns.
func (m Model) timeToCol(t float64, width int) int {
	total := m.result.Pulses.Duration
	if sd := m.result.Schedule.Duration; sd > total {
		total = sd
	}
	if total <= 0 {
		return 0
	}
	col := int(t / total * float64(width))
	if col >= width {
		col = width - 1
	}
	if col < 0 {
		col = 0
	}
	return col
}
