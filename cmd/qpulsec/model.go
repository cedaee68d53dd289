package main

import (
	"math"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"qpulsec/circuit"
	"qpulsec/processor"
)

const demoQubits = 3

// tab selects which pipeline artifact is on screen.
type tab int

const (
	tabCircuit tab = iota
	tabSchedule
	tabPulses
	tabState
	tabCount
)

func (t tab) title() string {
	switch t {
	case tabCircuit:
		return "Circuit"
	case tabSchedule:
		return "Schedule"
	case tabPulses:
		return "Pulses"
	default:
		return "State"
	}
}

// focus represents which panel/mode has keyboard input.
type focus int

const (
	focusBrowse focus = iota
	focusAngle
)

// Model holds the inspector state: the processor, the demo circuit's
// tunable angle, and the latest run result.
type Model struct {
	proc   *processor.Processor
	angle  float64
	result *processor.Result
	runErr error

	tab        tab
	focus      focus
	angleInput textinput.Model
	statusMsg  string
	width      int
	height     int
}

func initialModel() (Model, error) {
	proc, err := processor.Default(demoQubits, demoQubits)
	if err != nil {
		return Model{}, err
	}

	ti := textinput.New()
	ti.Placeholder = "pi/4"
	ti.CharLimit = 24
	ti.Width = 16

	m := Model{
		proc:       proc,
		angle:      math.Pi / 4,
		angleInput: ti,
	}
	m.rerun()
	return m, nil
}

// demoCircuit is a GHZ preparation followed by a Toffoli, a tunable
// phase rotation, and a measured qubit with a classically controlled
// reset, chosen to exercise single-qubit, two-qubit, decomposed
// three-qubit and conditional operations in one schedule.
func demoCircuit(angle float64) circuit.Circuit {
	c := circuit.New(demoQubits, demoQubits)
	_ = c.AppendGate("H", []int{0})
	_ = c.AppendControlled("CX", []int{0}, []int{1})
	_ = c.AppendControlled("CX", []int{1}, []int{2})
	_ = c.AppendControlled("CCX", []int{0, 1}, []int{2})
	_ = c.AppendGate("RZ", []int{0}, angle)
	_ = c.Append(circuit.Measure(2, 2))
	_ = c.AppendConditioned(circuit.NewGate("X", []int{2}), 2, 1)
	return *c
}

func (m *Model) rerun() {
	res, err := m.proc.Run(demoCircuit(m.angle), nil)
	m.result = res
	m.runErr = err
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		key := msg.String()
		m.statusMsg = ""

		if key == "ctrl+c" {
			return m, tea.Quit
		}

		switch m.focus {
		case focusBrowse:
			switch key {
			case "q":
				return m, tea.Quit
			case "tab", "right", "l":
				m.tab = (m.tab + 1) % tabCount
			case "shift+tab", "left", "h":
				m.tab = (m.tab + tabCount - 1) % tabCount
			case "a":
				m.angleInput.SetValue(formatParam(m.angle))
				m.angleInput.Focus()
				m.focus = focusAngle
			case "r":
				m.rerun()
				m.statusMsg = "re-ran pipeline"
			}

		case focusAngle:
			switch key {
			case "esc":
				m.angleInput.Blur()
				m.focus = focusBrowse
			case "enter":
				val, ok := parseParamExpr(m.angleInput.Value())
				if !ok {
					m.statusMsg = "invalid angle — use numbers or pi expressions (e.g. pi/2, 3*pi/4)"
					break
				}
				m.angle = val
				m.angleInput.Blur()
				m.focus = focusBrowse
				m.rerun()
			default:
				var cmd tea.Cmd
				m.angleInput, cmd = m.angleInput.Update(msg)
				cmds = append(cmds, cmd)
			}
		}
	}

	return m, tea.Batch(cmds...)
}
