package inspect

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wadze/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type sectionEntry struct {
	title string
	count int
	lines []string
}

type browserModel struct {
	err      error
	filename string
	sections []sectionEntry
	selected int
	viewport viewport.Model
	width    int
	height   int
	state    modelState
	ready    bool
}

type modelState int

const (
	stateSections modelState = iota
	stateDetail
)

func newBrowserModel(filename string) *browserModel {
	return &browserModel{filename: filename, state: stateSections}
}

type loadedMsg struct {
	err      error
	sections []sectionEntry
}

func (m *browserModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *browserModel) loadModule() tea.Msg {
	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	mod, err := wasm.ParseModule(data)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{sections: buildSections(mod)}
}

func buildSections(m *wasm.Module) []sectionEntry {
	var sections []sectionEntry

	types := sectionEntry{title: "types", count: len(m.Types)}
	for i, ft := range m.Types {
		types.lines = append(types.lines, fmt.Sprintf("type %d: %s", i, sigString(ft)))
	}
	sections = append(sections, types)

	imports := sectionEntry{title: "imports", count: len(m.Imports)}
	for _, imp := range m.Imports {
		imports.lines = append(imports.lines,
			fmt.Sprintf("%s %s.%s", wasm.KindName(imp.Desc.Kind), imp.Module, imp.Name))
	}
	sections = append(sections, imports)

	funcs := sectionEntry{title: "functions", count: len(m.Code)}
	imported := m.NumImportedFuncs()
	for i, entry := range m.Code {
		line := fmt.Sprintf("func %d", imported+i)
		if i < len(m.Funcs) && int(m.Funcs[i]) < len(m.Types) {
			line += " " + sigString(m.Types[m.Funcs[i]])
		}
		code, err := wasm.DecodeCode(entry.Body)
		if err != nil {
			funcs.lines = append(funcs.lines, line+" <"+err.Error()+">")
			continue
		}
		funcs.lines = append(funcs.lines, line)
		funcs.lines = appendInstrLines(funcs.lines, code.Body, 1)
	}
	sections = append(sections, funcs)

	tables := sectionEntry{title: "tables", count: len(m.Tables)}
	for i, t := range m.Tables {
		tables.lines = append(tables.lines,
			fmt.Sprintf("table %d: %s %s", i, t.ElemType, limitsString(t.Limits)))
	}
	sections = append(sections, tables)

	memories := sectionEntry{title: "memories", count: len(m.Memories)}
	for i, mem := range m.Memories {
		memories.lines = append(memories.lines,
			fmt.Sprintf("memory %d: %s pages", i, limitsString(mem.Limits)))
	}
	sections = append(sections, memories)

	globals := sectionEntry{title: "globals", count: len(m.Globals)}
	for i, g := range m.Globals {
		mut := "const"
		if g.Type.Mutable {
			mut = "var"
		}
		globals.lines = append(globals.lines,
			fmt.Sprintf("global %d: %s %s = %s", i, mut, g.Type.ValType, exprString(g.Init)))
	}
	sections = append(sections, globals)

	exports := sectionEntry{title: "exports", count: len(m.Exports)}
	for _, exp := range m.Exports {
		exports.lines = append(exports.lines,
			fmt.Sprintf("%s %s (index %d)", wasm.KindName(exp.Kind), exp.Name, exp.Idx))
	}
	sections = append(sections, exports)

	elements := sectionEntry{title: "elements", count: len(m.Elements)}
	for i, el := range m.Elements {
		elements.lines = append(elements.lines,
			fmt.Sprintf("segment %d: table %d at %s, %d funcs",
				i, el.TableIdx, exprString(el.Offset), len(el.FuncIdxs)))
	}
	sections = append(sections, elements)

	data := sectionEntry{title: "data", count: len(m.Data)}
	for i, seg := range m.Data {
		data.lines = append(data.lines,
			fmt.Sprintf("segment %d: memory %d at %s, %d bytes",
				i, seg.MemIdx, exprString(seg.Offset), len(seg.Init)))
	}
	sections = append(sections, data)

	custom := sectionEntry{title: "custom", count: len(m.CustomSections)}
	for _, cs := range m.CustomSections {
		custom.lines = append(custom.lines, fmt.Sprintf("%q: %d bytes", cs.Name, len(cs.Data)))
	}
	sections = append(sections, custom)

	if m.Start != nil {
		sections = append(sections, sectionEntry{
			title: "start",
			count: 1,
			lines: []string{fmt.Sprintf("func %d", *m.Start)},
		})
	}
	return sections
}

func appendInstrLines(lines []string, instrs []wasm.Instruction, depth int) []string {
	indent := strings.Repeat("  ", depth)
	for _, instr := range instrs {
		lines = append(lines, indent+instr.String())
		switch imm := instr.Imm.(type) {
		case wasm.BlockImm:
			lines = appendInstrLines(lines, imm.Body, depth+1)
			lines = append(lines, indent+"end")
		case wasm.IfImm:
			lines = appendInstrLines(lines, imm.Then, depth+1)
			if imm.Else != nil {
				lines = append(lines, indent+"else")
				lines = appendInstrLines(lines, imm.Else, depth+1)
			}
			lines = append(lines, indent+"end")
		}
	}
	return lines
}

func sigString(ft wasm.FuncType) string {
	params := make([]string, len(ft.Params))
	for i, t := range ft.Params {
		params[i] = t.String()
	}
	results := make([]string, len(ft.Results))
	for i, t := range ft.Results {
		results[i] = t.String()
	}
	s := "(" + strings.Join(params, ", ") + ")"
	if len(results) > 0 {
		s += " -> " + strings.Join(results, ", ")
	}
	return s
}

func limitsString(l wasm.Limits) string {
	if l.Max != nil {
		return fmt.Sprintf("[%d..%d]", l.Min, *l.Max)
	}
	return fmt.Sprintf("[%d..]", l.Min)
}

// exprString renders a constant initializer as its instruction sequence,
// dropping the trailing end for brevity.
func exprString(expr []byte) string {
	instrs, err := wasm.DecodeInstructions(expr)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	parts := make([]string, len(instrs))
	for i, instr := range instrs {
		parts[i] = instr.String()
	}
	return strings.Join(parts, "; ")
}

func (m *browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSections && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSections && m.selected < len(m.sections)-1 {
				m.selected++
			}

		case "enter":
			if m.state == stateSections && len(m.sections) > 0 {
				m.viewport.SetContent(strings.Join(m.sections[m.selected].lines, "\n"))
				m.viewport.GotoTop()
				m.state = stateDetail
			}

		case "esc":
			if m.state == stateDetail {
				m.state = stateSections
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.sections = msg.sections
	}

	if m.state == stateDetail {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *browserModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if len(m.sections) == 0 {
		return "Loading module..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("wadze"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSections:
		for i, s := range m.sections {
			line := fmt.Sprintf("%-10s %s", s.title, countStyle.Render(fmt.Sprintf("%d", s.count)))
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + sectionStyle.Render(line))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter open • q quit"))

	case stateDetail:
		s := m.sections[m.selected]
		b.WriteString(sectionStyle.Render(s.title))
		b.WriteString("\n")
		if m.ready {
			b.WriteString(m.viewport.View())
		} else {
			b.WriteString(strings.Join(s.lines, "\n"))
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • esc back • q quit"))
	}
	return b.String()
}
