// Package browse provides the Bubble Tea browser for reshaped tables.
package browse

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/trialshape/internal/grid"
	"github.com/verte-zerg/trialshape/internal/model"
	"github.com/verte-zerg/trialshape/internal/stats"
)

const (
	tabTable = iota
	tabSummary
	tabHistory
)

const minColumnWidth = 4

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// RunLister loads recorded runs. *store.Store satisfies it.
type RunLister interface {
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.RunRecord, error)
}

// Model implements the Bubble Tea browser.
type Model struct {
	path       string
	outputPath string
	grid       grid.Grid
	history    RunLister

	runs    []model.RunRecord
	errMsg  string
	filter  string
	visible grid.Grid

	tabs      []string
	activeTab int
	viewports []viewport.Model
	table     table.Model

	width  int
	height int

	filterMode  bool
	filterInput textinput.Model
}

// NewModel constructs a browser for the reshaped grid loaded from path.
// history may be nil, in which case the History tab stays empty.
func NewModel(path string, g grid.Grid, history RunLister) *Model {
	m := &Model{
		path:       path,
		outputPath: OutputPath(path),
		grid:       g,
		history:    history,
		tabs:       []string{"Table", "Summary", "History"},
	}
	m.filterInput = newFilterInput("Participant: ")
	m.table = newTable()
	m.initViewports()
	m.loadRuns()
	m.applyFilter("")
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "/":
			return m.startFilter()
		case "esc":
			if m.filter != "" {
				m.applyFilter("")
			}
			return m, nil
		case "r":
			m.loadRuns()
			m.renderTabContents()
			return m, nil
		case "g", "home":
			if m.activeTab == tabTable {
				m.table.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabTable {
				m.table.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabTable {
				var cmd tea.Cmd
				m.table, cmd = m.table.Update(msg)
				return m, cmd
			}
			vp := m.viewports[m.activeTab]
			var cmd tea.Cmd
			vp, cmd = vp.Update(msg)
			m.viewports[m.activeTab] = vp
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

// Visible returns the rows currently shown, header included.
func (m *Model) Visible() grid.Grid {
	return m.visible
}

func (m *Model) initViewports() {
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.Placeholder = "id prefix"
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func newTable() table.Model {
	t := table.New(table.WithHeight(1))
	t.SetStyles(tableStyles())
	t.Focus()
	return t
}

func tableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = bodyHeight
	}
	m.table.SetWidth(m.width)
	m.table.SetHeight(maxInt(1, bodyHeight-1))
	promptWidth := lipgloss.Width(m.filterInput.Prompt)
	m.filterInput.Width = maxInt(10, m.width-promptWidth-2)
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	if count == 0 {
		return
	}
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == tabTable {
		m.table.Focus()
	} else {
		m.table.Blur()
	}
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterInput.SetValue(m.filter)
	m.filterInput.CursorEnd()
	return m, m.filterInput.Focus()
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterInput.Blur()
		m.updateLayout()
		return m, nil
	case tea.KeyEnter:
		m.filterMode = false
		m.filterInput.Blur()
		m.applyFilter(m.filterInput.Value())
		m.updateLayout()
		return m, nil
	}
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	return m, cmd
}

func (m *Model) applyFilter(prefix string) {
	m.filter = strings.TrimSpace(prefix)
	m.visible = FilterParticipants(m.grid, m.filter)
	cols, rows := buildTableData(m.visible)
	// Rows must be cleared first: SetColumns re-renders the old rows against
	// the new column count.
	m.table.SetRows(nil)
	m.table.SetColumns(cols)
	m.table.SetRows(rows)
	m.table.GotoTop()
	m.renderTabContents()
}

func (m *Model) loadRuns() {
	m.errMsg = ""
	m.runs = nil
	if m.history == nil {
		return
	}
	runs, err := m.history.ListRuns(context.Background(), model.RunFilter{OutputPath: m.outputPath})
	if err != nil {
		m.errMsg = fmt.Sprintf("failed to load history: %v", err)
		return
	}
	m.runs = runs
}

func (m *Model) renderTabContents() {
	if len(m.viewports) == 0 {
		return
	}
	m.viewports[tabSummary].SetContent(renderSummary(m.visible))
	m.viewports[tabHistory].SetContent(m.renderHistory())
}

func renderSummary(g grid.Grid) string {
	var buf bytes.Buffer
	if err := stats.RenderSummary(&buf, stats.SummarizeColumns(g)); err != nil {
		return fmt.Sprintf("Failed to render summary: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func (m *Model) renderHistory() string {
	if m.history == nil {
		return "History is disabled."
	}
	if m.errMsg != "" {
		return "Failed to load history."
	}
	var buf bytes.Buffer
	if err := stats.RenderRuns(&buf, m.runs); err != nil {
		return fmt.Sprintf("Failed to render history: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	info := padLines(m.renderInfo(), m.width)
	return tabs + "\n" + info
}

func (m *Model) renderInfo() string {
	filter := "all"
	if m.filter != "" {
		filter = m.filter + "*"
	}
	participants := len(m.visible) - 1
	if participants < 0 {
		participants = 0
	}
	summary := fmt.Sprintf("File: %s  participants=%d  filter=%s", m.path, participants, filter)
	return headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderHelp() string {
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Filter: /  Clear: esc  Reload: r  Quit: q"
	return headerStyle.Render(truncateLine(help, m.width))
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return m.filterInput.View()
	}
	if m.errMsg != "" {
		return m.renderHelp() + "\n" + errorStyle.Render(m.errMsg)
	}
	return m.renderHelp()
}

func (m *Model) renderBody(height int) string {
	if m.activeTab == tabTable {
		if len(m.visible) <= 1 {
			return fitLines("No participants match.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.table.View()), m.width, height)
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

// OutputPath is the form of path recorded in run history.
func OutputPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// FilterParticipants keeps the header row and the data rows whose participant
// id starts with prefix. An empty prefix keeps everything.
func FilterParticipants(g grid.Grid, prefix string) grid.Grid {
	if len(g) == 0 {
		return g
	}
	if prefix == "" {
		return g
	}
	out := grid.Grid{g[0]}
	for _, row := range g[1:] {
		if len(row) == 0 {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(row[0]), prefix) {
			out = append(out, row)
		}
	}
	return out
}

func buildTableData(g grid.Grid) ([]table.Column, []table.Row) {
	if len(g) == 0 {
		return nil, nil
	}
	header := g[0]
	widths := make([]int, len(header))
	for i, cell := range header {
		widths[i] = maxInt(minColumnWidth, lipgloss.Width(strings.TrimSpace(cell)))
	}
	rows := make([]table.Row, 0, len(g)-1)
	for _, src := range g[1:] {
		row := make(table.Row, len(header))
		for i := range header {
			if i >= len(src) {
				continue
			}
			row[i] = strings.TrimSpace(src[i])
			widths[i] = maxInt(widths[i], lipgloss.Width(row[i]))
		}
		rows = append(rows, row)
	}
	columns := make([]table.Column, len(header))
	for i, cell := range header {
		columns[i] = table.Column{Title: strings.TrimSpace(cell), Width: widths[i]}
	}
	return columns, rows
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
