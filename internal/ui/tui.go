// Package ui is the terminal table browser behind "tabled browse".
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/print"
)

// Browser is the part of the table store the browser drives.
type Browser interface {
	ListTables(ctx context.Context) ([]string, error)
	ReadTable(ctx context.Context, table string) (*db.Rows, error)
	RemoveRow(ctx context.Context, table, condition string) (int64, error)
	AddColumn(ctx context.Context, table, column, typ string) error
	RemoveColumn(ctx context.Context, table, column string) error
	DefaultTable() string
	Dialect() db.Dialect
}

type pane int

const (
	paneTables pane = iota
	paneRows
)

type mode int

const (
	modeBrowse mode = iota
	modeAddColumn
	modeRemoveColumn
	modeWhere
	modeHelp
	modeDetail
)

const maxCellWidth = 30

// Mocha palette
var (
	colorBase    = lipgloss.Color("#1E1E2E")
	colorBorder  = lipgloss.Color("#595B72")
	colorText    = lipgloss.Color("#CDD6F4")
	colorSubtext = lipgloss.Color("#A6ADC8")
	colorTitle   = lipgloss.Color("#89DCEB")
	colorAccent  = lipgloss.Color("#C0A1F0")
	colorError   = lipgloss.Color("#F38BA8")
	colorOK      = lipgloss.Color("#A6E3A1")

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
	focusedPaneStyle = paneStyle.BorderForeground(colorTitle)
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	selectedStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorBase).Background(colorAccent)
	dimStyle         = lipgloss.NewStyle().Foreground(colorSubtext)
)

type tablesMsg struct {
	tables []string
	err    error
}

type rowsMsg struct {
	table string
	rows  *db.Rows
	err   error
}

type doneMsg struct {
	status string
	err    error
}

// Model is the bubbletea model of the browser.
type Model struct {
	ctx   context.Context
	b     Browser
	label string

	tables  []string
	cursor  int
	current string
	rows    *db.Rows

	grid  table.Model
	input textinput.Model

	focus     pane
	mode      mode
	status    string
	statusErr bool

	width, height int
}

// New builds a browser model over b. label names the connection in the
// header, e.g. the driver.
func New(ctx context.Context, b Browser, label string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 256
	ti.Cursor.SetMode(cursor.CursorStatic)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(colorTitle)
	styles.Selected = styles.Selected.Foreground(colorBase).Background(colorAccent).Bold(false)

	grid := table.New(table.WithHeight(10), table.WithWidth(64))
	grid.SetStyles(styles)

	return Model{
		ctx:    ctx,
		b:      b,
		label:  label,
		grid:   grid,
		input:  ti,
		width:  100,
		height: 30,
		status: "Loading tables...",
	}
}

// Run starts the browser on the terminal and blocks until the user quits
// or ctx is done.
func Run(ctx context.Context, b Browser, label string) error {
	p := tea.NewProgram(New(ctx, b, label), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return m.loadTables()
}

func (m Model) loadTables() tea.Cmd {
	return func() tea.Msg {
		tables, err := m.b.ListTables(m.ctx)
		return tablesMsg{tables: tables, err: err}
	}
}

func (m Model) loadRows(table string) tea.Cmd {
	return func() tea.Msg {
		rows, err := m.b.ReadTable(m.ctx, table)
		return rowsMsg{table: table, rows: rows, err: err}
	}
}

func (m Model) mutate(status string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{status: status}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.grid.SetHeight(max(m.height-12, 3))
		m.grid.SetWidth(max(m.width-36, 20))
		return m, nil

	case tablesMsg:
		if msg.err != nil {
			m.setError(fmt.Errorf("loading tables: %w", msg.err))
			return m, nil
		}
		m.tables = msg.tables
		if len(m.tables) == 0 {
			m.setStatus("No tables.")
			return m, nil
		}
		if m.current == "" || indexOf(m.tables, m.current) < 0 {
			m.current = m.tables[0]
			if i := indexOf(m.tables, m.b.DefaultTable()); i >= 0 {
				m.current = m.tables[i]
			}
		}
		m.cursor = indexOf(m.tables, m.current)
		return m, m.loadRows(m.current)

	case rowsMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.current = msg.table
		m.rows = msg.rows
		m.fillGrid()
		m.setStatus(fmt.Sprintf("%s: %d rows", msg.table, len(msg.rows.Data)))
		return m, nil

	case doneMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.setStatus(msg.status)
		return m, tea.Batch(m.loadTables(), m.loadRows(m.current))

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.mode {
	case modeHelp, modeDetail:
		switch key {
		case "esc", "enter", "q", "?":
			m.mode = modeBrowse
		}
		return m, nil

	case modeAddColumn, modeRemoveColumn, modeWhere:
		switch key {
		case "esc":
			m.closeInput()
			m.setStatus("Cancelled.")
			return m, nil
		case "enter":
			return m.submitInput()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "?":
		m.mode = modeHelp
		return m, nil
	case "tab", "ctrl+h", "ctrl+l":
		m.toggleFocus(key)
		return m, nil
	case "r":
		m.setStatus("Reloading...")
		return m, tea.Batch(m.loadTables(), m.loadRows(m.current))
	case "a":
		return m.openInput(modeAddColumn, "column name [type]")
	case "c":
		return m.openInput(modeRemoveColumn, "column to remove")
	case "w":
		return m.openInput(modeWhere, "delete rows where ...")
	case "d":
		return m.deleteSelected()
	}

	if m.focus == paneTables {
		switch key {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.tables)-1 {
				m.cursor++
			}
		case "enter":
			if m.cursor < len(m.tables) {
				m.focus = paneRows
				m.grid.Focus()
				return m, m.loadRows(m.tables[m.cursor])
			}
		}
		return m, nil
	}

	if key == "enter" {
		if m.rows != nil && len(m.rows.Data) > 0 {
			m.mode = modeDetail
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.grid, cmd = m.grid.Update(msg)
	return m, cmd
}

func (m *Model) toggleFocus(key string) {
	switch {
	case key == "ctrl+h" || (key == "tab" && m.focus == paneRows):
		m.focus = paneTables
		m.grid.Blur()
	default:
		m.focus = paneRows
		m.grid.Focus()
	}
}

func (m Model) openInput(md mode, placeholder string) (tea.Model, tea.Cmd) {
	if m.current == "" {
		m.setError(fmt.Errorf("no table selected"))
		return m, nil
	}
	m.mode = md
	m.input.Reset()
	m.input.Placeholder = placeholder
	return m, m.input.Focus()
}

func (m *Model) closeInput() {
	m.mode = modeBrowse
	m.input.Blur()
	m.input.Reset()
}

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	md, table := m.mode, m.current
	m.closeInput()
	if value == "" {
		m.setStatus("Cancelled.")
		return m, nil
	}

	switch md {
	case modeAddColumn:
		name, typ, _ := strings.Cut(value, " ")
		typ = strings.TrimSpace(typ)
		return m, m.mutate(fmt.Sprintf("Column %s added to %s.", name, table), func() error {
			return m.b.AddColumn(m.ctx, table, name, typ)
		})
	case modeRemoveColumn:
		return m, m.mutate(fmt.Sprintf("Column %s removed from %s.", value, table), func() error {
			return m.b.RemoveColumn(m.ctx, table, value)
		})
	default:
		return m, func() tea.Msg {
			n, err := m.b.RemoveRow(m.ctx, table, value)
			if err != nil {
				return doneMsg{err: err}
			}
			return doneMsg{status: fmt.Sprintf("%d rows removed from %s.", n, table)}
		}
	}
}

// deleteSelected removes the highlighted row by its primary key.
func (m Model) deleteSelected() (tea.Model, tea.Cmd) {
	row, ok := m.selectedRow()
	if !ok {
		return m, nil
	}
	keys := db.KeyColumns(m.rows.Columns)
	if len(keys) != 1 {
		m.setError(fmt.Errorf("%s has no single-column primary key", m.current))
		return m, nil
	}
	key := keys[0].Name
	v, _ := row.Get(key)
	lit, err := literal(v)
	if err != nil {
		m.setError(err)
		return m, nil
	}

	table := m.current
	cond := m.b.Dialect().Quote(key) + " = " + lit
	return m, m.mutate(fmt.Sprintf("Deleted %s = %s from %s.", key, v.String(), table), func() error {
		n, err := m.b.RemoveRow(m.ctx, table, cond)
		if err == nil && n == 0 {
			err = fmt.Errorf("row %s = %s is gone", key, v.String())
		}
		return err
	})
}

func (m Model) selectedRow() (db.Row, bool) {
	if m.rows == nil {
		return nil, false
	}
	i := m.grid.Cursor()
	if i < 0 || i >= len(m.rows.Data) {
		return nil, false
	}
	return m.rows.Data[i], true
}

// literal renders a key value as SQL.
func literal(v db.Value) (string, error) {
	switch v.Kind() {
	case db.KindInteger, db.KindReal:
		return v.String(), nil
	case db.KindText:
		return "'" + strings.ReplaceAll(v.Str(), "'", "''") + "'", nil
	default:
		return "", fmt.Errorf("cannot match a %s key", v.Kind())
	}
}

func (m *Model) fillGrid() {
	cols := make([]table.Column, len(m.rows.Columns))
	for i, c := range m.rows.Columns {
		cols[i] = table.Column{Title: c.Name, Width: lipgloss.Width(c.Name)}
	}
	data := make([]table.Row, len(m.rows.Data))
	for ri, r := range m.rows.Data {
		cells := make(table.Row, len(cols))
		for i := range cols {
			if i < len(r) {
				cells[i] = print.FormatCell(r[i].Value)
			}
			cols[i].Width = min(max(cols[i].Width, lipgloss.Width(cells[i])), maxCellWidth)
		}
		data[ri] = cells
	}

	// Rows must never be wider than the columns.
	m.grid.SetRows(nil)
	m.grid.SetColumns(cols)
	m.grid.SetRows(data)
	if m.grid.Cursor() >= len(data) {
		m.grid.SetCursor(max(len(data)-1, 0))
	}
}

func (m *Model) setStatus(s string) {
	m.status, m.statusErr = s, false
}

func (m *Model) setError(err error) {
	m.status, m.statusErr = "Error: "+err.Error(), true
}

func (m Model) View() string {
	switch m.mode {
	case modeHelp:
		return m.overlay("Help", helpText)
	case modeDetail:
		return m.overlay("Row detail", m.detailText())
	}

	header := paneStyle.Width(28).Render(
		titleStyle.Render("TABLED") + "  " + lipgloss.NewStyle().Foreground(colorAccent).Render(strings.ToUpper(m.label)))

	var list strings.Builder
	list.WriteString(titleStyle.Render("Tables") + "\n")
	for i, t := range m.tables {
		line := "  " + t
		if i == m.cursor {
			line = selectedStyle.Render("> " + t)
		}
		list.WriteString(line + "\n")
	}
	tablesPane := m.styleFor(paneTables).Width(28).Height(max(m.height-10, 3)).Render(list.String())

	gridTitle := titleStyle.Render("Rows")
	if m.current != "" {
		gridTitle = titleStyle.Render(m.current)
	}
	rowsPane := m.styleFor(paneRows).Render(gridTitle + "\n" + m.grid.View())

	bottom := dimStyle.Render("? help  a add column  c remove column  d delete row  w delete where  r reload  q quit")
	if m.mode != modeBrowse {
		bottom = m.input.View()
	}

	statusStyle := lipgloss.NewStyle().Foreground(colorOK)
	if m.statusErr {
		statusStyle = lipgloss.NewStyle().Foreground(colorError)
	}

	left := lipgloss.JoinVertical(lipgloss.Left, header, tablesPane)
	main := lipgloss.JoinHorizontal(lipgloss.Top, left, rowsPane)
	return lipgloss.JoinVertical(lipgloss.Left,
		main,
		paneStyle.Width(max(m.width-4, 20)).Render(bottom),
		statusStyle.Render(" "+m.status),
	)
}

func (m Model) styleFor(p pane) lipgloss.Style {
	if m.focus == p {
		return focusedPaneStyle
	}
	return paneStyle
}

func (m Model) detailText() string {
	row, ok := m.selectedRow()
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, f := range row {
		b.WriteString(titleStyle.Render(f.Name) + "\n  ")
		b.WriteString(lipgloss.NewStyle().Foreground(colorText).Render(f.Value.String()) + "\n\n")
	}
	return b.String()
}

func (m Model) overlay(title, body string) string {
	box := focusedPaneStyle.Padding(1, 2).Render(
		titleStyle.Render(title) + dimStyle.Render("  (esc to close)") + "\n\n" + body)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

const helpText = `Global
  ctrl+c / q        quit
  ?                 toggle this help
  tab               switch between tables and rows
  ctrl+h / ctrl+l   focus tables / rows
  r                 reload

Tables pane
  up / down         move
  enter             open table

Rows pane
  up / down         move
  enter             row detail
  d                 delete the selected row by primary key
  a                 add a column ("name [type]")
  c                 remove a column
  w                 delete rows matching a condition`
