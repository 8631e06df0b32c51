// Package tui provides an interactive browser for the channels a FID follows.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fidchannels/backend"
	"fidchannels/internal/channels"
)

// Source lists channels with membership; satisfied by *channels.Aggregator
type Source interface {
	ListWithMembership(ctx context.Context, fid backend.FID, opts channels.Options) ([]channels.MemberChannel, error)
}

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeFilter
	ModeHelp
)

// Model represents the TUI state
type Model struct {
	source Source
	ctx    context.Context
	fid    backend.FID

	// Data
	channels    []channels.MemberChannel
	filteredIdx []int // indices into channels for the filtered view
	loading     bool
	err         error

	// Selection and view options
	cursor      int
	sort        channels.Sort
	membersOnly bool

	// Mode and input
	mode      Mode
	textInput textinput.Model
	filter    string

	// UI dimensions
	width  int
	height int

	// Styles
	listPaneStyle   lipgloss.Style
	detailPaneStyle lipgloss.Style
	selectedStyle   lipgloss.Style
	memberStyle     lipgloss.Style
	labelStyle      lipgloss.Style
	helpStyle       lipgloss.Style
	errorStyle      lipgloss.Style
	dialogStyle     lipgloss.Style
	statusBarStyle  lipgloss.Style
}

// Message types
type channelsLoadedMsg struct {
	channels []channels.MemberChannel
}

type errMsg struct {
	err error
}

// New creates a browser for fid's channels, initially ordered by sort
func New(ctx context.Context, source Source, fid backend.FID, sort channels.Sort) *Model {
	ti := textinput.New()
	ti.Placeholder = "Channel name..."
	ti.CharLimit = 64

	return &Model{
		source:    source,
		ctx:       ctx,
		fid:       fid,
		sort:      sort,
		textInput: ti,
		mode:      ModeNormal,
		listPaneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		detailPaneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		memberStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
	}
}

// Init loads the first listing
func (m *Model) Init() tea.Cmd {
	return m.load()
}

func (m *Model) load() tea.Cmd {
	m.loading = true
	fid, sort := m.fid, m.sort
	return func() tea.Msg {
		list, err := m.source.ListWithMembership(m.ctx, fid, channels.Options{Sort: sort})
		if err != nil {
			return errMsg{err}
		}
		return channelsLoadedMsg{list}
	}
}

// Selected returns the channel under the cursor, or nil
func (m *Model) Selected() *channels.MemberChannel {
	if m.cursor < 0 || m.cursor >= len(m.filteredIdx) {
		return nil
	}
	return &m.channels[m.filteredIdx[m.cursor]]
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case channelsLoadedMsg:
		m.loading = false
		m.err = nil
		m.channels = msg.channels
		m.applyFilter()
		return m, nil

	case errMsg:
		m.loading = false
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeFilter:
			return m.handleFilterMode(msg)
		case ModeHelp:
			m.mode = ModeNormal
			return m, nil
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case "down", "j":
			if m.cursor < len(m.filteredIdx)-1 {
				m.cursor++
			}
			return m, nil

		case "g", "home":
			m.cursor = 0
			return m, nil

		case "G", "end":
			if len(m.filteredIdx) > 0 {
				m.cursor = len(m.filteredIdx) - 1
			}
			return m, nil

		case "s":
			m.sort = nextSort(m.sort)
			return m, m.load()

		case "r":
			return m, m.load()

		case "m":
			m.membersOnly = !m.membersOnly
			m.applyFilter()
			return m, nil

		case "/":
			m.mode = ModeFilter
			m.textInput.Reset()
			m.textInput.SetValue(m.filter)
			m.textInput.Focus()
			return m, textinput.Blink

		case "esc":
			if m.filter != "" {
				m.filter = ""
				m.applyFilter()
			}
			return m, nil

		case "?":
			m.mode = ModeHelp
			return m, nil
		}
	}

	return m, nil
}

// handleFilterMode narrows the list as the user types
func (m *Model) handleFilterMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.mode = ModeNormal
		m.textInput.Blur()
		return m, nil

	case tea.KeyEsc:
		m.filter = ""
		m.applyFilter()
		m.mode = ModeNormal
		m.textInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	m.filter = m.textInput.Value()
	m.applyFilter()
	return m, cmd
}

func nextSort(s channels.Sort) channels.Sort {
	switch s {
	case channels.SortNone:
		return channels.SortMembersFirst
	case channels.SortMembersFirst:
		return channels.SortFollowers
	default:
		return channels.SortNone
	}
}

func (m *Model) applyFilter() {
	m.filteredIdx = nil
	filter := strings.ToLower(m.filter)
	for i, c := range m.channels {
		if m.membersOnly && !c.IsMember {
			continue
		}
		if filter == "" || strings.Contains(strings.ToLower(c.Name), filter) {
			m.filteredIdx = append(m.filteredIdx, i)
		}
	}
	if m.cursor >= len(m.filteredIdx) {
		m.cursor = 0
	}
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	if m.mode == ModeHelp {
		return m.centerDialog(m.dialogStyle.Render(helpText))
	}

	listWidth := m.width * 2 / 5
	detailWidth := m.width - listWidth - 4

	listPane := m.listPaneStyle.Width(listWidth).Height(m.height - 4).Render(m.renderListPane(listWidth - 4))
	detailPane := m.detailPaneStyle.Width(detailWidth).Height(m.height - 4).Render(m.renderDetailPane(detailWidth - 4))

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane))
	b.WriteString("\n")
	if m.mode == ModeFilter {
		b.WriteString("Filter: " + m.textInput.View())
	} else {
		b.WriteString(m.renderStatusBar())
	}
	return b.String()
}

func (m *Model) renderListPane(width int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Channels of FID %s\n", m.fid))
	b.WriteString(strings.Repeat("─", max(width, 1)))
	b.WriteString("\n")

	switch {
	case m.loading && len(m.channels) == 0:
		b.WriteString("Loading...\n")
		return b.String()
	case m.err != nil && len(m.channels) == 0:
		b.WriteString(m.errorStyle.Render(m.err.Error()) + "\n")
		return b.String()
	case len(m.filteredIdx) == 0:
		b.WriteString("No channels\n")
		return b.String()
	}

	// Keep the cursor visible in short terminals
	rows := max(m.height-8, 1)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := min(start+rows, len(m.filteredIdx))

	for i := start; i < end; i++ {
		c := m.channels[m.filteredIdx[i]]
		cursor := " "
		marker := " "
		if c.IsMember {
			marker = m.memberStyle.Render("●")
		}
		name := c.Name
		if name == "" {
			name = c.ID
		}
		if i == m.cursor {
			cursor = ">"
			name = m.selectedStyle.Render(name)
		}
		b.WriteString(cursor + " " + marker + " " + name + "\n")
	}
	return b.String()
}

func (m *Model) renderDetailPane(width int) string {
	c := m.Selected()
	if c == nil {
		return ""
	}

	member := "no"
	if c.IsMember {
		member = m.memberStyle.Render("yes")
	}

	rows := [][2]string{
		{"ID", c.ID},
		{"Name", c.Name},
		{"Followers", strconv.Itoa(c.FollowerCount)},
		{"Member", member},
	}
	if c.LeadFID != 0 {
		rows = append(rows, [2]string{"Lead", c.LeadFID.String()})
	}
	if len(c.ModeratorFIDs) > 0 {
		mods := make([]string, 0, len(c.ModeratorFIDs))
		for _, fid := range c.ModeratorFIDs {
			mods = append(mods, fid.String())
		}
		rows = append(rows, [2]string{"Moderators", strings.Join(mods, ", ")})
	}
	if c.CreatedAt > 0 {
		rows = append(rows, [2]string{"Created", time.Unix(c.CreatedAt, 0).UTC().Format("2006-01-02")})
	}
	if c.URL != "" {
		rows = append(rows, [2]string{"URL", c.URL})
	}

	var b strings.Builder
	for _, row := range rows {
		b.WriteString(m.labelStyle.Render(fmt.Sprintf("%-11s", row[0])) + row[1] + "\n")
	}
	if c.Description != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(max(width, 1)).Render(strings.Join(strings.Fields(c.Description), " ")))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderStatusBar() string {
	left := fmt.Sprintf("sort: %s  %d/%d", m.sort, len(m.filteredIdx), len(m.channels))
	if m.membersOnly {
		left += "  members only"
	}
	if m.filter != "" {
		left += "  filter: " + m.filter
	}
	if m.loading {
		left += "  loading..."
	}
	if m.err != nil && len(m.channels) > 0 {
		left += "  " + m.errorStyle.Render("refresh failed: "+m.err.Error())
	}

	right := "q:quit  ?:help"
	padding := m.width - lipgloss.Width(left) - len(right) - 2
	if padding < 1 {
		padding = 1
	}

	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

const helpText = `Help - Key Bindings

Navigation:
  j/↓    Move down
  k/↑    Move up
  g/G    First/last channel

View:
  /      Filter by name
  Esc    Clear filter
  m      Toggle members only
  s      Cycle sort (none, members, followers)
  r      Reload listing and membership

General:
  ?      Show this help
  q      Quit

Press any key to close`

func (m *Model) centerDialog(dialog string) string {
	lines := strings.Split(dialog, "\n")
	dialogWidth := 0
	for _, line := range lines {
		dialogWidth = max(dialogWidth, lipgloss.Width(line))
	}

	topPad := max((m.height-len(lines))/2, 0)
	leftPad := max((m.width-dialogWidth)/2, 0)

	var b strings.Builder
	b.WriteString(strings.Repeat("\n", topPad))
	for _, line := range lines {
		b.WriteString(strings.Repeat(" ", leftPad))
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
