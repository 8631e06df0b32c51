package views

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"fidchannels/backend"
	"fidchannels/internal/analytics"
	"fidchannels/internal/channels"
)

// Renderer writes channel, frame and stats tables
type Renderer struct {
	view   *View
	writer io.Writer
	color  bool

	headerStyle lipgloss.Style
	memberStyle lipgloss.Style
	dimStyle    lipgloss.Style
}

// NewRenderer creates a renderer for the given view.
// Colors are used only when writer is a terminal and NO_COLOR is unset.
func NewRenderer(view *View, writer io.Writer) *Renderer {
	if view == nil {
		view = DefaultView()
	}
	return &Renderer{
		view:   view,
		writer: writer,
		color:  IsColorTerminal(writer),
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		memberStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
	}
}

// IsColorTerminal reports whether w is a terminal that should get colors
func IsColorTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetColor overrides terminal detection
func (r *Renderer) SetColor(enabled bool) {
	r.color = enabled
}

// RenderChannels renders channels according to the view configuration
func (r *Renderer) RenderChannels(list []channels.MemberChannel) {
	if len(list) == 0 {
		_, _ = fmt.Fprintln(r.writer, r.style(r.dimStyle, "No channels"))
		return
	}

	r.renderHeader(r.view)
	for i := range list {
		c := &list[i]
		r.renderRow(r.view, func(f Field) string {
			return channelField(c, f)
		}, c.IsMember)
	}
}

// RenderFrames renders ranked frames, best first
func (r *Renderer) RenderFrames(frames []backend.Frame) {
	if len(frames) == 0 {
		_, _ = fmt.Fprintln(r.writer, r.style(r.dimStyle, "No frames"))
		return
	}

	view := framesView()
	r.renderHeader(view)
	for i := range frames {
		fr := &frames[i]
		rank := i + 1
		r.renderRow(view, func(f Field) string {
			switch f.Name {
			case "rank":
				return strconv.Itoa(rank)
			case "score":
				return strconv.FormatFloat(fr.Score, 'f', 4, 64)
			case "name":
				return fr.FrameName
			case "url":
				return fr.URL
			}
			return ""
		}, false)
	}
}

// RenderStats renders analytics summaries
func (r *Renderer) RenderStats(summaries []analytics.OperationSummary) {
	if len(summaries) == 0 {
		_, _ = fmt.Fprintln(r.writer, r.style(r.dimStyle, "No events recorded"))
		return
	}

	view := statsView()
	r.renderHeader(view)
	for i := range summaries {
		s := &summaries[i]
		r.renderRow(view, func(f Field) string {
			switch f.Name {
			case "operation":
				return s.Operation
			case "backend":
				return s.Backend
			case "total":
				return strconv.FormatInt(s.Total, 10)
			case "success":
				return fmt.Sprintf("%.1f%%", s.SuccessRate())
			case "avg_ms":
				return fmt.Sprintf("%.0f", s.AvgDurationMs)
			case "top_error":
				return s.TopError
			}
			return ""
		}, false)
	}
}

func (r *Renderer) renderHeader(view *View) {
	if view.NoHeader {
		return
	}
	parts := make([]string, 0, len(view.Fields))
	for _, field := range view.Fields {
		parts = append(parts, fit(strings.ToUpper(field.Name), field))
	}
	line := strings.TrimRight(strings.Join(parts, " "), " ")
	_, _ = fmt.Fprintln(r.writer, r.style(r.headerStyle, line))
}

func (r *Renderer) renderRow(view *View, value func(Field) string, highlight bool) {
	parts := make([]string, 0, len(view.Fields))
	for _, field := range view.Fields {
		parts = append(parts, fit(value(field), field))
	}
	line := strings.TrimRight(strings.Join(parts, " "), " ")
	if highlight {
		line = r.style(r.memberStyle, line)
	}
	_, _ = fmt.Fprintln(r.writer, line)
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

// channelField formats a channel field according to field configuration
func channelField(c *channels.MemberChannel, field Field) string {
	switch field.Name {
	case "id":
		return c.ID
	case "name":
		return c.Name
	case "description":
		return strings.Join(strings.Fields(c.Description), " ")
	case "followers":
		return strconv.Itoa(c.FollowerCount)
	case "member":
		if c.IsMember {
			return "yes"
		}
		return "-"
	case "lead":
		if c.LeadFID == 0 {
			return ""
		}
		return c.LeadFID.String()
	case "moderators":
		ids := make([]string, 0, len(c.ModeratorFIDs))
		for _, fid := range c.ModeratorFIDs {
			ids = append(ids, fid.String())
		}
		return strings.Join(ids, ",")
	case "created":
		return formatUnix(c.CreatedAt, field.Format)
	case "url":
		return c.URL
	case "image_url":
		return c.ImageURL
	}
	return ""
}

// fit truncates and pads value to the field width. Widths are measured in
// terminal cells so emoji in channel names keep columns aligned.
func fit(value string, field Field) string {
	if field.Width <= 0 {
		return value
	}
	if field.Truncate && lipgloss.Width(value) > field.Width {
		value = truncate(value, field.Width)
	}

	pos := lipgloss.Left
	switch field.Align {
	case "right":
		pos = lipgloss.Right
	case "center":
		pos = lipgloss.Center
	}
	return lipgloss.PlaceHorizontal(field.Width, pos, value)
}

func truncate(value string, width int) string {
	if width <= 3 {
		return strings.Repeat(".", width)
	}
	var b strings.Builder
	for _, r := range value {
		if lipgloss.Width(b.String()+string(r)) > width-3 {
			break
		}
		b.WriteRune(r)
	}
	return b.String() + "..."
}

// formatUnix formats a unix timestamp for display
func formatUnix(sec int64, format string) string {
	if sec == 0 {
		return ""
	}
	if format == "" {
		format = DefaultDateFormat
	}
	return time.Unix(sec, 0).UTC().Format(format)
}

// RenderChannelsWithView is a convenience function for rendering channels with a view
func RenderChannelsWithView(list []channels.MemberChannel, view *View, writer io.Writer) {
	NewRenderer(view, writer).RenderChannels(list)
}
