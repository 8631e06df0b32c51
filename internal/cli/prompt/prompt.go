// Package prompt handles interactive prompts with no-prompt mode support.
// It provides filter-then-pick channel selection for commands that need a
// single channel but were not given one.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fidchannels/backend"
)

// Sentinel errors for prompt operations.
var (
	ErrSelectionCancelled = errors.New("selection cancelled")
	ErrNoPromptMode       = errors.New("interactive prompts disabled (--no-prompt / -y)")
	ErrNoChannels         = errors.New("no channels available")
	ErrNoMatches          = errors.New("no channels match the filter")
)

// ChannelSelector picks one channel from a listing.
type ChannelSelector struct {
	Channels []backend.Channel
	Prompt   string
	Reader   io.Reader
	Writer   io.Writer
	NoPrompt bool
}

// Run executes the selection prompt.
// If NoPrompt is true, returns ErrNoPromptMode.
// If there is exactly one channel, auto-selects it.
// Otherwise, asks for filter text and then a number from the filtered list.
func (s *ChannelSelector) Run() (*backend.Channel, error) {
	if s.NoPrompt {
		return nil, ErrNoPromptMode
	}

	if len(s.Channels) == 0 {
		return nil, ErrNoChannels
	}

	if len(s.Channels) == 1 {
		return &s.Channels[0], nil
	}

	writer := s.Writer
	if writer == nil {
		writer = io.Discard
	}
	if s.Reader == nil {
		return nil, ErrSelectionCancelled
	}

	scanner := bufio.NewScanner(s.Reader)

	_, _ = fmt.Fprintf(writer, "%s\nFilter (or press Enter to show all): ", s.Prompt)
	if !scanner.Scan() {
		return nil, ErrSelectionCancelled
	}

	filtered := FilterChannels(s.Channels, scanner.Text())
	if len(filtered) == 0 {
		return nil, ErrNoMatches
	}

	if len(filtered) == 1 {
		_, _ = fmt.Fprintf(writer, "Auto-selected: %s\n", filtered[0].Name)
		return &filtered[0], nil
	}

	for i, c := range filtered {
		_, _ = fmt.Fprintf(writer, "  %d) %s\n", i+1, formatChannelLine(c))
	}

	_, _ = fmt.Fprintf(writer, "Select (0 to cancel): ")
	if !scanner.Scan() {
		return nil, ErrSelectionCancelled
	}

	input := strings.TrimSpace(scanner.Text())
	num, err := strconv.Atoi(input)
	if err != nil {
		return nil, fmt.Errorf("invalid selection: %s", input)
	}
	if num == 0 {
		return nil, ErrSelectionCancelled
	}
	if num < 1 || num > len(filtered) {
		return nil, fmt.Errorf("selection out of range: %d", num)
	}

	return &filtered[num-1], nil
}

// FilterChannels returns the channels whose name or ID contains filter,
// ignoring case. An empty filter returns a copy of every channel.
func FilterChannels(list []backend.Channel, filter string) []backend.Channel {
	filter = strings.ToLower(strings.TrimSpace(filter))
	result := make([]backend.Channel, 0, len(list))
	for _, c := range list {
		if filter == "" ||
			strings.Contains(strings.ToLower(c.Name), filter) ||
			strings.Contains(strings.ToLower(c.ID), filter) {
			result = append(result, c)
		}
	}
	return result
}

// formatChannelLine renders a channel as "Name (id) [followers: N]".
func formatChannelLine(c backend.Channel) string {
	line := c.Name
	if c.ID != "" && !strings.EqualFold(c.ID, c.Name) {
		line = fmt.Sprintf("%s (%s)", c.Name, c.ID)
	}
	return fmt.Sprintf("%s [followers: %d]", line, c.FollowerCount)
}
