package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"fidchannels/internal/utils"
)

// CLIHandler handles CLI commands for credential management
type CLIHandler struct {
	manager *Manager
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

// NewCLIHandler creates a new CLI handler for credential commands
func NewCLIHandler(manager *Manager, stdin io.Reader, stdout, stderr io.Writer) *CLIHandler {
	return &CLIHandler{
		manager: manager,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}
}

// Set prompts for a token and stores it in the keyring
func (h *CLIHandler) Set(service string) error {
	token, err := PromptToken(h.stdin, h.stdout, service)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	if err := h.manager.Set(context.Background(), service, token); err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return h.keyringNotAvailableError(service)
		}
		return fmt.Errorf("failed to store token: %w", err)
	}

	_, _ = fmt.Fprintf(h.stdout, "Token stored in system keyring\n")
	return nil
}

// keyringNotAvailableError returns a helpful error message when keyring is not available
func (h *CLIHandler) keyringNotAvailableError(service string) error {
	msg := fmt.Sprintf(`System keyring not available.

Alternative: set the token through the environment instead:

  export %s="your-api-token"

Run 'fidchannels credentials get %s' to verify the token is detected.
`, EnvVar(service), service)

	return errors.New(msg)
}

// Get retrieves and displays token information
func (h *CLIHandler) Get(service string, jsonOutput bool) error {
	info, err := h.manager.Get(context.Background(), service)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}

	if jsonOutput {
		jsonBytes, err := info.JSON()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(h.stdout, string(jsonBytes))
		return nil
	}

	if !info.Found {
		_, _ = fmt.Fprintf(h.stdout, "No token found for %s\n", info.Service)
		_, _ = fmt.Fprintf(h.stdout, "Searched:\n")
		_, _ = fmt.Fprintf(h.stdout, "  - System keyring: Not found\n")
		_, _ = fmt.Fprintf(h.stdout, "  - Environment variable %s: Not set\n", EnvVar(info.Service))
		_, _ = fmt.Fprintf(h.stdout, "\nRequests are sent without authorization.\n")
		_, _ = fmt.Fprintf(h.stdout, "Suggestion: Run 'fidchannels credentials set %s'\n", info.Service)
		return nil
	}

	_, _ = fmt.Fprintf(h.stdout, "Service: %s\n", info.Service)
	_, _ = fmt.Fprintf(h.stdout, "Source: %s\n", info.Source)
	_, _ = fmt.Fprintf(h.stdout, "Token: ******** (hidden)\n")
	_, _ = fmt.Fprintf(h.stdout, "Status: Available\n")
	return nil
}

// Delete removes a token from the keyring. Unless force is set the user is
// asked to confirm first.
func (h *CLIHandler) Delete(service string, force bool) error {
	if !force {
		if h.stdin == nil || !utils.PromptYesNoWithReader(fmt.Sprintf("Remove the stored %s token?", service), h.stdin, h.stdout) {
			_, _ = fmt.Fprintf(h.stdout, "Cancelled\n")
			return nil
		}
	}

	if err := h.manager.Delete(context.Background(), service); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	_, _ = fmt.Fprintf(h.stdout, "Token removed from system keyring\n")
	return nil
}

// List displays token status for every known service
func (h *CLIHandler) List(jsonOutput bool) error {
	type statusJSON struct {
		Service  string `json:"service"`
		HasToken bool   `json:"has_token"`
		Source   string `json:"source,omitempty"`
	}

	var statuses []statusJSON
	for _, service := range KnownServices {
		info, err := h.manager.Get(context.Background(), service)
		if err != nil {
			return fmt.Errorf("failed to list credentials: %w", err)
		}
		s := statusJSON{Service: service, HasToken: info.Found}
		if info.Found {
			s.Source = string(info.Source)
		}
		statuses = append(statuses, s)
	}

	if jsonOutput {
		jsonBytes, err := json.Marshal(statuses)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(h.stdout, string(jsonBytes))
		return nil
	}

	_, _ = fmt.Fprintf(h.stdout, "%-20s %-15s %s\n", "SERVICE", "STATUS", "SOURCE")
	for _, s := range statuses {
		status, source := "Not configured", "-"
		if s.HasToken {
			status, source = "Available", s.Source
		}
		_, _ = fmt.Fprintf(h.stdout, "%-20s %-15s %s\n", s.Service, status, source)
	}
	return nil
}
