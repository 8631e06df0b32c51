// Package credentials stores the optional upstream API tokens in the OS
// keyring, with fallback to environment variables.
package credentials

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Source indicates where a token was retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// tokenAccount is the keyring account every token is stored under
const tokenAccount = "token"

// KnownServices are the upstreams a token can be stored for
var KnownServices = []string{"warpcast"}

// CredentialInfo contains token information returned by Get()
type CredentialInfo struct {
	Source  Source // Where the token came from
	Service string // Upstream name (e.g., "warpcast")
	Token   string // Token (never printed)
	Found   bool   // Whether a token was found
}

// JSON serializes the credential info to JSON (token excluded)
func (c *CredentialInfo) JSON() ([]byte, error) {
	output := struct {
		Service string `json:"service"`
		Source  string `json:"source"`
		Found   bool   `json:"found"`
	}{
		Service: c.Service,
		Source:  string(c.Source),
		Found:   c.Found,
	}
	return json.Marshal(output)
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles credential operations
type Manager struct {
	keyring Keyring
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// NewManager creates a new credential manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// normalizeService normalizes service names to lowercase
func normalizeService(service string) string {
	return strings.ToLower(strings.TrimSpace(service))
}

// serviceName returns the keyring service name for an upstream
func serviceName(service string) string {
	return fmt.Sprintf("fidchannels-%s", normalizeService(service))
}

// EnvVar returns the environment variable consulted for service
func EnvVar(service string) string {
	return fmt.Sprintf("FIDCHANNELS_%s_TOKEN", strings.ToUpper(normalizeService(service)))
}

// Set stores a token in the keyring
func (m *Manager) Set(ctx context.Context, service, token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("token must not be empty")
	}
	return m.keyring.Set(serviceName(service), tokenAccount, token)
}

// Get retrieves a token from available sources (keyring first, then env vars).
// A missing token is not an error.
func (m *Manager) Get(ctx context.Context, service string) (*CredentialInfo, error) {
	service = normalizeService(service)

	token, err := m.keyring.Get(serviceName(service), tokenAccount)
	if err == nil && token != "" {
		return &CredentialInfo{Source: SourceKeyring, Service: service, Token: token, Found: true}, nil
	}

	if token := os.Getenv(EnvVar(service)); token != "" {
		return &CredentialInfo{Source: SourceEnvironment, Service: service, Token: token, Found: true}, nil
	}

	return &CredentialInfo{Source: SourceNone, Service: service}, nil
}

// Token returns the token for service, or "" when none is configured
func (m *Manager) Token(ctx context.Context, service string) string {
	info, err := m.Get(ctx, service)
	if err != nil || !info.Found {
		return ""
	}
	return info.Token
}

// Delete removes a token from the keyring
func (m *Manager) Delete(ctx context.Context, service string) error {
	err := m.keyring.Delete(serviceName(service), tokenAccount)
	// Idempotent: return nil if not found
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// PromptToken asks for a token. Input is hidden when reader is a terminal.
func PromptToken(reader io.Reader, writer io.Writer, service string) (string, error) {
	_, _ = fmt.Fprintf(writer, "Enter API token for %s: ", service)

	if f, ok := reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(writer)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	// Non-TTY input (pipes, tests): read a line
	scanner := bufio.NewScanner(reader)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no input received")
}
