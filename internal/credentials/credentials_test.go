package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestCredentialsSetKeyring verifies a token is stored under the service name
func TestCredentialsSetKeyring(t *testing.T) {
	mockKeyring := NewMockKeyring()
	manager := NewManager(WithKeyring(mockKeyring))

	if err := manager.Set(context.Background(), "Warpcast", "tok-123"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	stored, err := mockKeyring.Get("fidchannels-warpcast", "token")
	if err != nil {
		t.Fatalf("Keyring Get failed: %v", err)
	}
	if stored != "tok-123" {
		t.Errorf("Expected token 'tok-123', got '%s'", stored)
	}
}

// TestCredentialsSetEmpty verifies empty tokens are rejected
func TestCredentialsSetEmpty(t *testing.T) {
	manager := NewManager(WithKeyring(NewMockKeyring()))
	if err := manager.Set(context.Background(), "warpcast", "  "); err == nil {
		t.Error("expected error for empty token")
	}
}

// TestCredentialsPriority verifies the keyring wins over the environment
func TestCredentialsPriority(t *testing.T) {
	t.Setenv("FIDCHANNELS_WARPCAST_TOKEN", "from-env")
	mockKeyring := NewMockKeyring()
	manager := NewManager(WithKeyring(mockKeyring))

	info, err := manager.Get(context.Background(), "warpcast")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if info.Source != SourceEnvironment || info.Token != "from-env" {
		t.Errorf("expected env token, got %+v", info)
	}

	_ = mockKeyring.Set("fidchannels-warpcast", "token", "from-keyring")
	info, _ = manager.Get(context.Background(), "warpcast")
	if info.Source != SourceKeyring || info.Token != "from-keyring" {
		t.Errorf("expected keyring token, got %+v", info)
	}
	if got := manager.Token(context.Background(), "warpcast"); got != "from-keyring" {
		t.Errorf("Token() = %q", got)
	}
}

// TestCredentialsNotFound verifies a missing token is reported without error
func TestCredentialsNotFound(t *testing.T) {
	t.Setenv("FIDCHANNELS_WARPCAST_TOKEN", "")
	manager := NewManager(WithKeyring(NewMockKeyring()))

	info, err := manager.Get(context.Background(), "warpcast")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if info.Found || info.Source != SourceNone {
		t.Errorf("expected not found, got %+v", info)
	}
	if manager.Token(context.Background(), "warpcast") != "" {
		t.Error("expected empty token")
	}
}

// TestCredentialsDeleteIdempotent verifies deleting a missing token succeeds
func TestCredentialsDeleteIdempotent(t *testing.T) {
	mockKeyring := NewMockKeyring()
	manager := NewManager(WithKeyring(mockKeyring))

	_ = manager.Set(context.Background(), "warpcast", "tok")
	if err := manager.Delete(context.Background(), "warpcast"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := manager.Delete(context.Background(), "warpcast"); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
	if _, err := mockKeyring.Get("fidchannels-warpcast", "token"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

// TestCredentialsJSON verifies the token never appears in JSON output
func TestCredentialsJSON(t *testing.T) {
	info := &CredentialInfo{Source: SourceKeyring, Service: "warpcast", Token: "secret", Found: true}
	data, err := info.JSON()
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("token leaked in JSON: %s", data)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["source"] != "keyring" || decoded["found"] != true {
		t.Errorf("unexpected JSON: %s", data)
	}
}

// TestPromptTokenNonTTY verifies piped input is read as a line
func TestPromptTokenNonTTY(t *testing.T) {
	out := &bytes.Buffer{}
	token, err := PromptToken(strings.NewReader("  abc  \n"), out, "warpcast")
	if err != nil {
		t.Fatalf("PromptToken failed: %v", err)
	}
	if token != "abc" {
		t.Errorf("expected 'abc', got %q", token)
	}
	if !strings.Contains(out.String(), "Enter API token for warpcast") {
		t.Errorf("expected prompt, got %q", out.String())
	}

	if _, err := PromptToken(strings.NewReader(""), out, "warpcast"); err == nil {
		t.Error("expected error on empty input")
	}
}

// TestEnvVar verifies the environment variable naming
func TestEnvVar(t *testing.T) {
	if got := EnvVar(" Warpcast "); got != "FIDCHANNELS_WARPCAST_TOKEN" {
		t.Errorf("EnvVar = %q", got)
	}
}

// =============================================================================
// CLI handler
// =============================================================================

// TestCredentialsSetCLI verifies `credentials set warpcast` stores the prompted token
func TestCredentialsSetCLI(t *testing.T) {
	manager := NewManager(WithKeyring(NewMockKeyring()))
	stdout := &bytes.Buffer{}

	handler := NewCLIHandler(manager, bytes.NewBufferString("tok-cli\n"), stdout, &bytes.Buffer{})
	if err := handler.Set("warpcast"); err != nil {
		t.Fatalf("Set command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Token stored") {
		t.Errorf("Expected success message, got: %s", stdout.String())
	}
	if manager.Token(context.Background(), "warpcast") != "tok-cli" {
		t.Error("token should be stored")
	}
}

// failingKeyring simulates a host without a secret service
type failingKeyring struct{}

func (failingKeyring) Set(service, account, secret string) error {
	return ErrKeyringNotAvailable
}
func (failingKeyring) Get(service, account string) (string, error) {
	return "", ErrKeyringNotAvailable
}
func (failingKeyring) Delete(service, account string) error {
	return ErrKeyringNotAvailable
}

// TestCredentialsSetKeyringNotAvailableCLI verifies the env var hint when the keyring is missing
func TestCredentialsSetKeyringNotAvailableCLI(t *testing.T) {
	manager := NewManager(WithKeyring(failingKeyring{}))
	handler := NewCLIHandler(manager, bytes.NewBufferString("tok\n"), &bytes.Buffer{}, &bytes.Buffer{})

	err := handler.Set("warpcast")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "FIDCHANNELS_WARPCAST_TOKEN") {
		t.Errorf("expected env var hint, got: %v", err)
	}
}

// TestCredentialsGetCLI verifies the token is masked in text output
func TestCredentialsGetCLI(t *testing.T) {
	mockKeyring := NewMockKeyring()
	_ = mockKeyring.Set("fidchannels-warpcast", "token", "storedtok")
	handler := NewCLIHandler(NewManager(WithKeyring(mockKeyring)), nil, &bytes.Buffer{}, &bytes.Buffer{})

	stdout := &bytes.Buffer{}
	handler.stdout = stdout
	if err := handler.Get("warpcast", false); err != nil {
		t.Fatalf("Get command failed: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Source: keyring") {
		t.Errorf("Expected source info, got: %s", output)
	}
	if strings.Contains(output, "storedtok") {
		t.Error("Token should not appear in output")
	}
}

// TestCredentialsGetNotFoundCLI verifies the not-found guidance
func TestCredentialsGetNotFoundCLI(t *testing.T) {
	t.Setenv("FIDCHANNELS_WARPCAST_TOKEN", "")
	stdout := &bytes.Buffer{}
	handler := NewCLIHandler(NewManager(WithKeyring(NewMockKeyring())), nil, stdout, &bytes.Buffer{})

	if err := handler.Get("warpcast", false); err != nil {
		t.Fatalf("Get command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "No token found for warpcast") {
		t.Errorf("Expected not found message, got: %s", stdout.String())
	}
}

// TestCredentialsListJSONCLI verifies list output in JSON
func TestCredentialsListJSONCLI(t *testing.T) {
	t.Setenv("FIDCHANNELS_WARPCAST_TOKEN", "env-tok")
	stdout := &bytes.Buffer{}
	handler := NewCLIHandler(NewManager(WithKeyring(NewMockKeyring())), nil, stdout, &bytes.Buffer{})

	if err := handler.List(true); err != nil {
		t.Fatalf("List command failed: %v", err)
	}

	var statuses []map[string]interface{}
	if err := json.Unmarshal(stdout.Bytes(), &statuses); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout.String(), err)
	}
	if len(statuses) != 1 || statuses[0]["service"] != "warpcast" || statuses[0]["has_token"] != true || statuses[0]["source"] != "environment" {
		t.Errorf("unexpected statuses: %v", statuses)
	}
}

// TestCredentialsDeleteCLI verifies delete output
func TestCredentialsDeleteCLI(t *testing.T) {
	mockKeyring := NewMockKeyring()
	_ = mockKeyring.Set("fidchannels-warpcast", "token", "tok")
	stdout := &bytes.Buffer{}
	handler := NewCLIHandler(NewManager(WithKeyring(mockKeyring)), nil, stdout, &bytes.Buffer{})

	if err := handler.Delete("warpcast", true); err != nil {
		t.Fatalf("Delete command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Token removed") {
		t.Errorf("Expected removal message, got: %s", stdout.String())
	}
}

// TestCredentialsDeleteConfirm verifies delete asks before removing a token
func TestCredentialsDeleteConfirm(t *testing.T) {
	mockKeyring := NewMockKeyring()
	_ = mockKeyring.Set("fidchannels-warpcast", "token", "tok")

	stdout := &bytes.Buffer{}
	handler := NewCLIHandler(NewManager(WithKeyring(mockKeyring)), strings.NewReader("maybe\nn\n"), stdout, &bytes.Buffer{})
	if err := handler.Delete("warpcast", false); err != nil {
		t.Fatalf("Delete command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Cancelled") {
		t.Errorf("Expected cancellation, got: %s", stdout.String())
	}
	if strings.Count(stdout.String(), "(y/n)") != 2 {
		t.Errorf("Expected a re-prompt after invalid input, got: %s", stdout.String())
	}
	if _, err := mockKeyring.Get("fidchannels-warpcast", "token"); err != nil {
		t.Error("Token should survive a declined delete")
	}

	stdout.Reset()
	handler = NewCLIHandler(NewManager(WithKeyring(mockKeyring)), strings.NewReader("yes\n"), stdout, &bytes.Buffer{})
	if err := handler.Delete("warpcast", false); err != nil {
		t.Fatalf("Delete command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Token removed") {
		t.Errorf("Expected removal message, got: %s", stdout.String())
	}
}
