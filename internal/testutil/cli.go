package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteConfig writes a config.yaml into dir that points both upstream
// clients at baseURL, keeps retries fast and stores analytics in dir.
// extraYAML is appended verbatim. Returns the config path.
func WriteConfig(t *testing.T, dir, baseURL, extraYAML string) string {
	t.Helper()

	configPath := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`warpcast:
  base_url: %s
openrank:
  base_url: %s
retry:
  max_attempts: 3
  base_delay: 1ms
analytics:
  enabled: true
  path: %s
%s`, baseURL, baseURL, filepath.Join(dir, "analytics.db"), extraYAML)

	if err := os.WriteFile(configPath, []byte(yaml), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

// IsolateEnv clears the environment overrides the config loader honours.
func IsolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FIDCHANNELS_WARPCAST_TOKEN",
		"FIDCHANNELS_OPENRANK_TOKEN",
		"FIDCHANNELS_WARPCAST_URL",
		"FIDCHANNELS_OPENRANK_URL",
		"FIDCHANNELS_ANALYTICS_ENABLED",
	} {
		t.Setenv(key, "")
	}
}

// AssertContains fails the test if output doesn't contain expected string.
func AssertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}

// AssertNotContains fails the test if output contains unexpected string.
func AssertNotContains(t *testing.T, output, unexpected string) {
	t.Helper()
	if strings.Contains(output, unexpected) {
		t.Errorf("expected output NOT to contain %q, got:\n%s", unexpected, output)
	}
}

// AssertExitCode fails the test if exit code doesn't match expected.
func AssertExitCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("expected exit code %d, got %d", want, got)
	}
}
