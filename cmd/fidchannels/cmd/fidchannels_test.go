package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"fidchannels/internal/analytics"
	"fidchannels/internal/credentials"
	"fidchannels/internal/shutdown"
	"fidchannels/internal/testutil"
)

// =============================================================================
// Test fixtures
// =============================================================================

// setupCLI writes a config pointing at upstream and returns a CLI config
func setupCLI(t *testing.T, upstream http.Handler, extraYAML string) (*Config, string) {
	t.Helper()
	testutil.IsolateEnv(t)

	dir := t.TempDir()
	configPath := testutil.WriteConfig(t, dir, testutil.Serve(t, upstream), extraYAML)

	return &Config{
		ConfigPath: configPath,
		ViewsPath:  filepath.Join(dir, "views"),
		Keyring:    credentials.NewMockKeyring(),
		Sleep:      func(ctx context.Context, d time.Duration) error { return nil },
	}, dir
}

func run(cfg *Config, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Execute(args, &stdout, &stderr, cfg)
	return code, stdout.String(), stderr.String()
}

// =============================================================================
// Core CLI
// =============================================================================

// TestHelpFlag verifies that --help displays usage information
func TestHelpFlag(t *testing.T) {
	code, stdout, stderr := run(nil, "--help")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "fidchannels") || !strings.Contains(stdout, "Usage:") {
		t.Errorf("unexpected help output: %s", stdout)
	}
	for _, sub := range []string{"channels", "members", "frames", "serve", "stats", "credentials"} {
		if !strings.Contains(stdout, sub) {
			t.Errorf("help should list %q", sub)
		}
	}
}

// TestVersionCommand verifies that 'fidchannels version' displays version and commit
func TestVersionCommand(t *testing.T) {
	code, stdout, _ := run(nil, "version")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout, "Version: dev") || !strings.Contains(stdout, "Commit:") {
		t.Errorf("unexpected version output: %s", stdout)
	}

	code, stdout, _ = run(nil, "version", "--json")
	if code != 0 || !strings.Contains(stdout, `"version":"dev"`) {
		t.Errorf("unexpected JSON version output (%d): %s", code, stdout)
	}
}

// =============================================================================
// channels
// =============================================================================

// TestChannelsCommandText verifies the default table with membership marks
func TestChannelsCommandText(t *testing.T) {
	up := testutil.DefaultUpstream()
	cfg, _ := setupCLI(t, up, "")

	code, stdout, stderr := run(cfg, "channels", "--fid", "3")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got:\n%s", stdout)
	}
	if !strings.HasPrefix(lines[1], "memes") || !strings.HasPrefix(lines[3], "dev") {
		t.Errorf("default sort should keep upstream order:\n%s", stdout)
	}
	if !strings.Contains(lines[3], "yes") || strings.Contains(lines[1], "yes") {
		t.Errorf("membership marks wrong:\n%s", stdout)
	}
	if got := up.MembersCalls.Load(); got != 3 {
		t.Errorf("expected 3 membership checks, got %d", got)
	}
}

// TestChannelsCommandJSONSorted verifies JSON output with each sort order
func TestChannelsCommandJSONSorted(t *testing.T) {
	tests := []struct {
		sort string
		want []string
	}{
		{"members", []string{"dev", "memes", "farcaster"}},
		{"followers", []string{"farcaster", "memes", "dev"}},
	}

	for _, tt := range tests {
		t.Run(tt.sort, func(t *testing.T) {
			cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")
			code, stdout, stderr := run(cfg, "channels", "--fid", "3", "--sort", tt.sort, "--json")
			if code != 0 {
				t.Fatalf("exit %d: %s %s", code, stdout, stderr)
			}

			var resp struct {
				FID      int `json:"fid"`
				Count    int `json:"count"`
				Channels []struct {
					ID       string `json:"id"`
					IsMember bool   `json:"isMember"`
				} `json:"channels"`
				Result string `json:"result"`
			}
			if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
				t.Fatalf("invalid JSON %q: %v", stdout, err)
			}
			if resp.FID != 3 || resp.Count != 3 || resp.Result != ResultInfoOnly {
				t.Errorf("unexpected envelope: %+v", resp)
			}
			var got []string
			for _, c := range resp.Channels {
				got = append(got, c.ID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestChannelsCommandNameFilter verifies --name narrows the listing
func TestChannelsCommandNameFilter(t *testing.T) {
	up := testutil.DefaultUpstream()
	cfg, _ := setupCLI(t, up, "")

	code, stdout, _ := run(cfg, "channels", "--fid", "3", "--name", "FAR", "--json")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stdout)
	}
	if !strings.Contains(stdout, `"id":"farcaster"`) || strings.Contains(stdout, `"id":"memes"`) {
		t.Errorf("unexpected filter result: %s", stdout)
	}
	if up.MembersCalls.Load() != 1 {
		t.Errorf("only the matching channel should be checked, got %d calls", up.MembersCalls.Load())
	}

	code, stdout, _ = run(cfg, "channels", "--fid", "3", "--name", "nomatch", "--json")
	if code != 0 || !strings.Contains(stdout, `"channels":[]`) {
		t.Errorf("expected empty list (%d): %s", code, stdout)
	}
}

// TestChannelsCommandErrors verifies error kinds and suggestions
func TestChannelsCommandErrors(t *testing.T) {
	t.Run("missing fid", func(t *testing.T) {
		cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")
		code, _, stderr := run(cfg, "channels")
		if code != 1 || !strings.Contains(stderr, "--fid") {
			t.Errorf("expected missing fid error, got %d: %s", code, stderr)
		}
	})

	t.Run("invalid fid json", func(t *testing.T) {
		cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")
		code, stdout, _ := run(cfg, "channels", "--fid", "abc", "--json")
		var resp errorResponse
		if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
			t.Fatalf("invalid JSON %q: %v", stdout, err)
		}
		if code != 1 || resp.Status != http.StatusBadRequest || resp.Result != ResultError || resp.Suggestion == "" {
			t.Errorf("unexpected error response: %+v", resp)
		}
	})

	t.Run("no channels", func(t *testing.T) {
		cfg, _ := setupCLI(t, &testutil.Upstream{}, "")
		code, stdout, _ := run(cfg, "channels", "--fid", "3", "--json")
		var resp errorResponse
		_ = json.Unmarshal([]byte(stdout), &resp)
		if code != 1 || resp.Status != http.StatusNotFound {
			t.Errorf("expected 404-class error, got %d: %s", code, stdout)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		up := &testutil.Upstream{Status: http.StatusTooManyRequests}
		cfg, _ := setupCLI(t, up, "")
		code, _, stderr := run(cfg, "channels", "--fid", "3")
		if code != 1 || !strings.Contains(stderr, "rate limiting") {
			t.Errorf("expected rate limit suggestion, got %d: %s", code, stderr)
		}
	})

	t.Run("bad sort", func(t *testing.T) {
		cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")
		code, _, stderr := run(cfg, "channels", "--fid", "3", "--sort", "sideways")
		if code != 1 || !strings.Contains(stderr, "unknown sort") {
			t.Errorf("expected sort error, got %d: %s", code, stderr)
		}
	})
}

// TestChannelsCommandCustomView verifies --view loads YAML views from the views directory
func TestChannelsCommandCustomView(t *testing.T) {
	cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")
	if err := os.MkdirAll(cfg.ViewsPath, 0755); err != nil {
		t.Fatal(err)
	}
	view := "name: ids\nno_header: true\nfields:\n  - name: id\n"
	if err := os.WriteFile(filepath.Join(cfg.ViewsPath, "ids.yaml"), []byte(view), 0644); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := run(cfg, "channels", "--fid", "3", "--view", "ids")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if stdout != "memes\nfarcaster\ndev\n" {
		t.Errorf("unexpected output %q", stdout)
	}
}

// TestChannelsCommandToken verifies the stored token is sent as a bearer token
func TestChannelsCommandToken(t *testing.T) {
	up := testutil.DefaultUpstream()
	cfg, _ := setupCLI(t, up, "")
	_ = cfg.Keyring.Set("fidchannels-warpcast", "token", "secret-token")

	if code, _, stderr := run(cfg, "channels", "--fid", "3"); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if got := up.Authorization(); got != "Bearer secret-token" {
		t.Errorf("Authorization = %q", got)
	}
}

// TestChannelsCommandRecordsAnalytics verifies upstream fetches end up in stats
func TestChannelsCommandRecordsAnalytics(t *testing.T) {
	cfg, dir := setupCLI(t, testutil.DefaultUpstream(), "")

	if code, _, stderr := run(cfg, "channels", "--fid", "3"); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}

	tracker, err := analytics.NewTracker(filepath.Join(dir, "analytics.db"), true)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tracker.Close() }()

	summaries, err := tracker.Summary(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	ops := map[string]int64{}
	for _, s := range summaries {
		ops[s.Operation] = s.Total
	}
	if ops["fetch_channels"] != 1 || ops["command:channels"] != 1 {
		t.Errorf("unexpected recorded operations: %v", ops)
	}

	code, stdout, _ := run(cfg, "stats")
	if code != 0 || !strings.Contains(stdout, "fetch_channels") || !strings.Contains(stdout, "100.0%") {
		t.Errorf("stats output (%d): %s", code, stdout)
	}
}

// =============================================================================
// members / frames
// =============================================================================

// TestMembersCommand verifies the membership answer for one channel
func TestMembersCommand(t *testing.T) {
	cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")

	code, stdout, stderr := run(cfg, "members", "--fid", "3", "--channel", "DEV")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "is a member of Dev (dev)") {
		t.Errorf("unexpected output: %s", stdout)
	}

	code, stdout, _ = run(cfg, "members", "--fid", "3", "--channel", "memes", "--json")
	if code != 0 || !strings.Contains(stdout, `"isMember":false`) || !strings.Contains(stdout, `"channelId":"memes"`) {
		t.Errorf("unexpected JSON (%d): %s", code, stdout)
	}

	code, _, stderr = run(cfg, "members", "--fid", "3", "--channel", "unknown")
	if code != 1 || !strings.Contains(stderr, "does not follow") {
		t.Errorf("expected not-followed error, got %d: %s", code, stderr)
	}
}

// TestMembersCommandPrompt verifies a channel is picked interactively when --channel is omitted
func TestMembersCommandPrompt(t *testing.T) {
	cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")

	cfg.Stdin = strings.NewReader("\n3\n")
	code, stdout, stderr := run(cfg, "members", "--fid", "3")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stderr, "Channels followed by FID 3") || !strings.Contains(stderr, "3) Dev [followers: 40]") {
		t.Errorf("expected numbered prompt on stderr, got: %s", stderr)
	}
	if !strings.Contains(stdout, "is a member of Dev (dev)") {
		t.Errorf("unexpected output: %s", stdout)
	}

	cfg.Stdin = strings.NewReader("far\n")
	code, stdout, stderr = run(cfg, "members", "--fid", "3")
	if code != 0 || !strings.Contains(stdout, "is not a member of Farcaster") {
		t.Errorf("expected auto-selected farcaster (%d): %s %s", code, stdout, stderr)
	}

	code, _, stderr = run(cfg, "members", "--fid", "3", "-y")
	if code != 1 || !strings.Contains(stderr, "missing channel") {
		t.Errorf("expected missing channel error in no-prompt mode, got %d: %s", code, stderr)
	}
}

// TestMembersCommandUpstreamFailure verifies a failing membership endpoint reads as not a member
func TestMembersCommandUpstreamFailure(t *testing.T) {
	up := testutil.DefaultUpstream()
	mux := http.NewServeMux()
	mux.Handle("/v1/user-following-channels", up)
	mux.HandleFunc("/fc/channel-members", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	cfg, _ := setupCLI(t, mux, "")

	code, stdout, stderr := run(cfg, "members", "--fid", "3", "--channel", "dev")
	if code != 0 {
		t.Fatalf("membership failures must not fail the command: %d %s", code, stderr)
	}
	if !strings.Contains(stdout, "is not a member") {
		t.Errorf("unexpected output: %s", stdout)
	}
}

// TestFramesCommand verifies popular frames are rendered and empty neighbourhoods reported
func TestFramesCommand(t *testing.T) {
	up := testutil.DefaultUpstream()
	cfg, _ := setupCLI(t, up, "")

	code, stdout, stderr := run(cfg, "frames", "--fid", "3")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "https://frame.example/a") || !strings.Contains(stdout, "0.9000") {
		t.Errorf("unexpected frames output: %s", stdout)
	}

	up.SetEngaged()
	code, _, stderr = run(cfg, "frames", "--fid", "3")
	if code != 1 || !strings.Contains(stderr, "engagement neighbours") {
		t.Errorf("expected not found, got %d: %s", code, stderr)
	}
}

// =============================================================================
// serve
// =============================================================================

// TestServeCommand verifies the HTTP API and graceful shutdown through the CLI
func TestServeCommand(t *testing.T) {
	cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Listener = ln
	cfg.Shutdown = shutdown.NewManager()

	var stdout, stderr bytes.Buffer
	done := make(chan int, 1)
	go func() { done <- Execute([]string{"serve"}, &stdout, &stderr, cfg) }()

	base := "http://" + ln.Addr().String()
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(base + "/api/channels?fid=3&sort=followers"); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server not reachable: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(body), `{"channels":[{"id":"farcaster"`) {
		t.Errorf("unexpected /api/channels response %d: %s", resp.StatusCode, body)
	}

	resp, err = http.Get(base + "/api/channels")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing fid status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	metricsBody, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(metricsBody), "fidchannels_cache_misses_total 1") {
		t.Errorf("metrics should count the cache miss:\n%s", metricsBody)
	}

	cfg.Shutdown.Shutdown("test")
	select {
	case code := <-done:
		if code != 0 {
			t.Errorf("serve exited %d: %s", code, stderr.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after shutdown")
	}
	if !strings.Contains(stdout.String(), "Server stopped") {
		t.Errorf("unexpected serve output: %s", stdout.String())
	}
}

// =============================================================================
// config / credentials / view
// =============================================================================

// TestInvalidConfig verifies config validation errors reach the user
func TestInvalidConfig(t *testing.T) {
	cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "cache:\n  backend: memcached\n")
	code, _, stderr := run(cfg, "channels", "--fid", "3")
	if code != 1 || !strings.Contains(stderr, "cache.backend") {
		t.Errorf("expected config error, got %d: %s", code, stderr)
	}
}

// TestCredentialsCommands verifies set, get, list and delete through the CLI
func TestCredentialsCommands(t *testing.T) {
	cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")
	cfg.Stdin = strings.NewReader("tok-abc\n")

	code, stdout, stderr := run(cfg, "credentials", "set", "warpcast")
	if code != 0 || !strings.Contains(stdout, "Token stored") {
		t.Fatalf("set failed (%d): %s %s", code, stdout, stderr)
	}

	code, stdout, _ = run(cfg, "credentials", "get", "warpcast")
	if code != 0 || !strings.Contains(stdout, "Source: keyring") || strings.Contains(stdout, "tok-abc") {
		t.Errorf("unexpected get output (%d): %s", code, stdout)
	}

	code, stdout, _ = run(cfg, "credentials", "list", "--json")
	if code != 0 || !strings.Contains(stdout, `"has_token":true`) {
		t.Errorf("unexpected list output (%d): %s", code, stdout)
	}

	cfg.Stdin = strings.NewReader("n\n")
	code, stdout, _ = run(cfg, "credentials", "delete", "warpcast")
	if code != 0 || !strings.Contains(stdout, "Cancelled") {
		t.Errorf("declined delete should cancel (%d): %s", code, stdout)
	}

	code, stdout, _ = run(cfg, "credentials", "delete", "warpcast", "-y")
	if code != 0 || !strings.Contains(stdout, "Token removed") {
		t.Errorf("unexpected delete output (%d): %s", code, stdout)
	}

	code, _, _ = run(cfg, "credentials", "get")
	if code != 1 {
		t.Error("get without a service should fail")
	}
}

// TestViewListCommand verifies built-in and example views are listed
func TestViewListCommand(t *testing.T) {
	cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")

	code, stdout, stderr := run(cfg, "view", "list")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	for _, want := range []string{"default", "all", "compact"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("view list missing %q:\n%s", want, stdout)
		}
	}
}

// TestCacheClearCommand verifies the cache clear command validates its FID
func TestCacheClearCommand(t *testing.T) {
	cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")

	code, stdout, stderr := run(cfg, "cache", "clear", "--fid", "3")
	if code != 0 || !strings.Contains(stdout, "Cleared cached channels for FID 3") {
		t.Errorf("unexpected output (%d): %s %s", code, stdout, stderr)
	}

	if code, _, _ := run(cfg, "cache", "clear"); code != 1 {
		t.Error("cache clear without --fid should fail")
	}
}

// TestStatsCommandJSON verifies the empty stats envelope
func TestStatsCommandJSON(t *testing.T) {
	cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")

	code, stdout, stderr := run(cfg, "stats", "--json", "--prune")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, `"operations":[]`) || !strings.Contains(stdout, `"result":"INFO_ONLY"`) {
		t.Errorf("unexpected stats JSON: %s", stdout)
	}
}

// lockedBuffer is a bytes.Buffer safe for the concurrent writes of a running server
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// TestServeWatchReloadsConfig verifies --watch applies config edits while serving
func TestServeWatchReloadsConfig(t *testing.T) {
	cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Listener = ln
	cfg.Shutdown = shutdown.NewManager()

	var stdout, stderr lockedBuffer
	done := make(chan int, 1)
	go func() { done <- Execute([]string{"serve", "--watch"}, &stdout, &stderr, cfg) }()

	for i := 0; i < 50 && !strings.Contains(stdout.String(), "Listening on"); i++ {
		time.Sleep(20 * time.Millisecond)
	}

	data, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	updated := strings.Replace(string(data), "retry:", "cache:\n  ttl: 42s\nretry:", 1)
	if err := os.WriteFile(cfg.ConfigPath, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}

	reloaded := false
	for i := 0; i < 100 && !reloaded; i++ {
		time.Sleep(20 * time.Millisecond)
		reloaded = strings.Contains(stderr.String(), "cache ttl 42s")
	}
	if !reloaded {
		t.Errorf("expected a reload log line, stderr:\n%s", stderr.String())
	}

	cfg.Shutdown.Shutdown("test")
	select {
	case code := <-done:
		if code != 0 {
			t.Errorf("serve exited %d: %s", code, stderr.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after shutdown")
	}
}

// TestBrowseRequiresTerminal verifies browse refuses to run without a terminal
func TestBrowseRequiresTerminal(t *testing.T) {
	cfg, _ := setupCLI(t, testutil.DefaultUpstream(), "")

	code, _, stderr := run(cfg, "browse", "--fid", "3")
	if code != 1 || !strings.Contains(stderr, "interactive terminal") {
		t.Errorf("expected terminal error, got %d: %s", code, stderr)
	}

	code, _, stderr = run(cfg, "browse")
	if code != 1 || !strings.Contains(stderr, "--fid") {
		t.Errorf("expected missing fid error, got %d: %s", code, stderr)
	}
}
