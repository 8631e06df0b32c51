package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"fidchannels/backend"
	"fidchannels/internal/analytics"
	"fidchannels/internal/channels"
	"fidchannels/internal/cli/prompt"
	"fidchannels/internal/config"
	"fidchannels/internal/credentials"
	"fidchannels/internal/server"
	"fidchannels/internal/shutdown"
	"fidchannels/internal/tui"
	"fidchannels/internal/utils"
	"fidchannels/internal/views"
	"fidchannels/internal/watcher"
)

// Version and Commit are set at build time
var (
	Version = "dev"
	Commit  = "unknown"
)

// Result codes for JSON output
const (
	ResultInfoOnly = "INFO_ONLY"
	ResultError    = "ERROR"
)

// shutdownTimeout bounds how long serve waits for in-flight requests
const shutdownTimeout = 10 * time.Second

// Config holds invocation settings
type Config struct {
	ConfigPath    string // Path to config file (for testing)
	Verbose       bool
	OutputFormat  string
	AnalyticsPath string // Path to analytics database (for testing)
	ViewsPath     string // Path to views directory (for testing)

	Keyring credentials.Keyring // nil uses the system keyring
	Stdin   io.Reader
	Sleep   func(ctx context.Context, d time.Duration) error

	// Listener and Shutdown let tests drive serve
	Listener net.Listener
	Shutdown *shutdown.Manager
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewFIDChannels(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewFIDChannels creates the root command with injectable IO
func NewFIDChannels(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "fidchannels",
		Short:   "Farcaster channel lookups for a FID",
		Long:    "fidchannels lists the channels a Farcaster FID follows, marks the ones it is a member of, and serves the same data over HTTP.",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			utils.GetLogger().SetOutput(stderr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("config", "", "Path to config file")

	cmd.AddCommand(newChannelsCmd(stdout, cfg))
	cmd.AddCommand(newMembersCmd(stdout, cfg))
	cmd.AddCommand(newFramesCmd(stdout, cfg))
	cmd.AddCommand(newBrowseCmd(stdout, cfg))
	cmd.AddCommand(newServeCmd(stdout, cfg))
	cmd.AddCommand(newStatsCmd(stdout, cfg))
	cmd.AddCommand(newCacheCmd(stdout, cfg))
	cmd.AddCommand(newViewCmd(stdout, cfg))
	cmd.AddCommand(newCredentialsCmd(stdout, stderr, cfg))
	cmd.AddCommand(newVersionCmd(stdout))

	return cmd
}

// withApp loads config, opens the app and runs fn under analytics tracking
func withApp(cmd *cobra.Command, cfg *Config, name string, fn func(ctx context.Context, a *app) error) error {
	conf, err := loadConfig(cmd, cfg)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), conf, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var flags []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		flags = append(flags, f.Name)
	})

	return a.tracker.TrackCommand(name, flags, func() error {
		return fn(a.ctx(cmd.Context()), a)
	})
}

// fidFlag parses --fid with the user-facing suggestion attached
func fidFlag(cmd *cobra.Command) (backend.FID, error) {
	raw, _ := cmd.Flags().GetString("fid")
	fid, err := backend.ParseFID(raw)
	if err != nil {
		return 0, utils.Explain(0, err)
	}
	return fid, nil
}

func isJSON(a *app) bool {
	return a.conf.OutputFormat == "json"
}

// =============================================================================
// channels
// =============================================================================

type channelsResponse struct {
	FID      backend.FID              `json:"fid"`
	Channels []channels.MemberChannel `json:"channels"`
	Count    int                      `json:"count"`
	Result   string                   `json:"result"`
}

// newChannelsCmd creates the 'channels' subcommand
func newChannelsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List the channels a FID follows",
		Long:  "List the channels a FID follows, each marked with whether the FID is a member.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fid, err := fidFlag(cmd)
			if err != nil {
				return err
			}
			sortName, _ := cmd.Flags().GetString("sort")
			sortBy, err := channels.ParseSort(sortName)
			if err != nil {
				return utils.WrapWithSuggestion(err, "Use --sort members or --sort followers")
			}
			name, _ := cmd.Flags().GetString("name")
			viewName, _ := cmd.Flags().GetString("view")

			return withApp(cmd, cfg, "channels", func(ctx context.Context, a *app) error {
				list, err := a.aggregator.ListWithMembership(ctx, fid, channels.Options{Sort: sortBy, Name: name})
				if err != nil {
					return utils.Explain(fid, err)
				}

				if isJSON(a) {
					return writeJSON(stdout, channelsResponse{FID: fid, Channels: list, Count: len(list), Result: ResultInfoOnly})
				}

				view, err := views.NewLoader(getViewsDir(cfg)).LoadView(viewName)
				if err != nil {
					return err
				}
				views.NewRenderer(view, stdout).RenderChannels(list)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("fid", "", "Farcaster ID to look up")
	cmd.Flags().StringP("sort", "s", "", "Order: none, members (members first) or followers")
	cmd.Flags().StringP("name", "n", "", "Only channels whose name contains this text")
	cmd.Flags().StringP("view", "v", "", "View to render with (default, all, or a custom view name)")
	return cmd
}

// =============================================================================
// members
// =============================================================================

type memberResponse struct {
	channels.Membership
	Name   string `json:"name"`
	Result string `json:"result"`
}

// newMembersCmd creates the 'members' subcommand checking one channel
func newMembersCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Check whether a FID is a member of one followed channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fid, err := fidFlag(cmd)
			if err != nil {
				return err
			}
			channelName, _ := cmd.Flags().GetString("channel")
			noPrompt, _ := cmd.Flags().GetBool("no-prompt")
			stdin := promptInput(cfg)
			if channelName == "" && (noPrompt || stdin == nil) {
				return utils.WrapWithSuggestion(errors.New("missing channel"), "Pass the channel name with --channel")
			}

			return withApp(cmd, cfg, "members", func(ctx context.Context, a *app) error {
				list, err := a.aggregator.Channels(ctx, fid)
				if err != nil {
					return utils.Explain(fid, err)
				}

				var ch *backend.Channel
				if channelName == "" {
					selector := &prompt.ChannelSelector{
						Channels: list,
						Prompt:   fmt.Sprintf("Channels followed by FID %s:", fid),
						Reader:   stdin,
						Writer:   cmd.ErrOrStderr(),
					}
					if ch, err = selector.Run(); err != nil {
						return err
					}
				} else {
					ch = backend.FindChannelByName(list, channelName)
				}
				if ch == nil {
					return utils.WrapWithSuggestion(
						fmt.Errorf("%w: fid %s does not follow channel %q", backend.ErrNotFound, fid, channelName),
						fmt.Sprintf("Run 'fidchannels channels --fid %s' to see the followed channels", fid))
				}

				start := time.Now()
				m := a.resolver.Resolve(ctx, fid, ch.ID)
				a.tracker.TrackOperation(analytics.OpMembership, "warpcast", fid, a.requestID, time.Since(start), nil)

				if isJSON(a) {
					return writeJSON(stdout, memberResponse{Membership: m, Name: ch.Name, Result: ResultInfoOnly})
				}
				if m.IsMember {
					_, _ = fmt.Fprintf(stdout, "FID %s is a member of %s (%s)\n", fid, ch.Name, ch.ID)
				} else {
					_, _ = fmt.Fprintf(stdout, "FID %s is not a member of %s (%s)\n", fid, ch.Name, ch.ID)
				}
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("fid", "", "Farcaster ID to look up")
	cmd.Flags().StringP("channel", "c", "", "Channel name (case-insensitive); prompts when omitted")
	cmd.Flags().BoolP("no-prompt", "y", false, "Fail instead of prompting for a channel")
	return cmd
}

// promptInput returns the reader interactive prompts read from, or nil when
// stdin is not a terminal.
func promptInput(cfg *Config) io.Reader {
	if cfg.Stdin != nil {
		return cfg.Stdin
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return os.Stdin
	}
	return nil
}

// =============================================================================
// frames
// =============================================================================

type framesResponse struct {
	FID    backend.FID     `json:"fid"`
	Frames []backend.Frame `json:"frames"`
	Count  int             `json:"count"`
	Result string          `json:"result"`
}

// newFramesCmd creates the 'frames' subcommand
func newFramesCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frames",
		Short: "Show frames popular with the FID's engagement neighbourhood",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fid, err := fidFlag(cmd)
			if err != nil {
				return err
			}

			return withApp(cmd, cfg, "frames", func(ctx context.Context, a *app) error {
				list, err := a.frames.Popular(ctx, fid)
				if err != nil {
					if errors.Is(err, backend.ErrNotFound) {
						return utils.WrapWithSuggestion(err, "The FID has no engagement neighbours yet")
					}
					return utils.Explain(fid, err)
				}

				if isJSON(a) {
					return writeJSON(stdout, framesResponse{FID: fid, Frames: list, Count: len(list), Result: ResultInfoOnly})
				}
				views.NewRenderer(nil, stdout).RenderFrames(list)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("fid", "", "Farcaster ID to look up")
	return cmd
}

// =============================================================================
// browse
// =============================================================================

// newBrowseCmd creates the 'browse' subcommand running the interactive browser
func newBrowseCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse a FID's channels interactively",
		Long:  "Open a terminal browser over the channels a FID follows. Press ? inside for key bindings.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fid, err := fidFlag(cmd)
			if err != nil {
				return err
			}
			sortName, _ := cmd.Flags().GetString("sort")
			sortBy, err := channels.ParseSort(sortName)
			if err != nil {
				return utils.WrapWithSuggestion(err, "Use --sort members or --sort followers")
			}

			out, ok := stdout.(*os.File)
			if !ok || !term.IsTerminal(int(out.Fd())) {
				return utils.WrapWithSuggestion(errors.New("browse needs an interactive terminal"),
					fmt.Sprintf("Use 'fidchannels channels --fid %s' for plain output", fid))
			}

			return withApp(cmd, cfg, "browse", func(ctx context.Context, a *app) error {
				// Log lines would corrupt the alternate screen
				utils.GetLogger().SetOutput(io.Discard)
				defer utils.GetLogger().SetOutput(cmd.ErrOrStderr())

				opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithOutput(out), tea.WithContext(ctx)}
				if cfg.Stdin != nil {
					opts = append(opts, tea.WithInput(cfg.Stdin))
				}
				_, err := tea.NewProgram(tui.New(ctx, a.aggregator, fid, sortBy), opts...).Run()
				if errors.Is(err, tea.ErrProgramKilled) {
					return nil
				}
				return err
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("fid", "", "Farcaster ID to look up")
	cmd.Flags().StringP("sort", "s", "", "Initial order: none, members or followers")
	return cmd
}

// =============================================================================
// serve
// =============================================================================

// newServeCmd creates the 'serve' subcommand running the HTTP API
func newServeCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve channel listings and frames as JSON over HTTP",
		Long: `Serve the aggregation layer over HTTP:

  GET /api/channels?fid=&sort=&name=
  GET /api/frames?fid=
  GET /healthz
  GET /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				conf.Server.Addr = addr
			}

			mgr := cfg.Shutdown
			if mgr == nil {
				mgr = shutdown.NewManager()
				stop := mgr.ListenForSignals()
				defer stop()
			}

			a, err := openApp(mgr.Context(), conf, cfg)
			if err != nil {
				return err
			}
			mgr.RegisterCleanup("app", func(ctx context.Context) error { return a.Close() })

			// abort runs the cleanups registered so far and returns cause
			abort := func(cause error) error {
				mgr.Shutdown("startup failed")
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = mgr.Wait(ctx)
				return cause
			}

			if a.tracker != nil {
				if pruned, err := a.tracker.Cleanup(conf.GetAnalyticsRetentionDays()); err == nil && pruned > 0 {
					utils.Debugf("pruned %d analytics events", pruned)
				}
			}

			watch, _ := cmd.Flags().GetBool("watch")
			if watch || conf.Server.WatchConfig {
				path := configPath(cmd, cfg)
				verbose, _ := cmd.Flags().GetBool("verbose")
				w, err := watcher.New(watcher.Config{
					Path:     path,
					OnChange: func() { a.reload(path, verbose || cfg.Verbose) },
					OnError:  func(err error) { utils.Warnf("config watcher: %v", err) },
				})
				if err != nil {
					return abort(fmt.Errorf("failed to watch config file: %w", err))
				}
				mgr.RegisterCleanup("config-watcher", func(ctx context.Context) error {
					w.Stop()
					return nil
				})
				if err := w.Start(); err != nil {
					return abort(fmt.Errorf("failed to watch config file: %w", err))
				}
			}

			srv := server.New(a.aggregator, a.frames, server.Options{
				Addr:    conf.GetServerAddr(),
				Metrics: a.metrics.Handler(),
				Logger:  utils.GetLogger().Zap(),
			})
			mgr.RegisterCleanup("http-server", srv.Shutdown)

			ln := cfg.Listener
			if ln == nil {
				if ln, err = net.Listen("tcp", conf.GetServerAddr()); err != nil {
					return abort(err)
				}
			}
			_, _ = fmt.Fprintf(stdout, "Listening on %s\n", ln.Addr())

			serveErr := make(chan error, 1)
			go func() { serveErr <- srv.Serve(ln) }()

			select {
			case err = <-serveErr:
				mgr.Shutdown("server error")
			case <-mgr.Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if waitErr := mgr.Wait(ctx); waitErr != nil && err == nil {
				err = waitErr
			}
			if err == nil {
				_, _ = fmt.Fprintln(stdout, "Server stopped")
			}
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().Bool("watch", false, "Reload cache.ttl and logging.verbose when the config file changes")
	return cmd
}

// =============================================================================
// stats
// =============================================================================

type statsResponse struct {
	Since      string                       `json:"since"`
	Operations []analytics.OperationSummary `json:"operations"`
	Pruned     int64                        `json:"pruned,omitempty"`
	Result     string                       `json:"result"`
}

// newStatsCmd creates the 'stats' subcommand summarising recorded upstream calls
func newStatsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise recorded upstream calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			since, _ := cmd.Flags().GetDuration("since")
			if since <= 0 {
				return fmt.Errorf("--since must be positive")
			}
			prune, _ := cmd.Flags().GetBool("prune")

			tracker, err := analytics.NewTracker(conf.GetAnalyticsPath(), conf.IsAnalyticsEnabled())
			if err != nil {
				return fmt.Errorf("failed to open analytics database: %w", err)
			}
			defer func() { _ = tracker.Close() }()

			var pruned int64
			if prune {
				if pruned, err = tracker.Cleanup(conf.GetAnalyticsRetentionDays()); err != nil {
					return fmt.Errorf("failed to prune analytics: %w", err)
				}
			}

			from := time.Now().Add(-since)
			summaries, err := tracker.Summary(from)
			if err != nil {
				return fmt.Errorf("failed to summarise analytics: %w", err)
			}

			if conf.OutputFormat == "json" {
				if summaries == nil {
					summaries = []analytics.OperationSummary{}
				}
				return writeJSON(stdout, statsResponse{Since: from.UTC().Format(time.RFC3339), Operations: summaries, Pruned: pruned, Result: ResultInfoOnly})
			}

			if !tracker.Enabled() {
				_, _ = fmt.Fprintln(stdout, "Analytics is disabled; showing previously recorded events")
			}
			if prune {
				_, _ = fmt.Fprintf(stdout, "Pruned %d events older than %d days\n", pruned, conf.GetAnalyticsRetentionDays())
			}
			views.NewRenderer(nil, stdout).RenderStats(summaries)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Duration("since", 24*time.Hour, "Summarise events newer than this")
	cmd.Flags().Bool("prune", false, "Delete events older than analytics.retention_days first")
	return cmd
}

// =============================================================================
// cache
// =============================================================================

// newCacheCmd creates the 'cache' subcommand
func newCacheCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the channel listing cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop the cached listing of a FID",
		Long:  "Drop the cached listing of a FID so the next lookup fetches it again. Only meaningful with the redis cache backend.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fid, err := fidFlag(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, cfg, "cache-clear", func(ctx context.Context, a *app) error {
				if err := a.cache.Invalidate(ctx, fid); err != nil {
					return fmt.Errorf("failed to clear cache: %w", err)
				}
				if !a.conf.IsRedisCache() {
					utils.Infof("cache.backend is memory; nothing persists between runs")
				}
				_, _ = fmt.Fprintf(stdout, "Cleared cached channels for FID %s\n", fid)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	clearCmd.Flags().String("fid", "", "Farcaster ID whose listing to drop")

	cacheCmd.AddCommand(clearCmd)
	return cacheCmd
}

// =============================================================================
// view
// =============================================================================

func getViewsDir(cfg *Config) string {
	if cfg.ViewsPath != "" {
		return cfg.ViewsPath
	}
	return filepath.Join(config.GetConfigDir(), "views")
}

// newViewCmd creates the 'view' subcommand
func newViewCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Manage channel table views",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	viewCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available views",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := getViewsDir(cfg)
			if created, err := views.SetupViewsFolder(dir); err != nil {
				utils.Warnf("could not create views folder %s: %v", dir, err)
			} else if created {
				utils.Infof("created views folder %s", dir)
			}

			infos, err := views.NewLoader(dir).ListViews()
			if err != nil {
				return err
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return writeJSON(stdout, infos)
			}
			for _, v := range infos {
				kind := "custom"
				if v.BuiltIn {
					kind = "built-in"
				}
				_, _ = fmt.Fprintf(stdout, "%-12s %-9s %s\n", v.Name, kind, v.Description)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return viewCmd
}

// =============================================================================
// version
// =============================================================================

// newVersionCmd creates the 'version' subcommand
func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return writeJSON(stdout, map[string]string{"version": Version, "commit": Commit})
			}
			_, _ = fmt.Fprintf(stdout, "fidchannels\nVersion: %s\nCommit: %s\n", Version, Commit)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// credentials
// =============================================================================

// newCredentialsCmd creates the 'credentials' subcommand for token management
func newCredentialsCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage API tokens",
		Long:  "Store, inspect and remove the optional API bearer token in the system keyring.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	handler := func() *credentials.CLIHandler {
		stdin := cfg.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return credentials.NewCLIHandler(credentialManager(cfg), stdin, stdout, stderr)
	}

	credentialsCmd.AddCommand(&cobra.Command{
		Use:   "set [service]",
		Short: "Store a token in the system keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handler().Set(args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	credentialsCmd.AddCommand(&cobra.Command{
		Use:   "get [service]",
		Short: "Show where the token comes from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOutput, _ := cmd.Flags().GetBool("json")
			return handler().Get(args[0], jsonOutput)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	deleteCmd := &cobra.Command{
		Use:   "delete [service]",
		Short: "Remove a token from the system keyring",
		Long:  "Remove a stored token from the system keyring. Environment variables are not affected.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("yes")
			return handler().Delete(args[0], force)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	deleteCmd.Flags().BoolP("yes", "y", false, "Remove without asking for confirmation")
	credentialsCmd.AddCommand(deleteCmd)

	credentialsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List services with token status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOutput, _ := cmd.Flags().GetBool("json")
			return handler().List(jsonOutput)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return credentialsCmd
}

// =============================================================================
// JSON output
// =============================================================================

type errorResponse struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
	Status     int    `json:"status"`
	Code       int    `json:"code"`
	Result     string `json:"result"`
}

func writeJSON(stdout io.Writer, v any) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
	return nil
}

// outputErrorJSON outputs error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	response := errorResponse{
		Error:  err.Error(),
		Status: backend.HTTPStatus(err),
		Code:   1,
		Result: ResultError,
	}
	var withSuggestion *utils.ErrorWithSuggestion
	if errors.As(err, &withSuggestion) {
		response.Error = withSuggestion.Err.Error()
		response.Suggestion = withSuggestion.GetSuggestion()
	}

	_ = writeJSON(stdout, response)
}
