// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"

	"github.com/preorder/preorder-cli/internal/api"
	"github.com/preorder/preorder-cli/internal/auth"
	"github.com/preorder/preorder-cli/internal/cart"
	"github.com/preorder/preorder-cli/internal/config"
	"github.com/preorder/preorder-cli/internal/observability"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/presenter"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config *config.Config
	Auth   *auth.Manager
	API    *api.Client
	Cart   *cart.Store
	Output *output.Writer

	// Presentation
	Locale presenter.Locale
	Money  presenter.Money

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks

	// Flags holds the global flag values
	Flags GlobalFlags

	// Stdin and Stdout are swapped out by tests.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Now is the clock used for deadline validation.
	Now func() time.Time

	clientOpts []api.Option
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON    bool
	Quiet   bool
	MD      bool // Literal Markdown syntax output
	Styled  bool // Force ANSI styled output (even when piped)
	YAML    bool
	IDsOnly bool
	Count   bool
	JQ      string

	// Context flags
	Host    string
	DataDir string

	// Behavior flags
	Verbose int // 0=off, 1=operations, 2=operations+requests (stacks with -v -v or -vv)
	Stats   bool
}

// Option customizes NewApp.
type Option func(*App)

// WithIO replaces the standard streams.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(a *App) {
		a.Stdin = in
		a.Stdout = out
		a.Stderr = errOut
	}
}

// WithClientOptions passes options through to the API client.
func WithClientOptions(opts ...api.Option) Option {
	return func(a *App) { a.clientOpts = append(a.clientOpts, opts...) }
}

// NewApp wires the session manager, API client and cart for cfg and
// restores any persisted session.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	app := &App{
		Config: cfg,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Now:    time.Now,
	}
	for _, opt := range opts {
		opt(app)
	}

	// Collector always runs to gather stats; hooks control output verbosity.
	// Level 0 initially; ApplyFlags sets the actual level from -v flags.
	app.Collector = observability.NewSessionCollector()
	app.Hooks = observability.NewCLIHooks(0, app.Collector, observability.NewTraceWriterTo(app.Stderr))

	// The manager and client reference each other: the client reads tokens
	// from the manager, the manager logs in through the client and listens
	// for its logout signal.
	app.Auth = auth.NewManager(cfg, auth.NewStore(cfg.DataDir))
	clientOpts := append([]api.Option{api.WithHooks(app.Hooks)}, app.clientOpts...)
	app.API = api.NewClient(cfg, app.Auth, clientOpts...)
	app.Auth.Attach(app.API)
	if err := app.Auth.Restore(); err != nil {
		return nil, fmt.Errorf("restoring session: %w", err)
	}

	app.Cart = cart.NewStore(cfg.DataDir)
	app.Locale = presenter.DetectLocale()
	app.Money = presenter.NewMoney(cfg.Currency, app.Locale)

	format, err := output.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	app.Output = output.New(output.Options{Format: format, Writer: app.Stdout})
	return app, nil
}

// ApplyFlags applies global flag values to the app configuration.
func (a *App) ApplyFlags() {
	// Flags win over the configured format; order matters: specific modes first
	format := output.FormatAuto
	if a.Config != nil {
		if f, err := output.ParseFormat(a.Config.Format); err == nil {
			format = f
		}
	}
	switch {
	case a.Flags.IDsOnly:
		format = output.FormatIDs
	case a.Flags.Count:
		format = output.FormatCount
	case a.Flags.Quiet:
		format = output.FormatQuiet
	case a.Flags.JSON:
		format = output.FormatJSON
	case a.Flags.YAML:
		format = output.FormatYAML
	case a.Flags.Styled:
		format = output.FormatStyled
	case a.Flags.MD:
		format = output.FormatMarkdown
	}
	a.Output = output.New(output.Options{
		Format:  format,
		Writer:  a.Stdout,
		Verbose: a.Flags.Verbose > 0,
		JQ:      a.Flags.JQ,
	})

	// Determine verbosity level from flags and PREORDER_DEBUG env var
	verboseLevel := a.Flags.Verbose
	if debugEnv := os.Getenv("PREORDER_DEBUG"); debugEnv != "" {
		// "1", "2", or "true" (treated as 2 for full debug)
		if level, err := strconv.Atoi(debugEnv); err == nil {
			if level > verboseLevel {
				verboseLevel = level
			}
		} else if debugEnv == "true" {
			verboseLevel = 2
		}
	}

	if a.Hooks != nil {
		a.Hooks.SetLevel(verboseLevel)
	}

	if verboseLevel > 0 {
		debugLogger := slog.New(slog.NewTextHandler(a.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		a.API.SetLogger(debugLogger)
	}
}

// OK outputs a success response, automatically including stats if --stats flag is set.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if a.Flags.Stats && a.Collector != nil {
		opts = append(opts, output.WithMeta("stats", a.Collector.Summary().ToMap()))
	}
	return a.Output.OK(data, opts...)
}

// Err outputs an error response, printing stats to stderr if --stats flag is set.
func (a *App) Err(err error) error {
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}

	// Machine-consumable modes keep stderr clean.
	if a.Flags.Stats && a.Collector != nil && !a.isMachineOutput() {
		a.printStatsToStderr(a.Collector.Summary())
	}
	return nil
}

// HumanOutput reports whether results are rendered for people (styled or
// Markdown) rather than for programs.
func (a *App) HumanOutput() bool {
	switch a.Output.Format() {
	case output.FormatStyled, output.FormatMarkdown:
		return a.Flags.JQ == ""
	case output.FormatAuto:
		return a.Flags.JQ == "" && isTerminal(a.Stdout)
	default:
		return false
	}
}

// isMachineOutput returns true if the output mode is intended for programmatic consumption.
// Checks both flags and config-driven format settings.
func (a *App) isMachineOutput() bool {
	if a.Flags.Quiet || a.Flags.IDsOnly || a.Flags.Count || a.Flags.JQ != "" {
		return true
	}
	if a.Config != nil && a.Config.Format == "quiet" {
		return true
	}
	return false
}

// printStatsToStderr outputs a compact stats line to stderr.
func (a *App) printStatsToStderr(stats observability.SessionMetrics) {
	if parts := stats.FormatParts(); len(parts) > 0 {
		fmt.Fprintf(a.Stderr, "\nStats: %s\n", strings.Join(parts, " | "))
	}
}

// IsInteractive returns true if prompts can be shown.
func (a *App) IsInteractive() bool {
	if a.Flags.JSON || a.Flags.Quiet || a.Flags.IDsOnly || a.Flags.Count || a.Flags.JQ != "" {
		return false
	}
	return isTerminal(a.Stdin) && isTerminal(a.Stdout)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
