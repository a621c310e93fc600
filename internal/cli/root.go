package cli

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/appctx"
	"github.com/preorder/preorder-cli/internal/commands"
	"github.com/preorder/preorder-cli/internal/config"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/version"
)

// NewRootCmd creates the root cobra command. appOpts are passed to every
// App the command builds.
func NewRootCmd(appOpts ...appctx.Option) *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:           "preorder",
		Short:         "Pre-order food from the command line",
		Long:          "preorder browses the menu, builds a cart, places and tracks pre-orders, and runs the kitchen for admins.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for help and version commands
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{
				Host:    flags.Host,
				DataDir: flags.DataDir,
			})
			if err != nil {
				return output.ErrUsage(err.Error())
			}

			app, err := appctx.NewApp(cfg, appOpts...)
			if err != nil {
				return err
			}
			app.Flags = flags
			app.ApplyFlags()

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVarP(&flags.MD, "md", "m", false, "Output as Markdown (portable)")
	cmd.PersistentFlags().BoolVar(&flags.MD, "markdown", false, "Output as Markdown (portable)")
	cmd.PersistentFlags().BoolVar(&flags.Styled, "styled", false, "Force styled output (ANSI colors)")
	cmd.PersistentFlags().BoolVar(&flags.YAML, "yaml", false, "Output as YAML")
	cmd.PersistentFlags().BoolVar(&flags.IDsOnly, "ids-only", false, "Output only IDs")
	cmd.PersistentFlags().BoolVar(&flags.Count, "count", false, "Output only count")
	cmd.PersistentFlags().StringVar(&flags.JQ, "jq", "", "Filter JSON output with a jq expression")

	// Context flags
	cmd.PersistentFlags().StringVar(&flags.Host, "host", "", "Backend host (e.g., localhost:8080/api, preorder.example.com/api)")
	cmd.PersistentFlags().StringVar(&flags.DataDir, "data-dir", "", "Directory for the cart, completion cache and credential fallback file")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for token refreshes, -vv for requests)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")

	return cmd
}

// NewCLI creates the root command with every subcommand attached.
func NewCLI(appOpts ...appctx.Option) *cobra.Command {
	cmd := NewRootCmd(appOpts...)

	cmd.AddCommand(commands.NewAuthCmd())
	cmd.AddCommand(commands.NewMenuCmd())
	cmd.AddCommand(commands.NewCartCmd())
	cmd.AddCommand(commands.NewOrdersCmd())
	cmd.AddCommand(commands.NewProfileCmd())
	cmd.AddCommand(commands.NewAdminCmd())
	cmd.AddCommand(commands.NewConfigCmd())
	cmd.AddCommand(commands.NewCommandsCmd())
	cmd.AddCommand(commands.NewCompletionCmd())
	cmd.AddCommand(commands.NewVersionCmd())

	return cmd
}

// Execute runs the CLI and exits with the error's exit code on failure.
func Execute() {
	os.Exit(Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// Run executes the CLI with args and returns the process exit code.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := NewCLI(appctx.WithIO(stdin, stdout, stderr))
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	// Use ExecuteC to get the executed command (for correct context access)
	executedCmd, err := cmd.ExecuteC()
	if err == nil {
		return 0
	}

	err = transformCobraError(err)
	apiErr := output.AsError(err)

	// Prefer app.Err so --stats and the chosen format apply
	if executedCmd != nil {
		if app := appctx.FromContext(executedCmd.Context()); app != nil {
			_ = app.Err(err)
			return apiErr.ExitCode()
		}
	}

	// Fallback: setup failed before an app existed
	writer := output.New(output.Options{
		Format: fallbackFormat(cmd),
		Writer: stdout,
	})
	_ = writer.Err(err)

	return apiErr.ExitCode()
}

// fallbackFormat reads the output flags straight from the parsed command line.
func fallbackFormat(cmd *cobra.Command) output.Format {
	pf := cmd.PersistentFlags()
	quiet, _ := pf.GetBool("quiet")
	idsOnly, _ := pf.GetBool("ids-only")
	count, _ := pf.GetBool("count")
	styled, _ := pf.GetBool("styled")
	md, _ := pf.GetBool("md")
	jsonFlag, _ := pf.GetBool("json")
	yamlFlag, _ := pf.GetBool("yaml")

	switch {
	case idsOnly:
		return output.FormatIDs
	case count:
		return output.FormatCount
	case quiet:
		return output.FormatQuiet
	case jsonFlag:
		return output.FormatJSON
	case yamlFlag:
		return output.FormatYAML
	case styled:
		return output.FormatStyled
	case md:
		return output.FormatMarkdown
	default:
		return output.FormatAuto
	}
}

var shorthandFlagRe = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)

var requiredFlagRe = regexp.MustCompile(`required flag\(s\) "([\w-]+)" not set`)

// transformCobraError turns Cobra's parse errors into usage errors with
// consistent wording.
func transformCobraError(err error) error {
	msg := err.Error()

	// "flag needs an argument: --FLAG" → "--FLAG requires a value"
	if strings.HasPrefix(msg, "flag needs an argument: ") {
		flag := strings.TrimPrefix(msg, "flag needs an argument: ")
		if flag == "--by" {
			return output.ErrUsageHint("--by requires a value", `Try "tomorrow 7pm" or "2025-06-01 18:00"`)
		}
		return output.ErrUsage(flag + " requires a value")
	}

	// "unknown flag: --FLAG" → "Unknown option: --FLAG"
	if strings.HasPrefix(msg, "unknown flag: ") {
		flag := strings.TrimPrefix(msg, "unknown flag: ")
		return output.ErrUsage("Unknown option: " + flag)
	}

	// "unknown shorthand flag: 'X' in -X" → "Unknown option: -X"
	if strings.HasPrefix(msg, "unknown shorthand flag: ") {
		if matches := shorthandFlagRe.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage("Unknown option: " + matches[1])
		}
	}

	if strings.HasPrefix(msg, "unknown command ") {
		return output.ErrUsageHint(msg, "Run `preorder commands` to see what's available")
	}

	if strings.Contains(msg, "invalid argument") {
		return output.ErrUsage(msg)
	}

	// "accepts N arg(s), received 0" → "Argument required"
	if strings.Contains(msg, "arg(s), received 0") {
		return output.ErrUsage("Argument required")
	}

	if strings.Contains(msg, "arg(s), received") {
		return output.ErrUsage(msg)
	}

	if strings.HasPrefix(msg, "required flag(s) ") {
		if matches := requiredFlagRe.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage("--" + matches[1] + " required")
		}
	}

	return err
}
