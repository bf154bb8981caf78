// Package cli wires trim's Kong command grammar to the handler,
// config resolver, and renderers.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	gitlog "github.com/charmbracelet/log"
	"go.abhg.dev/trim/internal/git"
	handlertrim "go.abhg.dev/trim/internal/handler/trim"
	"go.abhg.dev/trim/internal/render"
	"go.abhg.dev/trim/internal/silog"
	"go.abhg.dev/trim/internal/trim"
	"go.abhg.dev/trim/internal/trimconfig"
	"go.abhg.dev/trim/internal/upstream"
	"go.abhg.dev/komplete"
)

var _version = "dev"

// CLI is trim's single command: classify every local branch against a
// base branch and delete the ones already integrated.
type CLI struct {
	Dir string `short:"C" name:"dir" default:"." help:"Run as if trim was started in this directory."`

	Base   string `help:"Base branch name to classify other branches against. Defaults to trim.base, or the remote's default branch."`
	Remote string `default:"origin" help:"Remote that hosts the base branch."`

	Protect []string `help:"Glob pattern(s) of refnames to never delete, in addition to trim.protected." sep:"none"`

	DryRun bool   `help:"Report what would be deleted without deleting anything."`
	JSON   bool   `help:"Print the trim plan as JSON to stdout instead of deleting branches."`
	Format string `enum:"summary,names,remotes" default:"summary" help:"Non-JSON report format: summary (default, one human-readable line), names (one deleted local branch name per line), or remotes (one deleted remote-tracking branch per line, as <remote>/<branch>). Ignored when --json is set."`

	IncludeMergedLocals  *bool `negatable:"" help:"Delete local branches merged into the base (default: on)."`
	IncludeStrayLocals   *bool `negatable:"" help:"Delete local branches whose remote counterpart is gone or merged (default: off)."`
	IncludeMergedRemotes *bool `negatable:"" help:"Delete remote-tracking branches merged into the base (default: on)."`
	IncludeStrayRemotes  *bool `negatable:"" help:"Delete remote-tracking upstreams not merged into the base whose local branch is merged or stray (default: off)."`

	Verbose bool `short:"v" help:"Log each classification decision."`

	Version         versionFlag     `help:"Print version information and quit."`
	ShellCompletion komplete.Command `cmd:"" name:"shell-completion" hidden:"" help:"Generate shell completion script."`
}

type versionFlag bool

func (versionFlag) BeforeApply(app *kong.Kong) error {
	fmt.Fprintln(app.Stdout, "trim", _version)
	app.Exit(0)
	return nil
}

// Run parses os.Args, executes the trim run it describes, and returns
// a process exit code (§4.8).
func Run(ctx context.Context, stdout, stderr *os.File) int {
	var cli CLI
	parser := kong.Must(&cli,
		kong.Name("trim"),
		kong.Description("trim deletes local and remote-tracking branches already merged into a base branch."),
		kong.Writers(stdout, stderr),
		kong.Exit(os.Exit),
		kong.UsageOnError(),
	)

	komplete.Run(parser)

	kctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.FatalIfErrorf(err)
		return 1
	}

	if node := kctx.Selected(); node != nil && node.Name == "shell-completion" {
		kctx.FatalIfErrorf(kctx.Run())
		return 0
	}

	log := silog.New(stderr, &silog.Options{Level: silog.LevelInfo})
	if cli.Verbose {
		log.SetLevel(silog.LevelDebug)
	}

	if err := cli.run(ctx, log, stdout); err != nil {
		return exitCode(log, err)
	}
	return 0
}

func (cli *CLI) run(ctx context.Context, log *silog.Logger, stdout *os.File) error {
	gitLog := gitlog.New(os.Stderr)
	if cli.Verbose {
		gitLog.SetLevel(gitlog.DebugLevel)
	} else {
		gitLog.SetLevel(gitlog.WarnLevel)
	}

	repo, err := git.Open(ctx, cli.Dir, git.OpenOptions{Log: gitLog})
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	gitConfig := git.NewConfig(git.ConfigOptions{Dir: repo.Root(), Log: gitLog})

	trimCfg, err := trimconfig.Resolve(ctx, gitConfig)
	if err != nil {
		return err
	}
	cli.applyOverrides(&trimCfg)

	base := cli.Base
	if base == "" {
		base = trimCfg.Base
	}
	if base == "" {
		base, err = repo.RemoteDefaultBranch(ctx, cli.Remote)
		if err != nil {
			return fmt.Errorf("detect base branch: %w", err)
		}
	}

	pushDefault := resolvePushDefault(ctx, gitConfig)

	handler := &handlertrim.Handler{
		Log:         log,
		Repository:  repo,
		Config:      gitConfig,
		PushDefault: pushDefault,
	}

	plan, err := handler.Plan(ctx, handlertrim.Request{
		BaseRemote:        cli.Remote,
		BaseBranch:        base,
		ProtectedPatterns: append(append([]string{}, trimCfg.Protected...), cli.Protect...),
		Filter:            cli.deleteFilter(trimCfg.Filter),
		DryRun:            cli.DryRun || cli.JSON,
	})
	if plan != nil && cli.JSON {
		if jsonErr := render.JSON(stdout, plan); jsonErr != nil {
			return jsonErr
		}
		return err
	}

	if plan != nil {
		if cli.Verbose {
			for name := range plan.ToDelete.MergedLocals {
				log.Debug("deleted merged local branch", "branch", name)
			}
			for name := range plan.ToDelete.StrayLocals {
				log.Debug("deleted stray local branch", "branch", name)
			}
		}

		var renderErr error
		switch cli.Format {
		case "names":
			renderErr = render.Locals(stdout, plan)
		case "remotes":
			renderErr = render.Remotes(stdout, plan)
		default:
			renderErr = render.Summary(stdout, plan)
		}
		if renderErr != nil {
			return renderErr
		}
	}
	return err
}

func (cli *CLI) applyOverrides(cfg *trimconfig.Config) {
	if cli.IncludeMergedLocals != nil {
		cfg.Filter.MergedLocals = *cli.IncludeMergedLocals
	}
	if cli.IncludeStrayLocals != nil {
		cfg.Filter.StrayLocals = *cli.IncludeStrayLocals
	}
	if cli.IncludeMergedRemotes != nil {
		cfg.Filter.MergedRemotes = *cli.IncludeMergedRemotes
	}
	if cli.IncludeStrayRemotes != nil {
		cfg.Filter.StrayRemotes = *cli.IncludeStrayRemotes
	}
}

func (cli *CLI) deleteFilter(names trimconfig.FilterNames) trim.DeleteFilter {
	always := func(string) bool { return true }
	never := func(string) bool { return false }
	alwaysRemote := func(trim.RemoteBranch) bool { return true }
	neverRemote := func(trim.RemoteBranch) bool { return false }

	filter := trim.NewDeleteFilter()
	if !names.MergedLocals {
		filter.IncludeMergedLocal = never
	} else {
		filter.IncludeMergedLocal = always
	}
	if !names.StrayLocals {
		filter.IncludeStrayLocal = never
	} else {
		filter.IncludeStrayLocal = always
	}
	if !names.MergedRemotes {
		filter.IncludeMergedRemote = neverRemote
	} else {
		filter.IncludeMergedRemote = alwaysRemote
	}
	if !names.StrayRemotes {
		filter.IncludeStrayRemote = neverRemote
	} else {
		filter.IncludeStrayRemote = alwaysRemote
	}
	return filter
}

// resolvePushDefault reads push.default from Git configuration,
// defaulting to Git's own default ("simple") when unset.
func resolvePushDefault(ctx context.Context, cfg *git.Config) upstream.PushDefault {
	iterFn, err := cfg.ListRegexp(ctx, `^push\.default$`)
	if err != nil {
		return upstream.PushDefaultSimple
	}

	var value string
	iterFn(func(e git.ConfigEntry, err error) bool {
		if err == nil {
			value = e.Value
		}
		return true
	})
	return upstream.ParsePushDefault(value)
}

// exitCode maps a trim run's terminal error to a process exit code
// (§4.8): 1 for resolution/config/network errors, 2 for cancellation.
func exitCode(log *silog.Logger, err error) int {
	var cancelled *trim.CancelledError
	if errors.As(err, &cancelled) {
		log.Error("cancelled", "error", err)
		return 2
	}
	log.Error("trim failed", "error", err)
	return 1
}
