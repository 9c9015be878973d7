package main

import (
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/jobpipe/internal/model"
	"github.com/sells-group/jobpipe/internal/pipeline"
)

// runFlags backs the flags shared by the run commands.
type runFlags struct {
	tailorLimit int
	notifyLimit int
	minMatch    int
	fetchOnly   bool
	skipFetch   bool
	noEmail     bool
	noURLCheck  bool
	dryRun      bool
	force       bool
	asJSON      bool
	since       string
	source      string
	jd          string
}

func (f *runFlags) bind(fs *pflag.FlagSet) {
	fs.IntVar(&f.tailorLimit, "tailor-limit", 0, "max packages tailored per tenant (default run.tailor_limit)")
	fs.IntVar(&f.notifyLimit, "notify-limit", 0, "max packages per digest, 0 for unlimited")
	fs.BoolVar(&f.fetchOnly, "fetch-only", false, "run acquisition only")
	fs.BoolVar(&f.skipFetch, "skip-fetch", false, "skip acquisition")
	fs.BoolVar(&f.noEmail, "no-email", false, "write digest.html instead of sending")
	fs.BoolVar(&f.noURLCheck, "no-url-check", false, "skip apply URL liveness checks")
	fs.BoolVar(&f.dryRun, "dry-run", false, "report pending work without doing it")
	fs.IntVar(&f.minMatch, "min-match", 0, "skip packages below this match confidence")
	fs.StringVar(&f.since, "since", "", "only deliver packages created on or after YYYY-MM-DD")
	fs.BoolVar(&f.asJSON, "json", false, "print results as JSON")
}

func (f *runFlags) options(fs *pflag.FlagSet) (pipeline.Options, error) {
	opts := pipeline.Options{
		FetchOnly:   f.fetchOnly,
		SkipFetch:   f.skipFetch,
		NoEmail:     f.noEmail,
		NoURLCheck:  f.noURLCheck,
		DryRun:      f.dryRun,
		TailorLimit: f.tailorLimit,
		NotifyLimit: f.notifyLimit,
		MinMatch:    f.minMatch,
		Source:      f.source,
		JDGlob:      f.jd,
	}
	if f.fetchOnly && f.skipFetch {
		return opts, eris.New("--fetch-only and --skip-fetch are mutually exclusive")
	}
	if !fs.Changed("tailor-limit") && !fs.Changed("limit") {
		opts.TailorLimit = cfg.Run.TailorLimit
	}
	if !fs.Changed("notify-limit") && !fs.Changed("limit") {
		opts.NotifyLimit = cfg.Run.NotifyLimit
	}
	if f.since != "" {
		t, err := time.Parse(time.DateOnly, f.since)
		if err != nil {
			return opts, eris.Wrapf(err, "--since %q: want YYYY-MM-DD", f.since)
		}
		opts.Since = t
	}
	return opts, nil
}

var runAllFlags runFlags

var runAllCmd = &cobra.Command{
	Use:   "run-all",
	Short: "Run the pipeline for every active tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := runAllFlags.options(cmd.Flags())
		if err != nil {
			return err
		}
		p, err := buildPipeline(cfg)
		if err != nil {
			return err
		}

		results, runErr := p.RunAll(cmd.Context(), nowFunc(), opts)
		if runErr != nil && !errors.Is(runErr, pipeline.ErrFatal) {
			return runErr
		}
		if err := printResults(cmd.OutOrStdout(), results, runAllFlags.asJSON); err != nil {
			return err
		}
		return runErr
	},
}

var runOneFlags runFlags

var runCmd = &cobra.Command{
	Use:   "run <tenant>",
	Short: "Run the pipeline for one tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := runOneFlags.options(cmd.Flags())
		if err != nil {
			return err
		}
		return runTenant(cmd, args[0], opts, runOneFlags.force, runOneFlags.asJSON)
	},
}

// runTenant runs one tenant. An expired tenant runs only when forced.
func runTenant(cmd *cobra.Command, slug string, opts pipeline.Options, force, asJSON bool) error {
	t, err := tenants().Get(slug)
	if err != nil {
		return err
	}
	now := nowFunc()
	if !t.Active(now) && !force {
		return eris.Errorf("tenant %s is %s; use --force to run it anyway", slug, t.Status(now))
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	res := p.RunTenant(cmd.Context(), t, opts)
	if err := printResults(cmd.OutOrStdout(), []model.TenantResult{res}, asJSON); err != nil {
		return err
	}
	if res.Fatal {
		return pipeline.ErrFatal
	}
	return nil
}

func init() {
	runAllFlags.bind(runAllCmd.Flags())
	runOneFlags.bind(runCmd.Flags())
	runCmd.Flags().BoolVar(&runOneFlags.force, "force", false, "run even if the tenant has expired")
	rootCmd.AddCommand(runAllCmd, runCmd)
}
