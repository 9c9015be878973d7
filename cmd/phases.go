package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/jobpipe/internal/model"
)

var fetchFlags runFlags

var fetchCmd = &cobra.Command{
	Use:   "fetch <tenant>",
	Short: "Run acquisition for one tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := fetchFlags.options(cmd.Flags())
		if err != nil {
			return err
		}
		opts.Only = model.PhaseAcquisition
		return runTenant(cmd, args[0], opts, fetchFlags.force, fetchFlags.asJSON)
	},
}

var tailorFlags runFlags

var tailorCmd = &cobra.Command{
	Use:   "tailor <tenant>",
	Short: "Tailor application packages for accepted postings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := tailorFlags.options(cmd.Flags())
		if err != nil {
			return err
		}
		opts.Only = model.PhaseTransformation
		return runTenant(cmd, args[0], opts, tailorFlags.force, tailorFlags.asJSON)
	},
}

var notifyFlags runFlags

var notifyCmd = &cobra.Command{
	Use:   "notify <tenant>",
	Short: "Email the digest of completed packages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := notifyFlags.options(cmd.Flags())
		if err != nil {
			return err
		}
		opts.Only = model.PhaseDelivery
		return runTenant(cmd, args[0], opts, notifyFlags.force, notifyFlags.asJSON)
	},
}

func init() {
	for _, c := range []struct {
		cmd *cobra.Command
		f   *runFlags
	}{{fetchCmd, &fetchFlags}, {tailorCmd, &tailorFlags}, {notifyCmd, &notifyFlags}} {
		fs := c.cmd.Flags()
		fs.BoolVar(&c.f.dryRun, "dry-run", false, "report pending work without doing it")
		fs.BoolVar(&c.f.force, "force", false, "run even if the tenant has expired")
		fs.BoolVar(&c.f.asJSON, "json", false, "print results as JSON")
	}

	fs := fetchCmd.Flags()
	fs.StringVar(&fetchFlags.source, "source", "", "fetch from this source only")
	fs.BoolVar(&fetchFlags.noURLCheck, "no-url-check", false, "skip apply URL liveness checks")

	fs = tailorCmd.Flags()
	fs.IntVar(&tailorFlags.tailorLimit, "limit", 0, "max packages to tailor (default run.tailor_limit)")
	fs.StringVar(&tailorFlags.jd, "jd", "", "only postings whose JD file matches this glob or substring")

	fs = notifyCmd.Flags()
	fs.IntVar(&notifyFlags.notifyLimit, "limit", 0, "max packages in the digest")
	fs.IntVar(&notifyFlags.minMatch, "min-match", 0, "skip packages below this match confidence")
	fs.StringVar(&notifyFlags.since, "since", "", "only packages created on or after YYYY-MM-DD")
	fs.BoolVar(&notifyFlags.noEmail, "no-email", false, "write digest.html instead of sending")

	rootCmd.AddCommand(fetchCmd, tailorCmd, notifyCmd)
}
