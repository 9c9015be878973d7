package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobpipe/internal/ledger"
	"github.com/sells-group/jobpipe/internal/pipeline"
	"github.com/sells-group/jobpipe/internal/tenant"
)

// ledgerCounts maps phase name to entry counts by status.
type ledgerCounts map[string]map[string]int

func countLedgers(ctx context.Context, t *tenant.Tenant) (ledgerCounts, error) {
	set, err := ledger.OpenSet(ctx, ledger.Driver(cfg.Ledger.Driver), t.Dir, pipeline.Phases)
	if err != nil {
		return nil, err
	}
	defer set.Close()

	out := make(ledgerCounts, len(pipeline.Phases))
	for _, l := range []ledger.Ledger{set.Acquisition, set.Transformation, set.Delivery} {
		entries, err := l.All(ctx)
		if err != nil {
			return nil, err
		}
		byStatus := make(map[string]int)
		for _, e := range entries {
			byStatus[e.Status]++
		}
		out[l.Name()] = byStatus
	}
	return out, nil
}

func roles(t *tenant.Tenant) string {
	const width = 40
	s := strings.Join(t.Config.Search.Queries, ", ")
	if len(s) > width {
		s = s[:width-3] + "..."
	}
	return s
}

var listHeaders = []string{"Tenant", "Roles", "Postings", "Tailored", "Delivered", "Status"}

var listAligns = []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}

func listRows(ctx context.Context, all []*tenant.Tenant, now time.Time) [][]string {
	rows := make([][]string, 0, len(all))
	for _, t := range all {
		row := []string{t.Slug, roles(t), "-", "-", "-", t.Status(now)}
		if t.LoadErr == nil {
			if counts, err := countLedgers(ctx, t); err == nil {
				row[2] = strconv.Itoa(counts[pipeline.Phases[0]][ledger.StatusAccepted])
				row[3] = strconv.Itoa(counts[pipeline.Phases[1]][ledger.StatusComplete])
				row[4] = strconv.Itoa(counts[pipeline.Phases[2]][ledger.StatusDelivered])
			} else {
				row[5] = "INVALID"
			}
		}
		rows = append(rows, row)
	}
	return rows
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants with their progress and lifecycle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		all, err := tenants().List()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(all) == 0 {
			_, err := fmt.Fprintln(w, "No tenants.")
			return err
		}
		_, err = fmt.Fprintln(w, renderTable(listHeaders, listRows(cmd.Context(), all, nowFunc()), listAligns))
		return err
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <tenant>",
	Short: "Show one tenant's configuration, lifecycle and ledgers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := tenants().Get(args[0])
		if err != nil {
			return err
		}
		counts, err := countLedgers(cmd.Context(), t)
		if err != nil {
			return err
		}
		writeStatus(cmd.OutOrStdout(), t, counts, nowFunc())
		return nil
	},
}

func writeStatus(w io.Writer, t *tenant.Tenant, counts ledgerCounts, now time.Time) {
	c := t.Config
	fmt.Fprintf(w, "Tenant:     %s\n", t.Slug)
	fmt.Fprintf(w, "Candidate:  %s <%s>\n", c.Candidate.Name(), c.Candidate.Email)
	fmt.Fprintf(w, "Queries:    %s\n", strings.Join(c.Search.Queries, ", "))
	fmt.Fprintf(w, "Locations:  %s\n", strings.Join(c.Search.Locations, ", "))
	fmt.Fprintf(w, "Status:     %s\n", t.Status(now))
	if lc := t.Lifecycle; lc != nil {
		fmt.Fprintf(w, "Started:    %s\n", lc.StartedAt.Format(time.DateOnly))
		fmt.Fprintf(w, "Expires:    %s\n", lc.ExpiresAt.Format(time.DateOnly))
		fmt.Fprintf(w, "Daily cap:  %d\n", lc.DailyItemCap)
		fmt.Fprintf(w, "Delivered:  %d\n", lc.TotalDelivered)
	}

	rows := make([][]string, 0, len(pipeline.Phases))
	for _, p := range pipeline.Phases {
		var parts []string
		total := 0
		for _, s := range []string{ledger.StatusAccepted, ledger.StatusRejected, ledger.StatusComplete, ledger.StatusDelivered} {
			if n := counts[p][s]; n > 0 {
				parts = append(parts, s+" "+strconv.Itoa(n))
				total += n
			}
		}
		rows = append(rows, []string{p, strconv.Itoa(total), strings.Join(parts, ", ")})
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable([]string{"Ledger", "Entries", "By status"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
}

var renewDays int

var renewCmd = &cobra.Command{
	Use:   "renew <tenant>",
	Short: "Extend a tenant's active window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if renewDays <= 0 {
			return eris.Errorf("--days must be positive, got %d", renewDays)
		}
		now := nowFunc()
		lc, err := tenants().Extend(args[0], renewDays, now)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Renewed %s until %s (%d days left)\n",
			args[0], lc.ExpiresAt.Format(time.DateOnly), lc.DaysLeft(now))
		return err
	},
}

func init() {
	renewCmd.Flags().IntVar(&renewDays, "days", 20, "days to add")
	rootCmd.AddCommand(listCmd, statusCmd, renewCmd)
}
