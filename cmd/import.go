package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobpipe/internal/doctext"
	"github.com/sells-group/jobpipe/internal/intake"
)

var importForce bool

var importCmd = &cobra.Command{
	Use:   "import <payload.json|->",
	Short: "Create a tenant from an onboarding form submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readPayload(cmd, args[0])
		if err != nil {
			return err
		}
		p, err := intake.Parse(data)
		if err != nil {
			return err
		}

		im := intake.NewImporter(tenants(), doctext.New(cfg.DocText))
		im.Now = nowFunc
		res, err := im.Import(cmd.Context(), p, importForce)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Imported %s into %s\n", res.Slug, res.Dir)
		fmt.Fprintf(w, "  resumes:       %s\n", orNone(res.Resumes))
		fmt.Fprintf(w, "  cover letters: %s\n", orNone(res.CoverLetters))
		_, err = fmt.Fprintf(w, "  active until:  %s\n", res.Lifecycle.ExpiresAt.Format("2006-01-02"))
		return err
	},
}

func readPayload(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return data, eris.Wrap(err, "read payload from stdin")
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, eris.Wrapf(err, "read payload %s", arg)
	}
	return data, nil
}

func orNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

func init() {
	importCmd.Flags().BoolVar(&importForce, "force", false, "overwrite an existing tenant, keeping its lifecycle")
	rootCmd.AddCommand(importCmd)
}
