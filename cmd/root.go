package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobpipe/internal/config"
	"github.com/sells-group/jobpipe/internal/tenant"
)

var (
	cfg        *config.Config
	cfgPath    string
	dataDirArg string

	// nowFunc is overridden in tests.
	nowFunc = time.Now
)

var rootCmd = &cobra.Command{
	Use:   "jobpipe",
	Short: "Multi-tenant job application pipeline",
	Long:  "Fetches job postings for each customer, tailors resumes and cover letters with an AI backend, and emails a digest of the results.",

	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		c, err := config.Load(cfgPath)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if dataDirArg != "" {
			c.DataDir = dataDirArg
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ./jobpipe.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDirArg, "data-dir", "", "tenant store directory (overrides data_dir)")
}

func tenants() *tenant.Manager {
	return tenant.NewManager(cfg.DataDir)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
