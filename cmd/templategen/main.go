package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OmkarTuptewar/template-generator/internal/config"
	"github.com/OmkarTuptewar/template-generator/internal/logging"
)

// app is the state shared by all commands after flag parsing.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger

	run runFlags
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "templategen",
		Short: "Turn bus search queries into {LABEL} templates",
		Long: `templategen sends raw bus search queries to an LLM in batches and writes one
template per query, with every entity mention replaced by a {LABEL}
placeholder. Entity values discovered along the way are added to the
registry file and offered to later batches as reference.

Runs resume from the number of records already in the output file.
Without a subcommand, templategen runs the generator.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
		RunE: a.runGenerate,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a TOML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	a.addRunFlags(root)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Generate templates for the input queries (default command)",
		Args:  cobra.NoArgs,
		RunE:  a.runGenerate,
	}
	a.addRunFlags(runCmd)

	root.AddCommand(runCmd, a.convertCmd(), a.registryCmd())
	return root
}

// setup loads .env, the config file and environment overrides, then builds
// the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.Load(a.configPath); err != nil {
			return err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, err := logging.NewWithWriter(cfg.Log, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
