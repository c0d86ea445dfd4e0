package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-sqltemplate/internal/catalog"
	"github.com/aescanero/dago-node-sqltemplate/internal/config"
	"github.com/aescanero/dago-node-sqltemplate/internal/service"
)

// app carries what the subcommands share once flags are parsed
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "sqltemplate",
		Short:         "Render parameterized analytics SQL from a template catalog",
		Long:          `sqltemplate renders BigQuery statements from per-domain SQL templates, escaping every parameter for the position it is substituted into.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("catalog", "", "Catalog directory holding catalog.yaml (default: CATALOG_PATH or the embedded catalog)")
	flags.String("dataset", "", "Dataset used when a request omits it (default: DEFAULT_DATASET)")
	flags.Bool("no-guards", false, "Skip catalog guards")
	flags.String("log-level", "", "Log level: debug, info, warn, error (default: LOG_LEVEL, warn for one-shot commands)")

	cmd.AddCommand(
		newRenderCmd(a),
		newListCmd(a),
		newValidateCmd(a),
		newWorkerCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// setup loads the environment configuration and applies flag overrides
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("catalog") {
		cfg.CatalogPath, _ = flags.GetString("catalog")
	}
	if flags.Changed("dataset") {
		cfg.DefaultDataset, _ = flags.GetString("dataset")
	}
	if noGuards, _ := flags.GetBool("no-guards"); noGuards {
		cfg.GuardsEnabled = false
	}

	level := cfg.LogLevel
	output := "stdout"
	if cmd.Name() != "worker" {
		// stdout carries the rendered SQL
		output = "stderr"
		level = "warn"
	}
	if flags.Changed("log-level") {
		level, _ = flags.GetString("log-level")
	}

	logger, err := initLogger(level, output)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) loadCatalog() (*catalog.Catalog, error) {
	if a.cfg.CatalogPath == "" {
		return catalog.LoadDefault()
	}
	return catalog.LoadDir(a.cfg.CatalogPath)
}

// newService builds the render service; reg may be nil for one-shot commands
func (a *app) newService(reg prometheus.Registerer) (*service.Service, error) {
	cat, err := a.loadCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	svc, err := service.New(cat, service.Config{
		DefaultDataset:   a.cfg.DefaultDataset,
		GuardsEnabled:    a.cfg.GuardsEnabled,
		CaptionsEnabled:  a.cfg.CaptionsEnabled,
		InjectionAudit:   a.cfg.InjectionAudit,
		MaxDateRangeDays: a.cfg.MaxDateRangeDays,
	}, service.NewMetrics(reg), a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build service: %w", err)
	}
	return svc, nil
}
