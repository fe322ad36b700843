// Command fieldtrust scores the trustworthiness of every field of a CSV
// dataset and keeps a history of the scores.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hed1ad/fieldtrust/internal/config"
	"github.com/hed1ad/fieldtrust/internal/logging"
	"github.com/hed1ad/fieldtrust/pkg/store"
)

var version = "dev"

// app carries the state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "fieldtrust",
		Short: "Field-level trust scores for tabular data",
		Long: `fieldtrust scores every column of a dataset from its completeness,
validation results, outlier rate and freshness, and records the scores
so their history can be queried.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.fieldtrust/config.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")
	pf.String("db", "", "score database path (default: $HOME/.fieldtrust/trust_scores.db)")
	bindKey(pf, "log-level", "logging.level")
	bindKey(pf, "log-format", "logging.format")
	bindKey(pf, "db", "store.path")

	root.AddCommand(a.scoreCmd())
	root.AddCommand(a.latestCmd())
	root.AddCommand(a.historyCmd())
	root.AddCommand(a.configCmd())
	root.AddCommand(versionCmd())

	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// init loads configuration with flag overrides and installs the logger.
func (a *app) init(cmd *cobra.Command, _ []string) error {
	v, err := config.New(a.cfgFile)
	if err != nil {
		return err
	}

	if err := bindFlags(cmd, v); err != nil {
		return err
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	a.v = v
	a.cfg = cfg
	slog.Debug("configuration loaded", "file", v.ConfigFileUsed(), "method", cfg.Anomaly.Method)
	return nil
}

// configKey annotates a flag with the configuration key it overrides.
const configKey = "fieldtrust/config-key"

func bindKey(fs *pflag.FlagSet, name, key string) {
	_ = fs.SetAnnotation(name, configKey, []string{key})
}

// bindFlags lets every annotated flag set on the command line override its
// configuration key. Unset flags leave file and env values in place.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[configKey]
		if !ok || !f.Changed || err != nil {
			return
		}
		if bindErr := v.BindPFlag(keys[0], f); bindErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

func (a *app) openStore(ctx context.Context) (*store.SQLite, error) {
	s, err := store.OpenSQLite(ctx, a.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return s, nil
}

func closeStore(s store.Store) {
	if err := s.Close(); err != nil {
		slog.Error("failed to close storage", "error", err)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "fieldtrust", version)
		},
	}
}
