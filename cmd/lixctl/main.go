// Command lixctl is a thin command-line front end for the engine: open a
// store, run a statement, manage checkpoints/versions, trigger
// materialization, or install a plugin. It is a convenience wrapper, not a
// second implementation of any engine semantics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/engine"
)

var (
	dbPath     string
	dialect    string
	configPath string
	jsonOutput bool

	cfg Config

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "lixctl",
	Short: "lixctl - control-plane CLI for a lix store",
	Long:  `lixctl opens a lix store and runs statements, checkpoints, materialization, and plugin installs against it.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			printVersion()
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		loaded, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		if dialect != "" {
			cfg.Dialect = dialect
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a lixctl.yaml config file (optional)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (sqlite file, or dolt directory for --dialect postgres)")
	rootCmd.PersistentFlags().StringVar(&dialect, "dialect", "", "backend dialect: sqlite (default) or postgres")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.Flags().BoolP("version", "V", false, "print version information")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openEngine opens the configured backend and returns a ready Engine. Every
// subcommand that touches a store calls this exactly once.
func openEngine(ctx context.Context) (*engine.Engine, backend.Backend, error) {
	db, planned, err := cfg.OpenBackend(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open backend: %w", err)
	}
	eng, err := engine.Open(ctx, db, planned)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("open engine: %w", err)
	}
	return eng, db, nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
