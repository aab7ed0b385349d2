package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Manage installed plugins",
}

var pluginInstallCmd = &cobra.Command{
	Use:   "install <plugin-key> <manifest.json> [module.wasm]",
	Short: "Install a plugin from a manifest and optional wasm module",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pluginKey, manifestPath := args[0], args[1]

		manifest, err := os.ReadFile(manifestPath) // #nosec G304 -- operator-supplied CLI argument
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}

		var wasmBytes []byte
		if len(args) == 3 {
			wasmBytes, err = os.ReadFile(args[2]) // #nosec G304 -- operator-supplied CLI argument
			if err != nil {
				return fmt.Errorf("read wasm module: %w", err)
			}
		}

		eng, db, err := openEngine(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := eng.InstallPlugin(rootCtx, pluginKey, string(manifest), wasmBytes); err != nil {
			return err
		}
		fmt.Printf("installed plugin %q\n", pluginKey)
		return nil
	},
}

func init() {
	pluginCmd.AddCommand(pluginInstallCmd)
	rootCmd.AddCommand(pluginCmd)
}
