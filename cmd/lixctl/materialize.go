package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/lixdb/lix/internal/materialize"
)

var (
	materializeVersions string
	materializeDebug    bool
)

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Rebuild materialized tables from the raw change log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, db, err := openEngine(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		scope := materialize.FullScope()
		if materializeVersions != "" {
			scope = materialize.VersionsScope(strings.Split(materializeVersions, ",")...)
		}

		plan, report, err := eng.Materialize(rootCtx, materialize.Request{
			Scope: scope,
			Debug: materializeDebug,
		})
		if err != nil {
			return err
		}
		printJSON(map[string]any{"plan": plan, "report": report})
		return nil
	},
}

func init() {
	materializeCmd.Flags().StringVar(&materializeVersions, "versions", "", "comma-separated version ids to rebuild (default: every version)")
	materializeCmd.Flags().BoolVar(&materializeDebug, "debug", false, "print the planned writes without applying them (the report is null)")
	rootCmd.AddCommand(materializeCmd)
}
