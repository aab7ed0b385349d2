package main

import (
	"github.com/spf13/cobra"

	"github.com/lixdb/lix/internal/checkpoint"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Promote the active version's working commit to a checkpoint",
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a checkpoint on the active version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, db, err := openEngine(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		result, err := eng.CreateCheckpoint(rootCtx)
		if err != nil {
			return err
		}
		printJSON(result)
		return nil
	},
}

var (
	versionName     string
	versionInherits string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Manage versions (branches) of a store",
}

var versionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new version, inheriting from the active version unless --inherits is given",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, db, err := openEngine(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		result, err := eng.CreateVersion(rootCtx, checkpoint.CreateVersionOptions{
			Name:     versionName,
			Inherits: versionInherits,
		})
		if err != nil {
			return err
		}
		printJSON(result)
		return nil
	},
}

func init() {
	versionCreateCmd.Flags().StringVar(&versionName, "name", "", "name for the new version (required)")
	versionCreateCmd.Flags().StringVar(&versionInherits, "inherits", "", "version id to inherit from (default: the active version)")
	_ = versionCreateCmd.MarkFlagRequired("name")

	checkpointCmd.AddCommand(checkpointCreateCmd)
	versionCmd.AddCommand(versionCreateCmd)
	rootCmd.AddCommand(checkpointCmd, versionCmd)
}
