package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lixdb/lix/internal/types"
)

var writerKey string

var execCmd = &cobra.Command{
	Use:   "exec <sql>",
	Short: "Run one SQL statement against the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, db, err := openEngine(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		key := writerKey
		if key == "" {
			key = cfg.WriterKey
		}
		result, err := eng.Execute(rootCtx, args[0], nil, types.ExecuteOptions{WriterKey: key})
		if err != nil {
			return err
		}

		if result.Rows != nil {
			printRows(result.Rows)
			return nil
		}
		if jsonOutput {
			printJSON(map[string]any{"change_ids": result.ChangeIDs})
			return nil
		}
		for _, id := range result.ChangeIDs {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	execCmd.Flags().StringVar(&writerKey, "writer-key", "", "writer key stamped on any change this statement produces")
	rootCmd.AddCommand(execCmd)
}

func printRows(rows *types.Rows) {
	if jsonOutput {
		out := make([]map[string]string, 0, rows.Len())
		for _, row := range rows.Data {
			rec := make(map[string]string, len(rows.Columns))
			for i, col := range rows.Columns {
				rec[col] = row[i].String()
			}
			out = append(out, rec)
		}
		printJSON(out)
		return
	}
	for i, col := range rows.Columns {
		if i > 0 {
			fmt.Print("\t")
		}
		fmt.Print(col)
	}
	fmt.Println()
	for _, row := range rows.Data {
		for i, v := range row {
			if i > 0 {
				fmt.Print("\t")
			}
			fmt.Print(v.String())
		}
		fmt.Println()
	}
}
