package main

import (
	"github.com/spf13/cobra"

	"github.com/vaibhaw-/oplogr/internal/oplogr/config"
	"github.com/vaibhaw-/oplogr/internal/oplogr/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats [oplog files...]",
	Short: "Summarize oplog files by op, namespace and duplicate ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		files := args
		if len(files) == 0 {
			files = []string{config.Get().Output.Path}
		}
		s, err := stats.CollectFiles(files)
		if err != nil {
			return err
		}
		s.Print(cmd.OutOrStdout())
		return nil
	},
}
