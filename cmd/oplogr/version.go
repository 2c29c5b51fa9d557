package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show oplogr version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("oplogr %s\n", Version)
	},
}
