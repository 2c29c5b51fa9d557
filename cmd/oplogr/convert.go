package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/oplogr/internal/oplogr/config"
	"github.com/vaibhaw-/oplogr/internal/oplogr/convert"
	"github.com/vaibhaw-/oplogr/internal/oplogr/logger"
	"github.com/vaibhaw-/oplogr/internal/oplogr/oplog"
	"github.com/vaibhaw-/oplogr/internal/oplogr/sink"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert an audit-log CSV export into oplog records",
	RunE:  runConvert,
}

var (
	convertFlagInput  string
	convertFlagOutput string
	convertFlagDB     string
)

func init() {
	convertCmd.Flags().StringVar(&convertFlagInput, "input", "", "CSV export file (default stdin)")
	convertCmd.Flags().StringVar(&convertFlagOutput, "output", "", "oplog file to append to (default from config output.path)")
	convertCmd.Flags().StringVar(&convertFlagDB, "db", "", "only convert rows of this database")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	var in io.Reader
	if convertFlagInput == "" {
		in = os.Stdin
	} else {
		f, err := os.Open(convertFlagInput)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	path := cfg.Output.Path
	if convertFlagOutput != "" {
		path = convertFlagOutput
	}
	out, err := sink.Open(path)
	if err != nil {
		return err
	}

	res, err := convert.Run(in, oplog.NewNormalizer(), out, convert.Options{FilterDB: convertFlagDB})
	if cerr := out.Close(); cerr != nil {
		logger.L().Errorw("failed to close oplog", "path", path, "err", cerr.Error())
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "convert: rows=%d written=%d filtered=%d skipped=%d rejected=%d output=%s\n",
		res.Rows, res.Written, res.Filtered, res.Skipped, res.Rejected, path)
	return nil
}
