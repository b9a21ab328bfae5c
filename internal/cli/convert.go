package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/parq/internal/convert"
	"github.com/raphaelgruber/parq/internal/metrics"
	"github.com/raphaelgruber/parq/internal/schema"
)

var (
	convertOut     string
	convertColumns []string
	convertPolicy  string
	convertMaxBad  int
)

var convertCmd = &cobra.Command{
	Use:   "convert <csv-file>",
	Short: "Convert a local CSV file to Parquet",
	Long: `Convert a local CSV file to a Snappy-compressed Parquet file using the
same streaming pipeline the deployed worker runs.

Every column must be declared with --column name:type. Types: string,
integer, float, boolean, date, datetime, timestamp. Appending :drop
excludes a column from the output.

Examples:
  parq convert data.csv --column id:integer --column name:string
  parq convert data.csv --column ts:timestamp --column raw:string:drop -o out.parquet
  parq convert data.csv --column v:float --policy strict --max-bad-rows 0`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertOut, "out", "o", "", "output parquet path (default <job-id>.parquet)")
	convertCmd.Flags().StringArrayVar(&convertColumns, "column", nil, "column declaration name:type[:drop], repeatable")
	convertCmd.Flags().StringVar(&convertPolicy, "policy", "", "bad-row policy: coerce-null or strict (default from config)")
	convertCmd.Flags().IntVar(&convertMaxBad, "max-bad-rows", -1, "bad-row budget before the conversion fails")
}

// parseColumns turns the --column flags into a declared schema.
func parseColumns(flags []string) (schema.Schema, error) {
	if len(flags) == 0 {
		return schema.Schema{}, fmt.Errorf("at least one --column declaration is required")
	}
	specs := make([]schema.ColumnSpec, 0, len(flags))
	for _, flag := range flags {
		parts := strings.Split(flag, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return schema.Schema{}, fmt.Errorf("column %q: want name:type[:drop]", flag)
		}
		included := true
		if len(parts) == 3 {
			if parts[2] != "drop" {
				return schema.Schema{}, fmt.Errorf("column %q: third segment must be 'drop'", flag)
			}
			included = false
		}
		specs = append(specs, schema.ColumnSpec{Column: parts[0], Type: parts[1], Included: &included})
	}
	return schema.FromSpecs(specs)
}

func runConvert(cmd *cobra.Command, args []string) error {
	declared, err := parseColumns(convertColumns)
	if err != nil {
		return err
	}

	runCfg := cfg
	if convertPolicy != "" {
		runCfg.BadRowPolicy = convertPolicy
	}
	if convertMaxBad >= 0 {
		runCfg.MaxBadRows = convertMaxBad
	}

	src, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer src.Close()

	outPath := convertOut
	if outPath == "" {
		outPath = uuid.NewString() + ".parquet"
	}
	dst, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create parquet: %w", err)
	}

	pipeline := convert.New(runCfg, logger, metrics.NewCollector())
	stats, err := pipeline.Run(cmd.Context(), src, dst, declared)
	if err != nil {
		dst.Close()
		os.Remove(outPath)
		return err
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close parquet: %w", err)
	}

	fmt.Printf("wrote %s: %d rows in %d batches (%d bad rows) in %s\n",
		outPath, stats.Rows, stats.Batches, stats.BadRows, stats.Elapsed.Round(time.Millisecond))
	for col, n := range stats.NulledCells {
		fmt.Printf("  column %s: %d values nulled\n", col, n)
	}
	return nil
}
