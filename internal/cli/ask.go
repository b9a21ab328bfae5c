package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/parq/internal/llm"
	"github.com/raphaelgruber/parq/internal/metrics"
	"github.com/raphaelgruber/parq/internal/queryengine"
)

var (
	askContext string
	askShowSQL bool
)

var askCmd = &cobra.Command{
	Use:   "ask <parquet-file> <question>",
	Short: "Ask a natural-language question about a local Parquet file",
	Long: `Ask a question about a local Parquet file and get an LLM-synthesized
answer.

The file is attached to an embedded DuckDB instance, the configured LLM
synthesises a single SELECT statement from the schema and the question,
the statement is executed locally, and the LLM renders the result in
plain language. Configure the provider with PARQ_LLM_PROVIDER and
PARQ_LLM_MODEL (ollama works offline).

Examples:
  parq ask sales.parquet "total quantity per region"
  parq ask ev.parquet "which make is most common?" --context "EV registrations" --sql`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askContext, "context", "", "free-text description of the dataset")
	askCmd.Flags().BoolVar(&askShowSQL, "sql", false, "print the executed SQL before the answer")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path, question := args[0], args[1]

	completer, err := llm.NewCompleter(ctx, cfg)
	if err != nil {
		return err
	}

	engine, err := queryengine.OpenEngine(ctx, queryengine.EngineOptions{
		Threads:  cfg.EngineThreads,
		MemLimit: cfg.EngineMemLimit,
		TempDir:  cfg.EngineTempDir,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.AttachParquet(ctx, path); err != nil {
		return err
	}
	cols, err := engine.DescribeSchema(ctx)
	if err != nil {
		return err
	}

	svc := queryengine.NewService(nil, nil, completer, cfg, logger, metrics.NewCollector())
	answer, err := svc.AnswerAttached(ctx, engine, queryengine.EngineSchemaText(cols), askContext, question)
	if err != nil {
		return err
	}

	if askShowSQL {
		fmt.Printf("sql: %s\n\n", answer.SQL)
	}
	fmt.Println(answer.Message)
	if answer.Truncated {
		fmt.Println("(answer based on a truncated result)")
	}
	return nil
}
