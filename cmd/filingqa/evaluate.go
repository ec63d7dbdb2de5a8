package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/evaluation"
)

func newEvaluateCmd(root *rootOptions) *cobra.Command {
	var questionsPath, outputPath string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Answer a question set and grade the results",
		Long: `Run every question of a question set through the pipeline, grade each
answer against its expected text and sources, and write a JSON report.

Question files may be JSON, YAML or TOML. Without --questions the built-in
set for the Apple and Tesla filings is used.

Examples:
  filingqa evaluate
  filingqa evaluate --questions questions.yaml --output results.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if questionsPath == "" {
				questionsPath = a.cfg.Evaluation.Questions
			}
			if outputPath == "" {
				outputPath = a.cfg.Evaluation.Output
			}

			questions, err := evaluation.Load(questionsPath)
			if err != nil {
				return err
			}
			if err := a.loadIndex(ctx); err != nil {
				return err
			}

			outcomes, err := a.reg.QA().Evaluate(ctx, questions)
			if err != nil {
				return err
			}
			report := evaluation.NewReport(modelLabel(a.cfg), outcomes)
			if outputPath != "" {
				if err := evaluation.WriteResults(outputPath, report); err != nil {
					return err
				}
				a.logger.Info(ctx, "wrote evaluation results", zap.String("path", outputPath))
			}

			printEvaluation(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&questionsPath, "questions", "", "question set file (default: evaluation.questions or built-in)")
	cmd.Flags().StringVar(&outputPath, "output", "", "write the JSON report here (default: evaluation.output)")
	return cmd
}

func printEvaluation(w io.Writer, r evaluation.Report) {
	for _, o := range r.Outcomes {
		mark := "PASS"
		if !o.Matched {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "%s  %-20s %-13s %6s  %s\n", mark, o.ID, o.Status, o.Latency.Round(time.Millisecond), o.Reason)
	}
	fmt.Fprintf(w, "\n%d/%d matched (%.1f%%) with %s\n", r.Matched, r.Total, r.Accuracy*100, r.Model)
}
