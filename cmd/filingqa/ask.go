package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

func newAskCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Answer one question from the persisted index",
		Long: `Answer a question using the index written by 'filingqa ingest'.

Examples:
  filingqa ask "What was Apple's total revenue for fiscal 2024?"
  filingqa ask --json "What were Tesla's total revenues in 2023?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.loadIndex(ctx); err != nil {
				return err
			}

			res := a.reg.QA().AnswerQuestion(ctx, strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			fmt.Fprintln(out, res.Answer)
			if len(res.Sources) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Sources:")
				for _, s := range res.Sources {
					fmt.Fprintf(out, "  - %s\n", s)
				}
			}
			if res.Status != qa.StatusAnswered {
				fmt.Fprintf(cmd.ErrOrStderr(), "status: %s\n", res.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
