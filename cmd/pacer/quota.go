package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pacer-gateway/middleware/ratelimit"
	"pacer-gateway/middleware/ratelimit/domain"
)

func newConsumeCmd(a *app) *cobra.Command {
	return newQuotaCmd(a, domain.ModeConsume,
		"consume <consumer-id>",
		"Consume a rate-limit token for a consumer and print the result",
		`  pacer consume alice
  pacer consume alice --limit 5 --reset 10`)
}

func newQueryCmd(a *app) *cobra.Command {
	return newQuotaCmd(a, domain.ModeQuery,
		"query <consumer-id>",
		"Query a consumer's rate limit without consuming a token",
		`  pacer query alice`)
}

func newQuotaCmd(a *app, mode domain.Mode, use, short, example string) *cobra.Command {
	var limit, reset int

	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Example: example,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ratelimit.New(a.pacerOptions())
			if err != nil {
				return err
			}
			defer p.Close()

			consumer := ratelimit.Consumer{ID: args[0], Limit: limit, Reset: reset}

			var res ratelimit.QuotaResult
			if mode == domain.ModeConsume {
				res = p.Consume(cmd.Context(), consumer)
			} else {
				res = p.Query(cmd.Context(), consumer)
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "override the token limit for this consumer (0 = default)")
	cmd.Flags().IntVar(&reset, "reset", 0, "override the window length in seconds for this consumer (0 = default)")
	return cmd
}

func printResult(w io.Writer, res ratelimit.QuotaResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
