package main

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/rag"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// searchHit is the JSON form of a record. Score is null when the backend
// reported none.
type searchHit struct {
	ID       string                 `json:"id"`
	Context  string                 `json:"context"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    *float32               `json:"score"`
}

func newSearchCmd(deps dependencies, flags *globalFlags) *cobra.Command {
	var (
		limit     int
		threshold float64
		filter    []string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find documents similar to a query",
		Long: `Search the collection and print matches scoring at least --threshold,
best first. Scores are 1 minus the distance for cosine and inner-product
collections, so cosine scores fall in [-1, 1], and 1/(1+d) for L2 collections,
which falls in (0, 1]. Higher is closer.

A backend failure exits non-zero instead of printing an empty result.

Examples:
  ragstore search "feline"
  ragstore search "feline" --limit 10 --threshold 0 --filter kind=note --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parsePairs(filter)
			if err != nil {
				return err
			}
			where := vectorstore.NewFilterBuilder().WithMap(pairs).Build()

			a, err := openApp(cmd.Context(), deps, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := a.commandContext(cmd.Context())

			records, err := a.storage.Search(ctx, strings.Join(args, " "), limit, threshold, where)
			if err != nil {
				return err
			}
			logging.FromContext(ctx).Debug(ctx, "search done",
				zap.Int("limit", limit),
				zap.Float64("threshold", threshold),
				zap.Int("results", len(records)),
			)

			if asJSON {
				return writeJSON(cmd, records)
			}
			return writeTable(cmd, records)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", rag.DefaultSearchLimit, "maximum number of results")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", rag.DefaultScoreThreshold, "minimum score")
	cmd.Flags().StringArrayVar(&filter, "filter", nil, "metadata key=value the results must match, repeatable")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func writeJSON(cmd *cobra.Command, records []rag.Record) error {
	hits := make([]searchHit, len(records))
	for i, r := range records {
		hits[i] = searchHit{ID: r.ID, Context: r.Context, Metadata: r.Metadata}
		if !math.IsNaN(float64(r.Score)) {
			score := r.Score
			hits[i].Score = &score
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(hits)
}

func writeTable(cmd *cobra.Command, records []rag.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no matches")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tID\tCONTEXT")
	for _, r := range records {
		score := "-"
		if !math.IsNaN(float64(r.Score)) {
			score = fmt.Sprintf("%.4f", r.Score)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", score, r.ID, oneLine(r.Context, 80))
	}
	return w.Flush()
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
