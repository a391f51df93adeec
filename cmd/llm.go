package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/codequiz/internal/llm"
	"github.com/abhisek/codequiz/internal/store"
	"github.com/abhisek/codequiz/internal/ui/theme"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect recorded oracle calls",
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent oracle calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purpose, _ := cmd.Flags().GetString("purpose")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		events, err := s.EventRepo().QueryLLMEvents(cmd.Context(), store.QueryOpts{Limit: limit, Purpose: purpose})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, theme.Hint.Render("No oracle calls recorded."))
			return nil
		}

		rows := make([][]string, 0, len(events))
		for _, e := range events {
			ok := theme.Correct.Render("✓")
			if !e.Success {
				ok = theme.Incorrect.Render("✗")
			}
			rows = append(rows, []string{
				strconv.Itoa(e.ID),
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				e.Purpose,
				truncate(e.Model, 28),
				strconv.Itoa(e.InputTokens),
				strconv.Itoa(e.OutputTokens),
				strconv.FormatInt(e.LatencyMs, 10),
				ok,
			})
		}
		fmt.Fprintln(out, theme.Table([]string{"ID", "Timestamp", "Purpose", "Model", "In", "Out", "Ms", "OK"}, rows, false))
		return nil
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show the full request and response of one call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid ID %q: %w", args[0], err)
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		e, err := s.EventRepo().GetLLMEvent(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if e == nil {
			return fmt.Errorf("event %d not found", id)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, theme.Field("ID", e.ID))
		fmt.Fprintln(out, theme.Field("Time", e.Timestamp.Local().Format("2006-01-02 15:04:05")))
		fmt.Fprintln(out, theme.Field("Provider", e.Provider))
		fmt.Fprintln(out, theme.Field("Model", e.Model))
		fmt.Fprintln(out, theme.Field("Purpose", e.Purpose))
		fmt.Fprintln(out, theme.Field("Tokens", fmt.Sprintf("%d in / %d out", e.InputTokens, e.OutputTokens)))
		fmt.Fprintln(out, theme.Field("Latency", fmt.Sprintf("%dms", e.LatencyMs)))
		fmt.Fprintln(out, theme.Field("Success", e.Success))
		if e.ErrorMessage != "" {
			fmt.Fprintln(out, theme.Field("Error", theme.Incorrect.Render(e.ErrorMessage)))
		}

		sep := theme.Subtitle.Render(strings.Repeat("─", 60))
		for _, part := range []struct{ title, body string }{
			{"REQUEST", e.RequestBody},
			{"RESPONSE", e.ResponseBody},
		} {
			fmt.Fprintln(out)
			fmt.Fprintln(out, sep)
			fmt.Fprintln(out, theme.Title.Render(part.title))
			fmt.Fprintln(out, sep)
			if part.body == "" {
				fmt.Fprintln(out, theme.Hint.Render("(not captured)"))
				continue
			}
			fmt.Fprintln(out, part.body)
		}
		return nil
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show token usage and estimated cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		stats, err := s.EventRepo().LLMUsageByPurpose(ctx)
		if err != nil {
			return fmt.Errorf("query usage: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(stats) == 0 {
			fmt.Fprintln(out, theme.Hint.Render("No oracle usage recorded yet."))
			return nil
		}

		var totalCalls, totalIn, totalOut int
		rows := make([][]string, 0, len(stats)+1)
		for _, st := range stats {
			rows = append(rows, []string{
				st.Purpose,
				strconv.Itoa(st.Calls),
				strconv.Itoa(st.InputTokens),
				strconv.Itoa(st.OutputTokens),
				strconv.Itoa(st.InputTokens + st.OutputTokens),
				strconv.FormatInt(st.AvgLatencyMs, 10),
			})
			totalCalls += st.Calls
			totalIn += st.InputTokens
			totalOut += st.OutputTokens
		}
		rows = append(rows, []string{"TOTAL", strconv.Itoa(totalCalls), strconv.Itoa(totalIn), strconv.Itoa(totalOut), strconv.Itoa(totalIn + totalOut), ""})
		fmt.Fprintln(out, theme.Title.Render("Usage by purpose"))
		fmt.Fprintln(out, theme.Table([]string{"Purpose", "Calls", "Input", "Output", "Total", "Avg Ms"}, rows, false))

		modelUsage, err := s.EventRepo().LLMUsageByModel(ctx)
		if err != nil {
			return fmt.Errorf("query model usage: %w", err)
		}
		if len(modelUsage) == 0 {
			return nil
		}

		var (
			totalCost float64
			unknown   []string
		)
		rows = rows[:0]
		for _, mu := range modelUsage {
			cost := "?"
			if c := llm.LookupCost(mu.Model); c != nil {
				usd := c.Cost(mu.InputTokens, mu.OutputTokens)
				totalCost += usd
				cost = formatCost(usd)
			} else {
				unknown = append(unknown, mu.Model)
			}
			rows = append(rows, []string{truncate(mu.Model, 32), strconv.Itoa(mu.Calls), strconv.Itoa(mu.InputTokens), strconv.Itoa(mu.OutputTokens), cost})
		}
		label := "TOTAL"
		if len(unknown) > 0 {
			label = "TOTAL (partial)"
		}
		rows = append(rows, []string{label, "", "", "", formatCost(totalCost)})

		fmt.Fprintln(out)
		fmt.Fprintln(out, theme.Title.Render("Estimated cost (USD)"))
		fmt.Fprintln(out, theme.Table([]string{"Model", "Calls", "Input", "Output", "Cost"}, rows, false))
		if len(unknown) > 0 {
			fmt.Fprintln(out, theme.Hint.Render("Pricing unavailable for: "+strings.Join(unknown, ", ")))
		}
		return nil
	},
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of events to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Filter by purpose (e.g. question-gen, evaluation)")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmViewCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
