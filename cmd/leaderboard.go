package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/abhisek/codequiz/internal/progress"
	"github.com/abhisek/codequiz/internal/store"
	"github.com/abhisek/codequiz/internal/ui/theme"
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the quiz and assignment leaderboards",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _ := cmd.Flags().GetString("period")
		limit, _ := cmd.Flags().GetInt("limit")

		period, err := progress.ParsePeriod(p)
		if err != nil {
			return err
		}

		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		lb, err := a.Progress.Leaderboard(cmd.Context(), period, limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, theme.Title.Render("Quizzes")+" "+theme.Subtitle.Render("("+string(lb.Period)+")"))
		fmt.Fprintln(out, leaderboardTable(lb.Quizzes))
		fmt.Fprintln(out, theme.Title.Render("Assignments")+" "+theme.Subtitle.Render("("+string(lb.Period)+")"))
		fmt.Fprintln(out, leaderboardTable(lb.Assignments))
		return nil
	},
}

func leaderboardTable(entries []store.LeaderboardEntry) string {
	if len(entries) == 0 {
		return theme.Hint.Render("No completed entries yet.")
	}
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			e.UserID,
			fmt.Sprintf("%.2f", e.AverageScore),
			strconv.Itoa(e.Count),
		})
	}
	return theme.Table([]string{"#", "User", "Avg Score", "Completed"}, rows, true)
}

func init() {
	leaderboardCmd.Flags().String("period", "all", "Time window: all, month or week")
	leaderboardCmd.Flags().IntP("limit", "n", progress.DefaultLimit, "Number of users per board")
}
