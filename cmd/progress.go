package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/codequiz/internal/ui/theme"
)

// passMark colours accuracy figures.
const passMark = 50

var progressCmd = &cobra.Command{
	Use:   "progress <user>",
	Short: "Show a user's progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Progress.Summary(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, theme.Title.Render("Progress for "+args[0]))
		fmt.Fprintln(out, theme.Field("Attempts", s.Progress.TotalAttempts))
		fmt.Fprintln(out, theme.Field("Correct", s.Progress.CorrectAnswers))
		fmt.Fprintln(out, theme.Field("Accuracy", theme.Percent(s.Progress.Accuracy, passMark)))
		fmt.Fprintln(out, theme.Field("Average time", fmt.Sprintf("%.2fs", s.Progress.AverageTime)))

		if len(s.Proficiency) > 0 {
			rows := make([][]string, 0, len(s.Proficiency))
			for _, p := range s.Proficiency {
				rows = append(rows, []string{p.Language, fmt.Sprintf("%d/%d", p.Correct, p.Total), theme.Percent(p.Percentage, passMark)})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, theme.Table([]string{"Language", "Correct", "Accuracy"}, rows, false))
		}

		if len(s.Quizzes) == 0 {
			fmt.Fprintln(out, theme.Hint.Render("No completed quizzes."))
			return nil
		}
		rows := make([][]string, 0, len(s.Quizzes))
		for _, q := range s.Quizzes {
			rows = append(rows, []string{
				strconv.FormatInt(q.ID, 10),
				q.Language,
				q.Level,
				fmt.Sprintf("%d/%d", q.Score, q.TotalQuestions),
				(time.Duration(q.Duration * float64(time.Second))).Round(time.Second).String(),
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, theme.Table([]string{"Quiz", "Language", "Level", "Score", "Duration"}, rows, false))
		return nil
	},
}
