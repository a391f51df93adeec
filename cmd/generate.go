package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/codequiz/internal/question"
	"github.com/abhisek/codequiz/internal/questiongen"
	"github.com/abhisek/codequiz/internal/store"
	"github.com/abhisek/codequiz/internal/ui/theme"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate questions into the bank",
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		language, _ := cmd.Flags().GetString("language")
		level, _ := cmd.Flags().GetString("level")
		n, _ := cmd.Flags().GetInt("count")

		t, err := question.ParseType(typ)
		if err != nil {
			return err
		}
		if n < 1 {
			return fmt.Errorf("count must be positive, got %d", n)
		}

		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		req := questiongen.Request{
			Type:     t,
			Language: store.NormalizeName(language),
			Level:    store.NormalizeName(level),
		}
		if err := store.CheckCatalog(cmd.Context(), a.Store.CatalogRepo(), req.Language, req.Level); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i := range n {
			res, err := a.Generator.Generate(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("question %d of %d: %w", i+1, n, err)
			}
			ref := question.RefOf(res.Question)
			req.Exclude = append(req.Exclude, ref)

			status := theme.Correct.Render(string(res.Source))
			if res.Source != questiongen.SourceGenerated {
				status = theme.Highlight.Render(string(res.Source))
			}
			fmt.Fprintf(out, "%s  %s  %s\n", theme.Subtitle.Render(ref.String()), status, res.Question.Base().Text)
			if res.Source == questiongen.SourceDuplicate {
				fmt.Fprintln(out, theme.Hint.Render(fmt.Sprintf("  similarity %.3f", res.Similarity)))
			}
			for _, w := range res.Warnings {
				fmt.Fprintln(out, theme.Hint.Render("  warning: "+w.Error()))
			}
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().String("type", "", "Question type: coding, theory or mcq")
	generateCmd.Flags().String("language", "", "Programming language")
	generateCmd.Flags().String("level", "", "Difficulty level")
	generateCmd.Flags().IntP("count", "n", 1, "Number of questions")
	_ = generateCmd.MarkFlagRequired("type")
	_ = generateCmd.MarkFlagRequired("language")
	_ = generateCmd.MarkFlagRequired("level")
}
