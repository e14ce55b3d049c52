package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	appI18n "github.com/pavelanni/smartexam/internal/i18n"
	"github.com/pavelanni/smartexam/internal/model"
	"github.com/pavelanni/smartexam/internal/quiz"
)

func takeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take an assessment interactively in the terminal",
		RunE:  runTake,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "", "Assessment JSON file written by generate or export")
	f.String("mode", string(model.ModeSequential), "Quiz mode (reveal_all, sequential)")
	f.StringP("lang", "l", "en", "Language of prompts and feedback (en, de)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runTake(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	exp, err := loadExport(v.GetString("input"))
	if err != nil {
		return err
	}
	qs, err := quiz.New(exp.QuestionSet(), model.NavigationMode(v.GetString("mode")))
	if err != nil {
		return fmt.Errorf("start quiz: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang))

	if exp.Title != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", exp.Title)
	}
	_, err = takeQuiz(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), qs)
	if errors.Is(err, io.EOF) {
		// Ctrl-D ends the quiz early.
		fmt.Fprintln(os.Stderr)
		return nil
	}
	return err
}

// takeQuiz asks every question in order, reading 1-based choice numbers from in. In
// sequential mode the cursor is advanced after each answer. It returns the final score,
// or io.EOF if in runs out first.
func takeQuiz(ctx context.Context, in io.Reader, out io.Writer, qs *quiz.Session) (quiz.Score, error) {
	sc := bufio.NewScanner(in)
	st := qs.State()
	total := len(st.Questions)

	for i, q := range st.Questions {
		fmt.Fprintf(out, "%s\n%s\n", appI18n.Td(ctx, "QuestionN", map[string]any{"N": i + 1, "Total": total}), q.Prompt)
		for j, c := range q.Choices {
			fmt.Fprintf(out, "  %d) %s\n", j+1, c)
		}

		choice, err := readChoice(ctx, sc, out, len(q.Choices))
		if err != nil {
			return qs.Score(), err
		}
		res, err := qs.Submit(i, q.Choices[choice])
		if err != nil {
			return qs.Score(), fmt.Errorf("submit answer %d: %w", i+1, err)
		}

		if res.Record.Outcome == model.OutcomeCorrect {
			fmt.Fprintln(out, appI18n.T(ctx, "Correct"))
		} else {
			fmt.Fprintln(out, appI18n.T(ctx, "Incorrect"),
				appI18n.Td(ctx, "CorrectAnswerWas", map[string]any{"Answer": res.Record.CorrectChoiceShown}))
		}
		explanation := q.Explanation
		if explanation == "" || explanation == model.DefaultExplanation {
			explanation = appI18n.T(ctx, "NoExplanation")
		}
		fmt.Fprintf(out, "%s\n\n", appI18n.Td(ctx, "ExplanationLine", map[string]any{"Explanation": explanation}))

		if qs.Mode() == model.ModeSequential && i+1 < total {
			if err := qs.Advance(); err != nil {
				return qs.Score(), fmt.Errorf("advance: %w", err)
			}
		}
	}

	score := qs.Score()
	fmt.Fprintln(out, appI18n.T(ctx, "QuizComplete"))
	fmt.Fprintln(out, appI18n.Td(ctx, "ScoreSummary", map[string]any{"Correct": score.Correct, "Total": score.Total}))
	return score, nil
}

// readChoice prompts until a number in 1..count is entered and returns it 0-based.
func readChoice(ctx context.Context, sc *bufio.Scanner, out io.Writer, count int) (int, error) {
	for {
		fmt.Fprint(out, appI18n.Td(ctx, "ChooseAnswer", map[string]any{"Max": count}))
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return 0, fmt.Errorf("read answer: %w", err)
			}
			return 0, io.EOF
		}
		n, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
		if err == nil && n >= 1 && n <= count {
			return n - 1, nil
		}
		fmt.Fprintln(out, appI18n.Td(ctx, "InvalidChoice", map[string]any{"Max": count}))
	}
}
