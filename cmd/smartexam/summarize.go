package main

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

func summarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize a text document without generating questions",
		RunE:  runSummarize,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "", "Document to summarize (- for stdin)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addGenerationFlags(cmd)
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runSummarize(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	input := v.GetString("input")
	text, err := readInput(input)
	if err != nil {
		return err
	}
	if !utf8.Valid(text) {
		return fmt.Errorf("%s is not valid UTF-8 text", input)
	}

	asm, err := newAssembler(cmd.Context(), v, examConfigFromViper(v))
	if err != nil {
		return err
	}
	summary, err := asm.Summarize(cmd.Context(), string(text))
	if err != nil {
		return err
	}
	slog.Info("document summarized", "chars", utf8.RuneCount(text), "summary_chars", utf8.RuneCountInString(summary))

	return writeOutput(v.GetString("output"), []byte(summary+"\n"))
}
