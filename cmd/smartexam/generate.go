package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/pavelanni/smartexam/internal/model"
	"github.com/pavelanni/smartexam/internal/store"
)

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an assessment from a text document",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "", "Document to generate questions from (- for stdin)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("title", "", "Assessment title (defaults to the input file name)")
	f.Bool("save", false, "Also store the assessment in the database")
	f.String("db", "smartexam.db", "SQLite database path, used with --save")
	f.String("owner", "admin", "Username that owns the saved assessment")
	addGenerationFlags(cmd)
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
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

	cfg := examConfigFromViper(v)
	asm, err := newAssembler(cmd.Context(), v, cfg)
	if err != nil {
		return err
	}

	rep, err := asm.FromText(cmd.Context(), string(text))
	if rep != nil {
		for _, w := range rep.Warnings {
			slog.Warn("pipeline warning", "chunk", w.Chunk, "kind", w.Kind, "message", w.Message)
		}
	}
	if err != nil {
		return fmt.Errorf("generate assessment: %w", err)
	}

	title := v.GetString("title")
	if title == "" && input != "-" {
		title = filepath.Base(input)
	}
	a := &model.Assessment{
		Title:       title,
		SourceChars: utf8.RuneCount(text),
		ChunkCount:  rep.Chunks,
		Summarized:  rep.Summarized,
		Questions:   rep.Questions,
	}

	if v.GetBool("save") {
		if err := saveAssessment(v.GetString("db"), v.GetString("owner"), a); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(model.NewAssessmentExport(*a, nil), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	return writeOutput(v.GetString("output"), append(data, '\n'))
}

// saveAssessment stores a under the named user. The upload does not count toward the
// user's monthly usage.
func saveAssessment(dbPath, owner string, a *model.Assessment) error {
	db, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	user, err := db.GetUserByUsername(owner)
	if err != nil {
		return fmt.Errorf("look up owner: %w", err)
	}
	if user == nil {
		return fmt.Errorf("owner %q not found", owner)
	}
	a.OwnerID = user.ID
	if err := db.CreateAssessment(a); err != nil {
		return fmt.Errorf("save assessment: %w", err)
	}
	slog.Info("saved assessment", "id", a.ID, "owner", owner, "questions", len(a.Questions))
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("wrote output", "path", path, "bytes", len(data))
	return nil
}
