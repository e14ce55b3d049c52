package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	appI18n "github.com/pavelanni/smartexam/internal/i18n"
	"github.com/pavelanni/smartexam/internal/model"
	"github.com/pavelanni/smartexam/internal/parse"
	"github.com/pavelanni/smartexam/internal/pdf"
	"github.com/pavelanni/smartexam/internal/store"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an assessment as JSON or PDF",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "smartexam.db", "SQLite database path")
	f.String("assessment", "", "ID of a stored assessment to export")
	f.StringP("input", "i", "", "Assessment JSON file to export instead of a stored one")
	f.StringP("format", "f", "json", "Output format (json, pdf)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.StringP("lang", "l", "en", "Language of PDF labels (en, de)")
	addLogFlags(cmd)

	cmd.MarkFlagsMutuallyExclusive("assessment", "input")
	cmd.MarkFlagsOneRequired("assessment", "input")

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	var (
		exp *model.AssessmentExport
		err error
	)
	if path := v.GetString("input"); path != "" {
		exp, err = loadExport(path)
	} else {
		exp, err = exportFromStore(v.GetString("db"), v.GetString("assessment"))
	}
	if err != nil {
		return err
	}

	var data []byte
	switch format := v.GetString("format"); format {
	case "json":
		data, err = json.MarshalIndent(exp, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		data = append(data, '\n')
	case "pdf":
		lang := v.GetString("lang")
		if err := appI18n.Init(lang); err != nil {
			return fmt.Errorf("init i18n: %w", err)
		}
		ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang))
		var buf bytes.Buffer
		err := pdf.Write(&buf, exp.QuestionSet(), pdf.Options{
			Header:           appI18n.T(ctx, "ExportTitle"),
			CorrectLabel:     appI18n.T(ctx, "CorrectAnswerLabel"),
			ExplanationLabel: appI18n.T(ctx, "ExplanationLabel"),
		})
		if err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		data = buf.Bytes()
	default:
		return fmt.Errorf("unknown format %q (want json or pdf)", format)
	}

	return writeOutput(v.GetString("output"), data)
}

func exportFromStore(dbPath, id string) (*model.AssessmentExport, error) {
	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	exp, err := db.ExportAssessment(id)
	if err != nil {
		return nil, fmt.Errorf("export assessment: %w", err)
	}
	if exp == nil {
		return nil, fmt.Errorf("assessment %q not found", id)
	}
	return exp, nil
}

// loadExport reads an assessment written by generate or export.
func loadExport(path string) (*model.AssessmentExport, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	var exp model.AssessmentExport
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(exp.Questions) == 0 {
		return nil, errors.New("assessment has no questions")
	}
	for i, q := range exp.QuestionSet() {
		if err := parse.ValidateQuestion(q, parse.DefaultOptions()); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	exp.NumQuestions = len(exp.Questions)
	return &exp, nil
}
