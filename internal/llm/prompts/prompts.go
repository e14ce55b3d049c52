package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/smartexam/internal/model"
)

//go:embed templates/*.txt
var embedded embed.FS

const (
	generateFile  = "templates/generate.txt"
	summarizeFile = "templates/summarize.txt"

	// MaxContentRunes caps the document text placed into a single request.
	MaxContentRunes = 60000
)

var documentTagRegex = regexp.MustCompile(`(?i)</?\s*(document|system-instructions)\b[^>]*>`)

var (
	loadOnce      sync.Once
	loadErr       error
	generateTmpl  *template.Template
	summarizeTmpl *template.Template
)

// GenerateData holds template data for the question generation prompt.
type GenerateData struct {
	QuestionCount int
	Difficulty    model.Difficulty
}

// IsValidDifficulty checks if a difficulty name is known to the templates.
func IsValidDifficulty(d string) bool {
	switch model.Difficulty(d) {
	case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
		return true
	}
	return false
}

// Load parses the prompt templates from fsys. Only the first call has any effect;
// later calls return the result of the first one. Passing nil uses the templates
// compiled into the binary.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		if fsys == nil {
			fsys = embedded
		}
		generateTmpl, loadErr = parse(fsys, generateFile)
		if loadErr != nil {
			return
		}
		summarizeTmpl, loadErr = parse(fsys, summarizeFile)
	})
	return loadErr
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
	}
	return tmpl, nil
}

// BuildGeneratePrompt renders the exam-author instruction block.
func BuildGeneratePrompt(data GenerateData) (string, error) {
	if err := Load(nil); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	if data.QuestionCount <= 0 {
		return "", fmt.Errorf("question count must be positive, got %d", data.QuestionCount)
	}
	if !IsValidDifficulty(string(data.Difficulty)) {
		return "", errors.New("invalid difficulty: " + string(data.Difficulty))
	}

	var buf bytes.Buffer
	if err := generateTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildSummarizePrompt renders the summarizer instruction block.
func BuildSummarizePrompt() (string, error) {
	if err := Load(nil); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	var buf bytes.Buffer
	if err := summarizeTmpl.Execute(&buf, nil); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WrapDocument sanitizes document text and encloses it in <document> tags so the
// instruction block can tell the model where the study material starts and ends.
func WrapDocument(text string) string {
	return "<document>\n" + sanitizeContent(text) + "\n</document>"
}

func sanitizeContent(text string) string {
	text = documentTagRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if text == "" {
		return "[No content provided]"
	}

	if utf8.RuneCountInString(text) > MaxContentRunes {
		runes := []rune(text)
		text = string(runes[:MaxContentRunes]) + "\n\n[Content truncated due to length]"
	}

	return text
}
