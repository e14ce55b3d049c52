package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/smartexam/internal/assemble"
	"github.com/pavelanni/smartexam/internal/chunk"
	"github.com/pavelanni/smartexam/internal/handler"
	appI18n "github.com/pavelanni/smartexam/internal/i18n"
	"github.com/pavelanni/smartexam/internal/llm"
	"github.com/pavelanni/smartexam/internal/model"
	"github.com/pavelanni/smartexam/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "smartexam",
		Short: "Multiple-choice assessments generated from your documents",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), summarizeCmd(), exportCmd(), takeCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `smartexam --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "smartexam.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Default language for messages (en, de)")
	f.String("mode", string(model.ModeRevealAll), "Default quiz mode (reveal_all, sequential)")
	f.Int("free-tier-limit", 10, "Uploads per month for free-tier users (0 = unlimited)")
	f.Int64("max-upload-bytes", 5<<20, "Maximum accepted document size in bytes")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /exam)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set SMARTEXAM_ADMIN_PASSWORD)")
	f.Duration("session-cleanup-interval", time.Hour, "How often expired login sessions are purged (0 disables)")
	addGenerationFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

// addGenerationFlags registers the LLM endpoint and pipeline tuning flags shared by
// serve and generate.
func addGenerationFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.IntP("questions-per-chunk", "n", 5, "Questions requested per chunk")
	f.StringP("difficulty", "d", string(model.DifficultyMedium), "Question difficulty (easy, medium, hard)")
	f.Int("max-chunk-size", chunk.DefaultMaxSize, "Maximum characters per generation call")
	f.Int("summarize-threshold", 3000, "Summarize documents longer than this many characters (0 = never)")
	f.Duration("generation-timeout", 2*time.Minute, "Timeout per generation call")
	f.Int("concurrency", 1, "Parallel generation calls")
	f.Bool("require-answer-in-choices", true, "Drop questions whose correct answer is not one of the choices")
	f.String("dedup", "off", "Duplicate question policy (off, exact)")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SMARTEXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("smartexam")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/smartexam")
	v.AddConfigPath("/etc/smartexam")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// examConfigFromViper collects runtime parameters. Flags a command does not register
// read as their zero value.
func examConfigFromViper(v *viper.Viper) model.ExamConfig {
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return model.ExamConfig{
		QuestionsPerChunk:      v.GetInt("questions-per-chunk"),
		Difficulty:             model.Difficulty(strings.ToLower(v.GetString("difficulty"))),
		MaxChunkSize:           v.GetInt("max-chunk-size"),
		SummarizeThreshold:     v.GetInt("summarize-threshold"),
		GenerationTimeout:      v.GetDuration("generation-timeout"),
		Concurrency:            v.GetInt("concurrency"),
		RequireAnswerInChoices: v.GetBool("require-answer-in-choices"),
		Dedup:                  strings.ToLower(v.GetString("dedup")),
		Mode:                   model.NavigationMode(v.GetString("mode")),
		FreeTierLimit:          v.GetInt("free-tier-limit"),
		MaxUploadBytes:         v.GetInt64("max-upload-bytes"),
		BasePath:               basePath,
		SecureCookies:          v.GetBool("secure-cookies"),
	}
}

// newAssembler connects to the LLM endpoint and builds the generation pipeline.
func newAssembler(ctx context.Context, v *viper.Viper, cfg model.ExamConfig) (*assemble.Assembler, error) {
	client, err := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		cfg.QuestionsPerChunk,
		cfg.Difficulty,
	)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	opts, err := assemble.OptionsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline options: %w", err)
	}
	return assemble.New(client, client, opts), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	examCfg := examConfigFromViper(v)
	if !examCfg.Mode.IsValid() {
		return fmt.Errorf("invalid mode %q", examCfg.Mode)
	}
	asm, err := newAssembler(ctx, v, examCfg)
	if err != nil {
		return err
	}

	h, err := handler.New(db, asm, examCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	basePath := examCfg.BasePath
	if basePath != "" {
		r.Route(basePath, h.Routes)
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		h.Routes(r)
	}

	if interval := v.GetDuration("session-cleanup-interval"); interval > 0 {
		go cleanupSessions(ctx, db, interval)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"mode", examCfg.Mode,
		"questions_per_chunk", examCfg.QuestionsPerChunk,
		"difficulty", examCfg.Difficulty,
		"max_chunk_size", examCfg.MaxChunkSize,
		"concurrency", examCfg.Concurrency,
		"free_tier_limit", examCfg.FreeTierLimit,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

// cleanupSessions purges expired login sessions until ctx is done.
func cleanupSessions(ctx context.Context, db *store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.CleanupExpiredSessions()
			if err != nil {
				slog.Warn("failed to clean up expired sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("removed expired sessions", "count", n)
			}
		}
	}
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or SMARTEXAM_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Tier:         model.TierPro,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
