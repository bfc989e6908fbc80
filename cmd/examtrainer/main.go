package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"examtrainer/internal/extract"
	"examtrainer/internal/handler"
	"examtrainer/internal/index"
	"examtrainer/internal/llm"
	"examtrainer/internal/store"
	"examtrainer/internal/trainer"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examtrainer",
		Short: "Exam practice trainer over past papers, powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, ingestCmd(), examsCmd(), removeCmd(), resetCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examtrainer --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "examtrainer.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "Chat model name")
	f.String("embed-model", "nomic-embed-text", "Embedding model name")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP trainer server",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	addLLMFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.Int("history-window", 10, "Recently served questions excluded from exact-mode selection")
	f.Int("gen-attempts", 3, "Generate/validate rounds before giving up on a request")
	f.Int("retrieve-k", 5, "Past questions retrieved as generation context")
	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest past-paper text files into an exam",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}
	addCommonFlags(cmd)
	addLLMFlags(cmd)
	f := cmd.Flags()
	f.StringP("exam", "e", "", "Exam id or name (created if missing)")
	_ = cmd.MarkFlagRequired("exam")
	return cmd
}

func examsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exams",
		Short: "List registered exams",
		RunE:  runExams,
	}
	addCommonFlags(cmd)
	return cmd
}

func removeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove an exam and everything extracted from it",
		RunE:  runRemove,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.StringP("exam", "e", "", "Exam id (required)")
	_ = cmd.MarkFlagRequired("exam")
	return cmd
}

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear an exam's serve history and/or wrong-answer ledger",
		RunE:  runReset,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.StringP("exam", "e", "", "Exam id (required)")
	f.Bool("history", true, "Clear the served-question history")
	f.Bool("wrong-answers", false, "Clear the wrong-answer ledger")
	_ = cmd.MarkFlagRequired("exam")
	return cmd
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

	v.SetEnvPrefix("EXAMTRAINER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examtrainer")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examtrainer")
	v.AddConfigPath("/etc/examtrainer")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// buildService opens the store and LLM client and wires the service.
// The returned close function releases the store.
func buildService(v *viper.Viper) (*trainer.Service, func(), error) {
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		v.GetString("embed-model"),
	)
	if err := llmClient.Ping(context.Background()); err != nil {
		db.Close()
		return nil, nil, err
	}
	slog.Info("LLM endpoint OK",
		"url", v.GetString("llm-url"),
		"model", v.GetString("llm-model"),
		"embed_model", v.GetString("embed-model"))

	ix := index.New(db, llmClient)
	svc := trainer.New(db, ix, extract.PlainText{}, llmClient, llmClient, llmClient, trainer.Config{
		HistoryWindow:  v.GetInt("history-window"),
		MaxGenAttempts: v.GetInt("gen-attempts"),
		RetrieveK:      v.GetInt("retrieve-k"),
	})
	return svc, func() { db.Close() }, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	svc, closeSvc, err := buildService(v)
	if err != nil {
		return err
	}
	defer closeSvc()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	handler.New(svc).Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"history_window", v.GetInt("history-window"),
		"gen_attempts", v.GetInt("gen-attempts"),
		"retrieve_k", v.GetInt("retrieve-k"),
	)
	return http.ListenAndServe(addr, r)
}

func runIngest(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	svc, closeSvc, err := buildService(v)
	if err != nil {
		return err
	}
	defer closeSvc()

	examArg := v.GetString("exam")
	examID := store.Slugify(examArg)
	if _, err := svc.GetExam(examID); err != nil {
		exam, err := svc.RegisterExam(examArg)
		if err != nil {
			return fmt.Errorf("register exam %q: %w", examArg, err)
		}
		examID = exam.ID
		slog.Info("registered exam", "id", exam.ID, "name", exam.Name)
	}

	var files []trainer.IngestFile
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, trainer.IngestFile{Name: filepath.Base(path), Data: data})
	}

	items := svc.IngestBatch(cmd.Context(), examID, files)
	failed := 0
	for _, item := range items {
		switch {
		case item.Err != nil:
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", item.Filename, item.Err)
		case item.Report.Duplicate:
			fmt.Printf("%s: duplicate of %s, skipped\n", item.Filename, item.Report.Document.Filename)
		default:
			fmt.Printf("%s: %d questions\n", item.Filename, len(item.Report.Questions))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(items))
	}
	return nil
}

func runExams(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	exams, err := db.ListExams()
	if err != nil {
		return err
	}
	for _, exam := range exams {
		count, err := db.QuestionCount(exam.ID)
		if err != nil {
			return err
		}
		wrong, err := db.WrongAnswerCount(exam.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%-24s %-32s %4d questions %4d missed\n", exam.ID, exam.Name, count, wrong)
	}
	return nil
}

func runRemove(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	examID := v.GetString("exam")
	if err := db.RemoveExam(examID); err != nil {
		return err
	}
	slog.Info("removed exam", "exam", examID)
	return nil
}

func runReset(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	examID := v.GetString("exam")
	if _, err := db.GetExam(examID); err != nil {
		return err
	}

	if v.GetBool("history") {
		if err := db.ClearHistory(examID); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		slog.Info("cleared serve history", "exam", examID)
	}
	if v.GetBool("wrong-answers") {
		if err := db.ClearWrongAnswers(examID); err != nil {
			return fmt.Errorf("clear wrong answers: %w", err)
		}
		slog.Info("cleared wrong-answer ledger", "exam", examID)
	}
	return nil
}
