// Command medrag-chat is the terminal client of the Medical RAG assistant.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/medrag-chat/cmd/tui/ui"
	"github.com/zhouzirui/medrag-chat/internal/app"
	"github.com/zhouzirui/medrag-chat/internal/config"
	"github.com/zhouzirui/medrag-chat/internal/logging"
)

type flags struct {
	baseURL string
	store   string
	dbPath  string
	mode    string
	logFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "medrag-chat",
		Short: "Medical RAG 医疗健康咨询助手（终端版）",
		Long: `medrag-chat asks the Medical RAG backend health questions and keeps the
conversation history locally.

Configuration comes from the environment (and a .env file); flags override it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := applyFlags(cmd, &f, cfg); err != nil {
				return err
			}
			return run(cmd, cfg, f.logFile)
		},
	}

	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "backend root URL (overrides ASK_BASE_URL)")
	cmd.Flags().StringVar(&f.store, "store", "", "session store: sqlite or memory (overrides STORE_DRIVER)")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "SQLite database path (overrides STORE_PATH)")
	cmd.Flags().StringVar(&f.mode, "mode", "", "answer source: http or llm (overrides ASK_MODE)")
	cmd.Flags().StringVar(&f.logFile, "log-file", filepath.Join(os.TempDir(), "medrag-chat.log"), "log file path")

	return cmd
}

// applyFlags overrides configuration with explicitly set flags.
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) error {
	if cmd.Flags().Changed("base-url") {
		cfg.Ask.BaseURL = f.baseURL
	}
	if cmd.Flags().Changed("db") {
		cfg.Store.Path = f.dbPath
	}
	if cmd.Flags().Changed("store") {
		switch f.store {
		case config.StoreDriverSQLite, config.StoreDriverMemory:
			cfg.Store.Driver = f.store
		default:
			return fmt.Errorf("invalid --store value %q: expected sqlite or memory", f.store)
		}
	}
	if cmd.Flags().Changed("mode") {
		switch f.mode {
		case config.AskModeHTTP:
		case config.AskModeLLM:
			if !cfg.AI.Enabled() {
				return fmt.Errorf("--mode=llm 需要 Ark 凭证：至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
			}
		default:
			return fmt.Errorf("invalid --mode value %q: expected http or llm", f.mode)
		}
		cfg.Ask.Mode = f.mode
	}
	return nil
}

func run(cmd *cobra.Command, cfg *config.Config, logFile string) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, logFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	notifier := ui.NewNotifier()
	application, err := app.New(cmd.Context(), cfg, logger, notifier.Listen)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("failed to close application", zap.Error(err))
		}
	}()

	program := tea.NewProgram(
		ui.New(application.Controller, notifier),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(cmd.Context()),
	)
	_, err = program.Run()
	return err
}
