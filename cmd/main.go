package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"outreach-mailer/internal/config"
	"outreach-mailer/internal/generator"
	"outreach-mailer/internal/llmservice"
	"outreach-mailer/internal/parser"
)

var (
	configFilePath string
	logLevel       string
	logJSON        bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "outreach-mailer",
		Short:         "Write personalized sales emails from prospect and company information",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFilePath, "config", config.DefaultConfigPath, "Path to the config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON instead of console output")

	root.AddCommand(newServeCmd(), newGenerateCmd())
	return root
}

// loadConfig reads the config file and sets up the global logger.
func loadConfig() (*config.Config, error) {
	setupLogger("info", logJSON)
	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	setupLogger(level, logJSON || cfg.Log.JSON)
	log.Debug().Interface("config", cfg).Msg("Loaded config")
	return cfg, nil
}

func setupLogger(level string, jsonOutput bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

// newGenerator wires the completion client and chunker from cfg.
func newGenerator(cfg *config.Config) (*generator.Generator, error) {
	model, err := llmservice.NewModel(&cfg.LLM)
	if err != nil {
		return nil, err
	}
	client := llmservice.NewClient(model, &cfg.LLM)
	chunker := parser.NewRecursiveChunker(
		parser.WithChunkSize(cfg.Pipeline.ChunkSize),
		parser.WithChunkOverlap(cfg.Pipeline.ChunkOverlap),
	)
	return generator.New(chunker, client, generator.OptionsFromConfig(cfg.Pipeline)), nil
}
