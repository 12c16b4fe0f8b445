package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"guvohbot/pkg/config"
	"guvohbot/pkg/dedupe"
	"guvohbot/pkg/logging"
	"guvohbot/pkg/ocr"
	"guvohbot/pkg/scan"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "guvohbot",
	Short: "Vehicle registration document reader",
	Long: `guvohbot reads photos of vehicle registration certificates and extracts the
plate number, brand, certificate number, phone and completion date. It runs as a
Telegram bot, an HTTP API, or over a directory of images.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if logFormat != "" {
			cfg.Log.Format = logFormat
		}
		logger = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console or json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newScanner builds the OCR engine and the scan pipeline from cfg.
func newScanner(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*scan.Scanner, error) {
	eng, err := ocr.New(ctx, ocr.Options{
		Engine:            cfg.OCR.Engine,
		TessdataPrefix:    cfg.OCR.TessdataPrefix,
		PageSegMode:       cfg.OCR.PageSegMode,
		VisionCredentials: cfg.OCR.VisionCredentials,
	})
	if err != nil {
		return nil, fmt.Errorf("ocr engine: %w", err)
	}
	return &scan.Scanner{
		Engine:   eng,
		Language: cfg.OCR.Language,
		Preprocess: ocr.PreprocessOptions{
			Mode:      cfg.OCR.Preprocess,
			Threshold: uint8(cfg.OCR.Threshold),
			MinHeight: cfg.OCR.MinHeight,
		},
		Timeout: cfg.OCR.Timeout,
		Logger:  log.With().Str("component", "scan").Logger(),
	}, nil
}

// newDedupe returns the configured store for seen update ids.
func newDedupe(ctx context.Context, cfg *config.Config) (dedupe.Store, error) {
	if cfg.Dedupe.Driver == "redis" {
		return dedupe.NewRedis(ctx, dedupe.RedisConfig{
			Addr:     cfg.Dedupe.Redis.Addr,
			Username: cfg.Dedupe.Redis.Username,
			Password: cfg.Dedupe.Redis.Password,
			DB:       cfg.Dedupe.Redis.DB,
			TLS:      cfg.Dedupe.Redis.TLS,
		}, cfg.Dedupe.TTL)
	}
	return dedupe.NewMemory(cfg.Dedupe.TTL), nil
}
