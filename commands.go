package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"guvohbot/pkg/config"
	"guvohbot/pkg/scan"
	"guvohbot/process/batch"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Long: `Run the Telegram bot. In polling mode updates are fetched with long polling;
in webhook mode the webhook is registered and the HTTP server is started.`,
	Args: cobra.NoArgs,
	RunE: runBot,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and the Telegram webhook when a bot token is set)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var (
	extractJSON bool

	batchWorkers int
	batchWatch   bool
	batchReport  string

	tokenTTL time.Duration
)

var extractCmd = &cobra.Command{
	Use:   "extract <image|->",
	Short: "Extract fields from one image, or from OCR text on stdin",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Extract fields from every image in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue an API token signed with JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "print the full result as JSON")

	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "concurrent OCR workers (0 = NumCPU)")
	batchCmd.Flags().BoolVar(&batchWatch, "watch", false, "keep watching the directory for new images")
	batchCmd.Flags().StringVarP(&batchReport, "report", "o", "", "write an XLSX report to this path")

	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default from config)")

	rootCmd.AddCommand(botCmd, serveCmd, extractCmd, batchCmd, tokenCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireToken(); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	sc, err := newScanner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Engine.Close()

	bot, api, err := startBot(ctx, cfg, sc)
	if err != nil {
		return err
	}
	defer bot.seen.Close()

	if cfg.Telegram.Mode == "webhook" {
		return serveHTTP(ctx, cfg, sc, bot)
	}
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		logger.Warn().Err(err).Msg("delete webhook failed")
	}
	bot.Poll(ctx, api, cfg.Telegram.PollTimeout)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	sc, err := newScanner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Engine.Close()

	var bot *Bot
	if cfg.RequireToken() == nil {
		bot, _, err = startBot(ctx, cfg, sc)
		if err != nil {
			return err
		}
		defer bot.seen.Close()
	} else {
		logger.Info().Msg("BOT_TOKEN not set, webhook route disabled")
	}
	return serveHTTP(ctx, cfg, sc, bot)
}

// startBot connects to Telegram and, in webhook mode, registers the webhook.
func startBot(ctx context.Context, cfg *config.Config, sc *scan.Scanner) (*Bot, *tgbotapi.BotAPI, error) {
	seen, err := newDedupe(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		_ = seen.Close()
		return nil, nil, fmt.Errorf("telegram: %w", err)
	}
	api.Debug = cfg.Telegram.Debug
	log := logger.With().Str("component", "bot").Logger()
	if cfg.Telegram.Mode == "webhook" {
		link := strings.TrimRight(cfg.Telegram.WebhookURL, "/") + webhookPath(cfg.Telegram.WebhookSecret)
		wh, err := tgbotapi.NewWebhook(link)
		if err != nil {
			_ = seen.Close()
			return nil, nil, fmt.Errorf("webhook url: %w", err)
		}
		if _, err := api.Request(wh); err != nil {
			_ = seen.Close()
			return nil, nil, fmt.Errorf("set webhook: %w", err)
		}
		log.Info().Str("bot", api.Self.UserName).Str("url", cfg.Telegram.WebhookURL).Msg("webhook registered")
	}
	return newBot(api, sc, seen, cfg.Telegram.Workers, log), api, nil
}

func webhookPath(secret string) string {
	if secret == "" {
		secret = "hook"
	}
	return "/telegram/webhook/" + secret
}

// serveHTTP runs the API until ctx is done, then shuts down gracefully.
func serveHTTP(ctx context.Context, cfg *config.Config, sc *scan.Scanner, bot *Bot) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	s := &server{
		scanner:       sc,
		bot:           bot,
		webhookSecret: cfg.Telegram.WebhookSecret,
		jwtSecret:     []byte(cfg.Auth.JWTSecret),
		maxUpload:     cfg.Server.MaxUploadBytes,
		log:           logger.With().Str("component", "http").Logger(),
	}
	setupRoutes(r, s)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Server.Addr).Bool("auth", len(s.jwtSecret) > 0).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
		defer cancel()
		err := srv.Shutdown(sctx)
		if bot != nil {
			bot.Wait()
		}
		logger.Info().Msg("http server stopped")
		return err
	})
	return g.Wait()
}

func runExtract(cmd *cobra.Command, args []string) error {
	var res scan.Result
	if args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		res = scan.FromText(string(data))
	} else {
		ctx, stop := signalContext()
		defer stop()
		sc, err := newScanner(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer sc.Engine.Close()
		res, err = sc.Scan(ctx, args[0])
		if err != nil {
			return err
		}
	}
	return printResult(cmd.OutOrStdout(), res, extractJSON)
}

func printResult(w io.Writer, res scan.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(res)
	}
	_, err := fmt.Fprintln(w, res.Reply)
	return err
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	sc, err := newScanner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Engine.Close()

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	items, err := batch.Run(ctx, sc, batch.Options{
		Dir:     args[0],
		Workers: batchWorkers,
		Watch:   batchWatch,
		Report:  batchReport,
		OnItem: func(it batch.Item) {
			line := it.Result.Reply
			if it.Err != nil {
				line = scan.ErrorPrefix + it.Err.Error()
			}
			mu.Lock()
			fmt.Fprintf(out, "%s\t%s\n", it.File, line)
			mu.Unlock()
		},
	}, logger)
	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}
	logger.Info().Int("files", len(items)).Int("failed", failed).Msg("batch done")
	return err
}

func runToken(cmd *cobra.Command, args []string) error {
	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}
	tok, err := issueToken([]byte(cfg.Auth.JWTSecret), args[0], ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
	return err
}
