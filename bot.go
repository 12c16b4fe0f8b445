package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"guvohbot/pkg/dedupe"
	"guvohbot/pkg/scan"
)

const (
	startText = "Salom! Menga guvohnoma rasmi yuboring. Men: Number, Rusumi, Guvohnoma, Telefon va Sana ni chiqarib beraman."
	helpText  = "Guvohnoma rasmini foto yoki rasm fayli sifatida yuboring.\nJavob tartibi: Number  Rusumi  Guvohnoma  Telefon  Tugallangan_sana"

	// Telegram bots cannot download files larger than this
	maxDownloadBytes = 20 * 1024 * 1024
)

// botAPI is the part of *tgbotapi.BotAPI the handlers use.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// replier produces the chat reply for a downloaded image.
type replier interface {
	Reply(ctx context.Context, path string) string
}

// Bot handles Telegram updates: commands and document photos.
type Bot struct {
	api     botAPI
	scanner replier
	seen    dedupe.Store
	client  *http.Client
	sem     *semaphore.Weighted
	chats   chatLocks
	wg      sync.WaitGroup
	log     zerolog.Logger
}

func newBot(api botAPI, sc replier, seen dedupe.Store, workers int, log zerolog.Logger) *Bot {
	if workers < 1 {
		workers = 1
	}
	return &Bot{
		api:     api,
		scanner: sc,
		seen:    seen,
		client:  &http.Client{Timeout: 60 * time.Second},
		sem:     semaphore.NewWeighted(int64(workers)),
		log:     log,
	}
}

// Poll receives updates by long polling until ctx is done, then waits for
// in-flight updates to finish.
func (b *Bot) Poll(ctx context.Context, api *tgbotapi.BotAPI, timeout int) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout
	updates := api.GetUpdatesChan(u)
	b.log.Info().Str("bot", api.Self.UserName).Msg("Starting bot (polling)...")
	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			b.Wait()
			return
		case up, ok := <-updates:
			if !ok {
				b.Wait()
				return
			}
			b.Dispatch(context.WithoutCancel(ctx), up)
		}
	}
}

// Dispatch handles u in its own goroutine.
func (b *Bot) Dispatch(ctx context.Context, u tgbotapi.Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.HandleUpdate(ctx, u)
	}()
}

// Wait blocks until every dispatched update is handled.
func (b *Bot) Wait() { b.wg.Wait() }

// HandleUpdate processes one update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	if b.seen != nil {
		first, err := b.seen.First(ctx, u.UpdateID)
		if err != nil {
			b.log.Warn().Err(err).Int("update_id", u.UpdateID).Msg("dedupe unavailable")
		} else if !first {
			b.log.Debug().Int("update_id", u.UpdateID).Msg("duplicate update skipped")
			return
		}
	}
	log := b.log.With().
		Str("req_id", uuid.NewString()).
		Int("update_id", u.UpdateID).
		Int64("chat", msg.Chat.ID).
		Logger()

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.reply(msg, startText, log)
		case "help":
			b.reply(msg, helpText, log)
		}
		return
	}
	fileID, ext := imageFile(msg)
	if fileID == "" {
		return
	}
	b.handlePhoto(ctx, msg, fileID, ext, log)
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message, fileID, ext string, log zerolog.Logger) {
	unlock := b.chats.lock(msg.Chat.ID)
	defer unlock()
	if err := b.sem.Acquire(ctx, 1); err != nil {
		log.Warn().Err(err).Msg("dropped photo")
		return
	}
	defer b.sem.Release(1)

	path, err := b.download(ctx, fileID, ext)
	defer scan.Remove(log, path)
	var text string
	if err != nil {
		log.Error().Err(err).Msg("photo handling failed")
		text = scan.ErrorPrefix + err.Error()
	} else {
		text = b.scanner.Reply(ctx, path)
	}
	b.reply(msg, text, log)
}

// imageFile picks the largest photo size, or an image sent as a file.
func imageFile(msg *tgbotapi.Message) (fileID, ext string) {
	if n := len(msg.Photo); n > 0 {
		return msg.Photo[n-1].FileID, ".jpg"
	}
	if d := msg.Document; d != nil && strings.HasPrefix(d.MimeType, "image/") {
		ext = strings.ToLower(filepath.Ext(d.FileName))
		if ext == "" {
			ext = ".img"
		}
		return d.FileID, ext
	}
	return "", ""
}

// download saves the Telegram file to a temp path. On error the returned path
// is empty and nothing is left on disk.
func (b *Bot) download(ctx context.Context, fileID, ext string) (string, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: status %d", resp.StatusCode)
	}
	tmp, err := os.CreateTemp("", "guvoh-*"+ext)
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxDownloadBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxDownloadBytes {
		err = fmt.Errorf("file too large (max %d bytes)", maxDownloadBytes)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("download: %w", err)
	}
	return tmp.Name(), nil
}

func (b *Bot) reply(msg *tgbotapi.Message, text string, log zerolog.Logger) {
	m := tgbotapi.NewMessage(msg.Chat.ID, text)
	m.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(m); err != nil {
		log.Error().Err(err).Msg("send reply failed")
	}
}

// chatLocks serializes work per chat so a conversation has one image in flight.
type chatLocks struct {
	mu sync.Mutex
	m  map[int64]*chatLock
}

type chatLock struct {
	sync.Mutex
	refs int
}

func (c *chatLocks) lock(id int64) func() {
	c.mu.Lock()
	if c.m == nil {
		c.m = make(map[int64]*chatLock)
	}
	l := c.m[id]
	if l == nil {
		l = &chatLock{}
		c.m[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.m, id)
		}
		c.mu.Unlock()
	}
}
