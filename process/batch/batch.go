// Package batch runs extraction over every image in a directory and can keep
// watching it for new files.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"guvohbot/pkg/scan"
	"guvohbot/process/report"
)

// Scanner is the part of scan.Scanner batch needs.
type Scanner interface {
	Scan(ctx context.Context, path string) (scan.Result, error)
}

// Options controls a batch run.
type Options struct {
	Dir     string
	Workers int    // 0 means NumCPU
	Watch   bool   // keep running and process new files until ctx is done
	Report  string // optional XLSX output path
	OnItem  func(Item)
}

// Item is the outcome for one file.
type Item struct {
	File   string
	Result scan.Result
	Err    error
}

// Run processes the images in opts.Dir and returns one Item per file, sorted by name.
func Run(ctx context.Context, sc Scanner, opts Options, log zerolog.Logger) ([]Item, error) {
	files, err := ListImageFiles(opts.Dir)
	if err != nil {
		return nil, err
	}
	workers := effectiveWorkers(opts.Workers)
	log.Info().Str("dir", opts.Dir).Int("files", len(files)).Int("workers", workers).Msg("scanning")

	var (
		mu    sync.Mutex
		items []Item
	)
	handle := func(name string) {
		it := processSingleFile(ctx, sc, opts.Dir, name)
		if it.Err != nil {
			log.Error().Err(it.Err).Str("file", name).Msg("scan failed")
		} else {
			log.Debug().Str("file", name).Str("reply", it.Result.Reply).Msg("scanned")
		}
		mu.Lock()
		items = append(items, it)
		mu.Unlock()
		if opts.OnItem != nil {
			opts.OnItem(it)
		}
	}

	fileCh := make(chan string, 1024)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				handle(name)
			}
		}()
	}

	var runErr error
feed:
	for _, f := range files {
		select {
		case fileCh <- f:
		case <-ctx.Done():
			break feed
		}
	}
	if opts.Watch && ctx.Err() == nil {
		runErr = watchDirectory(ctx, opts.Dir, files, fileCh, log)
	}
	close(fileCh)
	wg.Wait()

	sort.Slice(items, func(i, j int) bool { return items[i].File < items[j].File })
	if opts.Report != "" {
		if err := report.WriteXLSX(opts.Report, Rows(items)); err != nil {
			return items, err
		}
		log.Info().Str("report", opts.Report).Int("rows", len(items)).Msg("report written")
	}
	return items, runErr
}

// Rows converts items to report rows.
func Rows(items []Item) []report.Row {
	rows := make([]report.Row, 0, len(items))
	for _, it := range items {
		row := report.Row{File: it.File, Record: it.Result.Record}
		if it.Err != nil {
			row.Err = it.Err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

func processSingleFile(ctx context.Context, sc Scanner, dir, name string) Item {
	res, err := sc.Scan(ctx, filepath.Join(dir, name))
	return Item{File: name, Result: res, Err: err}
}

func effectiveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}

// ListImageFiles returns the supported image names in dir, sorted.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func isSupportedExt(name string) bool {
	// preprocessing temp files live elsewhere, but skip them if someone points us at /tmp
	if strings.HasPrefix(name, "ocr-pre-") || strings.Contains(name, ".ocr.") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

// watchDirectory feeds newly created images into out once their size has
// settled, until ctx is done.
func watchDirectory(ctx context.Context, dir string, known []string, out chan<- string, log zerolog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Info().Str("dir", dir).Msg("watching (debounced)")

	seen := make(map[string]struct{}, len(known))
	for _, k := range known {
		seen[k] = struct{}{}
	}
	pending := map[string]time.Time{}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !isSupportedExt(name) {
				continue
			}
			if _, done := seen[name]; done {
				continue
			}
			pending[name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) <= 300*time.Millisecond {
					continue
				}
				delete(pending, name)
				seen[name] = struct{}{}
				select {
				case out <- name:
				case <-ctx.Done():
					return nil
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")
		}
	}
}
