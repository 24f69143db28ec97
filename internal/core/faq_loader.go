package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// faqFile is the on-disk shape of an offline FAQ:
//
//	fallback = "..."
//	[[rule]]
//	keywords = ["طقس", "مطر"]
//	answer = "..."
type faqFile struct {
	Fallback string    `toml:"fallback"`
	Rules    []FAQRule `toml:"rule"`
}

// LoadFAQFile reads FAQ rules from a TOML file. Rules keep file order.
func LoadFAQFile(path string) ([]FAQRule, string, error) {
	var f faqFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, "", fmt.Errorf("failed to decode FAQ file %s: %w", path, err)
	}
	if len(f.Rules) == 0 {
		return nil, "", errors.New("FAQ file has no [[rule]] entries")
	}
	for i, r := range f.Rules {
		if strings.TrimSpace(r.Answer) == "" {
			return nil, "", fmt.Errorf("FAQ rule %d has an empty answer", i+1)
		}
		if len(r.Keywords) == 0 {
			return nil, "", fmt.Errorf("FAQ rule %d has no keywords", i+1)
		}
	}
	return f.Rules, f.Fallback, nil
}

// WatchFAQFile reloads the responder whenever path changes, until ctx is done.
// A file that fails to parse leaves the previous rules in place.
func WatchFAQFile(ctx context.Context, path string, responder *OfflineResponder, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create FAQ watcher: %w", err)
	}
	// Watch the directory so editors that replace the file on save are still seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				rules, fallback, err := LoadFAQFile(path)
				if err != nil {
					logger.Warn("Ignoring invalid FAQ file update", zap.String("path", path), zap.Error(err))
					continue
				}
				responder.SetRules(rules, fallback)
				logger.Info("Reloaded offline FAQ", zap.String("path", path), zap.Int("rules", len(rules)))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("FAQ watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
