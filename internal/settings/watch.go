package settings

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	watchDebounce      = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watch observes the document's file for external edits and calls
// onChange (from the watcher goroutine) after each debounced change
// whose content differs from what this process last read or wrote.
// The directory is watched rather than the file because editors
// replace files via rename. Blocks until ctx is done.
func (d *Document) Watch(ctx context.Context, onChange func()) error {
	if d.path == "" {
		<-ctx.Done()
		return nil
	}
	dir := filepath.Dir(d.path)
	base := filepath.Base(d.path)

	// The watcher can stop delivering events after certain editor or
	// filesystem behaviors; recreate it with jittered backoff.
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			raw, err := os.ReadFile(d.path)
			if err != nil {
				d.log.Warn().Err(err).Str("path", d.path).Msg("settings changed but unreadable")
				return
			}
			if hashBytes(raw) == d.contentHash.Load() {
				d.log.Debug().Str("path", d.path).Msg("settings event without content change")
				return
			}
			onChange()
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return err
		}

		alive := true
		for alive {
			select {
			case <-ctx.Done():
				watcher.Close()
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					alive = false
					break
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					alive = false
					break
				}
				d.log.Warn().Err(err).Str("dir", dir).Msg("settings watcher error")
			}
		}
		watcher.Close()

		// Jittered sleep before recreating the watcher.
		sleep := backoff + time.Duration(rng.Int63n(int64(backoff)/2+1))
		d.log.Debug().Dur("backoff", sleep).Msg("restarting settings watcher")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
		backoff *= 2
		if backoff > restartBackoffMax {
			backoff = restartBackoffMax
		}
	}
}
