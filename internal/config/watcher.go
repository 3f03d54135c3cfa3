package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads config.json under a watched directory, debouncing
// rapid successive writes the way editors and deploy tools tend to
// produce them.
type Watcher struct {
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
	done    chan struct{}

	configPath string
	current    *ServerConfig
	currentMu  *sync.RWMutex
}

// NewWatcher starts watching configPath/config.json, applying reloaded
// values onto current under currentMu.
func NewWatcher(configPath string, current *ServerConfig, currentMu *sync.RWMutex) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := w.Add(configPath); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", configPath, err)
	}

	cw := &Watcher{
		watcher:    w,
		done:       make(chan struct{}),
		configPath: configPath,
		current:    current,
		currentMu:  currentMu,
	}
	log.Printf("INFO: watching %s for config changes", configPath)
	go cw.loop()
	return cw, nil
}

// Stop closes the watcher goroutine and the underlying fsnotify handle.
func (cw *Watcher) Stop() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.watcher == nil {
		return
	}
	select {
	case <-cw.done:
	default:
		close(cw.done)
	}
	cw.watcher.Close()
	cw.watcher = nil
}

func (cw *Watcher) loop() {
	const debounceDuration = 500 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != "config.json" {
				continue
			}
			if event.Op&fsnotify.Write != fsnotify.Write && event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDuration, cw.reload)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("ERROR: config file watcher: %v", err)

		case <-cw.done:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cfg, err := LoadServerConfig(cw.configPath)
	if err != nil {
		log.Printf("ERROR: reloading config.json: %v", err)
		return
	}
	cw.currentMu.Lock()
	*cw.current = cfg
	cw.currentMu.Unlock()
	log.Printf("INFO: config.json reloaded")
}
