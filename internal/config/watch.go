package config

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"luxurystay/internal/availability"
)

// Live holds the most recently loaded config for readers that must follow
// reloads, such as calendar rendering.
type Live struct {
	cur atomic.Pointer[Config]
}

// NewLive wraps an initial config.
func NewLive(cfg *Config) *Live {
	l := &Live{}
	l.cur.Store(cfg)
	return l
}

// Current returns the latest config.
func (l *Live) Current() *Config {
	return l.cur.Load()
}

// CalendarPolicy returns the latest calendar policy.
func (l *Live) CalendarPolicy() availability.CalendarPolicy {
	return l.Current().CalendarPolicy()
}

// Watch polls path and stores every config that loads cleanly into l,
// calling onReload after each swap. Invalid edits are skipped and the
// previous config stays active.
func (l *Live) Watch(ctx context.Context, path string, interval time.Duration, onReload func(*Config)) error {
	if path == "" {
		path = DefaultPath
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil || !info.ModTime().After(lastMod) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					continue
				}
				lastMod = info.ModTime()
				l.cur.Store(cfg)
				if onReload != nil {
					onReload(cfg)
				}
			}
		}
	}()

	return nil
}
