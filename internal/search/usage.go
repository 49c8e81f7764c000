// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/sciquery/internal/util"
)

// Search provider quotas. Tavily and SERP refresh monthly; the Serper quota
// is for the lifetime of the API key.
const (
	TavilyMonthlyLimit  = 1000
	SerpMonthlyLimit    = 100
	SerperLifetimeLimit = 2400
)

// monthlyUsage tracks a counter that resets when the month changes.
type monthlyUsage struct {
	Month string `json:"month"`
	Usage int    `json:"usage"`
}

// usageData is the persisted counter file layout.
type usageData struct {
	Tavily monthlyUsage `json:"tavily"`
	Serp   monthlyUsage `json:"serp"`
	Serper struct {
		LifetimeUsage int `json:"lifetime_usage"`
	} `json:"serper"`
}

// UsageStore persists search API usage counters so quota accounting
// survives restarts. The file is also watched: edits from outside (manual
// resets, a second instance) are picked up without restarting.
type UsageStore struct {
	mu      sync.Mutex
	path    string
	data    usageData
	watcher *fsnotify.Watcher

	// now is replaceable so month rollover is testable.
	now func() time.Time
}

// NewUsageStore loads (or initializes) the counter file at path.
func NewUsageStore(path string) *UsageStore {
	s := &UsageStore{
		path: path,
		now:  time.Now,
	}
	s.data = s.load()
	return s
}

// Watch starts picking up external edits to the counter file. Call Close
// when done.
func (s *UsageStore) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.path); err != nil {
		// The file may not exist until the first increment; watch its
		// directory appearing is not worth the complexity, just skip.
		watcher.Close()
		return err
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					s.mu.Lock()
					s.data = s.load()
					s.mu.Unlock()
					log.Printf("USAGE_RELOADED | path=%s", s.path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("USAGE_WATCH_ERROR | err=%v", err)
			}
		}
	}()
	return nil
}

// Close stops the file watcher.
func (s *UsageStore) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

// CanUse reports whether the provider still has quota.
func (s *UsageStore) CanUse(provider string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch provider {
	case "tavily":
		s.rolloverLocked(&s.data.Tavily)
		return s.data.Tavily.Usage < TavilyMonthlyLimit
	case "serp":
		s.rolloverLocked(&s.data.Serp)
		return s.data.Serp.Usage < SerpMonthlyLimit
	case "serper":
		return s.data.Serper.LifetimeUsage < SerperLifetimeLimit
	}
	return false
}

// Increment records one successful search against the provider's quota and
// persists the counters.
func (s *UsageStore) Increment(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch provider {
	case "tavily":
		s.rolloverLocked(&s.data.Tavily)
		s.data.Tavily.Usage++
	case "serp":
		s.rolloverLocked(&s.data.Serp)
		s.data.Serp.Usage++
	case "serper":
		s.data.Serper.LifetimeUsage++
	default:
		return
	}
	s.saveLocked()
}

// Usage returns the current counter for a provider.
func (s *UsageStore) Usage(provider string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch provider {
	case "tavily":
		return s.data.Tavily.Usage
	case "serp":
		return s.data.Serp.Usage
	case "serper":
		return s.data.Serper.LifetimeUsage
	}
	return 0
}

// rolloverLocked resets a monthly counter when the month changed.
// Caller holds s.mu.
func (s *UsageStore) rolloverLocked(u *monthlyUsage) {
	month := s.now().UTC().Format("2006-01")
	if u.Month != month {
		u.Month = month
		u.Usage = 0
	}
}

func (s *UsageStore) load() usageData {
	month := s.now().UTC().Format("2006-01")
	fresh := usageData{
		Tavily: monthlyUsage{Month: month},
		Serp:   monthlyUsage{Month: month},
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("USAGE_LOAD_ERROR | path=%s err=%v", s.path, err)
		}
		return fresh
	}

	var data usageData
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("USAGE_PARSE_ERROR | path=%s err=%v", s.path, err)
		return fresh
	}
	return data
}

// saveLocked persists the counters. Caller holds s.mu.
func (s *UsageStore) saveLocked() {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		log.Printf("USAGE_SAVE_ERROR | err=%v", err)
		return
	}
	if err := util.AtomicWriteFile(s.path, raw, 0644); err != nil {
		log.Printf("USAGE_SAVE_ERROR | path=%s err=%v", s.path, err)
	}
}
