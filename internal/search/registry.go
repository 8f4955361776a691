package search

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultIdleTimeout は操作のない訪問者のControllerを破棄するまでの時間。
const DefaultIdleTimeout = 30 * time.Minute

// sweepInterval は期限切れエントリを掃除する最小間隔。
const sweepInterval = time.Minute

// Registry は訪問者（セッションID）ごとにControllerを保持する。
// Controller同士は状態を共有せず、単一実行の制約もController単位で働く。
type Registry struct {
	fetcher     WeatherFetcher
	saver       SummarySaver
	logger      *slog.Logger
	idleTimeout time.Duration
	now         func() time.Time

	mu        sync.Mutex
	entries   map[string]*registryEntry
	lastSweep time.Time
	closed    bool
}

type registryEntry struct {
	controller *Controller
	lastSeen   time.Time
}

// NewRegistry はRegistryを生成する。idleTimeoutが0以下の場合はDefaultIdleTimeoutを使う。
func NewRegistry(fetcher WeatherFetcher, saver SummarySaver, logger *slog.Logger, idleTimeout time.Duration) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Registry{
		fetcher:     fetcher,
		saver:       saver,
		logger:      logger,
		idleTimeout: idleTimeout,
		now:         time.Now,
		entries:     make(map[string]*registryEntry),
	}
}

// Get はセッションIDに対応するControllerを返す。なければ空の状態で生成する。
// Close後は破棄済みのControllerを返すため、検索と保存はErrControllerClosedになる。
func (r *Registry) Get(sessionID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		c := NewController(r.fetcher, r.saver, r.logger)
		c.Close()
		return c
	}

	now := r.now()
	r.sweepLocked(now)

	e, ok := r.entries[sessionID]
	if !ok {
		e = &registryEntry{controller: NewController(r.fetcher, r.saver, r.logger)}
		r.entries[sessionID] = e
	}
	e.lastSeen = now
	return e.controller
}

// sweepLocked はidleTimeoutを過ぎたControllerを破棄する。
// 検索中のControllerは完了するまで残す。
func (r *Registry) sweepLocked(now time.Time) {
	if now.Sub(r.lastSweep) < sweepInterval {
		return
	}
	r.lastSweep = now

	for id, e := range r.entries {
		if now.Sub(e.lastSeen) < r.idleTimeout || e.controller.State().Loading() {
			continue
		}
		e.controller.Close()
		delete(r.entries, id)
	}
}

// Len は保持しているController数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close はすべてのControllerを破棄する。以降のGetは破棄済みのControllerを返す。
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id, e := range r.entries {
		e.controller.Close()
		delete(r.entries, id)
	}
}
