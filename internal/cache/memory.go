package cache

import (
	"context"
	"sync"
	"time"

	"github.com/threatlens/threatlens/pkg/threat"
)

// MemoryCache is an in-process TTL cache with a hard entry cap.
type MemoryCache struct {
	mu      sync.RWMutex
	items   map[string]*memoryItem
	ttl     time.Duration
	maxSize int

	stop     chan struct{}
	stopOnce sync.Once
}

type memoryItem struct {
	result    *threat.AnalysisResult
	expiresAt time.Time
	createdAt time.Time
}

// NewMemoryCache creates a memory cache and starts its cleanup loop.
func NewMemoryCache(ttl time.Duration, maxSize int) *MemoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 4096
	}
	mc := &MemoryCache{
		items:   make(map[string]*memoryItem),
		ttl:     ttl,
		maxSize: maxSize,
		stop:    make(chan struct{}),
	}
	go mc.cleanupLoop()
	return mc
}

// Get returns a cached result if present and unexpired.
func (m *MemoryCache) Get(_ context.Context, key string) (*threat.AnalysisResult, bool) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, false
	}
	return item.result, true
}

// Set stores a result, evicting the oldest entry at capacity.
func (m *MemoryCache) Set(_ context.Context, key string, result *threat.AnalysisResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) >= m.maxSize {
		m.evictOldestLocked()
	}
	now := time.Now()
	m.items[key] = &memoryItem{
		result:    result,
		expiresAt: now.Add(m.ttl),
		createdAt: now,
	}
}

// Len returns the current entry count.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, item := range m.items {
		if oldestKey == "" || item.createdAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = item.createdAt
		}
	}
	if oldestKey != "" {
		delete(m.items, oldestKey)
	}
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (m *MemoryCache) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for key, item := range m.items {
				if now.After(item.expiresAt) {
					delete(m.items, key)
				}
			}
			m.mu.Unlock()
		}
	}
}
