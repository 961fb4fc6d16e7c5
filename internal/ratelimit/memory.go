package ratelimit

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// MemoryStore implements Store with an in-process map. Default for
// single-instance deployments; counters are not shared across instances.
type MemoryStore struct {
	mu         sync.Mutex
	data       map[string]*window
	gcInterval time.Duration
	stopCh     chan struct{}
	stopped    int32
}

type window struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory counter store. gcInterval controls
// how often expired windows are evicted.
func NewMemoryStore(gcInterval time.Duration) *MemoryStore {
	if gcInterval <= 0 {
		gcInterval = 10 * time.Minute
	}
	s := &MemoryStore{
		data:       make(map[string]*window),
		gcInterval: gcInterval,
		stopCh:     make(chan struct{}),
	}
	go s.gc()
	warnIfMultiInstance()
	return s
}

var multiInstanceWarning sync.Once

// warnIfMultiInstance logs once when in-memory counters are used in what
// looks like a multi-instance deployment, where per-instance limits can be
// bypassed by spreading requests across replicas.
func warnIfMultiInstance() {
	multiInstanceWarning.Do(func() {
		if os.Getenv("DOTMAC_REDIS_ADDR") != "" || os.Getenv("REDIS_URL") != "" {
			return
		}
		isKubernetes := os.Getenv("KUBERNETES_SERVICE_HOST") != ""
		isCompose := os.Getenv("COMPOSE_PROJECT_NAME") != ""
		if isKubernetes || isCompose {
			log.Warn().
				Bool("kubernetes_detected", isKubernetes).
				Bool("compose_detected", isCompose).
				Msg("SECURITY WARNING: in-memory rate limiting in a multi-instance environment. " +
					"Counters are per-instance and can be bypassed by targeting different replicas. " +
					"Configure DOTMAC_REDIS_ADDR for shared counters.")
		}
	})
}

func (s *MemoryStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.data[key]
	if !ok || time.Now().After(w.expiresAt) {
		return 0, time.Time{}, nil
	}
	return w.count, w.expiresAt, nil
}

func (s *MemoryStore) Increment(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w, ok := s.data[key]
	if !ok || now.After(w.expiresAt) {
		s.data[key] = &window{count: 1, expiresAt: now.Add(expiration)}
		return 1, nil
	}
	w.count++
	return w.count, nil
}

func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Close stops the eviction goroutine. Safe to call more than once.
func (s *MemoryStore) Close() error {
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return nil
	}
	close(s.stopCh)
	return nil
}

func (s *MemoryStore) gc() {
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *MemoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, w := range s.data {
		if now.After(w.expiresAt) {
			delete(s.data, key)
		}
	}
}
