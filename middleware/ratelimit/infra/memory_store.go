package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pacer-gateway/middleware/ratelimit/domain"
)

// MemoryQuotaStore implementa domain.QuotaStore em memória, com a mesma
// semântica de SET NX EX / DECR / GET / TTL do Redis.
//
// Cada lote roda sob um único lock e é aplicado por inteiro ou descartado.
// O estado é local ao processo: útil para testes e instância única.
type MemoryQuotaStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*counterEntry
	now          func() time.Time
	cleanupEvery time.Duration
}

type counterEntry struct {
	value     int64
	expiresAt time.Time // zero = sem expiração
}

func (e *counterEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type MemoryStoreOption func(*MemoryQuotaStore)

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryQuotaStore) { s.now = now }
}

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryQuotaStore) { s.cleanupEvery = d }
}

func NewMemoryQuotaStore(opts ...MemoryStoreOption) *MemoryQuotaStore {
	s := &MemoryQuotaStore{
		entries:      make(map[domain.Key]*counterEntry),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryQuotaStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// ExecAtomic implementa domain.QuotaStore.
func (s *MemoryQuotaStore) ExecAtomic(ctx context.Context, cmds []domain.Command) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// alterações ficam em staged até o lote inteiro dar certo
	staged := make(map[domain.Key]*counterEntry)
	live := func(k domain.Key) *counterEntry {
		if e, ok := staged[k]; ok {
			return e
		}
		e, ok := s.entries[k]
		if !ok || e.expired(now) {
			return nil
		}
		cp := *e
		return &cp
	}

	out := make([]int64, 0, len(cmds))
	for _, cmd := range cmds {
		switch cmd.Op {
		case domain.OpSetNX:
			if live(cmd.Key) != nil {
				out = append(out, 0)
				continue
			}
			e := &counterEntry{value: cmd.Value}
			if cmd.TTL > 0 {
				e.expiresAt = now.Add(cmd.TTL)
			}
			staged[cmd.Key] = e
			out = append(out, 1)

		case domain.OpDecr:
			e := live(cmd.Key)
			if e == nil {
				e = &counterEntry{}
			}
			e.value--
			staged[cmd.Key] = e
			out = append(out, e.value)

		case domain.OpGet:
			e := live(cmd.Key)
			if e == nil {
				return nil, fmt.Errorf("%w: GET %s: no such key", domain.ErrMalformedReply, cmd.Key)
			}
			out = append(out, e.value)

		case domain.OpTTL:
			out = append(out, ttlOf(live(cmd.Key), now))

		default:
			return nil, fmt.Errorf("memory store: unsupported op %s", cmd.Op)
		}
	}

	for k, e := range staged {
		s.entries[k] = e
	}
	return out, nil
}

// ttlOf segue o arredondamento do comando TTL do Redis.
func ttlOf(e *counterEntry, now time.Time) int64 {
	switch {
	case e == nil:
		return -2
	case e.expiresAt.IsZero():
		return -1
	}
	left := e.expiresAt.Sub(now)
	return int64((left + 500*time.Millisecond) / time.Second)
}

// Value devolve o valor cru do contador (pode ser negativo).
func (s *MemoryQuotaStore) Value(key domain.Key) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		return 0, false
	}
	return e.value, true
}

func (s *MemoryQuotaStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove contadores cuja janela já expirou.
func (s *MemoryQuotaStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que remove contadores expirados periodicamente.
// Pare cancelando o contexto.
func (s *MemoryQuotaStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context.
type DoneContext interface {
	Done() <-chan struct{}
}
