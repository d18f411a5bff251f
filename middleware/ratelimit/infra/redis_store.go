package infra

import (
	"context"
	"fmt"
	"time"

	"pacer-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisQuotaStore implementa domain.QuotaStore com MULTI/EXEC (TxPipeline).
//
// Nenhum outro lote pode ser intercalado entre os comandos de um lote,
// o que impede duas primeiras requisições concorrentes de criarem o contador duas vezes.
type RedisQuotaStore struct {
	rdb redis.UniversalClient
}

var _ domain.QuotaStore = (*RedisQuotaStore)(nil)

func NewRedisQuotaStore(rdb redis.UniversalClient) *RedisQuotaStore {
	return &RedisQuotaStore{rdb: rdb}
}

func (s *RedisQuotaStore) ExecAtomic(ctx context.Context, cmds []domain.Command) ([]int64, error) {
	pipe := s.rdb.TxPipeline()

	replies := make([]func() (int64, error), len(cmds))
	for i, cmd := range cmds {
		key := string(cmd.Key)
		switch cmd.Op {
		case domain.OpSetNX:
			c := pipe.SetNX(ctx, key, cmd.Value, cmd.TTL)
			replies[i] = func() (int64, error) {
				created, err := c.Result()
				if created {
					return 1, err
				}
				return 0, err
			}
		case domain.OpDecr:
			replies[i] = pipe.Decr(ctx, key).Result
		case domain.OpGet:
			replies[i] = pipe.Get(ctx, key).Int64
		case domain.OpTTL:
			c := pipe.TTL(ctx, key)
			replies[i] = func() (int64, error) {
				d, err := c.Result()
				return ttlSeconds(d), err
			}
		default:
			pipe.Discard()
			return nil, fmt.Errorf("redis store: unsupported op %s", cmd.Op)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis exec: %w", err)
	}

	out := make([]int64, len(cmds))
	for i, reply := range replies {
		v, err := reply()
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrMalformedReply, cmds[i].Op, cmds[i].Key, err)
		}
		out[i] = v
	}
	return out, nil
}

// Ping verifica a conexão (usado apenas para diagnóstico na inicialização).
func (s *RedisQuotaStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// ttlSeconds converte a resposta do go-redis, que devolve -1/-2 sem escala.
func ttlSeconds(d time.Duration) int64 {
	if d < 0 {
		return int64(d)
	}
	return int64(d / time.Second)
}
