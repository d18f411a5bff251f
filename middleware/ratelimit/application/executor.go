package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"pacer-gateway/middleware/ratelimit/domain"
)

// Executor executa, por chamada, um único lote atômico no store:
//
//	SETNX key limit EX reset ; DECR key | GET key ; TTL key
//
// e interpreta o resultado. Falhas nunca são propagadas como erro de retorno:
// viram um QuotaResult com Error preenchido e Remaining conforme FailOpen.
type Executor struct {
	Store  domain.QuotaStore
	Config domain.Config

	// Pool limita lotes em voo. Nil = sem limite.
	Pool domain.SlotPool
	// AcquireTimeout limita a espera por uma vaga no Pool (0 = até o ctx encerrar).
	AcquireTimeout time.Duration
	// Timeout aplicado a cada lote (0 = apenas o ctx do chamador).
	Timeout time.Duration

	Logger *slog.Logger

	failLog *rate.Sometimes
}

func NewExecutor(store domain.QuotaStore, cfg domain.Config) *Executor {
	return &Executor{
		Store:   store,
		Config:  cfg,
		Logger:  slog.Default(),
		failLog: &rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

// Batch monta os comandos do lote para o consumidor e o modo informados.
func Batch(key domain.Key, c domain.CanonicalConsumer, mode domain.Mode) []domain.Command {
	read := domain.Command{Op: domain.OpGet, Key: key}
	if mode == domain.ModeConsume {
		read.Op = domain.OpDecr
	}
	return []domain.Command{
		{Op: domain.OpSetNX, Key: key, Value: int64(c.Limit), TTL: time.Duration(c.Reset) * time.Second},
		read,
		{Op: domain.OpTTL, Key: key},
	}
}

func (e *Executor) Execute(ctx context.Context, c domain.CanonicalConsumer, mode domain.Mode) domain.QuotaResult {
	res := domain.QuotaResult{ID: c.ID, Limit: c.Limit, Reset: c.Reset}

	replies, err := e.run(ctx, c, mode)
	if err != nil {
		return e.degrade(res, mode, err)
	}

	// o contador pode ficar negativo no store; aqui nunca.
	res.Remaining = max(0, int(replies[1]))
	res.Reset = max(0, int(replies[2]))
	res.Allowed = res.Remaining > 0
	return res
}

func (e *Executor) run(ctx context.Context, c domain.CanonicalConsumer, mode domain.Mode) ([]int64, error) {
	if e.Store == nil {
		return nil, fmt.Errorf("%s batch: no store configured", mode)
	}

	release, ok := e.acquire(ctx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrNoSlot, err)
		}
		return nil, domain.ErrNoSlot
	}
	defer release()

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmds := Batch(c.StoreKey(e.Config.KeyPrefix), c, mode)
	replies, err := e.Store.ExecAtomic(ctx, cmds)
	if err != nil {
		return nil, fmt.Errorf("%s batch: %w", mode, err)
	}
	if len(replies) != len(cmds) {
		return nil, fmt.Errorf("%s batch: %w: got %d replies for %d commands", mode, domain.ErrMalformedReply, len(replies), len(cmds))
	}
	return replies, nil
}

// acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera até o ctx cancelar.
// - Se `AcquireTimeout > 0`, espera até o timeout.
func (e *Executor) acquire(ctx context.Context) (func(), bool) {
	if e.Pool == nil {
		return func() {}, true
	}
	if e.AcquireTimeout <= 0 {
		return e.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, e.AcquireTimeout)
	defer cancel()
	return e.Pool.Acquire(acqCtx)
}

func (e *Executor) degrade(res domain.QuotaResult, mode domain.Mode, err error) domain.QuotaResult {
	res.Remaining = 0
	if e.Config.FailOpen {
		res.Remaining = res.Limit
	}
	res.Reset = 0
	res.Error = err
	res.Allowed = res.Remaining > 0

	if e.failLog != nil && e.Logger != nil {
		e.failLog.Do(func() {
			e.Logger.Warn("pacer store batch failed",
				"consumer", res.ID,
				"mode", mode.String(),
				"fail_open", e.Config.FailOpen,
				"error", err,
			)
		})
	}
	return res
}
