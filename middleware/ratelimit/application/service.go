package application

import (
	"context"
	"log/slog"
	"time"

	"pacer-gateway/middleware/ratelimit/domain"
)

// Service concentra os casos de uso consume e query.
//
// Ele não sabe nada sobre HTTP nem sobre Redis; apenas resolve o consumidor,
// delega ao Executor e registra estatísticas (best-effort).
type Service struct {
	Config   domain.Config
	Executor *Executor
	Stats    domain.StatsStore
	Logger   *slog.Logger
}

// Consume gasta um token do consumidor.
func (s *Service) Consume(ctx context.Context, req any) domain.QuotaResult {
	return s.Do(ctx, req, domain.ModeConsume)
}

// Query lê a cota do consumidor sem consumir.
func (s *Service) Query(ctx context.Context, req any) domain.QuotaResult {
	return s.Do(ctx, req, domain.ModeQuery)
}

func (s *Service) Do(ctx context.Context, req any, mode domain.Mode) domain.QuotaResult {
	c, err := Resolve(req, s.Config)
	if err != nil {
		// entrada malformada não passa pela política de falha do store.
		// c.ID vem preenchido quando o registro tinha id e o override era inválido.
		if s.Logger != nil {
			s.Logger.Debug("pacer rejected consumer", "mode", mode.String(), "error", err)
		}
		return domain.QuotaResult{ID: c.ID, Error: err}
	}

	res := s.Executor.Execute(ctx, c, mode)
	s.record(ctx, c, mode, res)
	return res
}

func (s *Service) record(ctx context.Context, c domain.CanonicalConsumer, mode domain.Mode, res domain.QuotaResult) {
	if s.Stats == nil {
		return
	}
	info := requestInfoFrom(ctx)
	ev := domain.StatsEvent{
		Key:      domain.Key(c.ID),
		Mode:     mode,
		Allowed:  res.Allowed,
		Degraded: res.Degraded(),
		Method:   info.method,
		Path:     info.path,
		At:       time.Now(),
	}
	if err := s.Stats.Record(ctx, ev); err != nil && s.Logger != nil {
		s.Logger.Debug("pacer stats record failed", "consumer", c.ID, "error", err)
	}
}

type requestInfo struct {
	method string
	path   string
}

type requestInfoKey struct{}

// WithRequestInfo anexa método/rota ao ctx para que as estatísticas
// possam ser agregadas por rota. Usado pelos adapters HTTP.
func WithRequestInfo(ctx context.Context, method, path string) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{method: method, path: path})
}

func requestInfoFrom(ctx context.Context) requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info
}
