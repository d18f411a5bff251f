package domain

import (
	"context"
	"time"
)

// StatsEvent representa o resultado de uma operação do pacer.
//
// Method/Path são opcionais e preenchidos pelos adapters HTTP.
//
// Observação: cuidado com cardinalidade (ex.: registrar Key sem controle pode
// explodir o número de chaves no Redis).
type StatsEvent struct {
	Key      Key
	Mode     Mode
	Allowed  bool
	Degraded bool

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do pacer.
//
// O pacer trata erro como best-effort (não altera o resultado da cota).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
