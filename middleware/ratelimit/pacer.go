package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"strconv"
	"time"

	"pacer-gateway/middleware/ratelimit/application"
	"pacer-gateway/middleware/ratelimit/domain"
	"pacer-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
)

type (
	Consumer    = domain.Consumer
	QuotaResult = domain.QuotaResult
)

// Options configura um Pacer. Campos zerados recebem os valores de DefaultOptions.
type Options struct {
	// AllowOnError define a política quando o store falha: true libera (fail-open),
	// false bloqueia (fail-closed). Nil = true.
	AllowOnError *bool

	RedisHost     string
	RedisPort     int
	RedisIndex    int
	RedisPassword string

	// Limit é o número de tokens por janela; Reset é a janela em segundos.
	Limit int
	Reset int

	KeyPrefix string

	// CommandTimeout limita cada lote no store (0 = apenas o ctx do chamador).
	CommandTimeout time.Duration
	// MaxInFlight limita lotes simultâneos no store (0 = sem limite).
	MaxInFlight    int
	AcquireTimeout time.Duration

	// Store substitui o Redis (ex: infra.MemoryQuotaStore). Nesse caso
	// os campos Redis* são ignorados e Close não fecha nada.
	Store  domain.QuotaStore
	Stats  domain.StatsStore
	Logger *slog.Logger
}

// DefaultOptions devolve os padrões do pacer.
func DefaultOptions() Options {
	allow := true
	return Options{
		AllowOnError: &allow,
		RedisHost:    "localhost",
		RedisPort:    6379,
		RedisIndex:   0,
		Limit:        100,
		Reset:        3600,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.AllowOnError == nil {
		o.AllowOnError = def.AllowOnError
	}
	if o.RedisHost == "" {
		o.RedisHost = def.RedisHost
	}
	if o.RedisPort == 0 {
		o.RedisPort = def.RedisPort
	}
	if o.Limit == 0 {
		o.Limit = def.Limit
	}
	if o.Reset == 0 {
		o.Reset = def.Reset
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Bool é um atalho para preencher Options.AllowOnError.
func Bool(v bool) *bool { return &v }

// Pacer concede ou nega tokens a consumidores identificados.
// É seguro para uso concorrente; não guarda estado por consumidor.
type Pacer struct {
	svc *application.Service
	cfg domain.Config
	rdb *redis.Client
}

// New constrói o Pacer. Sem Options.Store, abre um pool go-redis (conexão
// preguiçosa) apontando para RedisHost:RedisPort, DB RedisIndex.
func New(opts Options) (*Pacer, error) {
	opts = opts.withDefaults()
	if opts.Limit < 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", opts.Limit)
	}
	if opts.Reset < 0 || int64(opts.Reset) > math.MaxInt64/int64(time.Second) {
		return nil, fmt.Errorf("reset must be > 0 and fit a time.Duration, got %d", opts.Reset)
	}
	if opts.RedisIndex < 0 {
		return nil, errors.New("redis index must be >= 0")
	}

	cfg := domain.Config{
		DefaultLimit:  opts.Limit,
		DefaultWindow: opts.Reset,
		FailOpen:      *opts.AllowOnError,
		KeyPrefix:     opts.KeyPrefix,
	}

	p := &Pacer{cfg: cfg}

	store := opts.Store
	if store == nil {
		p.rdb = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(opts.RedisHost, strconv.Itoa(opts.RedisPort)),
			Password: opts.RedisPassword,
			DB:       opts.RedisIndex,
		})
		store = infra.NewRedisQuotaStore(p.rdb)
	}

	exec := application.NewExecutor(store, cfg)
	exec.Timeout = opts.CommandTimeout
	exec.Logger = opts.Logger
	if opts.MaxInFlight > 0 {
		exec.Pool = infra.NewChanPool(opts.MaxInFlight)
		exec.AcquireTimeout = opts.AcquireTimeout
	}

	p.svc = &application.Service{
		Config:   cfg,
		Executor: exec,
		Stats:    opts.Stats,
		Logger:   opts.Logger,
	}
	return p, nil
}

// Consume gasta um token de consumer. consumer pode ser um id simples
// (string, inteiro) ou um Consumer com limit/reset próprios.
func (p *Pacer) Consume(ctx context.Context, consumer any) QuotaResult {
	return p.svc.Consume(ctx, consumer)
}

// Query lê a cota de consumer sem gastar tokens.
func (p *Pacer) Query(ctx context.Context, consumer any) QuotaResult {
	return p.svc.Query(ctx, consumer)
}

func (p *Pacer) Config() domain.Config { return p.cfg }

// Ping verifica o Redis do pacer. Com store injetado, sempre nil.
func (p *Pacer) Ping(ctx context.Context) error {
	if p.rdb == nil {
		return nil
	}
	return p.rdb.Ping(ctx).Err()
}

// Close fecha o pool Redis aberto por New.
func (p *Pacer) Close() error {
	if p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
