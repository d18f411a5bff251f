package application

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"pacer-gateway/middleware/ratelimit/domain"
)

// Resolve normaliza a identificação recebida do chamador em um consumidor canônico.
//
// Aceita um identificador simples (string, números, fmt.Stringer) ou um
// domain.Consumer. Em um Consumer, Limit/Reset iguais a zero são tratados como
// ausentes e substituídos pelos padrões da Config (compatível com o pacer original).
func Resolve(req any, cfg domain.Config) (domain.CanonicalConsumer, error) {
	switch v := req.(type) {
	case nil:
		return domain.CanonicalConsumer{}, fmt.Errorf("%w: nil consumer", domain.ErrInvalidConsumer)
	case domain.Consumer:
		return resolveRecord(v, cfg)
	case *domain.Consumer:
		if v == nil {
			return domain.CanonicalConsumer{}, fmt.Errorf("%w: nil consumer", domain.ErrInvalidConsumer)
		}
		return resolveRecord(*v, cfg)
	}

	id, ok := bareID(req)
	if !ok {
		return domain.CanonicalConsumer{}, fmt.Errorf("%w: unsupported type %T", domain.ErrInvalidConsumer, req)
	}
	if id == "" {
		return domain.CanonicalConsumer{}, fmt.Errorf("%w: empty id", domain.ErrInvalidConsumer)
	}
	return domain.CanonicalConsumer{
		ID:    id,
		Limit: cfg.DefaultLimit,
		Reset: cfg.DefaultWindow,
	}, nil
}

func resolveRecord(c domain.Consumer, cfg domain.Config) (domain.CanonicalConsumer, error) {
	if c.ID == "" {
		return domain.CanonicalConsumer{}, fmt.Errorf("%w: record without id", domain.ErrInvalidConsumer)
	}
	if c.Limit < 0 || c.Reset < 0 {
		return domain.CanonicalConsumer{ID: c.ID}, fmt.Errorf("%w: limit=%d reset=%d", domain.ErrInvalidOverride, c.Limit, c.Reset)
	}
	if int64(c.Reset) > maxWindowSeconds {
		return domain.CanonicalConsumer{ID: c.ID}, fmt.Errorf("%w: reset=%d exceeds %d seconds", domain.ErrInvalidOverride, c.Reset, maxWindowSeconds)
	}

	out := domain.CanonicalConsumer{
		ID:    c.ID,
		Limit: c.Limit,
		Reset: c.Reset,
	}
	if out.Limit == 0 {
		out.Limit = cfg.DefaultLimit
	}
	if out.Reset == 0 {
		out.Reset = cfg.DefaultWindow
	}
	return out, nil
}

// maxWindowSeconds é a maior janela que cabe em um time.Duration.
const maxWindowSeconds = math.MaxInt64 / int64(time.Second)

func bareID(req any) (string, bool) {
	switch v := req.(type) {
	case string:
		return v, true
	case domain.Key:
		return string(v), true
	case int:
		return strconv.Itoa(v), true
	case int8, int16, int32, int64:
		return fmt.Sprint(v), true
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case fmt.Stringer:
		return v.String(), true
	}
	return "", false
}
