package domain

// Camada de domínio do rate limit (janela fixa, contador compartilhado).

import (
	"encoding/json"
	"fmt"
)

type Key string

// Config é a configuração imutável de um Pacer.
// É compartilhada (somente leitura) por todas as chamadas.
type Config struct {
	DefaultLimit  int
	DefaultWindow int // segundos
	FailOpen      bool
	KeyPrefix     string
}

// Consumer é a forma estruturada de identificar um consumidor.
// Limit/Reset zerados significam "usar o padrão da Config".
type Consumer struct {
	ID    string `json:"id"`
	Limit int    `json:"limit,omitempty"`
	Reset int    `json:"reset,omitempty"`
}

// CanonicalConsumer é o consumidor já resolvido para uma chamada.
// Reset aqui é o tamanho da janela usado apenas na criação do contador.
type CanonicalConsumer struct {
	ID    string
	Limit int
	Reset int
}

// StoreKey devolve a chave do contador no store.
func (c CanonicalConsumer) StoreKey(prefix string) Key {
	return Key(prefix + c.ID)
}

// QuotaResult é o consumidor resolvido acrescido do resultado da operação.
// Reset passa a ser o TTL restante do contador (segundos).
type QuotaResult struct {
	ID        string
	Limit     int
	Reset     int
	Remaining int
	Error     error
	Allowed   bool
}

// Degraded indica que o resultado veio da política de falha, não do store.
func (r QuotaResult) Degraded() bool { return r.Error != nil }

func (r QuotaResult) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: remaining=%d/%d reset=%ds allowed=%v error=%v", r.ID, r.Remaining, r.Limit, r.Reset, r.Allowed, r.Error)
	}
	return fmt.Sprintf("%s: remaining=%d/%d reset=%ds allowed=%v", r.ID, r.Remaining, r.Limit, r.Reset, r.Allowed)
}

type quotaResultJSON struct {
	ID        string  `json:"id"`
	Limit     int     `json:"limit"`
	Reset     int     `json:"reset"`
	Remaining int     `json:"remaining"`
	Error     *string `json:"error"`
	Allowed   bool    `json:"allowed"`
}

// MarshalJSON serializa Error como mensagem (ou null).
func (r QuotaResult) MarshalJSON() ([]byte, error) {
	out := quotaResultJSON{
		ID:        r.ID,
		Limit:     r.Limit,
		Reset:     r.Reset,
		Remaining: r.Remaining,
		Allowed:   r.Allowed,
	}
	if r.Error != nil {
		msg := r.Error.Error()
		out.Error = &msg
	}
	return json.Marshal(out)
}

// Mode diz se a operação consome um token ou apenas consulta.
type Mode int

const (
	ModeQuery Mode = iota
	ModeConsume
)

func (m Mode) String() string {
	if m == ModeConsume {
		return "consume"
	}
	return "query"
}
