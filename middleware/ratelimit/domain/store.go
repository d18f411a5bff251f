package domain

import (
	"context"
	"time"
)

type Op int

const (
	// OpSetNX cria a chave com Value e TTL somente se ela não existir.
	OpSetNX Op = iota
	// OpDecr decrementa a chave em 1 e devolve o novo valor.
	OpDecr
	// OpGet lê o valor inteiro da chave.
	OpGet
	// OpTTL lê o tempo restante até a chave expirar, em segundos.
	OpTTL
)

func (o Op) String() string {
	switch o {
	case OpSetNX:
		return "SETNX"
	case OpDecr:
		return "DECR"
	case OpGet:
		return "GET"
	case OpTTL:
		return "TTL"
	}
	return "UNKNOWN"
}

type Command struct {
	Op    Op
	Key   Key
	Value int64
	TTL   time.Duration
}

// QuotaStore é a única capacidade que o executor exige do store compartilhado:
// executar um lote ordenado de comandos de forma atômica.
//
// O resultado tem uma posição por comando, na mesma ordem:
//   - OpSetNX: 1 se criou, 0 se a chave já existia
//   - OpDecr/OpGet: valor inteiro do contador
//   - OpTTL: segundos restantes (-1 sem expiração, -2 chave inexistente)
//
// Ou o lote inteiro é aplicado, ou um erro é devolvido.
type QuotaStore interface {
	ExecAtomic(ctx context.Context, cmds []Command) ([]int64, error)
}

// SlotPool limita quantos lotes ficam em voo ao mesmo tempo contra o store.
// Acquire espera uma vaga até o ctx encerrar; release deve ser chamado uma única vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
