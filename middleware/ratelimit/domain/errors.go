package domain

import "errors"

var (
	// ErrInvalidConsumer indica identificação de consumidor ausente ou inválida.
	ErrInvalidConsumer = errors.New("invalid consumer")
	// ErrInvalidOverride indica limit/reset negativos no consumidor.
	ErrInvalidOverride = errors.New("invalid consumer override")
	// ErrMalformedReply indica resposta do store incompleta ou não numérica.
	ErrMalformedReply = errors.New("malformed store reply")
	// ErrNoSlot indica que não houve vaga para executar o lote antes do ctx encerrar.
	ErrNoSlot = errors.New("no slot available for store batch")
)
