// Package ratelimit fornece o Pacer (rate limit de janela fixa com contador
// compartilhado no Redis) e adapters HTTP (net/http e gin) construídos sobre ele.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (consumidor, resultado, store atômico)
//   - application: casos de uso (resolver consumidor, lote atômico, fail-open/closed)
//   - infra: implementações concretas (Redis MULTI/EXEC, store em memória, estatísticas)
//   - ratelimit (este pacote): construção do Pacer + middlewares HTTP
//
// Fluxo de uma chamada:
//
//  1. Resolve o consumidor (id + limit/reset opcionais, ou padrões)
//  2. Executa um único lote atômico: SET NX EX, DECR (ou GET), TTL
//  3. Devolve QuotaResult{ID, Limit, Reset, Remaining, Error, Allowed}
//
// Falhas do store nunca viram erro de retorno: o resultado traz Error e
// Remaining = Limit (AllowOnError=true) ou 0 (AllowOnError=false).
package ratelimit
