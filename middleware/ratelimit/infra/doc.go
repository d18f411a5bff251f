// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisQuotaStore: lote atômico (MULTI/EXEC) via go-redis
//   - MemoryQuotaStore: store em memória com as mesmas garantias, para testes e dev
//   - ChanPool: semáforo simples para limitar lotes em voo
package infra
