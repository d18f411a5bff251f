// Package application contém os casos de uso do pacer: resolver o consumidor,
// executar o lote atômico no store e aplicar a política fail-open/fail-closed.
//
// Ele depende apenas do pacote domain e não conhece net/http nem Redis.
// Ex.: Service.Consume(ctx, "alice") retorna um domain.QuotaResult.
package application
