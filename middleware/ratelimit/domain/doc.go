// Package domain define contratos e tipos de domínio do pacer: consumidor,
// resultado de cota e a capacidade mínima exigida do store compartilhado.
//
// Este pacote não depende de net/http nem de Redis.
package domain
