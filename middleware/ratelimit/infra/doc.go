// Package infra contém implementações concretas para os contratos do pacote domain.
//
//   - WindowStore: contador de janela fixa por identidade, com shards e varredura por high-water mark
//   - Store: token bucket por chave usando golang.org/x/time/rate
//   - ChanPool: semáforo para limite de requisições em voo
//   - MemoryStatsStore / RedisStatsStore: estatísticas das decisões de admissão
//   - MultiStatsStore: envia o mesmo evento para vários stores
package infra
