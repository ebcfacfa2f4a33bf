package engine

import "github.com/Priya8975/post-relay/internal/domain"

// Assign picks the credential for the monitored account at position index in
// this cycle's grouping: pool[index mod len(pool)]. ok is false for an empty pool.
func Assign(index int, pool []domain.Credential) (cred domain.Credential, ok bool) {
	if len(pool) == 0 || index < 0 {
		return domain.Credential{}, false
	}
	return pool[index%len(pool)], true
}
