package domain

import "fmt"

// Setting is a string-to-string key/value pair persisted by the Catalog.
type Setting struct {
	Key   string
	Value string
}

// DeltaTokenKey returns the reserved setting key holding the resume token
// for a provider's incremental sync.
func DeltaTokenKey(providerKey string) string {
	return fmt.Sprintf("delta_token:%s", providerKey)
}
