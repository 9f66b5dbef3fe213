// Package idempotency fingerprints order requests and collapses concurrent
// retries that carry the same Idempotency-Key.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
)

// ErrKeyExists is returned by stores when a record for the key was written
// by a concurrent request.
var ErrKeyExists = errors.New("idempotency key already exists")

type Item struct {
	ProductID string
	Quantity  int
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestHash is the hex SHA-256 of the normalized email and the items
// sorted by product id then quantity. Item order in the request does not
// affect the hash.
func RequestHash(email string, items []Item) string {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ProductID != sorted[j].ProductID {
			return sorted[i].ProductID < sorted[j].ProductID
		}
		return sorted[i].Quantity < sorted[j].Quantity
	})

	var b strings.Builder
	b.WriteString(NormalizeEmail(email))
	for _, item := range sorted {
		fmt.Fprintf(&b, "|%s:%d", item.ProductID, item.Quantity)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Guard runs at most one in-flight call per key and hash within a process.
// Requests reusing a key with a different hash run separately so the caller
// can detect the conflict against the stored record.
type Guard[T any] struct {
	group singleflight.Group
}

func (g *Guard[T]) Do(key, hash string, fn func() (T, error)) (T, error) {
	v, err, _ := g.group.Do(key+"\x00"+hash, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
