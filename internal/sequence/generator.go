// Package sequence hands out human-readable, year-scoped document numbers
// such as ORD-2026-00042.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrDuplicate is returned by the persist callback when the number it was
// given is already taken, typically by another replica.
var ErrDuplicate = errors.New("sequence number already taken")

const maxAttempts = 5

// Source reports the highest number already persisted with the given prefix,
// or "" when there is none.
type Source interface {
	MaxNumber(ctx context.Context, prefix string) (string, error)
}

type Generator struct {
	mu     sync.Mutex
	prefix string
	source Source
	now    func() time.Time
}

func NewGenerator(prefix string, source Source) *Generator {
	return &Generator{
		prefix: prefix,
		source: source,
		now:    time.Now,
	}
}

// Reserve computes the next number and calls persist with it while holding
// the generator lock, so two callers in one process never see the same
// number. If persist reports ErrDuplicate the number is recomputed.
func (g *Generator) Reserve(ctx context.Context, persist func(ctx context.Context, number string) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	yearPrefix := fmt.Sprintf("%s-%d-", g.prefix, g.now().UTC().Year())

	for attempt := 1; ; attempt++ {
		last, err := g.source.MaxNumber(ctx, yearPrefix)
		if err != nil {
			return fmt.Errorf("read last sequence number: %w", err)
		}

		number, err := Next(yearPrefix, last)
		if err != nil {
			return err
		}

		err = persist(ctx, number)
		if errors.Is(err, ErrDuplicate) && attempt < maxAttempts {
			continue
		}
		return err
	}
}

// Next returns the number following last within yearPrefix.
func Next(yearPrefix, last string) (string, error) {
	if last == "" {
		return Format(yearPrefix, 1), nil
	}

	if !strings.HasPrefix(last, yearPrefix) {
		return "", fmt.Errorf("sequence number %q does not match prefix %q", last, yearPrefix)
	}

	n, err := strconv.Atoi(strings.TrimPrefix(last, yearPrefix))
	if err != nil {
		return "", fmt.Errorf("parse sequence number %q: %w", last, err)
	}

	return Format(yearPrefix, n+1), nil
}

func Format(yearPrefix string, n int) string {
	return fmt.Sprintf("%s%05d", yearPrefix, n)
}

// Less orders numbers sharing a prefix numerically, so that 100000 sorts
// after 99999.
func Less(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
