package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memorySource struct {
	mu      sync.Mutex
	numbers map[string]bool
}

func newMemorySource() *memorySource {
	return &memorySource{numbers: make(map[string]bool)}
}

func (s *memorySource) MaxNumber(_ context.Context, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var max string
	for n := range s.numbers {
		if len(n) >= len(prefix) && n[:len(prefix)] == prefix && (max == "" || Less(max, n)) {
			max = n
		}
	}
	return max, nil
}

func (s *memorySource) insert(number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.numbers[number] {
		return ErrDuplicate
	}
	s.numbers[number] = true
	return nil
}

func fixedYear(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, time.March, 1, 12, 0, 0, 0, time.UTC)
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		name    string
		last    string
		want    string
		wantErr bool
	}{
		{name: "first of year", last: "", want: "ORD-2026-00001"},
		{name: "increments", last: "ORD-2026-00041", want: "ORD-2026-00042"},
		{name: "grows past five digits", last: "ORD-2026-99999", want: "ORD-2026-100000"},
		{name: "foreign prefix", last: "INV-2026-00001", wantErr: true},
		{name: "garbage suffix", last: "ORD-2026-abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next("ORD-2026-", tt.last)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestGenerator_Reserve(t *testing.T) {
	t.Run("uses current year", func(t *testing.T) {
		source := newMemorySource()
		gen := NewGenerator("INV", source)
		gen.now = fixedYear(2031)

		var got string
		err := gen.Reserve(context.Background(), func(_ context.Context, number string) error {
			got = number
			return source.insert(number)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "INV-2031-00001" {
			t.Errorf("expected INV-2031-00001, got %s", got)
		}
	})

	t.Run("concurrent callers get distinct consecutive numbers", func(t *testing.T) {
		source := newMemorySource()
		gen := NewGenerator("ORD", source)
		gen.now = fixedYear(2026)

		const callers = 50
		var wg sync.WaitGroup
		errs := make(chan error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- gen.Reserve(context.Background(), func(_ context.Context, number string) error {
					return source.insert(number)
				})
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		if len(source.numbers) != callers {
			t.Fatalf("expected %d numbers, got %d", callers, len(source.numbers))
		}
		for i := 1; i <= callers; i++ {
			if !source.numbers[Format("ORD-2026-", i)] {
				t.Errorf("missing %s", Format("ORD-2026-", i))
			}
		}
	})

	t.Run("retries when another writer took the number", func(t *testing.T) {
		source := newMemorySource()
		gen := NewGenerator("ORD", source)
		gen.now = fixedYear(2026)

		attempts := 0
		var got string
		err := gen.Reserve(context.Background(), func(_ context.Context, number string) error {
			attempts++
			if attempts == 1 {
				_ = source.insert(number)
				return ErrDuplicate
			}
			got = number
			return source.insert(number)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "ORD-2026-00002" {
			t.Errorf("expected ORD-2026-00002, got %s", got)
		}
	})

	t.Run("gives up after repeated duplicates", func(t *testing.T) {
		gen := NewGenerator("ORD", newMemorySource())

		err := gen.Reserve(context.Background(), func(context.Context, string) error {
			return ErrDuplicate
		})
		if !errors.Is(err, ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("propagates persist errors", func(t *testing.T) {
		gen := NewGenerator("ORD", newMemorySource())
		boom := errors.New("boom")

		err := gen.Reserve(context.Background(), func(context.Context, string) error {
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})
}
