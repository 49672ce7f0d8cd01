package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"unitysales/backend/internal/store"
)

func TestEscapeLikeTreatsWildcardsLiterally(t *testing.T) {
	cases := map[string]string{
		"":       "",
		"leche":  "leche",
		"50%":    `50\%`,
		"a_b":    `a\_b`,
		`c:\tmp`: `c:\\tmp`,
		`%_\`:    `\%\_\\`,
	}
	for in, want := range cases {
		if got := escapeLike(in); got != want {
			t.Fatalf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapTxErrorFlagsLostRaces(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		cause := store.Wrap(store.StepProductLookup, &pgconn.PgError{Code: code, Message: "could not serialize access"})
		err := mapTxError(cause)
		if !errors.Is(err, store.ErrConcurrentUpdate) {
			t.Fatalf("code %s: expected concurrent update, got %v", code, err)
		}
		var storageErr *store.StorageError
		if !errors.As(err, &storageErr) || storageErr.Step != store.StepProductLookup {
			t.Fatalf("code %s: expected the step to survive, got %v", code, err)
		}
	}

	other := fmt.Errorf("lookup: %w", &pgconn.PgError{Code: "23505"})
	if err := mapTxError(other); err != other {
		t.Fatalf("expected unrelated error to pass through, got %v", err)
	}
	if err := mapTxError(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIsUUID(t *testing.T) {
	cases := map[string]bool{
		"0192b8e4-7c1e-7a3b-9f00-2d1c3b4a5e6f": true,
		"":                                     false,
		"not-a-uuid":                           false,
		"1; DROP TABLE products":               false,
	}
	for id, want := range cases {
		if got := isUUID(id); got != want {
			t.Fatalf("isUUID(%q) = %v, want %v", id, got, want)
		}
	}
}
