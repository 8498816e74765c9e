package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWrapErr(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"scan type mismatch", errors.New("can't scan into dest[0]"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapErr("toggle", tt.err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.transient, errors.Is(err, domain.ErrTransientStore))
		})
	}

	assert.NoError(t, wrapErr("toggle", nil))
}
