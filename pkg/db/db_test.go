package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	const key = "bwa_periods_year_month_key"

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"named constraint", &pgconn.PgError{Code: "23505", ConstraintName: key}, true},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: key}), true},
		{"other constraint", &pgconn.PgError{Code: "23505", ConstraintName: "bwa_periods_pkey"}, false},
		{"other code", &pgconn.PgError{Code: "23503", ConstraintName: key}, false},
		{"not a postgres error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err, key))
		})
	}
}
