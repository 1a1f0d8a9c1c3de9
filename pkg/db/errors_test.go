package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgx match", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "ux_jobs_queue_dedupe_key"}), constraint: "ux_jobs_queue_dedupe_key", want: true},
		{name: "pgx other constraint", err: &pgconn.PgError{Code: "23505", ConstraintName: "other"}, constraint: "ux_jobs_queue_dedupe_key", want: false},
		{name: "pgx other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "pq match", err: &pq.Error{Code: "23505", Constraint: "ux_x"}, constraint: "ux_x", want: true},
		{name: "sqlite message", err: errors.New("UNIQUE constraint failed: jobs.queue, jobs.dedupe_key"), want: true},
		{name: "plain message", err: errors.New(`ERROR: duplicate key value violates unique constraint "ux_x"`), constraint: "ux_x", want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Fatalf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}
