package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

func TestTranslateConstraint(t *testing.T) {
	tests := []struct {
		constraint string
		code       domain.ErrorCode
	}{
		{constraint: "assignments_worker_id_fkey", code: domain.CodeValidation},
		{constraint: "assignments_shift_worker_active_key", code: domain.CodeOverlapConflict},
		{constraint: "shifts_location_id_fkey", code: domain.CodeNotFound},
		{constraint: "shifts_time_range_check", code: domain.CodeValidation},
		{constraint: "availabilities_time_range_check", code: domain.CodeValidation},
		{constraint: "availabilities_worker_id_fkey", code: domain.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			pgErr := &pgconn.PgError{ConstraintName: tt.constraint}
			err := translateConstraint(fmt.Errorf("insert: %w", pgErr))
			assert.Equal(t, tt.code, domain.ErrorCodeOf(err))

			var wrapped *pgconn.PgError
			assert.True(t, errors.As(err, &wrapped))
		})
	}
}

func TestTranslateConstraint_PassThrough(t *testing.T) {
	other := &pgconn.PgError{ConstraintName: "workers_pkey"}
	assert.Same(t, other, translateConstraint(other))

	plain := errors.New("boom")
	assert.Same(t, plain, translateConstraint(plain))
}

func TestLocationCacheKey(t *testing.T) {
	assert.Equal(t, "location_42", locationCacheKey(42))
}
