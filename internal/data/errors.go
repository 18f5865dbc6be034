package data

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/skuflow/skuflow/internal/domain/model"
)

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a fulfillment job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrAuditEntryInvalid is returned when an audit entry is missing required fields.
	ErrAuditEntryInvalid = errors.New("audit entry requires job_id and state")
)

// mapPostgresError translates driver-level constraint violations into domain
// sentinels. A unique violation on the active-order index means another live
// job already covers the same source order.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return model.ErrDuplicateOrder
	}
	return err
}
