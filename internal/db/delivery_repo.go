package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"subgate/internal/types"
)

// DeliveryRepository provides data access for the webhook_deliveries table.
// The table is an append-only operational log of every webhook delivery and
// its outcome; it never feeds back into processing decisions.
type DeliveryRepository struct {
	db DBTX
}

// NewDeliveryRepository creates a new DeliveryRepository backed by the given
// database connection (pool or transaction).
func NewDeliveryRepository(db DBTX) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Record inserts a delivery log row. If the ID is empty, a new UUID is
// assigned; if ReceivedAt is zero, the current time is used. The populated
// values are written back to rec.
func (r *DeliveryRepository) Record(ctx context.Context, rec *types.DeliveryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO webhook_deliveries
		 (id, event_name, user_email, action, outcome, detail, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID,
		rec.EventName,
		rec.UserEmail,
		rec.Action,
		rec.Outcome,
		rec.Detail,
		rec.ReceivedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record webhook delivery", err)
	}
	return nil
}

// ListByEmail returns the delivery history for an email, newest first,
// capped at limit rows. Operators use this to reconstruct duplicate and
// out-of-order deliveries for a single subscriber.
func (r *DeliveryRepository) ListByEmail(ctx context.Context, email string, limit int) ([]types.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, event_name, user_email, action, outcome, detail, received_at
		 FROM webhook_deliveries
		 WHERE user_email = $1
		 ORDER BY received_at DESC
		 LIMIT $2`,
		email, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list webhook deliveries", err)
	}
	defer rows.Close()

	var records []types.DeliveryRecord
	for rows.Next() {
		var rec types.DeliveryRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.EventName,
			&rec.UserEmail,
			&rec.Action,
			&rec.Outcome,
			&rec.Detail,
			&rec.ReceivedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan webhook delivery", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list webhook deliveries", err)
	}
	return records, nil
}

// Probe adapts the repository into a health probe for GET /health.
type Probe struct {
	db DBTX
}

// NewProbe creates a database health probe.
func NewProbe(db DBTX) *Probe {
	return &Probe{db: db}
}

// Name identifies the probe in the health response.
func (p *Probe) Name() string { return "database" }

// Check runs a trivial query to confirm the database is reachable.
func (p *Probe) Check(ctx context.Context) error {
	var one int
	return p.db.QueryRow(ctx, "SELECT 1").Scan(&one)
}
