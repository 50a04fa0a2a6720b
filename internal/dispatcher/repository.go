package dispatcher

import (
	"context"
	"database/sql"

	"courier/pkg/errors"
)

// DeliveryRepository persists delivery records in PostgreSQL.
type DeliveryRepository interface {
	Upsert(ctx context.Context, rec *DeliveryRecord) error
	UpdateStatus(ctx context.Context, conversationID, sourceEventID string, status DeliveryStatus, attempts int, lastError, providerRef string) error
	Get(ctx context.Context, conversationID, sourceEventID string) (*DeliveryRecord, error)
}

type PostgresDeliveryRepository struct {
	db *sql.DB
}

func NewPostgresDeliveryRepository(db *sql.DB) *PostgresDeliveryRepository {
	return &PostgresDeliveryRepository{db: db}
}

func (r *PostgresDeliveryRepository) Upsert(ctx context.Context, rec *DeliveryRecord) error {
	query := `
		INSERT INTO delivery_records
			(reply_id, conversation_id, instance_id, source_event_id, status, attempts, last_error, provider_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (conversation_id, source_event_id) DO UPDATE
		SET status = EXCLUDED.status,
		    attempts = EXCLUDED.attempts,
		    last_error = EXCLUDED.last_error,
		    provider_ref = EXCLUDED.provider_ref,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		rec.ReplyID, rec.ConversationID, rec.InstanceID, rec.SourceEventID,
		rec.Status, rec.Attempts, rec.LastError, rec.ProviderRef,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return errors.ErrInternal.WithCause(err).WithDetail("operation", "upsert_delivery_record")
	}
	return nil
}

func (r *PostgresDeliveryRepository) UpdateStatus(ctx context.Context, conversationID, sourceEventID string, status DeliveryStatus, attempts int, lastError, providerRef string) error {
	query := `
		UPDATE delivery_records
		SET status = $3, attempts = $4, last_error = $5, provider_ref = $6, updated_at = NOW()
		WHERE conversation_id = $1 AND source_event_id = $2`

	result, err := r.db.ExecContext(ctx, query, conversationID, sourceEventID, status, attempts, lastError, providerRef)
	if err != nil {
		return errors.ErrInternal.WithCause(err).WithDetail("operation", "update_delivery_status")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return errors.ErrNotFound.WithDetail("conversation_id", conversationID).WithDetail("source_event_id", sourceEventID)
	}
	return nil
}

func (r *PostgresDeliveryRepository) Get(ctx context.Context, conversationID, sourceEventID string) (*DeliveryRecord, error) {
	query := `
		SELECT id, reply_id, conversation_id, instance_id, source_event_id,
		       status, attempts, last_error, provider_ref, created_at, updated_at
		FROM delivery_records
		WHERE conversation_id = $1 AND source_event_id = $2`

	var rec DeliveryRecord
	err := r.db.QueryRowContext(ctx, query, conversationID, sourceEventID).Scan(
		&rec.ID, &rec.ReplyID, &rec.ConversationID, &rec.InstanceID, &rec.SourceEventID,
		&rec.Status, &rec.Attempts, &rec.LastError, &rec.ProviderRef, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound.WithDetail("conversation_id", conversationID).WithDetail("source_event_id", sourceEventID)
	}
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err).WithDetail("operation", "get_delivery_record")
	}
	return &rec, nil
}
