package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
)

type OutboxRecord struct {
	domain.OutboxMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
	Status      string // NEW, PUBLISHED
}

func (r *Repository) InsertOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.DedupeKey)
	return domain.Storage(err, "insert outbox")
}

// ClaimUnpublished locks up to limit NEW records, skipping rows another
// publisher holds. It must run inside WithTx.
func (r *Repository) ClaimUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, domain.Storage(err, "claim outbox")
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, domain.Storage(err, "scan outbox")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage(err, "claim outbox")
	}
	return records, nil
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := r.q(ctx).Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return domain.Storage(err, "mark outbox published")
}
