package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const auditCollection = "audit_logs"

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection(auditCollection),
		logger: logger,
	}
}

// AuditLog is one domain event as published on the exchange. The broker
// message id is the document id, so a redelivered message is stored once.
type AuditLog struct {
	ID            string    `bson:"_id"`
	Action        string    `bson:"action"`
	AggregateType string    `bson:"aggregate_type"`
	AggregateID   string    `bson:"aggregate_id"`
	OccurredAt    time.Time `bson:"occurred_at"`
	RecordedAt    time.Time `bson:"recorded_at"`
	Data          bson.M    `bson:"data"`
}

// EnsureIndexes creates the lookup indexes used by admin queries.
func (a *AuditLogger) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "aggregate_id", Value: 1}, {Key: "occurred_at", Value: 1}}},
		{Keys: bson.D{{Key: "action", Value: 1}, {Key: "occurred_at", Value: -1}}},
	})
	return errors.Wrap(err, "create audit indexes")
}

// Record stores entry. It reports false when the entry was already stored.
func (a *AuditLogger) Record(ctx context.Context, entry AuditLog) (bool, error) {
	_, err := a.coll.InsertOne(ctx, entry)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		a.logger.WithError(err).WithField("audit_id", entry.ID).Error("failed to insert audit log")
		return false, errors.Wrap(err, "insert audit log")
	}
	return true, nil
}

// History returns the audit trail of one aggregate, oldest first.
func (a *AuditLogger) History(ctx context.Context, aggregateID string) ([]AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}})
	cur, err := a.coll.Find(ctx, bson.M{"aggregate_id": aggregateID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find audit logs")
	}
	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, errors.Wrap(err, "decode audit logs")
	}
	return logs, nil
}
