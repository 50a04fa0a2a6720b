package responder

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

const decisionCollection = "responder_decisions"

// DecisionStore persists terminal engine decisions for operator inspection.
type DecisionStore interface {
	Record(ctx context.Context, record DecisionRecord) error
}

type MongoDecisionStore struct {
	coll *mongo.Collection
}

func NewMongoDecisionStore(db *mongo.Database) *MongoDecisionStore {
	return &MongoDecisionStore{coll: db.Collection(decisionCollection)}
}

func (s *MongoDecisionStore) Record(ctx context.Context, record DecisionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.coll.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to insert decision record: %w", err)
	}
	return nil
}

// NopDecisionStore is used when no MongoDB is configured.
type NopDecisionStore struct{}

func (NopDecisionStore) Record(ctx context.Context, record DecisionRecord) error {
	return nil
}
