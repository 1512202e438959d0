package repositories

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	apperrors "github.com/anonto42/nano-midea/socialgraph/pkg/errors"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

// ErrNotFound is returned when a lookup by id matches no document.
var ErrNotFound = apperrors.NewNotFound("document not found")

// ParseObjectID converts a hex id from a URL or form into an ObjectID.
func ParseObjectID(hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, apperrors.NewValidation(fmt.Sprintf("invalid id %q", hex), err)
	}
	return id, nil
}

// classify maps driver errors onto the error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return apperrors.NewTransientStorage(op, err)
	}
	var we mongo.WriteException
	if errors.As(err, &we) && we.WriteConcernError != nil {
		return apperrors.NewTransientStorage(op, err)
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.HasErrorLabel("RetryableWriteError") || ce.HasErrorLabel("TransientTransactionError")) {
		return apperrors.NewTransientStorage(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// retryOnce runs a write, retrying a single time when the failure is transient.
func retryOnce(ctx context.Context, op string, fn func() error) error {
	err := classify(op, fn())
	if err == nil || !apperrors.IsRetryable(err) || ctx.Err() != nil {
		return err
	}
	logger.Get().Warn("retrying transient storage failure", zap.String("op", op), zap.Error(err))
	return classify(op, fn())
}

// collectIDs returns the _id of every document in coll matching filter.
func collectIDs(ctx context.Context, coll *mongo.Collection, filter bson.M, op string) (map[primitive.ObjectID]struct{}, error) {
	cursor, err := coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, classify(op, err)
	}
	defer cursor.Close(ctx)

	ids := make(map[primitive.ObjectID]struct{})
	for cursor.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, classify(op, err)
		}
		ids[doc.ID] = struct{}{}
	}
	return ids, classify(op, cursor.Err())
}

// removeAndFloor builds an update pipeline stage that drops id from an array
// field and decrements its counter, never below zero.
func removeAndFloor(field, counter string, id primitive.ObjectID) bson.M {
	return bson.M{
		field: bson.M{"$setDifference": bson.A{bson.M{"$ifNull": bson.A{"$" + field, bson.A{}}}, bson.A{id}}},
		counter: bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{
			bson.M{"$ifNull": bson.A{"$" + counter, 0}}, 1,
		}}}},
	}
}

// pruneAndRecount builds a stage that removes ids from an array field and,
// if counter is non-empty, resets the counter to the resulting size.
func pruneAndRecount(field, counter string, ids []primitive.ObjectID) bson.D {
	if ids == nil {
		ids = []primitive.ObjectID{}
	}
	pruned := bson.M{"$setDifference": bson.A{bson.M{"$ifNull": bson.A{"$" + field, bson.A{}}}, ids}}
	set := bson.D{{Key: field, Value: pruned}}
	if counter != "" {
		set = append(set, bson.E{Key: counter, Value: bson.M{"$size": pruned}})
	}
	return set
}
