package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	CreateNotification(ctx context.Context, notification *models.Notification) error
	GetByRecipientID(ctx context.Context, recipientID primitive.ObjectID, page, limit int) ([]models.Notification, int64, error)
	GetUnreadCount(ctx context.Context, recipientID primitive.ObjectID) (int64, error)
	// MarkAsRead only touches the record if it belongs to recipientID.
	MarkAsRead(ctx context.Context, notificationID, recipientID primitive.ObjectID) error
	MarkAllAsRead(ctx context.Context, recipientID primitive.ObjectID) (int64, error)
	DeleteForUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

type mongoNotificationRepository struct {
	collection *mongo.Collection
}

func NewMongoNotificationRepository(db *mongo.Database) NotificationRepository {
	return &mongoNotificationRepository{collection: db.Collection("notifications")}
}

func (r *mongoNotificationRepository) CreateNotification(ctx context.Context, notification *models.Notification) error {
	if notification.ID.IsZero() {
		notification.ID = primitive.NewObjectID()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	return retryOnce(ctx, "create notification", func() error {
		_, err := r.collection.InsertOne(ctx, notification)
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return err
	})
}

func (r *mongoNotificationRepository) GetByRecipientID(ctx context.Context, recipientID primitive.ObjectID, page, limit int) ([]models.Notification, int64, error) {
	filter := bson.M{"recipient_id": recipientID}
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, classify("count notifications", err)
	}

	offset := int64((page - 1) * limit)
	cursor, err := r.collection.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(offset).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, classify("find notifications", err)
	}
	defer cursor.Close(ctx)

	notifications := []models.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, 0, classify("decode notifications", err)
	}
	return notifications, total, nil
}

func (r *mongoNotificationRepository) GetUnreadCount(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"recipient_id": recipientID, "read": false})
	return count, classify("count unread notifications", err)
}

func (r *mongoNotificationRepository) MarkAsRead(ctx context.Context, notificationID, recipientID primitive.ObjectID) error {
	return retryOnce(ctx, "mark notification read", func() error {
		res, err := r.collection.UpdateOne(ctx,
			bson.M{"_id": notificationID, "recipient_id": recipientID},
			bson.M{"$set": bson.M{"read": true}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return mongo.ErrNoDocuments
		}
		return nil
	})
}

func (r *mongoNotificationRepository) MarkAllAsRead(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	var n int64
	err := retryOnce(ctx, "mark all notifications read", func() error {
		res, err := r.collection.UpdateMany(ctx,
			bson.M{"recipient_id": recipientID, "read": false},
			bson.M{"$set": bson.M{"read": true}})
		if err != nil {
			return err
		}
		n = res.ModifiedCount
		return nil
	})
	return n, err
}

func (r *mongoNotificationRepository) DeleteForUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	var n int64
	err := retryOnce(ctx, "delete notifications", func() error {
		res, err := r.collection.DeleteMany(ctx, bson.M{"recipient_id": userID})
		if err != nil {
			return err
		}
		n = res.DeletedCount
		return nil
	})
	return n, err
}
