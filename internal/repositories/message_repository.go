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

// MessageRepository stores pairwise conversation history.
type MessageRepository interface {
	CreateMessage(ctx context.Context, message *models.Message) error
	GetMessageByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	GetConversation(ctx context.Context, a, b primitive.ObjectID, page, limit int) ([]models.Message, int64, error)
	// ToggleReaction applies the reaction toggle atomically and returns the updated message.
	ToggleReaction(ctx context.Context, messageID, userID primitive.ObjectID, emoji string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id primitive.ObjectID) error
	DeleteForUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

type mongoMessageRepository struct {
	collection *mongo.Collection
}

func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoMessageRepository{collection: db.Collection("messages")}
}

func (r *mongoMessageRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	message.ID = primitive.NewObjectID()
	message.ConversationKey = models.ConversationKey(message.SenderID, message.RecipientID)
	message.CreatedAt = time.Now().UTC()
	if message.Reactions == nil {
		message.Reactions = []models.Reaction{}
	}
	return retryOnce(ctx, "create message", func() error {
		_, err := r.collection.InsertOne(ctx, message)
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return err
	})
}

func (r *mongoMessageRepository) GetMessageByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var message models.Message
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&message); err != nil {
		return nil, classify("get message", err)
	}
	return &message, nil
}

func (r *mongoMessageRepository) GetConversation(ctx context.Context, a, b primitive.ObjectID, page, limit int) ([]models.Message, int64, error) {
	filter := bson.M{"conversation_key": models.ConversationKey(a, b)}
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, classify("count messages", err)
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page-1)*limit)).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, classify("find messages", err)
	}
	defer cursor.Close(ctx)

	messages := []models.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, 0, classify("decode messages", err)
	}
	return messages, total, nil
}

// ToggleReaction runs the whole toggle server-side in one update pipeline:
// drop the user's entry, and re-add it with the new emoji unless the user
// had reacted with exactly that emoji.
func (r *mongoMessageRepository) ToggleReaction(ctx context.Context, messageID, userID primitive.ObjectID, emoji string) (*models.Message, error) {
	current := bson.M{"$ifNull": bson.A{"$reactions", bson.A{}}}
	others := bson.M{"$filter": bson.M{
		"input": current,
		"as":    "r",
		"cond":  bson.M{"$ne": bson.A{"$$r.user_id", userID}},
	}}
	sameEmoji := bson.M{"$gt": bson.A{
		bson.M{"$size": bson.M{"$filter": bson.M{
			"input": current,
			"as":    "r",
			"cond": bson.M{"$and": bson.A{
				bson.M{"$eq": bson.A{"$$r.user_id", userID}},
				bson.M{"$eq": bson.A{"$$r.emoji", bson.M{"$literal": emoji}}},
			}},
		}}},
		0,
	}}
	entry := bson.M{"user_id": userID, "emoji": bson.M{"$literal": emoji}, "created_at": time.Now().UTC()}

	update := bson.A{bson.M{"$set": bson.M{
		"reactions": bson.M{"$cond": bson.A{
			sameEmoji,
			others,
			bson.M{"$concatArrays": bson.A{others, bson.A{entry}}},
		}},
	}}}

	var message models.Message
	err := retryOnce(ctx, "toggle reaction", func() error {
		return r.collection.FindOneAndUpdate(ctx, bson.M{"_id": messageID}, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&message)
	})
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *mongoMessageRepository) DeleteMessage(ctx context.Context, id primitive.ObjectID) error {
	return retryOnce(ctx, "delete message", func() error {
		res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return mongo.ErrNoDocuments
		}
		return nil
	})
}

func (r *mongoMessageRepository) DeleteForUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	var n int64
	err := retryOnce(ctx, "delete user messages", func() error {
		res, err := r.collection.DeleteMany(ctx, bson.M{"$or": bson.A{
			bson.M{"sender_id": userID},
			bson.M{"recipient_id": userID},
		}})
		if err != nil {
			return err
		}
		n = res.DeletedCount
		return nil
	})
	return n, err
}
