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

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetCommentByID(ctx context.Context, id primitive.ObjectID) (*models.Comment, error)
	GetCommentsByPost(ctx context.Context, postID primitive.ObjectID, skip, limit int64) ([]models.Comment, int64, error)
	ToggleLike(ctx context.Context, commentID, userID primitive.ObjectID) (*models.LikeResult, error)
}

type MongoCommentRepository struct {
	likeableCollection
}

func NewMongoCommentRepository(db *mongo.Database) *MongoCommentRepository {
	return &MongoCommentRepository{likeableCollection{kind: "comments", collection: db.Collection("comments")}}
}

func (r *MongoCommentRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	comment.ID = primitive.NewObjectID()
	comment.CreatedAt = time.Now().UTC()
	comment.Likes = []primitive.ObjectID{}
	comment.LikeCount = 0
	return retryOnce(ctx, "create comment", func() error {
		_, err := r.collection.InsertOne(ctx, comment)
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return err
	})
}

func (r *MongoCommentRepository) GetCommentByID(ctx context.Context, id primitive.ObjectID) (*models.Comment, error) {
	var comment models.Comment
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&comment); err != nil {
		return nil, classify("get comment", err)
	}
	return &comment, nil
}

// GetCommentsByPost returns a post's comments and replies, oldest first.
func (r *MongoCommentRepository) GetCommentsByPost(ctx context.Context, postID primitive.ObjectID, skip, limit int64) ([]models.Comment, int64, error) {
	filter := bson.M{"post_id": postID}
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, classify("count comments", err)
	}

	findOptions := options.Find().SetSkip(skip).SetLimit(limit).SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, classify("find comments", err)
	}
	defer cursor.Close(ctx)

	comments := []models.Comment{}
	if err = cursor.All(ctx, &comments); err != nil {
		return nil, 0, classify("decode comments", err)
	}
	return comments, total, nil
}
