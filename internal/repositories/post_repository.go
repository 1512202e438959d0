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

// PostRepository defines the interface for post data operations
type PostRepository interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPostByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
	GetPostsByAuthor(ctx context.Context, authorID primitive.ObjectID, skip, limit int64) ([]models.Post, int64, error)
	GetRecentPosts(ctx context.Context, skip, limit int64) ([]models.Post, error)
	GetPostsByAuthors(ctx context.Context, authorIDs []primitive.ObjectID, skip, limit int64) ([]models.Post, error)
	IncrementCommentCount(ctx context.Context, postID primitive.ObjectID, delta int) error
	ToggleLike(ctx context.Context, postID, userID primitive.ObjectID) (*models.LikeResult, error)
}

// MongoPostRepository implements PostRepository for MongoDB
type MongoPostRepository struct {
	likeableCollection
}

// NewMongoPostRepository creates a new MongoPostRepository
func NewMongoPostRepository(db *mongo.Database) *MongoPostRepository {
	return &MongoPostRepository{likeableCollection{kind: "posts", collection: db.Collection("posts")}}
}

func (r *MongoPostRepository) CreatePost(ctx context.Context, post *models.Post) error {
	post.ID = primitive.NewObjectID()
	post.CreatedAt = time.Now().UTC()
	post.UpdatedAt = post.CreatedAt
	post.Likes = []primitive.ObjectID{}
	post.LikeCount = 0
	return retryOnce(ctx, "create post", func() error {
		_, err := r.collection.InsertOne(ctx, post)
		if mongo.IsDuplicateKeyError(err) {
			// first attempt landed before the retry
			return nil
		}
		return err
	})
}

func (r *MongoPostRepository) GetPostByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	var post models.Post
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&post); err != nil {
		return nil, classify("get post", err)
	}
	return &post, nil
}

func (r *MongoPostRepository) GetPostsByAuthor(ctx context.Context, authorID primitive.ObjectID, skip, limit int64) ([]models.Post, int64, error) {
	filter := bson.M{"author_id": authorID}
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, classify("count posts", err)
	}
	posts, err := r.find(ctx, filter, skip, limit)
	return posts, total, err
}

func (r *MongoPostRepository) GetRecentPosts(ctx context.Context, skip, limit int64) ([]models.Post, error) {
	return r.find(ctx, bson.M{}, skip, limit)
}

func (r *MongoPostRepository) GetPostsByAuthors(ctx context.Context, authorIDs []primitive.ObjectID, skip, limit int64) ([]models.Post, error) {
	if len(authorIDs) == 0 {
		return []models.Post{}, nil
	}
	return r.find(ctx, bson.M{"author_id": bson.M{"$in": authorIDs}}, skip, limit)
}

func (r *MongoPostRepository) find(ctx context.Context, filter bson.M, skip, limit int64) ([]models.Post, error) {
	findOptions := options.Find().SetSkip(skip).SetLimit(limit).SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, classify("find posts", err)
	}
	defer cursor.Close(ctx)

	posts := []models.Post{}
	if err = cursor.All(ctx, &posts); err != nil {
		return nil, classify("decode posts", err)
	}
	return posts, nil
}

func (r *MongoPostRepository) IncrementCommentCount(ctx context.Context, postID primitive.ObjectID, delta int) error {
	return retryOnce(ctx, "increment comment count", func() error {
		_, err := r.collection.UpdateOne(ctx, bson.M{"_id": postID}, bson.M{"$inc": bson.M{"comment_count": delta}})
		return err
	})
}
