package repositories

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

const (
	fieldLikes     = "likes"
	fieldLikeCount = "like_count"
)

// LikeableItem is the projection the repair pass reads from posts and comments.
type LikeableItem struct {
	ID        primitive.ObjectID   `bson:"_id"`
	AuthorID  primitive.ObjectID   `bson:"author_id"`
	PostID    primitive.ObjectID   `bson:"post_id,omitempty"`
	Likes     []primitive.ObjectID `bson:"likes"`
	LikeCount int                  `bson:"like_count"`
}

// ContentScanner exposes a content collection to the repair pass.
type ContentScanner interface {
	Kind() string
	IDs(ctx context.Context) (map[primitive.ObjectID]struct{}, error)
	// ExistingIDs returns the subset of ids that have a document right now.
	ExistingIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]struct{}, error)
	ForEachItem(ctx context.Context, fn func(*LikeableItem) error) error
	ReconcileLikes(ctx context.Context, id primitive.ObjectID, remove []primitive.ObjectID) error
	DeleteItem(ctx context.Context, id primitive.ObjectID) error
}

// ContentCascade removes a deleted user's footprint from a content collection.
type ContentCascade interface {
	PullLikesBy(ctx context.Context, userID primitive.ObjectID) (int64, error)
	DeleteByAuthor(ctx context.Context, authorID primitive.ObjectID) (int64, error)
}

// likeableCollection holds the like-set logic shared by posts and comments.
type likeableCollection struct {
	kind       string
	collection *mongo.Collection
}

func (l likeableCollection) Kind() string { return l.kind }

// ToggleLike removes userID if present, otherwise adds it. Each branch is a
// single conditional update, so likes and like_count never diverge.
func (l likeableCollection) ToggleLike(ctx context.Context, itemID, userID primitive.ObjectID) (*models.LikeResult, error) {
	after := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{fieldLikeCount: 1})

	var doc struct {
		LikeCount int `bson:"like_count"`
	}

	err := retryOnce(ctx, "unlike "+l.kind, func() error {
		return l.collection.FindOneAndUpdate(ctx,
			bson.M{"_id": itemID, fieldLikes: userID},
			bson.A{bson.M{"$set": removeAndFloor(fieldLikes, fieldLikeCount, userID)}},
			after).Decode(&doc)
	})
	if err == nil {
		return &models.LikeResult{Liked: false, LikeCount: doc.LikeCount}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	err = retryOnce(ctx, "like "+l.kind, func() error {
		return l.collection.FindOneAndUpdate(ctx,
			bson.M{"_id": itemID, fieldLikes: bson.M{"$ne": userID}},
			bson.M{"$addToSet": bson.M{fieldLikes: userID}, "$inc": bson.M{fieldLikeCount: 1}},
			after).Decode(&doc)
	})
	if err == nil {
		return &models.LikeResult{Liked: true, LikeCount: doc.LikeCount}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// lost a race with a concurrent like from the same user, or the item is gone
	if err := l.collection.FindOne(ctx, bson.M{"_id": itemID},
		options.FindOne().SetProjection(bson.M{fieldLikeCount: 1})).Decode(&doc); err != nil {
		return nil, classify("get "+l.kind, err)
	}
	return &models.LikeResult{Liked: true, LikeCount: doc.LikeCount}, nil
}

func (l likeableCollection) IDs(ctx context.Context) (map[primitive.ObjectID]struct{}, error) {
	return collectIDs(ctx, l.collection, bson.M{}, "list "+l.kind+" ids")
}

func (l likeableCollection) ExistingIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]struct{}, error) {
	return collectIDs(ctx, l.collection, bson.M{"_id": bson.M{"$in": ids}}, "recheck "+l.kind+" ids")
}

func (l likeableCollection) ForEachItem(ctx context.Context, fn func(*LikeableItem) error) error {
	projection := bson.M{"author_id": 1, "post_id": 1, fieldLikes: 1, fieldLikeCount: 1}
	cursor, err := l.collection.Find(ctx, bson.M{}, options.Find().SetProjection(projection).SetNoCursorTimeout(true))
	if err != nil {
		return classify("scan "+l.kind, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var item LikeableItem
		if err := cursor.Decode(&item); err != nil {
			return classify("decode "+l.kind, err)
		}
		if err := fn(&item); err != nil {
			return err
		}
	}
	return classify("iterate "+l.kind, cursor.Err())
}

func (l likeableCollection) ReconcileLikes(ctx context.Context, id primitive.ObjectID, remove []primitive.ObjectID) error {
	stage := pruneAndRecount(fieldLikes, fieldLikeCount, remove)
	return retryOnce(ctx, "reconcile "+l.kind, func() error {
		_, err := l.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.A{bson.M{"$set": stage}})
		return err
	})
}

func (l likeableCollection) DeleteItem(ctx context.Context, id primitive.ObjectID) error {
	return retryOnce(ctx, "delete "+l.kind, func() error {
		_, err := l.collection.DeleteOne(ctx, bson.M{"_id": id})
		return err
	})
}

func (l likeableCollection) PullLikesBy(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	var n int64
	err := retryOnce(ctx, "pull "+l.kind+" likes", func() error {
		res, err := l.collection.UpdateMany(ctx,
			bson.M{fieldLikes: userID},
			bson.A{bson.M{"$set": removeAndFloor(fieldLikes, fieldLikeCount, userID)}})
		if err != nil {
			return err
		}
		n = res.ModifiedCount
		return nil
	})
	return n, err
}

func (l likeableCollection) DeleteByAuthor(ctx context.Context, authorID primitive.ObjectID) (int64, error) {
	var n int64
	err := retryOnce(ctx, "delete "+l.kind+" by author", func() error {
		res, err := l.collection.DeleteMany(ctx, bson.M{"author_id": authorID})
		if err != nil {
			return err
		}
		n = res.DeletedCount
		return nil
	})
	return n, err
}
