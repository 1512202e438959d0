package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	apperrors "github.com/anonto42/nano-midea/socialgraph/pkg/errors"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

// UserRepository defines identity reads and profile writes.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetUserByFirebaseUID(ctx context.Context, uid string) (*models.User, error)
	// GetUsersByIDs returns the users that still exist, in the order of ids.
	GetUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	SetPrivacy(ctx context.Context, id primitive.ObjectID, private bool) error
}

// GraphStore is the only place follow edges and their counters change. Every
// method is a conditional update, so replaying one is a no-op and the bool
// result tells whether anything changed.
type GraphStore interface {
	Follow(ctx context.Context, followerID, targetID primitive.ObjectID) (bool, error)
	Unfollow(ctx context.Context, followerID, targetID primitive.ObjectID) (bool, error)
	RequestFollow(ctx context.Context, requesterID, targetID primitive.ObjectID) (bool, error)
	// CancelRequest removes requesterID from the target's pending list only.
	CancelRequest(ctx context.Context, requesterID, targetID primitive.ObjectID) (bool, error)
	AcceptRequest(ctx context.Context, targetID, requesterID primitive.ObjectID) (bool, error)
	DeclineRequest(ctx context.Context, targetID, requesterID primitive.ObjectID) (bool, error)
	// RemoveUserEverywhere deletes the user and strips its id from every other user's sets.
	RemoveUserEverywhere(ctx context.Context, userID primitive.ObjectID) (*CascadeResult, error)
}

// CascadeResult counts the documents touched by a deletion cascade.
type CascadeResult struct {
	FollowersPruned int64 `json:"followersPruned"`
	FollowingPruned int64 `json:"followingPruned"`
	RequestsPruned  int64 `json:"requestsPruned"`
}

// UserGraphScanner is what the repair pass needs from the user collection.
type UserGraphScanner interface {
	UserIDs(ctx context.Context) (map[primitive.ObjectID]struct{}, error)
	// ExistingUserIDs returns the subset of ids that have a user document right now.
	ExistingUserIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]struct{}, error)
	ForEachUser(ctx context.Context, fn func(*models.User) error) error
	// ReconcileUser removes the given ids from each set and recounts the counters.
	ReconcileUser(ctx context.Context, id primitive.ObjectID, remove map[string][]primitive.ObjectID) error
}

// MongoUserRepository implements UserRepository, GraphStore and UserGraphScanner.
type MongoUserRepository struct {
	collection *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{collection: db.Collection("users")}
}

func (r *MongoUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	// sets must be arrays, not null, for $addToSet to apply
	if user.Followers == nil {
		user.Followers = []primitive.ObjectID{}
	}
	if user.Following == nil {
		user.Following = []primitive.ObjectID{}
	}
	if user.FollowRequests == nil {
		user.FollowRequests = []primitive.ObjectID{}
	}
	user.FollowerCount, user.FollowingCount = len(user.Followers), len(user.Following)
	return retryOnce(ctx, "create user", func() error {
		_, err := r.collection.InsertOne(ctx, user)
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.NewConflict("username or firebase account already taken")
		}
		return err
	})
}

func (r *MongoUserRepository) GetUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, classify("get user", err)
	}
	return &user, nil
}

func (r *MongoUserRepository) GetUserByFirebaseUID(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	if err := r.collection.FindOne(ctx, bson.M{"firebase_uid": uid}).Decode(&user); err != nil {
		return nil, classify("get user by firebase uid", err)
	}
	return &user, nil
}

func (r *MongoUserRepository) GetUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, classify("get users", err)
	}
	defer cursor.Close(ctx)

	var found []models.User
	if err = cursor.All(ctx, &found); err != nil {
		return nil, classify("decode users", err)
	}

	byID := make(map[primitive.ObjectID]models.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	ordered := make([]models.User, 0, len(found))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			ordered = append(ordered, u)
		}
	}
	return ordered, nil
}

func (r *MongoUserRepository) SetPrivacy(ctx context.Context, id primitive.ObjectID, private bool) error {
	return retryOnce(ctx, "set privacy", func() error {
		res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id},
			bson.M{"$set": bson.M{"is_private": private, "updated_at": time.Now().UTC()}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return mongo.ErrNoDocuments
		}
		return nil
	})
}

// addMember adds id to field and bumps counter, only if id is not already present.
func (r *MongoUserRepository) addMember(ctx context.Context, op string, docID primitive.ObjectID, field, counter string, id primitive.ObjectID) (bool, error) {
	var modified bool
	err := retryOnce(ctx, op, func() error {
		res, err := r.collection.UpdateOne(ctx,
			bson.M{"_id": docID, field: bson.M{"$ne": id}},
			bson.M{
				"$addToSet": bson.M{field: id},
				"$inc":      bson.M{counter: 1},
				"$set":      bson.M{"updated_at": time.Now().UTC()},
			})
		if err != nil {
			return err
		}
		modified = res.ModifiedCount > 0
		return nil
	})
	return modified, err
}

// removeMember drops id from field and decrements counter, only if id is present.
func (r *MongoUserRepository) removeMember(ctx context.Context, op string, docID primitive.ObjectID, field, counter string, id primitive.ObjectID) (bool, error) {
	var modified bool
	err := retryOnce(ctx, op, func() error {
		stage := removeAndFloor(field, counter, id)
		stage["updated_at"] = time.Now().UTC()
		res, err := r.collection.UpdateOne(ctx,
			bson.M{"_id": docID, field: id},
			bson.A{bson.M{"$set": stage}})
		if err != nil {
			return err
		}
		modified = res.ModifiedCount > 0
		return nil
	})
	return modified, err
}

// Follow writes the target's side first, then the follower's side, undoing
// the first write if the second one fails.
func (r *MongoUserRepository) Follow(ctx context.Context, followerID, targetID primitive.ObjectID) (bool, error) {
	addedFollower, err := r.addMember(ctx, "follow: target side", targetID, models.FieldFollowers, models.FieldFollowerCount, followerID)
	if err != nil {
		return false, err
	}
	addedFollowing, err := r.addMember(ctx, "follow: follower side", followerID, models.FieldFollowing, models.FieldFollowingCount, targetID)
	if err != nil {
		if addedFollower {
			r.compensate("follow", func(ctx context.Context) error {
				_, err := r.removeMember(ctx, "follow: undo", targetID, models.FieldFollowers, models.FieldFollowerCount, followerID)
				return err
			})
		}
		return false, err
	}
	return addedFollower || addedFollowing, nil
}

func (r *MongoUserRepository) Unfollow(ctx context.Context, followerID, targetID primitive.ObjectID) (bool, error) {
	removedFollower, err := r.removeMember(ctx, "unfollow: target side", targetID, models.FieldFollowers, models.FieldFollowerCount, followerID)
	if err != nil {
		return false, err
	}
	removedFollowing, err := r.removeMember(ctx, "unfollow: follower side", followerID, models.FieldFollowing, models.FieldFollowingCount, targetID)
	if err != nil {
		if removedFollower {
			r.compensate("unfollow", func(ctx context.Context) error {
				_, err := r.addMember(ctx, "unfollow: undo", targetID, models.FieldFollowers, models.FieldFollowerCount, followerID)
				return err
			})
		}
		return false, err
	}
	return removedFollower || removedFollowing, nil
}

func (r *MongoUserRepository) RequestFollow(ctx context.Context, requesterID, targetID primitive.ObjectID) (bool, error) {
	var modified bool
	err := retryOnce(ctx, "request follow", func() error {
		res, err := r.collection.UpdateOne(ctx,
			bson.M{"_id": targetID, models.FieldFollowRequests: bson.M{"$ne": requesterID}, models.FieldFollowers: bson.M{"$ne": requesterID}},
			bson.M{
				"$addToSet": bson.M{models.FieldFollowRequests: requesterID},
				"$set":      bson.M{"updated_at": time.Now().UTC()},
			})
		if err != nil {
			return err
		}
		modified = res.ModifiedCount > 0
		return nil
	})
	return modified, err
}

func (r *MongoUserRepository) pullRequest(ctx context.Context, op string, targetID, requesterID primitive.ObjectID) (bool, error) {
	var modified bool
	err := retryOnce(ctx, op, func() error {
		res, err := r.collection.UpdateOne(ctx,
			bson.M{"_id": targetID, models.FieldFollowRequests: requesterID},
			bson.M{
				"$pull": bson.M{models.FieldFollowRequests: requesterID},
				"$set":  bson.M{"updated_at": time.Now().UTC()},
			})
		if err != nil {
			return err
		}
		modified = res.ModifiedCount > 0
		return nil
	})
	return modified, err
}

func (r *MongoUserRepository) CancelRequest(ctx context.Context, requesterID, targetID primitive.ObjectID) (bool, error) {
	return r.pullRequest(ctx, "cancel request", targetID, requesterID)
}

func (r *MongoUserRepository) DeclineRequest(ctx context.Context, targetID, requesterID primitive.ObjectID) (bool, error) {
	return r.pullRequest(ctx, "decline request", targetID, requesterID)
}

// AcceptRequest moves requesterID from the target's pending list into its
// followers in one update, then records the edge on the requester.
func (r *MongoUserRepository) AcceptRequest(ctx context.Context, targetID, requesterID primitive.ObjectID) (bool, error) {
	var promoted bool
	err := retryOnce(ctx, "accept request: target side", func() error {
		res, err := r.collection.UpdateOne(ctx,
			bson.M{"_id": targetID, models.FieldFollowRequests: requesterID, models.FieldFollowers: bson.M{"$ne": requesterID}},
			bson.M{
				"$pull":     bson.M{models.FieldFollowRequests: requesterID},
				"$addToSet": bson.M{models.FieldFollowers: requesterID},
				"$inc":      bson.M{models.FieldFollowerCount: 1},
				"$set":      bson.M{"updated_at": time.Now().UTC()},
			})
		if err != nil {
			return err
		}
		promoted = res.ModifiedCount > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if !promoted {
		// already a follower with a stale request: just clear the request
		cleared, err := r.pullRequest(ctx, "accept request: clear stale", targetID, requesterID)
		if err != nil || !cleared {
			return false, err
		}
	}

	if _, err := r.addMember(ctx, "accept request: requester side", requesterID, models.FieldFollowing, models.FieldFollowingCount, targetID); err != nil {
		if promoted {
			r.compensate("accept request", func(ctx context.Context) error {
				return classify("accept request: undo", r.restoreRequest(ctx, targetID, requesterID))
			})
		}
		return false, err
	}
	return true, nil
}

func (r *MongoUserRepository) restoreRequest(ctx context.Context, targetID, requesterID primitive.ObjectID) error {
	stage := removeAndFloor(models.FieldFollowers, models.FieldFollowerCount, requesterID)
	stage[models.FieldFollowRequests] = bson.M{"$setUnion": bson.A{
		bson.M{"$ifNull": bson.A{"$" + models.FieldFollowRequests, bson.A{}}}, bson.A{requesterID},
	}}
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": targetID, models.FieldFollowers: requesterID},
		bson.A{bson.M{"$set": stage}})
	return err
}

// compensate runs an undo step on a fresh context so a cancelled request
// does not also cancel the cleanup. A failed undo is left for the repair pass.
func (r *MongoUserRepository) compensate(op string, undo func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := undo(ctx); err != nil {
		logger.Named("graph").Warn("compensation failed, edge left for repair",
			zap.String("op", op), zap.Error(err))
	}
}

func (r *MongoUserRepository) RemoveUserEverywhere(ctx context.Context, userID primitive.ObjectID) (*CascadeResult, error) {
	err := retryOnce(ctx, "delete user", func() error {
		_, err := r.collection.DeleteOne(ctx, bson.M{"_id": userID})
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &CascadeResult{}
	now := time.Now().UTC()

	for _, step := range []struct {
		field, counter string
		count          *int64
	}{
		{models.FieldFollowers, models.FieldFollowerCount, &result.FollowersPruned},
		{models.FieldFollowing, models.FieldFollowingCount, &result.FollowingPruned},
	} {
		stage := removeAndFloor(step.field, step.counter, userID)
		stage["updated_at"] = now
		err := retryOnce(ctx, "cascade "+step.field, func() error {
			res, err := r.collection.UpdateMany(ctx, bson.M{step.field: userID}, bson.A{bson.M{"$set": stage}})
			if err != nil {
				return err
			}
			*step.count = res.ModifiedCount
			return nil
		})
		if err != nil {
			return result, err
		}
	}

	err = retryOnce(ctx, "cascade follow_requests", func() error {
		res, err := r.collection.UpdateMany(ctx,
			bson.M{models.FieldFollowRequests: userID},
			bson.M{"$pull": bson.M{models.FieldFollowRequests: userID}, "$set": bson.M{"updated_at": now}})
		if err != nil {
			return err
		}
		result.RequestsPruned = res.ModifiedCount
		return nil
	})
	return result, err
}

func (r *MongoUserRepository) UserIDs(ctx context.Context) (map[primitive.ObjectID]struct{}, error) {
	return collectIDs(ctx, r.collection, bson.M{}, "list user ids")
}

func (r *MongoUserRepository) ExistingUserIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]struct{}, error) {
	return collectIDs(ctx, r.collection, bson.M{"_id": bson.M{"$in": ids}}, "recheck user ids")
}

func (r *MongoUserRepository) ForEachUser(ctx context.Context, fn func(*models.User) error) error {
	projection := bson.M{
		models.FieldFollowers: 1, models.FieldFollowing: 1, models.FieldFollowRequests: 1,
		models.FieldFollowerCount: 1, models.FieldFollowingCount: 1,
	}
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetProjection(projection).SetNoCursorTimeout(true))
	if err != nil {
		return classify("scan users", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			return classify("decode user", err)
		}
		if err := fn(&user); err != nil {
			return err
		}
	}
	return classify("iterate users", cursor.Err())
}

func (r *MongoUserRepository) ReconcileUser(ctx context.Context, id primitive.ObjectID, remove map[string][]primitive.ObjectID) error {
	stage := bson.D{}
	stage = append(stage, pruneAndRecount(models.FieldFollowers, models.FieldFollowerCount, remove[models.FieldFollowers])...)
	stage = append(stage, pruneAndRecount(models.FieldFollowing, models.FieldFollowingCount, remove[models.FieldFollowing])...)
	stage = append(stage, pruneAndRecount(models.FieldFollowRequests, "", remove[models.FieldFollowRequests])...)
	stage = append(stage, bson.E{Key: "updated_at", Value: time.Now().UTC()})

	// a user deleted since the scan matches nothing, which is fine
	return retryOnce(ctx, "reconcile user", func() error {
		_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.A{bson.M{"$set": stage}})
		return err
	})
}
