package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

func seedPost(t *testing.T, repo *MongoPostRepository) primitive.ObjectID {
	t.Helper()
	post := &models.Post{AuthorID: primitive.NewObjectID(), Content: "hello"}
	require.NoError(t, repo.CreatePost(context.Background(), post))
	return post.ID
}

func assertLikesConsistent(t *testing.T, post *models.Post) {
	t.Helper()
	seen := make(map[primitive.ObjectID]bool, len(post.Likes))
	for _, id := range post.Likes {
		assert.False(t, seen[id], "duplicate like from %s", id.Hex())
		seen[id] = true
	}
	assert.Equal(t, len(post.Likes), post.LikeCount)
}

func TestMongoPostRepository_ToggleLike(t *testing.T) {
	repo := NewMongoPostRepository(testDatabase(t))
	ctx := context.Background()
	postID := seedPost(t, repo)
	alice, bob := primitive.NewObjectID(), primitive.NewObjectID()

	res, err := repo.ToggleLike(ctx, postID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.LikeResult{Liked: true, LikeCount: 1}, *res)

	res, err = repo.ToggleLike(ctx, postID, bob)
	require.NoError(t, err)
	assert.Equal(t, models.LikeResult{Liked: true, LikeCount: 2}, *res)

	res, err = repo.ToggleLike(ctx, postID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.LikeResult{Liked: false, LikeCount: 1}, *res)

	post, err := repo.GetPostByID(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{bob}, post.Likes)
	assertLikesConsistent(t, post)
}

func TestMongoPostRepository_ToggleLikeMissingPost(t *testing.T) {
	repo := NewMongoPostRepository(testDatabase(t))

	_, err := repo.ToggleLike(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoPostRepository_ConcurrentLikes(t *testing.T) {
	repo := NewMongoPostRepository(testDatabase(t))
	ctx := context.Background()

	tests := []struct {
		name    string
		likers  func(i int) primitive.ObjectID
		toggles int
		check   func(t *testing.T, post *models.Post)
	}{
		{
			name:    "distinct users",
			likers:  func(int) primitive.ObjectID { return primitive.NewObjectID() },
			toggles: 20,
			check: func(t *testing.T, post *models.Post) {
				assert.Equal(t, 20, post.LikeCount)
			},
		},
		{
			name: "same user",
			likers: func() func(int) primitive.ObjectID {
				same := primitive.NewObjectID()
				return func(int) primitive.ObjectID { return same }
			}(),
			toggles: 15,
			check: func(t *testing.T, post *models.Post) {
				assert.LessOrEqual(t, post.LikeCount, 1)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			postID := seedPost(t, repo)

			var g errgroup.Group
			for i := 0; i < tt.toggles; i++ {
				liker := tt.likers(i)
				g.Go(func() error {
					_, err := repo.ToggleLike(ctx, postID, liker)
					return err
				})
			}
			require.NoError(t, g.Wait())

			post, err := repo.GetPostByID(ctx, postID)
			require.NoError(t, err)
			assertLikesConsistent(t, post)
			tt.check(t, post)
		})
	}
}

func TestMongoPostRepository_UnlikeNeverGoesNegative(t *testing.T) {
	repo := NewMongoPostRepository(testDatabase(t))
	ctx := context.Background()
	postID := seedPost(t, repo)
	alice := primitive.NewObjectID()

	// drifted document: a like in the set but the counter already at zero
	_, err := repo.collection.UpdateOne(ctx, bson.M{"_id": postID},
		bson.M{"$set": bson.M{fieldLikes: bson.A{alice}, fieldLikeCount: 0}})
	require.NoError(t, err)

	res, err := repo.ToggleLike(ctx, postID, alice)

	require.NoError(t, err)
	assert.False(t, res.Liked)
	assert.Zero(t, res.LikeCount)
}

func TestMongoCommentRepository_ToggleLike(t *testing.T) {
	repo := NewMongoCommentRepository(testDatabase(t))
	ctx := context.Background()
	comment := &models.Comment{PostID: primitive.NewObjectID(), AuthorID: primitive.NewObjectID(), Content: "nice"}
	require.NoError(t, repo.CreateComment(ctx, comment))
	carol := primitive.NewObjectID()

	res, err := repo.ToggleLike(ctx, comment.ID, carol)
	require.NoError(t, err)
	assert.True(t, res.Liked)

	res, err = repo.ToggleLike(ctx, comment.ID, carol)
	require.NoError(t, err)
	assert.Equal(t, models.LikeResult{Liked: false, LikeCount: 0}, *res)
}

func TestLikeableCollection_ExistingIDs(t *testing.T) {
	repo := NewMongoPostRepository(testDatabase(t))
	kept := seedPost(t, repo)

	found, err := repo.ExistingIDs(context.Background(), []primitive.ObjectID{kept, primitive.NewObjectID()})

	require.NoError(t, err)
	assert.Equal(t, map[primitive.ObjectID]struct{}{kept: {}}, found)
}

func TestLikeableCollection_ReconcileLikesMissingItem(t *testing.T) {
	repo := NewMongoPostRepository(testDatabase(t))

	err := repo.ReconcileLikes(context.Background(), primitive.NewObjectID(), []primitive.ObjectID{primitive.NewObjectID()})

	assert.NoError(t, err)
}
