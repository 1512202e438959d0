package repositories

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

// testDatabase connects to MONGO_TEST_URI and returns a throwaway database
// that is dropped when the test ends.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mongo integration test in short mode")
	}
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database("socialgraph_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	require.NoError(t, EnsureIndexes(ctx, db))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func seedUsers(t *testing.T, repo *MongoUserRepository, names ...string) []primitive.ObjectID {
	t.Helper()
	ids := make([]primitive.ObjectID, len(names))
	for i, name := range names {
		u := &models.User{Username: name, DisplayName: name}
		require.NoError(t, repo.CreateUser(context.Background(), u))
		ids[i] = u.ID
	}
	return ids
}

func loadUser(t *testing.T, repo *MongoUserRepository, id primitive.ObjectID) *models.User {
	t.Helper()
	u, err := repo.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func assertConsistent(t *testing.T, u *models.User) {
	t.Helper()
	assert.Equal(t, len(u.Followers), u.FollowerCount, "%s follower_count", u.Username)
	assert.Equal(t, len(u.Following), u.FollowingCount, "%s following_count", u.Username)
}

func TestMongoUserRepository_FollowIsIdempotent(t *testing.T) {
	repo := NewMongoUserRepository(testDatabase(t))
	ctx := context.Background()
	ids := seedUsers(t, repo, "alice", "bob")
	alice, bob := ids[0], ids[1]

	changed, err := repo.Follow(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Follow(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, changed)

	a, b := loadUser(t, repo, alice), loadUser(t, repo, bob)
	assert.Equal(t, []primitive.ObjectID{bob}, a.Following)
	assert.Equal(t, []primitive.ObjectID{alice}, b.Followers)
	assertConsistent(t, a)
	assertConsistent(t, b)

	changed, err = repo.Unfollow(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.Unfollow(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, changed)

	b = loadUser(t, repo, bob)
	assert.Empty(t, b.Followers)
	assert.Zero(t, b.FollowerCount)
}

func TestMongoUserRepository_ConcurrentFollowersKeepCounts(t *testing.T) {
	repo := NewMongoUserRepository(testDatabase(t))
	ctx := context.Background()

	names := []string{"star"}
	for i := 0; i < 20; i++ {
		names = append(names, "fan"+string(rune('a'+i)))
	}
	ids := seedUsers(t, repo, names...)
	star, fans := ids[0], ids[1:]

	g, gctx := errgroup.WithContext(ctx)
	for _, fan := range fans {
		fan := fan
		// each fan races a duplicate follow against itself
		for i := 0; i < 2; i++ {
			g.Go(func() error {
				_, err := repo.Follow(gctx, fan, star)
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	s := loadUser(t, repo, star)
	assert.Len(t, s.Followers, len(fans))
	assertConsistent(t, s)
	for _, fan := range fans {
		f := loadUser(t, repo, fan)
		assert.Equal(t, 1, f.FollowingCount)
	}
}

func TestMongoUserRepository_RequestLifecycle(t *testing.T) {
	repo := NewMongoUserRepository(testDatabase(t))
	ctx := context.Background()
	ids := seedUsers(t, repo, "owner", "asker", "other")
	owner, asker, other := ids[0], ids[1], ids[2]
	require.NoError(t, repo.SetPrivacy(ctx, owner, true))

	added, err := repo.RequestFollow(ctx, asker, owner)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = repo.RequestFollow(ctx, asker, owner)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = repo.RequestFollow(ctx, other, owner)
	require.NoError(t, err)

	accepted, err := repo.AcceptRequest(ctx, owner, asker)
	require.NoError(t, err)
	assert.True(t, accepted)
	accepted, err = repo.AcceptRequest(ctx, owner, asker)
	require.NoError(t, err)
	assert.False(t, accepted)

	declined, err := repo.DeclineRequest(ctx, owner, other)
	require.NoError(t, err)
	assert.True(t, declined)

	o := loadUser(t, repo, owner)
	assert.Empty(t, o.FollowRequests)
	assert.Equal(t, []primitive.ObjectID{asker}, o.Followers)
	assertConsistent(t, o)
	assert.Equal(t, []primitive.ObjectID{owner}, loadUser(t, repo, asker).Following)

	// an existing follower cannot be re-requested
	added, err = repo.RequestFollow(ctx, asker, owner)
	require.NoError(t, err)
	assert.False(t, added)
}

func TestMongoUserRepository_RemoveUserEverywhere(t *testing.T) {
	repo := NewMongoUserRepository(testDatabase(t))
	ctx := context.Background()
	ids := seedUsers(t, repo, "gone", "friend", "fan", "private")
	gone, friend, fan, private := ids[0], ids[1], ids[2], ids[3]

	for _, edge := range [][2]primitive.ObjectID{{gone, friend}, {friend, gone}, {fan, gone}} {
		_, err := repo.Follow(ctx, edge[0], edge[1])
		require.NoError(t, err)
	}
	_, err := repo.RequestFollow(ctx, gone, private)
	require.NoError(t, err)

	result, err := repo.RemoveUserEverywhere(ctx, gone)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.FollowersPruned)
	assert.Equal(t, int64(2), result.FollowingPruned)
	assert.Equal(t, int64(1), result.RequestsPruned)

	_, err = repo.GetUserByID(ctx, gone)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, id := range []primitive.ObjectID{friend, fan, private} {
		u := loadUser(t, repo, id)
		assert.NotContains(t, u.Followers, gone)
		assert.NotContains(t, u.Following, gone)
		assert.NotContains(t, u.FollowRequests, gone)
		assertConsistent(t, u)
	}
}

func TestMongoUserRepository_ReconcileUser(t *testing.T) {
	db := testDatabase(t)
	repo := NewMongoUserRepository(db)
	ctx := context.Background()
	ids := seedUsers(t, repo, "drifted", "real")
	drifted, genuine := ids[0], ids[1]
	ghost := primitive.NewObjectID()

	_, err := db.Collection("users").UpdateOne(ctx, bson.M{"_id": drifted}, bson.M{"$set": bson.M{
		models.FieldFollowers:      bson.A{genuine, ghost},
		models.FieldFollowerCount:  7,
		models.FieldFollowRequests: bson.A{ghost},
	}})
	require.NoError(t, err)

	require.NoError(t, repo.ReconcileUser(ctx, drifted, map[string][]primitive.ObjectID{
		models.FieldFollowers:      {ghost},
		models.FieldFollowRequests: {ghost},
	}))

	u := loadUser(t, repo, drifted)
	assert.Equal(t, []primitive.ObjectID{genuine}, u.Followers)
	assert.Equal(t, 1, u.FollowerCount)
	assert.Empty(t, u.FollowRequests)

	// a user deleted between scan and fix is not an error
	assert.NoError(t, repo.ReconcileUser(ctx, ghost, nil))
}

func TestMongoUserRepository_UniqueIdentities(t *testing.T) {
	repo := NewMongoUserRepository(testDatabase(t))
	ctx := context.Background()

	require.NoError(t, repo.CreateUser(ctx, &models.User{Username: "one", FirebaseUID: "uid-1"}))
	err := repo.CreateUser(ctx, &models.User{Username: "two", FirebaseUID: "uid-1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")

	u, err := repo.GetUserByFirebaseUID(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, "one", u.Username)

	err = repo.CreateUser(ctx, &models.User{Username: "one"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")
}

func TestMongoUserRepository_ExistingUserIDs(t *testing.T) {
	repo := NewMongoUserRepository(testDatabase(t))
	ids := seedUsers(t, repo, "alice")
	ghost := primitive.NewObjectID()

	found, err := repo.ExistingUserIDs(context.Background(), []primitive.ObjectID{ids[0], ghost})

	require.NoError(t, err)
	assert.Equal(t, map[primitive.ObjectID]struct{}{ids[0]: {}}, found)
}
