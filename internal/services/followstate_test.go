package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

func TestNextToggle(t *testing.T) {
	tests := []struct {
		name    string
		from    FollowState
		private bool
		want    Transition
	}{
		{
			name: "public target is followed directly",
			from: StateNone,
			want: Transition{From: StateNone, To: StateFollowing, FollowerDelta: 1, FollowingDelta: 1, Notify: models.NotificationFollow},
		},
		{
			name:    "private target gets a request",
			from:    StateNone,
			private: true,
			want:    Transition{From: StateNone, To: StateRequested, Notify: models.NotificationFollowRequest},
		},
		{
			name:    "pending request is cancelled",
			from:    StateRequested,
			private: true,
			want:    Transition{From: StateRequested, To: StateNone},
		},
		{
			name: "following is undone",
			from: StateFollowing,
			want: Transition{From: StateFollowing, To: StateNone, FollowerDelta: -1, FollowingDelta: -1},
		},
		{
			name:    "following a now-private target is still undone",
			from:    StateFollowing,
			private: true,
			want:    Transition{From: StateFollowing, To: StateNone, FollowerDelta: -1, FollowingDelta: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextToggle(tt.from, tt.private))
		})
	}
}

func TestNextToggle_RoundTripIsNetZero(t *testing.T) {
	for _, private := range []bool{false, true} {
		first := NextToggle(StateNone, private)
		second := NextToggle(first.To, private)

		assert.Equal(t, StateNone, second.To)
		assert.Zero(t, first.FollowerDelta+second.FollowerDelta)
		assert.Zero(t, first.FollowingDelta+second.FollowingDelta)
	}
}

func TestStateOf(t *testing.T) {
	viewer := primitive.NewObjectID()

	assert.Equal(t, StateNone, StateOf(viewer, &models.User{}))
	assert.Equal(t, StateRequested, StateOf(viewer, &models.User{FollowRequests: []primitive.ObjectID{viewer}}))
	assert.Equal(t, StateFollowing, StateOf(viewer, &models.User{Followers: []primitive.ObjectID{viewer}}))
	// a stale request next to an existing edge still reads as following
	assert.Equal(t, StateFollowing, StateOf(viewer, &models.User{
		Followers:      []primitive.ObjectID{viewer},
		FollowRequests: []primitive.ObjectID{viewer},
	}))
}

func TestFollowState_Status(t *testing.T) {
	assert.Equal(t, models.FollowStatus{}, StateNone.Status())
	assert.Equal(t, models.FollowStatus{HasRequested: true}, StateRequested.Status())
	assert.Equal(t, models.FollowStatus{IsFollowing: true}, StateFollowing.Status())
	assert.Equal(t, "requested", StateRequested.String())
}

func TestPairLocks_SameStripeForBothOrders(t *testing.T) {
	locks := &pairLocks{}
	a, b := primitive.NewObjectID(), primitive.NewObjectID()

	unlock := locks.lock(a, b)
	acquired := make(chan struct{})
	go func() {
		locks.lock(b, a)()
		close(acquired)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("reversed pair acquired the lock while it was held")
	default:
	}
	unlock()
	<-acquired
}
