package services

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

// FollowState is the relationship of an ordered (viewer, target) pair.
type FollowState int

const (
	StateNone FollowState = iota
	StateRequested
	StateFollowing
)

func (s FollowState) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateFollowing:
		return "following"
	default:
		return "none"
	}
}

// Status renders the state the way the API reports it.
func (s FollowState) Status() models.FollowStatus {
	return models.FollowStatus{
		IsFollowing:  s == StateFollowing,
		HasRequested: s == StateRequested,
	}
}

// Transition is the effect of one toggle. Deltas apply to the target's
// follower count and the viewer's following count.
type Transition struct {
	From           FollowState
	To             FollowState
	FollowerDelta  int
	FollowingDelta int
	// Notify is the notification owed to the target, or "" for none.
	Notify models.NotificationType
}

// StateOf reads the pair's state from the target's document, which is
// written first by every graph mutation.
func StateOf(viewerID primitive.ObjectID, target *models.User) FollowState {
	switch {
	case target.HasFollower(viewerID):
		return StateFollowing
	case target.HasRequestFrom(viewerID):
		return StateRequested
	default:
		return StateNone
	}
}

// NextToggle returns the transition a follow toggle makes from the given state.
func NextToggle(from FollowState, targetPrivate bool) Transition {
	switch from {
	case StateFollowing:
		return Transition{From: from, To: StateNone, FollowerDelta: -1, FollowingDelta: -1}
	case StateRequested:
		return Transition{From: from, To: StateNone}
	}
	if targetPrivate {
		return Transition{From: from, To: StateRequested, Notify: models.NotificationFollowRequest}
	}
	return Transition{From: from, To: StateFollowing, FollowerDelta: 1, FollowingDelta: 1, Notify: models.NotificationFollow}
}

// Accept is the transition taken when a target approves a pending request.
func Accept() Transition {
	return Transition{From: StateRequested, To: StateFollowing, FollowerDelta: 1, FollowingDelta: 1}
}
