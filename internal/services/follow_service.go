package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/realtime"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

// FollowService drives the follow state machine against the graph store.
type FollowService struct {
	users     repositories.UserRepository
	graph     repositories.GraphStore
	notifier  Notifier
	publisher realtime.Publisher
	locks     *pairLocks
	log       *zap.Logger
}

func NewFollowService(users repositories.UserRepository, graph repositories.GraphStore, notifier Notifier, publisher realtime.Publisher) *FollowService {
	return &FollowService{
		users:     users,
		graph:     graph,
		notifier:  notifier,
		publisher: publisher,
		locks:     &pairLocks{},
		log:       logger.Named("follow"),
	}
}

func (s *FollowService) loadPair(ctx context.Context, viewerID, targetID primitive.ObjectID) (*models.User, error) {
	if _, err := s.users.GetUserByID(ctx, viewerID); err != nil {
		if isNotFound(err) {
			return nil, ErrAccountGone
		}
		return nil, err
	}
	target, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return target, nil
}

// ToggleFollow moves the (viewer, target) pair one step through the state
// machine and returns the resulting status.
func (s *FollowService) ToggleFollow(ctx context.Context, viewerID, targetID primitive.ObjectID) (*models.FollowStatus, error) {
	if viewerID == targetID {
		return nil, ErrSelfFollow
	}

	unlock := s.locks.lock(viewerID, targetID)
	defer unlock()

	target, err := s.loadPair(ctx, viewerID, targetID)
	if err != nil {
		return nil, err
	}

	t := NextToggle(StateOf(viewerID, target), target.IsPrivate)

	var changed bool
	switch {
	case t.From == StateFollowing:
		changed, err = s.graph.Unfollow(ctx, viewerID, targetID)
	case t.From == StateRequested:
		changed, err = s.graph.CancelRequest(ctx, viewerID, targetID)
	case t.To == StateRequested:
		changed, err = s.graph.RequestFollow(ctx, viewerID, targetID)
	default:
		changed, err = s.graph.Follow(ctx, viewerID, targetID)
	}
	if err != nil {
		return nil, err
	}

	s.log.Debug("follow toggled",
		zap.String("viewer_id", viewerID.Hex()),
		zap.String("target_id", targetID.Hex()),
		zap.Stringer("from", t.From),
		zap.Stringer("to", t.To),
		zap.Bool("changed", changed))

	if changed && t.Notify != "" {
		emitQuietly(ctx, s.notifier, s.log, Emission{Type: t.Notify, Recipient: targetID, Sender: &viewerID})
	}

	status := t.To.Status()
	return &status, nil
}

// Status reports the relationship without changing it.
func (s *FollowService) Status(ctx context.Context, viewerID, targetID primitive.ObjectID) (*models.FollowStatus, error) {
	target, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	status := StateOf(viewerID, target).Status()
	return &status, nil
}

// AcceptRequest lets owner approve requesterID's pending request.
func (s *FollowService) AcceptRequest(ctx context.Context, ownerID, requesterID primitive.ObjectID) error {
	if ownerID == requesterID {
		return ErrSelfAction
	}
	unlock := s.locks.lock(ownerID, requesterID)
	defer unlock()

	accepted, err := s.graph.AcceptRequest(ctx, ownerID, requesterID)
	if err != nil {
		return err
	}
	if !accepted {
		return ErrNoPendingRequest
	}
	s.publisher.Publish(ctx, requesterID.Hex(), realtime.EventRequestAccepted, models.RequestAcceptedEvent{UserID: ownerID})
	return nil
}

// DeclineRequest drops requesterID's pending request; nothing else changes.
func (s *FollowService) DeclineRequest(ctx context.Context, ownerID, requesterID primitive.ObjectID) error {
	if ownerID == requesterID {
		return ErrSelfAction
	}
	unlock := s.locks.lock(ownerID, requesterID)
	defer unlock()

	declined, err := s.graph.DeclineRequest(ctx, ownerID, requesterID)
	if err != nil {
		return err
	}
	if !declined {
		return ErrNoPendingRequest
	}
	return nil
}

// RemoveFollower ends followerID's follow of owner without notifying anyone.
func (s *FollowService) RemoveFollower(ctx context.Context, ownerID, followerID primitive.ObjectID) error {
	if ownerID == followerID {
		return ErrSelfAction
	}
	unlock := s.locks.lock(ownerID, followerID)
	defer unlock()

	removed, err := s.graph.Unfollow(ctx, followerID, ownerID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFollower
	}
	return nil
}

// Followers lists who follows userID, subject to the owner's privacy.
func (s *FollowService) Followers(ctx context.Context, viewerID *primitive.ObjectID, userID primitive.ObjectID, page, limit int) ([]models.UserCompact, int, error) {
	return s.listGraph(ctx, viewerID, userID, page, limit, func(u *models.User) []primitive.ObjectID { return u.Followers })
}

// Following lists whom userID follows, subject to the owner's privacy.
func (s *FollowService) Following(ctx context.Context, viewerID *primitive.ObjectID, userID primitive.ObjectID, page, limit int) ([]models.UserCompact, int, error) {
	return s.listGraph(ctx, viewerID, userID, page, limit, func(u *models.User) []primitive.ObjectID { return u.Following })
}

// PendingRequests lists the users waiting for owner's approval.
func (s *FollowService) PendingRequests(ctx context.Context, ownerID primitive.ObjectID, page, limit int) ([]models.UserCompact, int, error) {
	return s.listGraph(ctx, &ownerID, ownerID, page, limit, func(u *models.User) []primitive.ObjectID { return u.FollowRequests })
}

func (s *FollowService) listGraph(ctx context.Context, viewerID *primitive.ObjectID, userID primitive.ObjectID, page, limit int, pick func(*models.User) []primitive.ObjectID) ([]models.UserCompact, int, error) {
	owner, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, 0, ErrUserNotFound
		}
		return nil, 0, err
	}
	if !canSeeGraph(viewerID, owner) {
		return nil, 0, ErrPrivateAccount
	}

	ids := pick(owner)
	total := len(ids)
	ids = pageOf(ids, page, limit)
	if len(ids) == 0 {
		return []models.UserCompact{}, total, nil
	}

	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.UserCompact, len(users))
	for i := range users {
		out[i] = users[i].ToCompact()
	}
	return out, total, nil
}

// pageOf slices a 1-based page out of ids.
func pageOf[T any](ids []T, page, limit int) []T {
	if page < 1 || limit < 1 {
		return nil
	}
	start := (page - 1) * limit
	if start >= len(ids) {
		return nil
	}
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[start:end]
}
