package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

// userFootprint is anything else a deleted user leaves behind.
type userFootprint interface {
	DeleteForUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

// DeletionReport summarizes an account deletion cascade.
type DeletionReport struct {
	repositories.CascadeResult
	LikesPulled          int64 `json:"likesPulled"`
	ContentDeleted       int64 `json:"contentDeleted"`
	MessagesDeleted      int64 `json:"messagesDeleted"`
	NotificationsDeleted int64 `json:"notificationsDeleted"`
}

// AccountService owns profile reads, privacy and account deletion.
type AccountService struct {
	users         repositories.UserRepository
	graph         repositories.GraphStore
	content       []repositories.ContentCascade
	messages      userFootprint
	notifications userFootprint
	log           *zap.Logger
}

func NewAccountService(users repositories.UserRepository, graph repositories.GraphStore, messages repositories.MessageRepository, notifications repositories.NotificationRepository, content ...repositories.ContentCascade) *AccountService {
	return &AccountService{
		users:         users,
		graph:         graph,
		content:       content,
		messages:      messages,
		notifications: notifications,
		log:           logger.Named("accounts"),
	}
}

// Profile returns a user with the viewer's relationship flags.
func (s *AccountService) Profile(ctx context.Context, viewerID *primitive.ObjectID, userID primitive.ObjectID) (*models.Profile, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, ErrUserNotFound)
	}
	profile := &models.Profile{User: user}
	if viewerID != nil && *viewerID != userID {
		profile.IsFollowing = user.HasFollower(*viewerID)
		profile.HasRequested = user.HasRequestFrom(*viewerID)
		profile.FollowsYou = user.IsFollowing(*viewerID)
	}
	return profile, nil
}

// SetPrivacy flips the account's privacy. Pending requests are left as they are.
func (s *AccountService) SetPrivacy(ctx context.Context, userID primitive.ObjectID, private bool) (*models.User, error) {
	if err := s.users.SetPrivacy(ctx, userID, private); err != nil {
		return nil, notFoundAs(err, ErrAccountGone)
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, ErrAccountGone)
	}
	return user, nil
}

// DeleteAccount removes the user and strips the id from every set that
// references it. The user document goes first: if a later step fails, what
// remains are dangling references the repair pass removes.
func (s *AccountService) DeleteAccount(ctx context.Context, userID primitive.ObjectID) (*DeletionReport, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, notFoundAs(err, ErrAccountGone)
	}

	cascade, err := s.graph.RemoveUserEverywhere(ctx, userID)
	report := &DeletionReport{}
	if cascade != nil {
		report.CascadeResult = *cascade
	}
	if err != nil {
		return report, s.partial("graph", userID, err)
	}

	for _, c := range s.content {
		n, err := c.PullLikesBy(ctx, userID)
		if err != nil {
			return report, s.partial("likes", userID, err)
		}
		report.LikesPulled += n

		n, err = c.DeleteByAuthor(ctx, userID)
		if err != nil {
			return report, s.partial("content", userID, err)
		}
		report.ContentDeleted += n
	}

	if report.MessagesDeleted, err = s.messages.DeleteForUser(ctx, userID); err != nil {
		return report, s.partial("messages", userID, err)
	}
	if report.NotificationsDeleted, err = s.notifications.DeleteForUser(ctx, userID); err != nil {
		return report, s.partial("notifications", userID, err)
	}

	s.log.Info("account deleted",
		zap.String("user_id", userID.Hex()),
		zap.Int64("followers_pruned", report.FollowersPruned),
		zap.Int64("following_pruned", report.FollowingPruned),
		zap.Int64("requests_pruned", report.RequestsPruned),
		zap.Int64("likes_pulled", report.LikesPulled),
		zap.Int64("content_deleted", report.ContentDeleted))
	return report, nil
}

func (s *AccountService) partial(step string, userID primitive.ObjectID, err error) error {
	s.log.Warn("account deletion stopped part way, leftovers are left for repair",
		zap.String("step", step),
		zap.String("user_id", userID.Hex()),
		zap.Error(err))
	return err
}
