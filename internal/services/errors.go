package services

import (
	apperrors "github.com/anonto42/nano-midea/socialgraph/pkg/errors"
)

var (
	ErrSelfFollow        = apperrors.NewValidation("cannot follow yourself", nil)
	ErrSelfAction        = apperrors.NewValidation("cannot target yourself", nil)
	ErrUserNotFound      = apperrors.NewNotFound("user not found")
	ErrAccountGone       = apperrors.NewUnauthorized("account no longer exists")
	ErrNoPendingRequest  = apperrors.NewConflict("no pending follow request")
	ErrNotFollower       = apperrors.NewNotFound("user is not a follower")
	ErrPrivateAccount    = apperrors.NewForbidden("this account is private")
	ErrContentNotFound   = apperrors.NewNotFound("content not found")
	ErrInvalidParent     = apperrors.NewValidation("parent comment does not belong to this post", nil)
	ErrEmptyMessage      = apperrors.NewValidation("message needs content or media", nil)
	ErrSelfMessage       = apperrors.NewValidation("cannot message yourself", nil)
	ErrInvalidReplyTo    = apperrors.NewValidation("replyTo must reference a message in this conversation", nil)
	ErrMediaDisabled     = apperrors.NewValidation("media attachments are not enabled", nil)
	ErrMessageNotFound   = apperrors.NewNotFound("message not found")
	ErrNotMessageSender  = apperrors.NewForbidden("only the sender can delete a message")
	ErrNotParticipant    = apperrors.NewForbidden("not a participant in this conversation")
	ErrEmptyReaction     = apperrors.NewValidation("emoji is required", nil)
	ErrNotificationGone  = apperrors.NewNotFound("notification not found")
	ErrInvalidNotifyType = apperrors.NewValidation("unknown notification type", nil)
)
