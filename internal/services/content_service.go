package services

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/realtime"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

// ContentService covers posts, comments and likes, with every read passing
// through the visibility filter.
type ContentService struct {
	posts      repositories.PostRepository
	comments   repositories.CommentRepository
	visibility *Visibility
	notifier   Notifier
	publisher  realtime.Publisher
	log        *zap.Logger
}

func NewContentService(posts repositories.PostRepository, comments repositories.CommentRepository, visibility *Visibility, notifier Notifier, publisher realtime.Publisher) *ContentService {
	return &ContentService{
		posts:      posts,
		comments:   comments,
		visibility: visibility,
		notifier:   notifier,
		publisher:  publisher,
		log:        logger.Named("content"),
	}
}

// CreatePost stores the post and broadcasts newPost to every connection.
func (s *ContentService) CreatePost(ctx context.Context, authorID primitive.ObjectID, req *models.CreatePostRequest) (*models.Post, error) {
	if _, err := s.visibility.Viewer(ctx, &authorID); err != nil {
		return nil, err
	}
	post := &models.Post{
		AuthorID:  authorID,
		Content:   strings.TrimSpace(req.Content),
		MediaURLs: req.MediaURLs,
	}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, err
	}
	s.publisher.Broadcast(ctx, realtime.EventNewPost, models.NewPostEvent{
		PostID:    post.ID,
		AuthorID:  post.AuthorID,
		CreatedAt: post.CreatedAt,
	})
	return post, nil
}

// Feed returns recent posts by the viewer and the accounts they follow.
func (s *ContentService) Feed(ctx context.Context, viewerID primitive.ObjectID, page, limit int) ([]FeedItem, error) {
	viewer, err := s.visibility.Viewer(ctx, &viewerID)
	if err != nil {
		return nil, err
	}
	authors := append([]primitive.ObjectID{viewer.ID}, viewer.Following...)
	posts, err := s.posts.GetPostsByAuthors(ctx, authors, skipFor(page, limit), int64(limit))
	if err != nil {
		return nil, err
	}
	return s.visibility.FilterPosts(ctx, viewer, posts)
}

// GetPost returns one post if the viewer may see it.
func (s *ContentService) GetPost(ctx context.Context, viewerID *primitive.ObjectID, postID primitive.ObjectID) (*FeedItem, error) {
	viewer, err := s.visibility.Viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	post, author, err := s.visiblePost(ctx, viewer, postID)
	if err != nil {
		return nil, err
	}
	return &FeedItem{Post: *post, Author: author.ToCompact()}, nil
}

// AuthorPosts lists one author's posts if the viewer may see them.
func (s *ContentService) AuthorPosts(ctx context.Context, viewerID *primitive.ObjectID, authorID primitive.ObjectID, page, limit int) ([]FeedItem, int64, error) {
	viewer, err := s.visibility.Viewer(ctx, viewerID)
	if err != nil {
		return nil, 0, err
	}
	if _, err := s.visibility.Check(ctx, viewer, authorRef(authorID)); err != nil {
		if errors.Is(err, ErrContentNotFound) {
			return nil, 0, ErrUserNotFound
		}
		return nil, 0, err
	}
	posts, total, err := s.posts.GetPostsByAuthor(ctx, authorID, skipFor(page, limit), int64(limit))
	if err != nil {
		return nil, 0, err
	}
	items, err := s.visibility.FilterPosts(ctx, viewer, posts)
	return items, total, err
}

func (s *ContentService) visiblePost(ctx context.Context, viewer *models.User, postID primitive.ObjectID) (*models.Post, *models.User, error) {
	post, err := s.posts.GetPostByID(ctx, postID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrContentNotFound
		}
		return nil, nil, err
	}
	author, err := s.visibility.Check(ctx, viewer, post)
	if err != nil {
		return nil, nil, err
	}
	return post, author, nil
}

// TogglePostLike likes or unlikes a visible post.
func (s *ContentService) TogglePostLike(ctx context.Context, userID, postID primitive.ObjectID) (*models.LikeResult, error) {
	viewer, err := s.visibility.Viewer(ctx, &userID)
	if err != nil {
		return nil, err
	}
	post, _, err := s.visiblePost(ctx, viewer, postID)
	if err != nil {
		return nil, err
	}
	result, err := s.posts.ToggleLike(ctx, postID, userID)
	if err != nil {
		return nil, notFoundAs(err, ErrContentNotFound)
	}
	if result.Liked {
		emitQuietly(ctx, s.notifier, s.log, Emission{
			Type:      models.NotificationLike,
			Recipient: post.AuthorID,
			Sender:    &userID,
			Refs:      models.NotificationRefs{PostID: &post.ID},
		})
	}
	return result, nil
}

// ToggleCommentLike likes or unlikes a comment on a visible post.
func (s *ContentService) ToggleCommentLike(ctx context.Context, userID, commentID primitive.ObjectID) (*models.LikeResult, error) {
	viewer, err := s.visibility.Viewer(ctx, &userID)
	if err != nil {
		return nil, err
	}
	comment, err := s.comments.GetCommentByID(ctx, commentID)
	if err != nil {
		return nil, notFoundAs(err, ErrContentNotFound)
	}
	if _, _, err := s.visiblePost(ctx, viewer, comment.PostID); err != nil {
		return nil, err
	}
	result, err := s.comments.ToggleLike(ctx, commentID, userID)
	if err != nil {
		return nil, notFoundAs(err, ErrContentNotFound)
	}
	if result.Liked {
		emitQuietly(ctx, s.notifier, s.log, Emission{
			Type:      models.NotificationLike,
			Recipient: comment.AuthorID,
			Sender:    &userID,
			Refs:      models.NotificationRefs{PostID: &comment.PostID, CommentID: &comment.ID},
		})
	}
	return result, nil
}

// AddComment comments on a visible post, or replies when req.ParentID is set.
// The post author gets a comment notification; a parent comment's author gets
// a reply notification instead when they are someone else.
func (s *ContentService) AddComment(ctx context.Context, userID, postID primitive.ObjectID, req *models.CreateCommentRequest) (*models.Comment, error) {
	viewer, err := s.visibility.Viewer(ctx, &userID)
	if err != nil {
		return nil, err
	}
	post, _, err := s.visiblePost(ctx, viewer, postID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{
		PostID:   postID,
		AuthorID: userID,
		Content:  strings.TrimSpace(req.Content),
	}

	var parent *models.Comment
	if req.ParentID != "" {
		parentID, err := repositories.ParseObjectID(req.ParentID)
		if err != nil {
			return nil, err
		}
		parent, err = s.comments.GetCommentByID(ctx, parentID)
		if err != nil {
			return nil, notFoundAs(err, ErrInvalidParent)
		}
		if parent.PostID != postID {
			return nil, ErrInvalidParent
		}
		comment.ParentID = &parent.ID
	}

	if err := s.comments.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	if err := s.posts.IncrementCommentCount(ctx, postID, 1); err != nil {
		s.log.Warn("comment count not incremented", zap.String("post_id", postID.Hex()), zap.Error(err))
	}

	refs := models.NotificationRefs{PostID: &post.ID, CommentID: &comment.ID}
	if parent != nil && parent.AuthorID != userID {
		emitQuietly(ctx, s.notifier, s.log, Emission{Type: models.NotificationReply, Recipient: parent.AuthorID, Sender: &userID, Refs: refs})
	}
	if parent == nil || parent.AuthorID != post.AuthorID {
		emitQuietly(ctx, s.notifier, s.log, Emission{Type: models.NotificationComment, Recipient: post.AuthorID, Sender: &userID, Refs: refs})
	}
	return comment, nil
}

// Comments lists the comments of a visible post.
func (s *ContentService) Comments(ctx context.Context, viewerID *primitive.ObjectID, postID primitive.ObjectID, page, limit int) ([]models.Comment, int64, error) {
	viewer, err := s.visibility.Viewer(ctx, viewerID)
	if err != nil {
		return nil, 0, err
	}
	if _, _, err := s.visiblePost(ctx, viewer, postID); err != nil {
		return nil, 0, err
	}
	return s.comments.GetCommentsByPost(ctx, postID, skipFor(page, limit), int64(limit))
}

type authorRef primitive.ObjectID

func (a authorRef) Author() primitive.ObjectID { return primitive.ObjectID(a) }

func skipFor(page, limit int) int64 {
	if page < 1 {
		page = 1
	}
	return int64((page - 1) * limit)
}

func notFoundAs(err, replacement error) error {
	if isNotFound(err) {
		return replacement
	}
	return err
}
