package services

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
)

// IsVisible is the one rule deciding whether viewer may see content by
// author. A nil author means the author no longer exists; a nil viewer is an
// anonymous caller.
func IsVisible(viewer, author *models.User) bool {
	if author == nil {
		return false
	}
	if !author.IsPrivate {
		return true
	}
	if viewer == nil {
		return false
	}
	if viewer.ID == author.ID {
		return true
	}
	return viewer.IsFollowing(author.ID)
}

// canSeeGraph gates a user's follower and following lists. Membership is
// read from the owner's followers set.
func canSeeGraph(viewerID *primitive.ObjectID, owner *models.User) bool {
	if !owner.IsPrivate {
		return true
	}
	if viewerID == nil {
		return false
	}
	return *viewerID == owner.ID || owner.HasFollower(*viewerID)
}

// Visibility applies IsVisible to stored content. Feed listing, single item
// fetch and per-author listing all go through it.
type Visibility struct {
	users repositories.UserRepository
}

func NewVisibility(users repositories.UserRepository) *Visibility {
	return &Visibility{users: users}
}

// Viewer loads the calling user, or returns nil for an anonymous caller.
func (v *Visibility) Viewer(ctx context.Context, viewerID *primitive.ObjectID) (*models.User, error) {
	if viewerID == nil {
		return nil, nil
	}
	viewer, err := v.users.GetUserByID(ctx, *viewerID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAccountGone
		}
		return nil, err
	}
	return viewer, nil
}

// Check returns the author when viewer may see item, ErrContentNotFound for
// orphaned content and ErrPrivateAccount otherwise.
func (v *Visibility) Check(ctx context.Context, viewer *models.User, item models.Authored) (*models.User, error) {
	author, err := v.users.GetUserByID(ctx, item.Author())
	if isNotFound(err) {
		return nil, ErrContentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !IsVisible(viewer, author) {
		return nil, ErrPrivateAccount
	}
	return author, nil
}

// Authors resolves the distinct authors of items in one read.
func (v *Visibility) Authors(ctx context.Context, items []models.Authored) (map[primitive.ObjectID]*models.User, error) {
	seen := make(map[primitive.ObjectID]bool)
	var ids []primitive.ObjectID
	for _, it := range items {
		if id := it.Author(); !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	authors := make(map[primitive.ObjectID]*models.User, len(ids))
	if len(ids) == 0 {
		return authors, nil
	}
	users, err := v.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range users {
		authors[users[i].ID] = &users[i]
	}
	return authors, nil
}

// FilterPosts keeps the posts viewer may see and pairs each with its author.
func (v *Visibility) FilterPosts(ctx context.Context, viewer *models.User, posts []models.Post) ([]FeedItem, error) {
	items := make([]models.Authored, len(posts))
	for i := range posts {
		items[i] = &posts[i]
	}
	authors, err := v.Authors(ctx, items)
	if err != nil {
		return nil, err
	}

	out := make([]FeedItem, 0, len(posts))
	for i := range posts {
		author := authors[posts[i].AuthorID]
		if !IsVisible(viewer, author) {
			continue
		}
		out = append(out, FeedItem{Post: posts[i], Author: author.ToCompact()})
	}
	return out, nil
}

// FeedItem is a post with its author embedded.
type FeedItem struct {
	models.Post
	Author models.UserCompact `json:"author"`
}

func isNotFound(err error) bool {
	return errors.Is(err, repositories.ErrNotFound)
}
