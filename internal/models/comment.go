package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Comment belongs to a post; ParentID makes it a reply to another comment.
type Comment struct {
	ID        primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	PostID    primitive.ObjectID   `json:"postId" bson:"post_id"`
	AuthorID  primitive.ObjectID   `json:"authorId" bson:"author_id"`
	ParentID  *primitive.ObjectID  `json:"parentId,omitempty" bson:"parent_id,omitempty"`
	Content   string               `json:"content" bson:"content"`
	Likes     []primitive.ObjectID `json:"-" bson:"likes"`
	LikeCount int                  `json:"likeCount" bson:"like_count"`
	CreatedAt time.Time            `json:"createdAt" bson:"created_at"`
}

func (c *Comment) Author() primitive.ObjectID { return c.AuthorID }

type CreateCommentRequest struct {
	Content  string `json:"content" validate:"required,min=1,max=1000"`
	ParentID string `json:"parentId,omitempty" validate:"omitempty,objectid"`
}

// LikeResult is returned by like toggles.
type LikeResult struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"likeCount"`
}
