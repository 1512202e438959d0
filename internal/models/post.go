package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is a content item stored in MongoDB. LikeCount mirrors len(Likes).
type Post struct {
	ID           primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	AuthorID     primitive.ObjectID   `json:"authorId" bson:"author_id"`
	Content      string               `json:"content" bson:"content"`
	MediaURLs    []string             `json:"mediaUrls,omitempty" bson:"media_urls,omitempty"`
	Likes        []primitive.ObjectID `json:"-" bson:"likes"`
	LikeCount    int                  `json:"likeCount" bson:"like_count"`
	CommentCount int                  `json:"commentCount" bson:"comment_count"`
	CreatedAt    time.Time            `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time            `json:"updatedAt" bson:"updated_at"`
}

func (p *Post) Author() primitive.ObjectID { return p.AuthorID }

// Authored is anything the visibility filter can judge: it only needs the author.
type Authored interface {
	Author() primitive.ObjectID
}

type CreatePostRequest struct {
	Content   string   `json:"content" validate:"required,min=1,max=2200"`
	MediaURLs []string `json:"mediaUrls,omitempty" validate:"omitempty,max=10,dive,url"`
}

// NewPostEvent is broadcast when a post is created. It carries no content:
// clients refetch through the visibility-checked endpoints.
type NewPostEvent struct {
	PostID    primitive.ObjectID `json:"postId"`
	AuthorID  primitive.ObjectID `json:"authorId"`
	CreatedAt time.Time          `json:"createdAt"`
}
