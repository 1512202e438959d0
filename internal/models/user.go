package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the identity document and the home of the follow graph. Each set
// lives next to its counter so both can change in one atomic update.
type User struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Username    string             `json:"username" bson:"username"`
	DisplayName string             `json:"displayName" bson:"display_name"`
	AvatarURL   string             `json:"avatarUrl,omitempty" bson:"avatar_url,omitempty"`
	FirebaseUID string             `json:"-" bson:"firebase_uid,omitempty"`
	IsPrivate   bool               `json:"isPrivate" bson:"is_private"`

	Followers      []primitive.ObjectID `json:"-" bson:"followers"`
	Following      []primitive.ObjectID `json:"-" bson:"following"`
	FollowRequests []primitive.ObjectID `json:"-" bson:"follow_requests"`
	FollowerCount  int                  `json:"followerCount" bson:"follower_count"`
	FollowingCount int                  `json:"followingCount" bson:"following_count"`

	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Field names shared by repositories and the repair pass.
const (
	FieldFollowers      = "followers"
	FieldFollowing      = "following"
	FieldFollowRequests = "follow_requests"
	FieldFollowerCount  = "follower_count"
	FieldFollowingCount = "following_count"
)

func (u *User) IsFollowing(id primitive.ObjectID) bool { return ContainsID(u.Following, id) }

func (u *User) HasFollower(id primitive.ObjectID) bool { return ContainsID(u.Followers, id) }

func (u *User) HasRequestFrom(id primitive.ObjectID) bool { return ContainsID(u.FollowRequests, id) }

// ToCompact strips the graph for embedding in other responses.
func (u *User) ToCompact() UserCompact {
	return UserCompact{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

// UserCompact is the author/actor shape embedded in posts and notifications.
type UserCompact struct {
	ID          primitive.ObjectID `json:"id"`
	Username    string             `json:"username"`
	DisplayName string             `json:"displayName"`
	AvatarURL   string             `json:"avatarUrl,omitempty"`
}

// Profile is a user as seen by a particular viewer.
type Profile struct {
	*User
	IsFollowing  bool `json:"isFollowing"`
	HasRequested bool `json:"hasRequested"`
	FollowsYou   bool `json:"followsYou"`
}

type UpdatePrivacyRequest struct {
	IsPrivate *bool `json:"isPrivate" validate:"required"`
}

// JwtCustomClaims carries the user's ObjectID hex as the subject of the session.
type JwtCustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// ContainsID reports whether ids holds id.
func ContainsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type RegisterRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=30,username"`
	DisplayName string `json:"displayName" validate:"max=60"`
	IsPrivate   bool   `json:"isPrivate"`
}

// FirebaseLoginRequest exchanges a Firebase ID token for a local session.
// Username and DisplayName are only used when the account is created.
type FirebaseLoginRequest struct {
	IDToken     string `json:"idToken" validate:"required"`
	Username    string `json:"username" validate:"omitempty,min=3,max=30,username"`
	DisplayName string `json:"displayName" validate:"max=60"`
}
