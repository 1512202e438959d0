package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// FollowStatus is the viewer's relationship to a target after a follow call.
type FollowStatus struct {
	IsFollowing  bool `json:"isFollowing"`
	HasRequested bool `json:"hasRequested"`
}

// RequestAcceptedEvent is pushed to the requester when their request is approved.
type RequestAcceptedEvent struct {
	UserID primitive.ObjectID `json:"userId"`
}
