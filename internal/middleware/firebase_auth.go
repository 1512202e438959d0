package middleware

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

// IDTokenVerifier is the part of *auth.Client used here.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// UserByFirebaseUID finds the local account bound to a Firebase user.
type UserByFirebaseUID interface {
	GetUserByFirebaseUID(ctx context.Context, uid string) (*models.User, error)
}

// FirebaseAuth accepts Firebase ID tokens and maps them to local users.
// The account must already exist; POST /auth/firebase-login creates it.
type FirebaseAuth struct {
	verifier IDTokenVerifier
	users    UserByFirebaseUID
}

func NewFirebaseAuth(verifier IDTokenVerifier, users UserByFirebaseUID) *FirebaseAuth {
	return &FirebaseAuth{verifier: verifier, users: users}
}

func (a *FirebaseAuth) Authenticate(ctx context.Context, idToken string) (primitive.ObjectID, error) {
	token, err := a.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return primitive.NilObjectID, err
	}
	user, err := a.users.GetUserByFirebaseUID(ctx, token.UID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("no account for firebase user %s: %w", token.UID, err)
	}
	return user.ID, nil
}
