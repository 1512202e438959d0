package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/socialgraph/internal/middleware"
	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/anonto42/nano-midea/socialgraph/validators"
)

// =============================================================================
// HARNESS
// =============================================================================

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = validators.NewValidator()
	return e
}

// asUser authenticates every request as id. A nil id leaves the caller anonymous.
func asUser(id *primitive.ObjectID) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id != nil {
				middleware.SetUserID(c, *id)
			}
			return next(c)
		}
	}
}

type response struct {
	Code int
	Body map[string]interface{}
}

func (r response) data() map[string]interface{} {
	d, _ := r.Body["data"].(map[string]interface{})
	return d
}

func (r response) meta() map[string]interface{} {
	m, _ := r.Body["meta"].(map[string]interface{})
	return m
}

func do(t *testing.T, e *echo.Echo, method, target string, body io.Reader, contentType string) response {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	out := response{Code: rec.Code}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out.Body), rec.Body.String())
	}
	return out
}

func doJSON(t *testing.T, e *echo.Echo, method, target, body string) response {
	t.Helper()
	if body == "" {
		return do(t, e, method, target, nil, "")
	}
	return do(t, e, method, target, strings.NewReader(body), echo.MIMEApplicationJSON)
}

type echoServer struct {
	e *echo.Echo
}

func (s *echoServer) json(t *testing.T, method, target, body string) response {
	t.Helper()
	return doJSON(t, s.e, method, target, body)
}

// =============================================================================
// MOCKS
// =============================================================================

type mockFollowGraph struct {
	toggleFn    func(ctx context.Context, viewerID, targetID primitive.ObjectID) (*models.FollowStatus, error)
	acceptFn    func(ctx context.Context, ownerID, requesterID primitive.ObjectID) error
	followersFn func(ctx context.Context, viewerID *primitive.ObjectID, userID primitive.ObjectID, page, limit int) ([]models.UserCompact, int, error)
}

func (m *mockFollowGraph) ToggleFollow(ctx context.Context, viewerID, targetID primitive.ObjectID) (*models.FollowStatus, error) {
	return m.toggleFn(ctx, viewerID, targetID)
}

func (m *mockFollowGraph) Status(context.Context, primitive.ObjectID, primitive.ObjectID) (*models.FollowStatus, error) {
	return &models.FollowStatus{}, nil
}

func (m *mockFollowGraph) AcceptRequest(ctx context.Context, ownerID, requesterID primitive.ObjectID) error {
	return m.acceptFn(ctx, ownerID, requesterID)
}

func (m *mockFollowGraph) DeclineRequest(context.Context, primitive.ObjectID, primitive.ObjectID) error {
	return nil
}

func (m *mockFollowGraph) RemoveFollower(context.Context, primitive.ObjectID, primitive.ObjectID) error {
	return nil
}

func (m *mockFollowGraph) Followers(ctx context.Context, viewerID *primitive.ObjectID, userID primitive.ObjectID, page, limit int) ([]models.UserCompact, int, error) {
	return m.followersFn(ctx, viewerID, userID, page, limit)
}

func (m *mockFollowGraph) Following(ctx context.Context, viewerID *primitive.ObjectID, userID primitive.ObjectID, page, limit int) ([]models.UserCompact, int, error) {
	return m.followersFn(ctx, viewerID, userID, page, limit)
}

func (m *mockFollowGraph) PendingRequests(context.Context, primitive.ObjectID, int, int) ([]models.UserCompact, int, error) {
	return nil, 0, nil
}

type mockContent struct {
	feedFn       func(ctx context.Context, viewerID primitive.ObjectID, page, limit int) ([]services.FeedItem, error)
	getPostFn    func(ctx context.Context, viewerID *primitive.ObjectID, postID primitive.ObjectID) (*services.FeedItem, error)
	addCommentFn func(ctx context.Context, userID, postID primitive.ObjectID, req *models.CreateCommentRequest) (*models.Comment, error)
}

func (m *mockContent) CreatePost(_ context.Context, authorID primitive.ObjectID, req *models.CreatePostRequest) (*models.Post, error) {
	return &models.Post{ID: primitive.NewObjectID(), AuthorID: authorID, Content: req.Content}, nil
}

func (m *mockContent) Feed(ctx context.Context, viewerID primitive.ObjectID, page, limit int) ([]services.FeedItem, error) {
	return m.feedFn(ctx, viewerID, page, limit)
}

func (m *mockContent) GetPost(ctx context.Context, viewerID *primitive.ObjectID, postID primitive.ObjectID) (*services.FeedItem, error) {
	return m.getPostFn(ctx, viewerID, postID)
}

func (m *mockContent) AuthorPosts(context.Context, *primitive.ObjectID, primitive.ObjectID, int, int) ([]services.FeedItem, int64, error) {
	return nil, 0, nil
}

func (m *mockContent) TogglePostLike(context.Context, primitive.ObjectID, primitive.ObjectID) (*models.LikeResult, error) {
	return &models.LikeResult{Liked: true, LikeCount: 1}, nil
}

func (m *mockContent) ToggleCommentLike(context.Context, primitive.ObjectID, primitive.ObjectID) (*models.LikeResult, error) {
	return &models.LikeResult{Liked: true, LikeCount: 1}, nil
}

func (m *mockContent) AddComment(ctx context.Context, userID, postID primitive.ObjectID, req *models.CreateCommentRequest) (*models.Comment, error) {
	return m.addCommentFn(ctx, userID, postID, req)
}

func (m *mockContent) Comments(context.Context, *primitive.ObjectID, primitive.ObjectID, int, int) ([]models.Comment, int64, error) {
	return nil, 0, nil
}

type mockNotifications struct {
	listFn   func(ctx context.Context, userID primitive.ObjectID, page, limit int) ([]models.EnrichedNotification, int64, error)
	markFn   func(ctx context.Context, userID, notificationID primitive.ObjectID) error
	unread   int64
	markedBy []primitive.ObjectID
}

func (m *mockNotifications) List(ctx context.Context, userID primitive.ObjectID, page, limit int) ([]models.EnrichedNotification, int64, error) {
	return m.listFn(ctx, userID, page, limit)
}

func (m *mockNotifications) UnreadCount(context.Context, primitive.ObjectID) (int64, error) {
	return m.unread, nil
}

func (m *mockNotifications) MarkRead(ctx context.Context, userID, notificationID primitive.ObjectID) error {
	return m.markFn(ctx, userID, notificationID)
}

func (m *mockNotifications) MarkAllRead(_ context.Context, userID primitive.ObjectID) (int64, error) {
	m.markedBy = append(m.markedBy, userID)
	return 3, nil
}

type mockConversations struct {
	sendFn   func(ctx context.Context, senderID primitive.ObjectID, in services.SendInput) (*models.Message, error)
	deleteFn func(ctx context.Context, userID, messageID primitive.ObjectID) error
}

func (m *mockConversations) Send(ctx context.Context, senderID primitive.ObjectID, in services.SendInput) (*models.Message, error) {
	return m.sendFn(ctx, senderID, in)
}

func (m *mockConversations) React(_ context.Context, userID, messageID primitive.ObjectID, emoji string) (*models.Message, error) {
	return &models.Message{ID: messageID, Reactions: []models.Reaction{{UserID: userID, Emoji: emoji}}}, nil
}

func (m *mockConversations) Delete(ctx context.Context, userID, messageID primitive.ObjectID) error {
	return m.deleteFn(ctx, userID, messageID)
}

func (m *mockConversations) History(context.Context, primitive.ObjectID, primitive.ObjectID, int, int) ([]models.Message, int64, error) {
	return []models.Message{}, 0, nil
}

type mockAccountStore struct {
	createFn func(ctx context.Context, user *models.User) error
	byUIDFn  func(ctx context.Context, uid string) (*models.User, error)
	created  []*models.User
}

func (m *mockAccountStore) CreateUser(ctx context.Context, user *models.User) error {
	m.created = append(m.created, user)
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	user.ID = primitive.NewObjectID()
	return nil
}

func (m *mockAccountStore) GetUserByFirebaseUID(ctx context.Context, uid string) (*models.User, error) {
	return m.byUIDFn(ctx, uid)
}

type stubIssuer struct{}

func (stubIssuer) IssueToken(userID primitive.ObjectID) (string, error) {
	return "token-" + userID.Hex(), nil
}
