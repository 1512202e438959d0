package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
)

// =============================================================================
// GRAPH STORE
// =============================================================================
//
// memGraph keeps users in memory and applies the same conditional semantics
// as the Mongo graph store: each call reports whether it changed anything and
// each set moves together with its counter.

type memGraph struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User

	followErr error
}

func newMemGraph() *memGraph {
	return &memGraph{users: make(map[primitive.ObjectID]*models.User)}
}

func (g *memGraph) add(username string, private bool) primitive.ObjectID {
	u := &models.User{Username: username, DisplayName: username, IsPrivate: private}
	_ = g.CreateUser(context.Background(), u)
	return u.ID
}

func (g *memGraph) get(id primitive.ObjectID) *models.User {
	g.mu.Lock()
	defer g.mu.Unlock()
	return cloneUser(g.users[id])
}

func cloneUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	c := *u
	c.Followers = append([]primitive.ObjectID{}, u.Followers...)
	c.Following = append([]primitive.ObjectID{}, u.Following...)
	c.FollowRequests = append([]primitive.ObjectID{}, u.FollowRequests...)
	return &c
}

func (g *memGraph) CreateUser(_ context.Context, user *models.User) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.Followers = []primitive.ObjectID{}
	user.Following = []primitive.ObjectID{}
	user.FollowRequests = []primitive.ObjectID{}
	g.users[user.ID] = cloneUser(user)
	return nil
}

func (g *memGraph) GetUserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneUser(u), nil
}

func (g *memGraph) GetUserByFirebaseUID(_ context.Context, uid string) (*models.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, u := range g.users {
		if u.FirebaseUID == uid {
			return cloneUser(u), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (g *memGraph) GetUsersByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := []models.User{}
	for _, id := range ids {
		if u, ok := g.users[id]; ok {
			out = append(out, *cloneUser(u))
		}
	}
	return out, nil
}

func (g *memGraph) SetPrivacy(_ context.Context, id primitive.ObjectID, private bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	u.IsPrivate = private
	return nil
}

func addTo(set *[]primitive.ObjectID, counter *int, id primitive.ObjectID) bool {
	if models.ContainsID(*set, id) {
		return false
	}
	*set = append(*set, id)
	if counter != nil {
		*counter++
	}
	return true
}

func removeFrom(set *[]primitive.ObjectID, counter *int, id primitive.ObjectID) bool {
	for i, v := range *set {
		if v == id {
			*set = append((*set)[:i:i], (*set)[i+1:]...)
			if counter != nil && *counter > 0 {
				*counter--
			}
			return true
		}
	}
	return false
}

func (g *memGraph) Follow(_ context.Context, followerID, targetID primitive.ObjectID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.followErr != nil {
		return false, g.followErr
	}
	target, follower := g.users[targetID], g.users[followerID]
	if target == nil || follower == nil {
		return false, nil
	}
	a := addTo(&target.Followers, &target.FollowerCount, followerID)
	b := addTo(&follower.Following, &follower.FollowingCount, targetID)
	return a || b, nil
}

func (g *memGraph) Unfollow(_ context.Context, followerID, targetID primitive.ObjectID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var a, b bool
	if target := g.users[targetID]; target != nil {
		a = removeFrom(&target.Followers, &target.FollowerCount, followerID)
	}
	if follower := g.users[followerID]; follower != nil {
		b = removeFrom(&follower.Following, &follower.FollowingCount, targetID)
	}
	return a || b, nil
}

func (g *memGraph) RequestFollow(_ context.Context, requesterID, targetID primitive.ObjectID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	target := g.users[targetID]
	if target == nil || target.HasFollower(requesterID) {
		return false, nil
	}
	return addTo(&target.FollowRequests, nil, requesterID), nil
}

func (g *memGraph) CancelRequest(_ context.Context, requesterID, targetID primitive.ObjectID) (bool, error) {
	return g.DeclineRequest(context.Background(), targetID, requesterID)
}

func (g *memGraph) DeclineRequest(_ context.Context, targetID, requesterID primitive.ObjectID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	target := g.users[targetID]
	if target == nil {
		return false, nil
	}
	return removeFrom(&target.FollowRequests, nil, requesterID), nil
}

func (g *memGraph) AcceptRequest(_ context.Context, targetID, requesterID primitive.ObjectID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	target, requester := g.users[targetID], g.users[requesterID]
	if target == nil || !removeFrom(&target.FollowRequests, nil, requesterID) {
		return false, nil
	}
	addTo(&target.Followers, &target.FollowerCount, requesterID)
	if requester != nil {
		addTo(&requester.Following, &requester.FollowingCount, targetID)
	}
	return true, nil
}

func (g *memGraph) RemoveUserEverywhere(_ context.Context, userID primitive.ObjectID) (*repositories.CascadeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.users, userID)
	res := &repositories.CascadeResult{}
	for _, u := range g.users {
		if removeFrom(&u.Followers, &u.FollowerCount, userID) {
			res.FollowersPruned++
		}
		if removeFrom(&u.Following, &u.FollowingCount, userID) {
			res.FollowingPruned++
		}
		if removeFrom(&u.FollowRequests, nil, userID) {
			res.RequestsPruned++
		}
	}
	return res, nil
}

// =============================================================================
// PUBLISHER / PRESENCE
// =============================================================================

type published struct {
	UserID  string
	Event   string
	Payload any
}

type recordingPublisher struct {
	mu         sync.Mutex
	events     []published
	broadcasts []published
}

func (p *recordingPublisher) Publish(_ context.Context, userID, event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{UserID: userID, Event: event, Payload: payload})
}

func (p *recordingPublisher) Broadcast(_ context.Context, event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasts = append(p.broadcasts, published{Event: event, Payload: payload})
}

func (p *recordingPublisher) to(userID primitive.ObjectID, event string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.UserID == userID.Hex() && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakePresence map[string]bool

func (f fakePresence) IsOnline(userID string) bool { return f[userID] }

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type memNotifications struct {
	mu        sync.Mutex
	items     []models.Notification
	createErr error
}

func (m *memNotifications) CreateNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	n.ID = primitive.NewObjectID()
	n.CreatedAt = time.Now().UTC()
	m.items = append(m.items, *n)
	return nil
}

func (m *memNotifications) forRecipient(id primitive.ObjectID) []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.items {
		if n.RecipientID == id {
			out = append(out, n)
		}
	}
	return out
}

func (m *memNotifications) GetByRecipientID(_ context.Context, id primitive.ObjectID, page, limit int) ([]models.Notification, int64, error) {
	all := m.forRecipient(id)
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return pageOf(all, page, limit), int64(len(all)), nil
}

func (m *memNotifications) GetUnreadCount(_ context.Context, id primitive.ObjectID) (int64, error) {
	var n int64
	for _, item := range m.forRecipient(id) {
		if !item.Read {
			n++
		}
	}
	return n, nil
}

func (m *memNotifications) MarkAsRead(_ context.Context, notificationID, recipientID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == notificationID && m.items[i].RecipientID == recipientID {
			m.items[i].Read = true
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (m *memNotifications) MarkAllAsRead(_ context.Context, recipientID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.items {
		if m.items[i].RecipientID == recipientID && !m.items[i].Read {
			m.items[i].Read = true
			n++
		}
	}
	return n, nil
}

func (m *memNotifications) DeleteForUser(_ context.Context, userID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	var n int64
	for _, item := range m.items {
		if item.RecipientID == userID {
			n++
			continue
		}
		kept = append(kept, item)
	}
	m.items = kept
	return n, nil
}

// =============================================================================
// MESSAGES
// =============================================================================

type memMessages struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*models.Message
}

func newMemMessages() *memMessages {
	return &memMessages{items: make(map[primitive.ObjectID]*models.Message)}
}

func (m *memMessages) CreateMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = primitive.NewObjectID()
	msg.ConversationKey = models.ConversationKey(msg.SenderID, msg.RecipientID)
	msg.CreatedAt = time.Now().UTC()
	msg.Reactions = []models.Reaction{}
	c := *msg
	m.items[msg.ID] = &c
	return nil
}

func (m *memMessages) GetMessageByID(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *msg
	c.Reactions = append([]models.Reaction{}, msg.Reactions...)
	return &c, nil
}

func (m *memMessages) GetConversation(_ context.Context, a, b primitive.ObjectID, page, limit int) ([]models.Message, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.ConversationKey(a, b)
	var all []models.Message
	for _, msg := range m.items {
		if msg.ConversationKey == key {
			all = append(all, *msg)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.Hex() > all[j].ID.Hex() })
	return pageOf(all, page, limit), int64(len(all)), nil
}

func (m *memMessages) ToggleReaction(_ context.Context, messageID, userID primitive.ObjectID, emoji string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.items[messageID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	msg.ToggleReaction(userID, emoji, time.Now().UTC())
	c := *msg
	c.Reactions = append([]models.Reaction{}, msg.Reactions...)
	return &c, nil
}

func (m *memMessages) DeleteMessage(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memMessages) DeleteForUser(_ context.Context, userID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, msg := range m.items {
		if msg.HasParticipant(userID) {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

// =============================================================================
// CONTENT
// =============================================================================

type memPosts struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*models.Post
	order []primitive.ObjectID
}

func newMemPosts() *memPosts {
	return &memPosts{items: make(map[primitive.ObjectID]*models.Post)}
}

func (m *memPosts) CreatePost(_ context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post.ID = primitive.NewObjectID()
	post.CreatedAt = time.Now().UTC()
	post.Likes = []primitive.ObjectID{}
	c := *post
	m.items[post.ID] = &c
	m.order = append([]primitive.ObjectID{post.ID}, m.order...)
	return nil
}

func (m *memPosts) GetPostByID(_ context.Context, id primitive.ObjectID) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *memPosts) filter(keep func(*models.Post) bool) []models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Post{}
	for _, id := range m.order {
		if p, ok := m.items[id]; ok && keep(p) {
			out = append(out, *p)
		}
	}
	return out
}

func window(posts []models.Post, skip, limit int64) []models.Post {
	if skip >= int64(len(posts)) {
		return []models.Post{}
	}
	end := skip + limit
	if end > int64(len(posts)) {
		end = int64(len(posts))
	}
	return posts[skip:end]
}

func (m *memPosts) GetPostsByAuthor(_ context.Context, authorID primitive.ObjectID, skip, limit int64) ([]models.Post, int64, error) {
	all := m.filter(func(p *models.Post) bool { return p.AuthorID == authorID })
	return window(all, skip, limit), int64(len(all)), nil
}

func (m *memPosts) GetRecentPosts(_ context.Context, skip, limit int64) ([]models.Post, error) {
	return window(m.filter(func(*models.Post) bool { return true }), skip, limit), nil
}

func (m *memPosts) GetPostsByAuthors(_ context.Context, authorIDs []primitive.ObjectID, skip, limit int64) ([]models.Post, error) {
	all := m.filter(func(p *models.Post) bool { return models.ContainsID(authorIDs, p.AuthorID) })
	return window(all, skip, limit), nil
}

func (m *memPosts) IncrementCommentCount(_ context.Context, postID primitive.ObjectID, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.items[postID]; ok {
		p.CommentCount += delta
	}
	return nil
}

func (m *memPosts) ToggleLike(_ context.Context, postID, userID primitive.ObjectID) (*models.LikeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[postID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if removeFrom(&p.Likes, &p.LikeCount, userID) {
		return &models.LikeResult{Liked: false, LikeCount: p.LikeCount}, nil
	}
	addTo(&p.Likes, &p.LikeCount, userID)
	return &models.LikeResult{Liked: true, LikeCount: p.LikeCount}, nil
}

type memComments struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*models.Comment
}

func newMemComments() *memComments {
	return &memComments{items: make(map[primitive.ObjectID]*models.Comment)}
}

func (m *memComments) CreateComment(_ context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = primitive.NewObjectID()
	c.CreatedAt = time.Now().UTC()
	c.Likes = []primitive.ObjectID{}
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *memComments) GetCommentByID(_ context.Context, id primitive.ObjectID) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memComments) GetCommentsByPost(_ context.Context, postID primitive.ObjectID, skip, limit int64) ([]models.Comment, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Comment
	for _, c := range m.items {
		if c.PostID == postID {
			all = append(all, *c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.Hex() < all[j].ID.Hex() })
	return pageOf(all, int(skip/max(limit, 1))+1, int(limit)), int64(len(all)), nil
}

func (m *memComments) ToggleLike(_ context.Context, commentID, userID primitive.ObjectID) (*models.LikeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[commentID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if removeFrom(&c.Likes, &c.LikeCount, userID) {
		return &models.LikeResult{Liked: false, LikeCount: c.LikeCount}, nil
	}
	addTo(&c.Likes, &c.LikeCount, userID)
	return &models.LikeResult{Liked: true, LikeCount: c.LikeCount}, nil
}

// countersMatch reports whether both counters equal their set sizes.
func countersMatch(u *models.User) bool {
	return u.FollowerCount == len(u.Followers) && u.FollowingCount == len(u.Following)
}
