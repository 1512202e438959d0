package repair

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

const defaultConcurrency = 8

// Summary counts what one pass found and, unless DryRun, fixed.
type Summary struct {
	StartedAt           time.Time `json:"startedAt"`
	FinishedAt          time.Time `json:"finishedAt"`
	DryRun              bool      `json:"dryRun"`
	Aborted             bool      `json:"aborted"`
	UsersScanned        int       `json:"usersScanned"`
	UsersCorrected      int       `json:"usersCorrected"`
	DanglingRefsRemoved int       `json:"danglingRefsRemoved"`
	CountersCorrected   int       `json:"countersCorrected"`
	ItemsScanned        int       `json:"itemsScanned"`
	ItemsCorrected      int       `json:"itemsCorrected"`
	OrphansDeleted      int       `json:"orphansDeleted"`
}

// Changed reports whether the pass found anything to correct.
func (s *Summary) Changed() bool {
	return s.UsersCorrected > 0 || s.ItemsCorrected > 0 || s.OrphansDeleted > 0
}

func (s *Summary) record(err error) *models.RepairRun {
	run := &models.RepairRun{
		StartedAt:           s.StartedAt,
		FinishedAt:          s.FinishedAt,
		DryRun:              s.DryRun,
		Aborted:             s.Aborted,
		UsersScanned:        s.UsersScanned,
		UsersCorrected:      s.UsersCorrected,
		DanglingRefsRemoved: s.DanglingRefsRemoved,
		CountersCorrected:   s.CountersCorrected,
		ItemsScanned:        s.ItemsScanned,
		ItemsCorrected:      s.ItemsCorrected,
		OrphansDeleted:      s.OrphansDeleted,
	}
	if err != nil {
		run.Error = err.Error()
	}
	return run
}

// Service reconciles the follow graph and like sets against the set of
// users that still exist. Every write it makes is a full recompute of one
// document, so a pass can be aborted at any point and rerun.
type Service struct {
	users       repositories.UserGraphScanner
	posts       repositories.ContentScanner
	comments    repositories.ContentScanner
	runs        repositories.RepairRunRepository
	concurrency int
	log         *zap.Logger
}

// NewService builds the repair pass. posts, comments and runs may be nil.
func NewService(users repositories.UserGraphScanner, posts, comments repositories.ContentScanner, runs repositories.RepairRunRepository, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	return &Service{
		users:       users,
		posts:       posts,
		comments:    comments,
		runs:        runs,
		concurrency: concurrency,
		log:         logger.Named("repair"),
	}
}

// Run performs a full pass and writes every correction.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	return s.pass(ctx, false)
}

// Check performs the same pass without writing and reports the drift found.
func (s *Service) Check(ctx context.Context) (*Summary, error) {
	return s.pass(ctx, true)
}

// tally holds the counters shared by the workers of one run.
type tally struct {
	mu sync.Mutex
	Summary
}

func (t *tally) add(fn func(*Summary)) {
	t.mu.Lock()
	fn(&t.Summary)
	t.mu.Unlock()
}

func (s *Service) pass(ctx context.Context, dryRun bool) (*Summary, error) {
	t := &tally{Summary: Summary{StartedAt: time.Now().UTC(), DryRun: dryRun}}

	err := s.reconcile(ctx, t, dryRun)

	t.FinishedAt = time.Now().UTC()
	t.Aborted = errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	summary := t.Summary

	fields := []zap.Field{
		zap.Bool("dry_run", dryRun),
		zap.Bool("aborted", summary.Aborted),
		zap.Int("users_scanned", summary.UsersScanned),
		zap.Int("users_corrected", summary.UsersCorrected),
		zap.Int("dangling_refs_removed", summary.DanglingRefsRemoved),
		zap.Int("counters_corrected", summary.CountersCorrected),
		zap.Int("items_scanned", summary.ItemsScanned),
		zap.Int("items_corrected", summary.ItemsCorrected),
		zap.Int("orphans_deleted", summary.OrphansDeleted),
		zap.Duration("took", summary.FinishedAt.Sub(summary.StartedAt)),
	}
	if err != nil {
		s.log.Error("repair pass failed", append(fields, zap.Error(err))...)
	} else {
		s.log.Info("repair pass finished", fields...)
	}

	s.saveRun(ctx, &summary, err)
	return &summary, err
}

func (s *Service) saveRun(ctx context.Context, summary *Summary, runErr error) {
	if s.runs == nil {
		return
	}
	// the pass may have been cancelled; the audit row is still written
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.runs.CreateRun(saveCtx, summary.record(runErr)); err != nil {
		s.log.Warn("failed to record repair run", zap.Error(err))
	}
}

// idSet is the set of live ids a pass checks references against: the
// snapshot taken when the pass started plus ids confirmed to exist since.
// Anything missing from the snapshot is re-read before it is treated as
// gone, so documents created during the pass are never pruned.
type idSet struct {
	snapshot map[primitive.ObjectID]struct{}

	mu   sync.RWMutex
	late map[primitive.ObjectID]struct{}
}

func newIDSet(snapshot map[primitive.ObjectID]struct{}) *idSet {
	return &idSet{snapshot: snapshot, late: make(map[primitive.ObjectID]struct{})}
}

func (s *idSet) has(id primitive.ObjectID) bool {
	if _, ok := s.snapshot[id]; ok {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.late[id]
	return ok
}

type lookupFunc func(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]struct{}, error)

// confirm re-reads ids and admits the ones that exist now. It reports
// whether any were admitted.
func (s *idSet) confirm(ctx context.Context, lookup lookupFunc, ids []primitive.ObjectID) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	found, err := lookup(ctx, ids)
	if err != nil {
		return false, err
	}
	if len(found) == 0 {
		return false, nil
	}
	s.mu.Lock()
	for id := range found {
		s.late[id] = struct{}{}
	}
	s.mu.Unlock()
	return true, nil
}

// parentPosts answers whether a comment's post is still there.
type parentPosts struct {
	live *idSet
	// orphaned by this pass, already deleted or about to be
	orphaned map[primitive.ObjectID]struct{}
}

func (p *parentPosts) has(id primitive.ObjectID) bool {
	if _, ok := p.orphaned[id]; ok {
		return false
	}
	return p.live.has(id)
}

func (s *Service) reconcile(ctx context.Context, t *tally, dryRun bool) error {
	snapshot, err := s.users.UserIDs(ctx)
	if err != nil {
		return err
	}
	users := newIDSet(snapshot)

	if err := s.reconcileUsers(ctx, t, users, dryRun); err != nil {
		return err
	}

	var orphanPosts map[primitive.ObjectID]struct{}
	if s.posts != nil {
		orphanPosts, err = s.reconcileContent(ctx, t, s.posts, users, nil, dryRun)
		if err != nil {
			return err
		}
	}

	if s.comments != nil {
		var parents *parentPosts
		if s.posts != nil {
			live, err := s.posts.IDs(ctx)
			if err != nil {
				return err
			}
			parents = &parentPosts{live: newIDSet(live), orphaned: orphanPosts}
		}
		if _, err := s.reconcileContent(ctx, t, s.comments, users, parents, dryRun); err != nil {
			return err
		}
	}
	return nil
}

// userDrift is what one user document needs to satisfy the graph invariants.
type userDrift struct {
	remove           map[string][]primitive.ObjectID
	dangling         int
	followerCount    int
	followingCount   int
	countersDrifted  bool
	duplicatesPruned bool
}

func (d *userDrift) changed() bool {
	return d.dangling > 0 || d.countersDrifted || d.duplicatesPruned
}

func (d *userDrift) danglingIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, d.dangling)
	for _, set := range d.remove {
		ids = append(ids, set...)
	}
	return ids
}

// filterSet returns the ids in set that are not live, and the number of
// distinct live ids left.
func filterSet(set []primitive.ObjectID, live func(primitive.ObjectID) bool) (dangling []primitive.ObjectID, kept int, duplicates bool) {
	seen := make(map[primitive.ObjectID]struct{}, len(set))
	for _, id := range set {
		if _, dup := seen[id]; dup {
			duplicates = true
			continue
		}
		seen[id] = struct{}{}
		if !live(id) {
			dangling = append(dangling, id)
			continue
		}
		kept++
	}
	return dangling, kept, duplicates
}

func inspectUser(u *models.User, live func(primitive.ObjectID) bool) *userDrift {
	d := &userDrift{remove: make(map[string][]primitive.ObjectID, 3)}

	sets := []struct {
		field string
		ids   []primitive.ObjectID
		count *int
	}{
		{models.FieldFollowers, u.Followers, &d.followerCount},
		{models.FieldFollowing, u.Following, &d.followingCount},
		{models.FieldFollowRequests, u.FollowRequests, nil},
	}
	for _, set := range sets {
		dangling, kept, dup := filterSet(set.ids, live)
		if len(dangling) > 0 {
			d.remove[set.field] = dangling
			d.dangling += len(dangling)
		}
		d.duplicatesPruned = d.duplicatesPruned || dup
		if set.count != nil {
			*set.count = kept
		}
	}
	d.countersDrifted = d.followerCount != u.FollowerCount || d.followingCount != u.FollowingCount
	return d
}

func (s *Service) reconcileUsers(ctx context.Context, t *tally, users *idSet, dryRun bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	scanErr := s.users.ForEachUser(gctx, func(u *models.User) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		t.add(func(s *Summary) { s.UsersScanned++ })

		drift := inspectUser(u, users.has)
		if !drift.changed() {
			return nil
		}

		g.Go(func() error {
			if drift.dangling > 0 {
				admitted, err := users.confirm(gctx, s.users.ExistingUserIDs, drift.danglingIDs())
				if err != nil {
					return err
				}
				if admitted {
					if drift = inspectUser(u, users.has); !drift.changed() {
						return nil
					}
				}
			}
			if drift.countersDrifted {
				s.log.Warn("follow counter drift",
					zap.String("user_id", u.ID.Hex()),
					zap.Int("follower_count", u.FollowerCount),
					zap.Int("follower_count_actual", drift.followerCount),
					zap.Int("following_count", u.FollowingCount),
					zap.Int("following_count_actual", drift.followingCount))
			}
			if !dryRun {
				if err := s.users.ReconcileUser(gctx, u.ID, drift.remove); err != nil {
					return err
				}
			}
			t.add(func(s *Summary) {
				s.UsersCorrected++
				s.DanglingRefsRemoved += drift.dangling
				if drift.countersDrifted {
					s.CountersCorrected++
				}
			})
			return nil
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return scanErr
}

// orphaned reports whether item's author, or for a comment its post, is gone.
// Ids missing from the pass snapshots are re-read first.
func (s *Service) orphaned(ctx context.Context, item *repositories.LikeableItem, users *idSet, parents *parentPosts) (bool, error) {
	if !users.has(item.AuthorID) {
		found, err := users.confirm(ctx, s.users.ExistingUserIDs, []primitive.ObjectID{item.AuthorID})
		if err != nil {
			return false, err
		}
		if !found {
			return true, nil
		}
	}
	if parents == nil || item.PostID.IsZero() || parents.has(item.PostID) {
		return false, nil
	}
	if _, ok := parents.orphaned[item.PostID]; ok {
		return true, nil
	}
	found, err := parents.live.confirm(ctx, s.posts.ExistingIDs, []primitive.ObjectID{item.PostID})
	if err != nil {
		return false, err
	}
	return !found, nil
}

// reconcileContent prunes like sets and deletes items whose author, or for
// comments whose post, is gone. It returns the ids of the deleted items.
func (s *Service) reconcileContent(ctx context.Context, t *tally, scanner repositories.ContentScanner, users *idSet, parents *parentPosts, dryRun bool) (map[primitive.ObjectID]struct{}, error) {
	var (
		mu      sync.Mutex
		orphans = make(map[primitive.ObjectID]struct{})
	)
	kind := scanner.Kind()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	scanErr := scanner.ForEachItem(gctx, func(item *repositories.LikeableItem) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		t.add(func(s *Summary) { s.ItemsScanned++ })

		suspect := !users.has(item.AuthorID) ||
			(parents != nil && !item.PostID.IsZero() && !parents.has(item.PostID))
		dangling, kept, dup := filterSet(item.Likes, users.has)
		if !suspect && len(dangling) == 0 && kept == item.LikeCount && !dup {
			return nil
		}

		g.Go(func() error {
			if suspect {
				orphan, err := s.orphaned(gctx, item, users, parents)
				if err != nil {
					return err
				}
				if orphan {
					if !dryRun {
						if err := scanner.DeleteItem(gctx, item.ID); err != nil {
							return err
						}
					}
					mu.Lock()
					orphans[item.ID] = struct{}{}
					mu.Unlock()
					s.log.Info("orphaned content removed", zap.String("kind", kind), zap.String("id", item.ID.Hex()), zap.Bool("dry_run", dryRun))
					t.add(func(s *Summary) { s.OrphansDeleted++ })
					return nil
				}
			}
			return s.reconcileLikes(gctx, t, scanner, item, users, dryRun)
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return orphans, err
	}
	return orphans, scanErr
}

func (s *Service) reconcileLikes(ctx context.Context, t *tally, scanner repositories.ContentScanner, item *repositories.LikeableItem, users *idSet, dryRun bool) error {
	dangling, kept, dup := filterSet(item.Likes, users.has)
	if len(dangling) > 0 {
		admitted, err := users.confirm(ctx, s.users.ExistingUserIDs, dangling)
		if err != nil {
			return err
		}
		if admitted {
			dangling, kept, dup = filterSet(item.Likes, users.has)
		}
	}
	drifted := kept != item.LikeCount
	if len(dangling) == 0 && !drifted && !dup {
		return nil
	}

	if drifted {
		s.log.Warn("like counter drift",
			zap.String("kind", scanner.Kind()),
			zap.String("id", item.ID.Hex()),
			zap.Int("like_count", item.LikeCount),
			zap.Int("like_count_actual", kept))
	}
	if !dryRun {
		if err := scanner.ReconcileLikes(ctx, item.ID, dangling); err != nil {
			return err
		}
	}
	t.add(func(s *Summary) {
		s.ItemsCorrected++
		s.DanglingRefsRemoved += len(dangling)
		if drifted {
			s.CountersCorrected++
		}
	})
	return nil
}
