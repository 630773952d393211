// Package memory is a process-local Store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oksasatya/mobile-otp-auth/internal/domain/entity"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/repository"
)

// Store keeps users as snapshots so callers never share entity pointers
// with the store. Transactions are serialised and staged on a copy that
// replaces the live map on commit.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	rows map[string]entity.UserSnapshot
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{rows: make(map[string]entity.UserSnapshot)}
}

func (s *Store) Users() repository.UserRepository {
	return &userRepo{store: s}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, users repository.UserRepository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	staged := make(map[string]entity.UserSnapshot, len(s.rows))
	for k, v := range s.rows {
		staged[k] = v
	}
	s.mu.RUnlock()

	if err := fn(ctx, &userRepo{store: s, staged: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.mu.Lock()
	s.rows = staged
	s.mu.Unlock()
	return nil
}

type userRepo struct {
	store  *Store
	staged map[string]entity.UserSnapshot
}

// view runs fn against the transaction's staged rows, or the live rows
// under a read lock.
func (r *userRepo) view(fn func(rows map[string]entity.UserSnapshot)) {
	if r.staged != nil {
		fn(r.staged)
		return
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	fn(r.store.rows)
}

// write runs fn against the staged rows, or takes the store's transaction
// lock so it cannot be lost under a concurrent commit.
func (r *userRepo) write(fn func(rows map[string]entity.UserSnapshot) error) error {
	if r.staged != nil {
		return fn(r.staged)
	}
	r.store.txMu.Lock()
	defer r.store.txMu.Unlock()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.rows)
}

func (r *userRepo) FindByMobileNumber(_ context.Context, mobileNumber string) (*entity.User, error) {
	var found *entity.User
	r.view(func(rows map[string]entity.UserSnapshot) {
		for _, row := range rows {
			if row.MobileNumber == mobileNumber {
				found = entity.RestoreUser(row)
				return
			}
		}
	})
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	var found *entity.User
	r.view(func(rows map[string]entity.UserSnapshot) {
		if row, ok := rows[id]; ok {
			found = entity.RestoreUser(row)
		}
	})
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r *userRepo) Add(_ context.Context, u *entity.User) error {
	snap := u.Snapshot()
	return r.write(func(rows map[string]entity.UserSnapshot) error {
		for _, row := range rows {
			if row.MobileNumber == snap.MobileNumber {
				return repository.ErrDuplicateMobile
			}
		}
		if _, ok := rows[snap.ID]; ok {
			return fmt.Errorf("insert user %s: id already exists", snap.ID)
		}
		rows[snap.ID] = snap
		return nil
	})
}

func (r *userRepo) Update(_ context.Context, u *entity.User) error {
	snap := u.Snapshot()
	return r.write(func(rows map[string]entity.UserSnapshot) error {
		if _, ok := rows[snap.ID]; !ok {
			return repository.ErrNotFound
		}
		rows[snap.ID] = snap
		return nil
	})
}

func (r *userRepo) Search(_ context.Context, q repository.SearchQuery) (repository.SearchResult, error) {
	q = q.Normalized()
	filter := repository.ParseSearchTerm(q.Term)

	var matched []*entity.User
	r.view(func(rows map[string]entity.UserSnapshot) {
		for _, row := range rows {
			u := entity.RestoreUser(row)
			if filter.Match(u) {
				matched = append(matched, u)
			}
		}
	})
	sort.Slice(matched, func(i, j int) bool { return repository.Less(matched[i], matched[j]) })

	res := repository.SearchResult{TotalCount: len(matched), Users: []*entity.User{}}
	if q.PastEnd(len(matched)) {
		return res, nil
	}
	start := q.Offset()
	end := min(start+q.Limit(), len(matched))
	res.Users = matched[start:end]
	return res, nil
}
