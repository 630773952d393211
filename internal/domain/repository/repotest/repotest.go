// Package repotest holds behaviour tests shared by every Store backend.
package repotest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/mobile-otp-auth/internal/domain/entity"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/repository"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) repository.Store

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Profile builds a restored user with a completed profile.
func Profile(id, mobile, first, last, email string, dob time.Time) *entity.User {
	return entity.RestoreUser(entity.UserSnapshot{
		ID:           id,
		MobileNumber: mobile,
		IsVerified:   true,
		FirstName:    first,
		LastName:     last,
		Email:        email,
		DateOfBirth:  dob,
	})
}

// Directory is the five-user fixture used by the search tests.
func Directory() []*entity.User {
	return []*entity.User{
		Profile("11111111-1111-1111-1111-111111111111", "09123456789", "John", "Doe", "john.doe@example.com", date(1990, time.January, 1)),
		Profile("22222222-2222-2222-2222-222222222222", "09234567890", "Jane", "Smith", "jane.smith@example.com", date(1985, time.May, 15)),
		Profile("33333333-3333-3333-3333-333333333333", "09345678901", "Alice", "Johnson", "alice.johnson@example.com", date(1992, time.September, 30)),
		Profile("44444444-4444-4444-4444-444444444444", "09456789012", "Bob", "Williams", "bob.williams@example.com", date(1988, time.March, 20)),
		Profile("55555555-5555-5555-5555-555555555555", "09567890123", "Charlie", "Brown", "charlie.brown@example.com", date(1995, time.July, 10)),
	}
}

func seed(t *testing.T, s repository.Store, users ...*entity.User) {
	t.Helper()
	ctx := context.Background()
	for _, u := range users {
		require.NoError(t, s.Users().Add(ctx, u))
	}
}

func lastNames(res repository.SearchResult) []string {
	out := make([]string, 0, len(res.Users))
	for _, u := range res.Users {
		out = append(out, u.LastName())
	}
	return out
}

// Run exercises a Store implementation end to end.
func Run(t *testing.T, newStore Factory) {
	t.Run("AddAndLookup", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u, err := entity.NewUser("09123456789")
		require.NoError(t, err)
		setAt := time.Date(2024, time.August, 2, 12, 0, 0, 0, time.UTC)
		require.NoError(t, u.SetOtp("hash", setAt))
		require.NoError(t, s.Users().Add(ctx, u))

		got, err := s.Users().GetByID(ctx, u.ID())
		require.NoError(t, err)
		assert.Equal(t, "09123456789", got.MobileNumber())
		assert.Equal(t, "hash", got.OtpHash())
		at, ok := got.OtpSetAt()
		require.True(t, ok)
		assert.True(t, setAt.Equal(at))
		assert.True(t, entity.DefaultDateOfBirth.Equal(got.DateOfBirth()))

		got, err = s.Users().FindByMobileNumber(ctx, "09123456789")
		require.NoError(t, err)
		assert.Equal(t, u.ID(), got.ID())
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Users().GetByID(ctx, "99999999-9999-9999-9999-999999999999")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		_, err = s.Users().FindByMobileNumber(ctx, "09000000000")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("DuplicateMobile", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a, _ := entity.NewUser("09123456789")
		b, _ := entity.NewUser("09123456789")
		require.NoError(t, s.Users().Add(ctx, a))
		assert.ErrorIs(t, s.Users().Add(ctx, b), repository.ErrDuplicateMobile)
	})

	t.Run("UpdatePersistsAllFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u, _ := entity.NewUser("09123456789")
		require.NoError(t, u.SetOtp("hash", time.Now().UTC()))
		require.NoError(t, s.Users().Add(ctx, u))

		u.Verify()
		require.NoError(t, u.UpdateProfile("John", "Doe", "john@example.com", date(1990, time.January, 1)))
		require.NoError(t, s.Users().Update(ctx, u))

		got, err := s.Users().GetByID(ctx, u.ID())
		require.NoError(t, err)
		assert.True(t, got.IsVerified())
		assert.False(t, got.HasPendingOtp())
		assert.Equal(t, "John", got.FirstName())
		assert.Equal(t, "Doe", got.LastName())
		assert.Equal(t, "john@example.com", got.Email())
		assert.Equal(t, "1990-01-01", got.DateOfBirth().UTC().Format(repository.DateLayout))
	})

	t.Run("UpdateUnknown", func(t *testing.T) {
		s := newStore(t)
		u, _ := entity.NewUser("09123456789")
		assert.ErrorIs(t, s.Users().Update(context.Background(), u), repository.ErrNotFound)
	})

	t.Run("TxCommits", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u, _ := entity.NewUser("09123456789")
		err := s.WithinTx(ctx, func(ctx context.Context, users repository.UserRepository) error {
			if err := users.Add(ctx, u); err != nil {
				return err
			}
			got, err := users.GetByID(ctx, u.ID())
			if err != nil {
				return err
			}
			return got.SetOtp("hash", time.Now().UTC())
		})
		require.NoError(t, err)
		_, err = s.Users().GetByID(ctx, u.ID())
		assert.NoError(t, err)
	})

	t.Run("TxRollsBackOnError", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u, _ := entity.NewUser("09123456789")
		seed(t, s, u)

		boom := errors.New("boom")
		err := s.WithinTx(ctx, func(ctx context.Context, users repository.UserRepository) error {
			got, err := users.GetByID(ctx, u.ID())
			if err != nil {
				return err
			}
			got.Verify()
			if err := users.Update(ctx, got); err != nil {
				return err
			}
			other, _ := entity.NewUser("09120000000")
			if err := users.Add(ctx, other); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := s.Users().GetByID(ctx, u.ID())
		require.NoError(t, err)
		assert.False(t, got.IsVerified())
		_, err = s.Users().FindByMobileNumber(ctx, "09120000000")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("TxRollsBackOnPanic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u, _ := entity.NewUser("09123456789")
		assert.Panics(t, func() {
			_ = s.WithinTx(ctx, func(ctx context.Context, users repository.UserRepository) error {
				if err := users.Add(ctx, u); err != nil {
					return err
				}
				panic("boom")
			})
		})
		_, err := s.Users().GetByID(ctx, u.ID())
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("SearchAllOrderedByLastName", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, Directory()...)
		res, err := s.Users().Search(context.Background(), repository.SearchQuery{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 5, res.TotalCount)
		assert.Equal(t, []string{"Brown", "Doe", "Johnson", "Smith", "Williams"}, lastNames(res))
	})

	t.Run("SearchAbsentLastNameFirst", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, Directory()...)
		anon, _ := entity.NewUser("09111111111")
		seed(t, s, anon)
		res, err := s.Users().Search(context.Background(), repository.SearchQuery{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, res.Users, 6)
		assert.Equal(t, anon.ID(), res.Users[0].ID())
	})

	t.Run("SearchPaging", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, Directory()...)
		ctx := context.Background()

		res, err := s.Users().Search(ctx, repository.SearchQuery{Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, res.TotalCount)
		assert.Equal(t, []string{"Johnson", "Smith"}, lastNames(res))

		res, err = s.Users().Search(ctx, repository.SearchQuery{Page: 3, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"Williams"}, lastNames(res))

		res, err = s.Users().Search(ctx, repository.SearchQuery{Page: 9, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, res.TotalCount)
		assert.Empty(t, res.Users)
	})

	t.Run("SearchHugePage", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, Directory()...)
		ctx := context.Background()

		for _, q := range []repository.SearchQuery{
			{Page: math.MaxInt, PageSize: 50},
			{Page: math.MaxInt/50 + 2, PageSize: 50},
			{Page: math.MaxInt, PageSize: 1},
			{Term: "example.com", Page: math.MaxInt, PageSize: 10},
		} {
			res, err := s.Users().Search(ctx, q)
			require.NoError(t, err, "page %d size %d", q.Page, q.PageSize)
			assert.Equal(t, 5, res.TotalCount)
			assert.NotNil(t, res.Users)
			assert.Empty(t, res.Users)
		}
	})

	t.Run("SearchClampsPageSize", func(t *testing.T) {
		s := newStore(t)
		users := make([]*entity.User, 0, 55)
		for i := 0; i < 55; i++ {
			u, _ := entity.NewUser("0912" + time.Date(2000, 1, 1, 0, 0, i, 0, time.UTC).Format("150405") + "0")
			users = append(users, u)
		}
		seed(t, s, users...)
		res, err := s.Users().Search(context.Background(), repository.SearchQuery{Page: 1, PageSize: 500})
		require.NoError(t, err)
		assert.Equal(t, 55, res.TotalCount)
		assert.Len(t, res.Users, repository.MaxPageSize)
	})

	t.Run("SearchText", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, Directory()...)
		ctx := context.Background()

		res, err := s.Users().Search(ctx, repository.SearchQuery{Term: "doe", Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, res.TotalCount)
		assert.Equal(t, []string{"Doe"}, lastNames(res))

		res, err = s.Users().Search(ctx, repository.SearchQuery{Term: "JOHN", Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"Doe", "Johnson"}, lastNames(res))

		res, err = s.Users().Search(ctx, repository.SearchQuery{Term: "0923", Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"Smith"}, lastNames(res))

		res, err = s.Users().Search(ctx, repository.SearchQuery{Term: "nobody", Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 0, res.TotalCount)
		assert.Empty(t, res.Users)
	})

	t.Run("SearchTextSkipsAbsentEmail", func(t *testing.T) {
		s := newStore(t)
		anon, _ := entity.NewUser("09111111111")
		seed(t, s, anon)
		res, err := s.Users().Search(context.Background(), repository.SearchQuery{Term: "example", Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 0, res.TotalCount)
	})

	t.Run("SearchBirthDate", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, Directory()...)
		withTime := Profile("66666666-6666-6666-6666-666666666666", "09678901234", "Dana", "Evans", "dana@example.com",
			time.Date(1990, time.January, 1, 18, 45, 0, 0, time.UTC))
		seed(t, s, withTime)

		res, err := s.Users().Search(context.Background(), repository.SearchQuery{Term: "1990-01-01", Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 2, res.TotalCount)
		assert.Equal(t, []string{"Doe", "Evans"}, lastNames(res))
	})
}
