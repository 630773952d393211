package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/mobile-otp-auth/internal/domain/entity"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/repository"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/repository/repotest"
)

func TestStore(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Store { return NewStore() })
}

func TestStore_ReadsAreCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u, _ := entity.NewUser("09123456789")
	require.NoError(t, s.Users().Add(ctx, u))

	got, err := s.Users().GetByID(ctx, u.ID())
	require.NoError(t, err)
	got.Verify()

	again, err := s.Users().GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.False(t, again.IsVerified(), "mutating a loaded user must not leak into the store")
}

func TestStore_TxRespectsCancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	u, _ := entity.NewUser("09123456789")

	err := s.WithinTx(ctx, func(ctx context.Context, users repository.UserRepository) error {
		if err := users.Add(ctx, u); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.Users().GetByID(context.Background(), u.ID())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_ConcurrentTxAreSerialised(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u, _ := entity.NewUser("09123456789")
	require.NoError(t, s.Users().Add(ctx, u))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithinTx(ctx, func(ctx context.Context, users repository.UserRepository) error {
				got, err := users.GetByID(ctx, u.ID())
				if err != nil {
					return err
				}
				if err := got.SetOtp("hash", time.Unix(int64(i), 0)); err != nil {
					return err
				}
				return users.Update(ctx, got)
			})
		}()
	}
	wg.Wait()

	got, err := s.Users().GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.True(t, got.HasPendingOtp())
}
