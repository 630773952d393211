package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/mobile-otp-auth/internal/domain/entity"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateMobile = errors.New("duplicate mobile number")
)

// UserRepository defines the persistence operations on users.
// Lookups return ErrNotFound when no row matches; Add returns
// ErrDuplicateMobile when the mobile number is already taken.
type UserRepository interface {
	FindByMobileNumber(ctx context.Context, mobileNumber string) (*entity.User, error)
	GetByID(ctx context.Context, id string) (*entity.User, error)
	Add(ctx context.Context, u *entity.User) error
	Update(ctx context.Context, u *entity.User) error
	Directory
}

// Directory answers paginated user searches.
type Directory interface {
	Search(ctx context.Context, q SearchQuery) (SearchResult, error)
}

// Indexer keeps an external search index in sync with committed users.
type Indexer interface {
	Index(ctx context.Context, u *entity.User) error
}

// Store is the unit of work. Users() is for plain reads; every command that
// mutates a user runs inside WithinTx, which commits when fn returns nil and
// rolls back otherwise.
type Store interface {
	Users() UserRepository
	WithinTx(ctx context.Context, fn func(ctx context.Context, users UserRepository) error) error
}
