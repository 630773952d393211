package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oksasatya/mobile-otp-auth/internal/domain/entity"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/repository"
	"github.com/oksasatya/mobile-otp-auth/internal/infrastructure/dbx"
)

const (
	pgUniqueViolation  = "23505"
	pgInvalidTextInput = "22P02"
)

const userColumns = `id, mobile_number, is_verified, first_name, last_name, email, date_of_birth, otp_hash, otp_set_at`

// UserRepository is the Postgres implementation of repository.UserRepository.
// Inside a transaction single-row reads take a row lock so concurrent
// commands on the same user are applied one after the other.
type UserRepository struct {
	db        dbx.DBTX
	forUpdate bool
}

var _ repository.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db dbx.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) lockClause() string {
	if r.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*entity.User, error) {
	var (
		s                       entity.UserSnapshot
		first, last, email, otp sql.NullString
		otpSetAt                sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.MobileNumber, &s.IsVerified, &first, &last, &email, &s.DateOfBirth, &otp, &otpSetAt); err != nil {
		return nil, err
	}
	s.FirstName = first.String
	s.LastName = last.String
	s.Email = email.String
	s.DateOfBirth = s.DateOfBirth.UTC()
	s.OtpHash = otp.String
	if otpSetAt.Valid {
		at := otpSetAt.Time.UTC()
		s.OtpSetAt = &at
	}
	return entity.RestoreUser(s), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + where + r.lockClause()
	u, err := scanUser(r.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || pgCode(err) == pgInvalidTextInput {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByMobileNumber(ctx context.Context, mobileNumber string) (*entity.User, error) {
	return r.getOne(ctx, `mobile_number = $1`, mobileNumber)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *UserRepository) Add(ctx context.Context, u *entity.User) error {
	s := u.Snapshot()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, mobile_number, is_verified, first_name, last_name, email, date_of_birth, otp_hash, otp_set_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.MobileNumber, s.IsVerified, nullString(s.FirstName), nullString(s.LastName), nullString(s.Email),
		s.DateOfBirth, nullString(s.OtpHash), nullTime(s.OtpSetAt),
	)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return repository.ErrDuplicateMobile
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	s := u.Snapshot()
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET is_verified = $2, first_name = $3, last_name = $4, email = $5, date_of_birth = $6,
		    otp_hash = $7, otp_set_at = $8, updated_at = now()
		WHERE id = $1`,
		s.ID, s.IsVerified, nullString(s.FirstName), nullString(s.LastName), nullString(s.Email),
		s.DateOfBirth, nullString(s.OtpHash), nullTime(s.OtpSetAt),
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// searchWhere renders the filter as a WHERE clause using $1 when an
// argument is needed.
func searchWhere(f repository.SearchFilter) (string, []any) {
	switch f.Kind {
	case repository.FilterBirthDate:
		return ` WHERE (date_of_birth AT TIME ZONE 'UTC')::date = $1::date`, []any{f.DateString()}
	case repository.FilterText:
		return ` WHERE strpos(lower(mobile_number), $1) > 0
		   OR strpos(lower(first_name), $1) > 0
		   OR strpos(lower(last_name), $1) > 0
		   OR strpos(lower(email), $1) > 0`, []any{strings.ToLower(f.Text)}
	default:
		return "", nil
	}
}

func (r *UserRepository) Search(ctx context.Context, q repository.SearchQuery) (repository.SearchResult, error) {
	q = q.Normalized()
	where, args := searchWhere(repository.ParseSearchTerm(q.Term))

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users`+where, args...).Scan(&total); err != nil {
		return repository.SearchResult{}, fmt.Errorf("count users: %w", err)
	}
	if q.PastEnd(total) {
		return repository.SearchResult{Users: []*entity.User{}, TotalCount: total}, nil
	}

	n := len(args)
	page := `SELECT ` + userColumns + ` FROM users` + where +
		fmt.Sprintf(` ORDER BY COALESCE(last_name, '') COLLATE "C", id LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.db.QueryContext(ctx, page, append(args, q.Limit(), q.Offset())...)
	if err != nil {
		return repository.SearchResult{}, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := make([]*entity.User, 0, q.Limit())
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return repository.SearchResult{}, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return repository.SearchResult{}, fmt.Errorf("search users: %w", err)
	}
	return repository.SearchResult{Users: users, TotalCount: total}, nil
}
