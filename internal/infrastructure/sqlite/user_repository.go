package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/oksasatya/mobile-otp-auth/internal/domain/entity"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/repository"
	"github.com/oksasatya/mobile-otp-auth/internal/infrastructure/dbx"
)

const userColumns = `id, mobile_number, is_verified, first_name, last_name, email, date_of_birth, otp_hash, otp_set_at`

// UserRepository implements repository.UserRepository on SQLite. Times are
// stored as UTC RFC 3339 text so the first ten characters are the date.
type UserRepository struct {
	db dbx.DBTX
}

var _ repository.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db dbx.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*entity.User, error) {
	var (
		s                       entity.UserSnapshot
		dob                     string
		first, last, email, otp sql.NullString
		otpSetAt                sql.NullString
	)
	if err := row.Scan(&s.ID, &s.MobileNumber, &s.IsVerified, &first, &last, &email, &dob, &otp, &otpSetAt); err != nil {
		return nil, err
	}
	d, err := time.Parse(time.RFC3339Nano, dob)
	if err != nil {
		return nil, fmt.Errorf("parse date_of_birth: %w", err)
	}
	s.DateOfBirth = d.UTC()
	s.FirstName = first.String
	s.LastName = last.String
	s.Email = email.String
	s.OtpHash = otp.String
	if otpSetAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, otpSetAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse otp_set_at: %w", err)
		}
		at = at.UTC()
		s.OtpSetAt = &at
	}
	return entity.RestoreUser(s), nil
}

func isUniqueConstraintError(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*entity.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByMobileNumber(ctx context.Context, mobileNumber string) (*entity.User, error) {
	return r.getOne(ctx, `mobile_number = ?`, mobileNumber)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *UserRepository) Add(ctx context.Context, u *entity.User) error {
	s := u.Snapshot()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, mobile_number, is_verified, first_name, last_name, email, date_of_birth, otp_hash, otp_set_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.MobileNumber, s.IsVerified, nullString(s.FirstName), nullString(s.LastName), nullString(s.Email),
		formatTime(s.DateOfBirth), nullString(s.OtpHash), nullTime(s.OtpSetAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return repository.ErrDuplicateMobile
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	s := u.Snapshot()
	res, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET is_verified = ?, first_name = ?, last_name = ?, email = ?, date_of_birth = ?,
		     otp_hash = ?, otp_set_at = ?, updated_at = ?
		 WHERE id = ?`,
		s.IsVerified, nullString(s.FirstName), nullString(s.LastName), nullString(s.Email),
		formatTime(s.DateOfBirth), nullString(s.OtpHash), nullTime(s.OtpSetAt), formatTime(time.Now()), s.ID,
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

func searchWhere(f repository.SearchFilter) (string, []any) {
	switch f.Kind {
	case repository.FilterBirthDate:
		return ` WHERE substr(date_of_birth, 1, 10) = ?`, []any{f.DateString()}
	case repository.FilterText:
		t := strings.ToLower(f.Text)
		return ` WHERE instr(lower(mobile_number), ?) > 0
		   OR instr(lower(first_name), ?) > 0
		   OR instr(lower(last_name), ?) > 0
		   OR instr(lower(email), ?) > 0`, []any{t, t, t, t}
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

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users`+where+` ORDER BY COALESCE(last_name, ''), id LIMIT ? OFFSET ?`,
		append(args, q.Limit(), q.Offset())...,
	)
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
