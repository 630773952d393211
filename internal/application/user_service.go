package application

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/mobile-otp-auth/internal/domain/entity"
	repo "github.com/oksasatya/mobile-otp-auth/internal/domain/repository"
	"github.com/oksasatya/mobile-otp-auth/pkg/helpers"
)

// Deps are the collaborators of Service. Directory, Indexer and Notifier
// are optional; Directory falls back to the store's own search.
type Deps struct {
	Store     repo.Store
	Directory repo.Directory
	Indexer   repo.Indexer
	OTP       OTPService
	Tokens    TokenIssuer
	Notifier  Notifier
	Clock     helpers.Clock
	Logger    *logrus.Logger
}

type Service struct {
	store     repo.Store
	directory repo.Directory
	indexer   repo.Indexer
	otp       OTPService
	tokens    TokenIssuer
	notifier  Notifier
	clock     helpers.Clock
	logger    *logrus.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		store:     d.Store,
		directory: d.Directory,
		indexer:   d.Indexer,
		otp:       d.OTP,
		tokens:    d.Tokens,
		notifier:  d.Notifier,
		clock:     d.Clock,
		logger:    d.Logger,
	}
	if s.directory == nil {
		s.directory = d.Store.Users()
	}
	if s.clock == nil {
		s.clock = helpers.SystemClock{}
	}
	if s.logger == nil {
		s.logger = logrus.New()
		s.logger.SetOutput(io.Discard)
	}
	return s
}

type RegisterResult struct {
	ID  string `json:"id"`
	Otp string `json:"otp"`
}

type LoginResult struct {
	ID  string `json:"id"`
	Otp string `json:"otp"`
}

type VerifyOtpResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CompleteProfileInput struct {
	UserID      string
	FirstName   string
	LastName    string
	Email       string
	DateOfBirth time.Time
}

type CompleteProfileResult struct {
	UserID      string    `json:"user_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	DateOfBirth time.Time `json:"date_of_birth"`
}

type ListUsersInput struct {
	SearchTerm string
	Page       int
	PageSize   int
}

type ListUsersResult struct {
	Users      []*entity.User
	TotalCount int
	Page       int
	PageSize   int
}

// issueOtp generates a fresh code and stores its hash on u.
func (s *Service) issueOtp(u *entity.User) (string, error) {
	code, hash, err := s.otp.Generate()
	if err != nil {
		return "", err
	}
	if err := u.SetOtp(hash, s.clock.Now()); err != nil {
		return "", err
	}
	return code, nil
}

// Register creates an unverified account for mobileNumber and returns its
// first OTP.
func (s *Service) Register(ctx context.Context, mobileNumber string) (RegisterResult, error) {
	var (
		res     RegisterResult
		created *entity.User
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, users repo.UserRepository) error {
		if _, err := users.FindByMobileNumber(ctx, mobileNumber); err == nil {
			return ErrUserAlreadyExists
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		u, err := entity.NewUser(mobileNumber)
		if err != nil {
			return err
		}
		code, err := s.issueOtp(u)
		if err != nil {
			return err
		}
		if err := users.Add(ctx, u); err != nil {
			if errors.Is(err, repo.ErrDuplicateMobile) {
				return ErrUserAlreadyExists
			}
			return err
		}
		res = RegisterResult{ID: u.ID(), Otp: code}
		created = u
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("mobile_number", mobileNumber).Warn("register failed")
		return RegisterResult{}, err
	}
	s.logger.WithFields(logrus.Fields{"user_id": res.ID, "mobile_number": mobileNumber}).Info("user registered")
	s.index(ctx, created)
	return res, nil
}

// Login issues a new OTP for an existing account, replacing any pending one.
func (s *Service) Login(ctx context.Context, mobileNumber string) (LoginResult, error) {
	var res LoginResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, users repo.UserRepository) error {
		u, err := users.FindByMobileNumber(ctx, mobileNumber)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		code, err := s.issueOtp(u)
		if err != nil {
			return err
		}
		if err := users.Update(ctx, u); err != nil {
			return err
		}
		res = LoginResult{ID: u.ID(), Otp: code}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("mobile_number", mobileNumber).Warn("login failed")
		return LoginResult{}, err
	}
	s.logger.WithFields(logrus.Fields{"user_id": res.ID, "mobile_number": mobileNumber}).Info("otp issued")
	return res, nil
}

// VerifyOtp checks code against the user's pending OTP. An expired OTP is
// cleared and the clearing is committed before ErrOtpExpired is returned.
// A wrong code leaves the pending OTP in place.
func (s *Service) VerifyOtp(ctx context.Context, userID, code string) (VerifyOtpResult, error) {
	var (
		res      VerifyOtpResult
		expired  bool
		verified *entity.User
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, users repo.UserRepository) error {
		u, err := users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		if u.IsOtpExpired(s.clock.Now()) {
			u.RemoveExpiredOtp()
			expired = true
			return users.Update(ctx, u)
		}
		if !s.otp.Verify(u.OtpHash(), code) {
			return ErrOtpInvalid
		}

		u.Verify()
		if err := users.Update(ctx, u); err != nil {
			return err
		}
		token, exp, err := s.tokens.GenerateAccessToken(helpers.TokenSubject{
			ID:        u.ID(),
			Email:     u.Email(),
			FirstName: u.FirstName(),
			LastName:  u.LastName(),
		})
		if err != nil {
			return err
		}
		res = VerifyOtpResult{Token: token, ExpiresAt: exp}
		verified = u
		return nil
	})
	if err == nil && expired {
		err = ErrOtpExpired
	}
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("otp verification failed")
		return VerifyOtpResult{}, err
	}
	s.index(ctx, verified)
	s.logger.WithField("user_id", userID).Info("otp verified")
	return res, nil
}

// CompleteProfile overwrites the user's profile fields.
func (s *Service) CompleteProfile(ctx context.Context, in CompleteProfileInput) (CompleteProfileResult, error) {
	var updated *entity.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, users repo.UserRepository) error {
		u, err := users.GetByID(ctx, in.UserID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if err := u.UpdateProfile(in.FirstName, in.LastName, in.Email, in.DateOfBirth); err != nil {
			return err
		}
		if err := users.Update(ctx, u); err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("user_id", in.UserID).Warn("complete profile failed")
		return CompleteProfileResult{}, err
	}
	s.logger.WithField("user_id", in.UserID).Info("profile completed")

	s.index(ctx, updated)
	s.notifyProfileCompleted(ctx, updated)

	return CompleteProfileResult{
		UserID:      updated.ID(),
		FirstName:   updated.FirstName(),
		LastName:    updated.LastName(),
		Email:       updated.Email(),
		DateOfBirth: updated.DateOfBirth(),
	}, nil
}

// ListUsers returns one page of the directory. Page sizes above
// repo.MaxPageSize are clamped rather than rejected.
func (s *Service) ListUsers(ctx context.Context, in ListUsersInput) (ListUsersResult, error) {
	fields := map[string]string{}
	if in.Page < 1 {
		fields["page"] = "must be greater than 0"
	}
	if in.PageSize < 1 {
		fields["page_size"] = "must be greater than 0"
	}
	if len(fields) > 0 {
		return ListUsersResult{}, ErrInvalidPagination.WithFields(fields)
	}

	q := repo.SearchQuery{Term: in.SearchTerm, Page: in.Page, PageSize: repo.ClampPageSize(in.PageSize)}
	found, err := s.directory.Search(ctx, q)
	if err != nil {
		s.logger.WithError(err).WithField("search_term", in.SearchTerm).Error("list users failed")
		return ListUsersResult{}, err
	}
	return ListUsersResult{
		Users:      found.Users,
		TotalCount: found.TotalCount,
		Page:       q.Page,
		PageSize:   q.PageSize,
	}, nil
}

func (s *Service) index(ctx context.Context, u *entity.User) {
	if s.indexer == nil || u == nil {
		return
	}
	if err := s.indexer.Index(ctx, u); err != nil {
		s.logger.WithError(err).WithField("user_id", u.ID()).Warn("search index update failed")
	}
}

func (s *Service) notifyProfileCompleted(ctx context.Context, u *entity.User) {
	if s.notifier == nil {
		return
	}
	ev := ProfileCompleted{
		UserID:       u.ID(),
		MobileNumber: u.MobileNumber(),
		FirstName:    u.FirstName(),
		LastName:     u.LastName(),
		Email:        u.Email(),
		CompletedAt:  s.clock.Now(),
	}
	if err := s.notifier.ProfileCompleted(ctx, ev); err != nil {
		s.logger.WithError(err).WithField("user_id", u.ID()).Warn("profile completed notification failed")
	}
}
