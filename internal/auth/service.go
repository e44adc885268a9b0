// Package auth implements registration with email OTP verification, login
// with bearer tokens, and the /users HTTP handlers.
//
// A registration lives as a StagedIdentity until the emailed code is
// confirmed, at which point it is promoted to a durable Identity:
//
//	staged --(valid, unexpired code)--> identity + token
//	staged --(expired)----------------> gone
//	staged --(wrong code)-------------> staged (unchanged, retryable)
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ayush/endpix/internal/apperr"
	"github.com/ayush/endpix/internal/metrics"
	"github.com/ayush/endpix/internal/models"
	"github.com/ayush/endpix/internal/store"
	"github.com/ayush/endpix/internal/validation"
)

// StagedStore persists pending registrations.
type StagedStore interface {
	InsertStaged(ctx context.Context, st *models.StagedIdentity) error
	FindStaged(ctx context.Context, email string) (*models.StagedIdentity, error)
	RefreshStagedOTP(ctx context.Context, email, otp string, expiry time.Time) error
	DeleteStaged(ctx context.Context, email string) error
}

// IdentityStore persists verified identities.
type IdentityStore interface {
	InsertIdentity(ctx context.Context, id *models.Identity) error
	IdentityByEmail(ctx context.Context, email string) (*models.Identity, error)
	IdentityByID(ctx context.Context, id string) (*models.Identity, error)
}

// Hasher hashes and compares passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer signs bearer tokens for an identity id.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// Mailer delivers OTP codes.
type Mailer interface {
	SendOTP(ctx context.Context, to, name, code string, ttl time.Duration) error
}

// OTPSource produces one-time codes.
type OTPSource interface {
	Next() (string, error)
}

// Cooldown gates how often a key may be used.
type Cooldown interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Options wires a Service. Staged, Identities, Hasher, Tokens and Mailer are
// required; the rest have defaults.
type Options struct {
	Staged     StagedStore
	Identities IdentityStore
	Hasher     Hasher
	Tokens     TokenIssuer
	Mailer     Mailer
	OTP        OTPSource
	Cooldown   Cooldown
	Metrics    metrics.Recorder
	Logger     *slog.Logger
	Now        func() time.Time

	OTPTTL          time.Duration
	BlockDisposable bool
}

// Service implements registration, OTP verification, resend and login.
type Service struct {
	staged     StagedStore
	identities IdentityStore
	hasher     Hasher
	tokens     TokenIssuer
	mailer     Mailer
	otp        OTPSource
	cooldown   Cooldown
	metrics    metrics.Recorder
	log        *slog.Logger
	now        func() time.Time

	otpTTL          time.Duration
	blockDisposable bool

	dummyOnce sync.Once
	dummyHash string
}

func NewService(opts Options) *Service {
	s := &Service{
		staged:          opts.Staged,
		identities:      opts.Identities,
		hasher:          opts.Hasher,
		tokens:          opts.Tokens,
		mailer:          opts.Mailer,
		otp:             opts.OTP,
		cooldown:        opts.Cooldown,
		metrics:         opts.Metrics,
		log:             opts.Logger,
		now:             opts.Now,
		otpTTL:          opts.OTPTTL,
		blockDisposable: opts.BlockDisposable,
	}
	if s.otp == nil {
		s.otp = RandomOTP{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.otpTTL <= 0 {
		s.otpTTL = 5 * time.Minute
	}
	return s
}

var (
	registerMessages = validation.Messages{
		"name":     "Name is required",
		"email":    "Valid email is required",
		"password": "Password must be at least 6 characters long",
	}
	verifyMessages = validation.Messages{
		"email": "Valid email is required",
		"otp":   "OTP is required",
	}
	loginMessages = validation.Messages{
		"email":    "Valid email is required",
		"password": "Password is required",
	}
)

const (
	msgEmailTaken         = "User already exists with this email"
	msgNoPending          = "No pending registration for this email"
	msgInvalidCode        = "Invalid OTP"
	msgExpiredCode        = "OTP has expired, please register again"
	msgInvalidCredentials = "Invalid email or password"
	msgUserNotFound       = "User not found"
	msgMailFailed         = "Failed to send verification email"
)

// VerifyResult is the outcome of a successful verification or login.
type VerifyResult struct {
	Identity *models.Identity
	Token    string
}

// Register stages a new identity and emails its OTP. The staged record is
// removed again if the email cannot be sent.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (st *models.StagedIdentity, err error) {
	defer func() { s.metrics.RecordRegistration(outcome(err)) }()

	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if err := validation.Struct(req, registerMessages); err != nil {
		return nil, err
	}
	if s.blockDisposable && isDisposableEmail(req.Email) {
		return nil, apperr.Validation(apperr.FieldError{Field: "email", Message: "Temporary email addresses are not allowed"})
	}

	// Fast path only; the unique indexes decide races.
	if _, err := s.staged.FindStaged(ctx, req.Email); err == nil {
		return nil, apperr.New(apperr.KindConflict, msgEmailTaken)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindInternal, "lookup staged identity", err)
	}
	if _, err := s.identities.IdentityByEmail(ctx, req.Email); err == nil {
		return nil, apperr.New(apperr.KindConflict, msgEmailTaken)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindInternal, "lookup identity", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}
	code, err := s.otp.Next()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "generate otp", err)
	}

	st = &models.StagedIdentity{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		OTP:          code,
		OTPExpiry:    s.now().Add(s.otpTTL).UTC(),
	}
	if err := s.staged.InsertStaged(ctx, st); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, apperr.New(apperr.KindConflict, msgEmailTaken)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "insert staged identity", err)
	}

	if err := s.mailer.SendOTP(ctx, st.Email, st.Name, code, s.otpTTL); err != nil {
		s.metrics.RecordMailFailure()
		if delErr := s.staged.DeleteStaged(context.WithoutCancel(ctx), st.Email); delErr != nil {
			s.log.ErrorContext(ctx, "rollback staged identity failed",
				slog.String("email", st.Email),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, apperr.Wrap(apperr.KindUpstream, msgMailFailed, err)
	}

	s.log.InfoContext(ctx, "staged identity created",
		slog.String("email", st.Email),
		slog.Time("otp_expiry", st.OTPExpiry),
	)
	return st, nil
}

// Verify confirms a staged identity with its OTP, promotes it to a durable
// identity and issues a token for it.
func (s *Service) Verify(ctx context.Context, req models.VerifyRequest) (res *VerifyResult, err error) {
	defer func() { s.metrics.RecordVerification(outcome(err)) }()

	req.Email = normalizeEmail(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if err := validation.Struct(req, verifyMessages); err != nil {
		return nil, err
	}

	st, err := s.staged.FindStaged(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, msgNoPending)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "lookup staged identity", err)
	}

	// The TTL index may not have swept this record yet.
	if st.Expired(s.now()) {
		return nil, s.expire(ctx, st)
	}

	if subtle.ConstantTimeCompare([]byte(req.OTP), []byte(st.OTP)) != 1 {
		return nil, apperr.New(apperr.KindInvalidCode, msgInvalidCode)
	}

	identity := &models.Identity{
		Name:         st.Name,
		Email:        st.Email,
		PasswordHash: st.PasswordHash,
		Credits:      models.DefaultCredits,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.identities.InsertIdentity(ctx, identity); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, apperr.New(apperr.KindConflict, msgEmailTaken)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "insert identity", err)
	}

	if err := s.staged.DeleteStaged(ctx, st.Email); err != nil {
		s.log.WarnContext(ctx, "delete promoted staged identity failed",
			slog.String("email", st.Email),
			slog.String("error", err.Error()),
		)
	}

	token, err := s.tokens.Issue(identity.ID.Hex())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "issue token", err)
	}

	s.log.InfoContext(ctx, "identity verified",
		slog.String("user_id", identity.ID.Hex()),
		slog.String("email", identity.Email),
	)
	return &VerifyResult{Identity: identity, Token: token}, nil
}

// ResendOTP replaces the code of a pending registration, extends its expiry
// and emails the new code. An already expired registration is removed
// instead. Calls for the same email are limited by the configured cooldown.
func (s *Service) ResendOTP(ctx context.Context, req models.ResendRequest) (err error) {
	defer func() { s.metrics.RecordResend(outcome(err)) }()

	req.Email = normalizeEmail(req.Email)
	if err := validation.Struct(req, verifyMessages); err != nil {
		return err
	}

	st, err := s.staged.FindStaged(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, msgNoPending)
		}
		return apperr.Wrap(apperr.KindInternal, "lookup staged identity", err)
	}
	if st.Expired(s.now()) {
		return s.expire(ctx, st)
	}

	if s.cooldown != nil {
		ok, err := s.cooldown.Acquire(ctx, st.Email)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "resend cooldown", err)
		}
		if !ok {
			return apperr.New(apperr.KindRateLimited, "Please wait before requesting another code")
		}
	}

	if err := s.resend(ctx, st); err != nil {
		s.releaseCooldown(ctx, st.Email)
		return err
	}

	s.log.InfoContext(ctx, "otp resent", slog.String("email", st.Email))
	return nil
}

func (s *Service) resend(ctx context.Context, st *models.StagedIdentity) error {
	code, err := s.otp.Next()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "generate otp", err)
	}
	expiry := s.now().Add(s.otpTTL).UTC()
	if err := s.staged.RefreshStagedOTP(ctx, st.Email, code, expiry); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, msgNoPending)
		}
		return apperr.Wrap(apperr.KindInternal, "refresh staged otp", err)
	}

	if err := s.mailer.SendOTP(ctx, st.Email, st.Name, code, s.otpTTL); err != nil {
		s.metrics.RecordMailFailure()
		return apperr.Wrap(apperr.KindUpstream, msgMailFailed, err)
	}
	return nil
}

// expire removes a staged identity whose OTP window has closed and returns
// the error reported for it.
func (s *Service) expire(ctx context.Context, st *models.StagedIdentity) error {
	if err := s.staged.DeleteStaged(ctx, st.Email); err != nil {
		s.log.WarnContext(ctx, "delete expired staged identity failed",
			slog.String("email", st.Email),
			slog.String("error", err.Error()),
		)
	}
	return apperr.New(apperr.KindExpired, msgExpiredCode)
}

func (s *Service) releaseCooldown(ctx context.Context, email string) {
	if s.cooldown == nil {
		return
	}
	if err := s.cooldown.Release(context.WithoutCancel(ctx), email); err != nil {
		s.log.WarnContext(ctx, "release resend cooldown failed",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
	}
}

// Login checks credentials and issues a token. Unknown email and wrong
// password produce the same error.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (res *VerifyResult, err error) {
	defer func() { s.metrics.RecordLogin(outcome(err)) }()

	req.Email = normalizeEmail(req.Email)
	if err := validation.Struct(req, loginMessages); err != nil {
		return nil, err
	}

	identity, err := s.identities.IdentityByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Spend a comparison anyway so both failures cost about the same.
			_ = s.hasher.Compare(s.dummy(), req.Password)
			return nil, apperr.New(apperr.KindInvalidCredentials, msgInvalidCredentials)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "lookup identity", err)
	}

	if err := s.hasher.Compare(identity.PasswordHash, req.Password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return nil, apperr.New(apperr.KindInvalidCredentials, msgInvalidCredentials)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "compare password", err)
	}

	token, err := s.tokens.Issue(identity.ID.Hex())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "issue token", err)
	}
	return &VerifyResult{Identity: identity, Token: token}, nil
}

// Profile returns the identity behind an authenticated request.
func (s *Service) Profile(ctx context.Context, userID string) (*models.Identity, error) {
	identity, err := s.identities.IdentityByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, msgUserNotFound)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "lookup identity", err)
	}
	return identity, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("endpix-dummy-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	return apperr.KindOf(err).String()
}
