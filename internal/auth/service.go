package auth

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

const (
	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = time.Hour
	DefaultEmailTimeout    = 10 * time.Second

	// bcrypt ignores everything past 72 bytes
	maxPasswordBytes = 72
)

// Notifier delivers account emails carrying a raw single-use token
type Notifier interface {
	SendVerification(ctx context.Context, user *User, rawToken string) error
	SendPasswordReset(ctx context.Context, user *User, rawToken string) error
}

// Deps are the collaborators of a Service
type Deps struct {
	Users    CredentialStore
	Sessions SessionStore
	Tokens   *TokenIssuer
	Hasher   PasswordHasher
	Notifier Notifier
	Audit    AuditLogger
	Log      logrus.FieldLogger
}

// Options tune a Service. Zero values select the defaults.
type Options struct {
	// AdminEmail is given the admin role at signup.
	AdminEmail      string
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	EmailTimeout    time.Duration
	Now             func() time.Time
}

// Service implements the credential and session lifecycle
type Service struct {
	users    CredentialStore
	sessions SessionStore
	tokens   *TokenIssuer
	hasher   PasswordHasher
	notifier Notifier
	audit    AuditLogger
	log      logrus.FieldLogger
	validate *validator.Validate

	adminEmail      string
	verificationTTL time.Duration
	resetTTL        time.Duration
	emailTimeout    time.Duration
	now             func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService wires a Service from its dependencies
func NewService(deps Deps, opts Options) *Service {
	s := &Service{
		users:           deps.Users,
		sessions:        deps.Sessions,
		tokens:          deps.Tokens,
		hasher:          deps.Hasher,
		notifier:        deps.Notifier,
		audit:           deps.Audit,
		log:             deps.Log,
		validate:        newValidator(),
		adminEmail:      NormalizeEmail(opts.AdminEmail),
		verificationTTL: opts.VerificationTTL,
		resetTTL:        opts.ResetTTL,
		emailTimeout:    opts.EmailTimeout,
		now:             opts.Now,
	}
	if s.hasher == nil {
		s.hasher = NewBcryptHasher(DefaultBcryptCost)
	}
	if s.audit == nil {
		s.audit = NewInMemoryAuditLogger()
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.verificationTTL <= 0 {
		s.verificationTTL = DefaultVerificationTTL
	}
	if s.resetTTL <= 0 {
		s.resetTTL = DefaultResetTTL
	}
	if s.emailTimeout <= 0 {
		s.emailTimeout = DefaultEmailTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("bcryptlen", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})
	return v
}

// SignupInput is the signup request
type SignupInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,bcryptlen"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
}

// SignupResult is returned by a successful signup
type SignupResult struct {
	UserID  string
	Message string
}

// LoginInput is the login request
type LoginInput struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,bcryptlen"`
}

// LoginResult carries the issued credentials. RefreshToken is the raw value
// and must only be handed to the client through the cookie.
type LoginResult struct {
	AccessToken      string
	ExpiresIn        time.Duration
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             PublicUser
}

// RefreshResult carries the rotated credentials
type RefreshResult struct {
	AccessToken      string
	ExpiresIn        time.Duration
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// ResetPasswordInput is the reset-password request
type ResetPasswordInput struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,bcryptlen"`
}

// Signup registers an unverified user and emails a verification link
func (s *Service) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	if err := s.validateInput(in, "Name, email and password are required"); err != nil {
		return nil, err
	}

	name := Sanitize(in.Name)
	email := NormalizeEmail(in.Email)
	phone := Sanitize(strings.TrimSpace(in.Phone))

	if !ValidateEmailFormat(email) {
		return nil, newError(KindInvalidInput, "Invalid email format")
	}
	if err := CheckPasswordStrength(in.Password); err != nil {
		return nil, newError(KindInvalidInput, err.Error())
	}

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, newError(KindConflict, "User already exists with this email")
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("SIGNUP_FAILED").With("operation", "find user").Wrap(err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}
	rawToken, err := GenerateOpaqueToken()
	if err != nil {
		return nil, oops.Code("SIGNUP_FAILED").With("operation", "generate verification token").Wrap(err)
	}

	now := s.now()
	expiry := now.Add(s.verificationTTL)
	user := &User{
		ID:                         uuid.NewString(),
		Name:                       name,
		Email:                      email,
		Phone:                      phone,
		PasswordHash:               passwordHash,
		Role:                       s.roleFor(email),
		EmailVerificationTokenHash: HashToken(rawToken),
		EmailVerificationExpiry:    &expiry,
		CreatedAt:                  now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, newError(KindConflict, "User already exists with this email")
		}
		return nil, oops.Code("SIGNUP_FAILED").With("operation", "create user").Wrap(err)
	}

	s.deliver(ctx, "verification", user, func(ctx context.Context) error {
		return s.notifier.SendVerification(ctx, user, rawToken)
	})

	s.record(ctx, &AuditLog{
		EventType: AuditSignup,
		ActorType: ActorTypeUser,
		ActorID:   user.ID,
		TargetID:  user.ID,
		Details:   map[string]any{"email": email, "role": string(user.Role)},
	})

	return &SignupResult{
		UserID:  user.ID,
		Message: "Signup successful. Please check your email to verify your account.",
	}, nil
}

// Login verifies credentials and opens a new session
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := s.validateInput(in, "Email and password are required"); err != nil {
		return nil, err
	}
	email := NormalizeEmail(in.Email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("LOGIN_FAILED").With("operation", "find user").Wrap(err)
		}
		// Burn the same bcrypt time as a real mismatch
		_ = s.hasher.Compare(s.dummyPasswordHash(), in.Password)
		s.record(ctx, CreateLoginAuditLog(false, "", email, "unknown_email"))
		return nil, newError(KindInvalidCredentials, msgInvalidCredentials)
	}

	if !user.EmailVerified {
		s.record(ctx, CreateLoginAuditLog(false, user.ID, email, "email_not_verified"))
		return nil, newError(KindEmailNotVerified, "Please verify your email before logging in")
	}

	if err := s.hasher.Compare(user.PasswordHash, in.Password); err != nil {
		s.record(ctx, CreateLoginAuditLog(false, user.ID, email, "invalid_password"))
		return nil, newError(KindInvalidCredentials, msgInvalidCredentials)
	}

	accessToken, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, oops.Code("LOGIN_FAILED").With("operation", "sign access token").With("user_id", user.ID).Wrap(err)
	}
	session, rawRefresh, err := s.newSession(user.ID)
	if err != nil {
		return nil, oops.Code("LOGIN_FAILED").With("operation", "sign refresh token").With("user_id", user.ID).Wrap(err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code("LOGIN_FAILED").With("operation", "store session").With("user_id", user.ID).Wrap(err)
	}

	// A reset that landed after the password check wins: drop the session
	now := s.now()
	current, err := s.users.RecordLogin(ctx, user.ID, user.PasswordHash, now)
	if err != nil || !current {
		if _, derr := s.sessions.DeleteByID(ctx, session.ID); derr != nil {
			s.log.WithError(derr).WithField("user_id", user.ID).Warn("failed to drop session after aborted login")
		}
		if err != nil {
			return nil, oops.Code("LOGIN_FAILED").With("operation", "update last login").With("user_id", user.ID).Wrap(err)
		}
		s.record(ctx, CreateLoginAuditLog(false, user.ID, email, "password_changed"))
		return nil, newError(KindInvalidCredentials, msgInvalidCredentials)
	}
	user.LastLogin = &now

	s.record(ctx, CreateLoginAuditLog(true, user.ID, email, ""))

	return &LoginResult{
		AccessToken:      accessToken,
		ExpiresIn:        s.tokens.AccessTTL(),
		RefreshToken:     rawRefresh,
		RefreshExpiresAt: session.ExpiresAt,
		User:             user.Public(),
	}, nil
}

// Logout deletes the session behind rawRefresh. It never fails: a missing,
// unknown or already revoked token is fine.
func (s *Service) Logout(ctx context.Context, rawRefresh string) {
	if rawRefresh == "" {
		return
	}

	deleted, err := s.sessions.DeleteByTokenHash(ctx, HashToken(rawRefresh))
	if err != nil {
		s.log.WithError(err).Warn("failed to delete session on logout")
		return
	}

	// The user id is only needed for the audit trail
	userID, _ := s.tokens.ParseRefreshToken(rawRefresh)
	s.record(ctx, &AuditLog{
		EventType: AuditLogout,
		ActorType: ActorTypeUser,
		ActorID:   userID,
		TargetID:  userID,
		Details:   map[string]any{"sessions_deleted": deleted},
	})
}

// Refresh rotates a refresh token. The presented token is consumed; a
// second use fails with KindInvalidToken.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*RefreshResult, error) {
	if rawRefresh == "" {
		return nil, newError(KindUnauthenticated, "No refresh token provided")
	}

	userID, err := s.tokens.ParseRefreshToken(rawRefresh)
	if err != nil {
		s.record(ctx, &AuditLog{EventType: AuditRefreshFailure, ActorType: ActorTypeAnonymous, Details: map[string]any{"reason": "invalid_signature"}})
		return nil, newError(KindInvalidToken, "Invalid refresh token")
	}

	current, err := s.sessions.FindValid(ctx, HashToken(rawRefresh), userID, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.recordRefreshFailure(ctx, userID, "unknown_session")
			return nil, newError(KindInvalidToken, msgSessionNotFound)
		}
		return nil, oops.Code("REFRESH_FAILED").With("operation", "find session").With("user_id", userID).Wrap(err)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.recordRefreshFailure(ctx, userID, "unknown_user")
			return nil, newError(KindInvalidToken, msgSessionNotFound)
		}
		return nil, oops.Code("REFRESH_FAILED").With("operation", "find user").With("user_id", userID).Wrap(err)
	}

	accessToken, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, oops.Code("REFRESH_FAILED").With("operation", "sign access token").With("user_id", userID).Wrap(err)
	}
	next, nextRaw, err := s.newSession(userID)
	if err != nil {
		return nil, oops.Code("REFRESH_FAILED").With("operation", "sign refresh token").With("user_id", userID).Wrap(err)
	}

	rotated, err := s.sessions.Rotate(ctx, current.ID, next)
	if err != nil {
		return nil, oops.Code("REFRESH_FAILED").With("operation", "rotate session").With("user_id", userID).Wrap(err)
	}
	if !rotated {
		// Lost a race with a concurrent refresh of the same token
		s.recordRefreshFailure(ctx, userID, "already_rotated")
		return nil, newError(KindInvalidToken, msgSessionNotFound)
	}

	s.record(ctx, &AuditLog{
		EventType: AuditRefreshSuccess,
		ActorType: ActorTypeUser,
		ActorID:   userID,
		TargetID:  userID,
	})

	return &RefreshResult{
		AccessToken:      accessToken,
		ExpiresIn:        s.tokens.AccessTTL(),
		RefreshToken:     nextRaw,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// ForgotPassword emails a reset link when the address is registered. The
// returned message is the same either way.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" || !ValidateEmailFormat(email) {
		return "", newError(KindInvalidInput, "Valid email is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.record(ctx, &AuditLog{
				EventType: AuditPasswordResetRequested,
				ActorType: ActorTypeAnonymous,
				Details:   map[string]any{"email": email, "matched": false},
			})
			return msgForgotPassword, nil
		}
		return "", oops.Code("FORGOT_PASSWORD_FAILED").With("operation", "find user").Wrap(err)
	}

	rawToken, err := GenerateOpaqueToken()
	if err != nil {
		return "", oops.Code("FORGOT_PASSWORD_FAILED").With("operation", "generate reset token").Wrap(err)
	}
	expiry := s.now().Add(s.resetTTL)
	if err := s.users.SetResetToken(ctx, user.ID, HashToken(rawToken), expiry); err != nil {
		return "", oops.Code("FORGOT_PASSWORD_FAILED").With("operation", "save reset token").With("user_id", user.ID).Wrap(err)
	}

	s.deliver(ctx, "password reset", user, func(ctx context.Context) error {
		return s.notifier.SendPasswordReset(ctx, user, rawToken)
	})

	s.record(ctx, &AuditLog{
		EventType: AuditPasswordResetRequested,
		ActorType: ActorTypeAnonymous,
		TargetID:  user.ID,
		Details:   map[string]any{"email": email, "matched": true},
	})
	return msgForgotPassword, nil
}

// ResetPassword sets a new password using a reset token and revokes every
// session of the user
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := s.validateInput(in, "Token and new password are required"); err != nil {
		return err
	}
	if err := CheckPasswordStrength(in.NewPassword); err != nil {
		return newError(KindInvalidInput, err.Error())
	}

	tokenHash := HashToken(in.Token)
	invalid := func() error {
		s.record(ctx, &AuditLog{EventType: AuditPasswordResetFailure, ActorType: ActorTypeAnonymous})
		return &Error{Kind: KindInvalidOrExpiredToken, Message: "Invalid or expired password reset token", Expired: true}
	}

	// Cheap check before paying for bcrypt; the consume below is authoritative
	if _, err := s.users.FindByResetTokenHash(ctx, tokenHash, s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalid()
		}
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "find user").Wrap(err)
	}

	passwordHash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := s.users.ConsumeResetToken(ctx, tokenHash, s.now(), passwordHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalid()
		}
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "save password").Wrap(err)
	}

	revoked, err := s.sessions.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "revoke sessions").With("user_id", user.ID).Wrap(err)
	}

	s.record(ctx, &AuditLog{EventType: AuditPasswordReset, ActorType: ActorTypeUser, ActorID: user.ID, TargetID: user.ID})
	s.record(ctx, &AuditLog{
		EventType: AuditSessionsRevoked,
		ActorType: ActorTypeSystem,
		TargetID:  user.ID,
		Details:   map[string]any{"count": revoked},
	})
	return nil
}

// VerifyEmail marks the owner of a verification token as verified
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return newError(KindInvalidInput, "Verification token is required")
	}

	user, err := s.users.ConsumeVerificationToken(ctx, HashToken(token), s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.record(ctx, &AuditLog{EventType: AuditEmailVerifyFailure, ActorType: ActorTypeAnonymous})
			return &Error{Kind: KindInvalidOrExpiredToken, Message: "Invalid or expired verification token", Expired: true}
		}
		return oops.Code("VERIFY_EMAIL_FAILED").With("operation", "consume token").Wrap(err)
	}

	s.record(ctx, &AuditLog{EventType: AuditEmailVerified, ActorType: ActorTypeUser, ActorID: user.ID, TargetID: user.ID})
	return nil
}

// CurrentUser returns the public view of an authenticated user
func (s *Service) CurrentUser(ctx context.Context, userID string) (*PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(KindUnauthenticated, "User not found")
		}
		return nil, oops.Code("CURRENT_USER_FAILED").With("user_id", userID).Wrap(err)
	}
	pub := user.Public()
	return &pub, nil
}

// PurgeExpiredSessions deletes refresh token records that are past their expiry
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}

func (s *Service) newSession(userID string) (*RefreshToken, string, error) {
	raw, expiresAt, err := s.tokens.GenerateRefreshToken(userID)
	if err != nil {
		return nil, "", err
	}
	return &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: HashToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: s.now(),
	}, raw, nil
}

func (s *Service) roleFor(email string) Role {
	if s.adminEmail != "" && email == s.adminEmail {
		return RoleAdmin
	}
	return RoleCustomer
}

func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.log.WithError(err).Warn("failed to build dummy password hash")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// validateInput maps struct validation failures to client messages.
// Any missing required field yields requiredMsg.
func (s *Service) validateInput(in any, requiredMsg string) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return oops.Code("VALIDATION_FAILED").Wrap(err)
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return newError(KindInvalidInput, requiredMsg)
		}
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "bcryptlen":
		return newError(KindInvalidInput, "Password must be at most 72 bytes")
	case "max":
		return newError(KindInvalidInput, fe.Field()+" is too long")
	default:
		return newError(KindInvalidInput, fe.Field()+" is invalid")
	}
}

// deliver sends an email without letting a failure escape. The send gets its
// own deadline and survives cancellation of the request.
func (s *Service) deliver(ctx context.Context, kind string, user *User, send func(context.Context) error) {
	if s.notifier == nil {
		s.log.WithField("user_id", user.ID).Warnf("no notifier configured, %s email not sent", kind)
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.emailTimeout)
	defer cancel()

	if err := send(sendCtx); err != nil {
		fields := logrus.Fields{"user_id": user.ID, "email_kind": kind}
		if oe, ok := oops.AsOops(err); ok {
			fields["code"] = oe.Code()
		}
		s.log.WithError(err).WithFields(fields).Error("failed to send email")
	}
}

func (s *Service) record(ctx context.Context, entry *AuditLog) {
	if err := s.audit.Log(ctx, entry); err != nil {
		s.log.WithError(err).WithField("event", string(entry.EventType)).Warn("failed to write audit log")
	}
}

func (s *Service) recordRefreshFailure(ctx context.Context, userID, reason string) {
	s.record(ctx, &AuditLog{
		EventType: AuditRefreshFailure,
		ActorType: ActorTypeUser,
		ActorID:   userID,
		TargetID:  userID,
		Details:   map[string]any{"reason": reason},
	})
}
