// Package identity implements the portal's two access paths: credentialed
// admin sign-in (email/password with cookie sessions) and driver
// validation by employee ID.
package identity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/actransporte/portal/internal/conf"
	"github.com/actransporte/portal/internal/docstore"
	"github.com/actransporte/portal/internal/docstore/entities"
	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/logger"
)

// Sign-in failures. Absent accounts and wrong passwords both map to
// ErrInvalidCredentials so the endpoint does not leak which emails exist.
var (
	ErrInvalidCredentials = errors.NewStd("identity: invalid credentials")
	ErrUserDisabled       = errors.NewStd("identity: user disabled")
	ErrTooManyAttempts    = errors.NewStd("identity: too many attempts")
)

// Driver validation failures.
var (
	ErrMatriculaNotFound  = errors.NewStd("identity: matricula not found")
	ErrColaboradorInativo = errors.NewStd("identity: colaborador inactive")
	ErrPerfilErrado       = errors.NewStd("identity: access restricted to drivers")
)

const (
	// SessionName is the cookie holding the admin session.
	SessionName = "portal_session"
	// sessionKeyEmail is the session value holding the signed-in email.
	sessionKeyEmail = "email"
	// sessionMaxAge bounds the cookie lifetime.
	sessionMaxAge = 12 * time.Hour
)

// Service implements both access paths over the employee directory.
type Service struct {
	store   docstore.Store
	cookies *sessions.CookieStore
	log     logger.Logger

	limitPerMinute int
	limMu          sync.Mutex
	limiters       map[string]*rate.Limiter
}

// NewService creates the identity service.
func NewService(store docstore.Store, settings conf.IdentitySettings, log logger.Logger) *Service {
	cookies := sessions.NewCookieStore([]byte(settings.SessionSecret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	limit := settings.MaxAttemptsPerMinute
	if limit <= 0 {
		limit = 5
	}
	return &Service{
		store:          store,
		cookies:        cookies,
		log:            log,
		limitPerMinute: limit,
		limiters:       make(map[string]*rate.Limiter),
	}
}

// SignIn authenticates an admin by email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (*entities.Colaborador, error) {
	if !s.allow(email) {
		return nil, errors.New(ErrTooManyAttempts).
			Component("identity").
			Category(errors.CategoryAuth).
			Build()
	}

	c, err := s.store.ColaboradorByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, docstore.ErrRecordAbsent) {
			return nil, invalidCredentials()
		}
		return nil, err
	}
	if !c.Ativo {
		return nil, errors.New(ErrUserDisabled).
			Component("identity").
			Category(errors.CategoryAuth).
			Build()
	}
	if c.Perfil != entities.PerfilAdmin {
		return nil, invalidCredentials()
	}
	if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) != nil {
		return nil, invalidCredentials()
	}

	s.log.Info("admin signed in", logger.String("matricula", c.Matricula))
	return c, nil
}

func invalidCredentials() error {
	return errors.New(ErrInvalidCredentials).
		Component("identity").
		Category(errors.CategoryAuth).
		Build()
}

// allow applies the per-email sign-in attempt budget.
func (s *Service) allow(email string) bool {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	lim, ok := s.limiters[email]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.limitPerMinute)), s.limitPerMinute)
		s.limiters[email] = lim
	}
	return lim.Allow()
}

// ValidateDriver checks an employee ID for the driver path: the record
// must exist, be active, and carry the motorista role. Failures keep the
// input editable: the caller surfaces the message and lets the user retry.
func (s *Service) ValidateDriver(ctx context.Context, matricula string) (*entities.Colaborador, error) {
	c, err := s.store.Colaborador(ctx, matricula)
	if err != nil {
		if errors.Is(err, docstore.ErrRecordAbsent) {
			return nil, errors.New(ErrMatriculaNotFound).
				Component("identity").
				Category(errors.CategoryNotFound).
				Context("matricula", matricula).
				Build()
		}
		return nil, err
	}
	if !c.Ativo {
		return nil, errors.New(ErrColaboradorInativo).
			Component("identity").
			Category(errors.CategoryRecordInvalid).
			Build()
	}
	if c.Perfil != entities.PerfilMotorista {
		return nil, errors.New(ErrPerfilErrado).
			Component("identity").
			Category(errors.CategoryRecordInvalid).
			Build()
	}
	return c, nil
}

// Establish writes the admin session cookie after a successful sign-in.
func (s *Service) Establish(w http.ResponseWriter, r *http.Request, email string) error {
	session, _ := s.cookies.Get(r, SessionName)
	session.Values[sessionKeyEmail] = email
	return session.Save(r, w)
}

// SignOut clears the session cookie. Idempotent.
func (s *Service) SignOut(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.cookies.Get(r, SessionName)
	session.Options.MaxAge = -1
	delete(session.Values, sessionKeyEmail)
	return session.Save(r, w)
}

// SessionEmail returns the signed-in email from the request's session, or
// empty when unauthenticated.
func (s *Service) SessionEmail(r *http.Request) string {
	session, err := s.cookies.Get(r, SessionName)
	if err != nil {
		return ""
	}
	email, _ := session.Values[sessionKeyEmail].(string)
	return email
}

// SetPassword hashes and stores a password on an employee record. Used by
// seeding and admin tooling.
func SetPassword(c *entities.Colaborador, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c.PasswordHash = string(hash)
	return nil
}
