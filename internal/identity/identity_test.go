package identity

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actransporte/portal/internal/conf"
	"github.com/actransporte/portal/internal/docstore"
	"github.com/actransporte/portal/internal/docstore/entities"
	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/logger"
)

func setupService(t *testing.T) (*Service, *docstore.GormStore) {
	t.Helper()

	store, err := docstore.Open(conf.DocstoreSettings{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "identity_test.db"),
	}, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := NewService(store, conf.IdentitySettings{
		SessionSecret:        "test-secret",
		MaxAttemptsPerMinute: 3,
	}, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	return svc, store
}

func seedAdmin(t *testing.T, store *docstore.GormStore, email, password string, ativo bool) {
	t.Helper()
	admin := &entities.Colaborador{
		Matricula: "A001",
		Nome:      "Carla",
		Perfil:    entities.PerfilAdmin,
		Ativo:     ativo,
		Email:     email,
	}
	require.NoError(t, SetPassword(admin, password))
	require.NoError(t, store.SaveColaborador(context.Background(), admin))
}

func seedDriver(t *testing.T, store *docstore.GormStore, matricula string, ativo bool, perfil string) {
	t.Helper()
	require.NoError(t, store.SaveColaborador(context.Background(), &entities.Colaborador{
		Matricula: matricula,
		Nome:      "Ana",
		Perfil:    perfil,
		Ativo:     ativo,
	}))
}

func TestService_SignIn(t *testing.T) {
	t.Parallel()
	svc, store := setupService(t)
	seedAdmin(t, store, "carla@actransporte.com", "s3nha-forte", true)

	admin, err := svc.SignIn(context.Background(), "carla@actransporte.com", "s3nha-forte")
	require.NoError(t, err)
	assert.Equal(t, "Carla", admin.Nome)
}

func TestService_SignIn_WrongPassword(t *testing.T) {
	t.Parallel()
	svc, store := setupService(t)
	seedAdmin(t, store, "carla@actransporte.com", "s3nha-forte", true)

	_, err := svc.SignIn(context.Background(), "carla@actransporte.com", "errada")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestService_SignIn_UnknownEmailLooksLikeWrongPassword(t *testing.T) {
	t.Parallel()
	svc, _ := setupService(t)

	_, err := svc.SignIn(context.Background(), "nobody@actransporte.com", "whatever")
	assert.True(t, errors.Is(err, ErrInvalidCredentials),
		"absent accounts must not be distinguishable from wrong passwords")
}

func TestService_SignIn_DisabledAccount(t *testing.T) {
	t.Parallel()
	svc, store := setupService(t)
	seedAdmin(t, store, "carla@actransporte.com", "s3nha-forte", false)

	_, err := svc.SignIn(context.Background(), "carla@actransporte.com", "s3nha-forte")
	assert.True(t, errors.Is(err, ErrUserDisabled))
}

func TestService_SignIn_NonAdminRejected(t *testing.T) {
	t.Parallel()
	svc, store := setupService(t)

	driver := &entities.Colaborador{
		Matricula: "M123",
		Nome:      "Ana",
		Perfil:    entities.PerfilMotorista,
		Ativo:     true,
		Email:     "ana@actransporte.com",
	}
	require.NoError(t, SetPassword(driver, "senha"))
	require.NoError(t, store.SaveColaborador(context.Background(), driver))

	_, err := svc.SignIn(context.Background(), "ana@actransporte.com", "senha")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestService_SignIn_RateLimited(t *testing.T) {
	t.Parallel()
	svc, store := setupService(t)
	seedAdmin(t, store, "carla@actransporte.com", "s3nha-forte", true)

	// Exhaust the per-email budget with bad passwords.
	for i := 0; i < 3; i++ {
		_, err := svc.SignIn(context.Background(), "carla@actransporte.com", "errada")
		require.True(t, errors.Is(err, ErrInvalidCredentials))
	}

	_, err := svc.SignIn(context.Background(), "carla@actransporte.com", "s3nha-forte")
	assert.True(t, errors.Is(err, ErrTooManyAttempts))
}

func TestService_ValidateDriver(t *testing.T) {
	t.Parallel()
	svc, store := setupService(t)
	seedDriver(t, store, "M123", true, entities.PerfilMotorista)

	tests := []struct {
		name      string
		matricula string
		wantErr   error
	}{
		{"valid driver", "M123", nil},
		{"absent matricula", "M999", ErrMatriculaNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := svc.ValidateDriver(context.Background(), tt.matricula)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Ana", c.Nome)
		})
	}
}

func TestService_ValidateDriver_Inactive(t *testing.T) {
	t.Parallel()
	svc, store := setupService(t)
	seedDriver(t, store, "M124", false, entities.PerfilMotorista)

	_, err := svc.ValidateDriver(context.Background(), "M124")
	assert.True(t, errors.Is(err, ErrColaboradorInativo))
	assert.Equal(t, errors.CategoryRecordInvalid, errors.CategoryOf(err))
}

func TestService_ValidateDriver_WrongProfile(t *testing.T) {
	t.Parallel()
	svc, store := setupService(t)
	seedDriver(t, store, "P200", true, entities.PerfilPassageiro)

	_, err := svc.ValidateDriver(context.Background(), "P200")
	assert.True(t, errors.Is(err, ErrPerfilErrado))
}

func TestService_SessionRoundTrip(t *testing.T) {
	t.Parallel()
	svc, _ := setupService(t)

	// Establish writes the cookie.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
	require.NoError(t, svc.Establish(rec, req, "carla@actransporte.com"))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	// A follow-up request carrying the cookie is authenticated.
	next := httptest.NewRequest("GET", "/api/v1/auth/session", nil)
	for _, c := range cookies {
		next.AddCookie(c)
	}
	assert.Equal(t, "carla@actransporte.com", svc.SessionEmail(next))

	// SignOut clears it.
	out := httptest.NewRecorder()
	require.NoError(t, svc.SignOut(out, next))
}

func TestService_SessionEmail_Unauthenticated(t *testing.T) {
	t.Parallel()
	svc, _ := setupService(t)

	req := httptest.NewRequest("GET", "/api/v1/auth/session", nil)
	assert.Empty(t, svc.SessionEmail(req))
}
