package service

import (
	"context"
	"testing"
	"time"

	"github.com/librosfab/support-service/internal/domain"
	apperrors "github.com/librosfab/support-service/pkg/util/errorutil"
)

type memorySessions struct {
	revoked map[string]time.Duration
}

func (m *memorySessions) Revoke(_ context.Context, id string, ttl time.Duration) error {
	m.revoked[id] = ttl
	return nil
}

func (m *memorySessions) IsRevoked(_ context.Context, id string) (bool, error) {
	_, ok := m.revoked[id]
	return ok, nil
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input RegisterInput
		code  string
	}{
		{"short password", RegisterInput{Email: "ana@example.com", Password: "12345", ConfirmPassword: "12345"}, apperrors.CodePasswordTooShort},
		{"mismatch", RegisterInput{Email: "ana@example.com", Password: "123456", ConfirmPassword: "654321"}, apperrors.CodePasswordMismatch},
		{"missing field", RegisterInput{Email: "ana@example.com", Password: "123456"}, apperrors.CodeValidation},
		{"bad email", RegisterInput{Email: "ana-at-example", Password: "123456", ConfirmPassword: "123456"}, apperrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.auth.Register(ctx, tc.input)
			assertCode(t, err, tc.code)
		})
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	input := RegisterInput{Email: "Ana@Example.com", Password: "123456", ConfirmPassword: "123456"}
	user, err := env.auth.Register(ctx, input)
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	if user.Email != "ana@example.com" {
		t.Fatalf("email = %q, want case-folded", user.Email)
	}

	input.Email = " ana@example.com "
	_, err = env.auth.Register(ctx, input)
	assertCode(t, err, apperrors.CodeDuplicateEmail)
}

func TestLoginOutcomes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")

	_, err := env.auth.Login(ctx, "nadie@example.com", "secreto1")
	assertCode(t, err, apperrors.CodeNotFound)

	_, err = env.auth.Login(ctx, "ana@example.com", "incorrecta")
	assertCode(t, err, apperrors.CodeInvalidCredentials)

	result, err := env.auth.Login(ctx, "ANA@example.com", "secreto1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := env.auth.TokenManager().ParseToken(result.Session.Token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.Subject != ana.UserID || claims.ID != result.Session.ID {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessions := &memorySessions{revoked: map[string]time.Duration{}}
	env.auth.sessions = sessions
	ana := env.signUp(t, "ana@example.com")

	if err := env.auth.Logout(ctx, nil); !apperrors.HasCode(err, apperrors.CodeUnauthenticated) {
		t.Fatalf("anonymous logout err = %v", err)
	}

	identity := &domain.Identity{UserID: ana.UserID, Email: ana.Email, SessionID: "sess-1"}
	if err := env.auth.Logout(ctx, identity); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if ttl, ok := sessions.revoked["sess-1"]; !ok || ttl != time.Hour {
		t.Fatalf("revocations = %v", sessions.revoked)
	}

	me, err := env.auth.Me(ctx, identity)
	if err != nil || me.ID != ana.UserID {
		t.Fatalf("me = %+v, %v", me, err)
	}
}

func TestLogoutRevokesWithoutRedis(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")

	result, err := env.auth.Login(ctx, "ana@example.com", "secreto1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	identity := &domain.Identity{UserID: ana.UserID, Email: ana.Email, SessionID: result.Session.ID}
	if err := env.auth.Logout(ctx, identity); err != nil {
		t.Fatalf("logout: %v", err)
	}

	revoked, err := env.auth.SessionStore().IsRevoked(ctx, result.Session.ID)
	if err != nil || !revoked {
		t.Fatalf("revoked = %v, err = %v; want revoked", revoked, err)
	}
	if other, _ := env.auth.SessionStore().IsRevoked(ctx, "another-session"); other {
		t.Fatal("unrelated session reported revoked")
	}
}
