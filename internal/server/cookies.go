package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"ddnet-tracker/internal/config"
	"ddnet-tracker/internal/domain"
	"ddnet-tracker/internal/logging"
)

const (
	sessionCookieName = "session"
	sessionTokenKey   = "token"
)

// newCookieStore signs the session cookie with the configured secret. The
// cookie lives exactly as long as the server-side session.
func newCookieStore(cfg *config.Config, ttl time.Duration) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	// Keep the signed timestamp window equal to the cookie lifetime.
	store.MaxAge(store.Options.MaxAge)
	return store
}

// sessionToken returns the token carried by the request cookie, or "" when
// there is none or its signature does not verify.
func (s *Server) sessionToken(r *http.Request) string {
	sess, err := s.cookies.Get(r, sessionCookieName)
	if err != nil {
		return ""
	}
	token, _ := sess.Values[sessionTokenKey].(string)
	return token
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) error {
	sess, _ := s.cookies.Get(r, sessionCookieName)
	sess.Values[sessionTokenKey] = token
	return sess.Save(r, w)
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.cookies.Get(r, sessionCookieName)
	sess.Options.MaxAge = -1
	delete(sess.Values, sessionTokenKey)
	_ = sess.Save(r, w)
}

type userContextKey struct{}

func withUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

func userFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userContextKey{}).(*domain.User)
	return user
}

// currentUser resolves the request's session. It returns (nil, nil) when
// the request carries no usable session.
func (s *Server) currentUser(r *http.Request) (*domain.User, error) {
	token := s.sessionToken(r)
	if token == "" {
		return nil, nil
	}

	user, err := s.auth.VerifySession(r.Context(), token)
	if errors.Is(err, domain.ErrInvalidSession) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// requireUser rejects requests without a valid session with 401.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.currentUser(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if user == nil {
			s.writeError(w, r, domain.ErrInvalidSession)
			return
		}
		ctx := logging.With(withUser(r.Context(), user), logging.UserID(user.ID))
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin is requireUser plus 403 for non-admins.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request) {
		if !userFromContext(r.Context()).IsAdmin {
			s.writeError(w, r, errForbidden)
			return
		}
		next(w, r)
	})
}
