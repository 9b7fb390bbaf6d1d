package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/session"
	"github.com/jwalitptl/clinic-portal/pkg/metrics"
)

const (
	ContextSession = "session"
	contextDiscard = "session_discard"

	// Names the admin panel and the patient app use for their tokens, both as
	// cookies and as request headers.
	AdminTokenName = "aToken"
	UserTokenName  = "token"
)

type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Session loads the caller's session (or starts one), refreshes the tokens
// from the request and saves the session after the handler ran.
func Session(store session.Store, cfg SessionConfig, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		l := zerolog.Ctx(ctx)

		s := loadSession(ctx, store, c, cfg.CookieName, m)
		now := time.Now()
		s.AdminToken = pickToken(c, AdminTokenName, s.AdminToken, now)
		s.UserToken = pickToken(c, UserTokenName, s.UserToken, now)

		c.Set(ContextSession, s)
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cfg.CookieName, s.ID, int(cfg.TTL.Seconds()), "/", "", cfg.Secure, true)

		c.Next()

		// the client may be gone; the session still has to be written
		storeCtx := context.WithoutCancel(ctx)
		if c.GetBool(contextDiscard) {
			err := store.Delete(storeCtx, s.ID)
			m.SessionOperations.WithLabelValues("delete", metrics.Status(err)).Inc()
			if err != nil {
				l.Error().Err(err).Str("session_id", s.ID).Msg("failed to delete session")
			}
			return
		}

		err := store.Save(storeCtx, s)
		m.SessionOperations.WithLabelValues("save", metrics.Status(err)).Inc()
		if err != nil {
			l.Error().Err(err).Str("session_id", s.ID).Msg("failed to save session")
		}
	}
}

// DiscardSession deletes the current session once the handler returns and
// expires the session and token cookies.
func DiscardSession(c *gin.Context, cfg SessionConfig) {
	c.Set(contextDiscard, true)
	for _, name := range []string{cfg.CookieName, AdminTokenName, UserTokenName} {
		c.SetCookie(name, "", -1, "/", "", cfg.Secure, true)
	}
}

func loadSession(ctx context.Context, store session.Store, c *gin.Context, cookie string, m *metrics.Metrics) *model.Session {
	id, err := c.Cookie(cookie)
	if err != nil || !session.ValidID(id) {
		return session.New()
	}

	s, err := store.Get(ctx, id)
	switch {
	case err == nil:
		m.SessionOperations.WithLabelValues("get", "ok").Inc()
		return s
	case errors.Is(err, session.ErrNotFound):
		m.SessionOperations.WithLabelValues("get", "miss").Inc()
	default:
		m.SessionOperations.WithLabelValues("get", "error").Inc()
		zerolog.Ctx(ctx).Error().Err(err).Str("session_id", id).Msg("failed to load session")
	}
	return session.New()
}

// pickToken prefers a header over a cookie over the held value. A source
// whose JWT exp has passed is skipped in favour of the next one.
func pickToken(c *gin.Context, name, held string, now time.Time) string {
	cookie, _ := c.Cookie(name)
	for _, tok := range []string{c.GetHeader(name), cookie, held} {
		if session.TokenUsable(tok, now) {
			return tok
		}
	}
	return ""
}

// CurrentSession returns the session set by Session.
func CurrentSession(c *gin.Context) *model.Session {
	if v, ok := c.Get(ContextSession); ok {
		if s, ok := v.(*model.Session); ok {
			return s
		}
	}
	return nil
}
