package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/handsomefox/movie-catalog/internal/env"
)

const (
	authCookieName = "catalog_auth"
	authCookieTTL  = 90 * 24 * time.Hour
)

func (h *Handler) authRequired() bool { return h.passHash != "" }

func (h *Handler) isAuthenticated(r *http.Request) bool {
	if !h.authRequired() {
		return true
	}
	c, err := r.Cookie(authCookieName)
	if err != nil || c.Value == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(h.passHash)) == 1
}

func setAuthCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		MaxAge:   int(authCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: sameSite(),
		Secure:   env.Current == env.Production,
	})
}

func clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: sameSite(),
		Secure:   env.Current == env.Production,
	})
}

func sameSite() http.SameSite {
	if env.Current == env.Production {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}
