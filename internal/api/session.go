package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tldr-app/uploader/internal/uploader"
)

// sessionResolver ties the session cookie to a view.
type sessionResolver struct {
	sessions   SessionManager
	cookieName string
	secure     bool
}

// resolve returns the caller's view, starting a new session (and setting the
// cookie) when the request carries no known session id.
func (r *sessionResolver) resolve(c echo.Context) (string, *uploader.View) {
	var id string
	if cookie, err := c.Cookie(r.cookieName); err == nil {
		id = cookie.Value
	}

	id, view, created := r.sessions.GetOrCreate(id)
	if created {
		c.SetCookie(r.cookie(id))
	}
	return id, view
}

func (r *sessionResolver) cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     r.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
