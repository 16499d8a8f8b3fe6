// Package session keeps dashboard login sessions in memory and holds the
// cookie settings shared by the handler and middleware packages.
package session

const (
	// CookieName is the name of the cookie that stores the session id.
	CookieName = "mapaclientes_session"

	// CookiePath ensures the cookie is sent with all requests.
	CookiePath = "/"
)
