// Package session holds the mutable per-connection state the account flows
// coordinate over.
//
// A Context is created anonymous when a browser first shows up, keyed by the
// "sid" cookie, and dropped after it has been idle for the configured TTL.
// Requests belonging to one Context are served one at a time (see
// Manager.Middleware), so flows may read and write its fields without further
// locking while they handle a request.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sakif/accountkeeper/internal/model"
)

// Context is the state of one logical connection.
//
// LoginFlow is the only writer of UserName, Password, Root and Preferences;
// the credential flows update Password after a successful change.
type Context struct {
	mu sync.Mutex

	UserName string
	// Password is the plaintext of the last successful login or change.
	// It lives only in memory and is never persisted under this name.
	Password string

	Timezone       string
	TimezoneAbbrev string

	Root        *model.RootRef
	Preferences model.UserPreferences

	// URLID is a deep-link target captured before login.
	URLID string

	CaptchaExpected string
	RequestCounter  int

	lastSeen time.Time
}

// New returns an anonymous Context.
func New() *Context {
	return &Context{
		UserName:    model.AnonymousUser,
		Preferences: model.DefaultPreferences(),
	}
}

// Anonymous reports whether no account is attached.
func (c *Context) Anonymous() bool {
	return c.UserName == "" || c.UserName == model.AnonymousUser
}

// Reset drops the identity and everything derived from it. The request
// counter and any captured deep link survive.
func (c *Context) Reset() {
	c.UserName = model.AnonymousUser
	c.Password = ""
	c.Root = nil
	c.Preferences = model.DefaultPreferences()
	c.CaptchaExpected = ""
}

type ctxKey struct{}

// WithContext attaches sc to ctx.
func WithContext(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext returns the session attached by Manager.Middleware, or nil.
func FromContext(ctx context.Context) *Context {
	sc, _ := ctx.Value(ctxKey{}).(*Context)
	return sc
}
