package model

import "time"

// Property names used on account records.
const (
	PropUser              = "user"
	PropContent           = "content"
	PropEmail             = "email"
	PropAuthService       = "authService"
	PropEncryptedPassword = "encryptedPassword"
	PropAdvancedMode      = "advancedMode"
	PropLastVisitedNode   = "lastVisitedNode"
	PropPasswordResetCode = "passwordResetCode"
	PropCode              = "code"
)

// Values of the authService property.
const (
	AuthServiceLocal  = "local"
	AuthServiceGitHub = "github"
)

// AnonymousUser is the well-known principal name of an unauthenticated session.
const AnonymousUser = "anonymous"

// Principal is the authentication identity for a user name.
type Principal struct {
	Name         string
	PasswordHash string
	Automated    bool
	CreatedAt    time.Time
}

// UserPreferences is the part of the Preferences record a client may see
// and change.
type UserPreferences struct {
	AdvancedMode    bool   `json:"advancedMode"`
	LastVisitedNode string `json:"lastVisitedNode,omitempty"`
}

// DefaultPreferences is what a session uses when no stored preferences
// can be loaded.
func DefaultPreferences() UserPreferences {
	return UserPreferences{}
}

// PendingSignup is a staged account awaiting confirmation-code redemption.
type PendingSignup struct {
	User              string
	EncryptedPassword string
	Email             string
	Code              string
}

// RootRef identifies a user's root record.
type RootRef struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}
