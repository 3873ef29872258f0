package domain

import "time"

// IdToken is an opaque credential presented by a user — an RFID UID
// or a contract id for Plug-and-Charge. It resolves to at most one
// User.
type IdToken struct {
	Token     string    `json:"token" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Name       string    `json:"name"`
	Email      string    `json:"email" gorm:"uniqueIndex"`
	Authorized bool      `json:"authorized"`
	IdTokens   []IdToken `json:"id_tokens,omitempty" gorm:"foreignKey:UserID"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AuthorizationStatus is the outcome of an Authorize or RemoteStart
// authorization decision.
type AuthorizationStatus string

const (
	AuthorizationAccepted    AuthorizationStatus = "Accepted"
	AuthorizationInvalid     AuthorizationStatus = "Invalid"
	AuthorizationBlocked     AuthorizationStatus = "Blocked"
	AuthorizationExpired     AuthorizationStatus = "Expired"
	AuthorizationConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

// AuthResult is the pure-function result of an authorize() decision:
// (id-token, current time, user.authorized) -> status.
type AuthResult struct {
	Status AuthorizationStatus
	UserID string
}
