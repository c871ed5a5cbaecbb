package auth

import "time"

// Config drives API token behavior.
type Config struct {
	Secret   string
	TokenTTL time.Duration
}

// Enabled reports whether tokens are required.
func (c Config) Enabled() bool {
	return c.Secret != ""
}

// IssueRequest asks for a token for one client.
type IssueRequest struct {
	Subject string        `json:"subject"`
	TTL     time.Duration `json:"ttl"`
}

// IssuedToken returns the signed token.
type IssuedToken struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Claims are extracted from the JWT token.
type Claims struct {
	ID        string
	Subject   string
	TokenType string
	ExpiresAt time.Time
}
