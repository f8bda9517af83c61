// Package services contains the server-side business logic of the
// authentication core: credential rotation, session tracking, device
// trust, passwordless login, and federated-identity resolution. Every
// login-style flow (password, OTP, federated) funnels into the same
// token-minting tail, so they are indistinguishable downstream.
package services

import (
	"time"

	"github.com/dbelyaev/authcore/internal/server/models"
)

// TokenPair bundles a short-lived access token and a long-lived refresh
// credential.
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// LoginResult is the outcome of any successful login flow.
type LoginResult struct {
	User    *models.User
	Tokens  TokenPair
	Session *models.Session
}
