package codex

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
)

// AuthJSON is the subset of ~/.codex/auth.json the probe reads.
type AuthJSON struct {
	OpenAIAPIKey *string    `json:"OPENAI_API_KEY"`
	Tokens       *TokenData `json:"tokens"`
	LastRefresh  string     `json:"last_refresh"`
}

// TokenData holds the OAuth tokens written by `codex login`.
type TokenData struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	AccountID    string `json:"account_id"`
}

// JWTClaims are the id/access token claims we care about.
type JWTClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	UPN               string `json:"upn"`
	UniqueName        string `json:"unique_name"`
	Exp               int64  `json:"exp"`
	AuthInfo          struct {
		ChatgptPlanType string `json:"chatgpt_plan_type"`
	} `json:"https://api.openai.com/auth"`
}

// ParseJWT decodes the payload of a JWT without verifying its signature.
func ParseJWT(token string) (*JWTClaims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid JWT format: expected 3 parts, got %d", len(parts))
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT payload: %w", err)
	}

	var claims JWTClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse JWT claims: %w", err)
	}
	return &claims, nil
}

// AccountEmail returns the first claim that holds a valid email, lower-cased.
func (c *JWTClaims) AccountEmail() string {
	for _, v := range []string{c.Email, c.PreferredUsername, c.UPN, c.UniqueName} {
		candidate := strings.ToLower(strings.TrimSpace(v))
		if accounts.IsEmail(candidate) {
			return candidate
		}
	}
	return ""
}

// LoadAuth reads and parses an auth.json file.
func LoadAuth(path string) (*AuthJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var auth AuthJSON
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("failed to parse auth.json: %w", err)
	}
	return &auth, nil
}

// Email extracts the account identity from the id_token, empty when the file
// has none.
func (a *AuthJSON) Email() string {
	if a == nil || a.Tokens == nil || a.Tokens.IDToken == "" {
		return ""
	}
	claims, err := ParseJWT(a.Tokens.IDToken)
	if err != nil {
		return ""
	}
	return claims.AccountEmail()
}

// Token exposes the stored access token with its expiry taken from the JWT.
// The probe never refreshes tokens itself; codex does that.
func (a *AuthJSON) Token() *oauth2.Token {
	if a == nil || a.Tokens == nil || a.Tokens.AccessToken == "" {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  a.Tokens.AccessToken,
		RefreshToken: a.Tokens.RefreshToken,
		TokenType:    "Bearer",
	}
	if claims, err := ParseJWT(a.Tokens.AccessToken); err == nil && claims.Exp > 0 {
		tok.Expiry = time.Unix(claims.Exp, 0)
	}
	return tok
}
