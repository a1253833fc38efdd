package auth

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ksred/chain-engine/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// Scopes a token can carry. Submit gates transaction submission; query
// covers the read-only chain, market and token endpoints.
const (
	ScopeSubmit = "submit"
	ScopeQuery  = "query"
)

// tokenTTL is how long an issued token stays valid.
const tokenTTL = 24 * time.Hour

// Test credentials registered by the node in non-production runs.
var (
	TestAPIKey    = "test-api-key"
	TestAPISecret = "test-api-secret"
)

// Credentials is the key pair a client exchanges for a token.
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// TokenResponse carries an issued token back to the client.
type TokenResponse struct {
	Token      string    `json:"token"`
	Account    string    `json:"account"`
	Expiration time.Time `json:"expiration"`
}

// Claims ties a token to the chain account it submits on behalf of.
type Claims struct {
	jwt.RegisteredClaims
	Account string   `json:"account"`
	Scopes  []string `json:"scopes"`
}

// apiKey is one registered key: its secret, the chain account transactions
// submitted with it are attributed to, and the scopes tokens minted from it
// carry.
type apiKey struct {
	secret  string
	account string
	scopes  []string
}

// Service issues and validates the node API's bearer tokens. Keys live in
// memory; node operators register them at startup.
type Service struct {
	jwtSecret []byte
	keys      map[string]apiKey
}

// NewService creates an auth service signing with the given secret.
func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		keys:      make(map[string]apiKey),
	}
}

// RegisterKey registers an API key bound to a chain account. Tokens minted
// from it carry the given scopes, defaulting to submit plus query.
func (s *Service) RegisterKey(key, secret, account string, scopes ...string) {
	if len(scopes) == 0 {
		scopes = []string{ScopeSubmit, ScopeQuery}
	}
	s.keys[key] = apiKey{secret: secret, account: account, scopes: scopes}
}

// GenerateToken exchanges valid credentials for a signed bearer token.
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	key, ok := s.keys[creds.APIKey]
	if !ok || key.secret != creds.APISecret {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	expiration := now.Add(tokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "chain-engine",
			Subject:   key.account,
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Account: key.account,
		Scopes:  key.scopes,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      signed,
		Account:    key.account,
		Expiration: expiration,
	}, nil
}

// ValidateToken verifies a token's signature and expiry and returns its
// claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// HasScope reports whether the claims grant the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// GinHandlers exposes the auth endpoints.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates the auth endpoint handlers.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GenerateTokenHandler handles POST /auth/token: exchanges API credentials
// for a bearer token.
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}

// Account extracts the authenticated chain account set by the JWT
// middleware, empty when absent.
func Account(c *gin.Context) string {
	return c.GetString("account")
}
