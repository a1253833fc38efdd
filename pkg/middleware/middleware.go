package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ksred/chain-engine/pkg/response"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	// Per-endpoint-class limits. Token minting is the tightest, reads the
	// loosest.
	authLimit   = rate.Limit(10.0 / 60.0)   // 10 requests per minute
	submitLimit = rate.Limit(100.0 / 60.0)  // 100 requests per minute
	queryLimit  = rate.Limit(1000.0 / 60.0) // 1000 requests per minute
)

func init() {
	go cleanupVisitors()
}

func getLimiter(path, caller string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := caller + ":" + path
	v, exists := visitors[key]

	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
		case strings.HasPrefix(path, "/api/v1/transactions"):
			limit = submitLimit
		case strings.HasPrefix(path, "/api/v1/chain"),
			strings.HasPrefix(path, "/api/v1/market"),
			strings.HasPrefix(path, "/api/v1/tokens"):
			limit = queryLimit
		default:
			limit = rate.Inf
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, 1),
			lastSeen: time.Now(),
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

// RateLimit throttles per caller and endpoint class. Authenticated callers
// are keyed by account so one account cannot consume another's budget; the
// unauthenticated fall back to client IP.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("account")
		if caller == "" {
			caller = c.ClientIP()
		}

		limiter := getLimiter(c.FullPath(), caller)
		if !limiter.Allow() {
			response.BadRequest(c, "rate limit exceeded, try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth verifies the bearer token with the given signing secret and, when
// requiredScope is non-empty, checks the token grants it. On success the
// authenticated chain account and the raw claims are set on the context.
func JWTAuth(secret string, requiredScope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := parseBearerToken(c, secret)
		if err != nil {
			response.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		account, ok := claims["account"].(string)
		if !ok || account == "" {
			response.Unauthorized(c, "token is not bound to an account")
			c.Abort()
			return
		}
		if _, ok := claims["exp"]; !ok {
			response.Unauthorized(c, "token has no expiry")
			c.Abort()
			return
		}
		if requiredScope != "" && !hasScope(claims, requiredScope) {
			response.Forbidden(c, fmt.Sprintf("token lacks the %s scope", requiredScope))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("account", account)
		c.Next()
	}
}

func parseBearerToken(c *gin.Context, secret string) (jwt.MapClaims, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, fmt.Errorf("authorization header required")
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, fmt.Errorf("invalid authorization header format")
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func hasScope(claims jwt.MapClaims, scope string) bool {
	scopes, ok := claims["scopes"].([]interface{})
	if !ok {
		return false
	}
	for _, s := range scopes {
		if str, ok := s.(string); ok && str == scope {
			return true
		}
	}
	return false
}
