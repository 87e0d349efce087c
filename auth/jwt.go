package auth

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Altmerian/jackpot/errors"
	"github.com/Altmerian/jackpot/logging"
	"github.com/Altmerian/jackpot/types"
)

// Gin context keys set by the middleware.
const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
	ClaimsKey   = "claims"
)

// Issuer is stamped on tokens minted by GenerateToken and required by
// ParseToken.
const Issuer = "jackpotd"

var signingMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// Claims identifies the player placing bets.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT middleware configuration
type JWTConfig struct {
	Secret      string
	TokenPrefix string
	SkipPaths   []string
}

// DefaultJWTConfig returns default JWT configuration
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:      secret,
		TokenPrefix: "Bearer",
		SkipPaths:   []string{"/health", "/api/health"},
	}
}

// JWTMiddleware guards the bet, contribution and evaluation routes.
func JWTMiddleware(secret string, logger zerolog.Logger) gin.HandlerFunc {
	return JWTMiddlewareWithConfig(DefaultJWTConfig(secret), logger)
}

// JWTMiddlewareWithConfig creates a JWT middleware with custom configuration
func JWTMiddlewareWithConfig(config JWTConfig, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lo.Contains(config.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}
		log := logging.FromContext(c.Request.Context(), logger)

		token, ok := bearerToken(c.GetHeader("Authorization"), config.TokenPrefix)
		if !ok {
			log.Warn().Msg("Missing or malformed Authorization header")
			abortUnauthorized(c, "Expected Authorization: "+config.TokenPrefix+" <token>")
			return
		}

		claims, err := ParseToken(config.Secret, token)
		if err != nil {
			log.Warn().Err(err).Msg("Rejected bearer token")
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)
		c.Set(ClaimsKey, claims)

		log = logging.WithUserID(log, claims.UserID)
		log.Debug().
			Str("username", claims.Username).
			Msg("JWT authentication successful")

		c.Next()
	}
}

// bearerToken splits "<prefix> <token>", matching the prefix case-insensitively.
func bearerToken(header, prefix string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, prefix) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{
		StatusCode: http.StatusUnauthorized,
		Error: types.NewErrorDetail(time.Now().Format(time.RFC3339), c.Request.URL.Path,
			logging.TraceIDFromContext(c.Request.Context()), errors.ErrUnauthorized, message),
	})
}

// ParseToken validates an HMAC signed token issued by this service and
// returns its claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods(signingMethods), jwt.WithIssuer(Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, stderrors.New("invalid token claims")
	}
	return claims, nil
}

// GetUserID returns the authenticated user id, if any.
func GetUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(UserIDKey)
	return userID, userID != ""
}

// GetClaims returns the authenticated claims, if any.
func GetClaims(c *gin.Context) (*Claims, bool) {
	claims, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claimsObj, ok := claims.(*Claims)
	return claimsObj, ok
}

// CheckBetOwner rejects a bet placed for another user than the one
// authenticated. Unauthenticated requests pass.
func CheckBetOwner(c *gin.Context, userID string) error {
	authUser, ok := GetUserID(c)
	if !ok || userID == "" || userID == authUser {
		return nil
	}
	return errors.Newf(errors.ErrForbidden, "bet user %s does not match authenticated user", userID)
}

// GenerateToken mints a token for userID valid for expiration.
func GenerateToken(secret string, userID, username string, expiration time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
