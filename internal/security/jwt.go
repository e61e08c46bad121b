package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token verification errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
	// ErrUserMismatch indicates the token subject does not match the claimed user.
	ErrUserMismatch = errors.New("user id mismatch")
)

// Identity is the verified caller identity.
type Identity struct {
	UID   string
	Email string
	Tier  string
}

// UserClaims defines the JWT claims carried by gateway tokens.
type UserClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Tier  string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates a bearer token against a claimed user id. It stands in
// for the external identity provider.
type Verifier interface {
	Verify(token, claimedUserID string) (*Identity, error)
}

// JWTVerifier verifies HS256-signed tokens.
type JWTVerifier struct {
	secret string
}

// NewJWTVerifier constructs a JWTVerifier with the shared secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates tokenString and checks its uid against claimedUserID.
func (v *JWTVerifier) Verify(tokenString, claimedUserID string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(v.secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UID == "" || claims.UID != claimedUserID {
		return nil, ErrUserMismatch
	}
	return &Identity{UID: claims.UID, Email: claims.Email, Tier: claims.Tier}, nil
}

// GenerateToken signs a gateway JWT with the configured expiry.
func GenerateToken(secret, uid, email, tier string, expiry time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := UserClaims{
		UID:   uid,
		Email: email,
		Tier:  tier,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
