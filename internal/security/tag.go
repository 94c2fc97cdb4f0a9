package security

import (
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TagIssuer produces the payload printed on a unit's QR label and resolves
// scanned payloads back to a serial code.
type TagIssuer interface {
	Issue(serialID int32, code string) (string, error)
	Resolve(token string) (string, error)
}

type tagIssuer struct {
	secret []byte
}

func NewTagIssuer(secret string) TagIssuer {
	return &tagIssuer{secret: []byte(secret)}
}

// Issue signs a non-expiring tag. Labels outlive any sensible expiry.
func (t *tagIssuer) Issue(serialID int32, code string) (string, error) {
	claims := OperatorClaims{
		Type: TokenTypeTag,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  code,
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Issuer:   "serialrent",
			ID:       strconv.Itoa(int(serialID)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Resolve accepts a signed tag or a bare serial code typed in by hand.
func (t *tagIssuer) Resolve(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	// A JWT always has exactly two dots; serial codes never do.
	if strings.Count(token, ".") != 2 {
		return token, nil
	}
	claims, err := parseClaims(token, t.secret)
	if err != nil {
		return "", err
	}
	if claims.Type != TokenTypeTag || claims.Subject == "" {
		return "", ErrWrongTokenType
	}
	return claims.Subject, nil
}
