package security

import (
	"golang.org/x/crypto/bcrypt"
)

// APIKeyVerifier checks scanner API keys against configured bcrypt hashes.
type APIKeyVerifier interface {
	Verify(key string) bool
}

type apiKeyVerifier struct {
	hashes [][]byte
}

func NewAPIKeyVerifier(hashes []string) APIKeyVerifier {
	v := &apiKeyVerifier{}
	for _, h := range hashes {
		if h != "" {
			v.hashes = append(v.hashes, []byte(h))
		}
	}
	return v
}

func (v *apiKeyVerifier) Verify(key string) bool {
	if key == "" {
		return false
	}
	for _, h := range v.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			return true
		}
	}
	return false
}

// HashAPIKey produces the value to put in auth.scanner_key_hashes.
func HashAPIKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
