package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/cloo-solutions/docqa/internal/domain"
)

const apiKeyPrefix = "dqa_"

// AuthService resolves bearer API keys to owner IDs. Keys are configured as
// owner -> sha256(token) so raw tokens never sit in configuration.
type AuthService struct {
	owners []string
	hashes [][]byte
}

func NewAuthService(ownerHashes map[string]string) *AuthService {
	s := &AuthService{}
	for owner, h := range ownerHashes {
		raw, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil || len(raw) != sha256.Size || owner == "" {
			continue
		}
		s.owners = append(s.owners, owner)
		s.hashes = append(s.hashes, raw)
	}
	return s
}

// Len returns the number of usable keys.
func (s *AuthService) Len() int {
	return len(s.owners)
}

func (s *AuthService) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	if !IsValidAPIToken(token) {
		return "", domain.ErrInvalidAPIKey
	}

	sum := sha256.Sum256([]byte(token))
	owner := ""
	for i, h := range s.hashes {
		if subtle.ConstantTimeCompare(sum[:], h) == 1 {
			owner = s.owners[i]
		}
	}
	if owner == "" {
		return "", domain.ErrInvalidAPIKey
	}
	return owner, nil
}

// GenerateAPIToken returns a new random token.
func GenerateAPIToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(bytes), nil
}

// HashToken returns the hex sha256 of a token, the form stored in configuration.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func IsValidAPIToken(token string) bool {
	if !strings.HasPrefix(token, apiKeyPrefix) {
		return false
	}
	hexPart := token[len(apiKeyPrefix):]
	if len(hexPart) != 64 {
		return false
	}
	for _, c := range hexPart {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
