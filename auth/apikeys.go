package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fleetcore/models/apikey"
)

const (
	keyMaterialBytes = 32 // spec §4.9: "32+ bytes of random"
	prefixLen        = 8
)

// IssuedKey is the one-time view of a newly generated key: Secret is shown
// to the caller exactly once and never stored.
type IssuedKey struct {
	Record *apikey.APIKey
	Secret string
}

// GenerateAPIKey creates random key material, hashes it with bcrypt, and
// returns both the persisted record and the one-time secret (spec §4.9).
func GenerateAPIKey(ownerUserID, displayName string, scopes []apikey.Scope, now time.Time) (IssuedKey, error) {
	raw := make([]byte, keyMaterialBytes)
	if _, err := rand.Read(raw); err != nil {
		return IssuedKey{}, fmt.Errorf("auth: generate key material: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	prefix := secret[:prefixLen]

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return IssuedKey{}, fmt.Errorf("auth: hash key: %w", err)
	}

	record := &apikey.APIKey{
		ID:          uuid.NewString(),
		OwnerUserID: ownerUserID,
		DisplayName: displayName,
		Prefix:      prefix,
		SaltedHash:  string(hash),
		Scopes:      scopes,
		CreatedAt:   now,
		Active:      true,
	}
	return IssuedKey{Record: record, Secret: secret}, nil
}

// VerifyAPIKey matches presented by prefix then a constant-time bcrypt
// comparison of the full secret (spec §4.9 — "matched by prefix then
// constant-time hash comparison"). bcrypt's own comparison is already
// constant-time over the hash; the prefix check here is a fast filter, not
// the security boundary.
func VerifyAPIKey(candidate string, record *apikey.APIKey) bool {
	if !record.Active {
		return false
	}
	if len(candidate) < prefixLen || subtle.ConstantTimeCompare([]byte(candidate[:prefixLen]), []byte(record.Prefix)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(record.SaltedHash), []byte(candidate)) == nil
}
