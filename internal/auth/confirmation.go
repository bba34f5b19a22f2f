// Package auth implements the signup confirmation-code scheme and the JWT
// access tokens exchanged for it.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

const (
	confirmationCodeBytes = 16

	codeHashIterations = 210000
	codeHashSaltLength = 16
	codeHashKeyLength  = 32
)

// ErrInvalidCode is returned when a confirmation code does not match the
// stored hash or the account state changed since it was issued.
var ErrInvalidCode = errors.New("invalid confirmation code")

// GenerateConfirmationCode returns a fresh single-use code. Only its hash is
// persisted; the plaintext goes out by email.
func GenerateConfirmationCode() (string, error) {
	buf := make([]byte, confirmationCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate confirmation code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashConfirmationCode derives a salted PBKDF2 hash of the code in the
// pbkdf2$sha256$iterations$salt$key format.
func HashConfirmationCode(code string) (string, error) {
	salt := make([]byte, codeHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(code), salt, codeHashIterations, codeHashKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", codeHashIterations, encodedSalt, encodedKey), nil
}

// VerifyConfirmationCode checks a candidate code against the stored hash.
func VerifyConfirmationCode(encodedHash, candidate string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return fmt.Errorf("verify confirmation code: invalid hash format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return fmt.Errorf("verify confirmation code: unsupported hash identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return fmt.Errorf("verify confirmation code: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify confirmation code: decode salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("verify confirmation code: decode hash: %w", err)
	}
	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if len(derived) != len(storedKey) || subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return ErrInvalidCode
	}
	return nil
}

// StateFingerprint binds a confirmation code to the account state it was
// issued against. Changing username, email, or role invalidates outstanding
// codes.
func StateFingerprint(user models.User) string {
	sum := sha256.Sum256([]byte(strings.ToLower(user.Username) + "\x00" + user.Email + "\x00" + string(user.Role)))
	return hex.EncodeToString(sum[:])
}
