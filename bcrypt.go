package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost())
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", withMeta(ErrPasswordTooLong, err, map[string]any{
			"password": fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes),
		})
	}
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// RandomPasswordHash hashes a random secret nobody knows. Federated
// principals get one so password login can never succeed for them.
func RandomPasswordHash() string {
	pwd := uuid.New()

	h, err := HashPassword(pwd.String() + uuid.New().String())
	if err != nil {
		return RandomPasswordHash()
	}

	return h
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// dummyPasswordHash is compared against when a login id does not exist so
// the failure path costs the same as a wrong password.
func dummyPasswordHash() string {
	dummyHashOnce.Do(func() {
		dummyHash = RandomPasswordHash()
	})
	return dummyHash
}

type bcryptAuthenticator struct{}

// NewPasswordAuthenticator returns the bcrypt backed PasswordAuthenticator
func NewPasswordAuthenticator() PasswordAuthenticator {
	return bcryptAuthenticator{}
}

func (bcryptAuthenticator) HashPassword(password string) (string, error) {
	return HashPassword(password)
}

func (bcryptAuthenticator) ComparePasswordAndHash(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}

func (bcryptAuthenticator) RandomPasswordHash() string {
	return RandomPasswordHash()
}
