package security

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingFailed      = errors.New("password hashing failed")
	ErrInvalidCredentials = errors.New("invalid admin id or password")
)

// PasswordHasher provides interface for password operations
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) error
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a new password hasher using bcrypt
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptHasher) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// Credentials is the single fixed admin credential pair.
type Credentials struct {
	id     string
	hash   string
	hasher PasswordHasher
}

// NewCredentials accepts either a bcrypt hash or a plaintext password; the
// plaintext is hashed once here and never kept.
func NewCredentials(hasher PasswordHasher, id, passwordHash, password string) (*Credentials, error) {
	if passwordHash == "" {
		h, err := hasher.Hash(password)
		if err != nil {
			return nil, err
		}
		passwordHash = h
	}
	return &Credentials{id: id, hash: passwordHash, hasher: hasher}, nil
}

// Verify returns ErrInvalidCredentials on any mismatch.
func (c *Credentials) Verify(id, password string) error {
	idOK := subtle.ConstantTimeCompare([]byte(id), []byte(c.id)) == 1
	pwErr := c.hasher.Compare(c.hash, password)
	if !idOK || pwErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}
