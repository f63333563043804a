package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// WHY BCRYPT?
//
// A fast hash such as SHA-256 lets an attacker holding a dump of the users
// table try billions of guesses per second on a GPU. bcrypt is slow on
// purpose, and its cost factor raises that price as hardware gets faster.
// It also salts every hash, so equal passwords produce different hashes and
// precomputed tables are useless.
//
// A stored hash carries its own parameters:
//
//	$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW
//	 |  |  |                     |
//	 |  |  salt (22 chars)       hash (31 chars)
//	 |  cost (2^12 rounds)
//	 algorithm version
//
// Verify reads cost and salt back from the hash, so raising defaultCost later
// does not break existing accounts.

// defaultCost is the bcrypt work factor for stored passwords. Each step
// doubles the work; 12 is a few hundred milliseconds per sign-in on a small
// server, which is slow for a guesser and unnoticed by a person.
const defaultCost = 12

// MaxPasswordBytes is the bcrypt input limit. bcrypt only looks at the first
// 72 bytes, so two long passwords sharing that prefix would both match the
// same hash. Longer inputs are rejected rather than silently truncated. The
// limit counts bytes, not characters: a password in a multi-byte script
// reaches it sooner.
const MaxPasswordBytes = 72

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// PasswordService hashes and verifies passwords with bcrypt. The cost is a
// field so tests can use the bcrypt minimum.
type PasswordService struct {
	cost int
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest returns a PasswordService with the given cost.
// Other packages' tests pass bcrypt.MinCost to keep hashing fast.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the self-describing bcrypt hash ("$2a$<cost>$<salt+hash>").
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash and ErrPasswordMismatch when
// it does not. An empty hash (a GitHub-only account) never matches.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if hash == "" {
		return ErrPasswordMismatch
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
