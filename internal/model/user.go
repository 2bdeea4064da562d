// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// User represents an account, whether it was created by local registration
// or by a federated sign-in.
//
// WHY EMAIL AS THE NATURAL KEY?
// Both login paths converge on the same record: a local account and a Google
// sign-in that report the same email are the same user. We still generate our
// own internal string ID (xid) so primary keys never depend on user input.
//
// WHY Secret *string?
// A user who has never submitted a secret is different from one who
// submitted an empty string. nil means "never set".
type User struct {
	ID         string     `json:"id"        db:"id"`
	Email      string     `json:"email"     db:"email"`
	Credential Credential `json:"-"         db:"credential"` // never serialized
	Secret     *string    `json:"-"         db:"secret"`     // only exposed through the secret gate
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt" db:"updated_at"`
}

// HasSecret reports whether a secret has ever been stored for the user.
func (u *User) HasSecret() bool {
	return u.Secret != nil
}

// FederatedMarker is the stored form of a federated credential.
// It can never be produced by bcrypt, so no password can ever match it.
const FederatedMarker = "!federated"

// Credential is a tagged value: either a bcrypt hash (local accounts) or the
// federated sentinel (accounts created through an identity provider).
//
// TAGGED VARIANT INSTEAD OF A MAGIC STRING:
// Storing a literal like "google" in the password column works only as long
// as every reader remembers to special-case it. Making the variant explicit
// means the verifier has to branch on IsFederated and can never feed the
// sentinel into a hash comparison by accident.
type Credential struct {
	hash      string
	federated bool
}

// LocalHash wraps a bcrypt hash produced by the password service.
func LocalHash(hash string) Credential {
	return Credential{hash: hash}
}

// FederatedSentinel is the credential of an account with no local password.
func FederatedSentinel() Credential {
	return Credential{federated: true}
}

// ParseCredential decodes the stored column value.
// Anything that does not look like a bcrypt hash ($2a$, $2b$, $2y$) decodes
// as the sentinel, which also covers legacy rows holding a provider name.
func ParseCredential(stored string) Credential {
	if isBcryptHash(stored) {
		return LocalHash(stored)
	}
	return FederatedSentinel()
}

// IsFederated reports whether the credential is the federated sentinel.
func (c Credential) IsFederated() bool {
	return c.federated
}

// Hash returns the bcrypt hash, or "" for the sentinel.
func (c Credential) Hash() string {
	if c.federated {
		return ""
	}
	return c.hash
}

// String returns the storage encoding. It is what repositories write.
func (c Credential) String() string {
	if c.federated {
		return FederatedMarker
	}
	return c.hash
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
