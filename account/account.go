// Package account is the directory of chat accounts: name to password hash.
//
// The server never sees a password. Clients send H(password) when creating
// an account and H(clientToken, serverToken, H(password)) when logging in,
// where H is SHA1 and the tokens are little-endian uint32 nonces.
package account

import (
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"
)

const (
	// MinName is the shortest legal account name.
	MinName = 2
	// MaxName bounds account names: legal names are shorter than MaxName.
	MaxName = 32

	// nameDelimiter separates fields in the account file.
	nameDelimiter = ';'
)

// Hash is a SHA1 digest.
type Hash [sha1.Size]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash decodes a 40 character hex digest.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*len(h) {
		return h, errors.Errorf("hash must be %d hex digits, got %d", 2*len(h), len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, errors.Wrap(err, "decode hash")
	}
	return h, nil
}

// HashPassword returns H(password), the value stored by the directory.
func HashPassword(password string) Hash {
	return sha1.Sum([]byte(password))
}

// Proof returns H(clientToken, serverToken, passwordHash), the value a client
// sends to log in.
func Proof(clientToken, serverToken uint32, passwordHash Hash) Hash {
	var buf [8 + sha1.Size]byte
	binary.LittleEndian.PutUint32(buf[0:], clientToken)
	binary.LittleEndian.PutUint32(buf[4:], serverToken)
	copy(buf[8:], passwordHash[:])
	return sha1.Sum(buf[:])
}

// LoginResult is the outcome of a login attempt. Values are sent on the wire.
type LoginResult uint32

const (
	LoginSuccess LoginResult = iota
	LoginIncorrectPassword
	LoginUnknownAccount
	// LoginAccountInUse is decided by the server, never by a Directory.
	LoginAccountInUse
)

func (r LoginResult) String() string {
	switch r {
	case LoginSuccess:
		return "success"
	case LoginIncorrectPassword:
		return "incorrect password"
	case LoginUnknownAccount:
		return "unknown account"
	case LoginAccountInUse:
		return "account in use"
	}
	return "unknown login result"
}

// CreateResult is the outcome of an account creation. Values are sent on the wire.
type CreateResult uint32

const (
	CreateSuccess CreateResult = iota
	CreateNameTooShort
	CreateNameTooLong
	CreateNameIllegal
	CreateAccountExists
)

func (r CreateResult) String() string {
	switch r {
	case CreateSuccess:
		return "success"
	case CreateNameTooShort:
		return "name too short"
	case CreateNameTooLong:
		return "name too long"
	case CreateNameIllegal:
		return "name illegal"
	case CreateAccountExists:
		return "account exists"
	}
	return "unknown create result"
}

// ValidateName checks an account name. It returns CreateSuccess for a legal
// name and the matching failure otherwise.
func ValidateName(name string) CreateResult {
	if len(name) < MinName {
		return CreateNameTooShort
	}
	if len(name) >= MaxName {
		return CreateNameTooLong
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c > 0x7E || c == nameDelimiter {
			return CreateNameIllegal
		}
	}
	return CreateSuccess
}

// Directory stores accounts. An error means the directory itself failed;
// a rejected login or creation is reported through the result.
type Directory interface {
	// Login checks proof against the stored hash for name.
	Login(ctx context.Context, name string, proof Hash, clientToken, serverToken uint32) (LoginResult, error)
	// Create stores a new account with the given password hash.
	Create(ctx context.Context, name string, passwordHash Hash) (CreateResult, error)
}

// verify compares proof with the expected proof for stored in constant time.
func verify(stored, proof Hash, clientToken, serverToken uint32) LoginResult {
	want := Proof(clientToken, serverToken, stored)
	if subtle.ConstantTimeCompare(want[:], proof[:]) != 1 {
		return LoginIncorrectPassword
	}
	return LoginSuccess
}
