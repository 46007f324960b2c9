package smtptest

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
)

var (
	// ErrBadCredentials is returned when the decoded credentials do not
	// match the server's account.
	ErrBadCredentials = errors.New("authentication failed")

	errMalformedAuth = errors.New("malformed AUTH response")
)

// credentials is the single account a Server accepts.
type credentials struct {
	username string
	password string
}

// enabled reports whether the server requires AUTH before MAIL.
func (c credentials) enabled() bool {
	return c.username != "" && c.password != ""
}

// verify compares a username and password in constant time.
func (c credentials) verify(user, pass string) error {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(c.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(c.password)) == 1
	if !userOK || !passOK {
		return ErrBadCredentials
	}
	return nil
}

// verifyPlain checks an AUTH PLAIN response: base64(authzid \0 authcid \0 passwd).
// The authorization identity is ignored.
func (c credentials) verifyPlain(encoded string) error {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return errMalformedAuth
	}

	parts := strings.SplitN(string(decoded), "\x00", 3)
	if len(parts) != 3 {
		return errMalformedAuth
	}
	return c.verify(parts[1], parts[2])
}

// verifyLogin checks the two base64 answers of an AUTH LOGIN exchange.
func (c credentials) verifyLogin(encodedUser, encodedPass string) error {
	user, err := base64.StdEncoding.DecodeString(encodedUser)
	if err != nil {
		return errMalformedAuth
	}
	pass, err := base64.StdEncoding.DecodeString(encodedPass)
	if err != nil {
		return errMalformedAuth
	}
	return c.verify(string(user), string(pass))
}
