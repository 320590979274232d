// Package listgroup migrates the event list/group table from name based
// interest tokens to MailChimp API v3 interest IDs.
//
// Legacy rows reference an interest by name. Names are not unique, so the
// stage builds an index of every remote interest keyed by event, list and
// name, and each legacy row claims the first unclaimed interest with its
// name. Interests no row claimed are inserted as "not selected" once the
// table has been walked.
package listgroup

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tphakala/mcmigrate/internal/errors"
)

const (
	// SentinelNoList marks an event that must not be synced.
	SentinelNoList = "-1"

	tokenSeparator = "-"
	tokenParts     = 4
	flagSelected   = "true"
	flagUnselected = "false"
)

var (
	// ErrMalformedToken is returned for tokens that do not have exactly four
	// parts or whose name part is not valid base64, padded or not.
	ErrMalformedToken = errors.NewStd("malformed group token")
	// ErrAmbiguousToken is returned when an ID contains the separator and
	// the token could not be decoded again.
	ErrAmbiguousToken = errors.NewStd("ambiguous group token")
)

// Token is the decoded form of a group token:
// "{interestId}-{categoryId}-{base64(name)}-{true|false}".
type Token struct {
	InterestID string
	CategoryID string
	Name       string
	Selected   bool
}

// ParseToken decodes a group token. The flag is true only for the literal
// "true"; legacy rows carry other values there. Names written without
// base64 padding are accepted.
func ParseToken(s string) (Token, error) {
	parts := strings.Split(s, tokenSeparator)
	if len(parts) != tokenParts {
		return Token{}, fmt.Errorf("%w: %q has %d parts, want %d", ErrMalformedToken, s, len(parts), tokenParts)
	}

	name, err := decodeName(parts[2])
	if err != nil {
		return Token{}, fmt.Errorf("%w: %q: name: %w", ErrMalformedToken, s, err)
	}

	return Token{
		InterestID: parts[0],
		CategoryID: parts[1],
		Name:       string(name),
		Selected:   parts[3] == flagSelected,
	}, nil
}

func decodeName(s string) ([]byte, error) {
	name, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return name, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// Encode returns the string form of t.
func (t Token) Encode() (string, error) {
	if strings.Contains(t.InterestID, tokenSeparator) || strings.Contains(t.CategoryID, tokenSeparator) {
		return "", fmt.Errorf("%w: interest %q category %q", ErrAmbiguousToken, t.InterestID, t.CategoryID)
	}

	flag := flagUnselected
	if t.Selected {
		flag = flagSelected
	}
	return strings.Join([]string{
		t.InterestID,
		t.CategoryID,
		base64.StdEncoding.EncodeToString([]byte(t.Name)),
		flag,
	}, tokenSeparator), nil
}
