package mailchimp

import (
	"fmt"
	"strings"

	"github.com/tphakala/mcmigrate/internal/errors"
)

// ErrInvalidKeyFormat is returned for keys that are not "secret-datacenter".
var ErrInvalidKeyFormat = errors.NewStd("mailchimp api key must contain exactly one '-' separating two non-empty parts")

// APIKey is a parsed MailChimp key.
type APIKey struct {
	Secret     string
	Datacenter string
}

// ParseAPIKey splits key into secret and datacenter.
// Only the shape is checked; ValidateKey confirms the key against the API.
func ParseAPIKey(key string) (APIKey, error) {
	parts := strings.Split(key, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return APIKey{}, ErrInvalidKeyFormat
	}
	return APIKey{Secret: parts[0], Datacenter: parts[1]}, nil
}

// String returns the key in its original form.
func (k APIKey) String() string {
	return k.Secret + "-" + k.Datacenter
}

// BaseURL returns the datacenter specific API root.
func (k APIKey) BaseURL() string {
	return fmt.Sprintf("https://%s.api.mailchimp.com/3.0/", k.Datacenter)
}
