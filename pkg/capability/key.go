package capability

import (
	"errors"
	"log"
	"strings"
)

// KeySize is the key length required by A256GCM.
const KeySize = 32

// insecureDefaultSecret is the fallback secret shipped by earlier releases. Anyone holding it can mint
// capabilities, so it is only used when explicitly allowed.
const insecureDefaultSecret = "mysecrtypekey1234567890123456789012345678901234567890"

// ErrMissingSecret is returned when no capability secret is configured.
var ErrMissingSecret = errors.New("capability secret is not configured")

// DeriveKey turns a configured secret into a key by right-padding it with '0' and truncating it to
// KeySize bytes. Tokens minted by earlier releases use the same derivation.
func DeriveKey(secret string) []byte {
	if len(secret) < KeySize {
		secret += strings.Repeat("0", KeySize-len(secret))
	}
	return []byte(secret[:KeySize])
}

// LoadKey derives the process-wide key from the configured secret. An empty secret is an error unless
// allowInsecureDefault is set.
func LoadKey(secret string, allowInsecureDefault bool) ([]byte, error) {
	if secret == "" {
		if !allowInsecureDefault {
			return nil, ErrMissingSecret
		}
		log.Printf("WARNING: no capability secret configured, using the insecure built-in default key")
		secret = insecureDefaultSecret
	}
	return DeriveKey(secret), nil
}
