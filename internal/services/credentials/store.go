// Package credentials keeps raw secrets and their loggable representations
// apart at the type level. A Secret can only be revealed inside DSN
// construction; everything that formats or serializes one sees a mask.
package credentials

import (
	"crypto/subtle"
	"os"
	"strings"

	"github.com/adaptive-sql/querygate/internal/models"
)

const mask = "***"

// Secret wraps a raw credential. Its fmt and JSON representations are always
// masked; only Reveal returns the raw value.
type Secret struct {
	raw string
}

// NewSecret wraps a raw value.
func NewSecret(raw string) Secret {
	return Secret{raw: raw}
}

// Reveal returns the raw value for backend connection purposes only.
func (s Secret) Reveal() string {
	return s.raw
}

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool {
	return s.raw == ""
}

// Equal compares two secrets in constant time.
func (s Secret) Equal(other Secret) bool {
	return subtle.ConstantTimeCompare([]byte(s.raw), []byte(other.raw)) == 1
}

// String implements fmt.Stringer and always masks.
func (s Secret) String() string {
	if s.raw == "" {
		return ""
	}
	return mask
}

// GoString masks %#v output as well.
func (s Secret) GoString() string {
	return "credentials.Secret{" + s.String() + "}"
}

// MarshalJSON masks the secret in any serialized form.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s.raw == "" {
		return []byte(`""`), nil
	}
	return []byte(`"` + mask + `"`), nil
}

// Bundle holds the resolved secret material for one connection.
type Bundle struct {
	Password Secret
	// SSL material is loaded from the configured paths at resolution time so
	// adapters never touch the filesystem themselves.
	SSLCert     []byte
	SSLKey      []byte
	SSLRootCert []byte
}

// Store resolves credential references from connection configs. Values of the
// form ${VAR} are read from the environment at resolution time.
type Store struct {
	bundles map[string]Bundle
}

// NewStore resolves the credentials for every connection up front.
// Missing SSL files are a configuration error; a missing env reference
// resolves to empty (the backend will reject it as an auth failure).
func NewStore(connections map[string]*models.ConnectionConfig) (*Store, error) {
	s := &Store{bundles: make(map[string]Bundle, len(connections))}
	for name, cfg := range connections {
		b := Bundle{Password: NewSecret(resolveRef(cfg.Password))}
		if cfg.SSL != nil {
			var err error
			if b.SSLCert, err = readOptional(cfg.SSL.Cert); err != nil {
				return nil, models.NewConfigurationError("connection "+name+": unreadable ssl cert", err)
			}
			if b.SSLKey, err = readOptional(cfg.SSL.Key); err != nil {
				return nil, models.NewConfigurationError("connection "+name+": unreadable ssl key", err)
			}
			if b.SSLRootCert, err = readOptional(cfg.SSL.RootCert); err != nil {
				return nil, models.NewConfigurationError("connection "+name+": unreadable ssl root cert", err)
			}
		}
		s.bundles[name] = b
	}
	return s, nil
}

// Resolve returns the credential bundle for a connection name.
func (s *Store) Resolve(name string) (Bundle, bool) {
	b, ok := s.bundles[name]
	return b, ok
}

// MaskDSN redacts the password portion of common DSN shapes so they can be
// logged. Covers user:pass@ (mysql), password=... (postgres key/value) and
// ://user:pass@ (URL) forms.
func MaskDSN(dsn string) string {
	out := dsn
	if at := strings.LastIndex(out, "@"); at != -1 {
		head := out[:at]
		if colon := strings.LastIndex(head, ":"); colon != -1 {
			out = head[:colon+1] + mask + out[at:]
		}
	}
	if idx := strings.Index(out, "password="); idx != -1 {
		rest := out[idx+len("password="):]
		end := strings.IndexAny(rest, " &")
		if end == -1 {
			end = len(rest)
		}
		out = out[:idx] + "password=" + mask + rest[end:]
	}
	return out
}

func resolveRef(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}"))
	}
	return value
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}
