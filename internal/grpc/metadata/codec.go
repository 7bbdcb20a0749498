package metadata

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/metadata"
)

const (
	// BinarySuffix marks keys whose values are raw bytes on the wire.
	BinarySuffix = "-bin"
	// PseudoPrefix marks protocol-level keys hidden from callers.
	PseudoPrefix = ":"
)

// ErrInvalidKey is returned when a header key cannot be sent as gRPC metadata.
var ErrInvalidKey = errors.New("invalid metadata key")

// Encode converts caller headers into outgoing wire metadata.
// Values are stringified; keys are lowercased.
func Encode(headers map[string]any) (metadata.MD, error) {
	md := make(metadata.MD, len(headers))
	for key, value := range headers {
		k := strings.ToLower(key)
		if err := validateKey(k); err != nil {
			return nil, err
		}
		md.Append(k, stringify(value))
	}
	return md, nil
}

// Decode converts wire metadata into the caller-facing mapping.
// Pseudo-headers are dropped, binary values are base64 encoded, and the
// last value wins for repeated keys.
func Decode(md metadata.MD) map[string]string {
	out := make(map[string]string, len(md))
	for key, values := range md {
		if strings.HasPrefix(key, PseudoPrefix) || len(values) == 0 {
			continue
		}
		value := values[len(values)-1]
		if isBinary(key) {
			value = base64.StdEncoding.EncodeToString([]byte(value))
		}
		out[key] = value
	}
	return out
}

// isBinary reports whether key carries a binary value.
func isBinary(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), BinarySuffix)
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.HasPrefix(key, PseudoPrefix) {
		return fmt.Errorf("%w: %q is a pseudo-header", ErrInvalidKey, key)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' {
			continue
		}
		return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, c)
	}
	return nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
