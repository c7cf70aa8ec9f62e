package bridge

import (
	"net/url"
	"strings"
)

// ParseFileURI parses a roots/list URI entry into an absolute filesystem
// path. It strips the file:// prefix, optionally strips a leading
// "localhost" host component, rejects an empty or relative remainder,
// percent-decodes the remainder as UTF-8 (rejecting decode failures), and
// strips any query or fragment suffix.
func ParseFileURI(raw string) (string, bool) {
	const prefix = "file://"
	if !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	rest := raw[len(prefix):]
	rest = strings.TrimPrefix(rest, "localhost")
	if rest == "" {
		return "", false
	}
	if !strings.HasPrefix(rest, "/") {
		return "", false
	}

	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", false
	}

	decoded, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return decoded, true
}

// EncodeFileURI renders a filesystem path as a file:// URI, percent-encoding
// every byte outside the unreserved set except the '/' separator.
func EncodeFileURI(path string) string {
	var sb strings.Builder
	sb.WriteString("file://")
	for i := 0; i < len(path); i++ {
		b := path[i]
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9',
			b == '-', b == '.', b == '_', b == '~', b == '/':
			sb.WriteByte(b)
		default:
			sb.WriteString("%")
			sb.WriteString(strings.ToUpper(hexByte(b)))
		}
	}
	return sb.String()
}

func hexByte(b byte) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[b>>4], hex[b&0x0f]})
}
