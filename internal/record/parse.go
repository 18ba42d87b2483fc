package record

import (
	"encoding/base64"
	"strings"
	"time"
	"unicode/utf8"
)

const quoteChars = `'"`

// Parse parses one tuple line. It returns ok=false for empty lines,
// lines that are not a parenthesized tuple, tuples with fewer than
// MinFields fields, and ids that are empty or the literal null.
func Parse(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '(' {
		return Record{}, false
	}
	if strings.HasSuffix(line, "),") {
		line = line[:len(line)-1]
	}
	if len(line) < 2 || line[len(line)-1] != ')' {
		return Record{}, false
	}

	fields := splitFields(line[1 : len(line)-1])
	if len(fields) < MinFields {
		return Record{}, false
	}

	id := unquote(fields[0])
	if id == "" || isNull(id) {
		return Record{}, false
	}

	encoded := unquote(fields[1])
	addr := unquote(fields[8])
	if addr == "" || isNull(addr) {
		addr = NotAvailable
	}

	return Record{
		ID:             id,
		Email:          decodeEmail(encoded),
		NetworkAddress: addr,
		EncodedEmail:   encoded,
	}, true
}

// ParseWithSource parses line and stamps provenance on the result.
func ParseWithSource(line, source string, loadedAt time.Time) (Record, bool) {
	rec, ok := Parse(line)
	if !ok {
		return Record{}, false
	}
	rec.Source = source
	rec.LoadedAt = loadedAt
	return rec, true
}

// splitFields splits the tuple body on commas outside quoted runs.
// A quoted run opened by ' or " closes only on the same character.
// A trailing empty field is dropped.
func splitFields(body string) []string {
	var (
		fields  []string
		current strings.Builder
		quote   rune
	)
	for _, c := range body {
		switch {
		case quote == 0 && (c == '\'' || c == '"'):
			quote = c
			current.WriteRune(c)
		case quote != 0 && c == quote:
			quote = 0
			current.WriteRune(c)
		case quote == 0 && c == ',':
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(c)
		}
	}
	if current.Len() > 0 {
		fields = append(fields, strings.TrimSpace(current.String()))
	}
	return fields
}

func unquote(s string) string {
	return strings.Trim(s, quoteChars)
}

func isNull(s string) bool {
	return strings.EqualFold(s, "null")
}

// decodeEmail decodes a base64 email with lenient padding. Failures and
// empty decodes keep the encoded text.
func decodeEmail(encoded string) string {
	if encoded == "" || isNull(encoded) {
		return NotAvailable
	}

	padded := encoded
	if rem := len(padded) % 4; rem != 0 {
		padded += strings.Repeat("=", 4-rem)
	}

	raw, err := base64.StdEncoding.DecodeString(padded)
	if err != nil {
		return encoded
	}

	decoded := string(raw)
	if !utf8.ValidString(decoded) {
		decoded = strings.ToValidUTF8(decoded, "")
	}
	if decoded == "" {
		return encoded
	}
	return decoded
}
