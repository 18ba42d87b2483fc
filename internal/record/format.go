package record

import (
	"encoding/base64"
	"strings"
)

// Format renders r as a tuple line that Parse accepts. Fields 2 through 7
// are written as NULL. The encoded email is reused when present so that
// undecodable values round-trip unchanged. A field holding both quote
// characters, or starting or ending with one, does not survive Parse;
// check Formattable first.
func Format(r Record) string {
	encoded := r.EncodedEmail
	if encoded == "" {
		if r.HasEmail() {
			encoded = base64.StdEncoding.EncodeToString([]byte(r.Email))
		} else {
			encoded = "null"
		}
	}
	addr := r.NetworkAddress
	if !r.HasAddress() {
		addr = "null"
	}

	fields := make([]string, 0, MinFields)
	fields = append(fields, quote(r.ID), quote(encoded))
	for i := 2; i < MinFields-1; i++ {
		fields = append(fields, "NULL")
	}
	fields = append(fields, quote(addr))
	return "(" + strings.Join(fields, ", ") + "),"
}

func quote(s string) string {
	if strings.ContainsRune(s, '\'') {
		return `"` + s + `"`
	}
	return "'" + s + "'"
}

// Formattable reports whether Format output parses back to r's fields.
func Formattable(r Record) bool {
	return quotable(r.ID) && quotable(r.EncodedEmail) && quotable(r.NetworkAddress)
}

func quotable(s string) bool {
	if s != strings.Trim(s, quoteChars) {
		return false
	}
	return !strings.ContainsRune(s, '\'') || !strings.ContainsRune(s, '"')
}
