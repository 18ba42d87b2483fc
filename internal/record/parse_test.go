package record

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DecodesEmailAndAddress(t *testing.T) {
	// Given: a well-formed line with a base64 email
	line := `("u1", "dGVzdEBleGFtcGxlLmNvbQ==", 'x','x','x','x','x','x','192.0.2.1')`

	// When: parsing it
	rec, ok := Parse(line)

	// Then: the fields are mapped and decoded
	require.True(t, ok)
	assert.Equal(t, "u1", rec.ID)
	assert.Equal(t, "test@example.com", rec.Email)
	assert.Equal(t, "192.0.2.1", rec.NetworkAddress)
	assert.Equal(t, "dGVzdEBleGFtcGxlLmNvbQ==", rec.EncodedEmail)
}

func TestParse_UndecodableEmailKeepsEncodedText(t *testing.T) {
	line := `("u2", "notbase64!", 'x','x','x','x','x','x','null')`

	rec, ok := Parse(line)

	require.True(t, ok)
	assert.Equal(t, "u2", rec.ID)
	assert.Equal(t, "notbase64!", rec.Email)
	assert.Equal(t, NotAvailable, rec.NetworkAddress)
}

func TestParse_CommaInsideQuotesIsNotASeparator(t *testing.T) {
	// Given: an encoded field containing a comma inside quotes
	line := `('u3', 'a,b', 'x','x','x','x','x','x','10.0.0.1')`

	// When: parsing it
	rec, ok := Parse(line)

	// Then: the comma stays in the field and the address is still field 8
	require.True(t, ok)
	assert.Equal(t, "a,b", rec.EncodedEmail)
	assert.Equal(t, "a,b", rec.Email)
	assert.Equal(t, "10.0.0.1", rec.NetworkAddress)
}

func TestParse_MixedQuotesCloseOnlyOnSameChar(t *testing.T) {
	line := `('u4', "it's,fine", 1, 2, 3, 4, 5, 6, '::1')`

	rec, ok := Parse(line)

	require.True(t, ok)
	assert.Equal(t, "it's,fine", rec.EncodedEmail)
	assert.Equal(t, "::1", rec.NetworkAddress)
}

func TestParse_TrailingCommaAndWhitespace(t *testing.T) {
	line := "   ('u5', 'YQ', 1, 2, 3, 4, 5, 6, '1.1.1.1'),  \n"

	rec, ok := Parse(line)

	require.True(t, ok)
	assert.Equal(t, "u5", rec.ID)
	assert.Equal(t, "a", rec.Email, "missing padding is corrected")
}

func TestParse_NullAndEmptyEmail(t *testing.T) {
	for _, enc := range []string{"NULL", "''", "'null'"} {
		rec, ok := Parse("('u6', " + enc + ", 1, 2, 3, 4, 5, 6, '')")
		require.True(t, ok, enc)
		assert.Equal(t, NotAvailable, rec.Email, enc)
		assert.Equal(t, NotAvailable, rec.NetworkAddress, enc)
	}
}

func TestParse_InvalidUTF8IsDropped(t *testing.T) {
	// "Yf9i" decodes to "a", 0xff, "b"
	rec, ok := Parse("('u7', 'Yf9i', 1, 2, 3, 4, 5, 6, '1.2.3.4')")

	require.True(t, ok)
	assert.Equal(t, "ab", rec.Email)
}

func TestParse_DecodeToNothingKeepsEncoded(t *testing.T) {
	// "/w==" decodes to a lone 0xff byte, which is dropped entirely
	rec, ok := Parse("('u8', '/w==', 1, 2, 3, 4, 5, 6, '1.2.3.4')")

	require.True(t, ok)
	assert.Equal(t, "/w==", rec.Email)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"blank", "   \t "},
		{"not parenthesized", "'u1', 'e', 1, 2, 3, 4, 5, 6, '1.1.1.1'"},
		{"unclosed", "('u1', 'e', 1, 2, 3, 4, 5, 6, '1.1.1.1'"},
		{"too few fields", "('u1', 'e', 1, 2, 3, 4, 5, '1.1.1.1')"},
		{"empty id", "('', 'e', 1, 2, 3, 4, 5, 6, '1.1.1.1')"},
		{"null id", "(NULL, 'e', 1, 2, 3, 4, 5, 6, '1.1.1.1')"},
		{"quoted null id", "('Null', 'e', 1, 2, 3, 4, 5, 6, '1.1.1.1')"},
		{"sql noise", "INSERT INTO users VALUES"},
		{"lone paren", "("},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Parse(tt.line)
			assert.False(t, ok)
		})
	}
}

func TestParse_NeverPanics(t *testing.T) {
	inputs := []string{
		"()", "(),", "(')", `("`, "(,,,,,,,,)", "('a'" + strings.Repeat(",", 20) + ")",
		"(\xff\xfe, 1, 2, 3, 4, 5, 6, 7, 8)",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { Parse(in) }, in)
	}
}

func TestParseWithSource_StampsProvenance(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rec, ok := ParseWithSource("('u9', 'YQ==', 1, 2, 3, 4, 5, 6, '1.2.3.4')", "dump_1.txt", now)
	require.True(t, ok)
	assert.Equal(t, "dump_1.txt", rec.Source)
	assert.Equal(t, now, rec.LoadedAt)

	_, ok = ParseWithSource("garbage", "dump_1.txt", now)
	assert.False(t, ok)
}

func TestFormat_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Record
	}{
		{"plain", Record{ID: "u1", Email: "test@example.com", NetworkAddress: "192.0.2.1"}},
		{"comma in encoded field", Record{ID: "u2", Email: "x,y", EncodedEmail: "x,y", NetworkAddress: "10.0.0.1"}},
		{"apostrophe in id", Record{ID: "o'brien", Email: "ob@example.com", NetworkAddress: NotAvailable}},
		{"no email", Record{ID: "u3", Email: NotAvailable, NetworkAddress: NotAvailable}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(Format(tt.in))
			require.True(t, ok, Format(tt.in))
			assert.Equal(t, tt.in.ID, got.ID)
			assert.Equal(t, tt.in.Email, got.Email)
			assert.Equal(t, tt.in.NetworkAddress, got.NetworkAddress)
		})
	}
}

func TestFormattable(t *testing.T) {
	tests := []struct {
		name string
		in   Record
		want bool
	}{
		{"plain", Record{ID: "u1", Email: "a@b.c", NetworkAddress: "10.0.0.1"}, true},
		{"single quotes only", Record{ID: "o'brien", NetworkAddress: "10.0.0.1"}, true},
		{"double quote inside", Record{ID: `a"b`}, true},
		{"quote at the edge", Record{ID: `say "hi"`}, false},
		{"both quotes in id", Record{ID: `o'brien "ob"`}, false},
		{"both quotes in encoded email", Record{ID: "u2", EncodedEmail: `'x"`}, false},
		{"both quotes in address", Record{ID: "u3", NetworkAddress: `'"`}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Formattable(tt.in))
			if tt.want {
				got, ok := Parse(Format(tt.in))
				require.True(t, ok)
				assert.Equal(t, tt.in.ID, got.ID)
			}
		})
	}
}

func TestRecord_Indexable(t *testing.T) {
	r := Record{Email: NotAvailable, NetworkAddress: "1.2.3.4"}
	assert.False(t, r.HasEmail())
	assert.True(t, r.HasAddress())

	r = Record{Email: "a@b", NetworkAddress: ""}
	assert.True(t, r.HasEmail())
	assert.False(t, r.HasAddress())
}

func BenchmarkParse(b *testing.B) {
	line := `("u1", "dGVzdEBleGFtcGxlLmNvbQ==", 'x','x','x','x','x','x','192.0.2.1'),`
	for b.Loop() {
		_, _ = Parse(line)
	}
}
