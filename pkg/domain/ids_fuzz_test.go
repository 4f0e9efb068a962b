package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseAddress checks parsing never panics and accepted input is a
// fixed point of the normalization.
func FuzzParseAddress(f *testing.F) {
	f.Add("")
	f.Add("0x52908400098527886E0F7030069857D2E4169EE7")
	f.Add("'; DROP TABLE properties;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("0xab\x00cd")

	f.Fuzz(func(t *testing.T, input string) {
		addr, err := ParseAddress(input)
		if err != nil {
			return
		}
		again, err := ParseAddress(addr.String())
		if err != nil {
			t.Fatalf("normalized address rejected: %v", err)
		}
		if again != addr {
			t.Fatalf("normalization not idempotent: %q vs %q", addr, again)
		}
		if !utf8.ValidString(input) {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

func FuzzParseTokenID(f *testing.F) {
	f.Add("0")
	f.Add("18446744073709551615")
	f.Add("18446744073709551616")
	f.Add("-1")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseTokenID(input)
		if err != nil {
			return
		}
		again, err := ParseTokenID(id.String())
		if err != nil || again != id {
			t.Fatalf("round trip failed for %q", input)
		}
	})
}
