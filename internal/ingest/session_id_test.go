package ingest

import "testing"

func TestValidateSessionID(t *testing.T) {
	str := func(s string) *string { return &s }

	cases := []struct {
		name string
		id   *string
		code InvalidSessionIDCode
		ok   bool
	}{
		{"missing", nil, CodeMissing, false},
		{"empty", str(""), CodeEmptyString, false},
		{"literal null", str("null"), CodeNullString, false},
		{"literal undefined", str("undefined"), CodeUndefinedString, false},
		{"too short", str("ab"), CodeTooShort, false},
		{"minimum length", str("abcde"), "", true},
		{"typical id", str("session-8f3a1b2c"), "", true},
		{"case sensitive, not the null literal", str("NULL-SESSION"), "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, ok := validateSessionID(tc.id)
			if ok != tc.ok {
				t.Fatalf("ok=%v, want %v", ok, tc.ok)
			}
			if code != tc.code {
				t.Fatalf("code=%q, want %q", code, tc.code)
			}
		})
	}
}
