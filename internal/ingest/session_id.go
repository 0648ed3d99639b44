package ingest

// minSessionIDLength rejects ids too short to be real session identifiers.
// The platform issues ids well above this; anything shorter is a client bug.
const minSessionIDLength = 5

// InvalidSessionIDCode is the diagnostic reason returned with a 400 when a
// session id fails validation. The split between null_string and
// undefined_string exists because mobile clients have historically serialized
// absent values as those literal strings.
type InvalidSessionIDCode string

const (
	CodeMissing         InvalidSessionIDCode = "missing"
	CodeNullString      InvalidSessionIDCode = "null_string"
	CodeUndefinedString InvalidSessionIDCode = "undefined_string"
	CodeEmptyString     InvalidSessionIDCode = "empty_string"
	CodeTooShort        InvalidSessionIDCode = "too_short"
)

// validateSessionID checks the session id invariant: present, non-empty, not
// a stringified null/undefined, and at least minSessionIDLength characters.
// Ids are opaque and case-sensitive beyond that.
func validateSessionID(id *string) (InvalidSessionIDCode, bool) {
	if id == nil {
		return CodeMissing, false
	}
	switch *id {
	case "":
		return CodeEmptyString, false
	case "null":
		return CodeNullString, false
	case "undefined":
		return CodeUndefinedString, false
	}
	if len(*id) < minSessionIDLength {
		return CodeTooShort, false
	}
	return "", true
}
