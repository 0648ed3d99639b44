package signaling

// Message types peers exchange. The relay forwards anything that parses,
// including custom types; these names exist for logging and for clients.
const (
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
)

// envelope is the minimal structure the relay reads out of an inbound
// message before forwarding the raw bytes verbatim. No schema enforcement
// beyond "parses as JSON": payloads stay opaque.
type envelope struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
}
