// Package signaling contains the WebSocket relay that exchanges
// peer-connection negotiation messages (offer/answer/ICE) between an
// examiner's desktop view and a candidate's secondary-camera device.
//
// The relay is intentionally minimal: best-effort delivery, no persistence,
// no acknowledgements, no ordering guarantee beyond each connection's own
// send order. Malformed messages are dropped silently by contract.
package signaling
