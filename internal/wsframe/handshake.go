// Package wsframe implements RFC 6455 WebSocket framing from scratch: no
// framework, just the wire format and the handshake accept-key math. It is
// deliberately low-level — internal/wsconn builds the per-connection state
// machine (fragmentation, ping/pong, close handshake) on top of it.
package wsframe

import (
	"crypto/sha1"
	"encoding/base64"
)

// magic is the GUID RFC 6455 §1.3 appends to the client's Sec-WebSocket-Key
// before hashing.
const magic = "258EAFA5-E914-47DA-95CA-5AB5F7FC6835"

// AcceptKey computes the Sec-WebSocket-Accept header value for a given
// Sec-WebSocket-Key: base64(sha1(key ++ magic)).
func AcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(magic))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
