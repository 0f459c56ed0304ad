// Package wsconn implements the per-connection WebSocket state machine:
// fragment reassembly, ping/pong, the close handshake, and a single
// serialized writer so outgoing frames are never interleaved.
package wsconn

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/timhq/tim-agent-core/internal/wsframe"
)

// State is one of the four states a Conn passes through.
type State int32

const (
	StateUpgrading State = iota
	StateOpen
	StateClosing
	StateClosed
)

// Conn is one accepted WebSocket peer: an agent process.
type Conn struct {
	ID string

	raw    net.Conn
	reader *bufio.Reader

	onMessage    func(text string)
	onDisconnect func()

	state      atomic.Int32
	disconnect sync.Once

	writeMu sync.Mutex

	fragmenting bool
	fragOpcode  wsframe.Opcode
	fragBuf     []byte
}

// New builds a Conn for an already-accepted socket. leftover is the tail
// of bytes the HTTP parser read past the header boundary — the read loop
// drains it before touching raw.
func New(id string, raw net.Conn, leftover []byte, onMessage func(string), onDisconnect func()) *Conn {
	c := &Conn{
		ID:           id,
		raw:          raw,
		onMessage:    onMessage,
		onDisconnect: onDisconnect,
	}
	c.reader = bufio.NewReader(io.MultiReader(bytes.NewReader(leftover), raw))
	c.state.Store(int32(StateUpgrading))
	return c
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

// MarkOpen transitions Upgrading -> Open once the 101 response has
// flushed.
func (c *Conn) MarkOpen() { c.state.CompareAndSwap(int32(StateUpgrading), int32(StateOpen)) }

// SendText enqueues one text frame. Writes are serialized per connection
// so outgoing bytes from concurrent callers are never interleaved.
func (c *Conn) SendText(s string) error {
	if c.State() == StateClosed {
		return net.ErrClosed
	}
	return c.writeFrame(wsframe.OpText, []byte(s))
}

func (c *Conn) writeFrame(op wsframe.Opcode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsframe.WriteFrame(c.raw, op, payload)
}

// ReadLoop drains frames until the connection closes, for any reason.
// It never returns until the connection is done, and always fires
// onDisconnect exactly once before returning.
func (c *Conn) ReadLoop() {
	defer c.fireDisconnect()
	for {
		frame, err := wsframe.ReadFrame(c.reader)
		if err != nil {
			if ce, ok := err.(*wsframe.CloseError); ok {
				c.closeWithCode(ce.Code, ce.Reason)
			} else {
				c.shutdown()
			}
			return
		}

		switch frame.Opcode {
		case wsframe.OpText:
			if frame.Fin {
				if c.fragmenting {
					c.closeWithCode(wsframe.CloseProtocolError, "data frame during fragmented message")
					return
				}
				if err := wsframe.ValidateUTF8(frame.Payload); err != nil {
					c.closeWithCode(err.(*wsframe.CloseError).Code, "")
					return
				}
				c.deliver(string(frame.Payload))
				continue
			}
			if c.fragmenting {
				c.closeWithCode(wsframe.CloseProtocolError, "data frame during fragmented message")
				return
			}
			c.fragmenting = true
			c.fragOpcode = frame.Opcode
			c.fragBuf = append([]byte(nil), frame.Payload...)

		case wsframe.OpContinuation:
			if !c.fragmenting {
				c.closeWithCode(wsframe.CloseProtocolError, "continuation without fragmented message")
				return
			}
			if len(c.fragBuf)+len(frame.Payload) > wsframe.MaxPayload {
				c.closeWithCode(wsframe.CloseMessageTooBig, "")
				return
			}
			c.fragBuf = append(c.fragBuf, frame.Payload...)
			if frame.Fin {
				if err := wsframe.ValidateUTF8(c.fragBuf); err != nil {
					c.closeWithCode(err.(*wsframe.CloseError).Code, "")
					return
				}
				msg := string(c.fragBuf)
				c.fragmenting = false
				c.fragBuf = nil
				c.deliver(msg)
			}

		case wsframe.OpPing:
			if err := c.writeFrame(wsframe.OpPong, frame.Payload); err != nil {
				c.shutdown()
				return
			}

		case wsframe.OpPong:
			// no-op

		case wsframe.OpClose:
			_, _, err := wsframe.ParseClosePayload(frame.Payload)
			if err != nil {
				ce := err.(*wsframe.CloseError)
				c.closeWithCode(ce.Code, "")
				return
			}
			c.writeFrame(wsframe.OpClose, frame.Payload) // echo verbatim
			c.shutdown()
			return
		}
	}
}

func (c *Conn) deliver(text string) {
	if c.onMessage != nil {
		c.onMessage(text)
	}
}

// Close performs a locally-initiated close handshake: send a close frame,
// then tear down the socket.
func (c *Conn) Close() {
	c.closeWithCode(wsframe.CloseNormal, "")
}

func (c *Conn) closeWithCode(code int, reason string) {
	c.state.Store(int32(StateClosing))
	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)
	c.writeFrame(wsframe.OpClose, payload)
	c.shutdown()
}

func (c *Conn) shutdown() {
	c.state.Store(int32(StateClosed))
	c.raw.Close()
	c.fireDisconnect()
}

// fireDisconnect guarantees onDisconnect runs exactly once regardless of
// which path (peer close, EOF, codec error, Close(), startup failure)
// triggered teardown.
func (c *Conn) fireDisconnect() {
	c.disconnect.Do(func() {
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
	})
}
