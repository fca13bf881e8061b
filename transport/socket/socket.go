// Package socket implements the pub/sub and duplex transport Transceivers,
// Producers, and Receivers use to exchange framed messages. There is no
// messaging-broker dependency anywhere in the example corpus this module was
// grounded on, so the wire layer here is a small hand-rolled protocol:
// length-prefixed frames (frame.go) over plain net.Conn for tcp:// addresses,
// or in-memory channels (inproc.go) for inproc:// addresses, with two
// connection shapes layered on top of either:
//
//   - Backend / Frontend: a PUB/SUB pair. A Backend binds and broadcasts each
//     published frame to every connected Frontend; a Frontend connects and
//     receives. Matches spec.md's unidirectional wiring rule.
//   - Dealer: a persistent duplex connection used on both ends when a worker
//     is configured Bidirectional, matching spec.md's DEALER-both-ends rule.
//
// Addresses are "tcp://host:port" or "inproc://name" (a bare "host:port"
// with no scheme is treated as tcp, for brevity). inproc is the same-process
// test-wiring extension spec.md §6 permits ("other transports MAY be
// supported if the implementation's transport does").
//
// Every socket honors the same high-water-mark and linger settings the
// original online monitor uses (spec.md §6): HWM of 10 queued frames per
// connection with drop-on-full, and a 500ms Linger grace that a
// Transceiver's Stop waits between closing its frontends and its backends.
package socket

import (
	"strings"
	"time"
)

// HWM is the maximum number of frames buffered per connection before new
// frames are dropped (I3-style backpressure; no CPU-based shedding is ever
// used).
const HWM = 10

// Linger is the grace period a Transceiver's Stop waits after closing its
// frontends and before closing its backends. The Close methods in this
// package do not use it.
const Linger = 500 * time.Millisecond

// dialRetryInterval is how often Connect/DealerConnect retry a failed dial
// (the backend side may not have bound yet when a frontend starts).
const dialRetryInterval = 100 * time.Millisecond

// splitScheme separates an endpoint address's scheme from its remainder.
// Addresses with no "scheme://" prefix are treated as plain tcp host:port,
// so existing "host:port" configuration keeps working unchanged.
func splitScheme(addr string) (scheme, rest string) {
	if i := strings.Index(addr, "://"); i >= 0 {
		return addr[:i], addr[i+3:]
	}
	return "tcp", addr
}
