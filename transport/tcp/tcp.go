// Package tcp is a minimal, length-implicit encoding/gob transport over
// net.Conn: one persistent outbound connection per peer, one accept loop
// for inbound connections. It deliberately has no framing cleverness, no
// TLS, and no retry/backoff — the "trivial by comparison" layer the core
// package's design notes call for, not a production RPC stack.
package tcp

import (
	"encoding/gob"
	"net"
	"sync"

	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/mcprohosting/raft/logutil"
	"github.com/mcprohosting/raft/raft"
)

func init() {
	// gob needs every concrete type that can arrive boxed in Packet.Data
	// registered up front.
	gob.Register(raft.HeartbeatPayload{})
	gob.Register(raft.VoteRequest{})
	gob.Register(raft.VoteResponse{})
}

// Transport dials one connection per peer lazily, on first send, and
// keeps it open for reuse. It satisfies raft.Outbound.
type Transport struct {
	mu    sync.Mutex
	addrs map[string]string // peer name -> "host:port"
	conns map[string]net.Conn
	encs  map[string]*gob.Encoder

	inbound raft.Inbound
	ln      net.Listener
}

// New returns a Transport that dials peers found in addrs and delivers
// anything it accepts to inbound.
func New(addrs map[string]string, inbound raft.Inbound) *Transport {
	cp := make(map[string]string, len(addrs))
	for k, v := range addrs {
		cp[k] = v
	}
	return &Transport{
		addrs:   cp,
		conns:   make(map[string]net.Conn),
		encs:    make(map[string]*gob.Encoder),
		inbound: inbound,
	}
}

// Listen opens an accept loop on addr, serving inbound connections until
// Close is called. It returns once the listener is bound; the accept
// loop itself runs on a background goroutine.
func (t *Transport) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Annotatef(err, "tcp transport: listen on %s", addr)
	}
	t.mu.Lock()
	t.ln = ln
	t.mu.Unlock()

	go t.acceptLoop(ln)
	return nil
}

func (t *Transport) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return // listener closed
		}
		go t.serve(conn)
	}
}

func (t *Transport) serve(conn net.Conn) {
	defer conn.Close()
	dec := gob.NewDecoder(conn)
	for {
		var p raft.Packet
		if err := dec.Decode(&p); err != nil {
			logutil.L().Debug("tcp transport: connection closed", zap.Error(err))
			return
		}
		t.inbound.Read(p)
	}
}

// Send implements raft.Outbound: it dials to (once, lazily reused
// thereafter) and gob-encodes p onto that connection. A dial or encode
// failure drops the cached connection and reports false, matching a
// real transport's "peer unreachable" outcome; the caller never blocks
// on a retry.
func (t *Transport) Send(to string, p raft.Packet) bool {
	enc, err := t.encoderFor(to)
	if err != nil {
		logutil.L().Warn("tcp transport: send failed", zap.String("to", to), zap.Error(err))
		return false
	}
	if err := enc.Encode(p); err != nil {
		logutil.L().Warn("tcp transport: encode failed", zap.String("to", to), zap.Error(err))
		t.dropLocked(to)
		return false
	}
	return true
}

func (t *Transport) encoderFor(to string) (*gob.Encoder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if enc, ok := t.encs[to]; ok {
		return enc, nil
	}
	addr, ok := t.addrs[to]
	if !ok {
		return nil, errors.Errorf("tcp transport: no address for peer %q", to)
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "tcp transport: dial %s (%s)", to, addr)
	}
	enc := gob.NewEncoder(conn)
	t.conns[to] = conn
	t.encs[to] = enc
	return enc, nil
}

func (t *Transport) dropLocked(to string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn, ok := t.conns[to]; ok {
		conn.Close()
	}
	delete(t.conns, to)
	delete(t.encs, to)
}

// Close shuts down the listener and every outbound connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln != nil {
		_ = t.ln.Close()
	}
	for name, conn := range t.conns {
		_ = conn.Close()
		delete(t.conns, name)
		delete(t.encs, name)
	}
	return nil
}
