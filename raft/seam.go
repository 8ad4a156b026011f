package raft

// Outbound is the sink a Node hands every outbound Packet to. It is the
// seam a transport attaches to; the core never dials, frames, or
// encrypts (SPEC_FULL.md §1). Send returns whether the packet was
// admitted to the transport, not whether it was delivered.
type Outbound interface {
	Send(to string, p Packet) bool
}

// Inbound is satisfied by anything that can ingest a decoded Packet. Node
// implements it directly through Read, so transports can depend on this
// narrower interface instead of the full Node type.
type Inbound interface {
	Read(p Packet) bool
}
