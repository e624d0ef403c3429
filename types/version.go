package types

// Version is the canonical project version.
// The CLI, the wire protocol and the recording layout share this version.
const Version = "1.0.0"

// ProtocolVersion identifies the byte layout of every wire message.
// Consumers rely on positional field access, so any layout change bumps it.
const ProtocolVersion = 1
