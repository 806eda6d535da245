// Package syncd provides a real-time collaborative JSON document server.
//
// Clients connect, name a shared document in a handshake, optionally
// authenticate or resume a session, and then exchange JSON Patch operation
// lists with an authoritative in-memory model of the document.
//
// # Server
//
// Start the server with:
//
//	syncd serve -addr localhost:9125
//
// # Protocol
//
// Every value on the wire is a JSON value. On TCP values are newline
// delimited; on WebSocket each text message carries one value.
//
// The first value a client sends is the handshake:
//
//	{"name": "doc", "start": 0, "sid": "...", "auth": {...}, "consumerId": "..."}
//
// After a successful handshake the server sends, in order:
//
//   - {"sid": "..."} when a new session was minted for the handshake's auth
//   - [patch, version] catching the client up from start to the current version
//   - [patch, version] for every patch applied afterwards, by any client
//
// Every following client value is a JSON Patch applied to the document. A
// patch that cannot be applied is answered with
//
//	{"error": "patch failed", "patch": [...]}
//
// and leaves the document untouched. A failed handshake is answered with a
// single {"error": "...", "cause": "..."} value.
//
// Documents whose name starts with "p-" are personal and require auth.
//
// # Related Packages
//
//   - [api] - wire types
//   - [server] - listeners, connections and the handshake state machine
//   - [model] - document models and patch streams
//   - [registry] - per-name model cache
//   - [session] - session ids for resumable auth
//   - [auth] - authorization gate and authenticators
//   - [kv] - key/value store adapters
//   - [client] - client connections
package syncd
