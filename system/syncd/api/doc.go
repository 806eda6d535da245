// Package api provides the wire types of the syncd protocol.
//
// Inbound, a connection carries one [Handshake] followed by JSON Patch
// values. Outbound, it carries [Message] values, each holding exactly one of
// an [Update], a [SessionAnnouncement], an [ErrorValue] or a [PatchFailure].
package api
