// Package server accepts document sync connections over TCP and WebSocket.
//
// Each connection is bootstrapped from its handshake (session, auth, store,
// model) and then exchanges JSON patches with the document's model.
//
// # Related Packages
//
//   - github.com/signadot/docsync/system/syncd/api - wire types
//   - github.com/signadot/docsync/system/syncd/model - document models
//   - github.com/signadot/docsync/system/syncd/registry - model cache
package server
