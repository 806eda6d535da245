package server

import (
	"log/slog"

	"github.com/signadot/docsync/system/syncd/auth"
	"github.com/signadot/docsync/system/syncd/kv"
)

// Spec holds the runtime specification for the server.
// Config contains the serializable settings loaded from a file; the other
// fields override what Config would build.
type Spec struct {
	Config *Config
	Log    *slog.Logger

	// MakeStore builds the store of a document. Defaults to the store
	// configured in Config.
	MakeStore kv.Factory
	// SessionStore holds session records. Defaults to
	// MakeStore(kv.SessionStoreName) unless Config names one.
	SessionStore kv.Store
	// Authenticator verifies auth payloads. Defaults to the one configured
	// in Config.
	Authenticator auth.Authenticator
}
