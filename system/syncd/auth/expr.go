package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprAuthenticator accepts payloads for which a boolean expression holds.
// The decoded payload is bound to the variable auth, for example:
//
//	auth.network in ["github", "google"] && auth.profile != ""
type ExprAuthenticator struct {
	source  string
	program *vm.Program
}

// NewExprAuthenticator compiles source. Compilation errors are returned
// here so that a bad policy is caught at startup.
func NewExprAuthenticator(source string) (*ExprAuthenticator, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidAuthenticator)
	}
	prg, err := expr.Compile(source, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAuthenticator, err)
	}
	return &ExprAuthenticator{source: source, program: prg}, nil
}

func (a *ExprAuthenticator) Authenticate(_ context.Context, auth json.RawMessage) error {
	var payload any
	if err := json.Unmarshal(auth, &payload); err != nil {
		return deny("undecodable payload: %v", err)
	}
	res, err := expr.Run(a.program, map[string]any{"auth": payload})
	if err != nil {
		return deny("policy error: %v", err)
	}
	ok, isBool := res.(bool)
	if !isBool || !ok {
		return deny("policy %q not satisfied", a.source)
	}
	return nil
}
