// Package grant implements the permission-grant authorizer of spec §4.8:
// a pure evaluation of an already-loaded grant against the action it is
// invoked to cover, plus the MessageStore-backed loading (GrantLoader) and
// optional Redis-accelerated revocation lookup that feed it.
package grant

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/dwnd/internal/dwnmodel"
)

var (
	// ErrGrantNotFound is returned when no stored grant matches the
	// permissionsGrantId a message carries, spec §4.8 step 1.
	ErrGrantNotFound = errors.New("grant: not found")

	// ErrGrantIdentityMismatch is returned when grantedBy/grantedTo/
	// grantedFor do not match the tenant and author, spec §4.8 step 2.
	ErrGrantIdentityMismatch = errors.New("grant: identity mismatch")

	// ErrGrantExpired is returned when the grant's dateExpires has
	// passed, spec §4.8 step 3.
	ErrGrantExpired = errors.New("grant: expired")

	// ErrGrantRevoked is returned when a matching PermissionsRevoke
	// exists, spec §4.8 step 3.
	ErrGrantRevoked = errors.New("grant: revoked")

	// ErrGrantMismatch covers every scope/condition failure of spec
	// §4.8 steps 4, 6, 7, 8 — the single `GrantMismatch` kind of the
	// error taxonomy in spec §7.
	ErrGrantMismatch = errors.New("grant: scope or conditions do not authorize this action")
)

// Record is a loaded PermissionsGrant, the fields spec §4.8 evaluates.
type Record struct {
	GrantID     string
	GrantedBy   string
	GrantedTo   string
	GrantedFor  string
	DateExpires time.Time
	Scope       dwnmodel.GrantScope
	Conditions  dwnmodel.Conditions
}

// TargetScope is the record-scoped fields spec §4.8 step 6 checks. For
// RecordsWrite it is the incoming descriptor's own fields; for
// RecordsRead/Delete it is the target record's current RecordsWrite,
// resolved via the reconciler's view per step 5.
type TargetScope struct {
	Protocol     string
	ContextID    string
	ProtocolPath string
	Schema       string
}

// Input is everything Authorize needs to evaluate one invocation of a
// grant. It carries no storage handle: GrantLoader is responsible for
// populating Grant and Revoked before Authorize runs, keeping Authorize a
// pure function over loaded data per spec §9/§5.
type Input struct {
	Now    time.Time
	Tenant string
	Author string

	Interface string
	Method    string

	Grant   *Record
	Revoked bool

	// Target is the record-scoped fields of step 6; nil for Query/
	// Subscribe, which are scoped by FilterProtocol (step 8) instead.
	Target *TargetScope

	// FilterProtocol is the protocol named by an invoking RecordsQuery/
	// RecordsSubscribe filter, used only when Target is nil.
	FilterProtocol string

	// Published is set only for RecordsWrite: the incoming message's own
	// published value, evaluated against Conditions.Publication in step
	// 7. nil for every other method.
	Published *bool
}

// Authorize evaluates a loaded grant against in, per spec §4.8.
func Authorize(in Input) error {
	if in.Grant == nil {
		return ErrGrantNotFound
	}
	g := in.Grant

	if g.GrantedBy != in.Tenant || g.GrantedTo != in.Author || g.GrantedFor != in.Tenant {
		return fmt.Errorf("%w: grantedBy=%q grantedTo=%q grantedFor=%q for tenant=%q author=%q",
			ErrGrantIdentityMismatch, g.GrantedBy, g.GrantedTo, g.GrantedFor, in.Tenant, in.Author)
	}

	if in.Now.After(g.DateExpires) {
		return fmt.Errorf("%w: dateExpires=%s now=%s", ErrGrantExpired,
			dwnmodel.FormatTimestamp(g.DateExpires), dwnmodel.FormatTimestamp(in.Now))
	}
	if in.Revoked {
		return fmt.Errorf("%w: grantId=%q", ErrGrantRevoked, g.GrantID)
	}

	if g.Scope.Interface != in.Interface || g.Scope.Method != in.Method {
		return fmt.Errorf("%w: scope is %s.%s, invoked as %s.%s", ErrGrantMismatch,
			g.Scope.Interface, g.Scope.Method, in.Interface, in.Method)
	}

	if err := checkTargetScope(g.Scope, in.Target, in.FilterProtocol); err != nil {
		return err
	}

	if in.Published != nil {
		if err := checkPublicationCondition(g.Conditions, *in.Published); err != nil {
			return err
		}
	}

	return nil
}

// checkTargetScope implements spec §4.8 steps 6 and 8.
func checkTargetScope(scope dwnmodel.GrantScope, target *TargetScope, filterProtocol string) error {
	if target == nil {
		// Query/Subscribe: only the invoking filter's protocol is checked,
		// step 8.
		if scope.Protocol != "" && scope.Protocol != filterProtocol {
			return fmt.Errorf("%w: grant scoped to protocol %q, filter named %q", ErrGrantMismatch, scope.Protocol, filterProtocol)
		}
		return nil
	}

	if target.Protocol != "" {
		if scope.Protocol != target.Protocol {
			return fmt.Errorf("%w: grant scoped to protocol %q, record's protocol is %q", ErrGrantMismatch, scope.Protocol, target.Protocol)
		}
		if scope.ContextID != "" && !strings.HasPrefix(target.ContextID, scope.ContextID) {
			return fmt.Errorf("%w: record contextId %q does not start with grant's %q", ErrGrantMismatch, target.ContextID, scope.ContextID)
		}
		if scope.ProtocolPath != "" && scope.ProtocolPath != target.ProtocolPath {
			return fmt.Errorf("%w: grant scoped to protocolPath %q, record's is %q", ErrGrantMismatch, scope.ProtocolPath, target.ProtocolPath)
		}
		return nil
	}

	// Non-protocol target: schema, if the grant names one, must match.
	if scope.Schema != "" && scope.Schema != target.Schema {
		return fmt.Errorf("%w: grant scoped to schema %q, record's is %q", ErrGrantMismatch, scope.Schema, target.Schema)
	}
	return nil
}

// checkPublicationCondition implements spec §4.8 step 7.
func checkPublicationCondition(c dwnmodel.Conditions, published bool) error {
	switch c.Publication {
	case dwnmodel.PublicationRequired:
		if !published {
			return fmt.Errorf("%w: grant requires publication, write is unpublished", ErrGrantMismatch)
		}
	case dwnmodel.PublicationProhibited:
		if published {
			return fmt.Errorf("%w: grant prohibits publication, write is published", ErrGrantMismatch)
		}
	}
	return nil
}
