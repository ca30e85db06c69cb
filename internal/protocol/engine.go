// Package protocol implements the protocol rule engine of spec §4.7: path
// resolution against an installed protocol definition, schema/dataFormat
// validation, and who/of/can action-rule evaluation — including the
// who:role predicate supplement of spec §3.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/onnwee/dwnd/internal/dwnmodel"
)

var (
	// ErrActionNotAllowed is returned when no installed rule admits the
	// requested action for the requesting author.
	ErrActionNotAllowed = errors.New("protocol: action not allowed")

	// ErrRecipientPathTooLong is returned when a rule's `of` path is
	// longer than the ancestor chain actually supplied.
	ErrRecipientPathTooLong = errors.New("protocol: rule's of-path exceeds the ancestor chain")

	// ErrSchemaMismatch is returned when the target record's schema or
	// dataFormat does not match the protocol type definition for its
	// leaf label, or a rule's of-path does not resolve to a real node.
	ErrSchemaMismatch = errors.New("protocol: schema or dataFormat mismatch")
)

// AncestorRecord is one record in the root-first ancestor chain of the
// record being authorized.
type AncestorRecord struct {
	ProtocolPath string // slash-joined path from root, e.g. "thread/reply"
	Author       string
	Recipient    string
}

// RoleRecord is a RecordsWrite under a protocol node tagged `$role: true`,
// granting its Recipient that role.
type RoleRecord struct {
	RoleLabel string // the $role node's full protocolPath
	Recipient string
}

// EvaluationInput is everything the engine needs to authorize one action
// against one target record. The engine is a pure function over this
// input — it never queries storage itself; internal/dwn gathers Ancestors
// and RoleGrants before calling Evaluate.
type EvaluationInput struct {
	Definition   *dwnmodel.ProtocolDefinition
	ProtocolPath string
	Schema       string
	DataFormat   string
	Action       dwnmodel.Can
	Author       string
	TenantDID    string
	Ancestors    []AncestorRecord
	RoleGrants   []RoleRecord
}

// Evaluate authorizes Action for Author against the target node named by
// ProtocolPath, per spec §4.7.
func Evaluate(in EvaluationInput) error {
	if in.Author == in.TenantDID {
		return nil
	}

	node, leaf, err := resolveNode(in.Definition, in.ProtocolPath)
	if err != nil {
		return err
	}

	if err := validateType(in.Definition, leaf, in.Schema, in.DataFormat); err != nil {
		return err
	}

	for _, rule := range node.Actions {
		if rule.Can != in.Action {
			continue
		}
		ok, err := evaluateRule(rule, in)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	return ErrActionNotAllowed
}

func resolveNode(def *dwnmodel.ProtocolDefinition, path string) (*dwnmodel.StructureNode, string, error) {
	if def == nil {
		return nil, "", fmt.Errorf("%w: no protocol definition installed", ErrActionNotAllowed)
	}
	segments := strings.Split(path, "/")
	children := def.Structure
	var node dwnmodel.StructureNode
	var leaf string
	for i, seg := range segments {
		n, ok := children[seg]
		if !ok {
			return nil, "", fmt.Errorf("%w: path segment %q has no protocol node", ErrSchemaMismatch, seg)
		}
		node = n
		leaf = seg
		if i < len(segments)-1 {
			children = n.Children
		}
	}
	return &node, leaf, nil
}

func validateType(def *dwnmodel.ProtocolDefinition, leaf, schema, dataFormat string) error {
	t, ok := def.Types[leaf]
	if !ok {
		return nil
	}
	if t.Schema != "" && t.Schema != schema {
		return fmt.Errorf("%w: expected schema %q, got %q", ErrSchemaMismatch, t.Schema, schema)
	}
	if len(t.DataFormats) > 0 && !contains(t.DataFormats, dataFormat) {
		return fmt.Errorf("%w: dataFormat %q not permitted for %q", ErrSchemaMismatch, dataFormat, leaf)
	}
	return nil
}

func evaluateRule(rule dwnmodel.ActionRule, in EvaluationInput) (bool, error) {
	switch rule.Who {
	case dwnmodel.WhoAnyone:
		return true, nil
	case dwnmodel.WhoAuthor:
		ancestor, err := resolveAncestor(rule.Of, in.Ancestors)
		if err != nil {
			return false, err
		}
		return ancestor.Author == in.Author, nil
	case dwnmodel.WhoRecipient:
		ancestor, err := resolveAncestor(rule.Of, in.Ancestors)
		if err != nil {
			return false, err
		}
		return ancestor.Recipient == in.Author, nil
	case dwnmodel.WhoRole:
		for _, grant := range in.RoleGrants {
			if grant.RoleLabel == rule.Of && grant.Recipient == in.Author {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: unrecognized who predicate %q", ErrActionNotAllowed, rule.Who)
	}
}

func resolveAncestor(of string, ancestors []AncestorRecord) (*AncestorRecord, error) {
	ofDepth := len(strings.Split(of, "/"))
	if ofDepth > len(ancestors) {
		return nil, fmt.Errorf("%w: of-path %q needs depth %d, chain has %d", ErrRecipientPathTooLong, of, ofDepth, len(ancestors))
	}
	for _, a := range ancestors {
		if a.ProtocolPath == of {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("%w: no ancestor labeled %q in chain", ErrSchemaMismatch, of)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
