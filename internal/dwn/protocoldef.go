package dwn

import (
	"context"
	"fmt"

	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/messagestore"
)

// loadProtocolDefinition finds the installed ProtocolsConfigure for
// protocolName and decodes its definition. The definition is indexed
// directly as a live value (see protocols_configure.go's PERSIST step),
// the same "store the decoded struct in Indexes" convention
// internal/grant uses for scope/conditions, so no CBOR re-decode is
// needed here.
func (h *Handlers) loadProtocolDefinition(ctx context.Context, tenant, protocolName string) (*dwnmodel.ProtocolDefinition, error) {
	filters := []dwnmodel.FilterSet{{
		IndexInterface: dwnmodel.ClauseValue{Equals: dwnmodel.InterfaceProtocols},
		IndexMethod:    dwnmodel.ClauseValue{Equals: dwnmodel.MethodConfigure},
		"protocol":     dwnmodel.ClauseValue{Equals: protocolName},
	}}
	results, _, err := h.deps.MessageStore.Query(ctx, tenant, filters, messagestore.QueryOptions{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("dwn: loading protocol definition %s: %w", protocolName, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("dwn: no protocol definition installed for %s", protocolName)
	}
	var def dwnmodel.ProtocolDefinition
	if err := reshape(results[0].Indexes[IndexProtocolDefinition], &def); err != nil {
		return nil, fmt.Errorf("dwn: decoding protocol definition %s: %w", protocolName, err)
	}
	return &def, nil
}

// collectRoleLabels walks a protocol definition's structure tree and
// returns the full protocolPath of every node tagged $role, root first.
// Empty when the protocol declares no role nodes, letting
// loadRoleGrants skip a MessageStore scan entirely for the common case.
func collectRoleLabels(def *dwnmodel.ProtocolDefinition) []string {
	var labels []string
	var walk func(prefix string, nodes map[string]dwnmodel.StructureNode)
	walk = func(prefix string, nodes map[string]dwnmodel.StructureNode) {
		for label, node := range nodes {
			path := label
			if prefix != "" {
				path = prefix + "/" + label
			}
			if node.Role {
				labels = append(labels, path)
			}
			if len(node.Children) > 0 {
				walk(path, node.Children)
			}
		}
	}
	walk("", def.Structure)
	return labels
}
