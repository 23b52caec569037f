package entities

import (
	"strings"
)

type Kind string

const (
	Truth    Kind = "truth"
	Role     Kind = "role"
	Clue     Kind = "clue"
	FlowNode Kind = "flow_node"
)

var Kinds = []Kind{Truth, Role, Clue, FlowNode}

var kindAliases = map[string]Kind{
	"truth":      Truth,
	"truths":     Truth,
	"answer":     Truth,
	"role":       Role,
	"roles":      Role,
	"character":  Role,
	"characters": Role,
	"clue":       Clue,
	"clues":      Clue,
	"evidence":   Clue,
	"flow_node":  FlowNode,
	"flow_nodes": FlowNode,
	"flownode":   FlowNode,
	"flow":       FlowNode,
	"flows":      FlowNode,
	"node":       FlowNode,
	"phase":      FlowNode,
	"timeline":   FlowNode,
}

// ParseKind maps a stored, client supplied, or legacy section name onto one of
// the four entity kinds. Values it does not recognize map to FlowNode with
// known set to false so callers can report the fallback.
func ParseKind(value string) (kind Kind, known bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	if kind, ok := kindAliases[normalized]; ok {
		return kind, true
	}
	return FlowNode, false
}

func (k Kind) Valid() bool {
	switch k {
	case Truth, Role, Clue, FlowNode:
		return true
	default:
		return false
	}
}

// Rank orders kinds the way a script reads: truth, roles, clues, then flow.
func (k Kind) Rank() int {
	switch k {
	case Truth:
		return 0
	case Role:
		return 1
	case Clue:
		return 2
	default:
		return 3
	}
}

func (k Kind) DefaultTitle() string {
	switch k {
	case Truth:
		return "Truth"
	case Role:
		return "Role"
	case Clue:
		return "Clue"
	default:
		return "Flow Node"
	}
}
