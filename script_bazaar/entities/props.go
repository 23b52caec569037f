package entities

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	// clue: the id of the role the clue belongs to
	ClueTargetField = "targetId"
	// flow_node: the ids of clues released in the node
	FlowClueIdsField = "clueIds"
)

// Props is the kind specific property bag of an entity. Fields the service
// does not know about are kept as is.
type Props map[string]interface{}

func DecodeProps(data string) (Props, error) {
	if strings.TrimSpace(data) == "" || strings.TrimSpace(data) == "null" {
		return Props{}, nil
	}
	var props Props
	if err := json.Unmarshal([]byte(data), &props); err != nil {
		return nil, fmt.Errorf("invalid entity props: %w", err)
	}
	if props == nil {
		props = Props{}
	}
	return props, nil
}

func (p Props) Encode() (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("error encoding entity props: %w", err)
	}
	return string(data), nil
}

// References returns the entity ids the props of an entity of the given kind point at.
func References(kind Kind, props Props) []string {
	refs := make([]string, 0)
	switch kind {
	case Clue:
		if target, ok := props[ClueTargetField].(string); ok && target != "" {
			refs = append(refs, target)
		}
	case FlowNode:
		if ids, ok := props[FlowClueIdsField].([]interface{}); ok {
			for _, id := range ids {
				if s, ok := id.(string); ok && s != "" {
					refs = append(refs, s)
				}
			}
		}
	}
	return refs
}

// RemapProps deep copies props, rewriting the reference fields of the kind
// through mapping. Ids missing from mapping are copied unchanged.
func RemapProps(kind Kind, props Props, mapping map[string]string) Props {
	out := make(Props, len(props))
	for k, v := range props {
		out[k] = cloneValue(v)
	}

	switch kind {
	case Clue:
		if target, ok := out[ClueTargetField].(string); ok {
			if mapped, ok := mapping[target]; ok {
				out[ClueTargetField] = mapped
			}
		}
	case FlowNode:
		if ids, ok := out[FlowClueIdsField].([]interface{}); ok {
			for i, id := range ids {
				if s, ok := id.(string); ok {
					if mapped, ok := mapping[s]; ok {
						ids[i] = mapped
					}
				}
			}
		}
	}

	return out
}

// ValidateProps checks the shape of the reference fields and that every
// referenced id is one of known.
func ValidateProps(kind Kind, props Props, known mapset.Set[string]) error {
	switch kind {
	case Clue:
		if target, ok := props[ClueTargetField]; ok && target != nil {
			if _, ok := target.(string); !ok {
				return fmt.Errorf("%v must be a string", ClueTargetField)
			}
		}
	case FlowNode:
		if ids, ok := props[FlowClueIdsField]; ok && ids != nil {
			list, ok := ids.([]interface{})
			if !ok {
				return fmt.Errorf("%v must be a list of ids", FlowClueIdsField)
			}
			for _, id := range list {
				if _, ok := id.(string); !ok {
					return fmt.Errorf("%v must be a list of ids", FlowClueIdsField)
				}
			}
		}
	}

	missing := mapset.NewSet(References(kind, props)...).Difference(known).ToSlice()
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("props reference entities that are not part of the script: %v", strings.Join(missing, ", "))
	}

	return nil
}

func cloneValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = cloneValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i := range v {
			out[i] = cloneValue(v[i])
		}
		return out
	default:
		return v
	}
}

// DropReference removes id from the reference fields of the kind. Reports
// whether anything changed.
func DropReference(kind Kind, props Props, id string) (Props, bool) {
	out := RemapProps(kind, props, nil)
	changed := false

	switch kind {
	case Clue:
		if target, ok := out[ClueTargetField].(string); ok && target == id {
			delete(out, ClueTargetField)
			changed = true
		}
	case FlowNode:
		if ids, ok := out[FlowClueIdsField].([]interface{}); ok {
			kept := make([]interface{}, 0, len(ids))
			for _, v := range ids {
				if s, ok := v.(string); ok && s == id {
					changed = true
					continue
				}
				kept = append(kept, v)
			}
			out[FlowClueIdsField] = kept
		}
	}

	return out, changed
}
