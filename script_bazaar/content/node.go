// Package content models the rich-content documents stored on script entities.
//
// A document is a tree of nodes. Every node is exactly one of Text, Mention, or
// Container. Mentions are the only nodes that reference other entities by id.
package content

type Node interface {
	node()
}

type Mark struct {
	Type  string                 `json:"type"`
	Attrs map[string]interface{} `json:"attrs,omitempty"`
}

type Text struct {
	Text  string
	Marks []Mark
}

// Mention points at another entity (a role or a clue) of the same script.
type Mention struct {
	Type     string
	EntityId string
	// Attrs holds every attribute other than the entity id, e.g. label and kind.
	Attrs map[string]interface{}
	Marks []Mark
}

type Container struct {
	Type     string
	Attrs    map[string]interface{}
	Marks    []Mark
	Children []Node
}

func (*Text) node()      {}
func (*Mention) node()   {}
func (*Container) node() {}

const (
	DocType       = "doc"
	ParagraphType = "paragraph"
	TextType      = "text"
	MentionType   = "mention"
)

var mentionTypes = map[string]bool{
	MentionType:     true,
	"entityMention": true,
}

func IsMentionType(nodeType string) bool {
	return mentionTypes[nodeType]
}

// Walk visits n and its descendants in document order. Returning false from
// visit skips the children of the visited node.
func Walk(n Node, visit func(Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	if c, ok := n.(*Container); ok {
		for _, child := range c.Children {
			Walk(child, visit)
		}
	}
}

// Mentions returns the entity ids referenced by mention nodes, in document order.
func Mentions(n Node) []string {
	ids := make([]string, 0)
	Walk(n, func(n Node) bool {
		if m, ok := n.(*Mention); ok && m.EntityId != "" {
			ids = append(ids, m.EntityId)
		}
		return true
	})
	return ids
}

// Remap returns a deep copy of n in which every mention whose entity id is a key
// of mapping points at the mapped id. Other mentions are copied unchanged.
func Remap(n Node, mapping map[string]string) Node {
	switch n := n.(type) {
	case nil:
		return nil
	case *Text:
		return &Text{Text: n.Text, Marks: cloneMarks(n.Marks)}
	case *Mention:
		id := n.EntityId
		if mapped, ok := mapping[id]; ok {
			id = mapped
		}
		return &Mention{Type: n.Type, EntityId: id, Attrs: cloneAttrs(n.Attrs), Marks: cloneMarks(n.Marks)}
	case *Container:
		var children []Node
		if n.Children != nil {
			children = make([]Node, 0, len(n.Children))
			for _, child := range n.Children {
				children = append(children, Remap(child, mapping))
			}
		}
		return &Container{Type: n.Type, Attrs: cloneAttrs(n.Attrs), Marks: cloneMarks(n.Marks), Children: children}
	default:
		return n
	}
}

func Clone(n Node) Node {
	return Remap(n, nil)
}

func cloneMarks(marks []Mark) []Mark {
	if marks == nil {
		return nil
	}
	out := make([]Mark, 0, len(marks))
	for _, mark := range marks {
		out = append(out, Mark{Type: mark.Type, Attrs: cloneAttrs(mark.Attrs)})
	}
	return out
}

func cloneAttrs(attrs map[string]interface{}) map[string]interface{} {
	if attrs == nil {
		return nil
	}
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		return cloneAttrs(v)
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
