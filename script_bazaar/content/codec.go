package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type rawNode struct {
	Type    string                 `json:"type"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
	Content []rawNode              `json:"content,omitempty"`
	Text    *string                `json:"text,omitempty"`
	Marks   []Mark                 `json:"marks,omitempty"`
}

// Decode parses a JSON document. Empty input and JSON null decode to a nil node.
func Decode(data []byte) (Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	// plain strings are accepted as unformatted text
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, fmt.Errorf("invalid content document: %w", err)
		}
		return FromPlainText(text), nil
	}

	var raw rawNode
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("invalid content document: %w", err)
	}

	return fromRaw(raw)
}

func DecodeString(data string) (Node, error) {
	return Decode([]byte(data))
}

func fromRaw(raw rawNode) (Node, error) {
	if raw.Type == "" {
		return nil, fmt.Errorf("invalid content document: node is missing a type")
	}

	if raw.Type == TextType {
		text := ""
		if raw.Text != nil {
			text = *raw.Text
		}
		return &Text{Text: text, Marks: raw.Marks}, nil
	}

	if IsMentionType(raw.Type) {
		attrs := make(map[string]interface{}, len(raw.Attrs))
		id := ""
		for k, v := range raw.Attrs {
			if k == "id" {
				if s, ok := v.(string); ok {
					id = s
					continue
				}
			}
			attrs[k] = v
		}
		if len(attrs) == 0 {
			attrs = nil
		}
		return &Mention{Type: raw.Type, EntityId: id, Attrs: attrs, Marks: raw.Marks}, nil
	}

	var children []Node
	if raw.Content != nil {
		children = make([]Node, 0, len(raw.Content))
		for _, child := range raw.Content {
			node, err := fromRaw(child)
			if err != nil {
				return nil, err
			}
			children = append(children, node)
		}
	}

	return &Container{Type: raw.Type, Attrs: raw.Attrs, Marks: raw.Marks, Children: children}, nil
}

func toRaw(n Node) rawNode {
	switch n := n.(type) {
	case *Text:
		text := n.Text
		return rawNode{Type: TextType, Text: &text, Marks: n.Marks}
	case *Mention:
		attrs := make(map[string]interface{}, len(n.Attrs)+1)
		for k, v := range n.Attrs {
			attrs[k] = v
		}
		if n.EntityId != "" {
			attrs["id"] = n.EntityId
		}
		nodeType := n.Type
		if nodeType == "" {
			nodeType = MentionType
		}
		return rawNode{Type: nodeType, Attrs: attrs, Marks: n.Marks}
	case *Container:
		var children []rawNode
		if n.Children != nil {
			children = make([]rawNode, 0, len(n.Children))
			for _, child := range n.Children {
				if child == nil {
					continue
				}
				children = append(children, toRaw(child))
			}
		}
		return rawNode{Type: n.Type, Attrs: n.Attrs, Marks: n.Marks, Content: children}
	default:
		return rawNode{}
	}
}

// Encode serializes a document. A nil node encodes to an empty byte slice.
func Encode(n Node) ([]byte, error) {
	if n == nil {
		return []byte{}, nil
	}
	data, err := json.Marshal(toRaw(n))
	if err != nil {
		return nil, fmt.Errorf("error encoding content document: %w", err)
	}
	return data, nil
}

func EncodeString(n Node) (string, error) {
	data, err := Encode(n)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromPlainText wraps text in a document with one paragraph per line.
func FromPlainText(text string) Node {
	doc := &Container{Type: DocType, Children: []Node{}}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		paragraph := &Container{Type: ParagraphType}
		if line != "" {
			paragraph.Children = []Node{&Text{Text: line}}
		}
		doc.Children = append(doc.Children, paragraph)
	}
	return doc
}

var blockTypes = map[string]bool{
	ParagraphType: true, "heading": true, "blockquote": true, "listItem": true, "codeBlock": true,
}

// PlainText flattens a document into text. Mentions render as their label
// when present, block nodes are separated by newlines.
func PlainText(n Node) string {
	var sb strings.Builder
	writePlainText(&sb, n)
	return strings.TrimSpace(sb.String())
}

func writePlainText(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Text:
		sb.WriteString(n.Text)
	case *Mention:
		if label, ok := n.Attrs["label"].(string); ok && label != "" {
			sb.WriteString("@" + label)
		} else if n.EntityId != "" {
			sb.WriteString("@" + n.EntityId)
		}
	case *Container:
		for _, child := range n.Children {
			writePlainText(sb, child)
		}
		if blockTypes[n.Type] {
			sb.WriteString("\n")
		}
	}
}
