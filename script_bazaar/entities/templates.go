package entities

import (
	_ "embed"
	"fmt"
	"sync"

	"script_ink/script_bazaar/content"
	"script_ink/script_bazaar/schema"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultTemplatesYaml []byte

type Template struct {
	Kind  string                 `yaml:"kind"`
	Title string                 `yaml:"title"`
	Text  string                 `yaml:"text"`
	Props map[string]interface{} `yaml:"props"`
}

type templateFile struct {
	Entities []Template `yaml:"entities"`
}

func ParseTemplates(data []byte) ([]Template, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing entity templates: %w", err)
	}
	for i, tmpl := range file.Entities {
		if _, known := ParseKind(tmpl.Kind); !known {
			return nil, fmt.Errorf("entity template %d has unknown kind '%v'", i, tmpl.Kind)
		}
	}
	return file.Entities, nil
}

var loadDefaults = sync.OnceValues(func() ([]Template, error) {
	return ParseTemplates(defaultTemplatesYaml)
})

func DefaultTemplates() ([]Template, error) {
	return loadDefaults()
}

// FromTemplates builds new entity rows for scriptId from templates.
func FromTemplates(scriptId uuid.UUID, templates []Template) ([]schema.Entity, error) {
	rows := make([]schema.Entity, 0, len(templates))
	for i, tmpl := range templates {
		kind, _ := ParseKind(tmpl.Kind)

		title := tmpl.Title
		if title == "" {
			title = kind.DefaultTitle()
		}

		doc, err := content.EncodeString(content.FromPlainText(tmpl.Text))
		if err != nil {
			return nil, err
		}

		props, err := Props(tmpl.Props).Encode()
		if err != nil {
			return nil, err
		}

		rows = append(rows, schema.Entity{
			Id:        uuid.New(),
			ScriptId:  scriptId,
			Kind:      string(kind),
			Title:     title,
			Content:   doc,
			Props:     props,
			SortOrder: i,
		})
	}
	return rows, nil
}
