package entities

import (
	"log/slog"
	"sort"
	"strings"

	"script_ink/script_bazaar/content"
	"script_ink/script_bazaar/schema"

	"github.com/google/uuid"
)

// FromLegacySections converts the flat sections of a script written before
// entities existed into one entity per section.
func FromLegacySections(scriptId uuid.UUID, sections []schema.LegacySection) ([]schema.Entity, error) {
	type parsed struct {
		kind    Kind
		section schema.LegacySection
	}

	items := make([]parsed, 0, len(sections))
	for _, section := range sections {
		kind, known := ParseKind(section.Section)
		if !known {
			slog.Warn("unknown legacy section, materializing as flow node", "script_id", scriptId, "section", section.Section)
		}
		items = append(items, parsed{kind: kind, section: section})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].kind.Rank() != items[j].kind.Rank() {
			return items[i].kind.Rank() < items[j].kind.Rank()
		}
		return items[i].section.Section < items[j].section.Section
	})

	rows := make([]schema.Entity, 0, len(items))
	for i, item := range items {
		doc, err := legacyDocument(item.section.Content)
		if err != nil {
			return nil, err
		}

		rows = append(rows, schema.Entity{
			Id:        uuid.New(),
			ScriptId:  scriptId,
			Kind:      string(item.kind),
			Title:     item.kind.DefaultTitle(),
			Content:   doc,
			Props:     "{}",
			SortOrder: i,
		})
	}

	return rows, nil
}

// Legacy sections hold either a JSON document or plain text.
func legacyDocument(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		if doc, err := content.DecodeString(trimmed); err == nil && doc != nil {
			return content.EncodeString(doc)
		}
	}
	return content.EncodeString(content.FromPlainText(raw))
}
