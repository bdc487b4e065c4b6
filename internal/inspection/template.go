// Package inspection provides the core data structures for field
// inspection reports: templates, reports, and responses.
//
// These types are shared by the local cache, the conflict resolver,
// and the session controller. They are deliberately flat so that each
// field can be persisted and merged independently with last-write-wins
// semantics.
package inspection

import (
	"fmt"
)

// TemplateItem is one question/field definition within a template section.
type TemplateItem struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	ItemType   string `json:"item_type"` // text, choice, measurement, photo, signature
	IsRequired bool   `json:"is_required,omitempty"`

	// PhotoRule controls whether photos are expected for this item:
	// "" (none), "optional", "required".
	PhotoRule string `json:"photo_rule,omitempty"`

	// Conditional visibility: the item is shown only when the referenced
	// field's value satisfies the operator. Evaluated by the UI layer;
	// carried here so cached templates stay self-contained.
	ConditionFieldID   string `json:"condition_field_id,omitempty"`
	ConditionOperator  string `json:"condition_operator,omitempty"` // equals, not_equals, contains
	ConditionValue     string `json:"condition_value,omitempty"`
}

// Section groups template items for sectioned navigation.
type Section struct {
	Title string         `json:"title"`
	Items []TemplateItem `json:"items"`
}

// Template is the authoritative structure an inspection answers.
// Authoring lives outside this engine; templates arrive fully formed
// from the template service.
type Template struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Sections []Section `json:"sections"`
}

// Validate checks that the template is usable for a session.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if len(t.Sections) == 0 {
		return fmt.Errorf("template %s has no sections", t.ID)
	}
	seen := make(map[string]bool)
	for _, sec := range t.Sections {
		for _, item := range sec.Items {
			if item.ID == "" {
				return fmt.Errorf("template %s contains an item without an id", t.ID)
			}
			if seen[item.ID] {
				return fmt.Errorf("template %s contains duplicate item id %s", t.ID, item.ID)
			}
			seen[item.ID] = true
		}
	}
	return nil
}

// Items returns all template items across sections, in section order.
func (t *Template) Items() []TemplateItem {
	var items []TemplateItem
	for _, sec := range t.Sections {
		items = append(items, sec.Items...)
	}
	return items
}

// Item looks up a template item by id.
func (t *Template) Item(itemID string) (TemplateItem, bool) {
	for _, sec := range t.Sections {
		for _, item := range sec.Items {
			if item.ID == itemID {
				return item, true
			}
		}
	}
	return TemplateItem{}, false
}

// SectionCount returns the number of sections.
func (t *Template) SectionCount() int {
	return len(t.Sections)
}
