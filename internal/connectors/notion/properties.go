package notion

import (
	"sort"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

// selectFields are normalized field names stored as Notion selects.
var selectFields = map[string]bool{
	"priority":     true,
	"meeting_type": true,
	"status":       true,
}

// toProperties converts normalized fields into Notion page properties.
// Property names in the databases match the normalized names.
func toProperties(fields domain.Fields) notionapi.Properties {
	props := make(notionapi.Properties, len(fields))
	for _, f := range fields {
		// The page URL is server-assigned, never written.
		if f.Name == domain.FieldURL {
			continue
		}
		props[f.Name] = toProperty(f)
	}
	return props
}

func toProperty(f domain.Field) notionapi.Property {
	if f.Name == domain.FieldTitle {
		return notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(stringValue(f.Value)),
		}
	}

	switch v := f.Value.(type) {
	case time.Time:
		d := notionapi.Date(v)
		return notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &d},
		}
	case bool:
		return notionapi.CheckboxProperty{Type: notionapi.PropertyTypeCheckbox, Checkbox: v}
	case int:
		return notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: float64(v)}
	case float64:
		return notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: v}
	case []string:
		opts := make([]notionapi.Option, 0, len(v))
		for _, name := range v {
			opts = append(opts, notionapi.Option{Name: name})
		}
		return notionapi.MultiSelectProperty{Type: notionapi.PropertyTypeMultiSelect, MultiSelect: opts}
	default:
		s := stringValue(f.Value)
		if selectFields[f.Name] {
			return notionapi.SelectProperty{
				Type:   notionapi.PropertyTypeSelect,
				Select: notionapi.Option{Name: s},
			}
		}
		return notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(s),
		}
	}
}

// recordFromPage normalizes a Notion page. Property iteration order is
// not stable, so names are sorted for a deterministic field order.
func recordFromPage(page *notionapi.Page, kind domain.RecordKind) domain.ExternalRecord {
	rec := domain.ExternalRecord{
		RecordID:     string(page.ID),
		Kind:         kind,
		CreatedAt:    page.CreatedTime,
		LastModified: page.LastEditedTime,
		Deleted:      page.Archived,
	}

	names := make([]string, 0, len(page.Properties))
	for name := range page.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field, ok := fromProperty(name, page.Properties[name])
		if !ok {
			continue
		}
		rec.Fields = rec.Fields.Set(field.Name, field.Value)
	}
	if page.URL != "" {
		rec.Fields = rec.Fields.Set(domain.FieldURL, page.URL)
	}
	return rec
}

// fromProperty normalizes one Notion property. Unsupported or empty
// properties are dropped.
func fromProperty(name string, prop notionapi.Property) (domain.Field, bool) {
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		// The title property becomes the title field whatever the
		// database calls it.
		return domain.Field{Name: domain.FieldTitle, Value: plainText(p.Title)}, true
	case *notionapi.RichTextProperty:
		return domain.Field{Name: normalizeName(name), Value: plainText(p.RichText)}, true
	case *notionapi.SelectProperty:
		if p.Select.Name == "" {
			return domain.Field{}, false
		}
		return domain.Field{Name: normalizeName(name), Value: p.Select.Name}, true
	case *notionapi.MultiSelectProperty:
		vals := make([]string, 0, len(p.MultiSelect))
		for _, opt := range p.MultiSelect {
			vals = append(vals, opt.Name)
		}
		return domain.Field{Name: normalizeName(name), Value: vals}, true
	case *notionapi.DateProperty:
		if p.Date == nil || p.Date.Start == nil {
			return domain.Field{}, false
		}
		start := time.Time(*p.Date.Start)
		return domain.Field{Name: normalizeName(name), Value: start.UTC().Format(time.RFC3339)}, true
	case *notionapi.CheckboxProperty:
		return domain.Field{Name: normalizeName(name), Value: p.Checkbox}, true
	case *notionapi.NumberProperty:
		return domain.Field{Name: normalizeName(name), Value: p.Number}, true
	case *notionapi.PeopleProperty:
		if len(p.People) == 0 || p.People[0].Name == "" {
			return domain.Field{}, false
		}
		return domain.Field{Name: normalizeName(name), Value: p.People[0].Name}, true
	}
	return domain.Field{}, false
}

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}

func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
