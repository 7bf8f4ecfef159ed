package workspace

import (
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/tasks"
	"github.com/jomei/notionapi"
)

// PageRequest builds the page-create payload for r. Only mapped properties
// are included.
func PageRequest(r tasks.Record, databaseID string, m FieldMapping) notionapi.PageCreateRequest {
	return notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: PageProperties(r, m),
	}
}

// PageProperties maps r onto the properties named by m.
func PageProperties(r tasks.Record, m FieldMapping) notionapi.Properties {
	props := notionapi.Properties{}

	if m.TaskName != "" {
		props[m.TaskName] = notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: r.Description}},
			},
		}
	}
	if m.Priority != "" && r.Criticality != "" {
		props[m.Priority] = selectProperty(r.Criticality)
	}
	if m.DueDate != "" {
		if due, ok := r.Due(); ok {
			start := notionapi.Date(time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC))
			props[m.DueDate] = notionapi.DateProperty{
				Type: notionapi.PropertyTypeDate,
				Date: &notionapi.DateObject{Start: &start},
			}
		}
	}
	if m.Category != "" && r.Category != "" {
		props[m.Category] = selectProperty(r.Category)
	}
	if m.Status != "" && m.StatusOption != "" {
		props[m.Status] = selectProperty(m.StatusOption)
	}
	return props
}

func selectProperty(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{
		Type:   notionapi.PropertyTypeSelect,
		Select: notionapi.Option{Name: name},
	}
}
