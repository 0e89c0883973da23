package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Lead is the subset of a search result pushed to a CRM database.
type Lead struct {
	Name      string
	SIREN     string
	SIRET     string
	Activity  string
	Address   string
	Headcount string
	URL       string
}

// PushLeads creates one Notion page per lead in the given database.
// Leads are deduplicated by SIRET and leads without a SIRET are skipped.
// Page creation is paced by the client's rate limiter. Returns the number
// of pages created; on error the count covers the pages created so far.
func PushLeads(ctx context.Context, c Client, dbID string, leads []Lead) (int, error) {
	seen := make(map[string]struct{}, len(leads))
	var unique []Lead
	for _, lead := range leads {
		siret := strings.TrimSpace(lead.SIRET)
		if siret == "" {
			continue
		}
		if _, exists := seen[siret]; exists {
			continue
		}
		seen[siret] = struct{}{}
		unique = append(unique, lead)
	}

	created := 0
	for _, lead := range unique {
		if ctx.Err() != nil {
			return created, eris.Wrap(ctx.Err(), "notion: push leads cancelled")
		}

		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: buildLeadProperties(lead),
		}

		if _, err := c.CreatePage(ctx, req); err != nil {
			return created, eris.Wrap(err, fmt.Sprintf("notion: push lead %s", lead.SIRET))
		}
		created++
	}

	return created, nil
}

// buildLeadProperties converts a lead to Notion page properties. Name becomes
// the title property, URL a url property, everything else rich_text. Empty
// fields are omitted.
func buildLeadProperties(lead Lead) notionapi.Properties {
	props := make(notionapi.Properties)

	props["Name"] = notionapi.TitleProperty{
		Type: notionapi.PropertyTypeTitle,
		Title: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: lead.Name}},
		},
	}

	if lead.URL != "" {
		props["URL"] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  lead.URL,
		}
	}

	for k, v := range map[string]string{
		"SIREN":     lead.SIREN,
		"SIRET":     lead.SIRET,
		"Activity":  lead.Activity,
		"Address":   lead.Address,
		"Headcount": lead.Headcount,
	} {
		if v == "" {
			continue
		}
		props[k] = notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
			},
		}
	}

	return props
}
