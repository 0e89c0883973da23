package salesforce

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Lead is the subset of a search result pushed to Salesforce.
type Lead struct {
	Name      string
	SIREN     string
	SIRET     string
	Activity  string
	Address   string
	Headcount string
	URL       string
}

// PushLeads inserts one Lead record per unique SIRET. Registry identifiers
// land in the Description field so the insert works against orgs without
// custom fields. Returns the number of records accepted by Salesforce;
// rejected records are logged, not fatal.
func PushLeads(ctx context.Context, c Client, leads []Lead) (int, error) {
	records := buildLeadRecords(leads)
	if len(records) == 0 {
		return 0, nil
	}

	results, err := c.InsertCollection(ctx, "Lead", records)
	if err != nil {
		return 0, eris.Wrap(err, "sf: push leads")
	}

	created := 0
	for _, r := range results {
		if r.Success {
			created++
			continue
		}
		zap.L().Warn("salesforce rejected lead",
			zap.Strings("errors", r.Errors),
		)
	}
	return created, nil
}

// buildLeadRecords maps leads to Lead sObject fields, deduplicating by SIRET
// and skipping leads without one. Salesforce requires LastName and Company on
// Lead; with no contact person the company name fills both.
func buildLeadRecords(leads []Lead) []map[string]any {
	seen := make(map[string]struct{}, len(leads))
	records := make([]map[string]any, 0, len(leads))
	for _, lead := range leads {
		siret := strings.TrimSpace(lead.SIRET)
		if siret == "" {
			continue
		}
		if _, exists := seen[siret]; exists {
			continue
		}
		seen[siret] = struct{}{}

		record := map[string]any{
			"Company":  lead.Name,
			"LastName": lead.Name,
		}
		if lead.Address != "" {
			record["Street"] = lead.Address
		}
		if lead.URL != "" {
			record["Website"] = lead.URL
		}
		if desc := leadDescription(lead); desc != "" {
			record["Description"] = desc
		}
		records = append(records, record)
	}
	return records
}

func leadDescription(lead Lead) string {
	var lines []string
	if lead.SIREN != "" {
		lines = append(lines, "SIREN : "+lead.SIREN)
	}
	if lead.SIRET != "" {
		lines = append(lines, "SIRET : "+lead.SIRET)
	}
	if lead.Activity != "" {
		lines = append(lines, "Activité : "+lead.Activity)
	}
	if lead.Headcount != "" {
		lines = append(lines, "Effectif : "+lead.Headcount)
	}
	return strings.Join(lines, "\n")
}
