package syncer

import (
	"fmt"
	"strings"
	"time"

	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// Display names used for the partner-type and status selects.
const (
	labelMaster   = "Master Distributor"
	labelReseller = "Authorized Reseller"
	labelActive   = "Active"
	labelInactive = "Inactive"
)

// regionLabels maps internal region codes onto the workspace's select
// options. Unknown codes fall back to the uppercased code.
var regionLabels = map[string]string{
	"usa": "USA", "eur": "EUR", "as": "AS", "af": "AF",
	"can": "CAN", "lat-a": "LAT-A", "mid-e": "MID-E", "aus-nzl": "AUS-NZL",
}

func titleProp(s string) map[string]any {
	return map[string]any{"title": []any{map[string]any{"text": map[string]any{"content": s}}}}
}

func richTextProp(s string) map[string]any {
	return map[string]any{"rich_text": []any{map[string]any{"text": map[string]any{"content": s}}}}
}

func selectProp(name string) map[string]any {
	return map[string]any{"select": map[string]any{"name": name}}
}

func dateProp(t time.Time) map[string]any {
	return map[string]any{"date": map[string]any{"start": t.Format(time.RFC3339)}}
}

func numberProp(n any) map[string]any {
	return map[string]any{"number": n}
}

func urlProp(s string) map[string]any {
	return map[string]any{"url": s}
}

func checkboxProp(b bool) map[string]any {
	return map[string]any{"checkbox": b}
}

// buildProperties renders a distributor into the workspace's property
// schema. Required selects and titles are always present; optional
// fields are omitted rather than written empty so re-syncs don't erase
// manually curated values.
func buildProperties(d *tracker.Distributor, now time.Time) map[string]any {
	partnerLabel := labelReseller
	if d.PartnerType == tracker.PartnerMaster {
		partnerLabel = labelMaster
	}
	statusLabel := labelInactive
	if d.Active {
		statusLabel = labelActive
	}
	sourceLabel := "HTML Legacy"
	syncLabel := "Synced"
	if d.DataSource == tracker.SourceJSONAPI {
		sourceLabel = "JSON API"
		syncLabel = "JSON Updated"
	}

	props := map[string]any{
		"Company Name": titleProp(d.OrganizationName),
		"Partner Type": selectProp(partnerLabel),
		"Address":      richTextProp(d.Address),
		"Status":       selectProp(statusLabel),
		"Data Source":  selectProp(sourceLabel),
		"Sync Status":  selectProp(syncLabel),
		"Last Updated": dateProp(now),
		"Database ID":  numberProp(d.ID),
	}

	if d.SourceID != nil {
		props["unifi_id"] = numberProp(*d.SourceID)
	}
	if d.LastModified != nil {
		props["last_modified_at"] = dateProp(*d.LastModified)
	}
	if d.OrderWeight != nil {
		props["order_weight"] = numberProp(*d.OrderWeight)
	}
	if d.LogoURL != "" {
		props["logo_url"] = urlProp(d.LogoURL)
	}
	if d.SunMaxMember != nil {
		props["sunmax_partner"] = checkboxProp(*d.SunMaxMember)
	}
	if d.ScrapedAt != nil {
		props["Last Verified"] = dateProp(*d.ScrapedAt)
	}
	if d.WebsiteURL != "" {
		props["Website"] = urlProp(d.WebsiteURL)
	}
	if d.Phone != "" {
		props["Phone"] = map[string]any{"phone_number": d.Phone}
	}
	if d.Email != "" {
		props["Contact Email"] = map[string]any{"email": d.Email}
	}
	if d.Region != "" {
		label, ok := regionLabels[strings.ToLower(d.Region)]
		if !ok {
			label = strings.ToUpper(d.Region)
		}
		props["Region"] = selectProp(label)
	}
	if d.CountryState != "" {
		props["Country/State"] = selectProp(d.CountryState)
	}
	if d.Latitude != nil && d.Longitude != nil {
		props["Coordinates"] = richTextProp(fmt.Sprintf("%v, %v",
			tracker.FormatCoord(d.Latitude), tracker.FormatCoord(d.Longitude)))
	}
	if !d.CreatedAt.IsZero() {
		props["First Discovered"] = dateProp(d.CreatedAt)
	}
	return props
}

// sourceIDFilter matches pages by the source-assigned numeric id.
func sourceIDFilter(sourceID int64) map[string]any {
	return map[string]any{
		"property": "unifi_id",
		"number":   map[string]any{"equals": sourceID},
	}
}

// nameAddressFilter is the last-resort match on the title and address
// pair.
func nameAddressFilter(name, address string) map[string]any {
	return map[string]any{
		"and": []any{
			map[string]any{
				"property": "Company Name",
				"title":    map[string]any{"equals": name},
			},
			map[string]any{
				"property":  "Address",
				"rich_text": map[string]any{"equals": address},
			},
		},
	}
}
