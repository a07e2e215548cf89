// Package scraper pulls raw listings for every known combination and
// shapes them into normalized records.
package scraper

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// Normalize maps one raw listing to the normalized record shape.
// Records without a usable name or address are dropped (nil). Bad
// optional fields are nulled, never fatal for the record.
func Normalize(raw tracker.RawListing, partnerType tracker.PartnerType, region, country string, scrapedAt time.Time) *tracker.Record {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return nil
	}
	address := strings.TrimSpace(raw.Address)
	if address == "" {
		return nil
	}

	rec := &tracker.Record{
		Name:         name,
		PartnerType:  partnerType,
		WebsiteURL:   strings.TrimSpace(raw.URL),
		Address:      address,
		Phone:        strings.TrimSpace(raw.Phone),
		Email:        sanitizeEmail(raw.Email),
		Latitude:     parseCoord(raw.Latitude.String(), 90),
		Longitude:    parseCoord(raw.Longitude.String(), 180),
		Region:       region,
		CountryState: country,
		SourceID:     raw.ID,
		OrderWeight:  raw.Order,
		LogoURL:      strings.TrimSpace(raw.Logo),
		SunMaxMember: raw.SunMax,
		DataSource:   tracker.SourceJSONAPI,
		ScrapedAt:    scrapedAt,
	}

	if raw.LastModified != "" {
		if ts, err := time.Parse(time.RFC3339, strings.Replace(raw.LastModified, "Z", "+00:00", 1)); err == nil {
			utc := ts.UTC()
			rec.LastModified = &utc
		}
	}

	return rec
}

// sanitizeEmail strips the mailto: prefix and discards values that are
// actually URLs, a known upstream data-quality defect.
func sanitizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if strings.HasPrefix(email, "mailto:") {
		return strings.TrimPrefix(email, "mailto:")
	}
	if strings.HasPrefix(email, "http") {
		return ""
	}
	return email
}

// parseCoord validates a coordinate string; non-numeric or out-of-range
// values become nil.
func parseCoord(raw string, bound float64) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	if v < -bound || v > bound {
		return nil
	}
	return &v
}

// Deduplicate keeps one record per identity key, preserving first-seen
// order. The same physical distributor can come back under more than one
// (region, country) query.
func Deduplicate(records []tracker.Record, logger *zap.Logger) ([]tracker.Record, int) {
	if len(records) == 0 {
		return nil, 0
	}

	seen := make(map[string]struct{}, len(records))
	unique := make([]tracker.Record, 0, len(records))
	duplicates := 0

	for _, rec := range records {
		key := rec.IdentityKey()
		if _, ok := seen[key]; ok {
			duplicates++
			logger.Debug("duplicate record dropped",
				zap.String("name", rec.Name), zap.String("key", key))
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, rec)
	}

	if duplicates > 0 {
		logger.Info("deduplication removed records",
			zap.Int("duplicates", duplicates), zap.Int("unique", len(unique)))
	}
	return unique, duplicates
}
