// Package mapping discovers and manages the (region, country/state)
// combinations the source accepts.
package mapping

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// metadataPatterns locate the embedded regions blob. The site has moved
// the assignment around between releases, so several shapes are tried.
var metadataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)var\s+mainRegionsData\s*=\s*(\[.*?\]);`),
	regexp.MustCompile(`(?s)window\.mainRegionsData\s*=\s*(\[.*?\]);`),
	regexp.MustCompile(`(?s)mainRegionsData\s*[:=]\s*(\[.*?\])`),
}

var (
	singleQuoted  = regexp.MustCompile(`'([^']*)'`)
	bareKey       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// metadataRegion matches the blob's abbreviated field names.
type metadataRegion struct {
	Code      string `json:"s"`
	Countries []struct {
		Code string `json:"s"`
	} `json:"i"`
}

// DiscovererConfig bounds the live-probe fallbacks.
type DiscovererConfig struct {
	// ProbeCountryCap caps accepted countries per region during
	// exploratory discovery.
	ProbeCountryCap int
	// ValidateCap caps probed countries per region when validating
	// form-control combinations.
	ValidateCap int
}

// Discoverer produces the authoritative mapping via a chain of
// strategies: embedded metadata, form controls, then exploratory probing.
type Discoverer struct {
	source  tracker.SourceClient
	limiter *rate.Limiter
	cfg     DiscovererConfig
	logger  *zap.Logger
}

// NewDiscoverer builds a Discoverer. The limiter paces every live probe.
func NewDiscoverer(source tracker.SourceClient, limiter *rate.Limiter, cfg DiscovererConfig, logger *zap.Logger) *Discoverer {
	if cfg.ProbeCountryCap <= 0 {
		cfg.ProbeCountryCap = 50
	}
	if cfg.ValidateCap <= 0 {
		cfg.ValidateCap = 10
	}
	return &Discoverer{
		source:  source,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Discover tries every strategy in order and returns the first
// non-empty mapping. Strategy failures are logged and swallowed; an
// empty result means total discovery failure and is the caller's call.
func (d *Discoverer) Discover(ctx context.Context) tracker.Mapping {
	html, err := d.source.FetchPage(ctx)
	if err != nil {
		d.logger.Warn("discovery page fetch failed", zap.Error(err))
	}

	if html != "" {
		if m := d.ExtractFromMetadata(html); len(m) > 0 {
			d.logger.Info("mappings extracted from embedded metadata",
				zap.Int("regions", len(m)), zap.Int("combinations", m.Total()))
			return m
		}
		if m := d.ExtractFromFormControls(ctx, html); len(m) > 0 {
			d.logger.Info("mappings extracted from form controls",
				zap.Int("regions", len(m)), zap.Int("combinations", m.Total()))
			return m
		}
	}

	m := d.ExploratoryDiscovery(ctx)
	if len(m) > 0 {
		d.logger.Info("mappings found by exploratory discovery",
			zap.Int("regions", len(m)), zap.Int("combinations", m.Total()))
	}
	return m
}

// ExtractFromMetadata parses the embedded regions blob. The blob is a
// relaxed JavaScript literal (single quotes, unquoted keys, trailing
// commas), so it is sanitized into strict JSON before structural
// parsing. Returns nil on any failure so callers can fall through.
func (d *Discoverer) ExtractFromMetadata(html string) tracker.Mapping {
	for _, pattern := range metadataPatterns {
		match := pattern.FindStringSubmatch(html)
		if match == nil {
			continue
		}

		blob := singleQuoted.ReplaceAllString(match[1], `"$1"`)
		blob = bareKey.ReplaceAllString(blob, `$1"$2":`)
		blob = trailingComma.ReplaceAllString(blob, "$1")

		var regions []metadataRegion
		if err := json.Unmarshal([]byte(blob), &regions); err != nil {
			d.logger.Debug("metadata blob did not parse", zap.Error(err))
			continue
		}

		m := tracker.Mapping{}
		for _, region := range regions {
			if region.Code == "" {
				continue
			}
			var countries []string
			for _, c := range region.Countries {
				if c.Code != "" {
					countries = append(countries, c.Code)
				}
			}
			if len(countries) > 0 {
				sort.Strings(countries)
				m[region.Code] = countries
			}
		}
		if len(m) > 0 {
			return m
		}
	}
	return nil
}

// ExtractFromFormControls reads candidate values from the region and
// country selection controls, then keeps only combinations a live probe
// confirms return data. An option's presence does not guarantee the
// combination answers with records.
func (d *Discoverer) ExtractFromFormControls(ctx context.Context, html string) tracker.Mapping {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		d.logger.Debug("discovery page did not parse", zap.Error(err))
		return nil
	}

	regions := selectValues(doc, "region")
	countries := selectValues(doc, "country_state")
	if len(regions) == 0 || len(countries) == 0 {
		return nil
	}
	d.logger.Info("form controls found",
		zap.Int("regions", len(regions)), zap.Int("countries", len(countries)))

	m := tracker.Mapping{}
	for _, region := range regions {
		var valid []string
		probed := 0
		for _, country := range countries {
			if probed >= d.cfg.ValidateCap {
				break
			}
			probed++
			if d.probe(ctx, region, country) {
				valid = append(valid, country)
			}
		}
		if len(valid) > 0 {
			sort.Strings(valid)
			m[region] = valid
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// ExploratoryDiscovery crosses the fixed region list with the candidate
// country catalog and probes each pair, capping accepted countries per
// region to bound total requests.
func (d *Discoverer) ExploratoryDiscovery(ctx context.Context) tracker.Mapping {
	d.logger.Info("using exploratory discovery")

	m := tracker.Mapping{}
	for _, region := range knownRegions {
		var valid []string
		// The catalog mixes ISO and subnational codes, so the same code
		// can appear more than once. Probe each code once per region.
		tried := map[string]struct{}{}
		for _, country := range candidateCountries {
			if len(valid) >= d.cfg.ProbeCountryCap {
				break
			}
			if ctx.Err() != nil {
				return m
			}
			if _, ok := tried[country]; ok {
				continue
			}
			tried[country] = struct{}{}
			if d.probe(ctx, region, country) {
				valid = append(valid, country)
			}
		}
		if len(valid) > 0 {
			sort.Strings(valid)
			m[region] = valid
			d.logger.Info("region probed",
				zap.String("region", region), zap.Int("countries", len(valid)))
		}
	}
	return m
}

// probe reports whether a combination returns at least one listing.
// Every probe failure is treated as "no data".
func (d *Discoverer) probe(ctx context.Context, region, country string) bool {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return false
		}
	}
	payload, _, err := d.source.FetchListings(ctx, region, country)
	if err != nil {
		d.logger.Debug("probe failed",
			zap.String("region", region), zap.String("country", country), zap.Error(err))
		return false
	}
	return len(payload.Resellers)+len(payload.MasterResellers) > 0
}

func selectValues(doc *goquery.Document, name string) []string {
	sel := doc.Find("select[name=" + name + "]")
	if sel.Length() == 0 {
		sel = doc.Find("select#" + name)
	}
	var values []string
	sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
		if v, ok := opt.Attr("value"); ok && v != "" {
			values = append(values, v)
		}
	})
	return values
}
