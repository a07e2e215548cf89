package scraper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uitrack/distributor-tracker/internal/metrics"
	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// Scanner iterates every known combination and accumulates normalized
// records. All throughput state lives on the stack of one ScanAll call,
// so concurrent runs never share counters.
type Scanner struct {
	source  tracker.SourceClient
	limiter *rate.Limiter
	clock   tracker.Clock
	logger  *zap.Logger
}

// NewScanner builds a Scanner. The limiter paces requests against the
// source; sequential pacing, not parallelism, is the contract here.
func NewScanner(source tracker.SourceClient, limiter *rate.Limiter, clock tracker.Clock, logger *zap.Logger) *Scanner {
	return &Scanner{
		source:  source,
		limiter: limiter,
		clock:   clock,
		logger:  logger,
	}
}

// ScanAll fetches every (region, country) pair in discovery order and
// returns the deduplicated record batch plus throughput stats. Single
// combination failures are logged and skipped; only cancellation aborts
// the scan.
func (s *Scanner) ScanAll(ctx context.Context, mapping tracker.Mapping) ([]tracker.Record, tracker.ScanStats, error) {
	start := time.Now()
	stats := tracker.ScanStats{Combinations: mapping.Total()}
	scrapedAt := s.clock.Now()

	var all []tracker.Record
	for _, region := range mapping.Regions() {
		regionRecords := 0
		for _, country := range mapping[region] {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, stats, fmt.Errorf("scan canceled: %w", err)
			}

			stats.Requests++
			payload, declared, err := s.source.FetchListings(ctx, region, country)
			if err != nil {
				if ctx.Err() != nil {
					return nil, stats, fmt.Errorf("scan canceled: %w", ctx.Err())
				}
				stats.FailedFetches++
				metrics.ObserveScrapeRequest(region, "error")
				s.logger.Warn("combination fetch failed",
					zap.String("region", region), zap.String("country", country), zap.Error(err))
				continue
			}
			metrics.ObserveScrapeRequest(region, "ok")

			records := s.parsePayload(payload, declared, region, country, scrapedAt, &stats)
			regionRecords += len(records)
			all = append(all, records...)
		}
		if regionRecords > 0 {
			metrics.AddScrapeRecords(region, regionRecords)
			s.logger.Info("region scanned",
				zap.String("region", region), zap.Int("records", regionRecords))
		}
	}

	unique, duplicates := Deduplicate(all, s.logger)
	stats.DuplicatesCut = duplicates
	stats.Records = len(unique)
	stats.Elapsed = time.Since(start)
	if secs := stats.Elapsed.Seconds(); secs > 0 {
		stats.RecordsPerSec = float64(stats.Records) / secs
		if stats.Requests > 0 {
			stats.AvgRequestTime = secs / float64(stats.Requests)
		}
	}

	s.logger.Info("scan completed",
		zap.Duration("elapsed", stats.Elapsed),
		zap.Int("requests", stats.Requests),
		zap.Int("records", stats.Records),
		zap.Int("failed_fetches", stats.FailedFetches),
		zap.Float64("records_per_second", stats.RecordsPerSec))
	return unique, stats, nil
}

// parsePayload normalizes both record categories of one response and
// cross-checks the declared counts. A mismatch is a data-quality warning,
// not a failure: the records actually returned are still used.
func (s *Scanner) parsePayload(
	payload *tracker.SourcePayload,
	declared tracker.FetchStats,
	region, country string,
	scrapedAt time.Time,
	stats *tracker.ScanStats,
) []tracker.Record {
	if declared.ResellersCount != len(payload.Resellers) ||
		declared.MasterResellersCount != len(payload.MasterResellers) {
		stats.CountMismatch++
		metrics.ObserveCountMismatch()
		s.logger.Warn("declared counts disagree with returned lists",
			zap.String("region", region),
			zap.String("country", country),
			zap.Int("declared_resellers", declared.ResellersCount),
			zap.Int("actual_resellers", len(payload.Resellers)),
			zap.Int("declared_masters", declared.MasterResellersCount),
			zap.Int("actual_masters", len(payload.MasterResellers)))
	}

	var records []tracker.Record
	for _, raw := range payload.Resellers {
		if rec := Normalize(raw, tracker.PartnerSimple, region, country, scrapedAt); rec != nil {
			records = append(records, *rec)
		}
	}
	for _, raw := range payload.MasterResellers {
		if rec := Normalize(raw, tracker.PartnerMaster, region, country, scrapedAt); rec != nil {
			records = append(records, *rec)
		}
	}
	return records
}
