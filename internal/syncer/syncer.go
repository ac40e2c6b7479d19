// Package syncer deduplicates a run's postings and reconciles them with the store.
package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
	"github.com/JakeFAU/gamejobs-crawler/internal/linknorm"
	"github.com/JakeFAU/gamejobs-crawler/internal/metrics"
)

const (
	defaultBatchSize      = 50
	defaultRetentionDays  = 30
	defaultExistingWindow = 1000
)

// Config tunes the synchronizer.
type Config struct {
	BatchSize      int
	RetentionDays  int
	ExistingWindow int
}

// Report counts what one Sync call did.
type Report struct {
	Submitted          int      `json:"submitted"`
	InternalDuplicates int      `json:"internal_duplicates"`
	Discarded          int      `json:"discarded"`
	Existing           int      `json:"existing"`
	New                int      `json:"new"`
	Upserted           int      `json:"upserted"`
	BatchFailures      int      `json:"batch_failures"`
	ItemFailures       int      `json:"item_failures"`
	Deactivated        int      `json:"deactivated"`
	Purged             int      `json:"purged"`
	Errors             []string `json:"errors,omitempty"`
}

func (r *Report) addError(step string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", step, err))
}

// Synchronizer writes postings to a Store and cleans up stale rows.
type Synchronizer struct {
	store  ingest.Store
	cfg    Config
	today  func() ingest.Date
	logger *zap.Logger
}

// New builds a Synchronizer. today supplies the calendar day cleanup compares
// deadlines against. Zero config values fall back to defaults.
func New(store ingest.Store, cfg Config, today func() ingest.Date, logger *zap.Logger) *Synchronizer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	if cfg.ExistingWindow <= 0 {
		cfg.ExistingWindow = defaultExistingWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{store: store, cfg: cfg, today: today, logger: logger.Named("sync")}
}

// Dedup drops postings whose normalized link or identity key was already
// seen. The first occurrence wins. Postings with an empty link are discarded
// and counted apart from duplicates.
func Dedup(postings []ingest.Posting) (out []ingest.Posting, duplicates, discarded int) {
	out = make([]ingest.Posting, 0, len(postings))
	links := make(map[string]struct{}, len(postings))
	keys := make(map[string]struct{}, len(postings))
	for _, p := range postings {
		p.Link = linknorm.Normalize(p.Link)
		if p.Link == "" {
			discarded++
			continue
		}
		key := p.IdentityKey()
		_, seenLink := links[p.Link]
		_, seenKey := keys[key]
		if seenLink || seenKey {
			duplicates++
			continue
		}
		links[p.Link] = struct{}{}
		keys[key] = struct{}{}
		out = append(out, p)
	}
	return out, duplicates, discarded
}

// Sync deduplicates postings, upserts them in batches and runs cleanup. Store
// failures are recorded in the report; the only error returned is the
// context's.
func (s *Synchronizer) Sync(ctx context.Context, postings []ingest.Posting) (Report, error) {
	unique, duplicates, discarded := Dedup(postings)
	report := Report{Submitted: len(unique), InternalDuplicates: duplicates, Discarded: discarded}
	s.logger.Info("Deduplicated postings",
		zap.Int("received", len(postings)),
		zap.Int("unique", len(unique)),
		zap.Int("internal_duplicates", duplicates),
		zap.Int("discarded", discarded),
	)

	s.compareExisting(ctx, unique, &report)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if len(unique) > 0 {
		s.upsert(ctx, unique, &report)
	} else {
		s.logger.Info("No postings to upsert")
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	s.cleanup(ctx, s.today(), &report)
	metrics.ObserveSync("upserted", report.Upserted)
	metrics.ObserveSync("failed", report.ItemFailures)
	metrics.ObserveSync("duplicate", report.InternalDuplicates)
	metrics.ObserveSync("deactivated", report.Deactivated)
	metrics.ObserveSync("purged", report.Purged)

	s.logger.Info("Sync finished",
		zap.Int("submitted", report.Submitted),
		zap.Int("upserted", report.Upserted),
		zap.Int("new", report.New),
		zap.Int("existing", report.Existing),
		zap.Int("batch_failures", report.BatchFailures),
		zap.Int("item_failures", report.ItemFailures),
		zap.Int("deactivated", report.Deactivated),
		zap.Int("purged", report.Purged),
	)
	return report, ctx.Err()
}

// compareExisting only feeds diagnostics; the upsert is idempotent either way.
func (s *Synchronizer) compareExisting(ctx context.Context, unique []ingest.Posting, report *Report) {
	existing, err := s.store.ExistingLinks(ctx, s.cfg.ExistingWindow)
	if err != nil {
		s.logger.Warn("Failed to list existing links", zap.Error(err))
		report.addError("existing", err)
		report.New = len(unique)
		return
	}
	known := make(map[string]struct{}, len(existing))
	for _, link := range existing {
		if link = linknorm.Normalize(link); link != "" {
			known[link] = struct{}{}
		}
	}
	for _, p := range unique {
		if _, ok := known[p.Link]; ok {
			report.Existing++
		} else {
			report.New++
		}
	}
	s.logger.Info("Compared with store", zap.Int("stored", len(known)), zap.Int("new", report.New))
}

func (s *Synchronizer) upsert(ctx context.Context, unique []ingest.Posting, report *Report) {
	size := s.cfg.BatchSize
	for start := 0; start < len(unique); start += size {
		if ctx.Err() != nil {
			return
		}
		end := min(start+size, len(unique))
		batch := unique[start:end]
		err := s.store.Upsert(ctx, batch)
		if err == nil {
			report.Upserted += len(batch)
			s.logger.Debug("Batch upserted", zap.Int("progress", report.Upserted), zap.Int("total", len(unique)))
			continue
		}

		report.BatchFailures++
		report.addError(fmt.Sprintf("batch %d", start/size+1), err)
		s.logger.Warn("Batch upsert failed; retrying items one by one",
			zap.Int("batch", start/size+1),
			zap.Int("size", len(batch)),
			zap.Error(err),
		)
		if len(batch) == 1 {
			report.ItemFailures++
			continue
		}
		for _, p := range batch {
			if err := s.store.Upsert(ctx, []ingest.Posting{p}); err != nil {
				report.ItemFailures++
				s.logger.Warn("Item upsert failed",
					zap.String("company", p.Company),
					zap.String("position", p.Position),
					zap.String("link", p.Link),
					zap.Error(err),
				)
				continue
			}
			report.Upserted++
		}
	}
}

func (s *Synchronizer) cleanup(ctx context.Context, today ingest.Date, report *Report) {
	n, err := s.store.DeactivateExpired(ctx, today)
	if err != nil {
		s.logger.Warn("Failed to deactivate expired postings", zap.Error(err))
		report.addError("deactivate", err)
	} else {
		report.Deactivated = n
	}

	cutoff := today.AddDays(-s.cfg.RetentionDays)
	n, err = s.store.PurgeInactive(ctx, cutoff)
	if err != nil {
		s.logger.Warn("Failed to purge inactive postings", zap.Error(err))
		report.addError("purge", err)
	} else {
		report.Purged = n
	}
	s.logger.Info("Cleanup finished",
		zap.String("today", today.String()),
		zap.String("cutoff", cutoff.String()),
		zap.Int("deactivated", report.Deactivated),
		zap.Int("purged", report.Purged),
	)
}
