package biz

import (
	"strings"
	"sync"
	"time"

	"IntelHarvest/internal/model"
	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// Record kinds
const (
	RecordSuccess = "success"
	RecordWarning = "warning"
	RecordError   = "error"
)

// Ledger bounds
const (
	maxDetailRunes  = 200
	summaryErrors   = 10
	summaryWarnings = 5
	alertErrorCount = 3
)

// DefaultCriticalSources are the sources whose failure always alerts.
var DefaultCriticalSources = []string{"cisa_kev", "sec_edgar", "ecb_fx"}

// HarvestStats is the append-only ledger of one harvest run.
// Safe for concurrent use.
type HarvestStats struct {
	mu sync.Mutex

	critical  []string
	start     time.Time
	errors    []model.HarvestRecord
	warnings  []model.HarvestRecord
	successes []model.HarvestRecord

	now    func() time.Time
	logger *pkglog.LogHelper
}

// NewHarvestStats creates an empty ledger. A nil or empty critical set uses
// DefaultCriticalSources.
func NewHarvestStats(critical []string, logger log.Logger) *HarvestStats {
	if len(critical) == 0 {
		critical = DefaultCriticalSources
	}
	s := &HarvestStats{
		critical: append([]string(nil), critical...),
		now:      time.Now,
		logger:   pkglog.NewLogHelper(logger),
	}
	s.start = s.now()
	return s
}

// Reset clears the ledger and restarts the duration clock.
func (s *HarvestStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = nil
	s.warnings = nil
	s.successes = nil
	s.start = s.now()
}

// RecordSuccess appends a success for source.
func (s *HarvestStats) RecordSuccess(source string) {
	s.mu.Lock()
	s.successes = append(s.successes, model.HarvestRecord{Kind: RecordSuccess, Source: source, Time: s.now().UTC()})
	s.mu.Unlock()
	s.logger.Debugf("[%s] Success", source)
}

// RecordWarning appends a warning for source, truncating the detail.
func (s *HarvestStats) RecordWarning(source, detail string) {
	detail = truncateRunes(detail, maxDetailRunes)
	s.mu.Lock()
	s.warnings = append(s.warnings, model.HarvestRecord{Kind: RecordWarning, Source: source, Message: detail, Time: s.now().UTC()})
	s.mu.Unlock()
	s.logger.Warnf("[%s] %s", source, detail)
}

// RecordError appends an error for source, truncating the detail.
func (s *HarvestStats) RecordError(source, detail string) {
	detail = truncateRunes(detail, maxDetailRunes)
	s.mu.Lock()
	s.errors = append(s.errors, model.HarvestRecord{Kind: RecordError, Source: source, Message: detail, Time: s.now().UTC()})
	s.mu.Unlock()
	s.logger.Errorf("[%s] %s", source, detail)
}

// Counts returns the totals without building a summary.
func (s *HarvestStats) Counts() (successes, warnings, errors int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.successes), len(s.warnings), len(s.errors)
}

// Summary returns the counts plus the 10 most recent errors and the 5 most
// recent warnings.
func (s *HarvestStats) Summary() *model.HarvestSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &model.HarvestSummary{
		TotalErrors:     len(s.errors),
		TotalWarnings:   len(s.warnings),
		TotalSuccesses:  len(s.successes),
		Errors:          tail(s.errors, summaryErrors),
		Warnings:        tail(s.warnings, summaryWarnings),
		DurationSeconds: s.now().Sub(s.start).Seconds(),
	}
}

// ShouldAlert reports whether the run had at least three errors or any error
// from a critical source. Critical ids match exactly; an id ending in "*"
// matches every source with that prefix (sec_edgar_* covers sec_edgar_pmi).
func (s *HarvestStats) ShouldAlert() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errors) >= alertErrorCount {
		return true
	}
	for _, e := range s.errors {
		if s.isCritical(e.Source) {
			return true
		}
	}
	return false
}

// FailedSources returns the distinct error sources in first-seen order and
// the subset that is critical.
func (s *HarvestStats) FailedSources() (failed, critical []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(s.errors))
	for _, e := range s.errors {
		if _, ok := seen[e.Source]; ok {
			continue
		}
		seen[e.Source] = struct{}{}
		failed = append(failed, e.Source)
		if s.isCritical(e.Source) {
			critical = append(critical, e.Source)
		}
	}
	return failed, critical
}

func (s *HarvestStats) isCritical(source string) bool {
	for _, c := range s.critical {
		if prefix, ok := strings.CutSuffix(c, "*"); ok {
			if strings.HasPrefix(source, prefix) {
				return true
			}
			continue
		}
		if source == c {
			return true
		}
	}
	return false
}

func tail(records []model.HarvestRecord, n int) []model.HarvestRecord {
	if len(records) > n {
		records = records[len(records)-n:]
	}
	out := make([]model.HarvestRecord, len(records))
	copy(out, records)
	return out
}
