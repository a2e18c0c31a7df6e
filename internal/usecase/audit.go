package usecase

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"datatoken/internal/domain"
	"datatoken/internal/pkg/logger"
	"datatoken/internal/pkg/worker"
)

type AuditEntry struct {
	DT        string                     `json:"dt"`
	Resolved  bool                       `json:"resolved"`
	Integrity bool                       `json:"integrity"`
	Report    *domain.VerificationReport `json:"report,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

func (e AuditEntry) Healthy() bool {
	return e.Resolved && e.Integrity && e.Report != nil && e.Report.Verified
}

type AuditReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Total      int          `json:"total"`
	Healthy    int          `json:"healthy"`
	Entries    []AuditEntry `json:"entries"`
}

// IntegrityAudit re-verifies every registered document: content resolves,
// the checksum matches the ledger, and service agreements still hold.
type IntegrityAudit struct {
	Ledger   LedgerReader
	Resolver AssetSource
	Verifier *Verifier
	Pool     *worker.Pool
	Logger   *zap.Logger
}

func (a *IntegrityAudit) Run(ctx context.Context) (AuditReport, error) {
	report := AuditReport{StartedAt: time.Now().UTC()}
	records, err := a.Ledger.ListTokens(ctx)
	if err != nil {
		return report, err
	}
	entries := make([]AuditEntry, len(records))
	check := func(ctx context.Context, i int) {
		entries[i] = a.check(ctx, records[i])
	}
	if a.Pool != nil {
		err = a.Pool.Each(ctx, len(records), check)
	} else {
		for i := range records {
			if err = ctx.Err(); err != nil {
				break
			}
			check(ctx, i)
		}
	}
	if err != nil {
		return report, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].DT < entries[j].DT })
	for _, e := range entries {
		if e.Healthy() {
			report.Healthy++
		}
	}
	report.Entries = entries
	report.Total = len(entries)
	report.FinishedAt = time.Now().UTC()
	logger.OrNop(a.Logger).Info("integrity audit finished",
		zap.Int("total", report.Total),
		zap.Int("healthy", report.Healthy),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (a *IntegrityAudit) check(ctx context.Context, record domain.TokenRecord) AuditEntry {
	entry := AuditEntry{DT: record.DT}
	ledgerRecord, doc, err := a.Resolver.ResolveAsset(ctx, record.DT)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Resolved = true
	entry.Integrity = a.Verifier.VerifyDDOIntegrity(doc, ledgerRecord.Checksum)
	if !entry.Integrity {
		return entry
	}
	rep := a.Verifier.VerifyServices(ctx, doc, VerifyOptions{})
	entry.Report = &rep
	return entry
}
