package usecase

import (
	"context"
	"errors"
	"fmt"

	"datatoken/internal/domain"
)

// Resolver turns ledger identifiers into self-verified documents: the ledger
// gives the locator, the content store gives the bytes, and import re-checks
// the embedded checksum.
type Resolver struct {
	Ledger  LedgerReader
	Content ContentStore
}

func (r *Resolver) ResolveAsset(ctx context.Context, dt string) (*domain.TokenRecord, *domain.DDO, error) {
	if r == nil || r.Ledger == nil || r.Content == nil {
		return nil, nil, errors.New("resolver requires ledger and content store")
	}
	if _, err := domain.DTToIDBytes(dt); err != nil {
		return nil, nil, err
	}
	record, err := r.Ledger.GetToken(ctx, dt)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger lookup %s: %w", dt, err)
	}
	if record.Locator == "" {
		return record, nil, fmt.Errorf("%s has no storage locator: %w", dt, domain.ErrNotFound)
	}
	raw, err := r.Content.Get(ctx, record.Locator)
	if err != nil {
		return record, nil, fmt.Errorf("fetch %s: %w", dt, err)
	}
	doc, err := domain.ImportDDOJSON(raw)
	if err != nil {
		return record, nil, fmt.Errorf("import %s: %w", dt, err)
	}
	if doc.DT() != dt {
		return record, nil, fmt.Errorf("%w: locator for %s holds %s", domain.ErrInvalidDocument, dt, doc.DT())
	}
	return record, doc, nil
}

func (r *Resolver) ResolveTemplate(ctx context.Context, tid string) (*domain.TemplateRecord, *domain.OpTemplate, error) {
	if r == nil || r.Ledger == nil || r.Content == nil {
		return nil, nil, errors.New("resolver requires ledger and content store")
	}
	if _, err := domain.DTToIDBytes(tid); err != nil {
		return nil, nil, err
	}
	record, err := r.Ledger.GetTemplate(ctx, tid)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger lookup %s: %w", tid, err)
	}
	if record.Locator == "" {
		return record, nil, fmt.Errorf("%s has no storage locator: %w", tid, domain.ErrNotFound)
	}
	raw, err := r.Content.Get(ctx, record.Locator)
	if err != nil {
		return record, nil, fmt.Errorf("fetch %s: %w", tid, err)
	}
	op, err := domain.ImportTemplateJSON(raw)
	if err != nil {
		return record, nil, fmt.Errorf("import %s: %w", tid, err)
	}
	if op.TID() != tid {
		return record, nil, fmt.Errorf("%w: locator for %s holds %s", domain.ErrInvalidDocument, tid, op.TID())
	}
	return record, op, nil
}

// ResolveLocator imports a document straight from the content store.
func (r *Resolver) ResolveLocator(ctx context.Context, locator string) (*domain.DDO, error) {
	raw, err := r.Content.Get(ctx, locator)
	if err != nil {
		return nil, err
	}
	return domain.ImportDDOJSON(raw)
}
