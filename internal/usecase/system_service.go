package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"datatoken/internal/domain"
	"datatoken/internal/pkg/logger"
)

// SystemService holds the operator-side writes: templates and enterprises.
type SystemService struct {
	Ledger   Ledger
	Content  ContentStore
	Verifier *Verifier
	Now      func() time.Time
	Logger   *zap.Logger
}

type PublishTemplateRequest struct {
	Publisher string
	Metadata  map[string]any
	Operation string
	Params    map[string]any
	// TID republishes an existing template when set.
	TID string
}

// PublishTemplate seals an operation template, stores it and publishes or
// updates its ledger registration.
func (s *SystemService) PublishTemplate(ctx context.Context, req PublishTemplateRequest) (*domain.OpTemplate, domain.ResultCode, error) {
	b := domain.NewTemplateBuilder()
	if err := b.AddMetadata(req.Metadata); err != nil {
		return nil, "", err
	}
	if err := b.AddTemplate(req.Operation, req.Params); err != nil {
		return nil, "", err
	}
	if err := b.AddCreator(req.Publisher); err != nil {
		return nil, "", err
	}
	tid := req.TID
	if tid == "" {
		tid = domain.NewDT()
	}
	if err := b.AssignTID(tid); err != nil {
		return nil, "", err
	}
	now := s.now()
	op, err := b.CreateProof(now)
	if err != nil {
		return nil, "", err
	}

	raw, err := json.Marshal(op)
	if err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", tid, err)
	}
	locator, err := s.Content.Put(ctx, raw)
	if err != nil {
		return nil, "", fmt.Errorf("store %s: %w", tid, err)
	}

	update := s.Verifier != nil && s.Verifier.CheckOpExist(ctx, tid)
	code, err := s.Ledger.PublishTemplate(ctx, domain.TemplateRecord{
		TID:       tid,
		Name:      op.Name(),
		Publisher: req.Publisher,
		Checksum:  op.Proof().Checksum,
		Locator:   locator,
		UpdatedAt: now.UTC().Truncate(time.Second),
	})
	if err != nil {
		return nil, "", fmt.Errorf("publish template: %w", err)
	}
	if code != domain.ResultSuccess {
		return nil, code, fmt.Errorf("publish template %s: %w", tid, code.Err())
	}
	s.log().Info("template published",
		zap.String("tid", tid),
		zap.String("name", op.Name()),
		zap.Bool("update", update),
	)
	return op, code, nil
}

// RegisterEnterprise registers address or updates its name and description.
func (s *SystemService) RegisterEnterprise(ctx context.Context, ent domain.Enterprise) (domain.ResultCode, error) {
	if strings.TrimSpace(ent.Address) == "" || strings.TrimSpace(ent.Name) == "" {
		return "", fmt.Errorf("%w: enterprise needs an address and a name", domain.ErrInvalidDocument)
	}
	code, err := s.Ledger.RegisterEnterprise(ctx, ent)
	if err != nil {
		return "", fmt.Errorf("register enterprise: %w", err)
	}
	if code != domain.ResultSuccess {
		return code, fmt.Errorf("register enterprise %s: %w", ent.Address, code.Err())
	}
	s.log().Info("enterprise registered", zap.String("address", ent.Address), zap.String("name", ent.Name))
	return code, nil
}

func (s *SystemService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SystemService) log() *zap.Logger {
	return logger.OrNop(s.Logger)
}
