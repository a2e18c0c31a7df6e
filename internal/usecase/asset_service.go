package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"datatoken/internal/domain"
	"datatoken/internal/pkg/logger"
)

type AssetService struct {
	Ledger   Ledger
	Content  ContentStore
	Resolver *Resolver
	Verifier *Verifier
	Tracer   *Tracer
	Policy   AuthorizationPolicy
	Now      func() time.Time
	Logger   *zap.Logger
}

type GenerateDDORequest struct {
	Metadata map[string]any
	Services []map[string]any
	Owner    string
	ChildDTs []string
	// DT is assigned when set; otherwise a fresh identifier is issued.
	DT     string
	Verify bool
}

// GenerateDDO builds and seals a document. With Verify set the document's
// service agreements must hold against the current ledger.
func (s *AssetService) GenerateDDO(ctx context.Context, req GenerateDDORequest) (*domain.DDO, error) {
	b := domain.NewDocumentBuilder()
	if err := b.AddMetadata(req.Metadata, req.ChildDTs); err != nil {
		return nil, err
	}
	if err := b.AddCreator(req.Owner); err != nil {
		return nil, err
	}
	for _, svc := range req.Services {
		if err := b.AddService(svc); err != nil {
			return nil, err
		}
	}
	dt := req.DT
	if dt == "" {
		dt = domain.NewDT()
	}
	if err := b.AssignDT(dt); err != nil {
		return nil, err
	}
	doc, err := b.CreateProof(s.now())
	if err != nil {
		return nil, err
	}
	if req.Verify {
		report := s.Verifier.VerifyServices(ctx, doc, VerifyOptions{})
		if !report.Verified {
			return nil, fmt.Errorf("%w: %s at %s", domain.ErrVerificationFailed, report.Failure.Code, report.Failure.DT)
		}
	}
	return doc, nil
}

// PublishDT stores the document and registers it on the ledger.
// ALREADY_EXISTS is reported through the code, not as an error.
func (s *AssetService) PublishDT(ctx context.Context, doc *domain.DDO, issuer string) (domain.ResultCode, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", doc.DT(), err)
	}
	locator, err := s.Content.Put(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", doc.DT(), err)
	}
	code, err := s.Ledger.MintToken(ctx, issuer, domain.TokenRecord{
		DT:       doc.DT(),
		Owner:    doc.Creator(),
		Issuer:   issuer,
		Checksum: doc.Proof().Checksum,
		Locator:  locator,
		IsLeaf:   !doc.IsComposable(),
	})
	return s.settle(code, err, "mint", zap.String("dt", doc.DT()), zap.String("locator", locator))
}

func (s *AssetService) GrantDTPerm(ctx context.Context, owner, dt, grantee string) (domain.ResultCode, error) {
	code, err := s.Ledger.Grant(ctx, owner, dt, grantee)
	return s.settle(code, err, "grant", zap.String("dt", dt), zap.String("grantee", grantee))
}

// ActivateCDT marks cdt composed once every child has granted it.
func (s *AssetService) ActivateCDT(ctx context.Context, aggregator, cdt string, children []string) (domain.ResultCode, error) {
	code, err := s.Ledger.Activate(ctx, aggregator, cdt, children)
	return s.settle(code, err, "activate", zap.String("cdt", cdt))
}

func (s *AssetService) settle(code domain.ResultCode, err error, op string, fields ...zap.Field) (domain.ResultCode, error) {
	if err != nil {
		return "", fmt.Errorf("ledger %s: %w", op, err)
	}
	fields = append(fields, zap.String("op", op), zap.String("code", string(code)))
	switch code {
	case domain.ResultSuccess:
		s.log().Debug("ledger write confirmed", fields...)
		return code, nil
	case domain.ResultAlreadyExists:
		s.log().Warn("ledger entry already exists", fields...)
		return code, nil
	default:
		return code, fmt.Errorf("ledger %s: %w", op, code.Err())
	}
}

type ServiceTermsRequest struct {
	CDT       string `json:"cdt"`
	DT        string `json:"dt"`
	Owner     string `json:"owner"`
	Signature string `json:"signature"`
}

// CheckServiceTerms decides whether an aggregator's cdt may use dt. The
// aggregator signs "<issuer><cdt>"; the cdt's agreement with dt must hold.
func (s *AssetService) CheckServiceTerms(ctx context.Context, req ServiceTermsRequest) domain.Authorization {
	checks := map[string]bool{}
	if s.Verifier.CheckDTPerm(ctx, req.DT, req.CDT) {
		checks[CheckPermissionGranted] = true
		return domain.Authorization{Allowed: true, Reason: ReasonAlreadyGranted, Checks: checks}
	}

	checks[CheckOwner] = s.Verifier.CheckDTOwner(ctx, req.DT, req.Owner)
	if !checks[CheckOwner] {
		return rejected("dt is not owned by the requester", checks)
	}
	record, cdtDoc, err := s.Resolver.ResolveAsset(ctx, req.CDT)
	checks[CheckResolved] = err == nil
	if err != nil {
		s.log().Debug("cdt unresolved", zap.String("cdt", req.CDT), zap.Error(err))
		return rejected("cdt cannot be resolved", checks)
	}
	issuer := record.Issuer
	checks[CheckSignature] = s.Verifier.VerifySignature(issuer, req.Signature, issuer+req.CDT)
	if !checks[CheckSignature] {
		return rejected("signature does not match the cdt issuer", checks)
	}
	checks[CheckIntegrity] = s.Verifier.VerifyDDOIntegrity(cdtDoc, record.Checksum)
	if !checks[CheckIntegrity] {
		return rejected("cdt checksum does not match the ledger", checks)
	}
	report := s.Verifier.VerifyServices(ctx, cdtDoc, VerifyOptions{WithRespectTo: []string{req.DT}, SkipChildIntegrity: true})
	checks[CheckServices] = report.Verified
	if !report.Verified {
		return rejected("service agreement not satisfied: "+report.Failure.Code, checks)
	}

	return applyPolicy(ctx, s.Policy, domain.PolicyInput{
		Action:    domain.ActionServiceTerms,
		CDT:       req.CDT,
		DT:        req.DT,
		AssetType: cdtDoc.Type(),
		Requester: issuer,
		Checks:    checks,
	}, s.log())
}

type ServiceSummary struct {
	Index      string         `json:"index"`
	Endpoint   string         `json:"endpoint,omitempty"`
	Price      any            `json:"price,omitempty"`
	Descriptor map[string]any `json:"descriptor"`
}

type AssetDetails struct {
	DT          string           `json:"dt"`
	Name        string           `json:"name"`
	Type        domain.AssetType `json:"type"`
	Description string           `json:"description,omitempty"`
	Owner       string           `json:"owner"`
	Issuer      string           `json:"issuer"`
	IssuerName  string           `json:"issuer_name,omitempty"`
	Composable  bool             `json:"composable"`
	Checksum    string           `json:"checksum"`
	Services    []ServiceSummary `json:"services"`
	Union       [][]TraceNode    `json:"union,omitempty"`
}

// DTDetails resolves dt, checks it against the ledger and summarizes it.
func (s *AssetService) DTDetails(ctx context.Context, dt string) (*AssetDetails, error) {
	record, doc, err := s.Resolver.ResolveAsset(ctx, dt)
	if err != nil {
		return nil, err
	}
	if !s.Verifier.VerifyDDOIntegrity(doc, record.Checksum) {
		return nil, fmt.Errorf("%w: %s differs from the ledger", domain.ErrChecksumMismatch, dt)
	}
	md := doc.Metadata()
	details := &AssetDetails{
		DT:          dt,
		Name:        md.Name(),
		Type:        md.Type(),
		Description: md.Description(),
		Owner:       record.Owner,
		Issuer:      record.Issuer,
		IssuerName:  s.enterpriseName(ctx, record.Issuer),
		Composable:  doc.IsComposable(),
		Checksum:    doc.Proof().Checksum,
	}
	for _, svc := range doc.Services() {
		summary := ServiceSummary{Index: svc.Index, Descriptor: svc.Descriptor}
		if svc.Endpoint != nil {
			summary.Endpoint = *svc.Endpoint
		}
		if attrs, ok := svc.Attributes.(map[string]any); ok {
			summary.Price = attrs["price"]
		}
		details.Services = append(details.Services, summary)
	}
	if s.Tracer != nil && doc.IsComposable() {
		union, err := s.Tracer.TraceDataUnion(ctx, doc)
		if err != nil {
			return nil, err
		}
		details.Union = union
	}
	return details, nil
}

type MarketplaceEntry struct {
	DT         string           `json:"dt"`
	Name       string           `json:"name"`
	Type       domain.AssetType `json:"type"`
	IssuerName string           `json:"issuer_name,omitempty"`
	Composable bool             `json:"composable"`
}

// Marketplace lists registered documents whose content still matches the
// ledger. Documents that fail to resolve or verify are left out.
func (s *AssetService) Marketplace(ctx context.Context) ([]MarketplaceEntry, error) {
	records, err := s.Ledger.ListTokens(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MarketplaceEntry, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.Resolver.ResolveLocator(ctx, record.Locator)
		if err != nil {
			s.log().Debug("marketplace entry skipped", zap.String("dt", record.DT), zap.Error(err))
			continue
		}
		if doc.DT() != record.DT || !s.Verifier.VerifyDDOIntegrity(doc, record.Checksum) {
			s.log().Debug("marketplace entry failed integrity", zap.String("dt", record.DT))
			continue
		}
		out = append(out, MarketplaceEntry{
			DT:         record.DT,
			Name:       doc.Metadata().Name(),
			Type:       doc.Type(),
			IssuerName: s.enterpriseName(ctx, record.Issuer),
			Composable: doc.IsComposable(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DT < out[j].DT })
	return out, nil
}

func (s *AssetService) enterpriseName(ctx context.Context, address string) string {
	return enterpriseName(ctx, s.Ledger, address, s.log())
}

func enterpriseName(ctx context.Context, ledger LedgerReader, address string, log *zap.Logger) string {
	ent, err := ledger.GetEnterprise(ctx, address)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Debug("enterprise lookup failed", zap.String("address", address), zap.Error(err))
		}
		return ""
	}
	return ent.Name
}

func (s *AssetService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AssetService) log() *zap.Logger {
	return logger.OrNop(s.Logger)
}
