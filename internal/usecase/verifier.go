package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"datatoken/internal/domain"
	"datatoken/internal/pkg/logger"
)

type AssetSource interface {
	TemplateSource
	ResolveAsset(ctx context.Context, dt string) (*domain.TokenRecord, *domain.DDO, error)
}

// Verifier holds the read-only checks that gate privileged actions. Every
// check answers with a bool or a report; collaborator errors become a
// negative answer and are logged at debug.
type Verifier struct {
	Ledger   LedgerReader
	Resolver AssetSource
	Signer   SignatureVerifier
	Logger   *zap.Logger
}

type VerifyOptions struct {
	// WithRespectTo limits the check to these children. Empty means all.
	WithRespectTo []string
	// SkipChildIntegrity disables the ledger checksum comparison for
	// resolved children.
	SkipChildIntegrity bool
}

// VerifyServices decides whether doc's service agreements hold. A leaf is
// checked against its templates. A composable document has each child
// resolved, integrity-checked, checked recursively, and matched against
// the parent's workflow.
func (v *Verifier) VerifyServices(ctx context.Context, doc *domain.DDO, opts VerifyOptions) domain.VerificationReport {
	if v == nil || v.Ledger == nil || v.Resolver == nil {
		return domain.Unverified(doc.DT(), domain.VerificationFailure{
			Code: domain.FailureDocumentUnresolved, DT: doc.DT(), Detail: "verifier requires ledger and resolver",
		})
	}
	state := &agreementWalk{
		stack: map[string]bool{},
		memo:  map[string]*domain.VerificationFailure{},
	}
	failure := v.walk(ctx, doc, opts.WithRespectTo, !opts.SkipChildIntegrity, state)
	if failure != nil {
		v.log().Debug("service verification failed",
			zap.String("dt", doc.DT()),
			zap.String("code", failure.Code),
			zap.String("at", failure.DT),
			zap.String("detail", failure.Detail),
		)
		return domain.Unverified(doc.DT(), *failure)
	}
	return domain.Verified(doc.DT())
}

type agreementWalk struct {
	stack map[string]bool
	memo  map[string]*domain.VerificationFailure
}

func (v *Verifier) walk(ctx context.Context, doc *domain.DDO, wrt []string, integrity bool, state *agreementWalk) *domain.VerificationFailure {
	if err := ctx.Err(); err != nil {
		return &domain.VerificationFailure{Code: domain.FailureCanceled, DT: doc.DT(), Detail: err.Error()}
	}
	if !doc.IsComposable() {
		return ValidateLeafTemplate(ctx, doc, v.Resolver)
	}

	state.stack[doc.DT()] = true
	defer delete(state.stack, doc.DT())

	children := wrt
	if len(children) == 0 {
		children = doc.ChildDTs()
	}
	for _, childDT := range children {
		if err := ctx.Err(); err != nil {
			return &domain.VerificationFailure{Code: domain.FailureCanceled, DT: childDT, Detail: err.Error()}
		}
		if !doc.HasChild(childDT) {
			return &domain.VerificationFailure{Code: domain.FailureNotAChild, DT: childDT, Detail: "parent " + doc.DT()}
		}
		if state.stack[childDT] {
			return &domain.VerificationFailure{Code: domain.FailureCycleDetected, DT: childDT, Detail: "reached again from " + doc.DT()}
		}

		record, child, err := v.Resolver.ResolveAsset(ctx, childDT)
		if err != nil {
			return &domain.VerificationFailure{Code: domain.FailureDocumentUnresolved, DT: childDT, Detail: err.Error()}
		}
		if integrity && !v.VerifyDDOIntegrity(child, record.Checksum) {
			return &domain.VerificationFailure{Code: domain.FailureIntegrityMismatch, DT: childDT}
		}

		if failure := v.verifyChild(ctx, record, child, integrity, state); failure != nil {
			return failure
		}
		if failure := ValidateServiceAgreement(doc, child); failure != nil {
			return failure
		}
	}
	return nil
}

func (v *Verifier) verifyChild(ctx context.Context, record *domain.TokenRecord, child *domain.DDO, integrity bool, state *agreementWalk) *domain.VerificationFailure {
	if cached, ok := state.memo[child.DT()]; ok {
		return cached
	}
	var failure *domain.VerificationFailure
	if !child.IsComposable() {
		failure = ValidateLeafTemplate(ctx, child, v.Resolver)
	} else {
		switch {
		case !record.Activated:
			failure = &domain.VerificationFailure{Code: domain.FailureNotActivated, DT: child.DT()}
		case !v.VerifyPermsReady(ctx, child, ""):
			failure = &domain.VerificationFailure{Code: domain.FailurePermsNotReady, DT: child.DT()}
		default:
			failure = v.walk(ctx, child, nil, integrity, state)
		}
	}
	if failure == nil || failure.Code != domain.FailureCanceled {
		state.memo[child.DT()] = failure
	}
	return failure
}

// VerifySignature reports whether signature over message recovers to
// claimedSigner. Addresses compare case-insensitively.
func (v *Verifier) VerifySignature(claimedSigner, signature, message string) bool {
	if v.Signer == nil || claimedSigner == "" {
		return false
	}
	recovered, err := v.Signer.Recover(message, signature)
	if err != nil {
		v.log().Debug("signature recovery failed", zap.Error(err))
		return false
	}
	return strings.EqualFold(recovered, claimedSigner)
}

// VerifyDDOIntegrity compares the document's proof with the checksum the
// ledger holds for it. A 0x prefix on either side is ignored.
func (v *Verifier) VerifyDDOIntegrity(doc *domain.DDO, ledgerChecksum string) bool {
	if doc == nil {
		return false
	}
	want := normalizeHex(ledgerChecksum)
	return want != "" && normalizeHex(doc.Proof().Checksum) == want
}

func (v *Verifier) CheckDTOwner(ctx context.Context, dt, owner string) bool {
	record, ok := v.token(ctx, dt)
	return ok && owner != "" && strings.EqualFold(record.Owner, owner)
}

func (v *Verifier) CheckDTAvailable(ctx context.Context, dt string) bool {
	_, ok := v.token(ctx, dt)
	return ok
}

// CheckCDTComposed reports whether cdt is registered and activated.
func (v *Verifier) CheckCDTComposed(ctx context.Context, cdt string) bool {
	record, ok := v.token(ctx, cdt)
	return ok && !record.IsLeaf && record.Activated
}

func (v *Verifier) CheckDTPerm(ctx context.Context, dt, grantee string) bool {
	granted, err := v.Ledger.HasPermission(ctx, dt, grantee)
	if err != nil {
		v.log().Debug("permission lookup failed", zap.String("dt", dt), zap.String("grantee", grantee), zap.Error(err))
		return false
	}
	return granted
}

func (v *Verifier) CheckOpExist(ctx context.Context, tid string) bool {
	_, err := v.Ledger.GetTemplate(ctx, tid)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		v.log().Debug("template lookup failed", zap.String("tid", tid), zap.Error(err))
	}
	return err == nil
}

func (v *Verifier) CheckAssetType(doc *domain.DDO, assetType domain.AssetType) bool {
	return doc != nil && doc.Type() == assetType
}

// VerifyJobRegistered reports whether jobID was submitted with cdt.
func (v *Verifier) VerifyJobRegistered(ctx context.Context, jobID int64, cdt string) bool {
	job, err := v.Ledger.GetJob(ctx, jobID)
	if err != nil || job.CDT == "" {
		return false
	}
	want, err := domain.DTToIDBytes(cdt)
	if err != nil {
		return false
	}
	got, err := domain.DTToIDBytes(job.CDT)
	if err != nil {
		return false
	}
	return bytes.Equal(want, got)
}

// VerifyPermsReady reports whether every child of cdt has granted it and the
// ledger links them. When requiredDT is set it must be one of the children.
func (v *Verifier) VerifyPermsReady(ctx context.Context, cdt *domain.DDO, requiredDT string) bool {
	if requiredDT != "" && !cdt.HasChild(requiredDT) {
		return false
	}
	linked, err := v.Ledger.ChildrenLinked(ctx, cdt.DT(), cdt.ChildDTs())
	if err != nil {
		v.log().Debug("children link lookup failed", zap.String("cdt", cdt.DT()), zap.Error(err))
		return false
	}
	return linked
}

func (v *Verifier) token(ctx context.Context, dt string) (*domain.TokenRecord, bool) {
	record, err := v.Ledger.GetToken(ctx, dt)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			v.log().Debug("token lookup failed", zap.String("dt", dt), zap.Error(err))
		}
		return nil, false
	}
	return record, true
}

func (v *Verifier) log() *zap.Logger {
	return logger.OrNop(v.Logger)
}

func normalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	return strings.ToLower(s)
}
