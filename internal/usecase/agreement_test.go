package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"datatoken/internal/domain"
)

var (
	agreementTID     = domain.DTPrefix + strings.Repeat("0a", 32)
	agreementCreator = "0x" + strings.Repeat("12", 20)
	agreementNow     = time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
)

type memoryTemplates map[string]*domain.OpTemplate

func (m memoryTemplates) ResolveTemplate(ctx context.Context, tid string) (*domain.TemplateRecord, *domain.OpTemplate, error) {
	op, ok := m[tid]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	return &domain.TemplateRecord{TID: tid}, op, nil
}

func sumTemplate(t *testing.T) memoryTemplates {
	t.Helper()
	b := domain.NewTemplateBuilder()
	mustNoErr(t, b.AssignTID(agreementTID))
	mustNoErr(t, b.AddCreator(agreementCreator))
	mustNoErr(t, b.AddMetadata(map[string]any{"main": map[string]any{"type": "Operation", "name": "sum"}}))
	mustNoErr(t, b.AddTemplate("return a + b", map[string]any{"arg1": map[string]any{}, "arg2": map[string]any{}}))
	op, err := b.CreateProof(agreementNow)
	mustNoErr(t, err)
	return memoryTemplates{agreementTID: op}
}

func buildDoc(t *testing.T, assetType string, children []string, services ...map[string]any) *domain.DDO {
	t.Helper()
	b := domain.NewDocumentBuilder()
	mustNoErr(t, b.AddMetadata(map[string]any{"main": map[string]any{"type": assetType}}, children))
	mustNoErr(t, b.AddCreator(agreementCreator))
	for _, svc := range services {
		mustNoErr(t, b.AddService(svc))
	}
	mustNoErr(t, b.AssignDT(domain.NewDT()))
	doc, err := b.CreateProof(agreementNow)
	mustNoErr(t, err)
	return doc
}

func leafTerms(tid string, constraint map[string]any) map[string]any {
	return leafService("sid0", tid, constraint)
}

func leafService(index, tid string, constraint map[string]any) map[string]any {
	return map[string]any{
		"index":      index,
		"endpoint":   "https://leaf.example",
		"descriptor": map[string]any{"template": tid, "constraint": constraint},
	}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateLeafTemplate(t *testing.T) {
	ctx := context.Background()
	templates := sumTemplate(t)

	ok := buildDoc(t, "Dataset", nil, leafTerms(agreementTID, map[string]any{"arg1": 1, "arg2": map[string]any{}}))
	if failure := ValidateLeafTemplate(ctx, ok, templates); failure != nil {
		t.Fatalf("expected leaf to pass, got %+v", failure)
	}

	extra := buildDoc(t, "Dataset", nil, leafTerms(agreementTID, map[string]any{"arg1": 1, "arg2": 2, "arg3": 3}))
	if failure := ValidateLeafTemplate(ctx, extra, templates); failure == nil || failure.Code != domain.FailureParamsMismatch {
		t.Fatalf("expected params mismatch, got %+v", failure)
	}

	missing := buildDoc(t, "Dataset", nil, leafTerms(domain.NewDT(), map[string]any{"arg1": 1, "arg2": 2}))
	if failure := ValidateLeafTemplate(ctx, missing, templates); failure == nil || failure.Code != domain.FailureTemplateUnresolved {
		t.Fatalf("expected unresolved template, got %+v", failure)
	}

	bare := buildDoc(t, "Model", nil)
	if failure := ValidateLeafTemplate(ctx, bare, templates); failure == nil || failure.Code != domain.FailureTemplateMissing {
		t.Fatalf("expected missing template, got %+v", failure)
	}
}

func TestValidateServiceAgreement(t *testing.T) {
	leaf := buildDoc(t, "Dataset", nil, leafTerms(agreementTID, map[string]any{"arg1": 1, "arg2": map[string]any{}}))
	algo := func(constraint map[string]any) *domain.DDO {
		return buildDoc(t, "Algorithm", []string{leaf.DT()}, map[string]any{
			"index": "sid0",
			"descriptor": map[string]any{"workflow": map[string]any{
				leaf.DT(): map[string]any{"service": "sid0", "constraint": constraint},
			}},
		})
	}

	cases := []struct {
		name       string
		constraint map[string]any
		code       string
	}{
		{name: "fixed value kept, wildcard filled", constraint: map[string]any{"arg1": 1, "arg2": 9}},
		{name: "fixed value changed", constraint: map[string]any{"arg1": 2, "arg2": 9}, code: domain.FailureAgreementUnfulfilled},
		{name: "slot left null in terminal", constraint: map[string]any{"arg1": 1, "arg2": nil}, code: domain.FailureAgreementUnfulfilled},
		{name: "key set differs", constraint: map[string]any{"arg1": 1}, code: domain.FailureAgreementUnfulfilled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			failure := ValidateServiceAgreement(algo(tc.constraint), leaf)
			if tc.code == "" {
				if failure != nil {
					t.Fatalf("expected agreement to hold, got %+v", failure)
				}
				return
			}
			if failure == nil || failure.Code != tc.code {
				t.Fatalf("expected %s, got %+v", tc.code, failure)
			}
		})
	}

	parent := algo(map[string]any{"arg1": 1, "arg2": 9})
	if failure := ValidateServiceAgreement(parent, parent); failure == nil || failure.Code != domain.FailureTerminalDependency {
		t.Fatalf("expected terminal dependency, got %+v", failure)
	}
	stranger := buildDoc(t, "Dataset", nil, leafTerms(agreementTID, map[string]any{"arg1": 1, "arg2": 2}))
	if failure := ValidateServiceAgreement(parent, stranger); failure == nil || failure.Code != domain.FailureNotAChild {
		t.Fatalf("expected not a child, got %+v", failure)
	}
}

func TestValidateLeafTemplate_ChecksEveryService(t *testing.T) {
	ctx := context.Background()
	templates := sumTemplate(t)

	both := buildDoc(t, "Dataset", nil,
		leafService("sid0", agreementTID, map[string]any{"arg1": 1, "arg2": map[string]any{}}),
		leafService("sid1", agreementTID, map[string]any{"arg1": 5, "arg2": 6}),
	)
	if failure := ValidateLeafTemplate(ctx, both, templates); failure != nil {
		t.Fatalf("expected both services to pass, got %+v", failure)
	}

	second := buildDoc(t, "Dataset", nil,
		leafService("sid0", agreementTID, map[string]any{"arg1": 1, "arg2": map[string]any{}}),
		leafService("sid1", agreementTID, map[string]any{"arg1": 5}),
	)
	failure := ValidateLeafTemplate(ctx, second, templates)
	if failure == nil || failure.Code != domain.FailureParamsMismatch {
		t.Fatalf("expected params mismatch on sid1, got %+v", failure)
	}
	if !strings.Contains(failure.Detail, "sid1") {
		t.Fatalf("expected failure to name sid1, got %q", failure.Detail)
	}
}

func TestValidateServiceAgreement_ChecksEveryService(t *testing.T) {
	leaf := buildDoc(t, "Dataset", nil, leafTerms(agreementTID, map[string]any{"arg1": 1, "arg2": map[string]any{}}))
	workflowService := func(index string, constraint map[string]any) map[string]any {
		return map[string]any{
			"index":    index,
			"endpoint": "https://compose.example",
			"descriptor": map[string]any{"workflow": map[string]any{
				leaf.DT(): map[string]any{"service": "sid0", "constraint": constraint},
			}},
		}
	}

	agreeing := buildDoc(t, "Dataset", []string{leaf.DT()},
		workflowService("sid0", map[string]any{"arg1": 1, "arg2": 2}),
		workflowService("sid1", map[string]any{"arg1": 1, "arg2": 3}),
	)
	if failure := ValidateServiceAgreement(agreeing, leaf); failure != nil {
		t.Fatalf("expected both services to hold, got %+v", failure)
	}

	conflicting := buildDoc(t, "Dataset", []string{leaf.DT()},
		workflowService("sid0", map[string]any{"arg1": 1, "arg2": 2}),
		workflowService("sid1", map[string]any{"arg1": 7, "arg2": 3}),
	)
	failure := ValidateServiceAgreement(conflicting, leaf)
	if failure == nil || failure.Code != domain.FailureAgreementUnfulfilled {
		t.Fatalf("expected unfulfilled agreement on sid1, got %+v", failure)
	}
	if !strings.Contains(failure.Detail, "parent service sid1") {
		t.Fatalf("expected failure to name sid1, got %q", failure.Detail)
	}
}
