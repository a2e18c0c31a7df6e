package usecase

import (
	"context"
	"fmt"

	"datatoken/internal/domain"
)

type TemplateSource interface {
	ResolveTemplate(ctx context.Context, tid string) (*domain.TemplateRecord, *domain.OpTemplate, error)
}

// ValidateLeafTemplate checks every service of a leaf document against the
// template it references. It returns nil when all services pass.
func ValidateLeafTemplate(ctx context.Context, leaf *domain.DDO, templates TemplateSource) *domain.VerificationFailure {
	services := leaf.Services()
	if len(services) == 0 {
		return &domain.VerificationFailure{Code: domain.FailureTemplateMissing, DT: leaf.DT(), Detail: "leaf declares no services"}
	}
	for _, svc := range services {
		terms, ok := svc.Leaf()
		if !ok {
			return &domain.VerificationFailure{Code: domain.FailureTemplateMissing, DT: leaf.DT(), Detail: "service " + svc.Index}
		}
		_, op, err := templates.ResolveTemplate(ctx, terms.Template)
		if err != nil {
			return &domain.VerificationFailure{
				Code:   domain.FailureTemplateUnresolved,
				DT:     leaf.DT(),
				Detail: fmt.Sprintf("service %s: %v", svc.Index, err),
			}
		}
		if !domain.ParamsSatisfied(op.Params(), terms.Constraint) {
			return &domain.VerificationFailure{
				Code:   domain.FailureParamsMismatch,
				DT:     leaf.DT(),
				Detail: fmt.Sprintf("service %s does not match params of %s", svc.Index, terms.Template),
			}
		}
	}
	return nil
}

// ValidateServiceAgreement checks that every service of parent fulfils what
// child requires. Algorithm documents can never be the child.
func ValidateServiceAgreement(parent, child *domain.DDO) *domain.VerificationFailure {
	if child.Type() == domain.AssetAlgorithm {
		return &domain.VerificationFailure{Code: domain.FailureTerminalDependency, DT: child.DT()}
	}
	if !parent.IsComposable() || !parent.HasChild(child.DT()) {
		return &domain.VerificationFailure{Code: domain.FailureNotAChild, DT: child.DT(), Detail: "parent " + parent.DT()}
	}
	terminal := parent.Kind() == domain.KindAlgorithm

	for _, svc := range parent.Services() {
		workflow, ok := svc.Workflow()
		if !ok {
			return &domain.VerificationFailure{Code: domain.FailureWorkflowEntryMissing, DT: child.DT(), Detail: "service " + svc.Index}
		}
		agreement, ok := workflow[child.DT()]
		if !ok {
			return &domain.VerificationFailure{Code: domain.FailureWorkflowEntryMissing, DT: child.DT(), Detail: "service " + svc.Index}
		}
		childSvc, ok := child.ServiceByIndex(agreement.Service)
		if !ok {
			return &domain.VerificationFailure{Code: domain.FailureChildServiceMissing, DT: child.DT(), Detail: "service " + agreement.Service}
		}
		required, ok := requiredConstraint(child, childSvc)
		if !ok {
			return &domain.VerificationFailure{Code: domain.FailureChildServiceMissing, DT: child.DT(), Detail: "malformed service " + agreement.Service}
		}
		if !domain.Fulfills(required, agreement.Constraint, terminal) {
			return &domain.VerificationFailure{
				Code:   domain.FailureAgreementUnfulfilled,
				DT:     child.DT(),
				Detail: fmt.Sprintf("parent service %s, child service %s", svc.Index, agreement.Service),
			}
		}
	}
	return nil
}

// requiredConstraint is the leaf constraint of a leaf child, or for a
// composable child its workflow flattened to {grandchild dt: constraint}.
func requiredConstraint(child *domain.DDO, svc domain.Service) (domain.Constraint, bool) {
	if !child.IsComposable() {
		terms, ok := svc.Leaf()
		if !ok {
			return nil, false
		}
		return terms.Constraint, true
	}
	workflow, ok := svc.Workflow()
	if !ok {
		return nil, false
	}
	out := make(domain.Constraint, len(workflow))
	for dt, agreement := range workflow {
		out[dt] = map[string]any(agreement.Constraint)
	}
	return out, true
}
