package domain

import (
	"fmt"

	"datatoken/pkg/canonical"
)

// DocumentKind tags a document by the composition rules it follows.
type DocumentKind string

const (
	// KindLeaf documents are backed directly by an operation template.
	KindLeaf DocumentKind = "leaf"
	// KindComposable documents declare children and a workflow per service.
	KindComposable DocumentKind = "composable"
	// KindAlgorithm is the terminal composable kind: one service at most, and
	// nothing may depend on it.
	KindAlgorithm DocumentKind = "algorithm"
)

func kindOf(assetType AssetType, childDTs []string) DocumentKind {
	switch {
	case assetType == AssetAlgorithm:
		return KindAlgorithm
	case len(childDTs) > 0:
		return KindComposable
	default:
		return KindLeaf
	}
}

// IsComposable reports whether documents of this kind carry workflows.
func (k DocumentKind) IsComposable() bool {
	return k == KindComposable || k == KindAlgorithm
}

const (
	serviceIndexKey      = "index"
	serviceEndpointKey   = "endpoint"
	serviceDescriptorKey = "descriptor"
	serviceAttributesKey = "attributes"

	descriptorWorkflowKey   = "workflow"
	descriptorTemplateKey   = "template"
	descriptorConstraintKey = "constraint"
	agreementServiceKey     = "service"
)

// Constraint maps argument names to fixed values, nested sub-constraints, or
// empty placeholders.
type Constraint map[string]any

// Service is one entry of a document's ordered service list.
type Service struct {
	Index      string
	Endpoint   *string
	Descriptor map[string]any
	Attributes any
}

// LeafTerms is the descriptor of a leaf document's service.
type LeafTerms struct {
	Template   string
	Constraint Constraint
}

// Agreement is what a composable service requires from one child.
type Agreement struct {
	Service    string
	Constraint Constraint
}

// Workflow maps child identifiers to the agreement imposed on each.
type Workflow map[string]Agreement

// ParseService reads the wire shape of a service. It does not apply the
// owner-dependent rules; see ValidateService.
func ParseService(values map[string]any) (Service, error) {
	if values == nil {
		return Service{}, fmt.Errorf("%w: service is required", ErrInvalidService)
	}
	normalized, err := canonical.NormalizeObject(values)
	if err != nil {
		return Service{}, fmt.Errorf("%w: %v", ErrInvalidService, err)
	}

	index, ok := normalized[serviceIndexKey].(string)
	if !ok || index == "" {
		return Service{}, fmt.Errorf("%w: index must be a non-empty string", ErrInvalidService)
	}

	var endpoint *string
	switch raw := normalized[serviceEndpointKey].(type) {
	case nil:
	case string:
		endpoint = &raw
	default:
		return Service{}, fmt.Errorf("%w: endpoint must be a string", ErrInvalidService)
	}

	var descriptor map[string]any
	if raw, present := normalized[serviceDescriptorKey]; present && raw != nil {
		descriptor, ok = raw.(map[string]any)
		if !ok {
			return Service{}, fmt.Errorf("%w: descriptor must be an object", ErrInvalidService)
		}
	}

	return Service{
		Index:      index,
		Endpoint:   endpoint,
		Descriptor: descriptor,
		Attributes: normalized[serviceAttributesKey],
	}, nil
}

// ValidateService applies the shape rules that depend on the owning document:
// endpoint presence, and workflow vs template descriptors.
func ValidateService(svc Service, ownerType AssetType, ownerChildDTs []string) error {
	if (svc.Endpoint == nil || *svc.Endpoint == "") && ownerType != AssetAlgorithm {
		return fmt.Errorf("%w: service %q requires an endpoint", ErrInvalidService, svc.Index)
	}
	if len(svc.Descriptor) == 0 {
		return fmt.Errorf("%w: service %q requires a descriptor", ErrInvalidService, svc.Index)
	}

	if kindOf(ownerType, ownerChildDTs).IsComposable() {
		_, err := parseWorkflow(svc.Descriptor, ownerChildDTs)
		if err != nil {
			return fmt.Errorf("%w: service %q: %v", ErrInvalidService, svc.Index, err)
		}
		return nil
	}
	if _, err := parseLeafTerms(svc.Descriptor); err != nil {
		return fmt.Errorf("%w: service %q: %v", ErrInvalidService, svc.Index, err)
	}
	return nil
}

// Workflow returns the composable view of the descriptor.
func (s Service) Workflow() (Workflow, bool) {
	wf, err := parseWorkflow(s.Descriptor, nil)
	if err != nil {
		return nil, false
	}
	return wf, true
}

// Leaf returns the leaf view of the descriptor.
func (s Service) Leaf() (LeafTerms, bool) {
	terms, err := parseLeafTerms(s.Descriptor)
	if err != nil {
		return LeafTerms{}, false
	}
	return terms, true
}

// ToMap renders the wire shape.
func (s Service) ToMap() map[string]any {
	var endpoint any
	if s.Endpoint != nil {
		endpoint = *s.Endpoint
	}
	var descriptor any
	if s.Descriptor != nil {
		descriptor = canonical.CloneObject(s.Descriptor)
	}
	return map[string]any{
		serviceIndexKey:      s.Index,
		serviceEndpointKey:   endpoint,
		serviceDescriptorKey: descriptor,
		serviceAttributesKey: canonical.Clone(s.Attributes),
	}
}

func (s Service) clone() Service {
	out := s
	if s.Endpoint != nil {
		endpoint := *s.Endpoint
		out.Endpoint = &endpoint
	}
	out.Descriptor = canonical.CloneObject(s.Descriptor)
	out.Attributes = canonical.Clone(s.Attributes)
	return out
}

// parseWorkflow checks the workflow shape. When childDTs is non-nil the key
// set must equal it exactly.
func parseWorkflow(descriptor map[string]any, childDTs []string) (Workflow, error) {
	raw, ok := descriptor[descriptorWorkflowKey].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("workflow must be an object")
	}
	if childDTs != nil && !sameKeys(raw, childDTs) {
		return nil, fmt.Errorf("workflow keys must equal the child identifier set")
	}
	wf := make(Workflow, len(raw))
	for childDT, entry := range raw {
		agreement, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("workflow entry %q must be an object", childDT)
		}
		sid, ok := agreement[agreementServiceKey].(string)
		if !ok || sid == "" {
			return nil, fmt.Errorf("workflow entry %q requires a service index", childDT)
		}
		constraint, ok := agreement[descriptorConstraintKey].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("workflow entry %q requires a constraint object", childDT)
		}
		wf[childDT] = Agreement{Service: sid, Constraint: Constraint(constraint)}
	}
	return wf, nil
}

func parseLeafTerms(descriptor map[string]any) (LeafTerms, error) {
	tid, ok := descriptor[descriptorTemplateKey].(string)
	if !ok || tid == "" {
		return LeafTerms{}, fmt.Errorf("template reference is required")
	}
	constraint, ok := descriptor[descriptorConstraintKey].(map[string]any)
	if !ok {
		return LeafTerms{}, fmt.Errorf("constraint object is required")
	}
	return LeafTerms{Template: tid, Constraint: Constraint(constraint)}, nil
}

func sameKeys(m map[string]any, keys []string) bool {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	if len(set) != len(m) {
		return false
	}
	for k := range m {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}
