package domain

import (
	"fmt"
	"strings"
	"time"

	"datatoken/pkg/canonical"
)

const (
	templateTIDKey       = "tid"
	templateOperationKey = "operation"
	templateParamsKey    = "params"
)

// TemplateBuilder assembles an OpTemplate with the same seal-on-proof
// discipline as DocumentBuilder.
type TemplateBuilder struct {
	tid       string
	creator   string
	metadata  Metadata
	operation string
	params    map[string]any
	hasBody   bool
	sealed    bool
}

func NewTemplateBuilder() *TemplateBuilder {
	return &TemplateBuilder{}
}

func (b *TemplateBuilder) AssignTID(tid string) error {
	if b.sealed {
		if tid == b.tid {
			return nil
		}
		return ErrDocumentSealed
	}
	if !HasDTPrefix(tid) {
		return fmt.Errorf("%w: %q must start with %s", ErrInvalidIdentifier, tid, DTPrefix)
	}
	if b.tid != "" && b.tid != tid {
		return fmt.Errorf("%w: %s already assigned", ErrIdentifierReassigned, b.tid)
	}
	b.tid = tid
	return nil
}

func (b *TemplateBuilder) AddCreator(address string) error {
	if b.sealed {
		return ErrDocumentSealed
	}
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("%w: creator is required", ErrInvalidDocument)
	}
	b.creator = address
	return nil
}

// AddMetadata accepts only Operation metadata.
func (b *TemplateBuilder) AddMetadata(values map[string]any) error {
	if b.sealed {
		return ErrDocumentSealed
	}
	md, err := ParseMetadata(values)
	if err != nil {
		return err
	}
	if md.Type() != AssetOperation {
		return fmt.Errorf("%w: templates must be of type %s, got %s", ErrInvalidMetadata, AssetOperation, md.Type())
	}
	b.metadata = md
	return nil
}

// AddTemplate sets the trusted code and its declared parameter names.
func (b *TemplateBuilder) AddTemplate(operation string, params map[string]any) error {
	if b.sealed {
		return ErrDocumentSealed
	}
	if b.metadata == nil {
		return ErrMetadataMissing
	}
	if params == nil {
		params = map[string]any{}
	}
	normalized, err := canonical.NormalizeObject(params)
	if err != nil {
		return fmt.Errorf("%w: params: %v", ErrInvalidDocument, err)
	}
	b.operation = operation
	b.params = normalized
	b.hasBody = true
	return nil
}

func (b *TemplateBuilder) Checksum() (string, error) {
	if b.metadata == nil {
		return "", ErrMetadataMissing
	}
	if !b.hasBody {
		return "", fmt.Errorf("%w: operation is not set", ErrInvalidDocument)
	}
	if b.creator == "" {
		return "", fmt.Errorf("%w: creator is required", ErrInvalidDocument)
	}
	if b.tid == "" {
		return "", fmt.Errorf("%w: tid is not assigned", ErrInvalidIdentifier)
	}
	return canonical.Checksum(templatePayload(b.tid, b.creator, b.metadata, b.operation, b.params))
}

func (b *TemplateBuilder) CreateProof(now time.Time) (*OpTemplate, error) {
	if b.sealed {
		return nil, ErrDocumentSealed
	}
	checksum, err := b.Checksum()
	if err != nil {
		return nil, err
	}
	b.sealed = true
	return b.freeze(newProof(checksum, now)), nil
}

func (b *TemplateBuilder) freeze(proof Proof) *OpTemplate {
	return &OpTemplate{
		tid:       b.tid,
		creator:   b.creator,
		metadata:  b.metadata.Clone(),
		operation: b.operation,
		params:    canonical.CloneObject(b.params),
		proof:     proof,
	}
}

func templatePayload(tid, creator string, md Metadata, operation string, params map[string]any) map[string]any {
	return map[string]any{
		templateTIDKey:       tid,
		ddoCreatorKey:        creator,
		ddoMetadataKey:       map[string]any(md),
		templateOperationKey: operation,
		templateParamsKey:    params,
	}
}

// OpTemplate is a sealed operation template: trusted code plus the argument
// names every leaf constraint using it must provide.
type OpTemplate struct {
	tid       string
	creator   string
	metadata  Metadata
	operation string
	params    map[string]any
	proof     Proof
}

func (t *OpTemplate) TID() string            { return t.tid }
func (t *OpTemplate) Creator() string        { return t.creator }
func (t *OpTemplate) Metadata() Metadata     { return t.metadata.Clone() }
func (t *OpTemplate) Operation() string      { return t.operation }
func (t *OpTemplate) Params() map[string]any { return canonical.CloneObject(t.params) }
func (t *OpTemplate) Proof() Proof           { return t.proof }
func (t *OpTemplate) Name() string           { return t.metadata.Name() }

func (t *OpTemplate) RecomputeChecksum() (string, error) {
	return canonical.Checksum(templatePayload(t.tid, t.creator, t.metadata, t.operation, t.params))
}

func (t *OpTemplate) ToMap() map[string]any {
	out := templatePayload(t.tid, t.creator, t.metadata.Clone(), t.operation, canonical.CloneObject(t.params))
	out[ddoProofKey] = t.proof.toMap()
	return out
}

func (t *OpTemplate) MarshalJSON() ([]byte, error) {
	return canonical.Encode(t.ToMap())
}

// ImportTemplate rebuilds a template and verifies its embedded checksum.
func ImportTemplate(values map[string]any) (*OpTemplate, error) {
	if values == nil {
		return nil, fmt.Errorf("%w: template is required", ErrInvalidDocument)
	}
	normalized, err := canonical.NormalizeObject(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	tid, ok := normalized[templateTIDKey].(string)
	if !ok {
		return nil, fmt.Errorf("%w: tid must be a string", ErrInvalidIdentifier)
	}
	creator, _ := normalized[ddoCreatorKey].(string)
	metadata, ok := normalized[ddoMetadataKey].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: metadata must be an object", ErrInvalidMetadata)
	}
	operation, ok := normalized[templateOperationKey].(string)
	if !ok {
		return nil, fmt.Errorf("%w: operation must be a string", ErrInvalidDocument)
	}
	params, ok := normalized[templateParamsKey].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: params must be an object", ErrInvalidDocument)
	}
	proof, err := parseProof(normalized[ddoProofKey])
	if err != nil {
		return nil, err
	}

	b := NewTemplateBuilder()
	if err := b.AssignTID(tid); err != nil {
		return nil, err
	}
	if err := b.AddCreator(creator); err != nil {
		return nil, err
	}
	if err := b.AddMetadata(metadata); err != nil {
		return nil, err
	}
	if err := b.AddTemplate(operation, params); err != nil {
		return nil, err
	}
	checksum, err := b.Checksum()
	if err != nil {
		return nil, err
	}
	if checksum != proof.Checksum {
		return nil, fmt.Errorf("%w: %s: embedded %s, computed %s", ErrChecksumMismatch, tid, proof.Checksum, checksum)
	}
	b.sealed = true
	return b.freeze(proof), nil
}

func ImportTemplateJSON(data []byte) (*OpTemplate, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	return ImportTemplate(obj)
}
