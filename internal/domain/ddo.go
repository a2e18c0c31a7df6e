package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"datatoken/pkg/canonical"
)

// ProofTimeLayout is the UTC, second-precision layout of Proof.Created.
const ProofTimeLayout = "2006-01-02T15:04:05Z"

const (
	ddoDTKey       = "dt"
	ddoCreatorKey  = "creator"
	ddoMetadataKey = "metadata"
	ddoChildDTsKey = "child_dts"
	ddoServicesKey = "services"
	ddoProofKey    = "proof"

	proofCreatedKey  = "created"
	proofChecksumKey = "checksum"
)

// Proof binds a document to its canonical checksum.
type Proof struct {
	Created  string `json:"created"`
	Checksum string `json:"checksum"`
}

func (p Proof) toMap() map[string]any {
	return map[string]any{proofCreatedKey: p.Created, proofChecksumKey: p.Checksum}
}

func parseProof(raw any) (Proof, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Proof{}, fmt.Errorf("%w: proof must be an object", ErrInvalidDocument)
	}
	checksum, ok := obj[proofChecksumKey].(string)
	if !ok || checksum == "" {
		return Proof{}, fmt.Errorf("%w: proof.checksum is required", ErrInvalidDocument)
	}
	created, _ := obj[proofCreatedKey].(string)
	return Proof{Created: created, Checksum: checksum}, nil
}

func newProof(checksum string, now time.Time) Proof {
	return Proof{Created: now.UTC().Truncate(time.Second).Format(ProofTimeLayout), Checksum: checksum}
}

// DocumentBuilder assembles a DDO. Steps run in a fixed order: metadata,
// creator, services, identifier, proof. After CreateProof the builder is
// sealed and every mutator fails with ErrDocumentSealed.
//
// A builder is not safe for concurrent use.
type DocumentBuilder struct {
	dt       string
	creator  string
	metadata Metadata
	childDTs []string
	services []Service
	sealed   bool
}

func NewDocumentBuilder() *DocumentBuilder {
	return &DocumentBuilder{}
}

// AddMetadata fixes the asset type and child set. Algorithm documents must
// declare at least one child.
func (b *DocumentBuilder) AddMetadata(values map[string]any, childDTs []string) error {
	if b.sealed {
		return ErrDocumentSealed
	}
	if b.metadata != nil {
		return fmt.Errorf("%w: metadata already attached", ErrInvalidMetadata)
	}
	md, err := ParseMetadata(values)
	if err != nil {
		return err
	}
	if md.Type() == AssetAlgorithm && len(childDTs) == 0 {
		return fmt.Errorf("%w: Algorithm documents must declare child dts", ErrInvalidComposition)
	}
	seen := make(map[string]struct{}, len(childDTs))
	for _, child := range childDTs {
		if child == "" {
			return fmt.Errorf("%w: empty child dt", ErrInvalidComposition)
		}
		if _, dup := seen[child]; dup {
			return fmt.Errorf("%w: duplicate child dt %q", ErrInvalidComposition, child)
		}
		seen[child] = struct{}{}
	}
	b.metadata = md
	if childDTs != nil {
		b.childDTs = append([]string{}, childDTs...)
	}
	return nil
}

func (b *DocumentBuilder) AddCreator(address string) error {
	if b.sealed {
		return ErrDocumentSealed
	}
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("%w: creator is required", ErrInvalidDocument)
	}
	b.creator = address
	return nil
}

// AddService parses values and appends the service after checking it against
// the current type and child set.
func (b *DocumentBuilder) AddService(values map[string]any) error {
	if b.sealed {
		return ErrDocumentSealed
	}
	if b.metadata == nil {
		return ErrTypeNotSet
	}
	assetType := b.metadata.Type()
	if assetType == AssetAlgorithm && len(b.services) > 0 {
		return fmt.Errorf("%w: Algorithm documents carry a single service", ErrTooManyServices)
	}
	svc, err := ParseService(values)
	if err != nil {
		return err
	}
	for _, existing := range b.services {
		if existing.Index == svc.Index {
			return fmt.Errorf("%w: %q", ErrDuplicateIndex, svc.Index)
		}
	}
	if err := ValidateService(svc, assetType, b.childDTs); err != nil {
		return err
	}
	b.services = append(b.services, svc)
	return nil
}

// AssignDT sets the identifier. Assigning the same value twice is a no-op;
// a different value is rejected.
func (b *DocumentBuilder) AssignDT(dt string) error {
	if b.sealed {
		if dt == b.dt {
			return nil
		}
		return ErrDocumentSealed
	}
	if !HasDTPrefix(dt) {
		return fmt.Errorf("%w: %q must start with %s", ErrInvalidIdentifier, dt, DTPrefix)
	}
	if b.dt != "" && b.dt != dt {
		return fmt.Errorf("%w: %s already assigned", ErrIdentifierReassigned, b.dt)
	}
	b.dt = dt
	return nil
}

// Checksum computes the checksum the proof would carry right now.
func (b *DocumentBuilder) Checksum() (string, error) {
	if err := b.ready(); err != nil {
		return "", err
	}
	return canonical.Checksum(documentPayload(b.dt, b.creator, b.metadata, b.childDTs, b.services))
}

func (b *DocumentBuilder) ready() error {
	if b.metadata == nil {
		return ErrTypeNotSet
	}
	if b.creator == "" {
		return fmt.Errorf("%w: creator is required", ErrInvalidDocument)
	}
	if b.dt == "" {
		return fmt.Errorf("%w: dt is not assigned", ErrInvalidIdentifier)
	}
	return nil
}

// CreateProof checksums the document, seals the builder, and returns the
// frozen DDO.
func (b *DocumentBuilder) CreateProof(now time.Time) (*DDO, error) {
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

func (b *DocumentBuilder) freeze(proof Proof) *DDO {
	services := make([]Service, len(b.services))
	for i, svc := range b.services {
		services[i] = svc.clone()
	}
	var childDTs []string
	if b.childDTs != nil {
		childDTs = append([]string{}, b.childDTs...)
	}
	return &DDO{
		dt:       b.dt,
		creator:  b.creator,
		metadata: b.metadata.Clone(),
		kind:     kindOf(b.metadata.Type(), b.childDTs),
		childDTs: childDTs,
		services: services,
		proof:    proof,
	}
}

func documentPayload(dt, creator string, md Metadata, childDTs []string, services []Service) map[string]any {
	payload := map[string]any{
		ddoDTKey:       dt,
		ddoCreatorKey:  creator,
		ddoMetadataKey: map[string]any(md),
		ddoChildDTsKey: stringsValue(childDTs),
	}
	if len(services) > 0 {
		list := make([]any, len(services))
		for i, svc := range services {
			list[i] = svc.ToMap()
		}
		payload[ddoServicesKey] = list
	}
	return payload
}

func stringsValue(values []string) any {
	if values == nil {
		return nil
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// DDO is a sealed asset document. Accessors return copies.
type DDO struct {
	dt       string
	creator  string
	metadata Metadata
	kind     DocumentKind
	childDTs []string
	services []Service
	proof    Proof
}

func (d *DDO) DT() string         { return d.dt }
func (d *DDO) Creator() string    { return d.creator }
func (d *DDO) Metadata() Metadata { return d.metadata.Clone() }
func (d *DDO) Type() AssetType    { return d.metadata.Type() }
func (d *DDO) Kind() DocumentKind { return d.kind }
func (d *DDO) IsComposable() bool { return d.kind.IsComposable() }
func (d *DDO) Proof() Proof       { return d.proof }
func (d *DDO) ChildDTs() []string { return append([]string(nil), d.childDTs...) }

func (d *DDO) HasChild(dt string) bool {
	return containsString(d.childDTs, dt)
}

func (d *DDO) Services() []Service {
	out := make([]Service, len(d.services))
	for i, svc := range d.services {
		out[i] = svc.clone()
	}
	return out
}

func (d *DDO) ServiceByIndex(index string) (Service, bool) {
	for _, svc := range d.services {
		if svc.Index == index {
			return svc.clone(), true
		}
	}
	return Service{}, false
}

// RecomputeChecksum hashes the current content, ignoring the stored proof.
func (d *DDO) RecomputeChecksum() (string, error) {
	return canonical.Checksum(documentPayload(d.dt, d.creator, d.metadata, d.childDTs, d.services))
}

// ToMap renders the serialized form. services is omitted when empty.
func (d *DDO) ToMap() map[string]any {
	out := documentPayload(d.dt, d.creator, d.metadata.Clone(), d.childDTs, d.services)
	out[ddoProofKey] = d.proof.toMap()
	return out
}

// MarshalJSON exports the canonical serialized form.
func (d *DDO) MarshalJSON() ([]byte, error) {
	return canonical.Encode(d.ToMap())
}

// ImportDDO rebuilds a document through the builder and rejects it when the
// embedded checksum does not match the recomputed one.
func ImportDDO(values map[string]any) (*DDO, error) {
	if values == nil {
		return nil, fmt.Errorf("%w: document is required", ErrInvalidDocument)
	}
	normalized, err := canonical.NormalizeObject(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	dt, ok := normalized[ddoDTKey].(string)
	if !ok {
		return nil, fmt.Errorf("%w: dt must be a string", ErrInvalidIdentifier)
	}
	creator, _ := normalized[ddoCreatorKey].(string)
	metadata, ok := normalized[ddoMetadataKey].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: metadata must be an object", ErrInvalidMetadata)
	}
	childDTs, err := parseStrings(normalized[ddoChildDTsKey])
	if err != nil {
		return nil, fmt.Errorf("%w: child_dts: %v", ErrInvalidDocument, err)
	}
	proof, err := parseProof(normalized[ddoProofKey])
	if err != nil {
		return nil, err
	}

	b := NewDocumentBuilder()
	if err := b.AddMetadata(metadata, childDTs); err != nil {
		return nil, err
	}
	if err := b.AddCreator(creator); err != nil {
		return nil, err
	}
	if raw, present := normalized[ddoServicesKey]; present && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: services must be an array", ErrInvalidDocument)
		}
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: service entries must be objects", ErrInvalidService)
			}
			if err := b.AddService(obj); err != nil {
				return nil, err
			}
		}
	}
	if err := b.AssignDT(dt); err != nil {
		return nil, err
	}

	checksum, err := b.Checksum()
	if err != nil {
		return nil, err
	}
	if checksum != proof.Checksum {
		return nil, fmt.Errorf("%w: %s: embedded %s, computed %s", ErrChecksumMismatch, dt, proof.Checksum, checksum)
	}
	b.sealed = true
	return b.freeze(proof), nil
}

// ImportDDOJSON is ImportDDO over JSON text.
func ImportDDOJSON(data []byte) (*DDO, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	return ImportDDO(obj)
}

func decodeObject(data []byte) (map[string]any, error) {
	decoded, err := canonical.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrParse)
	}
	return obj, nil
}

func parseStrings(raw any) ([]string, error) {
	switch value := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, len(value))
		for i, item := range value {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("entry %d is not a string", i)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an array, got %T", raw)
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

var _ json.Marshaler = (*DDO)(nil)
