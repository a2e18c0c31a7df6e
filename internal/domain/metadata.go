package domain

import (
	"fmt"

	"datatoken/pkg/canonical"
)

type AssetType string

const (
	AssetDataset   AssetType = "Dataset"
	AssetModel     AssetType = "Model"
	AssetAlgorithm AssetType = "Algorithm"
	AssetOperation AssetType = "Operation"
)

var knownAssetTypes = map[AssetType]struct{}{
	AssetDataset:   {},
	AssetModel:     {},
	AssetAlgorithm: {},
	AssetOperation: {},
}

const metadataMainKey = "main"

// Metadata is the normalized metadata mapping of a document. The `main`
// section carries type, and optionally author, created, license, name and desc.
type Metadata map[string]any

// ParseMetadata normalizes values and checks the mandatory main.type field.
func ParseMetadata(values map[string]any) (Metadata, error) {
	if values == nil {
		return nil, fmt.Errorf("%w: metadata is required", ErrInvalidMetadata)
	}
	normalized, err := canonical.NormalizeObject(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	md := Metadata(normalized)
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return md, nil
}

func (m Metadata) Validate() error {
	main := m.main()
	if len(main) == 0 {
		return fmt.Errorf("%w: main section is required", ErrInvalidMetadata)
	}
	raw, ok := main["type"]
	if !ok || raw == nil {
		return fmt.Errorf("%w: main.type is required", ErrInvalidMetadata)
	}
	typ, ok := raw.(string)
	if !ok {
		return fmt.Errorf("%w: main.type must be a string", ErrInvalidMetadata)
	}
	if _, ok := knownAssetTypes[AssetType(typ)]; !ok {
		return fmt.Errorf("%w: unknown asset type %q", ErrInvalidMetadata, typ)
	}
	return nil
}

func (m Metadata) main() map[string]any {
	main, _ := m[metadataMainKey].(map[string]any)
	return main
}

func (m Metadata) Type() AssetType {
	typ, _ := m.main()["type"].(string)
	return AssetType(typ)
}

func (m Metadata) Name() string    { return m.mainString("name") }
func (m Metadata) Author() string  { return m.mainString("author") }
func (m Metadata) License() string { return m.mainString("license") }
func (m Metadata) Created() string { return m.mainString("created") }

func (m Metadata) Description() string {
	if desc := m.mainString("desc"); desc != "" {
		return desc
	}
	return m.mainString("description")
}

func (m Metadata) mainString(key string) string {
	v, _ := m.main()[key].(string)
	return v
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	return Metadata(canonical.CloneObject(m))
}
