package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testLeafDT   = DTPrefix + strings.Repeat("11", 32)
	testTID      = DTPrefix + strings.Repeat("22", 32)
	testCreator  = "0x" + strings.Repeat("ab", 20)
	testProofNow = time.Date(2021, 6, 1, 12, 30, 45, 999, time.FixedZone("CEST", 2*3600))
)

func leafService(index, tid string, constraint map[string]any) map[string]any {
	return map[string]any{
		"index":    index,
		"endpoint": "https://grid.example/api",
		"descriptor": map[string]any{
			"template":   tid,
			"constraint": constraint,
		},
		"attributes": map[string]any{"price": 10},
	}
}

func buildLeaf(t *testing.T) *DDO {
	t.Helper()
	b := NewDocumentBuilder()
	require.NoError(t, b.AddMetadata(map[string]any{
		"main": map[string]any{"type": "Dataset", "name": "census", "author": "acme"},
	}, nil))
	require.NoError(t, b.AddCreator(testCreator))
	require.NoError(t, b.AddService(leafService("sid0", testTID, map[string]any{"arg1": 1, "arg2": map[string]any{}})))
	require.NoError(t, b.AssignDT(testLeafDT))
	doc, err := b.CreateProof(testProofNow)
	require.NoError(t, err)
	return doc
}

func TestDocumentBuilder_GoldenChecksum(t *testing.T) {
	doc := buildLeaf(t)

	assert.Equal(t, "a7a2583edc1dff57532f98da4c87f73b672d1e93c26d5cb4f2118705fc97c329", doc.Proof().Checksum)
	assert.Equal(t, "2021-06-01T10:30:45Z", doc.Proof().Created)
	assert.Equal(t, KindLeaf, doc.Kind())
	assert.False(t, doc.IsComposable())
}

func TestDDO_RoundTrip(t *testing.T) {
	doc := buildLeaf(t)

	exported, err := json.Marshal(doc)
	require.NoError(t, err)

	imported, err := ImportDDOJSON(exported)
	require.NoError(t, err)
	assert.Equal(t, doc.Proof(), imported.Proof())

	recomputed, err := imported.RecomputeChecksum()
	require.NoError(t, err)
	assert.Equal(t, doc.Proof().Checksum, recomputed)

	again, err := json.Marshal(imported)
	require.NoError(t, err)
	assert.Equal(t, string(exported), string(again))
}

func TestDDO_ExportOmitsEmptyServices(t *testing.T) {
	b := NewDocumentBuilder()
	require.NoError(t, b.AddMetadata(map[string]any{"main": map[string]any{"type": "Model"}}, nil))
	require.NoError(t, b.AddCreator(testCreator))
	require.NoError(t, b.AssignDT(testLeafDT))
	doc, err := b.CreateProof(testProofNow)
	require.NoError(t, err)

	out := doc.ToMap()
	_, present := out["services"]
	assert.False(t, present)
	assert.Nil(t, out["child_dts"])

	imported, err := ImportDDO(out)
	require.NoError(t, err)
	assert.Empty(t, imported.Services())
}

func TestImportDDO_DetectsTampering(t *testing.T) {
	doc := buildLeaf(t)

	tests := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"creator", func(m map[string]any) { m["creator"] = "0x" + strings.Repeat("cd", 20) }},
		{"metadata name", func(m map[string]any) {
			m["metadata"].(map[string]any)["main"].(map[string]any)["name"] = "forged"
		}},
		{"service constraint", func(m map[string]any) {
			svc := m["services"].([]any)[0].(map[string]any)
			svc["descriptor"].(map[string]any)["constraint"].(map[string]any)["arg1"] = 2
		}},
		{"service attributes", func(m map[string]any) {
			m["services"].([]any)[0].(map[string]any)["attributes"] = map[string]any{"price": 0}
		}},
		{"dt", func(m map[string]any) { m["dt"] = DTPrefix + strings.Repeat("33", 32) }},
		{"proof checksum", func(m map[string]any) {
			m["proof"].(map[string]any)["checksum"] = strings.Repeat("0", 64)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := doc.ToMap()
			tt.mutate(values)
			_, err := ImportDDO(values)
			require.ErrorIs(t, err, ErrChecksumMismatch)
		})
	}
}

func TestImportDDO_RejectsMalformedInput(t *testing.T) {
	_, err := ImportDDOJSON([]byte(`[1,2]`))
	require.ErrorIs(t, err, ErrParse)

	values := buildLeaf(t).ToMap()
	delete(values, "proof")
	_, err = ImportDDO(values)
	require.ErrorIs(t, err, ErrInvalidDocument)

	values = buildLeaf(t).ToMap()
	values["dt"] = "urn:other:1"
	_, err = ImportDDO(values)
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestDocumentBuilder_AlgorithmRules(t *testing.T) {
	algorithm := map[string]any{"main": map[string]any{"type": "Algorithm"}}

	b := NewDocumentBuilder()
	err := b.AddMetadata(algorithm, nil)
	require.ErrorIs(t, err, ErrInvalidComposition)

	child := DTPrefix + "aa"
	b = NewDocumentBuilder()
	require.NoError(t, b.AddMetadata(algorithm, []string{child}))
	workflowService := func(index string) map[string]any {
		return map[string]any{
			"index": index,
			"descriptor": map[string]any{
				"workflow": map[string]any{
					child: map[string]any{"service": "sid0", "constraint": map[string]any{"arg1": 1}},
				},
			},
		}
	}
	require.NoError(t, b.AddService(workflowService("sid0")), "algorithm services need no endpoint")
	require.ErrorIs(t, b.AddService(workflowService("sid1")), ErrTooManyServices)
}

func TestDocumentBuilder_ServiceRules(t *testing.T) {
	child := DTPrefix + "aa"
	other := DTPrefix + "bb"
	composable := map[string]any{"main": map[string]any{"type": "Dataset"}}

	b := NewDocumentBuilder()
	require.ErrorIs(t, b.AddService(leafService("sid0", testTID, map[string]any{})), ErrTypeNotSet)

	require.NoError(t, b.AddMetadata(composable, []string{child, other}))

	partial := map[string]any{
		"index":    "sid0",
		"endpoint": "https://agg.example",
		"descriptor": map[string]any{
			"workflow": map[string]any{
				child: map[string]any{"service": "sid0", "constraint": map[string]any{}},
			},
		},
	}
	require.ErrorIs(t, b.AddService(partial), ErrInvalidService, "workflow must cover every child")

	complete := map[string]any{
		"index":    "sid0",
		"endpoint": "https://agg.example",
		"descriptor": map[string]any{
			"workflow": map[string]any{
				child: map[string]any{"service": "sid0", "constraint": map[string]any{}},
				other: map[string]any{"service": "sid0", "constraint": map[string]any{}},
			},
		},
	}
	require.NoError(t, b.AddService(complete))
	require.ErrorIs(t, b.AddService(complete), ErrDuplicateIndex)

	missingConstraint := map[string]any{
		"index":    "sid1",
		"endpoint": "https://agg.example",
		"descriptor": map[string]any{
			"workflow": map[string]any{
				child: map[string]any{"service": "sid0"},
				other: map[string]any{"service": "sid0", "constraint": map[string]any{}},
			},
		},
	}
	require.ErrorIs(t, b.AddService(missingConstraint), ErrInvalidService)
}

func TestDocumentBuilder_LeafServiceRules(t *testing.T) {
	b := NewDocumentBuilder()
	require.NoError(t, b.AddMetadata(map[string]any{"main": map[string]any{"type": "Dataset"}}, nil))

	noEndpoint := leafService("sid0", testTID, map[string]any{})
	delete(noEndpoint, "endpoint")
	require.ErrorIs(t, b.AddService(noEndpoint), ErrInvalidService)

	noTemplate := leafService("sid0", "", map[string]any{})
	require.ErrorIs(t, b.AddService(noTemplate), ErrInvalidService)

	badConstraint := leafService("sid0", testTID, nil)
	require.ErrorIs(t, b.AddService(badConstraint), ErrInvalidService)

	noIndex := leafService("", testTID, map[string]any{})
	require.ErrorIs(t, b.AddService(noIndex), ErrInvalidService)
}

func TestDocumentBuilder_Identifier(t *testing.T) {
	b := NewDocumentBuilder()
	require.ErrorIs(t, b.AssignDT("did:op:1234"), ErrInvalidIdentifier)
	require.NoError(t, b.AssignDT(testLeafDT))
	require.NoError(t, b.AssignDT(testLeafDT))
	require.ErrorIs(t, b.AssignDT(DTPrefix+"ff"), ErrIdentifierReassigned)
}

func TestDocumentBuilder_SealedAfterProof(t *testing.T) {
	b := NewDocumentBuilder()
	require.NoError(t, b.AddMetadata(map[string]any{"main": map[string]any{"type": "Dataset"}}, nil))
	require.NoError(t, b.AddCreator(testCreator))
	require.NoError(t, b.AssignDT(testLeafDT))
	_, err := b.CreateProof(testProofNow)
	require.NoError(t, err)

	require.ErrorIs(t, b.AddService(leafService("sid0", testTID, map[string]any{})), ErrDocumentSealed)
	require.ErrorIs(t, b.AddCreator("0x01"), ErrDocumentSealed)
	require.ErrorIs(t, b.AssignDT(DTPrefix+"ff"), ErrDocumentSealed)
	require.NoError(t, b.AssignDT(testLeafDT))
	_, err = b.CreateProof(testProofNow)
	require.ErrorIs(t, err, ErrDocumentSealed)
}

func TestDocumentBuilder_ProofNeedsIdentity(t *testing.T) {
	b := NewDocumentBuilder()
	_, err := b.CreateProof(testProofNow)
	require.ErrorIs(t, err, ErrTypeNotSet)

	require.NoError(t, b.AddMetadata(map[string]any{"main": map[string]any{"type": "Dataset"}}, nil))
	_, err = b.CreateProof(testProofNow)
	require.ErrorIs(t, err, ErrInvalidDocument)

	require.NoError(t, b.AddCreator(testCreator))
	_, err = b.CreateProof(testProofNow)
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestDDO_AccessorsReturnCopies(t *testing.T) {
	doc := buildLeaf(t)

	services := doc.Services()
	services[0].Descriptor["constraint"] = map[string]any{}
	md := doc.Metadata()
	md["main"].(map[string]any)["name"] = "changed"

	recomputed, err := doc.RecomputeChecksum()
	require.NoError(t, err)
	assert.Equal(t, doc.Proof().Checksum, recomputed)
	assert.Equal(t, "census", doc.Metadata().Name())

	svc, ok := doc.ServiceByIndex("sid0")
	require.True(t, ok)
	terms, ok := svc.Leaf()
	require.True(t, ok)
	assert.Equal(t, testTID, terms.Template)
	_, ok = doc.ServiceByIndex("missing")
	assert.False(t, ok)
}
