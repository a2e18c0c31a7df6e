package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datatoken/internal/domain"
	"datatoken/pkg/canonical"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestChecksumCommand(t *testing.T) {
	want, err := canonical.ChecksumJSON([]byte(`{"a":1,"b":"x"}`))
	require.NoError(t, err)

	out, err := execute(t, `{ "b": "x", "a": 1 }`, "checksum")
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(out))

	out, err = execute(t, `{ "b": "x", "a": 1 }`, "checksum", "--canonical")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":"x"}`, strings.TrimSpace(out))

	_, err = execute(t, `{`, "checksum")
	assert.Error(t, err)
}

func TestDTParseCommand(t *testing.T) {
	dt := domain.NewDT()
	out, err := execute(t, "", "dt", "parse", dt)
	require.NoError(t, err)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.True(t, strings.HasPrefix(dt, domain.DTScheme+":"+parsed["method"]+":"), dt)
	assert.Len(t, strings.TrimPrefix(parsed["bytes"], "0x"), 64)

	_, err = execute(t, "", "dt", "parse", "nonsense")
	assert.Error(t, err)
}

func TestDDOImportCommand(t *testing.T) {
	b := domain.NewDocumentBuilder()
	require.NoError(t, b.AddMetadata(map[string]any{"main": map[string]any{"type": "Dataset", "name": "rain"}}, nil))
	require.NoError(t, b.AddCreator("0x"+strings.Repeat("ab", 20)))
	require.NoError(t, b.AssignDT(domain.NewDT()))
	doc, err := b.CreateProof(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	raw, err := doc.MarshalJSON()
	require.NoError(t, err)

	out, err := execute(t, string(raw), "ddo", "import")
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, doc.DT(), summary["dt"])
	assert.Equal(t, "rain", summary["name"])
	assert.Equal(t, doc.Proof().Checksum, summary["checksum"])

	tampered := strings.Replace(string(raw), `"rain"`, `"snow"`, 1)
	_, err = execute(t, tampered, "ddo", "import")
	assert.ErrorIs(t, err, domain.ErrChecksumMismatch)
}
