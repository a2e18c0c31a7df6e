package policyopa

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"datatoken/internal/domain"
)

const blockedIssuer = "0xBadBadBadBadBadBadBadBadBadBadBadBadBad0"

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewDefaultEngine(context.Background(), []string{blockedIssuer})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func baseInput() domain.PolicyInput {
	return domain.PolicyInput{
		Action:    domain.ActionRemoteCompute,
		CDT:       domain.DTPrefix + strings.Repeat("aa", 32),
		DT:        domain.DTPrefix + strings.Repeat("bb", 32),
		JobID:     1,
		AssetType: domain.AssetAlgorithm,
		Requester: "0x" + strings.Repeat("12", 20),
		Checks:    map[string]bool{"owner": true, "signature": true, "integrity": true},
	}
}

func denyCodes(result domain.PolicyResult) []string {
	codes := make([]string, 0, len(result.Deny))
	for _, d := range result.Deny {
		codes = append(codes, d.Code)
	}
	return codes
}

func TestEngineDeterministic(t *testing.T) {
	engine := newEngine(t)
	first, err := engine.Evaluate(context.Background(), baseInput())
	if err != nil {
		t.Fatalf("evaluate first: %v", err)
	}
	second, err := engine.Evaluate(context.Background(), baseInput())
	if err != nil {
		t.Fatalf("evaluate second: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected deterministic policy evaluation")
	}
	if !first.Result.Allow || len(first.Result.Deny) != 0 {
		t.Fatalf("expected allow for baseline input, got %+v", first.Result)
	}
	if first.BundleHash == "" || first.BundleHash != engine.BundleHash() {
		t.Fatal("expected bundle hash to be set")
	}
}

func TestEnginePolicyDenies(t *testing.T) {
	engine := newEngine(t)
	tests := []struct {
		name   string
		mutate func(input *domain.PolicyInput)
		want   []string
	}{
		{
			name:   "failed check",
			mutate: func(input *domain.PolicyInput) { input.Checks["signature"] = false },
			want:   []string{"CHECK_FAILED"},
		},
		{
			name:   "remote compute on dataset",
			mutate: func(input *domain.PolicyInput) { input.AssetType = domain.AssetDataset },
			want:   []string{"NOT_ALGORITHM"},
		},
		{
			name:   "blocked issuer any case",
			mutate: func(input *domain.PolicyInput) { input.Requester = strings.ToLower(blockedIssuer) },
			want:   []string{"ISSUER_BLOCKED"},
		},
		{
			name:   "unknown action",
			mutate: func(input *domain.PolicyInput) { input.Action = "transfer" },
			want:   []string{"UNKNOWN_ACTION"},
		},
		{
			name: "several reasons sorted",
			mutate: func(input *domain.PolicyInput) {
				input.Checks["owner"] = false
				input.AssetType = domain.AssetModel
			},
			want: []string{"CHECK_FAILED", "NOT_ALGORITHM"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := baseInput()
			tt.mutate(&input)
			eval, err := engine.Evaluate(context.Background(), input)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if eval.Result.Allow {
				t.Fatal("expected deny")
			}
			if got := denyCodes(eval.Result); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEngineServiceTermsIgnoresAssetType(t *testing.T) {
	engine := newEngine(t)
	input := baseInput()
	input.Action = domain.ActionServiceTerms
	input.AssetType = domain.AssetDataset
	eval, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !eval.Result.Allow {
		t.Fatalf("expected allow, got %+v", eval.Result.Deny)
	}
}

func TestEngineFromBundlePath(t *testing.T) {
	dir := t.TempDir()
	src, err := defaultPolicy.ReadFile("policy/authz.rego")
	if err != nil {
		t.Fatalf("read embedded policy: %v", err)
	}
	writeFile(t, filepath.Join(dir, "authz.rego"), string(src))
	writeFile(t, filepath.Join(dir, "data.json"), `{"datatoken":{"config":{"blocked_issuers":["`+blockedIssuer+`"]}}}`)

	engine, err := NewEngineFromBundlePath(context.Background(), dir)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	input := baseInput()
	input.Requester = blockedIssuer
	eval, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got := denyCodes(eval.Result); !reflect.DeepEqual(got, []string{"ISSUER_BLOCKED"}) {
		t.Fatalf("unexpected deny codes %v", got)
	}
}

func TestEngineRejectsForbiddenBuiltins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "authz.rego"), `package datatoken.authz

import rego.v1

result := {"allow": time.now_ns() > 0, "deny": []}
`)
	if _, err := NewEngineFromBundlePath(context.Background(), dir); err == nil {
		t.Fatal("expected policy using time.now_ns to be rejected")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
