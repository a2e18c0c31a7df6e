package policyopa

import (
	"cmp"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"strings"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"

	"datatoken/internal/domain"
	"datatoken/internal/usecase"
)

const resultQuery = "data.datatoken.authz.result"

//go:embed policy/*.rego
var defaultPolicy embed.FS

// Engine evaluates authorization requests against a prepared rego query.
type Engine struct {
	prepared rego.PreparedEvalQuery
	hash     string
}

var _ usecase.AuthorizationPolicy = (*Engine)(nil)

// NewEngineFromBundlePath loads every policy and data file under bundlePath.
func NewEngineFromBundlePath(ctx context.Context, bundlePath string) (*Engine, error) {
	hash, err := ComputeBundleHashFromPath(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("hash bundle %s: %w", bundlePath, err)
	}
	return compile(ctx, hash, rego.Load([]string{bundlePath}, nil))
}

// NewDefaultEngine evaluates the built-in policy. Requests from
// blockedIssuers are denied.
func NewDefaultEngine(ctx context.Context, blockedIssuers []string) (*Engine, error) {
	hash, err := ComputeBundleHashFromFS(defaultPolicy, "policy")
	if err != nil {
		return nil, err
	}
	names, err := fs.Glob(defaultPolicy, "policy/*.rego")
	if err != nil {
		return nil, err
	}

	blocked := make([]any, len(blockedIssuers))
	for i, issuer := range blockedIssuers {
		blocked[i] = issuer
	}
	opts := []func(*rego.Rego){
		rego.Store(inmem.NewFromObject(map[string]any{
			"datatoken": map[string]any{
				"config": map[string]any{"blocked_issuers": blocked},
			},
		})),
	}
	for _, name := range names {
		src, err := defaultPolicy.ReadFile(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rego.Module(name, string(src)))
	}
	return compile(ctx, hash, opts...)
}

func compile(ctx context.Context, hash string, sources ...func(*rego.Rego)) (*Engine, error) {
	caps := ast.CapabilitiesForThisVersion()
	caps.Builtins = filterBuiltins(caps.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(caps)

	opts := append([]func(*rego.Rego){
		rego.Query(resultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
	}, sources...)
	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	if bad := disallowedCalls(compiler); len(bad) > 0 {
		return nil, fmt.Errorf("forbidden builtins: %s", strings.Join(bad, ", "))
	}
	return &Engine{prepared: prepared, hash: hash}, nil
}

// disallowedCalls lists, sorted, the builtins called by compiled modules
// that are outside allowedBuiltins.
func disallowedCalls(compiler *ast.Compiler) []string {
	seen := map[string]bool{}
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			_, builtin := ast.BuiltinMap[name]
			_, allowed := allowedBuiltins[name]
			if builtin && !allowed {
				seen[name] = true
			}
			return false
		})
	}
	return slices.Sorted(maps.Keys(seen))
}

// BundleHash identifies the policy sources the engine was built from.
func (e *Engine) BundleHash() string {
	return e.hash
}

func (e *Engine) Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error) {
	if e == nil {
		return domain.PolicyEvaluation{}, errors.New("policy engine is nil")
	}
	rs, err := e.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyEvaluation{}, fmt.Errorf("evaluate policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return domain.PolicyEvaluation{}, errors.New("empty policy result")
	}

	var result domain.PolicyResult
	raw, err := json.Marshal(rs[0].Expressions[0].Value)
	if err == nil {
		err = json.Unmarshal(raw, &result)
	}
	if err != nil {
		return domain.PolicyEvaluation{}, fmt.Errorf("decode policy result: %w", err)
	}
	slices.SortFunc(result.Deny, func(a, b domain.PolicyDeny) int {
		return cmp.Or(cmp.Compare(a.Code, b.Code), cmp.Compare(a.Message, b.Message))
	})
	return domain.PolicyEvaluation{BundleHash: e.hash, Result: result}, nil
}
