package usecase

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"datatoken/internal/domain"
	"datatoken/internal/pkg/logger"
)

// TraceNode is one hop of a provenance path. Which fields are set depends on
// the hop: union paths carry names and aggregators, lifecycle paths end in a
// job.
type TraceNode struct {
	DT         string           `json:"dt,omitempty"`
	Name       string           `json:"name,omitempty"`
	Type       domain.AssetType `json:"type,omitempty"`
	Aggregator string           `json:"aggregator,omitempty"`
	Job        *JobTrace        `json:"job,omitempty"`
}

type JobTrace struct {
	JobID           int64  `json:"job_id"`
	TaskID          int64  `json:"task_id"`
	TaskName        string `json:"task_name"`
	TaskDescription string `json:"task_desc"`
	Solver          string `json:"solver"`
	Demander        string `json:"demander"`
}

type Tracer struct {
	Ledger   LedgerReader
	Resolver AssetSource
	Logger   *zap.Logger
}

// TraceDataUnion lists every path from doc down to a leaf. Composable hops
// name the aggregator that owns them; the last hop is the leaf with its type.
func (t *Tracer) TraceDataUnion(ctx context.Context, doc *domain.DDO) ([][]TraceNode, error) {
	var paths [][]TraceNode
	root := []TraceNode{{DT: doc.DT(), Name: doc.Metadata().Name()}}
	err := t.union(ctx, doc, root, map[string]bool{doc.DT(): true}, &paths)
	return paths, err
}

func (t *Tracer) union(ctx context.Context, doc *domain.DDO, prefix []TraceNode, stack map[string]bool, paths *[][]TraceNode) error {
	for _, childDT := range doc.ChildDTs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if stack[childDT] {
			t.log().Debug("union trace revisits ancestor", zap.String("dt", childDT))
			continue
		}
		record, child, err := t.Resolver.ResolveAsset(ctx, childDT)
		if err != nil {
			t.log().Debug("union trace child unresolved", zap.String("dt", childDT), zap.Error(err))
			continue
		}
		path := extend(prefix, TraceNode{DT: childDT, Name: child.Metadata().Name()})
		if !child.IsComposable() {
			path[len(path)-1].Type = child.Type()
			*paths = append(*paths, path)
			continue
		}
		path[len(path)-1].Aggregator = t.displayName(ctx, record.Owner)
		stack[childDT] = true
		err = t.union(ctx, child, path, stack, paths)
		delete(stack, childDT)
		if err != nil {
			return err
		}
	}
	return nil
}

// TraceDTLifecycle follows grants upward from dt. Each path ends at an
// Algorithm cdt with one path per job submitted with it.
func (t *Tracer) TraceDTLifecycle(ctx context.Context, dt string) ([][]TraceNode, error) {
	if _, _, err := t.Resolver.ResolveAsset(ctx, dt); err != nil {
		return nil, err
	}
	var paths [][]TraceNode
	err := t.lifecycle(ctx, dt, []TraceNode{{DT: dt}}, map[string]bool{dt: true}, &paths)
	return paths, err
}

func (t *Tracer) lifecycle(ctx context.Context, dt string, prefix []TraceNode, stack map[string]bool, paths *[][]TraceNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, doc, err := t.Resolver.ResolveAsset(ctx, dt)
	if err != nil {
		t.log().Debug("lifecycle trace unresolved", zap.String("dt", dt), zap.Error(err))
		return nil
	}
	if doc.Type() == domain.AssetAlgorithm {
		jobs, err := t.Ledger.JobsByCDT(ctx, dt)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			trace := &JobTrace{JobID: job.ID, TaskID: job.TaskID, Solver: t.displayName(ctx, job.Solver)}
			if task, err := t.Ledger.GetTask(ctx, job.TaskID); err == nil {
				trace.TaskName = task.Name
				trace.TaskDescription = task.Description
				trace.Demander = t.displayName(ctx, task.Demander)
			}
			*paths = append(*paths, extend(prefix, TraceNode{Job: trace}))
		}
		return nil
	}

	grantees, err := t.Ledger.Grantees(ctx, dt)
	if err != nil {
		return err
	}
	sort.Strings(grantees)
	for _, cdt := range grantees {
		if stack[cdt] {
			continue
		}
		node := TraceNode{DT: cdt}
		if record, err := t.Ledger.GetToken(ctx, cdt); err == nil {
			node.Aggregator = t.displayName(ctx, record.Owner)
		}
		stack[cdt] = true
		err := t.lifecycle(ctx, cdt, extend(prefix, node), stack, paths)
		delete(stack, cdt)
		if err != nil {
			return err
		}
	}
	return nil
}

// Stats reports marketplace counters.
func (t *Tracer) Stats(ctx context.Context) (domain.LedgerStats, error) {
	return t.Ledger.Stats(ctx)
}

// displayName is the registered enterprise name, or the address itself.
func (t *Tracer) displayName(ctx context.Context, address string) string {
	if name := enterpriseName(ctx, t.Ledger, address, t.log()); name != "" {
		return name
	}
	return address
}

func (t *Tracer) log() *zap.Logger {
	return logger.OrNop(t.Logger)
}

func extend(prefix []TraceNode, node TraceNode) []TraceNode {
	out := make([]TraceNode, len(prefix), len(prefix)+1)
	copy(out, prefix)
	return append(out, node)
}
