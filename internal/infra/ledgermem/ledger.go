package ledgermem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"datatoken/internal/domain"
	"datatoken/internal/usecase"
)

// Ledger is an in-process registry with the same result-code semantics as
// the database ledger. Addresses compare case-insensitively.
type Ledger struct {
	mu          sync.RWMutex
	now         func() time.Time
	tokens      map[string]domain.TokenRecord
	grants      map[string]map[string]bool
	templates   map[string]domain.TemplateRecord
	enterprises map[string]domain.Enterprise
	tasks       map[int64]domain.Task
	jobs        map[int64]domain.Job
	nextTask    int64
	nextJob     int64
}

func New() *Ledger {
	return &Ledger{
		now:         time.Now,
		tokens:      make(map[string]domain.TokenRecord),
		grants:      make(map[string]map[string]bool),
		templates:   make(map[string]domain.TemplateRecord),
		enterprises: make(map[string]domain.Enterprise),
		tasks:       make(map[int64]domain.Task),
		jobs:        make(map[int64]domain.Job),
	}
}

func addrKey(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func (l *Ledger) GetToken(ctx context.Context, dt string) (*domain.TokenRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	record, ok := l.tokens[dt]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (l *Ledger) ListTokens(ctx context.Context) ([]domain.TokenRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.TokenRecord, 0, len(l.tokens))
	for _, record := range l.tokens {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DT < out[j].DT })
	return out, nil
}

func (l *Ledger) HasPermission(ctx context.Context, dt, grantee string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.grants[dt][grantee], nil
}

func (l *Ledger) Grantees(ctx context.Context, dt string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.grants[dt]))
	for grantee := range l.grants[dt] {
		out = append(out, grantee)
	}
	sort.Strings(out)
	return out, nil
}

func (l *Ledger) ChildrenLinked(ctx context.Context, cdt string, children []string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	record, ok := l.tokens[cdt]
	if !ok || !record.Activated {
		return false, nil
	}
	for _, child := range children {
		if !l.grants[child][cdt] {
			return false, nil
		}
	}
	return true, nil
}

func (l *Ledger) GetTemplate(ctx context.Context, tid string) (*domain.TemplateRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	record, ok := l.templates[tid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (l *Ledger) GetEnterprise(ctx context.Context, address string) (*domain.Enterprise, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ent, ok := l.enterprises[addrKey(address)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ent, nil
}

func (l *Ledger) GetTask(ctx context.Context, taskID int64) (*domain.Task, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	task, ok := l.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &task, nil
}

func (l *Ledger) GetJob(ctx context.Context, jobID int64) (*domain.Job, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	job, ok := l.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

func (l *Ledger) JobsByCDT(ctx context.Context, cdt string) ([]domain.Job, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Job
	for _, job := range l.jobs {
		if job.CDT == cdt {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *Ledger) Stats(ctx context.Context) (domain.LedgerStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.LedgerStats{
		Tokens:    int64(len(l.tokens)),
		Templates: int64(len(l.templates)),
		Tasks:     int64(len(l.tasks)),
		Jobs:      int64(len(l.jobs)),
	}, nil
}

// MintToken registers a document. The issuer must be a registered
// enterprise.
func (l *Ledger) MintToken(ctx context.Context, issuer string, record domain.TokenRecord) (domain.ResultCode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.enterprises[addrKey(issuer)]; !ok {
		return domain.ResultNoPermission, nil
	}
	if _, ok := l.tokens[record.DT]; ok {
		return domain.ResultAlreadyExists, nil
	}
	record.Issuer = issuer
	record.Activated = false
	if record.CreatedAt.IsZero() {
		record.CreatedAt = l.now().UTC()
	}
	l.tokens[record.DT] = record
	return domain.ResultSuccess, nil
}

// Grant lets grantee use dt. Only the owner of dt may grant.
func (l *Ledger) Grant(ctx context.Context, caller, dt, grantee string) (domain.ResultCode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.tokens[dt]
	if !ok {
		return domain.ResultNotFound, nil
	}
	if _, ok := l.tokens[grantee]; !ok {
		return domain.ResultNotFound, nil
	}
	if addrKey(record.Owner) != addrKey(caller) {
		return domain.ResultNoPermission, nil
	}
	if l.grants[dt][grantee] {
		return domain.ResultAlreadyExists, nil
	}
	if l.grants[dt] == nil {
		l.grants[dt] = make(map[string]bool)
	}
	l.grants[dt][grantee] = true
	return domain.ResultSuccess, nil
}

// Activate marks a composable token usable once every child has granted it.
func (l *Ledger) Activate(ctx context.Context, caller, cdt string, children []string) (domain.ResultCode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.tokens[cdt]
	if !ok {
		return domain.ResultNotFound, nil
	}
	if addrKey(record.Owner) != addrKey(caller) || record.IsLeaf {
		return domain.ResultNoPermission, nil
	}
	if record.Activated {
		return domain.ResultAlreadyExists, nil
	}
	for _, child := range children {
		if !l.grants[child][cdt] {
			return domain.ResultNoPermission, nil
		}
	}
	record.Activated = true
	l.tokens[cdt] = record
	return domain.ResultSuccess, nil
}

// PublishTemplate inserts or updates a template. Updates are limited to the
// original publisher.
func (l *Ledger) PublishTemplate(ctx context.Context, record domain.TemplateRecord) (domain.ResultCode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.templates[record.TID]; ok && addrKey(existing.Publisher) != addrKey(record.Publisher) {
		return domain.ResultNoPermission, nil
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = l.now().UTC()
	}
	l.templates[record.TID] = record
	return domain.ResultSuccess, nil
}

func (l *Ledger) RegisterEnterprise(ctx context.Context, ent domain.Enterprise) (domain.ResultCode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enterprises[addrKey(ent.Address)] = ent
	return domain.ResultSuccess, nil
}

func (l *Ledger) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextTask++
	task.ID = l.nextTask
	l.tasks[task.ID] = task
	return task, nil
}

func (l *Ledger) AddJob(ctx context.Context, job domain.Job) (domain.Job, domain.ResultCode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tasks[job.TaskID]; !ok {
		return domain.Job{}, domain.ResultNotFound, nil
	}
	if _, ok := l.tokens[job.CDT]; !ok {
		return domain.Job{}, domain.ResultNotFound, nil
	}
	l.nextJob++
	job.ID = l.nextJob
	l.jobs[job.ID] = job
	return job, domain.ResultSuccess, nil
}

// Tamper overwrites the stored checksum of dt so the ledger and the stored
// content disagree.
func (l *Ledger) Tamper(dt, checksum string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.tokens[dt]
	if !ok {
		return false
	}
	record.Checksum = checksum
	l.tokens[dt] = record
	return true
}

var _ usecase.Ledger = (*Ledger)(nil)
