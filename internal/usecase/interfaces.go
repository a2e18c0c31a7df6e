package usecase

import (
	"context"

	"datatoken/internal/domain"
)

// LedgerReader is the read side of the ledger registry. Lookups of unknown
// keys return domain.ErrNotFound.
type LedgerReader interface {
	GetToken(ctx context.Context, dt string) (*domain.TokenRecord, error)
	ListTokens(ctx context.Context) ([]domain.TokenRecord, error)
	HasPermission(ctx context.Context, dt, grantee string) (bool, error)
	Grantees(ctx context.Context, dt string) ([]string, error)
	ChildrenLinked(ctx context.Context, cdt string, children []string) (bool, error)
	GetTemplate(ctx context.Context, tid string) (*domain.TemplateRecord, error)
	GetEnterprise(ctx context.Context, address string) (*domain.Enterprise, error)
	GetTask(ctx context.Context, taskID int64) (*domain.Task, error)
	GetJob(ctx context.Context, jobID int64) (*domain.Job, error)
	JobsByCDT(ctx context.Context, cdt string) ([]domain.Job, error)
	Stats(ctx context.Context) (domain.LedgerStats, error)
}

// LedgerWriter is the write side. The returned error is reserved for
// transport or storage failures; business outcomes come back as a code.
type LedgerWriter interface {
	MintToken(ctx context.Context, issuer string, record domain.TokenRecord) (domain.ResultCode, error)
	Grant(ctx context.Context, caller, dt, grantee string) (domain.ResultCode, error)
	Activate(ctx context.Context, caller, cdt string, children []string) (domain.ResultCode, error)
	PublishTemplate(ctx context.Context, record domain.TemplateRecord) (domain.ResultCode, error)
	RegisterEnterprise(ctx context.Context, enterprise domain.Enterprise) (domain.ResultCode, error)
	CreateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	AddJob(ctx context.Context, job domain.Job) (domain.Job, domain.ResultCode, error)
}

type Ledger interface {
	LedgerReader
	LedgerWriter
}

// ContentStore is a content-addressed blob store for serialized documents.
// Get of an unknown locator returns domain.ErrNotFound.
type ContentStore interface {
	Put(ctx context.Context, document []byte) (string, error)
	Get(ctx context.Context, locator string) ([]byte, error)
}

// SignatureVerifier recovers the address that signed message.
type SignatureVerifier interface {
	Recover(message string, signature string) (string, error)
}

type AuthorizationPolicy interface {
	Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error)
}
