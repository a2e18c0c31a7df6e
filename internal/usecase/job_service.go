package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"datatoken/internal/domain"
	"datatoken/internal/pkg/logger"
)

type JobService struct {
	Ledger   Ledger
	Resolver *Resolver
	Verifier *Verifier
	Policy   AuthorizationPolicy
	Logger   *zap.Logger
}

func (s *JobService) CreateTask(ctx context.Context, demander, name, description string) (domain.Task, error) {
	if strings.TrimSpace(demander) == "" || strings.TrimSpace(name) == "" {
		return domain.Task{}, fmt.Errorf("%w: task needs a demander and a name", domain.ErrInvalidDocument)
	}
	task, err := s.Ledger.CreateTask(ctx, domain.Task{Demander: demander, Name: name, Description: description})
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	s.log().Info("task created", zap.Int64("task_id", task.ID), zap.String("demander", demander))
	return task, nil
}

// AddJob submits an Algorithm cdt as a solution to a task.
func (s *JobService) AddJob(ctx context.Context, solver string, taskID int64, cdt string) (domain.Job, error) {
	if _, err := domain.DTToIDBytes(cdt); err != nil {
		return domain.Job{}, err
	}
	job, code, err := s.Ledger.AddJob(ctx, domain.Job{Solver: solver, TaskID: taskID, CDT: cdt})
	if err != nil {
		return domain.Job{}, fmt.Errorf("add job: %w", err)
	}
	if code != domain.ResultSuccess {
		return domain.Job{}, fmt.Errorf("add job to task %d: %w", taskID, code.Err())
	}
	s.log().Info("job added", zap.Int64("job_id", job.ID), zap.Int64("task_id", taskID), zap.String("cdt", cdt))
	return job, nil
}

type RemoteComputeRequest struct {
	CDT       string `json:"cdt"`
	DT        string `json:"dt"`
	JobID     int64  `json:"job_id"`
	Owner     string `json:"owner"`
	Signature string `json:"signature"`
}

// CheckRemoteCompute decides whether dt's owner should run a registered job.
// The solver signs "<issuer><job id>" and the cdt must be an activated
// Algorithm document that includes dt.
func (s *JobService) CheckRemoteCompute(ctx context.Context, req RemoteComputeRequest) domain.Authorization {
	checks := map[string]bool{}
	checks[CheckJobRegistered] = s.Verifier.VerifyJobRegistered(ctx, req.JobID, req.CDT)
	if !checks[CheckJobRegistered] {
		return rejected("job is not registered for the cdt", checks)
	}
	checks[CheckOwner] = s.Verifier.CheckDTOwner(ctx, req.DT, req.Owner)
	if !checks[CheckOwner] {
		return rejected("dt is not owned by the requester", checks)
	}
	record, cdtDoc, err := s.Resolver.ResolveAsset(ctx, req.CDT)
	checks[CheckResolved] = err == nil
	if err != nil {
		s.log().Debug("cdt unresolved", zap.String("cdt", req.CDT), zap.Error(err))
		return rejected("cdt cannot be resolved", checks)
	}
	checks[CheckAssetType] = s.Verifier.CheckAssetType(cdtDoc, domain.AssetAlgorithm)
	if !checks[CheckAssetType] {
		return rejected("cdt is not an algorithm", checks)
	}
	issuer := record.Issuer
	checks[CheckSignature] = s.Verifier.VerifySignature(issuer, req.Signature, issuer+strconv.FormatInt(req.JobID, 10))
	if !checks[CheckSignature] {
		return rejected("signature does not match the cdt issuer", checks)
	}
	checks[CheckIntegrity] = s.Verifier.VerifyDDOIntegrity(cdtDoc, record.Checksum)
	if !checks[CheckIntegrity] {
		return rejected("cdt checksum does not match the ledger", checks)
	}
	checks[CheckPermsReady] = s.Verifier.VerifyPermsReady(ctx, cdtDoc, req.DT)
	if !checks[CheckPermsReady] {
		return rejected("children have not all granted the cdt", checks)
	}

	return applyPolicy(ctx, s.Policy, domain.PolicyInput{
		Action:    domain.ActionRemoteCompute,
		CDT:       req.CDT,
		DT:        req.DT,
		JobID:     req.JobID,
		AssetType: cdtDoc.Type(),
		Requester: issuer,
		Checks:    checks,
	}, s.log())
}

// ExecCode is what a data owner runs locally for a job: the template's
// operation with the arguments the algorithm agreed to.
type ExecCode struct {
	TemplateID string            `json:"tid"`
	Service    string            `json:"service"`
	Operation  string            `json:"operation"`
	Args       domain.Constraint `json:"args"`
}

// FetchExecCode resolves the code to run on leafDT for cdt. The first cdt
// service carrying a workflow entry for leafDT decides which leaf service is
// used.
func (s *JobService) FetchExecCode(ctx context.Context, cdt, leafDT string) (*ExecCode, error) {
	_, cdtDoc, err := s.Resolver.ResolveAsset(ctx, cdt)
	if err != nil {
		return nil, err
	}
	if !cdtDoc.HasChild(leafDT) {
		return nil, fmt.Errorf("%w: %s is not a child of %s", domain.ErrInvalidComposition, leafDT, cdt)
	}
	_, leaf, err := s.Resolver.ResolveAsset(ctx, leafDT)
	if err != nil {
		return nil, err
	}
	if leaf.IsComposable() {
		return nil, fmt.Errorf("%w: %s is not a leaf", domain.ErrInvalidComposition, leafDT)
	}
	for _, svc := range cdtDoc.Services() {
		workflow, ok := svc.Workflow()
		if !ok {
			continue
		}
		agreement, ok := workflow[leafDT]
		if !ok {
			continue
		}
		leafSvc, ok := leaf.ServiceByIndex(agreement.Service)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no service %s", domain.ErrNotFound, leafDT, agreement.Service)
		}
		terms, ok := leafSvc.Leaf()
		if !ok {
			return nil, fmt.Errorf("%w: service %s of %s", domain.ErrInvalidService, agreement.Service, leafDT)
		}
		_, op, err := s.Resolver.ResolveTemplate(ctx, terms.Template)
		if err != nil {
			return nil, err
		}
		return &ExecCode{
			TemplateID: op.TID(),
			Service:    agreement.Service,
			Operation:  op.Operation(),
			Args:       agreement.Constraint,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s has no workflow entry for %s", domain.ErrNotFound, cdt, leafDT)
}

func (s *JobService) log() *zap.Logger {
	return logger.OrNop(s.Logger)
}
