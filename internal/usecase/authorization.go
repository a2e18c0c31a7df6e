package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"datatoken/internal/domain"
)

const (
	CheckPermissionGranted = "permission_granted"
	CheckJobRegistered     = "job_registered"
	CheckOwner             = "owner"
	CheckResolved          = "cdt_resolved"
	CheckAssetType         = "asset_type"
	CheckSignature         = "signature"
	CheckIntegrity         = "integrity"
	CheckServices          = "services"
	CheckPermsReady        = "perms_ready"
)

const (
	ReasonAlreadyGranted = "permission already granted"
	ReasonPolicyError    = "policy evaluation failed"
	ReasonPolicyDenied   = "denied by policy"
)

func rejected(reason string, checks map[string]bool) domain.Authorization {
	return domain.Authorization{Allowed: false, Reason: reason, Checks: checks}
}

// applyPolicy runs the optional policy gate once every built-in check has
// passed. A policy error rejects the request.
func applyPolicy(ctx context.Context, policy AuthorizationPolicy, input domain.PolicyInput, log *zap.Logger) domain.Authorization {
	auth := domain.Authorization{Allowed: true, Checks: input.Checks}
	if policy == nil {
		return auth
	}
	eval, err := policy.Evaluate(ctx, input)
	if err != nil {
		log.Warn("authorization policy failed", zap.String("action", input.Action), zap.Error(err))
		return rejected(ReasonPolicyError, input.Checks)
	}
	auth.Policy = &eval
	if !eval.Result.Allow {
		codes := make([]string, 0, len(eval.Result.Deny))
		for _, deny := range eval.Result.Deny {
			codes = append(codes, deny.Code)
		}
		auth.Allowed = false
		auth.Reason = ReasonPolicyDenied
		if len(codes) > 0 {
			auth.Reason += ": " + strings.Join(codes, ",")
		}
	}
	return auth
}
