package domain

const (
	FailureDocumentUnresolved   = "DOCUMENT_UNRESOLVED"
	FailureIntegrityMismatch    = "INTEGRITY_MISMATCH"
	FailureTemplateMissing      = "TEMPLATE_MISSING"
	FailureTemplateUnresolved   = "TEMPLATE_UNRESOLVED"
	FailureParamsMismatch       = "PARAMS_MISMATCH"
	FailureNotAChild            = "NOT_A_CHILD"
	FailureTerminalDependency   = "TERMINAL_DEPENDENCY"
	FailureWorkflowEntryMissing = "WORKFLOW_ENTRY_MISSING"
	FailureChildServiceMissing  = "CHILD_SERVICE_MISSING"
	FailureAgreementUnfulfilled = "AGREEMENT_UNFULFILLED"
	FailureNotActivated         = "NOT_ACTIVATED"
	FailurePermsNotReady        = "PERMS_NOT_READY"
	FailureCycleDetected        = "CYCLE_DETECTED"
	FailureCanceled             = "CANCELED"
)

// VerificationFailure names the first check that failed and where.
type VerificationFailure struct {
	Code   string `json:"code"`
	DT     string `json:"dt"`
	Detail string `json:"detail,omitempty"`
}

// VerificationReport is the outcome of a service verification. It never
// carries partial success: Verified is false as soon as any branch fails.
type VerificationReport struct {
	DT       string               `json:"dt"`
	Verified bool                 `json:"verified"`
	Failure  *VerificationFailure `json:"failure,omitempty"`
}

func Verified(dt string) VerificationReport {
	return VerificationReport{DT: dt, Verified: true}
}

func Unverified(dt string, failure VerificationFailure) VerificationReport {
	return VerificationReport{DT: dt, Failure: &failure}
}
