package domain

const (
	ActionServiceTerms  = "service_terms"
	ActionRemoteCompute = "remote_compute"
)

// PolicyInput is what the authorization policy sees once the built-in checks
// have run. Checks maps a check name to its outcome.
type PolicyInput struct {
	Action    string          `json:"action"`
	CDT       string          `json:"cdt"`
	DT        string          `json:"dt"`
	JobID     int64           `json:"job_id,omitempty"`
	AssetType AssetType       `json:"asset_type,omitempty"`
	Requester string          `json:"requester,omitempty"`
	Checks    map[string]bool `json:"checks"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	BundleHash string       `json:"bundle_hash"`
	Result     PolicyResult `json:"result"`
}

// Authorization is the outcome of a remote-action request. A rejection is an
// ordinary result, not an error.
type Authorization struct {
	Allowed bool              `json:"allowed"`
	Reason  string            `json:"reason,omitempty"`
	Checks  map[string]bool   `json:"checks,omitempty"`
	Policy  *PolicyEvaluation `json:"policy,omitempty"`
}
