package domain

// PolicyInput is what the admission policy sees before any hash or
// signature work happens for a record mutation.
type PolicyInput struct {
	Operation string         `json:"operation"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	Author    string         `json:"author"`
}

const (
	PolicyOpCreate = "create"
	PolicyOpUpdate = "update"
)

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	BundleID   string       `json:"bundle_id,omitempty"`
	BundleHash string       `json:"bundle_hash"`
	Result     PolicyResult `json:"result"`
}
