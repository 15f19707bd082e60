package audit

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// AuditEntry is one line in the hash-chained JSONL audit log: one
// privileged fleet action, the grant that authorized it, and the
// outcome. Map fields are fine for hashing since json.Marshal emits
// map keys in sorted order.
type AuditEntry struct {
	Timestamp      string            `json:"ts"`
	ProjectID      string            `json:"project_id"`
	Action         string            `json:"action"`
	Result         string            `json:"result"`
	GrantID        string            `json:"grant_id,omitempty"`
	GatesRun       []string          `json:"gates_run,omitempty"`
	CommitRef      string            `json:"commit_ref,omitempty"`
	TagRef         string            `json:"tag_ref,omitempty"`
	BreakGlassUsed bool              `json:"break_glass_used"`
	Details        map[string]string `json:"details,omitempty"`
	PrevHash       string            `json:"prev_hash"`
}

// Result values for audit entries.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultBlocked = "blocked"
)

// ResultFor maps an operation's success flag to an audit result value.
func ResultFor(success bool) string {
	if success {
		return ResultSuccess
	}
	return ResultFailure
}
