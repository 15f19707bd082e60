package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult reports whether the chain is intact and, when it is not,
// the first line where the walk broke.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify walks the audit log and checks every entry's prev_hash against
// the hash of the line before it. The first entry must carry the
// genesis hash. An empty log is valid.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	var prev []byte
	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		// Scanner reuses its buffer; the line survives until the next
		// iteration because it seeds the following hash check.
		line := append([]byte(nil), scanner.Bytes()...)

		var entry AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return VerifyResult{Error: fmt.Sprintf("parse entry: %v", err), ErrorLine: lines}
		}
		want := GenesisHash
		if lines > 1 {
			want = HashLine(prev)
		}
		if entry.PrevHash != want {
			return VerifyResult{
				Error:     fmt.Sprintf("prev_hash mismatch: expected %s, got %s", want, entry.PrevHash),
				ErrorLine: lines,
			}
		}
		prev = line
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err)}
	}
	return VerifyResult{Valid: true, Lines: lines}
}
