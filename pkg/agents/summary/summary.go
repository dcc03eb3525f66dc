package summary

import (
	"sort"
	"time"

	"smfoperator/pkg/core"
)

// ActionType enumerates the side effects a reconciliation pass can perform.
type ActionType string

// Action types emitted by the controller for observability.
const (
	ActionCSREmitted          ActionType = "csr-emitted"
	ActionCertificateIssued   ActionType = "certificate-issued"
	ActionCertificateRejected ActionType = "certificate-rejected"
	ActionCertificateExpired  ActionType = "certificate-expired"
	ActionCertificateReset    ActionType = "certificate-reset"
	ActionPushed              ActionType = "pushed"
	ActionRestarted           ActionType = "restarted"
	ActionReplanned           ActionType = "replanned"
)

// Action is a single side effect with an optional detail message.
type Action struct {
	Action ActionType
	Detail string
}

// Summary aggregates the outcome of one reconciliation pass for metrics, status, and events.
type Summary struct {
	PassID      string
	Event       string
	Verdict     core.Verdict
	Status      core.UnitStatus
	Checksum    string
	Certificate core.CertificateState
	Actions     []Action
	// Attempts is the number of apply attempts the pass needed, zero when nothing was applied.
	Attempts int
	Duration time.Duration
	// RequeueAfter asks for another pass once the delay has elapsed.
	RequeueAfter time.Duration
	Err          error
}

// Record appends an action.
func (s *Summary) Record(action ActionType, detail string) {
	if s == nil {
		return
	}
	s.Actions = append(s.Actions, Action{Action: action, Detail: detail})
}

// Count returns the number of actions for the provided type.
func (s *Summary) Count(t ActionType) int {
	if s == nil {
		return 0
	}
	count := 0
	for _, a := range s.Actions {
		if a.Action == t {
			count++
		}
	}
	return count
}

// Has reports whether the pass performed t at least once.
func (s *Summary) Has(t ActionType) bool { return s.Count(t) > 0 }

// Restarted reports whether the pass restarted the workload.
func (s *Summary) Restarted() bool { return s.Has(ActionRestarted) }

// ActionTypes returns the distinct action types of the pass in sorted order.
func (s *Summary) ActionTypes() []ActionType {
	if s == nil || len(s.Actions) == 0 {
		return nil
	}
	seen := map[ActionType]bool{}
	var out []ActionType
	for _, a := range s.Actions {
		if !seen[a.Action] {
			seen[a.Action] = true
			out = append(out, a.Action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SoonerRequeue keeps the shortest positive requeue delay.
func (s *Summary) SoonerRequeue(after time.Duration) {
	if s == nil || after <= 0 {
		return
	}
	if s.RequeueAfter == 0 || after < s.RequeueAfter {
		s.RequeueAfter = after
	}
}
