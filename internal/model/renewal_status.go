package model

import "time"

// Renewal lifecycle states, in happy-path order.
const (
	StatePending               = "pending"
	StateGeneratingCSR         = "generating_csr"
	StateCreatingAccount       = "creating_account"
	StateRequestingCertificate = "requesting_certificate"
	StateCreatingDNSChallenge  = "creating_dns_challenge"
	StateWaitingDNSPropagation = "waiting_dns_propagation"
	StateWaitingManualDNS      = "waiting_manual_dns"
	StateCompletingValidation  = "completing_validation"
	StateDownloadingCert       = "downloading_certificate"
	StateUploadingCert         = "uploading_certificate"
	StateCompleted             = "completed"
	StateFailed                = "failed"
)

// stateProgress is the fixed state-to-progress mapping. Every transition
// must use a value from this table so progress stays monotone.
var stateProgress = map[string]int{
	StatePending:               0,
	StateGeneratingCSR:         10,
	StateCreatingAccount:       15,
	StateRequestingCertificate: 20,
	StateCreatingDNSChallenge:  30,
	StateWaitingDNSPropagation: 50,
	StateWaitingManualDNS:      65,
	StateCompletingValidation:  70,
	StateDownloadingCert:       80,
	StateUploadingCert:         90,
	StateCompleted:             100,
	StateFailed:                0,
}

// ProgressForState returns the fixed progress percentage for a state.
func ProgressForState(state string) int {
	if p, ok := stateProgress[state]; ok {
		return p
	}
	return 0
}

// IsTerminal reports whether state ends a renewal.
func IsTerminal(state string) bool {
	return state == StateCompleted || state == StateFailed
}

// ManualDNSEntry carries the record an operator must publish by hand when
// the connection's DNS provider is "custom".
type ManualDNSEntry struct {
	RecordName         string `json:"record_name"`
	RecordValue        string `json:"record_value"`
	RecordType         string `json:"record_type"`
	Instructions       string `json:"instructions"`
}

// RenewalStatus is the lifecycle record of one renewal attempt.
type RenewalStatus struct {
	ID           string           `json:"id"`
	ConnectionID int64            `json:"connection_id"`
	State        string           `json:"state"`
	Message      string           `json:"message"`
	Progress     int              `json:"progress"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	Error        string           `json:"error,omitempty"`
	Logs         []string         `json:"logs"`
	ManualDNS    *ManualDNSEntry  `json:"manual_dns_entry,omitempty"`
}

// Log appends a timestamped log line. RenewalStatus has no internal locking;
// the renewal's own goroutine is its only writer.
func (r *RenewalStatus) Log(msg string) {
	r.Logs = append(r.Logs, time.Now().UTC().Format(time.RFC3339)+" "+msg)
}

// Transition moves the status to a new state, updating progress and
// logging the transition. It does not enforce terminal immutability;
// callers must not call Transition again once IsTerminal(r.State) is true.
func (r *RenewalStatus) Transition(state, message string) {
	r.State = state
	r.Message = message
	r.Progress = ProgressForState(state)
	r.Log(message)
	if IsTerminal(state) {
		now := time.Now().UTC()
		r.EndTime = &now
	}
}

// Fail transitions to failed, recording err and appending an ERROR log line.
func (r *RenewalStatus) Fail(err error) {
	r.Error = err.Error()
	r.Transition(StateFailed, "ERROR: "+err.Error())
}
