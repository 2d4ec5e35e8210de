package tracker

import "time"

// Status represents the lifecycle state of a tracked call.
type Status string

const (
	StatusRinging  Status = "ringing"
	StatusAnswered Status = "answered"
	StatusHangup   Status = "hangup"
)

// Call is a call leg ringing a monitored extension, keyed by its channel.
// Values handed to callers are copies.
type Call struct {
	Channel         string    `json:"channel"`
	CallerIDNum     string    `json:"caller_id_num"`
	CallerIDName    string    `json:"caller_id_name"`
	Extension       string    `json:"extension"`
	Timestamp       time.Time `json:"timestamp"`
	Status          Status    `json:"status"`
	HangupCause     string    `json:"hangup_cause,omitempty"`
	HangupCauseText string    `json:"hangup_cause_text,omitempty"`
}

// HangupCause maps Asterisk hangup cause codes to names and descriptions.
var HangupCause = map[int]struct {
	Name        string
	Description string
}{
	0:   {"unknown", "Unknown or no cause provided"},
	1:   {"unallocated", "Unallocated (unassigned) number"},
	16:  {"normal_clearing", "Normal Clearing"},
	17:  {"user_busy", "User busy"},
	18:  {"no_user_response", "No user responding"},
	19:  {"no_answer", "User alerting, no answer"},
	21:  {"call_rejected", "Call Rejected"},
	27:  {"destination_out_of_order", "Destination out of order"},
	31:  {"normal_unspecified", "Normal, unspecified"},
	34:  {"congestion", "Circuit/channel congestion"},
	127: {"interworking", "Interworking, unspecified"},
}
