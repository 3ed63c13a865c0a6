package taxonomy

import "fmt"

// Stage is one value from the closed job-application funnel enumeration.
type Stage string

const (
	StageApplicationsSent Stage = "ApplicationsSent"
	StageOaScreening      Stage = "OaScreening"
	StageInterview        Stage = "Interview"
	StageOffer            Stage = "Offer"
	StageAccepted         Stage = "Accepted"
	StageRejected         Stage = "Rejected"
	StageNoResponse       Stage = "NoResponse"
	StageDeclined         Stage = "Declined"
)

// Stages lists every member of the closed stage set in funnel order.
var Stages = []Stage{
	StageApplicationsSent,
	StageOaScreening,
	StageInterview,
	StageOffer,
	StageAccepted,
	StageRejected,
	StageNoResponse,
	StageDeclined,
}

var stageSlugs = map[Stage]string{
	StageApplicationsSent: "applications_sent",
	StageOaScreening:      "oa_screening",
	StageInterview:        "interview",
	StageOffer:            "offer",
	StageAccepted:         "accepted",
	StageRejected:         "rejected",
	StageNoResponse:       "no_response",
	StageDeclined:         "declined",
}

// IsValid reports whether s is a member of the closed stage set.
func (s Stage) IsValid() bool {
	_, ok := stageSlugs[s]
	return ok
}

// Slug returns the stable machine-readable identifier for the stage.
func (s Stage) Slug() string {
	return stageSlugs[s]
}

// Category classifies a message as job-related or not.
type Category string

const (
	CategoryJob   Category = "Job"
	CategoryOther Category = "Other"
)

// ClassificationResult is the normalized output of one classifier call.
// Immutable once written, except UserOverrideStage which a human may set
// to override JobStage for display and aggregation.
type ClassificationResult struct {
	Category          Category `json:"category"`
	HasUnsubscribe    bool     `json:"hasUnsubscribe"`
	UnsubscribeLink   string   `json:"unsubscribeLink,omitempty"`
	JobStage          *Stage   `json:"jobStage,omitempty"`
	TransitionFrom    *Stage   `json:"transitionFrom,omitempty"`
	TransitionTo      *Stage   `json:"transitionTo,omitempty"`
	UserOverrideStage *Stage   `json:"userOverrideStage,omitempty"`
	Summary           string   `json:"summary"`
}

// FormatError reports that the classifier answered, but not in the expected
// schema. It carries the raw text for diagnostics and is never retried.
type FormatError struct {
	Reason string
	Raw    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed classifier response: %s", e.Reason)
}
