package taxonomy

import "strings"

// Classifier models phrase the taxonomy in prose. The alias tables map the
// wording observed in practice onto the closed enums; matching is
// case-insensitive on trimmed input.

var categoryAliases = map[string]Category{
	"job":             CategoryJob,
	"job application": CategoryJob,
	"job-related":     CategoryJob,
	"job related":     CategoryJob,
	"application":     CategoryJob,
	"other":           CategoryOther,
}

var stageAliases = map[string]Stage{
	"applications sent":     StageApplicationsSent,
	"application sent":      StageApplicationsSent,
	"application submitted": StageApplicationsSent,
	"applied":               StageApplicationsSent,
	"oa screening":          StageOaScreening,
	"oa / screening":        StageOaScreening,
	"oa":                    StageOaScreening,
	"online assessment":     StageOaScreening,
	"screening":             StageOaScreening,
	"phone screen":          StageOaScreening,
	"interview":             StageInterview,
	"interviewing":          StageInterview,
	"onsite":                StageInterview,
	"offer":                 StageOffer,
	"offer received":        StageOffer,
	"accepted":              StageAccepted,
	"offer accepted":        StageAccepted,
	"rejected":              StageRejected,
	"rejection":             StageRejected,
	"no response":           StageNoResponse,
	"no reply":              StageNoResponse,
	"ghosted":               StageNoResponse,
	"declined":              StageDeclined,
	"offer declined":        StageDeclined,
	"withdrawn":             StageDeclined,
}

// ParseCategory maps a raw category string onto the closed category set.
// Anything unrecognized coerces to Other.
func ParseCategory(raw string) Category {
	key := strings.ToLower(strings.TrimSpace(raw))
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	if Category(strings.TrimSpace(raw)) == CategoryJob {
		return CategoryJob
	}
	return CategoryOther
}

// ParseStage maps a raw stage string onto the closed stage set. The boolean
// reports whether the input named a known stage; unknown values never panic.
func ParseStage(raw string) (Stage, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if s := Stage(trimmed); s.IsValid() {
		return s, true
	}
	key := strings.ToLower(trimmed)
	if s, ok := stageAliases[key]; ok {
		return s, true
	}
	// Slugs are accepted back as well, so persisted values round-trip.
	for s, slug := range stageSlugs {
		if key == slug {
			return s, true
		}
	}
	return "", false
}
