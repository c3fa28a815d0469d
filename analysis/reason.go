package analysis

import "strings"

// Reason is the structured verdict reason negotiated with the analysis
// service. Older deployments of the service only put the information into
// the free-text message; ReasonFromResponse falls back to substring
// matching for those, and that compatibility shim is the only place in the
// codebase allowed to inspect message text.
type Reason string

const (
	// ReasonNone means the service supplied no structured reason.
	ReasonNone Reason = ""
	// ReasonCodeVerified is a positively-confirmed compliant code scan.
	ReasonCodeVerified Reason = "code_verified"
	// ReasonNoTarget means no billboard/advertisement was detected in the
	// image.
	ReasonNoTarget Reason = "no_target"
)

// Legacy message markers. The analysis service predates the reason field
// and some deployments still signal these conditions in the message body.
var (
	codeVerifiedMarkers = []string{
		"qr code verified",
		"code verified",
	}
	noTargetMarkers = []string{
		"no billboard detected",
		"no advertisement detected",
		"no target object",
	}
)

// CodeVerified reports whether the response positively confirms a
// compliant code scan: either the structured reason says so, or a legacy
// message marker does.
func (r *Response) CodeVerified() bool {
	if r.Reason == string(ReasonCodeVerified) {
		return true
	}
	return containsAny(r.Message, codeVerifiedMarkers)
}

// NoTarget reports whether the response says no target object was
// detected.
func (r *Response) NoTarget() bool {
	if r.Reason == string(ReasonNoTarget) {
		return true
	}
	return containsAny(r.Message, noTargetMarkers)
}

func containsAny(msg string, markers []string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
