package ratelimit

// Action types throttled by the gateway
const (
	ActionReportSubmission = "report_submission"
	ActionReportUpdate     = "report_update"
	ActionImageUpload      = "image_upload"
	ActionComment          = "comment"
	ActionAPICall          = "api_call"
)

// Policy bounds one action type: at most MaxAttempts per WindowSeconds
type Policy struct {
	MaxAttempts   int
	WindowSeconds int
}

// policies is the static action-type table. Action types without an entry
// are unthrottled.
var policies = map[string]Policy{
	ActionReportSubmission: {MaxAttempts: 10, WindowSeconds: 3600},
	ActionReportUpdate:     {MaxAttempts: 20, WindowSeconds: 3600},
	ActionImageUpload:      {MaxAttempts: 30, WindowSeconds: 3600},
	ActionComment:          {MaxAttempts: 50, WindowSeconds: 3600},
	ActionAPICall:          {MaxAttempts: 100, WindowSeconds: 60},
}

// PolicyFor looks up the policy for an action type
func PolicyFor(actionType string) (Policy, bool) {
	p, ok := policies[actionType]
	return p, ok
}

// KnownAction reports whether an action type has a configured policy
func KnownAction(actionType string) bool {
	_, ok := policies[actionType]
	return ok
}
