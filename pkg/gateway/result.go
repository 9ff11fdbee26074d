package gateway

// Outcome is the variant of a Result.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// User-visible texts for results that carry no completion.
const (
	MsgUnavailable       = "AI request failed. Please check your API key or network connection."
	MsgMissingCredential = "No API key is configured for the AI service. Run `codecoach secrets set` or export the provider's key."
	MsgTimedOut          = "The AI service did not answer in time. Please try again."
)

// ReasonMissingCredential is the failure reason when no client is configured.
const ReasonMissingCredential = "missing credential"

// Result is the outcome of one inference call. It stays typed until Render.
type Result struct {
	Outcome Outcome
	Text    string // completion, set only on Success
	Reason  string // diagnostic, set on Failure and Timeout
}

// Succeeded wraps a completion.
func Succeeded(text string) Result {
	return Result{Outcome: Success, Text: text}
}

// Failed wraps a failure reason.
func Failed(reason string) Result {
	return Result{Outcome: Failure, Reason: reason}
}

// TimedOut reports a call that hit its deadline.
func TimedOut(reason string) Result {
	return Result{Outcome: Timeout, Reason: reason}
}

// OK reports whether the result carries a completion.
func (r Result) OK() bool {
	return r.Outcome == Success
}

// Render returns the text to show the user: the completion on success, an apology otherwise.
func (r Result) Render() string {
	switch r.Outcome {
	case Success:
		return r.Text
	case Timeout:
		return MsgTimedOut
	default:
		if r.Reason == ReasonMissingCredential {
			return MsgMissingCredential
		}
		return MsgUnavailable
	}
}
