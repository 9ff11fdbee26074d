package router

import "errors"

// Outcomes of a routed action. Every one of them has already been shown to the user when
// it is returned; callers only log or count them.
var (
	// ErrNoActiveBuffer means there is no editor to read from.
	ErrNoActiveBuffer = errors.New("no active buffer")
	// ErrEmptySelection means "send selection" found nothing selected.
	ErrEmptySelection = errors.New("empty selection")
	// ErrEmptyBuffer means "send current file" found an empty file.
	ErrEmptyBuffer = errors.New("empty buffer")
	// ErrInferenceUnavailable wraps a failed or timed out inference call.
	ErrInferenceUnavailable = errors.New("inference unavailable")
	// ErrNoActionableChange means the differ found no new routines. It is not a failure.
	ErrNoActionableChange = errors.New("no actionable change")
	// ErrStaleSnapshot means a test confirmation arrived but its snapshot is empty.
	ErrStaleSnapshot = errors.New("stale snapshot")
	// ErrExpiredQuestion means a reply named a question that is no longer pending.
	ErrExpiredQuestion = errors.New("expired question")
	// ErrPanic means a handler panicked and was recovered.
	ErrPanic = errors.New("handler panic")
)

// User-visible texts.
const (
	MsgNoActiveBuffer  = "Please open a file first."
	MsgEmptySelection  = "No code is selected."
	MsgEmptyBuffer     = "The current file is empty."
	MsgNoNewFunctions  = "No new functions detected, so no test is generated."
	MsgStaleSnapshot   = "The saved code for that question is gone. Save the file again to get a new offer."
	MsgExpiredQuestion = "That question has expired. Save the file again to get a new test offer."
	MsgNoErrors        = "There is no error in your code"
	MsgAcknowledged    = "OK, skipped."
	MsgInternal        = "Something went wrong while handling that message."
	MsgOfferTests      = "New functions detected: %s. Do you want to generate unit tests?"
)
