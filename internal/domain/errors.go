package domain

import "errors"

var (
	// ErrInvalidInput covers malformed caller input such as an unknown difficulty.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProviderUnavailable is returned when the text provider cannot be reached or errors out.
	ErrProviderUnavailable = errors.New("problem provider unavailable")
	// ErrProviderTimeout is returned when a provider call exceeds its deadline.
	ErrProviderTimeout = errors.New("problem provider timed out")
	// ErrInvalidProblemFormat indicates provider output that does not satisfy the problem contract.
	ErrInvalidProblemFormat = errors.New("invalid problem format")
	// ErrInvalidFeedbackFormat indicates provider output that does not satisfy the feedback contract.
	ErrInvalidFeedbackFormat = errors.New("invalid feedback format")
	// ErrProblemGenerationFailed wraps any provider or validation failure while creating a session.
	ErrProblemGenerationFailed = errors.New("problem generation failed")
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDuplicateSubmission is the store-level signal that a session already has a submission.
	ErrDuplicateSubmission = errors.New("duplicate submission")
	// ErrAlreadySubmitted is returned to callers answering a session a second time.
	ErrAlreadySubmitted = errors.New("session already submitted")
	// ErrPersistence wraps unexpected datastore failures.
	ErrPersistence = errors.New("persistence failure")
)
