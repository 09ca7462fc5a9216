package types

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Stages wrap these with fmt.Errorf("...: %w") so callers
// can classify with errors.Is.
var (
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrConflict              = errors.New("storage precondition failed")
	ErrTopicExhausted        = errors.New("topic exhausted")
	ErrGenerationFailure     = errors.New("generation failure")
	ErrIncompleteResearch    = errors.New("incomplete research")
	ErrScriptOutOfBudget     = errors.New("script out of budget")
	ErrMissingVisualContext  = errors.New("missing visual context")
	ErrImageSynthesisFailure = errors.New("image synthesis failure")
	ErrRenderFailure         = errors.New("render failure")
	ErrPublishFailure        = errors.New("publish failure")
)

// FailureKind classifies a provider-side failure
type FailureKind string

const (
	FailureTimeout         FailureKind = "timeout"
	FailureRateLimit       FailureKind = "rate_limit"
	FailurePolicyRejection FailureKind = "policy_rejection"
	FailureUnavailable     FailureKind = "unavailable"
	FailureNoResult        FailureKind = "no_result"
)

// ProviderError is returned by image and text providers
type ProviderError struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Permanent reports whether retrying the same provider is pointless
func (e *ProviderError) Permanent() bool {
	return e.Kind == FailurePolicyRejection || e.Kind == FailureNoResult
}

// StageError records the pipeline state in which a stage failed
type StageError struct {
	State PipelineState
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
