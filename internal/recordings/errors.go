package recordings

import "errors"

var (
	// ErrNotFound covers missing recordings and segments, and segments that
	// belong to another assessment.
	ErrNotFound = errors.New("not found")
	// ErrSegmentNotRecording is returned when mutating a segment that is
	// already completed or interrupted.
	ErrSegmentNotRecording = errors.New("segment is not recording")
	// ErrTestModeDisabled is returned for throwaway starts outside dev/local.
	ErrTestModeDisabled = errors.New("test mode is disabled in this environment")
	// ErrInvalidAction is returned for unknown session actions.
	ErrInvalidAction = errors.New("invalid action")
)
