package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound        = errors.New("resource not found")
	ErrStoryNotFound   = errors.New("story not found")
	ErrSegmentNotFound = errors.New("segment not found")

	// Validation Errors (отклоняются до любого обращения к провайдерам)
	ErrValidation    = errors.New("invalid input data")
	ErrPromptTooLong = errors.New("prompt exceeds maximum length")
	ErrChoiceTooLong = errors.New("choice text exceeds maximum length")
	ErrUnsafeInput   = errors.New("input matches injection denylist")
	ErrMissingInput  = errors.New("exactly one of prompt or choice text is required")

	// Generation Errors
	ErrGenerationFailed = errors.New("text generation failed")

	// Media / Lifecycle Errors
	ErrStoryNotCompleted     = errors.New("story is not completed")
	ErrAudioAlreadyInFlight  = errors.New("audio generation is already in progress")
	ErrImageNotRetryable     = errors.New("image generation cannot be restarted in its current state")
	ErrStoryAlreadyCompleted = errors.New("story is already completed")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
)
