package model

import "errors"

var (
	ErrEmptyPipeline = errors.New("pipeline must have at least one step")
	ErrEmptyStepName = errors.New("pipeline step name cannot be empty")
	ErrDuplicateStep = errors.New("pipeline steps must be unique")
)
