package pipeline

import "errors"

var (
	// ErrNoResults is returned when every source came back empty
	ErrNoResults = errors.New("no results")
	// ErrIntent is returned when the query could not be turned into an intent
	ErrIntent = errors.New("parse intent")
)
