package graph

import "errors"

// Configuration errors. Validate joins every problem it finds.
var (
	ErrParse             = errors.New("invalid graph document")
	ErrEmptyGraph        = errors.New("graph declares no models")
	ErrInvalidName       = errors.New("invalid name")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrUnknownModel      = errors.New("unknown model")
	ErrUnknownChannel    = errors.New("unknown channel")
	ErrMissingBinding    = errors.New("channel is not bound")
	ErrAmbiguousBinding  = errors.New("channel has conflicting bindings")
	ErrFanOut            = errors.New("output feeds more than one input")
	ErrNotServer         = errors.New("model is not a server")
	ErrUnknownTranslator = errors.New("unknown translator")
	ErrUnknownTransport  = errors.New("unknown transport")
	ErrUnknownExitAction = errors.New("unknown exit action")
)
