package core

import (
	"errors"

	"kgraph/internal/query"
	"kgraph/internal/rules"
	"kgraph/internal/stream"
	"kgraph/internal/terms"
)

// Categorical errors returned by the knowledge graph. Callers test them
// with errors.Is; the values are shared with the packages that raise them.
var (
	ErrUnknownTerm         = terms.ErrUnknownTerm
	ErrMalformedRule       = rules.ErrMalformedRule
	ErrInvalidArgument     = query.ErrInvalidArgument
	ErrStreamClosed        = stream.ErrStreamClosed
	ErrInvalidWindowConfig = stream.ErrInvalidWindowConfig

	// ErrNonTermination is returned when inference exceeds its round cap.
	// The call's partial derivations are discarded.
	ErrNonTermination = errors.New("inference did not reach a fixpoint")
	// ErrInvariant reports an internal consistency failure during
	// evaluation, such as a conclusion left unbound by a validated rule.
	ErrInvariant = errors.New("invariant violated")
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorUnknown is any error this package did not raise.
	ErrorUnknown ErrorClass = iota
	// ErrorInvalid represents rejected input; state is unchanged.
	ErrorInvalid
	// ErrorFatal represents an aborted computation that was rolled back.
	ErrorFatal
	// ErrorClosed represents use of a stopped stream.
	ErrorClosed
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	case ErrorClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Classify maps err onto its recovery class.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorUnknown
	case errors.Is(err, ErrNonTermination), errors.Is(err, ErrInvariant):
		return ErrorFatal
	case errors.Is(err, ErrStreamClosed):
		return ErrorClosed
	case errors.Is(err, ErrUnknownTerm),
		errors.Is(err, ErrMalformedRule),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrInvalidWindowConfig):
		return ErrorInvalid
	default:
		return ErrorUnknown
	}
}
