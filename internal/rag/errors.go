// Package rag holds the types shared by the retrieval stages: the stage error
// taxonomy and the vector arithmetic every stage agrees on.
package rag

import (
	"errors"
	"fmt"
)

// Kind classifies a stage failure so the orchestrator can choose between a
// fallback value and halting.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUnsupported is an input rejected at the boundary (file type, size).
	KindUnsupported
	// KindExtraction is malformed document content.
	KindExtraction
	// KindModel is an embedding, rerank, expansion or generation failure.
	KindModel
	// KindScope is an access outside the caller's owner scope.
	KindScope
	// KindUnavailable is a datastore or other hard dependency being unreachable.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindExtraction:
		return "extraction"
	case KindModel:
		return "model"
	case KindScope:
		return "scope"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageIndex    Stage = "index"
	StageRerank   Stage = "rerank"
	StageExpand   Stage = "expand"
	StageGenerate Stage = "generate"
)

type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failure", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s %s failure: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and stage. A nil err still yields an error.
func NewError(kind Kind, stage Stage, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Errorf is NewError with a formatted cause.
func Errorf(kind Kind, stage Stage, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
