package domain

import "errors"

var (
	// ErrInvalidTechnique signals an unsupported technique name.
	ErrInvalidTechnique = errors.New("invalid technique")
	// ErrInvalidWeights signals a malformed weight vector.
	ErrInvalidWeights = errors.New("invalid weights")
	// ErrInvalidRankConstant signals an out-of-range RRF rank constant.
	ErrInvalidRankConstant = errors.New("invalid rank constant")
	// ErrMalformedInput signals a malformed per-shard result shape.
	ErrMalformedInput = errors.New("malformed shard results")
	// ErrCollapseKeyType signals a collapse value whose type disagrees
	// with the established type of the collapse field.
	ErrCollapseKeyType = errors.New("collapse key type mismatch")
)
