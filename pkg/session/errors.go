package session

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrNoCollection      = errors.New("no collection selected")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownField      = errors.New("unknown field")
	ErrInvalidPath       = errors.New("invalid populate path")
	ErrDuplicateRelation = errors.New("relation already populated")
	ErrCircularRelation  = errors.New("relation would create a circular populate")
	ErrInvalidOperator   = errors.New("invalid filter operator")
	ErrMissingValue      = errors.New("filter value is required")
	ErrInvalidFilter     = errors.New("invalid filter tree")
	ErrIndexOutOfRange   = errors.New("filter condition index out of range")
	ErrInvalidSortOrder  = errors.New("sort order must be asc or desc")
	ErrSuperseded        = errors.New("query superseded by a newer execution")
)
