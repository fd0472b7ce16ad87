package engine

import (
	"fmt"
	"time"
)

// LimitKind tags which resource bound a session exceeded.
type LimitKind string

const (
	LimitMemory     LimitKind = "memory"
	LimitDuration   LimitKind = "duration"
	LimitRecursion  LimitKind = "recursion"
	LimitAllocation LimitKind = "allocation"
)

// Limits bounds one session. Every field is required: an unset bound is a
// host configuration error, never a silent default, so a sandbox can never
// start unbounded.
type Limits struct {
	MemoryBytes    int64
	Duration       time.Duration
	MaxRecursion   int
	MaxAllocations int64
}

// Validate rejects any missing or non-positive bound.
func (l Limits) Validate() error {
	if l.MemoryBytes <= 0 {
		return fmt.Errorf("limits: MemoryBytes must be positive, got %d", l.MemoryBytes)
	}
	if l.Duration <= 0 {
		return fmt.Errorf("limits: Duration must be positive, got %s", l.Duration)
	}
	if l.MaxRecursion <= 0 {
		return fmt.Errorf("limits: MaxRecursion must be positive, got %d", l.MaxRecursion)
	}
	if l.MaxAllocations <= 0 {
		return fmt.Errorf("limits: MaxAllocations must be positive, got %d", l.MaxAllocations)
	}
	return nil
}
