// Package policy defines the retry and routing policy table that governs how
// workflow activities are dispatched, bounded and retried.
package policy

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TaskType identifies a workflow activity category.
type TaskType string

const (
	TaskScore       TaskType = "score"
	TaskAssign      TaskType = "assign"
	TaskIndexSearch TaskType = "index_search"
	TaskIndexGraph  TaskType = "index_graph"
	TaskNotify      TaskType = "notify"
)

// QueueClass routes a task type onto one of the resource-isolated worker
// pools. AI-bound work is capped separately from bulk I/O so a flood of
// indexing traffic cannot starve scoring calls, and vice versa.
type QueueClass string

const (
	ClassAIBound     QueueClass = "ai_bound"
	ClassIOBound     QueueClass = "io_bound"
	ClassLightweight QueueClass = "lightweight"
)

// RetryPolicy bounds a single task type: which pool runs it, how long one
// attempt may take, how often it is retried and how the backoff curve grows.
type RetryPolicy struct {
	Class              QueueClass    `json:"class" yaml:"class"`
	Timeout            time.Duration `json:"timeout" yaml:"timeout"`
	MaxAttempts        int           `json:"max_attempts" yaml:"max_attempts"`
	InitialInterval    time.Duration `json:"initial_interval" yaml:"initial_interval"`
	BackoffCoefficient float64       `json:"backoff_coefficient" yaml:"backoff_coefficient"`
	MaxInterval        time.Duration `json:"max_interval" yaml:"max_interval"`
}

var (
	ErrUnknownTask      = errors.New("no policy for task type")
	ErrInvalidPolicy    = errors.New("invalid retry policy")
	ErrUnknownClass     = errors.New("unknown queue class")
	ErrInvalidCoeff     = errors.New("backoff_coefficient must be >= 1")
	ErrInvalidAttempts  = errors.New("max_attempts must be >= 1")
	ErrInvalidTimeout   = errors.New("timeout must be > 0")
	ErrInvalidIntervals = errors.New("initial_interval must be > 0 and <= max_interval")
)

// Validate checks a single policy for correctness.
func (p RetryPolicy) Validate() error {
	switch p.Class {
	case ClassAIBound, ClassIOBound, ClassLightweight:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownClass, p.Class)
	}
	if p.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if p.MaxAttempts < 1 {
		return ErrInvalidAttempts
	}
	if p.BackoffCoefficient < 1 {
		return ErrInvalidCoeff
	}
	if p.InitialInterval <= 0 || p.InitialInterval > p.MaxInterval {
		return ErrInvalidIntervals
	}
	return nil
}

// Interval returns the backoff delay before retry number attempt (1-based):
// initial_interval * backoff_coefficient^(attempt-1), capped at max_interval.
// The curve is deterministic so retry timing is predictable per attempt.
func (p RetryPolicy) Interval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialInterval) * math.Pow(p.BackoffCoefficient, float64(attempt-1))
	if d > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(d)
}

// Table maps every task type to its retry policy.
type Table map[TaskType]RetryPolicy

// DefaultTable returns the shipped policy table. AI scoring gets a long
// per-attempt timeout and few retries; store indexing gets more retries with
// a tight timeout; lightweight bookkeeping fails fast.
func DefaultTable() Table {
	return Table{
		TaskScore: {
			Class:              ClassAIBound,
			Timeout:            2 * time.Minute,
			MaxAttempts:        4,
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaxInterval:        time.Minute,
		},
		TaskAssign: {
			Class:              ClassLightweight,
			Timeout:            10 * time.Second,
			MaxAttempts:        3,
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaxInterval:        5 * time.Second,
		},
		TaskIndexSearch: {
			Class:              ClassIOBound,
			Timeout:            30 * time.Second,
			MaxAttempts:        5,
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaxInterval:        30 * time.Second,
		},
		TaskIndexGraph: {
			Class:              ClassIOBound,
			Timeout:            30 * time.Second,
			MaxAttempts:        5,
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaxInterval:        30 * time.Second,
		},
		TaskNotify: {
			Class:              ClassLightweight,
			Timeout:            15 * time.Second,
			MaxAttempts:        3,
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaxInterval:        10 * time.Second,
		},
	}
}

// For looks up the policy for a task type.
func (t Table) For(task TaskType) (RetryPolicy, error) {
	p, ok := t[task]
	if !ok {
		return RetryPolicy{}, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	return p, nil
}

// Validate checks every entry and requires the full task set to be covered.
func (t Table) Validate() error {
	for _, task := range []TaskType{TaskScore, TaskAssign, TaskIndexSearch, TaskIndexGraph, TaskNotify} {
		p, ok := t[task]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTask, task)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w for %q: %w", ErrInvalidPolicy, task, err)
		}
	}
	return nil
}
