package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(messages, "; "))
}

// Validate checks the configuration for the constraints the planner's
// invariants assume hold before a StrategyModel is even constructed:
// DP/TP/PP must be positive, a straggler's threshold must exceed 1.0,
// and the hetero-tp tables must be non-empty.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if err := c.validateBaseline(); err != nil {
		errs = append(errs, err.(ValidationErrors)...)
	}
	if err := c.validateTrainer(); err != nil {
		errs = append(errs, err.(ValidationErrors)...)
	}
	if err := c.validateSolver(); err != nil {
		errs = append(errs, err.(ValidationErrors)...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateBaseline() error {
	var errs ValidationErrors
	b := c.Baseline

	if b.DP <= 0 {
		errs = append(errs, ValidationError{Field: "baseline.dp", Value: b.DP, Message: "must be positive"})
	}
	if b.TP <= 0 {
		errs = append(errs, ValidationError{Field: "baseline.tp", Value: b.TP, Message: "must be positive"})
	}
	if b.PP <= 0 {
		errs = append(errs, ValidationError{Field: "baseline.pp", Value: b.PP, Message: "must be positive"})
	}
	if b.NumLayers <= 0 {
		errs = append(errs, ValidationError{Field: "baseline.num_layers", Value: b.NumLayers, Message: "must be positive"})
	}
	if b.MicroBatches <= 0 {
		errs = append(errs, ValidationError{Field: "baseline.micro_batches", Value: b.MicroBatches, Message: "must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateTrainer() error {
	var errs ValidationErrors
	t := c.Trainer

	if len(t.HeteroTPAlpha) == 0 {
		errs = append(errs, ValidationError{Field: "trainer.hetero_tp_alpha", Value: t.HeteroTPAlpha, Message: "must have at least one entry (alpha for hetero ratio 1)"})
	}
	if len(t.HeteroTPWeight) != len(t.HeteroTPAlpha) {
		errs = append(errs, ValidationError{Field: "trainer.hetero_tp_weight", Value: t.HeteroTPWeight, Message: "must have the same length as hetero_tp_alpha"})
	}
	if t.StragglerThreshold <= 1.0 {
		errs = append(errs, ValidationError{Field: "trainer.straggler_threshold", Value: t.StragglerThreshold, Message: "must exceed 1.0"})
	}
	if t.StragglerSafeGap < 0 {
		errs = append(errs, ValidationError{Field: "trainer.straggler_safe_gap", Value: t.StragglerSafeGap, Message: "must not be negative"})
	}
	if t.MemoryBound <= 0 {
		errs = append(errs, ValidationError{Field: "trainer.memory_bound", Value: t.MemoryBound, Message: "must be positive"})
	}
	if t.TopK <= 0 {
		errs = append(errs, ValidationError{Field: "trainer.top_k", Value: t.TopK, Message: "must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateSolver() error {
	var errs ValidationErrors
	if c.Solver.TimeLimit <= 0 {
		errs = append(errs, ValidationError{Field: "solver.time_limit", Value: c.Solver.TimeLimit, Message: "must be positive"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
