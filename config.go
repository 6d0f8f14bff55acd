package orchestrator

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultWorkerCount is the number of workers launched when JobConfig.WorkerCount is zero.
const DefaultWorkerCount = 2

// JobConfig is the raw job configuration as supplied by the caller
// (config file, flags, environment or code). Use NewWorkSpec to validate it.
type JobConfig struct {
	// InputCollectionID is the collection holding the items to partition (required).
	InputCollectionID string `json:"inputCollectionId" mapstructure:"inputCollectionId" validate:"required"`

	// OutputCollectionID optionally names one collection all workers write to.
	OutputCollectionID string `json:"outputCollectionId,omitempty" mapstructure:"outputCollectionId"`

	// WorkerTargetActorID launches workers from an actor. Mutually exclusive with WorkerTargetTaskID.
	WorkerTargetActorID string `json:"workerTargetActorId,omitempty" mapstructure:"workerTargetActorId" validate:"required_without=WorkerTargetTaskID,excluded_with=WorkerTargetTaskID"`

	// WorkerTargetTaskID launches workers from a task. Mutually exclusive with WorkerTargetActorID.
	WorkerTargetTaskID string `json:"workerTargetTaskId,omitempty" mapstructure:"workerTargetTaskId" validate:"required_without=WorkerTargetActorID"`

	// WorkerPayload is merged into every worker's input (default: empty).
	WorkerPayload map[string]any `json:"workerPayload,omitempty" mapstructure:"workerPayload"`

	// WorkerOptions are passed to every launch (default: empty).
	WorkerOptions map[string]any `json:"workerOptions,omitempty" mapstructure:"workerOptions"`

	// WorkerCount is the number of workers to launch (default: 2, minimum: 2).
	WorkerCount int `json:"workerCount,omitempty" mapstructure:"workerCount" validate:"omitempty,gte=2"`

	// ParentRunID is an optional correlation id forwarded to every worker.
	ParentRunID string `json:"parentRunId,omitempty" mapstructure:"parentRunId"`

	// AbortOthersOnFailure cancels still-running workers on the first failure.
	// Defaults to true, or to false when FireAndForget is set.
	AbortOthersOnFailure *bool `json:"abortOthersOnFailure,omitempty" mapstructure:"abortOthersOnFailure"`

	// FireAndForget launches workers and finishes without monitoring them (default: false).
	FireAndForget bool `json:"fireAndForget,omitempty" mapstructure:"fireAndForget"`

	// Anonymize strips launch handles and per-worker collection ids from the persisted report.
	Anonymize bool `json:"anonymize,omitempty" mapstructure:"anonymize"`

	// CountPartialOutput includes output of non-succeeded workers in the
	// item count of a failed job's report (default: false).
	CountPartialOutput bool `json:"countPartialOutput,omitempty" mapstructure:"countPartialOutput"`

	// WorkerTimeout cancels and marks TIMED_OUT any run still non-terminal
	// this long after its launch. Zero waits indefinitely.
	WorkerTimeout time.Duration `json:"workerTimeout,omitempty" mapstructure:"workerTimeout" validate:"gte=0"`
}

// WorkSpec is the validated, immutable job configuration.
// Downstream components never re-validate it.
type WorkSpec struct {
	InputCollectionID    string
	OutputCollectionID   string
	Target               Target
	WorkerCount          int
	Payload              map[string]any
	Options              LaunchOptions
	FireAndForget        bool
	AbortOthersOnFailure bool
	ParentRunID          string
	Anonymize            bool
	CountPartialOutput   bool
	WorkerTimeout        time.Duration
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewWorkSpec validates cfg, applies defaults and returns the resulting WorkSpec.
// Every returned error wraps ErrInvalidConfig.
func NewWorkSpec(cfg JobConfig) (WorkSpec, error) {
	if err := validate.Struct(cfg); err != nil {
		return WorkSpec{}, translateValidationError(err)
	}

	abortOthers := !cfg.FireAndForget
	if cfg.AbortOthersOnFailure != nil {
		abortOthers = *cfg.AbortOthersOnFailure
	}
	if cfg.FireAndForget && abortOthers {
		return WorkSpec{}, fmt.Errorf("%w: fireAndForget and abortOthersOnFailure are mutually exclusive", ErrInvalidConfig)
	}

	workerCount := cfg.WorkerCount
	if workerCount == 0 {
		workerCount = DefaultWorkerCount
	}

	target := ActorTarget(cfg.WorkerTargetActorID)
	if cfg.WorkerTargetTaskID != "" {
		target = TaskTarget(cfg.WorkerTargetTaskID)
	}

	payload := make(map[string]any, len(cfg.WorkerPayload))
	maps.Copy(payload, cfg.WorkerPayload)
	options := make(LaunchOptions, len(cfg.WorkerOptions))
	maps.Copy(options, cfg.WorkerOptions)

	return WorkSpec{
		InputCollectionID:    cfg.InputCollectionID,
		OutputCollectionID:   cfg.OutputCollectionID,
		Target:               target,
		WorkerCount:          workerCount,
		Payload:              payload,
		Options:              options,
		FireAndForget:        cfg.FireAndForget,
		AbortOthersOnFailure: abortOthers,
		ParentRunID:          cfg.ParentRunID,
		Anonymize:            cfg.Anonymize,
		CountPartialOutput:   cfg.CountPartialOutput,
		WorkerTimeout:        cfg.WorkerTimeout,
	}, nil
}

func translateValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: missing %q", ErrInvalidConfig, fe.Field())
	case "required_without":
		return fmt.Errorf("%w: missing \"workerTargetActorId\" and \"workerTargetTaskId\", one of them is required", ErrInvalidConfig)
	case "excluded_with":
		return fmt.Errorf("%w: provide either \"workerTargetActorId\" or \"workerTargetTaskId\", but not both", ErrInvalidConfig)
	case "gte":
		return fmt.Errorf("%w: %q must be %s or higher", ErrInvalidConfig, fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%w: %q failed %q validation", ErrInvalidConfig, fe.Field(), fe.Tag())
	}
}
