package common

// RunOverrides allows a single /v1/completions request to override the
// assistant's configured defaults for that run only. Pointer fields
// distinguish "unset" (nil, fall back to assistant/global default) from an
// explicitly supplied value, including an explicit zero.
type RunOverrides struct {
	Temperature       *float32      `json:"temperature,omitempty"`
	MaxTurns          *int          `json:"maxTurns,omitempty"`
	ParallelToolCalls *bool         `json:"parallelToolCalls,omitempty"`
	RespectOffHours   *bool         `json:"respectOffHours,omitempty"`
	ModelConfig       *ModelConfig  `json:"modelConfig,omitempty"`
}

// RunDefaults holds the resolved (non-pointer) values an orchestrator run
// actually uses, after RunOverrides have been applied on top of the
// assistant/global defaults.
type RunDefaults struct {
	Temperature       float32
	MaxTurns          int
	ParallelToolCalls bool
	RespectOffHours   bool
	ModelConfig       ModelConfig
}

// Apply updates d with any non-nil override values.
func (o RunOverrides) Apply(d RunDefaults) RunDefaults {
	if o.Temperature != nil {
		d.Temperature = *o.Temperature
	}
	if o.MaxTurns != nil {
		d.MaxTurns = *o.MaxTurns
	}
	if o.ParallelToolCalls != nil {
		d.ParallelToolCalls = *o.ParallelToolCalls
	}
	if o.RespectOffHours != nil {
		d.RespectOffHours = *o.RespectOffHours
	}
	if o.ModelConfig != nil {
		d.ModelConfig = *o.ModelConfig
	}
	return d
}
