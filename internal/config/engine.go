package config

// Inference strategies.
const (
	StrategySemiNaive = "semi-naive"
	StrategyNaive     = "naive"
)

// EngineConfig configures fixpoint evaluation.
type EngineConfig struct {
	// Rounds allowed before a call fails with a non-termination error.
	MaxIterations int    `yaml:"max_iterations" validate:"gte=1"`
	Strategy      string `yaml:"strategy" validate:"oneof=semi-naive naive"`
	// Rules evaluated concurrently within one round; 1 is sequential.
	Parallelism int `yaml:"parallelism" validate:"gte=1,lte=256"`
	// Recursion limit for backward-chaining proofs.
	ProofDepth int `yaml:"proof_depth" validate:"gte=1"`
}

// StreamConfig holds defaults for continuous queries.
type StreamConfig struct {
	WindowSize uint64 `yaml:"window_size" validate:"gte=1"`
	Slide      uint64 `yaml:"slide" validate:"gte=1"`
	Operator   string `yaml:"operator" validate:"oneof=rstream istream dstream"`
}
