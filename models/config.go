package models

// WorkerConfig is the parsed, defaulted configuration for a single pipeline
// entity — a converter (Transceiver), a producer, or a receiver — as it
// appears under one of the three top-level sections of a pipeline YAML file.
type WorkerConfig struct {
	// Name identifies this entity within the pipeline. Must be unique per
	// section.
	Name string `yaml:"name"`

	// Kind selects the plugin implementation via the plugin registry, e.g.
	// "forwarder", "threshold", "syntheticproducer".
	Kind string `yaml:"kind"`

	// Frontend endpoints this entity receives from (SUB-connects, or
	// DEALER-connects when Bidirectional is true). Empty for a pure
	// Producer.
	Frontend []Endpoint `yaml:"frontend,omitempty"`

	// Backend endpoints this entity publishes to (PUB-binds, or
	// DEALER-binds when Bidirectional is true).
	Backend []Endpoint `yaml:"backend,omitempty"`

	// Bidirectional selects the DEALER-both-ends wiring instead of the
	// default PUB-backend/SUB-frontend wiring (spec.md §9).
	Bidirectional bool `yaml:"bidirectional,omitempty"`

	// MaxBuffer bounds the worker's inbound queue depth (one queue shared by
	// all its frontends). Excess inbound messages are dropped (I3). Zero
	// means the package default (10).
	MaxBuffer int `yaml:"max_buffer,omitempty"`

	// Codec names a wire serialization, "jsonnum" (the default filled in by
	// config.Load) or "packed". The Manager does not read it: every worker
	// it starts uses the jsonnum codec.
	Codec string `yaml:"codec,omitempty"`

	// Period is the producer tick interval, e.g. "50ms". Ignored by
	// converters and receivers.
	Period string `yaml:"period,omitempty"`

	// Options carries plugin-specific free-form configuration, decoded by
	// the plugin itself.
	Options map[string]any `yaml:"options,omitempty"`
}

// Endpoint is a single network endpoint a Transceiver, Producer, or Receiver
// binds to or connects to.
type Endpoint struct {
	// Name identifies the endpoint within its entity (e.g. "main",
	// "trigger"), used by an Interpreter to distinguish multiple frontends.
	Name string `yaml:"name,omitempty"`

	// Address is the canonical endpoint URI, e.g. "tcp://127.0.0.1:5678"
	// or "inproc://test-bus".
	Address string `yaml:"address"`
}

// PipelineConfig is the fully decoded, defaults-merged form of one pipeline
// YAML tree: the three sections a Manager supervises.
type PipelineConfig struct {
	ProducerSim []WorkerConfig `yaml:"producer_sim,omitempty"`
	Converter   []WorkerConfig `yaml:"converter,omitempty"`
	Receiver    []WorkerConfig `yaml:"receiver,omitempty"`
}
