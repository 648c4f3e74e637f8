package spec

import "time"

// Parameters are the string inputs of one import run.
type Parameters struct {
	ManifestID       string `yaml:"manifest_id" json:"manifest_id"`
	SynapseFolder    string `yaml:"synapse_folder" json:"synapse_folder"`
	ProjectName      string `yaml:"project_name" json:"project_name"`
	BillingGroupName string `yaml:"billing_group_name" json:"billing_group_name"`
	AppID            string `yaml:"app_id" json:"app_id"`
	VolumeName       string `yaml:"volume_name" json:"volume_name"`
}

type ManifestSpec struct {
	// Separator of the input manifest: "," or "\t".
	Separator  string `yaml:"separator"`
	OutputName string `yaml:"output_name"`
}

type TransformSpec struct {
	URIPrefix string `yaml:"uri_prefix"`
	Namespace string `yaml:"namespace"`
}

type ImportSpec struct {
	Concurrency     int           `yaml:"concurrency"`
	Timeout         time.Duration `yaml:"timeout"`
	IsolateFailures bool          `yaml:"isolate_failures"`
}

type KafkaSinkSpec struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Version string   `yaml:"version"`
}

type NATSSinkSpec struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type StdoutSinkSpec struct {
	Pretty bool `yaml:"pretty"`
}

type sinkConfigs struct {
	Kafka  KafkaSinkSpec  `yaml:"kafka"`
	NATS   NATSSinkSpec   `yaml:"nats"`
	Stdout StdoutSinkSpec `yaml:"stdout"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`
	// Name is the registration name of the pipeline.
	Name string `yaml:"name"`

	Parameters Parameters    `yaml:"parameters"`
	Manifest   ManifestSpec  `yaml:"manifest"`
	Transform  TransformSpec `yaml:"transform"`
	Import     ImportSpec    `yaml:"import"`

	// Sinks receive one event per imported row.
	Sinks       []string    `yaml:"sinks"`
	SinkConfigs sinkConfigs `yaml:"sink_configs"`

	// Runtime is the path of the runtime config, relative to this file.
	Runtime string `yaml:"runtime"`
}
