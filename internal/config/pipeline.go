package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"manifestflow/internal/spec"
)

const (
	SupportedSchema = "v1"

	DefaultName       = "demo"
	DefaultOutputName = "sbg_manifest.csv"
)

// ExampleParameters is the parameter set runs use when none is configured.
var ExampleParameters = spec.Parameters{
	ManifestID:       "syn31937724",
	SynapseFolder:    "syn33335225",
	ProjectName:      "include-sandbox",
	BillingGroupName: "include-dev",
	AppID:            "cavatica/apps-publisher/kfdrc-rnaseq-workflow",
	VolumeName:       "include_sandbox_ro",
}

// DefaultPipeline is the definition used without a pipeline file.
func DefaultPipeline() spec.File {
	var f spec.File
	applyPipelineDefaults(&f)
	return f
}

// LoadPipelineSpec parses a pipeline YAML, validates schema_version, and
// returns the parsed spec and an absolute path to the runtime config (if set).
func LoadPipelineSpec(path string) (spec.File, string, error) {
	var cfg spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, "", err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, "", fmt.Errorf("pipeline %s: %w", path, err)
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, "", fmt.Errorf("pipeline schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	applyPipelineDefaults(&cfg)
	if err := validateSinks(cfg); err != nil {
		return cfg, "", err
	}

	confPath := cfg.Runtime
	if confPath != "" && !filepath.IsAbs(confPath) {
		confPath = filepath.Join(filepath.Dir(path), confPath)
	}
	return cfg, confPath, nil
}

func applyPipelineDefaults(c *spec.File) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Parameters == (spec.Parameters{}) {
		c.Parameters = ExampleParameters
	}
	if c.Manifest.Separator == "" {
		c.Manifest.Separator = ","
	}
	if c.Manifest.OutputName == "" {
		c.Manifest.OutputName = DefaultOutputName
	}
	if c.Transform.URIPrefix == "" {
		c.Transform.URIPrefix = "s3://include-sandbox/synapse/"
	}
	if c.Transform.Namespace == "" {
		c.Transform.Namespace = "synapse"
	}
	if c.Import.Concurrency <= 0 {
		c.Import.Concurrency = 8
	}
	if c.Import.Timeout <= 0 {
		c.Import.Timeout = 30 * time.Minute
	}
	if c.SinkConfigs.Kafka.Topic == "" {
		c.SinkConfigs.Kafka.Topic = "manifestflow.imports"
	}
	if c.SinkConfigs.NATS.Subject == "" {
		c.SinkConfigs.NATS.Subject = "manifestflow.imports"
	}
}

func validateSinks(c spec.File) error {
	for _, s := range c.Sinks {
		switch s {
		case "stdout":
		case "kafka":
			if len(c.SinkConfigs.Kafka.Brokers) == 0 {
				return fmt.Errorf("sink kafka: no brokers configured")
			}
		case "nats":
			if c.SinkConfigs.NATS.URL == "" {
				return fmt.Errorf("sink nats: no url configured")
			}
		default:
			return fmt.Errorf("unsupported sink %q", s)
		}
	}
	return nil
}
