package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks runtime overrides, e.g. MANIFESTFLOW__TEMPORAL__HOST_PORT.
const EnvPrefix = "MANIFESTFLOW__"

type HTTP struct {
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
	RateLimit  float64       `koanf:"rate_limit"`
	RateBurst  int           `koanf:"rate_burst"`
}

type Synapse struct {
	RepoEndpoint string `koanf:"repo_endpoint"`
	FileEndpoint string `koanf:"file_endpoint"`
	TokenEnv     string `koanf:"token_env"`
	HTTP         HTTP   `koanf:"http"`
}

type SevenBridges struct {
	Endpoint        string        `koanf:"endpoint"`
	TokenEnv        string        `koanf:"token_env"`
	HTTP            HTTP          `koanf:"http"`
	PollInterval    time.Duration `koanf:"poll_interval"`
	PollMaxInterval time.Duration `koanf:"poll_max_interval"`
}

type Temporal struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

type Telemetry struct {
	MetricsPort int `koanf:"metrics_port"` // 0 disables the endpoint
	HealthPort  int `koanf:"health_port"`
}

// Preflight checks that manifest objects exist on the source bucket before
// any import is submitted.
type Preflight struct {
	Enabled      bool   `koanf:"enabled"`
	Endpoint     string `koanf:"endpoint"`
	Region       string `koanf:"region"`
	Insecure     bool   `koanf:"insecure"`
	AccessKeyEnv string `koanf:"access_key_env"`
	SecretKeyEnv string `koanf:"secret_key_env"`
	Concurrency  int    `koanf:"concurrency"`
}

type Viz struct {
	Filename string `koanf:"filename"`
	Format   string `koanf:"format"`
}

type Runtime struct {
	Synapse      Synapse      `koanf:"synapse"`
	SevenBridges SevenBridges `koanf:"sevenbridges"`
	Temporal     Temporal     `koanf:"temporal"`
	Telemetry    Telemetry    `koanf:"telemetry"`
	Preflight    Preflight    `koanf:"preflight"`
	Viz          Viz          `koanf:"viz"`
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// LoadRuntime merges YAML (if present) with env-vars
// (prefix `MANIFESTFLOW__`, delimiter `__`).
func LoadRuntime(path string) (Runtime, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Runtime{}, err
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return Runtime{}, fmt.Errorf("runtime schema_version %q not supported (want %s)", sv, SupportedSchema)
	}

	envKey := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}
	if err := k.Load(env.Provider(EnvPrefix, "__", envKey), nil); err != nil {
		return Runtime{}, err
	}

	var cfg Runtime
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyRuntimeDefaults(&cfg, k.Exists)
	return cfg, nil
}

// DefaultRuntime is the runtime config without any file or env overrides.
func DefaultRuntime() Runtime {
	var r Runtime
	applyRuntimeDefaults(&r, func(string) bool { return false })
	return r
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

// applyHTTPDefaults fills unset fields of the section at prefix. An explicit
// max_retries of 0 disables retries.
func applyHTTPDefaults(h *HTTP, prefix string, set func(string) bool) {
	if h.Timeout == 0 {
		h.Timeout = 30 * time.Second
	}
	if h.MaxRetries == 0 && !set(prefix+".max_retries") {
		h.MaxRetries = 3
	}
	if h.RateLimit == 0 {
		h.RateLimit = 10
	}
	if h.RateBurst == 0 {
		h.RateBurst = 5
	}
}

// set reports whether a key was given by the file or the environment.
func applyRuntimeDefaults(c *Runtime, set func(string) bool) {
	if c.Synapse.RepoEndpoint == "" {
		c.Synapse.RepoEndpoint = "https://repo-prod.prod.sagebase.org/repo/v1"
	}
	if c.Synapse.FileEndpoint == "" {
		c.Synapse.FileEndpoint = "https://repo-prod.prod.sagebase.org/file/v1"
	}
	if c.Synapse.TokenEnv == "" {
		c.Synapse.TokenEnv = "SYNAPSE_AUTH_TOKEN"
	}
	applyHTTPDefaults(&c.Synapse.HTTP, "synapse.http", set)

	if c.SevenBridges.Endpoint == "" {
		c.SevenBridges.Endpoint = "https://cavatica-api.sbgenomics.com/v2"
	}
	if c.SevenBridges.TokenEnv == "" {
		c.SevenBridges.TokenEnv = "SB_AUTH_TOKEN"
	}
	applyHTTPDefaults(&c.SevenBridges.HTTP, "sevenbridges.http", set)
	if c.SevenBridges.PollInterval == 0 {
		c.SevenBridges.PollInterval = time.Second
	}
	if c.SevenBridges.PollMaxInterval == 0 {
		c.SevenBridges.PollMaxInterval = 15 * time.Second
	}

	if c.Temporal.HostPort == "" {
		c.Temporal.HostPort = "localhost:7233"
	}
	if c.Temporal.Namespace == "" {
		c.Temporal.Namespace = "default"
	}
	if c.Temporal.TaskQueue == "" {
		c.Temporal.TaskQueue = "manifestflow"
	}

	if c.Telemetry.HealthPort == 0 {
		c.Telemetry.HealthPort = 9091
	}

	if c.Preflight.Endpoint == "" {
		c.Preflight.Endpoint = "s3.amazonaws.com"
	}
	if c.Preflight.Region == "" {
		c.Preflight.Region = "us-east-1"
	}
	if c.Preflight.AccessKeyEnv == "" {
		c.Preflight.AccessKeyEnv = "AWS_ACCESS_KEY_ID"
	}
	if c.Preflight.SecretKeyEnv == "" {
		c.Preflight.SecretKeyEnv = "AWS_SECRET_ACCESS_KEY"
	}
	if c.Preflight.Concurrency <= 0 {
		c.Preflight.Concurrency = 16
	}

	if c.Viz.Filename == "" {
		c.Viz.Filename = "flow"
	}
	if c.Viz.Format == "" {
		c.Viz.Format = "png"
	}
}
