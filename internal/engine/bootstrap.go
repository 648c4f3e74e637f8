package engine

import (
	"errors"
	"fmt"
	"io/fs"

	"manifestflow/internal/config"
	"manifestflow/internal/flow"
	"manifestflow/internal/manifest"
	"manifestflow/internal/pipeline"
	"manifestflow/internal/platform/sevenbridges"
	"manifestflow/internal/platform/synapse"
	"manifestflow/internal/preflight"
	"manifestflow/internal/rest"
	"manifestflow/internal/spec"
)

type Config struct {
	// PipelineYml is optional; a missing file means the stock pipeline.
	PipelineYml string
	// RuntimeYml overrides the runtime path named in the pipeline file.
	RuntimeYml string
}

func Bootstrap(cfg Config) (*Engine, error) {
	// 1. pipeline definition
	def := config.DefaultPipeline()
	runtimePath := cfg.RuntimeYml
	if cfg.PipelineYml != "" {
		loaded, rp, err := config.LoadPipelineSpec(cfg.PipelineYml)
		switch {
		case err == nil:
			def = loaded
			if runtimePath == "" {
				runtimePath = rp
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}

	// 2. runtime config
	rt, err := config.LoadRuntime(runtimePath)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}

	sep, err := manifest.ParseSeparator(def.Manifest.Separator)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	// 3. platform clients
	e := &Engine{
		def: def,
		rt:  rt,
		sep: sep,
		synapse: synapse.New(synapse.Config{
			RepoEndpoint: rt.Synapse.RepoEndpoint,
			FileEndpoint: rt.Synapse.FileEndpoint,
			HTTP:         httpConfig(rt.Synapse.HTTP),
		}),
		sevenBridges: sevenbridges.New(sevenbridges.Config{
			Endpoint:        rt.SevenBridges.Endpoint,
			HTTP:            httpConfig(rt.SevenBridges.HTTP),
			PollInterval:    rt.SevenBridges.PollInterval,
			PollMaxInterval: rt.SevenBridges.PollMaxInterval,
		}),
	}

	// 4. optional preflight
	if rt.Preflight.Enabled {
		if e.preflight, err = preflight.New(rt.Preflight); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func httpConfig(h config.HTTP) rest.Config {
	c := rest.DefaultConfig()
	c.Timeout = h.Timeout
	c.MaxRetries = h.MaxRetries
	c.RateLimit = h.RateLimit
	c.RateBurst = h.RateBurst
	return c
}

func (e *Engine) options(runID string) flow.Options {
	return flow.Options{
		Pipeline:             e.def.Name,
		RunID:                runID,
		SynapseTokenEnv:      e.rt.Synapse.TokenEnv,
		SevenBridgesTokenEnv: e.rt.SevenBridges.TokenEnv,
		Separator:            e.sep,
		OutputName:           e.def.Manifest.OutputName,
		Transform: manifest.Transform{
			URIPrefix: e.def.Transform.URIPrefix,
			Namespace: e.def.Transform.Namespace,
		},
		Import: pipeline.MapOptions{
			Concurrency: e.def.Import.Concurrency,
			Timeout:     e.def.Import.Timeout,
			Isolate:     e.def.Import.IsolateFailures,
		},
	}
}

func (e *Engine) deps(events flow.EventSink) flow.Deps {
	d := flow.Deps{
		Synapse:      e.synapse,
		SevenBridges: e.sevenBridges,
		Events:       events,
	}
	if e.preflight != nil {
		d.Preflight = e.preflight
	}
	return d
}

// Definition returns the pipeline definition the engine runs.
func (e *Engine) Definition() spec.File { return e.def }
