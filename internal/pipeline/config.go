package pipeline

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
)

// Config is the declarative shape of one loading pipeline. Step maps
// carry a class_name discriminator plus that step's own parameters.
type Config struct {
	ReadingStep           map[string]any   `koanf:"reading_step"`
	PreprocessingSteps    []map[string]any `koanf:"preprocessing_steps"`
	AggregationSteps      []map[string]any `koanf:"aggregation_steps"`
	AggregationResolution *int             `koanf:"aggregation_resolution"`
	AggregationKeyCols    []string         `koanf:"aggregation_key_cols"`
	PostprocessingSteps   []map[string]any `koanf:"postprocessing_steps"`
	OutputStep            map[string]any   `koanf:"output_step"`
}

// LoadConfig reads a pipeline configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, geoerr.Wrap(geoerr.KindConfigInvalid, err,
			"failed to load pipeline config %s", path)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, geoerr.Wrap(geoerr.KindConfigInvalid, err,
			"failed to parse pipeline config %s", path)
	}
	return &cfg, nil
}

// Build resolves every configured step against the registries and
// assembles the pipeline. Unknown step names and invalid parameters
// fail here, before any I/O.
func Build(cfg *Config, deps Deps) (*Pipeline, error) {
	readName, readParams, err := splitStepConfig(cfg.ReadingStep, "reading")
	if err != nil {
		return nil, err
	}
	readFactory, ok := readerFactories[readName]
	if !ok {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"unknown reading step %q", readName)
	}
	reader, err := readFactory(readParams, deps)
	if err != nil {
		return nil, err
	}

	var pre []Preprocessor
	for _, raw := range cfg.PreprocessingSteps {
		name, params, err := splitStepConfig(raw, "preprocessing")
		if err != nil {
			return nil, err
		}
		factory, ok := preprocessorFactories[name]
		if !ok {
			return nil, geoerr.New(geoerr.KindConfigInvalid,
				"unknown preprocessing step %q", name)
		}
		step, err := factory(params, deps)
		if err != nil {
			return nil, err
		}
		pre = append(pre, step)
	}

	var aggs []Aggregation
	for _, raw := range cfg.AggregationSteps {
		name, params, err := splitStepConfig(raw, "aggregation")
		if err != nil {
			return nil, err
		}
		factory, ok := aggregationFactories[name]
		if !ok {
			return nil, geoerr.New(geoerr.KindConfigInvalid,
				"unknown aggregation step %q", name)
		}
		step, err := factory(params, deps)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, step)
	}

	var post []Postprocessor
	for _, raw := range cfg.PostprocessingSteps {
		name, params, err := splitStepConfig(raw, "postprocessing")
		if err != nil {
			return nil, err
		}
		factory, ok := postprocessorFactories[name]
		if !ok {
			return nil, geoerr.New(geoerr.KindConfigInvalid,
				"unknown postprocessing step %q", name)
		}
		step, err := factory(params, deps)
		if err != nil {
			return nil, err
		}
		post = append(post, step)
	}

	writeName, writeParams, err := splitStepConfig(cfg.OutputStep, "output")
	if err != nil {
		return nil, err
	}
	writeFactory, ok := writerFactories[writeName]
	if !ok {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"unknown output step %q", writeName)
	}
	writer, err := writeFactory(writeParams, deps)
	if err != nil {
		return nil, err
	}

	return NewPipeline(reader, pre, aggs, post, writer,
		cfg.AggregationResolution, cfg.AggregationKeyCols, deps.Logger)
}

// BuildFromFile loads a YAML pipeline configuration and builds it.
func BuildFromFile(path string, deps Deps) (*Pipeline, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return Build(cfg, deps)
}
