package pipeline

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-viper/mapstructure/v2"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/registry"
	"github.com/hexmesh-labs/hexmesh/internal/store"
)

// ClassNameParam is the discriminator key naming a step in config.
const ClassNameParam = "class_name"

// Deps carries the shared collaborators a step factory may need.
type Deps struct {
	Catalog  *store.Catalog
	Registry *registry.Registry
	Logger   *slog.Logger
}

// Step factories construct a step from its decoded config parameters.
type (
	ReaderFactory        func(params map[string]any, deps Deps) (Reader, error)
	PreprocessorFactory  func(params map[string]any, deps Deps) (Preprocessor, error)
	AggregationFactory   func(params map[string]any, deps Deps) (Aggregation, error)
	PostprocessorFactory func(params map[string]any, deps Deps) (Postprocessor, error)
	WriterFactory        func(params map[string]any, deps Deps) (Writer, error)
)

var (
	readerFactories        = map[string]ReaderFactory{}
	preprocessorFactories  = map[string]PreprocessorFactory{}
	aggregationFactories   = map[string]AggregationFactory{}
	postprocessorFactories = map[string]PostprocessorFactory{}
	writerFactories        = map[string]WriterFactory{}
)

// RegisterReader adds a reading step to the registry. Step
// registration happens in init functions; a duplicate name is a
// programming error and panics.
func RegisterReader(name string, f ReaderFactory) {
	if _, dup := readerFactories[name]; dup {
		panic(fmt.Sprintf("pipeline: reader %s registered twice", name))
	}
	readerFactories[name] = f
}

// RegisterPreprocessor adds a preprocessing step to the registry.
func RegisterPreprocessor(name string, f PreprocessorFactory) {
	if _, dup := preprocessorFactories[name]; dup {
		panic(fmt.Sprintf("pipeline: preprocessor %s registered twice", name))
	}
	preprocessorFactories[name] = f
}

// RegisterAggregation adds an aggregation step to the registry.
func RegisterAggregation(name string, f AggregationFactory) {
	if _, dup := aggregationFactories[name]; dup {
		panic(fmt.Sprintf("pipeline: aggregation %s registered twice", name))
	}
	aggregationFactories[name] = f
}

// RegisterPostprocessor adds a postprocessing step to the registry.
func RegisterPostprocessor(name string, f PostprocessorFactory) {
	if _, dup := postprocessorFactories[name]; dup {
		panic(fmt.Sprintf("pipeline: postprocessor %s registered twice", name))
	}
	postprocessorFactories[name] = f
}

// RegisterWriter adds an output step to the registry.
func RegisterWriter(name string, f WriterFactory) {
	if _, dup := writerFactories[name]; dup {
		panic(fmt.Sprintf("pipeline: writer %s registered twice", name))
	}
	writerFactories[name] = f
}

// StepNames returns the registered step names of every kind, sorted.
func StepNames() []string {
	var names []string
	for n := range readerFactories {
		names = append(names, n)
	}
	for n := range preprocessorFactories {
		names = append(names, n)
	}
	for n := range aggregationFactories {
		names = append(names, n)
	}
	for n := range postprocessorFactories {
		names = append(names, n)
	}
	for n := range writerFactories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// splitStepConfig extracts the class_name discriminator and returns
// the remaining keys as the step's parameters.
func splitStepConfig(raw map[string]any, section string) (string, map[string]any, error) {
	if len(raw) == 0 {
		return "", nil, geoerr.New(geoerr.KindConfigInvalid,
			"%s step configuration is empty", section)
	}
	nameVal, ok := raw[ClassNameParam]
	if !ok {
		return "", nil, geoerr.New(geoerr.KindConfigInvalid,
			"%s step configuration is missing %s", section, ClassNameParam)
	}
	name, ok := nameVal.(string)
	if !ok || name == "" {
		return "", nil, geoerr.New(geoerr.KindConfigInvalid,
			"%s step %s must be a non-empty string", section, ClassNameParam)
	}
	params := make(map[string]any, len(raw)-1)
	for k, v := range raw {
		if k != ClassNameParam {
			params[k] = v
		}
	}
	return name, params, nil
}

// decodeParams maps loosely-typed config parameters onto a step's
// config struct, tolerating yaml's int/float looseness.
func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "koanf",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build parameter decoder: %w", err)
	}
	if err := dec.Decode(params); err != nil {
		return geoerr.Wrap(geoerr.KindConfigInvalid, err, "invalid step parameters")
	}
	return nil
}
