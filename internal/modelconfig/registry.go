package modelconfig

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// CoreWeightCeiling bounds the sum of the core base-score weights.
const CoreWeightCeiling = 1.5

// ParameterSpec declares one tunable parameter: its shipped default,
// hard bounds, category and core-weight group membership. The registry
// is the schema; runtime values live in the config store.
type ParameterSpec struct {
	Key        string  `yaml:"key"`
	Default    float64 `yaml:"default"`
	Min        float64 `yaml:"min"`
	Max        float64 `yaml:"max"`
	Category   string  `yaml:"category"`
	CoreWeight bool    `yaml:"core_weight"`
}

type registryFile struct {
	Parameters []ParameterSpec `yaml:"parameters"`
}

var (
	registry       map[string]ParameterSpec
	registryKeys   []string
	coreWeightKeys []string
)

func init() {
	var f registryFile
	if err := yaml.Unmarshal(defaultsYAML, &f); err != nil {
		panic(fmt.Sprintf("modelconfig: invalid embedded defaults: %v", err))
	}

	registry = make(map[string]ParameterSpec, len(f.Parameters))
	for _, spec := range f.Parameters {
		if spec.Key == "" {
			panic("modelconfig: embedded default with empty key")
		}
		if spec.Min > spec.Max || spec.Default < spec.Min || spec.Default > spec.Max {
			panic(fmt.Sprintf("modelconfig: inconsistent bounds for %s", spec.Key))
		}
		if !domain.ParameterCategory(spec.Category).RequiresRebuild() &&
			domain.ParameterCategory(spec.Category) != domain.CategoryTrade {
			panic(fmt.Sprintf("modelconfig: unknown category %q for %s", spec.Category, spec.Key))
		}
		if _, dup := registry[spec.Key]; dup {
			panic(fmt.Sprintf("modelconfig: duplicate parameter %s", spec.Key))
		}
		registry[spec.Key] = spec
		registryKeys = append(registryKeys, spec.Key)
		if spec.CoreWeight {
			coreWeightKeys = append(coreWeightKeys, spec.Key)
		}
	}
	sort.Strings(registryKeys)
	sort.Strings(coreWeightKeys)
}

// Lookup returns the spec for a key.
func Lookup(key string) (ParameterSpec, bool) {
	spec, ok := registry[key]
	return spec, ok
}

// Keys lists every known parameter key, sorted.
func Keys() []string {
	out := make([]string, len(registryKeys))
	copy(out, registryKeys)
	return out
}

// CoreWeightKeys lists the core-weight group members, sorted.
func CoreWeightKeys() []string {
	out := make([]string, len(coreWeightKeys))
	copy(out, coreWeightKeys)
	return out
}

// Defaults returns the shipped parameter values keyed by parameter key.
func Defaults() map[string]float64 {
	out := make(map[string]float64, len(registry))
	for key, spec := range registry {
		out[key] = spec.Default
	}
	return out
}

func (s ParameterSpec) category() domain.ParameterCategory {
	return domain.ParameterCategory(s.Category)
}
