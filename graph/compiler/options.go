package compiler

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/wbrown/janus-graph/graph/annotations"
)

// Options configures compilation.
type Options struct {
	// CheckConditions asserts every phase's required conditions before it
	// runs and its established conditions after. Meant for tests and
	// debugging; it re-runs rewrites to check them.
	CheckConditions bool `yaml:"check_conditions"`

	// EnableEstimation schedules the cardinality estimation phase when the
	// default phase set is used (default: true).
	EnableEstimation bool `yaml:"enable_estimation"`

	// AnnotateEstimates emits a compile/estimate event per pattern variable.
	AnnotateEstimates bool `yaml:"annotate_estimates"`

	// Timeout bounds a single compilation; zero means no limit beyond the
	// caller's context.
	Timeout time.Duration `yaml:"timeout"`

	// Handler receives annotation events. Nil disables annotations.
	Handler annotations.Handler `yaml:"-"`
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		EnableEstimation: true,
	}
}

// LoadOptions reads options from a YAML file. Fields absent from the file
// keep their default values.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrapf(err, "reading compiler options %s", path)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrapf(err, "parsing compiler options %s", path)
	}
	if opts.Timeout < 0 {
		return opts, errors.Newf("compiler options %s: negative timeout %s", path, opts.Timeout)
	}
	return opts, nil
}
