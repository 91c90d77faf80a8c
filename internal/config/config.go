package config

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/roach88/listsync/internal/engine"
	"github.com/roach88/listsync/internal/filter"
	"github.com/roach88/listsync/internal/object"
)

//go:embed schema.cue
var schemaCUE string

// Config is a loaded set of views.
type Config struct {
	Views map[string]View `json:"views"`
}

// View is one list view declaration with schema defaults applied.
type View struct {
	Name            string            `json:"name"`
	Group           string            `json:"group"`
	Version         string            `json:"version"`
	Kind            string            `json:"kind"`
	Namespaces      []string          `json:"namespaces"`
	PageSize        int               `json:"pageSize"`
	Limit           int               `json:"limit"`
	RefreshInterval string            `json:"refreshInterval"`
	Keywords        []string          `json:"keywords"`
	Fields          []string          `json:"fields"`
	Fuzzy           string            `json:"fuzzy"`
	Labels          map[string]string `json:"labels"`
	Keep            []string          `json:"keep"`

	interval time.Duration
}

// Error is a configuration error, positioned when CUE knows where it is.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads a configuration from a .cue file or a directory holding one
// CUE package.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Field: "path", Message: err.Error()}
	}

	ctx := cuecontext.New()
	var v cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &Error{Field: "path", Message: "no CUE instances in " + path}
		}
		if err := instances[0].Err; err != nil {
			return nil, formatCUEError(err)
		}
		v = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Field: "path", Message: err.Error()}
		}
		v = ctx.CompileBytes(data, cue.Filename(path))
	}
	return decode(ctx, v)
}

// Parse loads a configuration from CUE source text.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()
	return decode(ctx, ctx.CompileBytes(src, cue.Filename(filename)))
}

func decode(ctx *cue.Context, v cue.Value) (*Config, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	s := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := s.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := s.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	cfg := &Config{}
	if err := unified.Decode(cfg); err != nil {
		return nil, formatCUEError(err)
	}
	if cfg.Views == nil {
		cfg.Views = map[string]View{}
	}

	for name, view := range cfg.Views {
		d, err := time.ParseDuration(view.RefreshInterval)
		if err != nil {
			return nil, &Error{
				Field:   "views." + name + ".refreshInterval",
				Message: err.Error(),
				Pos:     unified.LookupPath(cue.MakePath(cue.Str("views"), cue.Str(name), cue.Str("refreshInterval"))).Pos(),
			}
		}
		view.interval = d
		cfg.Views[name] = view
	}
	return cfg, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Field: "cue", Message: err.Error()}
	}

	first := errs[0]
	e := &Error{Field: "cue", Message: first.Error()}
	if path := first.Path(); len(path) > 0 {
		e.Field = joinPath(path)
	}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}

func joinPath(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += "." + p
	}
	return out
}

// Names returns the view names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Views))
	for name := range c.Views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// View returns the named view.
func (c *Config) View(name string) (View, error) {
	v, ok := c.Views[name]
	if !ok {
		return View{}, &Error{Field: "view", Message: fmt.Sprintf("view %q not declared", name)}
	}
	return v, nil
}

// GVK returns the resource the view lists.
func (v View) GVK() schema.GroupVersionKind {
	return schema.GroupVersionKind{Group: v.Group, Version: v.Version, Kind: v.Kind}
}

// Interval returns the parsed refresh interval.
func (v View) Interval() time.Duration {
	return v.interval
}

// Filter builds the view predicate, nil when the view is unfiltered.
func (v View) Filter() object.Predicate {
	return filter.All(
		filter.Keywords(v.Keywords, v.Fields...),
		filter.Fuzzy(v.Fuzzy),
		filter.Labels(v.Labels),
	)
}

// labelsPath is where Labels reads an object's labels.
const labelsPath = "metadata.labels"

// Prune builds the view projection, nil when payloads are kept whole.
// Pruning runs before filtering, so the payload paths the filter reads
// (keyword fields, labels) are kept alongside Keep.
func (v View) Prune() object.Projection {
	if len(v.Keep) == 0 {
		return nil
	}
	paths := slices.Clone(v.Keep)
	paths = append(paths, v.Fields...)
	if len(v.Labels) > 0 {
		paths = append(paths, labelsPath)
	}
	slices.Sort(paths)
	return filter.KeepFields(slices.Compact(paths)...)
}

// StartFetch returns the action that starts this view.
func (v View) StartFetch() engine.StartFetch {
	return engine.StartFetch{
		Namespaces:      v.Namespaces,
		Filter:          v.Filter(),
		Prune:           v.Prune(),
		Limit:           v.Limit,
		PageSize:        v.PageSize,
		RefreshInterval: v.interval,
	}
}
