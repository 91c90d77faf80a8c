package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order against one machine.
	Steps []Step `yaml:"steps"`
}

// Step is one action plus an optional expectation.
// Exactly one action field must be set.
type Step struct {
	Start   *StartStep   `yaml:"start,omitempty"`
	Page    *PageStep    `yaml:"page,omitempty"`
	Modify  *ModifyStep  `yaml:"modify,omitempty"`
	Remove  *RemoveStep  `yaml:"remove,omitempty"`
	Update  *UpdateStep  `yaml:"update,omitempty"`
	Refresh *RefreshStep `yaml:"refresh,omitempty"`
	Cancel  *CancelStep  `yaml:"cancel,omitempty"`

	// Advance moves the fake scheduler by a Go duration ("30s").
	Advance string `yaml:"advance,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Item describes one object in a page or update.
type Item struct {
	UID       string            `yaml:"uid"`
	Namespace string            `yaml:"namespace"`
	Name      string            `yaml:"name"`
	RV        string            `yaml:"rv"`
	Labels    map[string]string `yaml:"labels,omitempty"`
	Payload   map[string]any    `yaml:"payload,omitempty"`
}

// StartStep starts a fresh fetch.
type StartStep struct {
	Namespaces      []string          `yaml:"namespaces"`
	Limit           int               `yaml:"limit"`
	PageSize        int               `yaml:"page_size"`
	RefreshInterval string            `yaml:"refresh_interval"`
	Keywords        []string          `yaml:"keywords"`
	Fuzzy           string            `yaml:"fuzzy"`
	Labels          map[string]string `yaml:"labels"`
	Keep            []string          `yaml:"keep"`
}

// PageStep delivers a page. Activity and Refresh default to the current
// activity and mode.
type PageStep struct {
	Activity string `yaml:"activity"`
	Refresh  *bool  `yaml:"refresh"`
	Items    []Item `yaml:"items"`
	Continue string `yaml:"continue"`
}

// ModifyStep replaces the filter and/or limit.
type ModifyStep struct {
	Keywords    []string          `yaml:"keywords"`
	Fuzzy       string            `yaml:"fuzzy"`
	Labels      map[string]string `yaml:"labels"`
	ClearFilter bool              `yaml:"clear_filter"`
	Limit       *int              `yaml:"limit"`
}

// RemoveStep drops objects by UID.
type RemoveStep struct {
	UIDs []string `yaml:"uids"`
}

// UpdateStep merges patched objects.
type UpdateStep struct {
	Items []Item `yaml:"items"`
}

// RefreshStep starts a sweep. An empty Activity starts one unconditionally;
// "current" names the current activity.
type RefreshStep struct {
	Activity string `yaml:"activity"`
}

// CancelStep cancels the current activity.
type CancelStep struct{}

// Expect is checked against the state after a step. Unset fields are not
// checked.
type Expect struct {
	Items       []string       `yaml:"items"`
	Filtered    []string       `yaml:"filtered"`
	Finished    *bool          `yaml:"finished"`
	Refreshing  *bool          `yaml:"refreshing"`
	CanContinue *bool          `yaml:"can_continue"`
	WantsFetch  *bool          `yaml:"wants_fetch"`
	TimerArmed  *bool          `yaml:"timer_armed"`
	Activity    string         `yaml:"activity"`
	Request     *ExpectRequest `yaml:"request"`

	// Error is the expected transition error code.
	Error string `yaml:"error"`
}

// ExpectRequest is the next page request the state asks for.
type ExpectRequest struct {
	Namespace string `yaml:"namespace"`
	Continue  string `yaml:"continue"`
}

// Step kinds as they appear in traces.
const (
	StepStart   = "start"
	StepPage    = "page"
	StepModify  = "modify"
	StepRemove  = "remove"
	StepUpdate  = "update"
	StepRefresh = "refresh"
	StepCancel  = "cancel"
	StepAdvance = "advance"
)

// Kind returns the step kind, or "" when no action is set.
func (s Step) Kind() string {
	switch {
	case s.Start != nil:
		return StepStart
	case s.Page != nil:
		return StepPage
	case s.Modify != nil:
		return StepModify
	case s.Remove != nil:
		return StepRemove
	case s.Update != nil:
		return StepUpdate
	case s.Refresh != nil:
		return StepRefresh
	case s.Cancel != nil:
		return StepCancel
	case s.Advance != "":
		return StepAdvance
	}
	return ""
}

func (s Step) actionCount() int {
	n := 0
	for _, set := range []bool{
		s.Start != nil, s.Page != nil, s.Modify != nil, s.Remove != nil,
		s.Update != nil, s.Refresh != nil, s.Cancel != nil, s.Advance != "",
	} {
		if set {
			n++
		}
	}
	return n
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by path.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch step.actionCount() {
		case 0:
			return fmt.Errorf("steps[%d]: one action is required", i)
		case 1:
		default:
			return fmt.Errorf("steps[%d]: only one action per step", i)
		}
		if step.Advance != "" {
			if _, err := time.ParseDuration(step.Advance); err != nil {
				return fmt.Errorf("steps[%d].advance: %w", i, err)
			}
		}
		if step.Start != nil && step.Start.RefreshInterval != "" {
			if _, err := time.ParseDuration(step.Start.RefreshInterval); err != nil {
				return fmt.Errorf("steps[%d].start.refresh_interval: %w", i, err)
			}
		}
		for j, item := range step.items() {
			if item.UID == "" {
				return fmt.Errorf("steps[%d]: items[%d]: uid is required", i, j)
			}
		}
	}
	return nil
}

func (s Step) items() []Item {
	switch {
	case s.Page != nil:
		return s.Page.Items
	case s.Update != nil:
		return s.Update.Items
	}
	return nil
}
