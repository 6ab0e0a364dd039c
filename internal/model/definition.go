package model

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/hhmmkit/internal/distribution"
	"github.com/kingrea/hhmmkit/internal/hierarchy"
	"github.com/kingrea/hhmmkit/internal/modelerr"
)

// Grouping strategies accepted in place of explicit classes.
const (
	StrategyIdentity = "identity"
	StrategyShared   = "shared"
	StrategySibling  = "sibling"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

var defValidate *validator.Validate

func init() {
	defValidate = validator.New()
	_ = defValidate.RegisterValidation("modelid", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
}

// Grouping declares the equality classes of one parameter, either as a named
// strategy or as explicit classes of states. Class members are state numbers
// or leaf names.
type Grouping struct {
	Strategy string     `json:"strategy,omitempty" yaml:"strategy,omitempty" validate:"omitempty,oneof=identity shared sibling"`
	Classes  [][]string `json:"classes,omitempty" yaml:"classes,omitempty"`
}

// UnmarshalYAML accepts a bare strategy name, a list of classes, or the
// expanded mapping form.
func (g *Grouping) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&g.Strategy)
	case yaml.SequenceNode:
		return node.Decode(&g.Classes)
	case yaml.MappingNode:
		type plain Grouping
		var out plain
		if err := node.Decode(&out); err != nil {
			return err
		}
		*g = Grouping(out)
		return nil
	default:
		return fmt.Errorf("model: line %d: grouping must be a strategy name or a list of classes", node.Line)
	}
}

// MarshalYAML writes the short form.
func (g Grouping) MarshalYAML() (any, error) {
	if g.Strategy != "" {
		return g.Strategy, nil
	}
	return g.Classes, nil
}

// Clone returns a deep copy.
func (g Grouping) Clone() Grouping {
	clone := Grouping{Strategy: g.Strategy}
	if len(g.Classes) > 0 {
		clone.Classes = make([][]string, len(g.Classes))
		for i, class := range g.Classes {
			clone.Classes[i] = append([]string(nil), class...)
		}
	}
	return clone
}

// StreamConstraints maps parameter names (e.g. "mean", "zeromass") to their
// grouping for one stream.
type StreamConstraints map[string]Grouping

// Definition declares one hierarchical HMM configuration.
type Definition struct {
	ID            string                          `json:"id" yaml:"id" validate:"required,modelid"`
	Name          string                          `json:"name,omitempty" yaml:"name,omitempty"`
	Description   string                          `json:"description,omitempty" yaml:"description,omitempty"`
	Hierarchy     hierarchy.Spec                  `json:"hierarchy" yaml:"hierarchy"`
	Distributions []distribution.LevelSpec        `json:"distributions,omitempty" yaml:"distributions,omitempty" validate:"dive"`
	Constraints   map[string]StreamConstraints    `json:"constraints,omitempty" yaml:"constraints,omitempty" validate:"dive,dive"`
	Initial       map[string]map[string][]float64 `json:"initial,omitempty" yaml:"initial,omitempty"`
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := Definition{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Hierarchy:   def.Hierarchy.Clone(),
	}
	if len(def.Distributions) > 0 {
		clone.Distributions = make([]distribution.LevelSpec, len(def.Distributions))
		for i, level := range def.Distributions {
			clone.Distributions[i] = distribution.LevelSpec{
				Level:   level.Level,
				Streams: append([]distribution.StreamSpec(nil), level.Streams...),
			}
		}
	}
	if len(def.Constraints) > 0 {
		clone.Constraints = make(map[string]StreamConstraints, len(def.Constraints))
		for stream, params := range def.Constraints {
			inner := make(StreamConstraints, len(params))
			for param, grouping := range params {
				inner[param] = grouping.Clone()
			}
			clone.Constraints[stream] = inner
		}
	}
	if len(def.Initial) > 0 {
		clone.Initial = make(map[string]map[string][]float64, len(def.Initial))
		for stream, params := range def.Initial {
			inner := make(map[string][]float64, len(params))
			for param, values := range params {
				inner[param] = append([]float64(nil), values...)
			}
			clone.Initial[stream] = inner
		}
	}
	return clone
}

// Validate checks field-level rules. Structural rules (unique names, known
// levels and families, partitions) are enforced by Build.
func (def Definition) Validate() error {
	if err := defValidate.Struct(def); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return validationError(def.ID, verrs)
		}
		return modelerr.Newf(modelerr.CodeInvalidDefinition, "model %s: %v", def.ID, err).WithCause(err)
	}
	for stream, params := range def.Constraints {
		for param, grouping := range params {
			if grouping.Strategy != "" && len(grouping.Classes) > 0 {
				return modelerr.Newf(modelerr.CodeInvalidDefinition,
					"model %s: constraint %s.%s sets both a strategy and explicit classes", def.ID, stream, param).
					With("stream", stream).
					With("param", param)
			}
			if grouping.Strategy == "" && len(grouping.Classes) == 0 {
				return modelerr.Newf(modelerr.CodeInvalidDefinition,
					"model %s: constraint %s.%s is empty", def.ID, stream, param).
					With("stream", stream).
					With("param", param)
			}
		}
	}
	return nil
}

// Normalized trims names, lowercases families and strategies, and validates.
func (def Definition) Normalized() (Definition, error) {
	clone := def.Clone()
	clone.ID = strings.TrimSpace(clone.ID)
	clone.Name = strings.TrimSpace(clone.Name)
	if clone.Name == "" {
		clone.Name = clone.ID
	}
	clone.Description = strings.TrimSpace(clone.Description)
	for i := range clone.Distributions {
		level := &clone.Distributions[i]
		level.Level = strings.TrimSpace(level.Level)
		for j := range level.Streams {
			level.Streams[j].Name = strings.TrimSpace(level.Streams[j].Name)
			level.Streams[j].Family = strings.ToLower(strings.TrimSpace(level.Streams[j].Family))
		}
	}
	for _, params := range clone.Constraints {
		for param, grouping := range params {
			grouping.Strategy = strings.ToLower(strings.TrimSpace(grouping.Strategy))
			params[param] = grouping
		}
	}
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

// Streams lists declared stream names in declaration order.
func (def Definition) Streams() []string {
	var out []string
	for _, level := range def.Distributions {
		for _, s := range level.Streams {
			out = append(out, s.Name)
		}
	}
	return out
}

func validationError(id string, verrs validator.ValidationErrors) error {
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	sort.Strings(fields)
	if id == "" {
		id = "<unnamed>"
	}
	err := modelerr.Newf(modelerr.CodeInvalidDefinition, "model %s: invalid fields: %s", id, strings.Join(fields, ", ")).
		WithCause(verrs)
	for _, fe := range verrs {
		if fe.Tag() == "modelid" {
			err.WithSuggestion("ids use lowercase letters, digits, '.', '_' and '-', e.g. porpoise-2x3")
			break
		}
	}
	return err
}
