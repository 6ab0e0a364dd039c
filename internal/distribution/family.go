package distribution

import (
	"fmt"
	"math"
	"strconv"

	"github.com/kingrea/hhmmkit/internal/modelerr"
)

// ParamKind enumerates the natural parameters a family can expose.
type ParamKind int

const (
	ParamMean ParamKind = iota + 1
	ParamSD
	ParamZeroMass
	ParamShape
	ParamScale
	ParamLocation
	ParamRate
	ParamConcentration
	ParamShape1
	ParamShape2
	ParamLambda
	ParamProb
)

var paramKindNames = map[ParamKind]string{
	ParamMean:          "mean",
	ParamSD:            "sd",
	ParamZeroMass:      "zeromass",
	ParamShape:         "shape",
	ParamScale:         "scale",
	ParamLocation:      "location",
	ParamRate:          "rate",
	ParamConcentration: "concentration",
	ParamShape1:        "shape1",
	ParamShape2:        "shape2",
	ParamLambda:        "lambda",
	ParamProb:          "prob",
}

// String returns the parameter's short name.
func (k ParamKind) String() string {
	if name, ok := paramKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ParamKind(%d)", int(k))
}

// Param identifies one parameter type of a family. Index is only set for
// categorical probabilities (prob1, prob2, ...).
type Param struct {
	Kind  ParamKind
	Index int
}

// String renders the parameter as used in labels and definitions.
func (p Param) String() string {
	if p.Index > 0 {
		return p.Kind.String() + strconv.Itoa(p.Index)
	}
	return p.Kind.String()
}

// ParseParam resolves a parameter name against a family's parameter list.
func (f Family) ParseParam(name string) (Param, bool) {
	for _, spec := range f.params {
		if spec.param.String() == name {
			return spec.param, true
		}
	}
	return Param{}, false
}

// Support is the admissible range of a parameter value.
type Support int

const (
	SupportReal Support = iota
	SupportPositive
	SupportUnit     // [0, 1]
	SupportUnitOpen // (0, 1)
	SupportAngle    // (-pi, pi]
)

func (s Support) contains(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	switch s {
	case SupportPositive:
		return v > 0
	case SupportUnit:
		return v >= 0 && v <= 1
	case SupportUnitOpen:
		return v > 0 && v < 1
	case SupportAngle:
		return v > -math.Pi && v <= math.Pi
	default:
		return true
	}
}

func (s Support) String() string {
	switch s {
	case SupportPositive:
		return "(0, inf)"
	case SupportUnit:
		return "[0, 1]"
	case SupportUnitOpen:
		return "(0, 1)"
	case SupportAngle:
		return "(-pi, pi]"
	default:
		return "(-inf, inf)"
	}
}

type paramSpec struct {
	param   Param
	support Support
}

// Family is an observation distribution family with a fixed, ordered
// parameter list.
type Family struct {
	name     string
	params   []paramSpec
	circular bool
}

// Name returns the catalog name, e.g. "gamma" or "cat3".
func (f Family) Name() string {
	return f.name
}

// Circular reports whether observations are angles (turning angle streams).
func (f Family) Circular() bool {
	return f.circular
}

// Params returns the ordered parameter types.
func (f Family) Params() []Param {
	out := make([]Param, len(f.params))
	for i, spec := range f.params {
		out[i] = spec.param
	}
	return out
}

// ParamCount is the number of parameters per state.
func (f Family) ParamCount() int {
	return len(f.params)
}

// CheckValues verifies one state's parameter values against the family support.
func (f Family) CheckValues(values []float64) error {
	if len(values) != len(f.params) {
		return modelerr.Newf(modelerr.CodeInvalidParameter, "%s expects %d parameters, got %d", f.name, len(f.params), len(values)).
			With("family", f.name)
	}
	var probSum float64
	for i, spec := range f.params {
		v := values[i]
		if !spec.support.contains(v) {
			return modelerr.Newf(modelerr.CodeInvalidParameter, "%s %s = %g is outside %s", f.name, spec.param, v, spec.support).
				With("family", f.name).
				With("param", spec.param.String())
		}
		if spec.param.Kind == ParamProb && spec.param.Index > 0 {
			probSum += v
		}
	}
	if probSum > 1+1e-12 {
		return modelerr.Newf(modelerr.CodeInvalidParameter, "%s category probabilities sum to %g > 1", f.name, probSum).
			With("family", f.name)
	}
	return nil
}

func newFamily(name string, circular bool, specs ...paramSpec) Family {
	return Family{name: name, params: specs, circular: circular}
}

func p(kind ParamKind, support Support) paramSpec {
	return paramSpec{param: Param{Kind: kind}, support: support}
}

// Categorical returns the catN family: N categories, N-1 free probabilities.
func Categorical(categories int) (Family, error) {
	if categories < 2 {
		return Family{}, modelerr.Newf(modelerr.CodeUnknownDistributionFamily, "cat%d: at least two categories are required", categories)
	}
	specs := make([]paramSpec, categories-1)
	for i := range specs {
		specs[i] = paramSpec{param: Param{Kind: ParamProb, Index: i + 1}, support: SupportUnit}
	}
	return newFamily("cat"+strconv.Itoa(categories), false, specs...), nil
}

func catalog() []Family {
	return []Family{
		newFamily("gamma", false, p(ParamMean, SupportPositive), p(ParamSD, SupportPositive)),
		newFamily("zigamma", false, p(ParamMean, SupportPositive), p(ParamSD, SupportPositive), p(ParamZeroMass, SupportUnit)),
		newFamily("weibull", false, p(ParamShape, SupportPositive), p(ParamScale, SupportPositive)),
		newFamily("ziweibull", false, p(ParamShape, SupportPositive), p(ParamScale, SupportPositive), p(ParamZeroMass, SupportUnit)),
		newFamily("lnorm", false, p(ParamLocation, SupportReal), p(ParamScale, SupportPositive)),
		newFamily("exp", false, p(ParamRate, SupportPositive)),
		newFamily("norm", false, p(ParamMean, SupportReal), p(ParamSD, SupportPositive)),
		newFamily("vm", true, p(ParamMean, SupportAngle), p(ParamConcentration, SupportPositive)),
		newFamily("wrpcauchy", true, p(ParamMean, SupportAngle), p(ParamConcentration, SupportUnitOpen)),
		newFamily("beta", false, p(ParamShape1, SupportPositive), p(ParamShape2, SupportPositive)),
		newFamily("pois", false, p(ParamLambda, SupportPositive)),
		newFamily("bern", false, p(ParamProb, SupportUnit)),
	}
}
