package param

import (
	"math"

	"github.com/loykin/gestures/internal/take"
)

// SourceGesture tags parameter writes that come from playback so downstream
// consumers can tell them apart from live input.
const SourceGesture = "gesture"

// Payload keys understood by Resolve.
const (
	KeyParam      = "param"
	KeyParameter  = "parameter"
	KeyValue      = "value"
	KeyNormalized = "normalized"
)

// Def declares a parameter's range.
type Def struct {
	Name    string  `json:"name" mapstructure:"name"`
	Min     float64 `json:"min" mapstructure:"min"`
	Max     float64 `json:"max" mapstructure:"max"`
	Integer bool    `json:"integer" mapstructure:"integer"`
	Default float64 `json:"default" mapstructure:"default"`
}

// Registry supplies parameter ranges.
type Registry interface {
	Lookup(name string) (Def, bool)
}

// Writer is the optional capability of a Registry to accept values.
type Writer interface {
	Set(name string, value float64, source string) error
}

// Resolution is the outcome of resolving one event payload.
type Resolution struct {
	Param    string
	Value    float64
	Resolved bool
}

// ParamName returns the target parameter named by the payload, if any.
func ParamName(p take.Payload) string {
	if s, ok := p.String(KeyParam); ok {
		return s
	}
	s, _ := p.String(KeyParameter)
	return s
}

// Resolve turns a payload into a concrete value. An absolute "value" wins;
// otherwise "normalized" is clamped to [0,1] and mapped through the
// parameter's range, rounded for integer parameters. reg may be nil.
func Resolve(p take.Payload, reg Registry) Resolution {
	res := Resolution{Param: ParamName(p)}
	if v, ok := p.Number(KeyValue); ok {
		res.Value = v
		res.Resolved = true
		return res
	}
	n, ok := p.Number(KeyNormalized)
	if !ok || res.Param == "" || reg == nil {
		return res
	}
	def, ok := reg.Lookup(res.Param)
	if !ok {
		return res
	}
	res.Value = Denormalize(def, n)
	res.Resolved = true
	return res
}

// Denormalize maps a fraction of def's range to a concrete value.
func Denormalize(def Def, n float64) float64 {
	n = math.Max(0, math.Min(1, n))
	v := def.Min + n*(def.Max-def.Min)
	if def.Integer {
		v = math.Round(v)
	}
	return v
}
