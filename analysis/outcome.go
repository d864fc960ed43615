package analysis

// Stage names one step of the pipeline
type Stage string

const (
	StageLoad         Stage = "load"
	StageTempo        Stage = "tempo"
	StageSeparation   Stage = "separation"
	StageOnsets       Stage = "onsets"
	StageFrequencies  Stage = "frequencies"
	StageEnergyVocals Stage = "energy_vocals"
	StageEnergyDrums  Stage = "energy_drums"
	StageWrite        Stage = "write"
)

// Stages lists every stage in execution order
var Stages = []Stage{
	StageLoad,
	StageTempo,
	StageSeparation,
	StageOnsets,
	StageFrequencies,
	StageEnergyVocals,
	StageEnergyDrums,
	StageWrite,
}

// Outcome is the result of one stage. A degraded outcome carries the
// fallback value (empty, or zero for scalars) and the reason it was used.
type Outcome struct {
	Values   []float64 `json:"values"`
	Degraded bool      `json:"degraded"`
	Reason   string    `json:"reason,omitempty"`
}

// Succeeded wraps a stage's values
func Succeeded(values []float64) Outcome {
	if values == nil {
		values = []float64{}
	}
	return Outcome{Values: values}
}

// Degraded records a stage that fell back because of err
func Degraded(err error) Outcome {
	reason := "unknown failure"
	if err != nil {
		reason = err.Error()
	}
	return Outcome{Values: []float64{}, Degraded: true, Reason: reason}
}

// Scalar returns the first value, or 0 when there is none
func (o Outcome) Scalar() float64 {
	if len(o.Values) == 0 {
		return 0.0
	}
	return o.Values[0]
}
