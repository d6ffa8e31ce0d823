// Package reflection mines the event log after the fact: the calibration
// detector looks for prediction biases, the friction analyzer resolves
// contradictions between frictions and accumulated knowledge.
package reflection

import (
	"fmt"
	"strings"
	"time"

	"github.com/boshu2/cadence/internal/runtree"
	"github.com/boshu2/cadence/internal/types"
)

// Minimum-data requirements for each bias check. Below these the check
// never fires, regardless of how skewed the data looks.
const (
	minValidationsOverconfidence = 5
	minQuantitativePredictions   = 3
	minAttributedObservations    = 8
	minValidationsDomainBias     = 5
)

// Trigger thresholds.
const (
	overconfidenceIncorrectRate = 0.70
	overconfidenceLexiconRate   = 0.50
	estimationDriftMissRate     = 0.25
	accuracySpreadThreshold     = 0.40
)

// confidentLexicon is the fixed confident-language vocabulary the
// overconfidence check matches prediction text against.
var confidentLexicon = []string{
	"definitely",
	"certainly",
	"obviously",
	"clearly",
	"undoubtedly",
	"guaranteed",
	"trivially",
	"easily",
	"of course",
	"no doubt",
}

// Detector scans a run's observations and validations for prediction
// biases and writes one calibration reflection per detected bias.
type Detector struct {
	Store *runtree.Store
}

// NewDetector builds a detector over a run tree.
func NewDetector(store *runtree.Store) *Detector {
	return &Detector{Store: store}
}

// DetectResult reports the reflections one Detect pass wrote.
type DetectResult struct {
	// RunID is the scanned run.
	RunID string `json:"run_id"`

	// Reflections holds the calibration reflections, plus one synthesis
	// reflection when two or more biases fired in the same pass.
	Reflections []types.Reflection `json:"reflections,omitempty"`
}

// Detect scans every log level of the run, applies the four bias checks,
// and appends the resulting reflections at run level.
func (d *Detector) Detect(runID string) (*DetectResult, error) {
	observations, validations, err := d.collect(runID)
	if err != nil {
		return nil, err
	}

	var detected []types.Reflection
	if r := detectOverconfidence(observations, validations); r != nil {
		detected = append(detected, *r)
	}
	if r := detectEstimationDrift(observations, validations); r != nil {
		detected = append(detected, *r)
	}
	if r := detectPredictorDivergence(observations, validations); r != nil {
		detected = append(detected, *r)
	}
	if r := detectDomainBias(observations, validations); r != nil {
		detected = append(detected, *r)
	}

	if len(detected) >= 2 {
		ids := make([]string, 0, len(detected))
		biases := make([]string, 0, len(detected))
		for _, r := range detected {
			ids = append(ids, r.ID)
			biases = append(biases, string(r.Bias))
		}
		detected = append(detected, types.Reflection{
			ID:        types.NewID("refl"),
			Kind:      types.ReflectionSynthesis,
			Timestamp: time.Now().UTC(),
			Summary: fmt.Sprintf("multiple calibration biases detected together: %s",
				strings.Join(biases, ", ")),
			ReflectionIDs: ids,
		})
	}

	addr := runtree.Address{RunID: runID}
	for i := range detected {
		if err := d.Store.AppendReflection(addr, &detected[i]); err != nil {
			return nil, err
		}
	}

	return &DetectResult{RunID: runID, Reflections: detected}, nil
}

// collect gathers observations and validation reflections from every log
// level of the run, tagging observations with their stage category.
func (d *Detector) collect(runID string) ([]types.Observation, []types.Reflection, error) {
	addrs, err := d.Store.LogAddresses(runID)
	if err != nil {
		return nil, nil, err
	}

	var observations []types.Observation
	var validations []types.Reflection
	for _, addr := range addrs {
		obs, err := d.Store.ReadObservations(addr)
		if err != nil {
			return nil, nil, err
		}
		for _, o := range obs {
			if o.Category == "" {
				o.Category = addr.Stage
			}
			observations = append(observations, o)
		}

		refls, err := d.Store.ReadReflections(addr)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range refls {
			if r.Kind == types.ReflectionValidation {
				validations = append(validations, r)
			}
		}
	}
	return observations, validations, nil
}

func detectOverconfidence(observations []types.Observation, validations []types.Reflection) *types.Reflection {
	if len(validations) < minValidationsOverconfidence {
		return nil
	}

	incorrect := 0
	var evidence []string
	for _, v := range validations {
		if v.Correct != nil && !*v.Correct {
			incorrect++
		}
		evidence = append(evidence, v.ObservationIDs...)
	}
	incorrectRate := float64(incorrect) / float64(len(validations))
	if incorrectRate <= overconfidenceIncorrectRate {
		return nil
	}

	predictions := 0
	confident := 0
	for _, o := range observations {
		if o.Kind != types.ObservationPrediction {
			continue
		}
		predictions++
		if usesConfidentLanguage(o.Content) {
			confident++
		}
	}
	if predictions == 0 || float64(confident)/float64(predictions) <= overconfidenceLexiconRate {
		return nil
	}

	return &types.Reflection{
		ID:        types.NewID("refl"),
		Kind:      types.ReflectionCalibration,
		Timestamp: time.Now().UTC(),
		Bias:      types.BiasOverconfidence,
		Summary: fmt.Sprintf("%.0f%% of %d validated predictions were wrong while %d/%d predictions used confident language",
			incorrectRate*100, len(validations), confident, predictions),
		ObservationIDs: evidence,
	}
}

func detectEstimationDrift(observations []types.Observation, validations []types.Reflection) *types.Reflection {
	quantIDs := make(map[string]bool)
	for _, o := range observations {
		if o.Kind == types.ObservationPrediction && o.Quantitative != nil {
			quantIDs[o.ID] = true
		}
	}
	if len(quantIDs) < minQuantitativePredictions {
		return nil
	}

	matched := 0
	missed := 0
	var evidence []string
	for _, v := range validations {
		if !quantIDs[v.PredictionID] {
			continue
		}
		matched++
		evidence = append(evidence, v.PredictionID)
		if v.Correct != nil && !*v.Correct {
			missed++
		}
	}
	if matched == 0 {
		return nil
	}
	missRate := float64(missed) / float64(matched)
	if missRate <= estimationDriftMissRate {
		return nil
	}

	return &types.Reflection{
		ID:        types.NewID("refl"),
		Kind:      types.ReflectionCalibration,
		Timestamp: time.Now().UTC(),
		Bias:      types.BiasEstimationDrift,
		Summary: fmt.Sprintf("quantitative predictions missed %.0f%% of the time across %d matched validations",
			missRate*100, matched),
		ObservationIDs: evidence,
	}
}

func detectPredictorDivergence(observations []types.Observation, validations []types.Reflection) *types.Reflection {
	attributed := 0
	predictionAgent := make(map[string]string)
	agents := make(map[string]bool)
	for _, o := range observations {
		if o.AgentID == "" {
			continue
		}
		attributed++
		agents[o.AgentID] = true
		if o.Kind == types.ObservationPrediction {
			predictionAgent[o.ID] = o.AgentID
		}
	}
	if attributed < minAttributedObservations || len(agents) < 2 {
		return nil
	}

	correct := make(map[string]int)
	total := make(map[string]int)
	for _, v := range validations {
		agent, ok := predictionAgent[v.PredictionID]
		if !ok {
			continue
		}
		total[agent]++
		if v.Correct != nil && *v.Correct {
			correct[agent]++
		}
	}
	if len(total) < 2 {
		return nil
	}

	bestAgent, worstAgent := "", ""
	best, worst := -1.0, 2.0
	for agent, n := range total {
		accuracy := float64(correct[agent]) / float64(n)
		if accuracy > best {
			best, bestAgent = accuracy, agent
		}
		if accuracy < worst {
			worst, worstAgent = accuracy, agent
		}
	}
	if best-worst <= accuracySpreadThreshold {
		return nil
	}

	return &types.Reflection{
		ID:        types.NewID("refl"),
		Kind:      types.ReflectionCalibration,
		Timestamp: time.Now().UTC(),
		Bias:      types.BiasPredictorDivergence,
		AgentID:   worstAgent,
		Summary: fmt.Sprintf("agent %s predicts at %.0f%% accuracy while %s reaches %.0f%%",
			worstAgent, worst*100, bestAgent, best*100),
	}
}

func detectDomainBias(observations []types.Observation, validations []types.Reflection) *types.Reflection {
	if len(validations) < minValidationsDomainBias {
		return nil
	}

	predictionCategory := make(map[string]string)
	for _, o := range observations {
		if o.Kind == types.ObservationPrediction && o.Category != "" {
			predictionCategory[o.ID] = o.Category
		}
	}

	correct := make(map[string]int)
	total := make(map[string]int)
	for _, v := range validations {
		category, ok := predictionCategory[v.PredictionID]
		if !ok {
			continue
		}
		total[category]++
		if v.Correct != nil && *v.Correct {
			correct[category]++
		}
	}
	if len(total) < 2 {
		return nil
	}

	bestCat, worstCat := "", ""
	best, worst := -1.0, 2.0
	for category, n := range total {
		accuracy := float64(correct[category]) / float64(n)
		if accuracy > best {
			best, bestCat = accuracy, category
		}
		if accuracy < worst {
			worst, worstCat = accuracy, category
		}
	}
	if best-worst <= accuracySpreadThreshold {
		return nil
	}

	return &types.Reflection{
		ID:        types.NewID("refl"),
		Kind:      types.ReflectionCalibration,
		Timestamp: time.Now().UTC(),
		Bias:      types.BiasDomainBias,
		Category:  worstCat,
		Summary: fmt.Sprintf("prediction accuracy in %q (%.0f%%) trails %q (%.0f%%)",
			worstCat, worst*100, bestCat, best*100),
	}
}

func usesConfidentLanguage(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range confidentLexicon {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
