package service

import (
	"encoding/json"
	"fmt"

	"github.com/tucanprint/tucan-backend/internal/ranking/repository"
)

// ConditionKind is the closed vocabulary of rule conditions. Unknown
// keys are rejected when the rule set is parsed, not silently ignored.
type ConditionKind string

const (
	CondScoreGTE          ConditionKind = "score_gte"
	CondCritNormGTE       ConditionKind = "crit_norm_gte"
	CondMargenNormGTE     ConditionKind = "margen_norm_gte"
	CondDeclinePeriodsGTE ConditionKind = "decline_periods_gte"
	CondDeclineDeltaLTE   ConditionKind = "decline_delta_lte"
)

// Condition is one parsed rule condition
type Condition struct {
	Kind  ConditionKind
	Value float64
}

// OfferAction describes the offer a matching rule generates
type OfferAction struct {
	Kind   string                 `json:"kind"`
	Title  string                 `json:"title"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Rule is one operator-editable offer rule: a conjunction of conditions
// and the offer it proposes
type Rule struct {
	Name       string
	Conditions []Condition
	Action     OfferAction
}

// CustomerSignals holds the evaluated metrics of one customer: current
// score, latest normalized components, and the decline trend computed
// from recent history
type CustomerSignals struct {
	Score          float64
	CritNorm       float64
	MargenNorm     float64
	DeclinePeriods int
	DeclineDelta   float64
}

// Matches evaluates the rule's conditions as a conjunction
func (r Rule) Matches(s CustomerSignals) bool {
	for _, cond := range r.Conditions {
		var ok bool
		switch cond.Kind {
		case CondScoreGTE:
			ok = s.Score >= cond.Value
		case CondCritNormGTE:
			ok = s.CritNorm >= cond.Value
		case CondMargenNormGTE:
			ok = s.MargenNorm >= cond.Value
		case CondDeclinePeriodsGTE:
			ok = float64(s.DeclinePeriods) >= cond.Value
		case CondDeclineDeltaLTE:
			ok = s.DeclineDelta <= cond.Value
		}
		if !ok {
			return false
		}
	}
	return true
}

type ruleJSON struct {
	Name       string             `json:"name"`
	Conditions map[string]float64 `json:"conditions"`
	Action     OfferAction        `json:"action"`
}

var knownConditions = map[ConditionKind]bool{
	CondScoreGTE:          true,
	CondCritNormGTE:       true,
	CondMargenNormGTE:     true,
	CondDeclinePeriodsGTE: true,
	CondDeclineDeltaLTE:   true,
}

// ParseRules decodes the structured rule list, rejecting unknown
// condition keys and incomplete rules at load time
func ParseRules(raw []byte) ([]Rule, error) {
	var decoded []ruleJSON
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("invalid rule JSON: %w", err)
	}

	rules := make([]Rule, 0, len(decoded))
	for _, rj := range decoded {
		if rj.Name == "" {
			return nil, fmt.Errorf("rule without name")
		}
		if rj.Action.Title == "" || rj.Action.Kind == "" {
			return nil, fmt.Errorf("rule %q: action needs kind and title", rj.Name)
		}
		if len(rj.Conditions) == 0 {
			return nil, fmt.Errorf("rule %q has no conditions", rj.Name)
		}

		rule := Rule{Name: rj.Name, Action: rj.Action}
		for key, value := range rj.Conditions {
			kind := ConditionKind(key)
			if !knownConditions[kind] {
				return nil, fmt.Errorf("rule %q: unknown condition %q", rj.Name, key)
			}
			rule.Conditions = append(rule.Conditions, Condition{Kind: kind, Value: value})
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// DefaultRules returns the factory rule set used when no operator rule
// list is configured
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "fidelidad_premium",
			Conditions: []Condition{{Kind: CondScoreGTE, Value: 80}},
			Action: OfferAction{
				Kind:   repository.OfferKindDiscount,
				Title:  "Descuento fidelidad 10%",
				Params: map[string]interface{}{"discount_pct": 10},
			},
		},
		{
			Name:       "prioridad_stock_critico",
			Conditions: []Condition{{Kind: CondCritNormGTE, Value: 0.7}},
			Action: OfferAction{
				Kind:  repository.OfferKindStockPriority,
				Title: "Prioridad de stock en productos criticos",
			},
		},
		{
			Name:       "promocion_margen_alto",
			Conditions: []Condition{{Kind: CondMargenNormGTE, Value: 0.7}},
			Action: OfferAction{
				Kind:  repository.OfferKindPromotion,
				Title: "Promocion por alto margen",
			},
		},
		{
			Name: "recuperacion_en_declive",
			Conditions: []Condition{
				{Kind: CondDeclinePeriodsGTE, Value: 2},
				{Kind: CondDeclineDeltaLTE, Value: -5},
			},
			Action: OfferAction{
				Kind:   repository.OfferKindLoyalty,
				Title:  "Programa de recuperacion",
				Params: map[string]interface{}{"loyalty_points": 500},
			},
		},
	}
}
