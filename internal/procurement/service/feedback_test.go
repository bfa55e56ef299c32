package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
)

func weightsSum(m map[string]float64) float64 {
	var total float64
	for _, w := range m {
		total += w
	}
	return total
}

func TestAdjustWeightsSumsToOne(t *testing.T) {
	signals := []map[string]float64{
		{repository.CriterionPrice: 0.2},
		{repository.CriterionCompliance: -0.1, repository.CriterionIncidents: 0.3},
		{repository.CriterionAvailability: 5.0},
		{repository.CriterionPrice: -1.0, repository.CriterionCompliance: -1.0},
	}

	m := repository.DefaultWeights().AsMap()
	for _, signal := range signals {
		m = adjustWeights(m, signal)
		assert.InDelta(t, 1.0, weightsSum(m), 1e-9)
		for criterion, w := range m {
			assert.GreaterOrEqual(t, w, 0.0, criterion)
			assert.LessOrEqual(t, w, 1.0, criterion)
		}
	}
}

func TestAdjustWeightsIgnoresUnknownCriteria(t *testing.T) {
	m := adjustWeights(repository.DefaultWeights().AsMap(), map[string]float64{
		"velocidad": 0.5,
	})

	assert.InDelta(t, 0.4, m[repository.CriterionPrice], 1e-9)
	assert.InDelta(t, 1.0, weightsSum(m), 1e-9)
	assert.NotContains(t, m, "velocidad")
}

func TestAdjustWeightsAllZeroRecoversDefaults(t *testing.T) {
	m := adjustWeights(repository.DefaultWeights().AsMap(), map[string]float64{
		repository.CriterionPrice:        -1,
		repository.CriterionCompliance:   -1,
		repository.CriterionIncidents:    -1,
		repository.CriterionAvailability: -1,
	})

	assert.InDelta(t, 0.4, m[repository.CriterionPrice], 1e-9)
	assert.InDelta(t, 0.3, m[repository.CriterionCompliance], 1e-9)
	assert.InDelta(t, 1.0, weightsSum(m), 1e-9)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 1.0, clamp01(1.5))
	assert.Equal(t, 0.7, clamp01(0.7))
}
