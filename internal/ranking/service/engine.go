package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/internal/params"
	"github.com/tucanprint/tucan-backend/internal/ranking/repository"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// Normalized metric keys stored with each history row
const (
	MetricTotal     = "total_norm"
	MetricCount     = "count_norm"
	MetricFrequency = "frequency_norm"
	MetricCritical  = "critical_norm"
	MetricMargin    = "margin_norm"
)

// RankingWeights is the configurable weight of each ranking metric
type RankingWeights struct {
	Total     float64 `json:"total"`
	Count     float64 `json:"count"`
	Frequency float64 `json:"frequency"`
	Critical  float64 `json:"critical"`
	Margin    float64 `json:"margin"`
}

// DefaultRankingWeights returns the factory metric weights
func DefaultRankingWeights() RankingWeights {
	return RankingWeights{Total: 0.30, Count: 0.15, Frequency: 0.15, Critical: 0.20, Margin: 0.20}
}

func (w RankingWeights) sum() float64 {
	return w.Total + w.Count + w.Frequency + w.Critical + w.Margin
}

// Params is the configuration surface the ranking engine reads
type Params interface {
	GetInt(ctx context.Context, name string, def int) int
	GetString(ctx context.Context, name, def string) string
	GetDecimal(ctx context.Context, name string, def decimal.Decimal) decimal.Decimal
	GetJSON(ctx context.Context, name string, dest interface{}) bool
}

// RankingNotifier publishes ranking recomputation events
type RankingNotifier interface {
	NotifyRankingComputed(ctx context.Context, period string, ranked int)
}

// RunReport summarizes one ranking recomputation
type RunReport struct {
	Period  string `json:"period"`
	Ranked  int    `json:"ranked"`
	Window  int    `json:"window_days"`
	Updated int    `json:"updated"`
}

// Engine computes the period-normalized customer ranking. Each raw
// metric is min-max normalized across the customer population and
// combined as a weighted average scaled to 0-100.
type Engine struct {
	activityRepo *repository.ActivityRepository
	rankingRepo  *repository.RankingRepository
	params       Params
	notifier     RankingNotifier
	logger       *logger.Logger
}

// NewEngine creates a new ranking engine
func NewEngine(activityRepo *repository.ActivityRepository, rankingRepo *repository.RankingRepository, paramStore Params, notifier RankingNotifier, log *logger.Logger) *Engine {
	return &Engine{
		activityRepo: activityRepo,
		rankingRepo:  rankingRepo,
		params:       paramStore,
		notifier:     notifier,
		logger:       log.WithComponent("ranking-engine"),
	}
}

// Run recomputes every customer's score for the period containing now,
// persists the cache and appends one history row per customer
func (e *Engine) Run(ctx context.Context, now time.Time) (*RunReport, error) {
	windowDays := e.params.GetInt(ctx, params.ParamRankingWindowDays, params.DefaultRankingWindowDays)
	periodicity := e.params.GetString(ctx, params.ParamRankingPeriodicity, params.DefaultRankingPeriodicity)
	threshold := e.params.GetDecimal(ctx, params.ParamCriticalPriceThreshold, params.DefaultCriticalPriceThreshold)

	weights := DefaultRankingWeights()
	e.params.GetJSON(ctx, params.ParamRankingWeights, &weights)

	period := PeriodFor(now, periodicity)
	since := now.AddDate(0, 0, -windowDays)

	activities, err := e.activityRepo.Aggregate(ctx, since, threshold)
	if err != nil {
		return nil, err
	}

	report := &RunReport{Period: period, Ranked: len(activities), Window: windowDays}
	if len(activities) == 0 {
		e.logger.Info().Str("period", period).Msg("no customer activity in window")
		return report, nil
	}

	scores := scoreActivities(activities, weights, windowDays)

	for i, activity := range activities {
		customerID := activity.CustomerID
		score := scores[i].score

		prev, err := e.rankingRepo.PreviousPeriod(ctx, customerID, period)
		if err != nil {
			return nil, err
		}

		variacion := 0.0
		if prev != nil {
			variacion = score - prev.Score
		}

		metricsJSON, _ := json.Marshal(scores[i].metrics)

		if err := e.rankingRepo.SaveScore(ctx, customerID, score); err != nil {
			return nil, err
		}
		if err := e.rankingRepo.UpsertHistory(ctx, &repository.RankingHistory{
			CustomerID: customerID,
			Period:     period,
			Score:      score,
			Variacion:  variacion,
			Metrics:    string(metricsJSON),
		}); err != nil {
			return nil, err
		}
		report.Updated++
	}

	e.logger.Info().
		Str("period", period).
		Int("customers", report.Updated).
		Msg("customer ranking recomputed")

	if e.notifier != nil {
		e.notifier.NotifyRankingComputed(ctx, period, report.Updated)
	}
	return report, nil
}

type scored struct {
	score   float64
	metrics map[string]float64
}

// scoreActivities normalizes each raw metric across the population and
// combines them into 0-100 scores, index-aligned with the input
func scoreActivities(activities []repository.CustomerActivity, weights RankingWeights, windowDays int) []scored {
	months := float64(windowDays) / 30.0
	if months < 1 {
		months = 1
	}

	n := len(activities)
	totals := make([]float64, n)
	counts := make([]float64, n)
	freqs := make([]float64, n)
	crits := make([]float64, n)
	margins := make([]float64, n)

	for i, a := range activities {
		totals[i] = a.TotalValue.InexactFloat64()
		counts[i] = float64(a.OrderCount)
		freqs[i] = float64(a.OrderCount) / months
		crits[i] = a.CriticalValue.InexactFloat64()
		margins[i] = a.Margin.InexactFloat64()
	}

	totalN := normalize(totals)
	countN := normalize(counts)
	freqN := normalize(freqs)
	critN := normalize(crits)
	marginN := normalize(margins)

	out := make([]scored, n)
	for i := range activities {
		metrics := map[string]float64{
			MetricTotal:     totalN[i],
			MetricCount:     countN[i],
			MetricFrequency: freqN[i],
			MetricCritical:  critN[i],
			MetricMargin:    marginN[i],
		}

		weighted := weights.Total*totalN[i] +
			weights.Count*countN[i] +
			weights.Frequency*freqN[i] +
			weights.Critical*critN[i] +
			weights.Margin*marginN[i]

		wsum := weights.sum()
		if wsum <= 0 {
			wsum = 1
		}

		// Round the unit-scale score to 4 decimals before rescaling
		out[i] = scored{
			score:   math.Round(weighted/wsum*10000) / 10000 * 100,
			metrics: metrics,
		}
	}
	return out
}

// normalize min-max scales the values to [0,1]. The denominator floors
// at 1 so a flat or single-customer population maps to zero instead of
// dividing by zero.
func normalize(values []float64) []float64 {
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	spread := max - min
	if spread < 1 {
		spread = 1
	}

	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - min) / spread
	}
	return out
}

// PeriodFor returns the period label containing t: "2026-08" for
// monthly, "2026-Q3" for quarterly
func PeriodFor(t time.Time, periodicity string) string {
	if periodicity == params.PeriodicityQuarterly {
		quarter := (int(t.Month())-1)/3 + 1
		return fmt.Sprintf("%d-Q%d", t.Year(), quarter)
	}
	return t.Format("2006-01")
}
