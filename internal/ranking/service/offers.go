package service

import (
	"context"
	"encoding/json"

	"github.com/tucanprint/tucan-backend/internal/params"
	"github.com/tucanprint/tucan-backend/internal/ranking/repository"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// OfferNotifier publishes offer.proposed events
type OfferNotifier interface {
	NotifyOfferProposed(ctx context.Context, offer *repository.OfferProposal)
}

// OfferRunReport summarizes one rule engine run
type OfferRunReport struct {
	Customers     int `json:"customers"`
	RuleMatches   int `json:"rule_matches"`
	OffersCreated int `json:"offers_created"`
	Failures      int `json:"failures"`
}

// OfferEngine evaluates the declarative rule set against every ranked
// customer's metrics and proposes offers. One failing customer never
// aborts the run.
type OfferEngine struct {
	rankingRepo *repository.RankingRepository
	offerRepo   *repository.OfferRepository
	params      Params
	notifier    OfferNotifier
	logger      *logger.Logger
}

// NewOfferEngine creates a new offer rule engine
func NewOfferEngine(rankingRepo *repository.RankingRepository, offerRepo *repository.OfferRepository, paramStore Params, notifier OfferNotifier, log *logger.Logger) *OfferEngine {
	return &OfferEngine{
		rankingRepo: rankingRepo,
		offerRepo:   offerRepo,
		params:      paramStore,
		notifier:    notifier,
		logger:      log.WithComponent("offer-engine"),
	}
}

// Run evaluates the rule set against all ranked customers
func (e *OfferEngine) Run(ctx context.Context) (*OfferRunReport, error) {
	rules := e.loadRules(ctx)
	depth := e.params.GetInt(ctx, params.ParamDeclineScanDepth, params.DefaultDeclineScanDepth)

	rankings, err := e.rankingRepo.ListScores(ctx)
	if err != nil {
		return nil, err
	}

	report := &OfferRunReport{Customers: len(rankings)}
	for _, ranking := range rankings {
		if err := e.evaluateCustomer(ctx, ranking, rules, depth, report); err != nil {
			e.logger.Error().Err(err).Int64("customer_id", ranking.CustomerID).Msg("rule evaluation failed for customer")
			report.Failures++
		}
	}

	e.logger.Info().
		Int("customers", report.Customers).
		Int("matches", report.RuleMatches).
		Int("created", report.OffersCreated).
		Msg("offer rule engine run completed")

	return report, nil
}

// loadRules parses the operator rule list, falling back to the factory
// rules when the parameter is absent or does not parse
func (e *OfferEngine) loadRules(ctx context.Context) []Rule {
	var raw json.RawMessage
	if !e.params.GetJSON(ctx, params.ParamOfferRules, &raw) {
		return DefaultRules()
	}

	rules, err := ParseRules(raw)
	if err != nil {
		e.logger.Error().Err(err).Msg("configured offer rules are invalid, using defaults")
		return DefaultRules()
	}
	return rules
}

func (e *OfferEngine) evaluateCustomer(ctx context.Context, ranking repository.CustomerRanking, rules []Rule, depth int, report *OfferRunReport) error {
	history, err := e.rankingRepo.ListHistory(ctx, ranking.CustomerID, depth)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	latest := history[0]
	metrics := latest.MetricsMap()
	declinePeriods, declineDelta := declineSignal(history)

	signals := CustomerSignals{
		Score:          ranking.Score,
		CritNorm:       metrics[MetricCritical],
		MargenNorm:     metrics[MetricMargin],
		DeclinePeriods: declinePeriods,
		DeclineDelta:   declineDelta,
	}

	for _, rule := range rules {
		if !rule.Matches(signals) {
			continue
		}
		report.RuleMatches++

		paramsJSON, _ := json.Marshal(rule.Action.Params)
		offer := &repository.OfferProposal{
			CustomerID:    ranking.CustomerID,
			Title:         rule.Action.Title,
			Kind:          rule.Action.Kind,
			RuleName:      rule.Name,
			ScoreSnapshot: ranking.Score,
			Params:        string(paramsJSON),
			Period:        latest.Period,
		}

		created, err := e.offerRepo.GetOrCreate(ctx, offer)
		if err != nil {
			return err
		}
		if !created {
			continue
		}

		report.OffersCreated++
		if e.notifier != nil {
			e.notifier.NotifyOfferProposed(ctx, offer)
		}
	}
	return nil
}

// List returns generated offers
func (e *OfferEngine) List(ctx context.Context, state string, limit int) ([]repository.OfferProposal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return e.offerRepo.List(ctx, state, limit)
}

// declineSignal counts consecutive period-over-period score drops
// starting from the newest history row and returns the most negative
// delta among them. History must be ordered newest first.
func declineSignal(history []repository.RankingHistory) (int, float64) {
	periods := 0
	minDelta := 0.0
	for _, h := range history {
		if h.Variacion >= 0 {
			break
		}
		periods++
		if h.Variacion < minDelta {
			minDelta = h.Variacion
		}
	}
	return periods, minDelta
}
