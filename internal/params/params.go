// Package params is the typed configuration store for the automation
// core. Parameters are operator-editable rows in the parameters table;
// every reader falls back to a documented default when a parameter is
// missing or malformed, so a half-configured installation still runs.
package params

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/pkg/database"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// Well-known parameter names
const (
	ParamRankingWindowDays      = "ranking_window_days"
	ParamRankingPeriodicity     = "ranking_periodicity"
	ParamRankingWeights         = "ranking_weights"
	ParamCriticalPriceThreshold = "critical_price_threshold"
	ParamGlobalMinStock         = "global_min_stock"
	ParamProposalCooldownDays   = "proposal_cooldown_days"
	ParamAutoAcceptEnabled      = "auto_accept_enabled"
	ParamAutoAcceptThreshold    = "auto_accept_score_threshold"
	ParamOfferRules             = "offer_rules"
	ParamDeclineScanDepth       = "decline_scan_depth"
)

// Periodicity values for ParamRankingPeriodicity
const (
	PeriodicityMonthly   = "monthly"
	PeriodicityQuarterly = "quarterly"
)

// Defaults applied when a parameter row is absent
const (
	DefaultRankingWindowDays    = 90
	DefaultRankingPeriodicity   = PeriodicityMonthly
	DefaultGlobalMinStock       = 10
	DefaultProposalCooldownDays = 3
	DefaultAutoAcceptEnabled    = false
	DefaultAutoAcceptThreshold  = 70.0
	DefaultDeclineScanDepth     = 6
)

// DefaultCriticalPriceThreshold is the unit cost above which a stock
// item counts as critical for ranking purposes.
var DefaultCriticalPriceThreshold = decimal.NewFromInt(100)

// Store reads and writes named parameters
type Store struct {
	db     *database.DB
	logger *logger.Logger
}

// NewStore creates a parameter store
func NewStore(db *database.DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log.WithComponent("params")}
}

func (s *Store) raw(ctx context.Context, name string) (string, bool) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM parameters WHERE name = $1`, name)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn().Err(err).Str("param", name).Msg("parameter lookup failed, using default")
		}
		return "", false
	}
	return value, true
}

// GetString returns the parameter value or def when absent
func (s *Store) GetString(ctx context.Context, name, def string) string {
	if v, ok := s.raw(ctx, name); ok {
		return v
	}
	return def
}

// GetInt returns the parameter as an int or def when absent or malformed
func (s *Store) GetInt(ctx context.Context, name string, def int) int {
	v, ok := s.raw(ctx, name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.logger.Warn().Str("param", name).Str("value", v).Msg("parameter is not an integer, using default")
		return def
	}
	return n
}

// GetBool returns the parameter as a bool or def when absent or malformed
func (s *Store) GetBool(ctx context.Context, name string, def bool) bool {
	v, ok := s.raw(ctx, name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		s.logger.Warn().Str("param", name).Str("value", v).Msg("parameter is not a boolean, using default")
		return def
	}
	return b
}

// GetFloat returns the parameter as a float64 or def when absent or malformed
func (s *Store) GetFloat(ctx context.Context, name string, def float64) float64 {
	v, ok := s.raw(ctx, name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		s.logger.Warn().Str("param", name).Str("value", v).Msg("parameter is not a number, using default")
		return def
	}
	return f
}

// GetDecimal returns the parameter as a decimal or def when absent or malformed
func (s *Store) GetDecimal(ctx context.Context, name string, def decimal.Decimal) decimal.Decimal {
	v, ok := s.raw(ctx, name)
	if !ok {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		s.logger.Warn().Str("param", name).Str("value", v).Msg("parameter is not a decimal, using default")
		return def
	}
	return d
}

// GetJSON unmarshals the parameter into dest. Returns false when the
// parameter is absent or malformed; dest is left untouched in that case.
func (s *Store) GetJSON(ctx context.Context, name string, dest interface{}) bool {
	v, ok := s.raw(ctx, name)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(v), dest); err != nil {
		s.logger.Warn().Err(err).Str("param", name).Msg("parameter is not valid JSON, using default")
		return false
	}
	return true
}

// Set upserts a parameter value
func (s *Store) Set(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parameters (name, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, name, value)
	return err
}
