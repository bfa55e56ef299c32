package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tucanprint/tucan-backend/pkg/database"
)

// Scoring criteria. These are the only keys the feedback adjuster
// recognizes; unknown keys in a feedback signal are ignored.
const (
	CriterionPrice        = "price"
	CriterionCompliance   = "cumplimiento"
	CriterionIncidents    = "incidencias"
	CriterionAvailability = "disponibilidad"
)

// ScoringWeights is the single shared weight configuration, stored as a
// versioned row so concurrent feedback submissions serialize through a
// row lock instead of clobbering each other.
type ScoringWeights struct {
	ID             int64     `db:"id" json:"-"`
	Version        int64     `db:"version" json:"version"`
	Price          float64   `db:"price" json:"price"`
	Cumplimiento   float64   `db:"cumplimiento" json:"cumplimiento"`
	Incidencias    float64   `db:"incidencias" json:"incidencias"`
	Disponibilidad float64   `db:"disponibilidad" json:"disponibilidad"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// AsMap returns the weights keyed by criterion name
func (w *ScoringWeights) AsMap() map[string]float64 {
	return map[string]float64{
		CriterionPrice:        w.Price,
		CriterionCompliance:   w.Cumplimiento,
		CriterionIncidents:    w.Incidencias,
		CriterionAvailability: w.Disponibilidad,
	}
}

// SetFromMap writes the weights from a criterion map
func (w *ScoringWeights) SetFromMap(m map[string]float64) {
	w.Price = m[CriterionPrice]
	w.Cumplimiento = m[CriterionCompliance]
	w.Incidencias = m[CriterionIncidents]
	w.Disponibilidad = m[CriterionAvailability]
}

// DefaultWeights returns the factory weight configuration
func DefaultWeights() *ScoringWeights {
	return &ScoringWeights{
		ID:             1,
		Price:          0.4,
		Cumplimiento:   0.3,
		Incidencias:    0.2,
		Disponibilidad: 0.1,
	}
}

// WeightsRepository handles the scoring weight row and the feedback log
type WeightsRepository struct {
	db *database.DB
}

// NewWeightsRepository creates a new weights repository
func NewWeightsRepository(db *database.DB) *WeightsRepository {
	return &WeightsRepository{db: db}
}

const weightsColumns = `id, version, price, cumplimiento, incidencias, disponibilidad, updated_at`

// Get returns the current weights, falling back to the defaults when the
// row has never been written
func (r *WeightsRepository) Get(ctx context.Context) (*ScoringWeights, error) {
	var w ScoringWeights
	query := `SELECT ` + weightsColumns + ` FROM scoring_weights WHERE id = 1`
	err := r.db.GetContext(ctx, &w, query)
	if err != nil {
		if database.IsNoRows(err) {
			return DefaultWeights(), nil
		}
		return nil, err
	}
	return &w, nil
}

// GetForUpdateTx reads the weight row under a row lock
func (r *WeightsRepository) GetForUpdateTx(tx *sqlx.Tx) (*ScoringWeights, error) {
	var w ScoringWeights
	query := `SELECT ` + weightsColumns + ` FROM scoring_weights WHERE id = 1 FOR UPDATE`
	err := tx.Get(&w, query)
	if err != nil {
		if database.IsNoRows(err) {
			return DefaultWeights(), nil
		}
		return nil, err
	}
	return &w, nil
}

// SaveTx upserts the weight row, bumping its version
func (r *WeightsRepository) SaveTx(tx *sqlx.Tx, w *ScoringWeights) error {
	w.Version++
	_, err := tx.Exec(`
		INSERT INTO scoring_weights (id, version, price, cumplimiento, incidencias, disponibilidad, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			price = EXCLUDED.price,
			cumplimiento = EXCLUDED.cumplimiento,
			incidencias = EXCLUDED.incidencias,
			disponibilidad = EXCLUDED.disponibilidad,
			updated_at = NOW()
	`, w.Version, w.Price, w.Cumplimiento, w.Incidencias, w.Disponibilidad)
	return err
}

// FeedbackEntry records one operator feedback submission against a
// recommendation, kept for traceability of weight drift
type FeedbackEntry struct {
	ID                  int64     `db:"id" json:"id"`
	ProposalID          *int64    `db:"proposal_id" json:"proposal_id,omitempty"`
	RecommendedSupplier *int64    `db:"recommended_supplier_id" json:"recommended_supplier_id,omitempty"`
	ChosenSupplier      *int64    `db:"chosen_supplier_id" json:"chosen_supplier_id,omitempty"`
	Decision            string    `db:"decision" json:"decision"`
	Signal              string    `db:"signal" json:"signal"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// InsertFeedbackTx appends a feedback log entry in the same transaction
// as the weight update
func (r *WeightsRepository) InsertFeedbackTx(tx *sqlx.Tx, entry *FeedbackEntry, signal map[string]float64) error {
	raw, err := json.Marshal(signal)
	if err != nil {
		return err
	}

	return tx.QueryRowx(`
		INSERT INTO scoring_feedback (proposal_id, recommended_supplier_id, chosen_supplier_id, decision, signal, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`, entry.ProposalID, entry.RecommendedSupplier, entry.ChosenSupplier, entry.Decision, string(raw)).
		Scan(&entry.ID, &entry.CreatedAt)
}
