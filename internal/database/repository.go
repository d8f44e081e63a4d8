package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moex-panic-scanner/internal/clusters"
	"moex-panic-scanner/internal/detector"
	"moex-panic-scanner/internal/filters"
	"moex-panic-scanner/internal/risk"
)

// Dedupe window for idempotent saves.
const saveDedupeWindow = time.Second

// Repository persists and queries detected signals.
type Repository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

func NewRepository(db *Database, loc *time.Location) *Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &Repository{pool: db.Pool, loc: loc}
}

const signalColumns = `id, instrument, detected_at, signal_type,
	rsi7, rsi14, rsi21, volume_ratio, current_volume, avg_volume,
	base_level, final_level, passed_filters, failed_filters,
	price, atr, sma20, spread_percent, volume_clusters, cluster_summary,
	risk_score, risk_level, risk_interpretation,
	interpretation, recommendation, risk_level_text`

// SaveSignal inserts a signal and returns its id. Duplicate saves for the
// same (instrument, finalLevel) within one second collapse to the first
// insert.
func (r *Repository) SaveSignal(ctx context.Context, s *detector.PanicSignal) (int64, error) {
	passedJSON, err := json.Marshal(orEmptyResults(s.PassedFilters))
	if err != nil {
		return 0, fmt.Errorf("encode passed filters: %w", err)
	}
	failedJSON, err := json.Marshal(orEmptyResults(s.FailedFilters))
	if err != nil {
		return 0, fmt.Errorf("encode failed filters: %w", err)
	}
	clustersJSON, err := json.Marshal(orEmptyClusters(s.VolumeClusters))
	if err != nil {
		return 0, fmt.Errorf("encode volume clusters: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM signals
		 WHERE instrument = $1 AND final_level = $2
		   AND detected_at BETWEEN $3::timestamptz - $4::interval AND $3::timestamptz + $4::interval
		 ORDER BY id LIMIT 1`,
		s.Instrument, string(s.FinalLevel), s.DetectedAt, saveDedupeWindow.String(),
	).Scan(&existing)
	if err == nil {
		return existing, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("dedupe lookup: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO signals (
			instrument, detected_at, signal_type,
			rsi7, rsi14, rsi21, volume_ratio, current_volume, avg_volume,
			base_level, final_level, passed_filters, failed_filters,
			price, atr, sma20, spread_percent, volume_clusters, cluster_summary,
			risk_score, risk_level, risk_interpretation,
			interpretation, recommendation, risk_level_text
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		) RETURNING id`,
		s.Instrument, s.DetectedAt, string(s.SignalType),
		s.RSI7, s.RSI14, s.RSI21, s.VolumeRatio, s.CurrentVolume, s.AvgVolume,
		string(s.BaseLevel), string(s.FinalLevel), string(passedJSON), string(failedJSON),
		s.Price, s.ATR, s.SMA20, s.SpreadPercent, string(clustersJSON), s.ClusterSummary,
		s.RiskScore, string(s.RiskLevel), s.RiskInterpretation,
		s.Interpretation, s.Recommendation, s.RiskLevelText,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert signal: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit save: %w", err)
	}
	return id, nil
}

// SignalHistory returns an instrument's signals over the last daysBack days,
// newest first.
func (r *Repository) SignalHistory(ctx context.Context, instrument string, daysBack, limit int) ([]*detector.PanicSignal, error) {
	if daysBack <= 0 {
		daysBack = 30
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+signalColumns+` FROM signals
		 WHERE instrument = $1 AND detected_at >= NOW() - $2 * INTERVAL '1 day'
		 ORDER BY detected_at DESC
		 LIMIT $3`,
		instrument, daysBack, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// TopSignals returns the strongest signals of a period, ordered by level
// priority, then volume ratio, then risk score, all descending.
func (r *Repository) TopSignals(ctx context.Context, period string, limit int) ([]*detector.PanicSignal, error) {
	if limit <= 0 {
		limit = 10
	}
	from, to, err := PeriodBounds(period, time.Now().In(r.loc))
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+signalColumns+` FROM signals
		 WHERE detected_at >= $1 AND detected_at < $2
		 ORDER BY `+levelPriorityCase+` DESC, volume_ratio DESC, risk_score DESC
		 LIMIT $3`,
		from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query top signals: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

const levelPriorityCase = `CASE final_level
	WHEN 'red' THEN 3
	WHEN 'yellow' THEN 2
	WHEN 'white' THEN 1
	ELSE 0 END`

// Stats summarizes the last N days of signals.
type Stats struct {
	Days          int            `json:"days"`
	Total         int            `json:"total"`
	ByLevel       map[string]int `json:"by_level"`
	MostActive    string         `json:"most_active"`
	MostCalm      string         `json:"most_calm"`
	MarketTension string         `json:"market_tension"`
}

// Stats aggregates counts by level, the most and least active instruments,
// and the categorical market tension over the window.
func (r *Repository) Stats(ctx context.Context, days int) (*Stats, error) {
	if days <= 0 {
		days = 7
	}

	st := &Stats{Days: days, ByLevel: make(map[string]int)}

	rows, err := r.pool.Query(ctx,
		`SELECT final_level, COUNT(*) FROM signals
		 WHERE detected_at >= NOW() - $1 * INTERVAL '1 day'
		 GROUP BY final_level`, days)
	if err != nil {
		return nil, fmt.Errorf("query level counts: %w", err)
	}
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan level count: %w", err)
		}
		st.ByLevel[level] = count
		st.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate level counts: %w", err)
	}

	irows, err := r.pool.Query(ctx,
		`SELECT instrument, COUNT(*) AS cnt FROM signals
		 WHERE detected_at >= NOW() - $1 * INTERVAL '1 day'
		 GROUP BY instrument
		 ORDER BY cnt DESC, instrument ASC`, days)
	if err != nil {
		return nil, fmt.Errorf("query instrument counts: %w", err)
	}
	defer irows.Close()

	first := true
	for irows.Next() {
		var instrument string
		var count int
		if err := irows.Scan(&instrument, &count); err != nil {
			return nil, fmt.Errorf("scan instrument count: %w", err)
		}
		if first {
			st.MostActive = instrument
			first = false
		}
		st.MostCalm = instrument
	}
	if err := irows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instrument counts: %w", err)
	}

	st.MarketTension = MarketTension(st.ByLevel, st.Total)
	return st, nil
}

// PanicSignals returns typed signals over the window for bulk consumers.
func (r *Repository) PanicSignals(ctx context.Context, days, limit int) ([]*detector.PanicSignal, error) {
	if days <= 0 {
		days = 1
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+signalColumns+` FROM signals
		 WHERE detected_at >= NOW() - $1 * INTERVAL '1 day'
		 ORDER BY detected_at DESC
		 LIMIT $2`,
		days, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// LastSignal returns the most recent signal for an instrument, or nil when
// none has ever been recorded.
func (r *Repository) LastSignal(ctx context.Context, instrument string) (*detector.PanicSignal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+signalColumns+` FROM signals
		 WHERE instrument = $1
		 ORDER BY detected_at DESC
		 LIMIT 1`,
		instrument)
	if err != nil {
		return nil, fmt.Errorf("query last signal: %w", err)
	}
	defer rows.Close()

	list, err := scanSignals(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func scanSignals(rows pgx.Rows) ([]*detector.PanicSignal, error) {
	var out []*detector.PanicSignal
	for rows.Next() {
		s := &detector.PanicSignal{}
		var signalType, baseLevel, finalLevel, riskLevel string
		var passedJSON, failedJSON, clustersJSON string
		var rsi7, rsi21, currentVolume, avgVolume, price, atr, sma20 *float64

		err := rows.Scan(
			&s.ID, &s.Instrument, &s.DetectedAt, &signalType,
			&rsi7, &s.RSI14, &rsi21, &s.VolumeRatio, &currentVolume, &avgVolume,
			&baseLevel, &finalLevel, &passedJSON, &failedJSON,
			&price, &atr, &sma20, &s.SpreadPercent, &clustersJSON, &s.ClusterSummary,
			&s.RiskScore, &riskLevel, &s.RiskInterpretation,
			&s.Interpretation, &s.Recommendation, &s.RiskLevelText,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}

		s.SignalType = detector.SignalType(signalType)
		s.BaseLevel = detector.BaseLevel(baseLevel)
		s.FinalLevel = detector.FinalLevel(finalLevel)
		s.RiskLevel = risk.Level(riskLevel)
		s.RSI7 = deref(rsi7)
		s.RSI21 = deref(rsi21)
		s.CurrentVolume = deref(currentVolume)
		s.AvgVolume = deref(avgVolume)
		s.Price = deref(price)
		s.ATR = deref(atr)
		s.SMA20 = deref(sma20)

		if err := json.Unmarshal([]byte(passedJSON), &s.PassedFilters); err != nil {
			return nil, fmt.Errorf("decode passed filters for signal %d: %w", s.ID, err)
		}
		if err := json.Unmarshal([]byte(failedJSON), &s.FailedFilters); err != nil {
			return nil, fmt.Errorf("decode failed filters for signal %d: %w", s.ID, err)
		}
		if err := json.Unmarshal([]byte(clustersJSON), &s.VolumeClusters); err != nil {
			return nil, fmt.Errorf("decode volume clusters for signal %d: %w", s.ID, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return out, nil
}

// LevelPriority orders final levels for top-signal ranking.
func LevelPriority(level detector.FinalLevel) int {
	switch level {
	case detector.LevelRed:
		return 3
	case detector.LevelYellow:
		return 2
	case detector.LevelWhite:
		return 1
	default:
		return 0
	}
}

// MarketTension classifies the window: no signals is calm, a large share of
// red signals is high, a majority of yellow is moderate.
func MarketTension(byLevel map[string]int, total int) string {
	if total == 0 {
		return "calm"
	}
	strong := byLevel[string(detector.LevelRed)]
	moderate := byLevel[string(detector.LevelYellow)]
	if float64(strong)/float64(total) > 0.3 {
		return "high"
	}
	if float64(moderate)/float64(total) > 0.5 {
		return "moderate"
	}
	return "calm"
}

// PeriodBounds resolves a named period to a half-open [from, to) interval
// in now's location.
func PeriodBounds(period string, now time.Time) (time.Time, time.Time, error) {
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	switch period {
	case "today":
		return startOfDay, startOfDay.AddDate(0, 0, 1), nil
	case "yesterday":
		return startOfDay.AddDate(0, 0, -1), startOfDay, nil
	case "week":
		return now.AddDate(0, 0, -7), now.Add(time.Second), nil
	case "month":
		return now.AddDate(0, -1, 0), now.Add(time.Second), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", period)
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func orEmptyResults(rs []filters.Result) []filters.Result {
	if rs == nil {
		return []filters.Result{}
	}
	return rs
}

func orEmptyClusters(cs []clusters.Cluster) []clusters.Cluster {
	if cs == nil {
		return []clusters.Cluster{}
	}
	return cs
}
