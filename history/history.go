// Package history persists plant state, optimization outcomes, and
// strategy-selector decisions to a per-site SQLite database, and derives
// daily and multi-day performance summaries from them.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// StateRecord is one row of state_history.
type StateRecord struct {
	Timestamp      time.Time
	SoCPct         float64
	PBESSKW        float64
	PPVKW          float64
	PLoadKW        float64
	PGridKW        float64
	PriceEURPerMWh float64
	ActiveStrategy string
	SetpointKW     float64
	Mode           string
}

// OptimizationRecord is one row of optimization_history.
type OptimizationRecord struct {
	Timestamp           time.Time
	StrategyName        string
	ExpectedProfitEUR   float64
	ExpectedRevenueEUR  float64
	ExpectedCostEUR     float64
	Confidence          float64
	OptimizationStatus  string
	Solver              string
	Metadata            map[string]any
}

// DailyMetrics is one row of daily_metrics.
type DailyMetrics struct {
	Date              time.Time
	TotalProfitEUR    float64
	TotalRevenueEUR   float64
	TotalCostEUR      float64
	EnergyChargedKWh  float64
	EnergyDischargedKWh float64
	Cycles            float64
	AvgSoCPct         float64
	MinSoCPct         float64
	MaxSoCPct         float64
	StrategyUsage     map[string]int
	OptimizationCount int
}

// PerformanceSummary aggregates DailyMetrics over a lookback window.
type PerformanceSummary struct {
	PeriodDays          int
	TotalProfitEUR      float64
	TotalRevenueEUR     float64
	TotalCostEUR        float64
	AvgDailyProfitEUR   float64
	TotalCycles         float64
	AvgSoCPct           float64
	StrategyDistribution map[string]int
	FirstDate           time.Time
	LastDate            time.Time
}

// assumedCapacityKWh is the fallback battery capacity used to derive a
// cycle count when no real capacity is supplied to CalculateDailyMetrics.
const assumedCapacityKWh = 200.0

// Store wraps a site's history database.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite database at path, and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS state_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			soc REAL, p_bess REAL, p_pv REAL, p_load REAL, p_grid REAL,
			price REAL, active_strategy TEXT, setpoint_kw REAL, mode TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_state_timestamp ON state_history(timestamp)`,
		`CREATE TABLE IF NOT EXISTS optimization_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			strategy_name TEXT NOT NULL,
			expected_profit REAL, expected_revenue REAL, expected_cost REAL,
			confidence REAL, optimization_status TEXT, solver TEXT, metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_optimization_timestamp ON optimization_history(timestamp)`,
		`CREATE TABLE IF NOT EXISTS strategy_changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			old_strategy TEXT, new_strategy TEXT, reason TEXT, scores TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS daily_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date DATE NOT NULL UNIQUE,
			total_profit REAL, total_revenue REAL, total_cost REAL,
			energy_charged REAL, energy_discharged REAL, cycles REAL,
			avg_soc REAL, min_soc REAL, max_soc REAL,
			strategy_usage TEXT, optimization_count INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_date ON daily_metrics(date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("history: migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// LogState appends one plant-state snapshot.
func (s *Store) LogState(r StateRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO state_history
			(timestamp, soc, p_bess, p_pv, p_load, p_grid, price, active_strategy, setpoint_kw, mode)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UTC().Format(time.RFC3339), r.SoCPct, r.PBESSKW, r.PPVKW, r.PLoadKW, r.PGridKW,
		r.PriceEURPerMWh, r.ActiveStrategy, r.SetpointKW, r.Mode,
	)
	if err != nil {
		return fmt.Errorf("history: log state: %w", err)
	}
	return nil
}

// LogOptimization appends one optimization-cycle outcome.
func (s *Store) LogOptimization(r OptimizationRecord) error {
	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("history: marshal optimization metadata: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO optimization_history
			(timestamp, strategy_name, expected_profit, expected_revenue, expected_cost,
			 confidence, optimization_status, solver, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UTC().Format(time.RFC3339), r.StrategyName, r.ExpectedProfitEUR, r.ExpectedRevenueEUR,
		r.ExpectedCostEUR, r.Confidence, r.OptimizationStatus, r.Solver, string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("history: log optimization: %w", err)
	}
	return nil
}

// LogStrategyChange appends a record of the selector switching strategies.
func (s *Store) LogStrategyChange(oldStrategy, newStrategy, reason string, scores map[string]float64) error {
	var scoresJSON []byte
	if scores != nil {
		var err error
		scoresJSON, err = json.Marshal(scores)
		if err != nil {
			return fmt.Errorf("history: marshal scores: %w", err)
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO strategy_changes (timestamp, old_strategy, new_strategy, reason, scores)
		 VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), oldStrategy, newStrategy, reason, string(scoresJSON),
	)
	if err != nil {
		return fmt.Errorf("history: log strategy change: %w", err)
	}
	return nil
}

// GetStateHistory returns state_history rows from the last `hours` hours,
// oldest first.
func (s *Store) GetStateHistory(hours int) ([]StateRecord, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour).Format(time.RFC3339)
	rows, err := s.db.Query(
		`SELECT timestamp, soc, p_bess, p_pv, p_load, p_grid, price, active_strategy, setpoint_kw, mode
		 FROM state_history WHERE timestamp >= ? ORDER BY timestamp ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("history: query state history: %w", err)
	}
	defer rows.Close()

	var out []StateRecord
	for rows.Next() {
		var r StateRecord
		var ts string
		if err := rows.Scan(&ts, &r.SoCPct, &r.PBESSKW, &r.PPVKW, &r.PLoadKW, &r.PGridKW,
			&r.PriceEURPerMWh, &r.ActiveStrategy, &r.SetpointKW, &r.Mode); err != nil {
			return nil, fmt.Errorf("history: scan state row: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CalculateDailyMetrics aggregates state_history and optimization_history
// for the UTC calendar day containing `date` into one daily_metrics row,
// upserting if one already exists. capacityKWh, when > 0, replaces the
// assumed 200kWh capacity in the cycle-count heuristic.
func (s *Store) CalculateDailyMetrics(date time.Time, capacityKWh float64) error {
	day := date.UTC().Truncate(24 * time.Hour)
	start := day.Format(time.RFC3339)
	end := day.Add(24 * time.Hour).Format(time.RFC3339)

	var avgSoC, minSoC, maxSoC, energyCharged, energyDischarged sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT AVG(soc), MIN(soc), MAX(soc),
			SUM(CASE WHEN p_bess < 0 THEN ABS(p_bess) ELSE 0 END),
			SUM(CASE WHEN p_bess > 0 THEN p_bess ELSE 0 END)
		 FROM state_history WHERE timestamp >= ? AND timestamp < ?`,
		start, end,
	).Scan(&avgSoC, &minSoC, &maxSoC, &energyCharged, &energyDischarged)
	if err != nil {
		return fmt.Errorf("history: aggregate state metrics: %w", err)
	}

	var totalProfit, totalRevenue, totalCost sql.NullFloat64
	var optCount int
	err = s.db.QueryRow(
		`SELECT SUM(expected_profit), SUM(expected_revenue), SUM(expected_cost), COUNT(*)
		 FROM optimization_history WHERE timestamp >= ? AND timestamp < ?`,
		start, end,
	).Scan(&totalProfit, &totalRevenue, &totalCost, &optCount)
	if err != nil {
		return fmt.Errorf("history: aggregate optimization metrics: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT strategy_name FROM optimization_history WHERE timestamp >= ? AND timestamp < ?`, start, end)
	if err != nil {
		return fmt.Errorf("history: query strategy usage: %w", err)
	}
	usage := make(map[string]int)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("history: scan strategy name: %w", err)
		}
		usage[name]++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	capacity := capacityKWh
	if capacity <= 0 {
		capacity = assumedCapacityKWh
	}
	cycles := energyDischarged.Float64 / capacity

	usageJSON, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("history: marshal strategy usage: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO daily_metrics
			(date, total_profit, total_revenue, total_cost, energy_charged, energy_discharged,
			 cycles, avg_soc, min_soc, max_soc, strategy_usage, optimization_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
			total_profit=excluded.total_profit, total_revenue=excluded.total_revenue,
			total_cost=excluded.total_cost, energy_charged=excluded.energy_charged,
			energy_discharged=excluded.energy_discharged, cycles=excluded.cycles,
			avg_soc=excluded.avg_soc, min_soc=excluded.min_soc, max_soc=excluded.max_soc,
			strategy_usage=excluded.strategy_usage, optimization_count=excluded.optimization_count`,
		day.Format("2006-01-02"), totalProfit.Float64, totalRevenue.Float64, totalCost.Float64,
		energyCharged.Float64, energyDischarged.Float64, cycles,
		avgSoC.Float64, minSoC.Float64, maxSoC.Float64, string(usageJSON), optCount,
	)
	if err != nil {
		return fmt.Errorf("history: upsert daily metrics: %w", err)
	}
	return nil
}

// GetDailyMetrics returns up to `days` most recent daily_metrics rows,
// newest first.
func (s *Store) GetDailyMetrics(days int) ([]DailyMetrics, error) {
	rows, err := s.db.Query(
		`SELECT date, total_profit, total_revenue, total_cost, energy_charged, energy_discharged,
			cycles, avg_soc, min_soc, max_soc, strategy_usage, optimization_count
		 FROM daily_metrics ORDER BY date DESC LIMIT ?`, days)
	if err != nil {
		return nil, fmt.Errorf("history: query daily metrics: %w", err)
	}
	defer rows.Close()

	var out []DailyMetrics
	for rows.Next() {
		var m DailyMetrics
		var dateStr, usageJSON string
		if err := rows.Scan(&dateStr, &m.TotalProfitEUR, &m.TotalRevenueEUR, &m.TotalCostEUR,
			&m.EnergyChargedKWh, &m.EnergyDischargedKWh, &m.Cycles,
			&m.AvgSoCPct, &m.MinSoCPct, &m.MaxSoCPct, &usageJSON, &m.OptimizationCount); err != nil {
			return nil, fmt.Errorf("history: scan daily metrics row: %w", err)
		}
		m.Date, _ = time.Parse("2006-01-02", dateStr)
		m.StrategyUsage = make(map[string]int)
		_ = json.Unmarshal([]byte(usageJSON), &m.StrategyUsage)
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetPerformanceSummary rolls up the last `days` days of daily_metrics.
// Returns the zero PerformanceSummary if no rows exist yet.
func (s *Store) GetPerformanceSummary(days int) (PerformanceSummary, error) {
	daily, err := s.GetDailyMetrics(days)
	if err != nil {
		return PerformanceSummary{}, err
	}
	if len(daily) == 0 {
		return PerformanceSummary{}, nil
	}

	var summary PerformanceSummary
	summary.PeriodDays = len(daily)
	summary.StrategyDistribution = make(map[string]int)

	var socSum float64
	for _, m := range daily {
		summary.TotalProfitEUR += m.TotalProfitEUR
		summary.TotalRevenueEUR += m.TotalRevenueEUR
		summary.TotalCostEUR += m.TotalCostEUR
		summary.TotalCycles += m.Cycles
		socSum += m.AvgSoCPct
		for name, count := range m.StrategyUsage {
			summary.StrategyDistribution[name] += count
		}
	}
	summary.AvgSoCPct = socSum / float64(len(daily))
	summary.AvgDailyProfitEUR = summary.TotalProfitEUR / float64(len(daily))
	summary.LastDate = daily[0].Date
	summary.FirstDate = daily[len(daily)-1].Date

	return summary, nil
}
