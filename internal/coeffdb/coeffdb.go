// Package coeffdb is the sqlite-backed coefficient store: fitted
// per-zone slopes, official baselines and team profiles as written by
// the upstream fitting pipeline. It implements predict.Store.
package coeffdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/whistle-data/refzone.report/internal/model"
	"github.com/whistle-data/refzone.report/internal/predict"
	"github.com/whistle-data/refzone.report/internal/zones"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the coefficient database at path.
// The base schema is applied inline; incremental changes go through the
// migrations in db/migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS official_baselines (
			official_id         TEXT NOT NULL,
			season              TEXT NOT NULL,
			exposure            TEXT NOT NULL,
			fouls_per_exposure  DOUBLE NOT NULL,
			cards_per_exposure  DOUBLE NOT NULL,
			matches_observed    BIGINT NOT NULL,
			PRIMARY KEY (official_id, season, exposure)
		);
		CREATE TABLE IF NOT EXISTS zone_baselines (
			official_id         TEXT NOT NULL,
			season              TEXT NOT NULL,
			exposure            TEXT NOT NULL,
			grid                TEXT NOT NULL,
			x_bin               INTEGER NOT NULL,
			y_bin               INTEGER NOT NULL,
			rate                DOUBLE NOT NULL,
			PRIMARY KEY (official_id, season, exposure, grid, x_bin, y_bin)
		);
		CREATE TABLE IF NOT EXISTS slopes (
			official_id         TEXT NOT NULL,
			season              TEXT NOT NULL,
			feature             TEXT NOT NULL,
			grid                TEXT NOT NULL,
			x_bin               INTEGER NOT NULL,
			y_bin               INTEGER NOT NULL,
			coef                DOUBLE NOT NULL,
			se                  DOUBLE NOT NULL,
			p_value             DOUBLE,
			PRIMARY KEY (official_id, season, feature, grid, x_bin, y_bin)
		);
		CREATE TABLE IF NOT EXISTS team_baselines (
			team_id             TEXT NOT NULL,
			season              TEXT NOT NULL,
			ppda                DOUBLE NOT NULL,
			directness          DOUBLE NOT NULL,
			possession_share    DOUBLE NOT NULL,
			block_height_x      DOUBLE NOT NULL,
			wing_share          DOUBLE NOT NULL,
			fouls_per_match     DOUBLE NOT NULL,
			yellows_per_match   DOUBLE NOT NULL,
			reds_per_match      DOUBLE NOT NULL,
			matches_observed    BIGINT NOT NULL,
			PRIMARY KEY (team_id, season)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

var _ predict.Store = (*DB)(nil)

func (db *DB) OfficialBaseline(ctx context.Context, officialID, season, exposure string) (model.OfficialBaseline, error) {
	b := model.OfficialBaseline{OfficialID: officialID, Season: season, Exposure: exposure}
	err := db.QueryRowContext(ctx,
		`SELECT fouls_per_exposure, cards_per_exposure, matches_observed
		 FROM official_baselines
		 WHERE official_id = ? AND season = ? AND exposure = ?`,
		officialID, season, exposure,
	).Scan(&b.FoulsPerExposure, &b.CardsPerExposure, &b.MatchesObserved)
	if errors.Is(err, sql.ErrNoRows) {
		return model.OfficialBaseline{}, &predict.NoBaselineError{OfficialID: officialID, Season: season}
	}
	if err != nil {
		return model.OfficialBaseline{}, fmt.Errorf("official baseline lookup: %w", err)
	}
	return b, nil
}

func (db *DB) ZoneBaselines(ctx context.Context, officialID, season, exposure string, grid zones.Grid) ([]float64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT x_bin, y_bin, rate
		 FROM zone_baselines
		 WHERE official_id = ? AND season = ? AND exposure = ? AND grid = ?
		 ORDER BY x_bin, y_bin`,
		officialID, season, exposure, grid.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("zone baseline lookup: %w", err)
	}
	defer rows.Close()

	out := make([]float64, grid.NumZones())
	n := 0
	for rows.Next() {
		var x, y int
		var rate float64
		if err := rows.Scan(&x, &y, &rate); err != nil {
			return nil, err
		}
		if !grid.Contains(x, y) {
			return nil, fmt.Errorf("zone baseline (%d,%d) outside %s grid", x, y, grid)
		}
		out[grid.Index(x, y)] = rate
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &predict.NoBaselineError{OfficialID: officialID, Season: season}
	}
	if n != grid.NumZones() {
		return nil, fmt.Errorf("incomplete zone baselines for official %q: %d of %d zones", officialID, n, grid.NumZones())
	}
	return out, nil
}

func (db *DB) Slopes(ctx context.Context, officialID, feature, season string, grid zones.Grid) ([]model.Slope, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT x_bin, y_bin, coef, se, p_value
		 FROM slopes
		 WHERE official_id = ? AND feature = ? AND season = ? AND grid = ?
		 ORDER BY x_bin, y_bin`,
		officialID, feature, season, grid.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("slope lookup: %w", err)
	}
	defer rows.Close()

	var out []model.Slope
	for rows.Next() {
		s := model.Slope{OfficialID: officialID, Feature: feature}
		var pValue sql.NullFloat64
		if err := rows.Scan(&s.XBin, &s.YBin, &s.Coef, &s.SE, &pValue); err != nil {
			return nil, err
		}
		if pValue.Valid {
			p := pValue.Float64
			s.PValue = &p
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FeatureSlopes returns every official's slopes for one feature and
// season, the input to the ranked effect list.
func (db *DB) FeatureSlopes(ctx context.Context, feature, season string, grid zones.Grid) ([]model.Slope, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT official_id, x_bin, y_bin, coef, se, p_value
		 FROM slopes
		 WHERE feature = ? AND season = ? AND grid = ?
		 ORDER BY official_id, x_bin, y_bin`,
		feature, season, grid.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("feature slope lookup: %w", err)
	}
	defer rows.Close()

	var out []model.Slope
	for rows.Next() {
		s := model.Slope{Feature: feature}
		var pValue sql.NullFloat64
		if err := rows.Scan(&s.OfficialID, &s.XBin, &s.YBin, &s.Coef, &s.SE, &pValue); err != nil {
			return nil, err
		}
		if pValue.Valid {
			p := pValue.Float64
			s.PValue = &p
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) TeamBaseline(ctx context.Context, teamID, season string) (model.TeamBaseline, error) {
	b := model.TeamBaseline{TeamID: teamID, Season: season}
	err := db.QueryRowContext(ctx,
		`SELECT ppda, directness, possession_share, block_height_x, wing_share,
		        fouls_per_match, yellows_per_match, reds_per_match, matches_observed
		 FROM team_baselines
		 WHERE team_id = ? AND season = ?`,
		teamID, season,
	).Scan(&b.PPDA, &b.Directness, &b.PossessionShare, &b.BlockHeightX,
		&b.WingShare, &b.FoulsPerMatch, &b.YellowsPerMatch, &b.RedsPerMatch,
		&b.MatchesObserved)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TeamBaseline{}, fmt.Errorf("no baseline for team %q in season %q", teamID, season)
	}
	if err != nil {
		return model.TeamBaseline{}, fmt.Errorf("team baseline lookup: %w", err)
	}
	return b, nil
}

// Seasons lists the seasons with at least one fitted official baseline,
// newest first.
func (db *DB) Seasons(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT season FROM official_baselines ORDER BY season DESC`)
	if err != nil {
		return nil, fmt.Errorf("season listing: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Officials lists the officials with a fitted baseline for season.
func (db *DB) Officials(ctx context.Context, season string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT official_id FROM official_baselines
		 WHERE season = ? ORDER BY official_id`, season)
	if err != nil {
		return nil, fmt.Errorf("official listing: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RecordOfficialBaseline upserts an official's season rate summary.
func (db *DB) RecordOfficialBaseline(b model.OfficialBaseline) error {
	_, err := db.Exec(
		`INSERT INTO official_baselines (
			official_id, season, exposure, fouls_per_exposure,
			cards_per_exposure, matches_observed
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (official_id, season, exposure) DO UPDATE SET
			fouls_per_exposure = excluded.fouls_per_exposure,
			cards_per_exposure = excluded.cards_per_exposure,
			matches_observed = excluded.matches_observed`,
		b.OfficialID, b.Season, b.Exposure, b.FoulsPerExposure,
		b.CardsPerExposure, b.MatchesObserved,
	)
	return err
}

// RecordZoneBaseline upserts one zone's baseline rate.
func (db *DB) RecordZoneBaseline(officialID, season, exposure string, grid zones.Grid, xBin, yBin int, rate float64) error {
	if !grid.Contains(xBin, yBin) {
		return fmt.Errorf("zone (%d,%d) outside %s grid", xBin, yBin, grid)
	}
	_, err := db.Exec(
		`INSERT INTO zone_baselines (
			official_id, season, exposure, grid, x_bin, y_bin, rate
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (official_id, season, exposure, grid, x_bin, y_bin) DO UPDATE SET
			rate = excluded.rate`,
		officialID, season, exposure, grid.String(), xBin, yBin, rate,
	)
	return err
}

// RecordSlope upserts one fitted slope.
func (db *DB) RecordSlope(season string, grid zones.Grid, s model.Slope) error {
	if !grid.Contains(s.XBin, s.YBin) {
		return fmt.Errorf("slope zone (%d,%d) outside %s grid", s.XBin, s.YBin, grid)
	}
	var pValue sql.NullFloat64
	if s.PValue != nil {
		pValue = sql.NullFloat64{Float64: *s.PValue, Valid: true}
	}
	_, err := db.Exec(
		`INSERT INTO slopes (
			official_id, season, feature, grid, x_bin, y_bin, coef, se, p_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (official_id, season, feature, grid, x_bin, y_bin) DO UPDATE SET
			coef = excluded.coef, se = excluded.se, p_value = excluded.p_value`,
		s.OfficialID, season, s.Feature, grid.String(), s.XBin, s.YBin,
		s.Coef, s.SE, pValue,
	)
	return err
}

// RecordTeamBaseline upserts a team's season profile.
func (db *DB) RecordTeamBaseline(b model.TeamBaseline) error {
	_, err := db.Exec(
		`INSERT INTO team_baselines (
			team_id, season, ppda, directness, possession_share,
			block_height_x, wing_share, fouls_per_match, yellows_per_match,
			reds_per_match, matches_observed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (team_id, season) DO UPDATE SET
			ppda = excluded.ppda,
			directness = excluded.directness,
			possession_share = excluded.possession_share,
			block_height_x = excluded.block_height_x,
			wing_share = excluded.wing_share,
			fouls_per_match = excluded.fouls_per_match,
			yellows_per_match = excluded.yellows_per_match,
			reds_per_match = excluded.reds_per_match,
			matches_observed = excluded.matches_observed`,
		b.TeamID, b.Season, b.PPDA, b.Directness, b.PossessionShare,
		b.BlockHeightX, b.WingShare, b.FoulsPerMatch, b.YellowsPerMatch,
		b.RedsPerMatch, b.MatchesObserved,
	)
	return err
}
