package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonnylitten/bountyping/models"
	"github.com/sirupsen/logrus"
)

// CatalogStore is the persistence contract the ingestion engine consumes.
// UpsertProgram must be atomic per identity: concurrent writers for the
// same identity never interleave a read-modify-write.
type CatalogStore interface {
	FindByIdentity(ctx context.Context, identity string) (*models.Program, error)
	UpsertProgram(ctx context.Context, program *models.Program) (isNew bool, isUpdated bool, err error)
	AppendRunLog(ctx context.Context, run *models.IngestionRun) error
	Stats(ctx context.Context) (*models.AggregateStats, error)
	ListPrograms(ctx context.Context, filters models.ProgramFilters) ([]models.Program, error)
	RecentRuns(ctx context.Context, limit int) ([]models.IngestionRun, error)
}

// CatalogService implements CatalogStore over Postgres.
type CatalogService struct {
	DB *sql.DB
}

func NewCatalogService(db *sql.DB) *CatalogService {
	return &CatalogService{DB: db}
}

const programColumns = `identity, platform, name, slug, url,
	bounty_min, bounty_max, currency,
	assets, asset_types, managed, vdp_only,
	accepts_submissions, offers_bounties,
	first_seen, last_updated, last_scraped, raw_data`

// FindByIdentity returns the stored program or nil when absent.
func (s *CatalogService) FindByIdentity(ctx context.Context, identity string) (*models.Program, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+programColumns+` FROM programs WHERE identity = $1`, identity)

	program, err := scanProgram(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query program %s: %w", identity, err)
	}
	return program, nil
}

// UpsertProgram inserts or updates a program and classifies the change.
//
// Change classification compares the material fields only: bounty_min,
// bounty_max, assets, and url. All other fields are overwritten on every
// upsert but do not mark the record updated. last_updated is refreshed only
// on a material change; last_scraped is refreshed unconditionally. On first
// insert all three timestamps are set to the same instant.
//
// The row is locked for the duration of the read-modify-write; a concurrent
// first insert for the same identity (two adapters can emit the same
// platform/slug pair) is resolved through the primary key conflict.
func (s *CatalogService) UpsertProgram(ctx context.Context, program *models.Program) (bool, bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, false, fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.lockExisting(ctx, tx, program.Identity)
	if err != nil {
		return false, false, err
	}

	now := time.Now().UTC()

	if existing == nil {
		inserted, err := s.insertProgram(ctx, tx, program, now)
		if err != nil {
			return false, false, err
		}
		if inserted {
			if err := tx.Commit(); err != nil {
				return false, false, fmt.Errorf("failed to commit insert: %w", err)
			}
			return true, false, nil
		}

		// Lost the insert race; the row exists now, lock and update it.
		existing, err = s.lockExisting(ctx, tx, program.Identity)
		if err != nil {
			return false, false, err
		}
		if existing == nil {
			return false, false, fmt.Errorf("program %s vanished during upsert", program.Identity)
		}
	}

	isUpdated := materialFieldsChanged(existing, program)

	program.FirstSeen = existing.FirstSeen
	if isUpdated {
		program.LastUpdated = now
	} else {
		program.LastUpdated = existing.LastUpdated
	}
	program.LastScraped = now

	if err := s.updateProgram(ctx, tx, program); err != nil {
		return false, false, err
	}
	if err := tx.Commit(); err != nil {
		return false, false, fmt.Errorf("failed to commit update: %w", err)
	}
	return false, isUpdated, nil
}

func (s *CatalogService) lockExisting(ctx context.Context, tx *sql.Tx, identity string) (*models.Program, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+programColumns+` FROM programs WHERE identity = $1 FOR UPDATE`, identity)

	existing, err := scanProgram(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock program %s: %w", identity, err)
	}
	return existing, nil
}

func (s *CatalogService) insertProgram(ctx context.Context, tx *sql.Tx, program *models.Program, now time.Time) (bool, error) {
	program.FirstSeen = now
	program.LastUpdated = now
	program.LastScraped = now

	assets, assetTypes, rawData := marshalProgramJSON(program)

	result, err := tx.ExecContext(ctx, `
		INSERT INTO programs (`+programColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (identity) DO NOTHING`,
		program.Identity, program.Platform, program.Name, program.Slug, program.URL,
		program.BountyMin, program.BountyMax, program.Currency,
		assets, assetTypes, program.Managed, program.VDPOnly,
		program.AcceptsSubmissions, program.OffersBounties,
		program.FirstSeen, program.LastUpdated, program.LastScraped, rawData,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert program %s: %w", program.Identity, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result for %s: %w", program.Identity, err)
	}
	return rows == 1, nil
}

func (s *CatalogService) updateProgram(ctx context.Context, tx *sql.Tx, program *models.Program) error {
	assets, assetTypes, rawData := marshalProgramJSON(program)

	_, err := tx.ExecContext(ctx, `
		UPDATE programs SET
			platform = $2, name = $3, slug = $4, url = $5,
			bounty_min = $6, bounty_max = $7, currency = $8,
			assets = $9, asset_types = $10, managed = $11, vdp_only = $12,
			accepts_submissions = $13, offers_bounties = $14,
			last_updated = $15, last_scraped = $16, raw_data = $17
		WHERE identity = $1`,
		program.Identity, program.Platform, program.Name, program.Slug, program.URL,
		program.BountyMin, program.BountyMax, program.Currency,
		assets, assetTypes, program.Managed, program.VDPOnly,
		program.AcceptsSubmissions, program.OffersBounties,
		program.LastUpdated, program.LastScraped, rawData,
	)
	if err != nil {
		return fmt.Errorf("failed to update program %s: %w", program.Identity, err)
	}
	return nil
}

// AppendRunLog durably appends one ingestion run record. Rows are never
// updated after this returns.
func (s *CatalogService) AppendRunLog(ctx context.Context, run *models.IngestionRun) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO ingestion_runs (id, source, started_at, completed_at, found, new, updated, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.Source, run.StartedAt, run.CompletedAt,
		run.Found, run.New, run.Updated, run.Success, nullableString(run.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to append run log for %s: %w", run.Source, err)
	}
	return nil
}

// Stats returns aggregate catalog statistics.
func (s *CatalogService) Stats(ctx context.Context) (*models.AggregateStats, error) {
	stats := &models.AggregateStats{ByPlatform: map[string]int{}}

	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE first_seen >= NOW() - INTERVAL '7 days'),
			COUNT(*) FILTER (WHERE vdp_only = FALSE AND offers_bounties = TRUE),
			COUNT(DISTINCT platform)
		FROM programs`).Scan(&stats.TotalPrograms, &stats.NewThisWeek, &stats.PaidPrograms, &stats.Platforms)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog stats: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT platform, COUNT(*) FROM programs GROUP BY platform ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query per-platform counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var platform string
		var count int
		if err := rows.Scan(&platform, &count); err != nil {
			return nil, fmt.Errorf("failed to scan platform count: %w", err)
		}
		stats.ByPlatform[platform] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platform counts: %w", err)
	}

	return stats, nil
}

// ListPrograms returns programs matching the filters in the requested order.
func (s *CatalogService) ListPrograms(ctx context.Context, filters models.ProgramFilters) ([]models.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs`

	var conditions []string
	var args []interface{}
	argIndex := 1

	if filters.Platform != "" {
		conditions = append(conditions, fmt.Sprintf("platform = $%d", argIndex))
		args = append(args, strings.ToLower(filters.Platform))
		argIndex++
	}
	if filters.MinBounty > 0 {
		conditions = append(conditions, fmt.Sprintf("bounty_max >= $%d", argIndex))
		args = append(args, filters.MinBounty)
		argIndex++
	}
	if filters.AssetType != "" {
		conditions = append(conditions, fmt.Sprintf("asset_types::text ILIKE $%d", argIndex))
		args = append(args, "%"+filters.AssetType+"%")
		argIndex++
	}
	if filters.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR slug ILIKE $%d)", argIndex, argIndex+1))
		args = append(args, "%"+filters.Search+"%", "%"+filters.Search+"%")
		argIndex += 2
	}
	if filters.NewOnly {
		conditions = append(conditions, "first_seen >= NOW() - INTERVAL '7 days'")
	}
	if filters.BountiesOnly {
		conditions = append(conditions, "vdp_only = FALSE AND offers_bounties = TRUE")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	switch filters.SortBy {
	case "bounty":
		query += " ORDER BY bounty_max DESC NULLS LAST"
	case "name":
		query += " ORDER BY name ASC"
	default:
		query += " ORDER BY first_seen DESC"
	}

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filters.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query programs: %w", err)
	}
	defer rows.Close()

	var programs []models.Program
	for rows.Next() {
		program, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan program row: %w", err)
		}
		programs = append(programs, *program)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating program rows: %w", err)
	}

	return programs, nil
}

// RecentRuns returns the ingestion run log, most recent first.
func (s *CatalogService) RecentRuns(ctx context.Context, limit int) ([]models.IngestionRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, source, started_at, completed_at, found, new, updated, success, error_message
		FROM ingestion_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run log: %w", err)
	}
	defer rows.Close()

	var runs []models.IngestionRun
	for rows.Next() {
		var run models.IngestionRun
		var errorMessage sql.NullString
		if err := rows.Scan(&run.ID, &run.Source, &run.StartedAt, &run.CompletedAt,
			&run.Found, &run.New, &run.Updated, &run.Success, &errorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		run.ErrorMessage = errorMessage.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProgram(row rowScanner) (*models.Program, error) {
	var program models.Program
	var assets, assetTypes, rawData []byte

	err := row.Scan(
		&program.Identity, &program.Platform, &program.Name, &program.Slug, &program.URL,
		&program.BountyMin, &program.BountyMax, &program.Currency,
		&assets, &assetTypes, &program.Managed, &program.VDPOnly,
		&program.AcceptsSubmissions, &program.OffersBounties,
		&program.FirstSeen, &program.LastUpdated, &program.LastScraped, &rawData,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(assets, &program.Assets); err != nil {
		logrus.Warnf("Malformed assets payload for %s: %v", program.Identity, err)
	}
	if err := json.Unmarshal(assetTypes, &program.AssetTypes); err != nil {
		logrus.Warnf("Malformed asset_types payload for %s: %v", program.Identity, err)
	}
	if len(rawData) > 0 {
		program.RawData = json.RawMessage(rawData)
	}

	return &program, nil
}

func marshalProgramJSON(program *models.Program) ([]byte, []byte, interface{}) {
	assets, _ := json.Marshal(emptyIfNil(program.Assets))
	assetTypes, _ := json.Marshal(emptyIfNil(program.AssetTypes))

	var rawData interface{}
	if len(program.RawData) > 0 {
		rawData = []byte(program.RawData)
	}
	return assets, assetTypes, rawData
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// materialFieldsChanged compares the fields whose change marks a record
// updated: bounty_min, bounty_max, assets, url.
func materialFieldsChanged(existing, incoming *models.Program) bool {
	if !intPointersEqual(existing.BountyMin, incoming.BountyMin) {
		return true
	}
	if !intPointersEqual(existing.BountyMax, incoming.BountyMax) {
		return true
	}
	if existing.URL != incoming.URL {
		return true
	}
	return !stringSlicesEqual(existing.Assets, incoming.Assets)
}

func intPointersEqual(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
