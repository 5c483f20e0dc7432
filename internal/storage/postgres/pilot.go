package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPilotNotFound is returned when a pilot lookup yields no results.
var ErrPilotNotFound = errors.New("pilot not found")

// ErrPilotNameTaken is returned when creating a pilot with a name already used by any pilot.
var ErrPilotNameTaken = errors.New("pilot name already taken")

// Pilot is the persisted state a reconnecting client needs to rehydrate a
// session.PilotSession: ship complement, location, and wallet, replacing
// the PF2E CharacterRepository's ability-score/HP sheet.
type Pilot struct {
	ID            int64
	AccountID     int64
	Name          string
	SectorID      int
	CorporationID string
	Credits       int
	ShipType      string
	Fighters      int
	MaxFighters   int
	Shields       int
	MaxShields    int
	CargoCapacity int
}

// PilotRepository provides pilot persistence operations.
type PilotRepository struct {
	db *pgxpool.Pool
}

// NewPilotRepository creates a PilotRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPilotRepository(db *pgxpool.Pool) *PilotRepository {
	return &PilotRepository{db: db}
}

// Create inserts a new pilot and returns it with its ID set.
//
// Precondition: p.AccountID must reference an existing account; p.Name must be non-empty.
// Postcondition: Returns the created pilot with ID set, or ErrPilotNameTaken on duplicate.
func (r *PilotRepository) Create(ctx context.Context, p *Pilot) (*Pilot, error) {
	var out Pilot
	err := r.db.QueryRow(ctx, `
		INSERT INTO pilots
			(account_id, name, sector_id, corporation_id, credits, ship_type,
			 fighters, max_fighters, shields, max_shields, cargo_capacity)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, account_id, name, sector_id, corporation_id, credits, ship_type,
		          fighters, max_fighters, shields, max_shields, cargo_capacity`,
		p.AccountID, p.Name, p.SectorID, p.CorporationID, p.Credits, p.ShipType,
		p.Fighters, p.MaxFighters, p.Shields, p.MaxShields, p.CargoCapacity,
	).Scan(
		&out.ID, &out.AccountID, &out.Name, &out.SectorID, &out.CorporationID, &out.Credits, &out.ShipType,
		&out.Fighters, &out.MaxFighters, &out.Shields, &out.MaxShields, &out.CargoCapacity,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrPilotNameTaken
		}
		return nil, fmt.Errorf("inserting pilot: %w", err)
	}
	return &out, nil
}

// GetByName retrieves a pilot by its display name.
//
// Precondition: name must be non-empty.
// Postcondition: Returns the Pilot or ErrPilotNotFound.
func (r *PilotRepository) GetByName(ctx context.Context, name string) (*Pilot, error) {
	var p Pilot
	err := r.db.QueryRow(ctx, `
		SELECT id, account_id, name, sector_id, corporation_id, credits, ship_type,
		       fighters, max_fighters, shields, max_shields, cargo_capacity
		FROM pilots WHERE name = $1`,
		name,
	).Scan(
		&p.ID, &p.AccountID, &p.Name, &p.SectorID, &p.CorporationID, &p.Credits, &p.ShipType,
		&p.Fighters, &p.MaxFighters, &p.Shields, &p.MaxShields, &p.CargoCapacity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPilotNotFound
		}
		return nil, fmt.Errorf("querying pilot: %w", err)
	}
	return &p, nil
}

// ListByAccount returns every pilot belonging to accountID.
//
// Precondition: accountID must be > 0.
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *PilotRepository) ListByAccount(ctx context.Context, accountID int64) ([]*Pilot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, name, sector_id, corporation_id, credits, ship_type,
		       fighters, max_fighters, shields, max_shields, cargo_capacity
		FROM pilots WHERE account_id = $1 ORDER BY id ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pilots: %w", err)
	}
	defer rows.Close()

	pilots := make([]*Pilot, 0)
	for rows.Next() {
		var p Pilot
		if err := rows.Scan(
			&p.ID, &p.AccountID, &p.Name, &p.SectorID, &p.CorporationID, &p.Credits, &p.ShipType,
			&p.Fighters, &p.MaxFighters, &p.Shields, &p.MaxShields, &p.CargoCapacity,
		); err != nil {
			return nil, fmt.Errorf("scanning pilot row: %w", err)
		}
		pilots = append(pilots, &p)
	}
	return pilots, rows.Err()
}

// SaveState persists a pilot's sector, wallet, and ship complement after a
// session, the pilot-domain equivalent of CharacterRepository.SaveState.
//
// Precondition: id must be > 0.
// Postcondition: Returns nil on success, ErrPilotNotFound if no row updated.
func (r *PilotRepository) SaveState(ctx context.Context, id int64, sectorID, credits, fighters, shields int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE pilots SET sector_id = $2, credits = $3, fighters = $4, shields = $5
		WHERE id = $1`,
		id, sectorID, credits, fighters, shields,
	)
	if err != nil {
		return fmt.Errorf("saving pilot state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPilotNotFound
	}
	return nil
}
