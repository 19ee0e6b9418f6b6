package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rentview/internal/appointments"
	"rentview/internal/models"
)

var ErrRoomNotFound = appointments.ErrRoomNotFound

// PutRoom inserts or updates the mirrored catalog entry of a room.
func (db *DB) PutRoom(ctx context.Context, r models.Room) error {
	if r.Ref == "" || r.OwnerRef == "" {
		return fmt.Errorf("%w: room ref and owner ref are required", ErrInvalidRequest)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO rooms (ref, building_ref, owner_ref, title, address, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			building_ref = excluded.building_ref,
			owner_ref = excluded.owner_ref,
			title = excluded.title,
			address = excluded.address,
			updated_at = excluded.updated_at`,
		r.Ref, r.BuildingRef, r.OwnerRef, r.Title, r.Address, db.now(),
	)
	if err != nil {
		return fmt.Errorf("put room: %w", err)
	}
	return nil
}

// GetRoom returns a mirrored room.
func (db *DB) GetRoom(ctx context.Context, ref string) (*models.Room, error) {
	return getRoom(ctx, db.DB, ref)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRoom(ctx context.Context, q queryRower, ref string) (*models.Room, error) {
	var r models.Room
	err := q.QueryRowContext(ctx,
		`SELECT ref, building_ref, owner_ref, title, address FROM rooms WHERE ref = ?`, ref,
	).Scan(&r.Ref, &r.BuildingRef, &r.OwnerRef, &r.Title, &r.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return &r, nil
}
