package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/rickshaw-rides/internal/models"
)

// PostgresStore is the durable Store. Ride transitions run inside a
// transaction with the ride row locked, so the ride update, the puller
// increment and the ledger insert commit or roll back together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) CreateLocation(ctx context.Context, l *models.Location) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO locations(id, name, latitude, longitude, block_id) VALUES($1,$2,$3,$4,$5)`,
		l.ID, l.Name, l.Lat, l.Lon, l.BlockID)
	return err
}

func (p *PostgresStore) GetLocation(ctx context.Context, id string) (*models.Location, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude, block_id FROM locations WHERE id=$1`, id)
	var l models.Location
	if err := row.Scan(&l.ID, &l.Name, &l.Lat, &l.Lon, &l.BlockID); err != nil {
		return nil, mapNoRows(err)
	}
	return &l, nil
}

func (p *PostgresStore) ListLocations(ctx context.Context) ([]*models.Location, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, latitude, longitude, block_id FROM locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Location
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Lat, &l.Lon, &l.BlockID); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users(id, name, age, user_type, privilege_verified, created_at) VALUES($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Name, u.Age, string(u.UserType), u.PrivilegeVerified, u.CreatedAt)
	return err
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, name, age, user_type, privilege_verified, created_at FROM users WHERE id=$1`, id)
	return scanUser(row)
}

func (p *PostgresStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, age, user_type, privilege_verified, created_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreatePuller(ctx context.Context, pl *models.Puller) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO pullers(id, name, phone, current_lat, current_lon, is_online, points, total_rides, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		pl.ID, pl.Name, pl.Phone, pl.CurrentLat, pl.CurrentLon, pl.IsOnline, pl.Points, pl.TotalRides, pl.CreatedAt)
	return err
}

const pullerCols = `id, name, phone, current_lat, current_lon, is_online, points, total_rides, created_at`

func (p *PostgresStore) GetPuller(ctx context.Context, id string) (*models.Puller, error) {
	return scanPuller(p.db.QueryRowContext(ctx,
		`SELECT `+pullerCols+` FROM pullers WHERE id=$1`, id))
}

func (p *PostgresStore) FindPullerByPhone(ctx context.Context, phone string) (*models.Puller, error) {
	return scanPuller(p.db.QueryRowContext(ctx,
		`SELECT `+pullerCols+` FROM pullers WHERE phone=$1 LIMIT 1`, phone))
}

func (p *PostgresStore) FindPullerByName(ctx context.Context, name string) (*models.Puller, error) {
	return scanPuller(p.db.QueryRowContext(ctx,
		`SELECT `+pullerCols+` FROM pullers WHERE name=$1 LIMIT 1`, name))
}

func (p *PostgresStore) ListPullers(ctx context.Context) ([]*models.Puller, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+pullerCols+` FROM pullers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Puller
	for rows.Next() {
		pl, err := scanPuller(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdatePullerPresence(ctx context.Context, id string, online *bool, lat, lon *float64) (*models.Puller, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE pullers SET
			is_online   = COALESCE($1, is_online),
			current_lat = COALESCE($2, current_lat),
			current_lon = COALESCE($3, current_lon)
		 WHERE id=$4`, online, lat, lon, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return p.GetPuller(ctx, id)
}

const rideCols = `id, user_id, puller_id, pickup_location_id, destination_location_id,
	pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, status, distance_from_block,
	points_awarded, points_status, created_at, accepted_at, pickup_confirmed_at, completed_at`

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO rides(`+rideCols+`)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		r.ID, r.UserID, r.PullerID, r.PickupLocationID, r.DestLocationID,
		r.PickupLat, r.PickupLon, r.DropoffLat, r.DropoffLon, string(r.Status), r.DistanceFromBlock,
		r.PointsAwarded, string(r.PointsStatus), r.CreatedAt, r.AcceptedAt, r.PickupConfirmedAt, r.CompletedAt)
	return err
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	return scanRide(p.db.QueryRowContext(ctx,
		`SELECT `+rideCols+` FROM rides WHERE id=$1`, id))
}

func (p *PostgresStore) ListRides(ctx context.Context) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+rideCols+` FROM rides ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRides(rows)
}

func (p *PostgresStore) ListRidesByPuller(ctx context.Context, pullerID string, limit int) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+rideCols+` FROM rides WHERE puller_id=$1 ORDER BY created_at DESC LIMIT $2`,
		pullerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRides(rows)
}

func (p *PostgresStore) TransitionRide(ctx context.Context, rideID string, apply func(r *models.Ride) (*Effects, error)) (*models.Ride, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// row lock serializes concurrent transitions on the same ride
	r, err := scanRide(tx.QueryRowContext(ctx,
		`SELECT `+rideCols+` FROM rides WHERE id=$1 FOR UPDATE`, rideID))
	if err != nil {
		return nil, err
	}
	eff, err := apply(r)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE rides SET
			puller_id=$1, dropoff_lat=$2, dropoff_lon=$3, status=$4,
			distance_from_block=$5, points_awarded=$6, points_status=$7,
			accepted_at=$8, pickup_confirmed_at=$9, completed_at=$10
		 WHERE id=$11`,
		r.PullerID, r.DropoffLat, r.DropoffLon, string(r.Status),
		r.DistanceFromBlock, r.PointsAwarded, string(r.PointsStatus),
		r.AcceptedAt, r.PickupConfirmedAt, r.CompletedAt, rideID); err != nil {
		return nil, err
	}
	if eff != nil && eff.PullerID != "" {
		res, err := tx.ExecContext(ctx,
			`UPDATE pullers SET points = points + $1, total_rides = total_rides + $2 WHERE id=$3`,
			eff.PullerPointsDelta, eff.PullerRidesDelta, eff.PullerID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, ErrNotFound
		}
	}
	if eff != nil && eff.Ledger != nil {
		if err := insertLedger(ctx, tx, eff.Ledger); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *PostgresStore) ApplyPointsChange(ctx context.Context, pullerID string, delta float64, entry *models.PointsEntry) (*models.Puller, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	// lock the row so the balance check and the update are one unit
	var balance float64
	if err := tx.QueryRowContext(ctx,
		`SELECT points FROM pullers WHERE id=$1 FOR UPDATE`, pullerID).Scan(&balance); err != nil {
		return nil, mapNoRows(err)
	}
	if balance+delta < 0 {
		return nil, ErrInsufficientPoints
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE pullers SET points = points + $1 WHERE id=$2`, delta, pullerID); err != nil {
		return nil, err
	}
	if entry != nil {
		if err := insertLedger(ctx, tx, entry); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p.GetPuller(ctx, pullerID)
}

func (p *PostgresStore) ListPointsByPuller(ctx context.Context, pullerID string) ([]*models.PointsEntry, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, puller_id, ride_id, points, kind, description, created_at
		 FROM points_history WHERE puller_id=$1 ORDER BY id`, pullerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.PointsEntry
	for rows.Next() {
		var e models.PointsEntry
		var id int64
		var rideID sql.NullString
		if err := rows.Scan(&id, &e.PullerID, &rideID, &e.Points, &e.Kind, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = strconv.FormatInt(id, 10)
		e.RideID = rideID.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

func insertLedger(ctx context.Context, tx *sql.Tx, e *models.PointsEntry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var rideID any
	if e.RideID != "" {
		rideID = e.RideID
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO points_history(puller_id, ride_id, points, kind, description, created_at)
		 VALUES($1,$2,$3,$4,$5,$6)`,
		e.PullerID, rideID, e.Points, string(e.Kind), e.Description, createdAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var ut string
	if err := row.Scan(&u.ID, &u.Name, &u.Age, &ut, &u.PrivilegeVerified, &u.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	u.UserType = models.UserType(ut)
	return &u, nil
}

func scanPuller(row rowScanner) (*models.Puller, error) {
	var p models.Puller
	var lat, lon sql.NullFloat64
	if err := row.Scan(&p.ID, &p.Name, &p.Phone, &lat, &lon, &p.IsOnline, &p.Points, &p.TotalRides, &p.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	if lat.Valid && lon.Valid {
		p.CurrentLat, p.CurrentLon = &lat.Float64, &lon.Float64
	}
	return &p, nil
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var pullerID sql.NullString
	var dropLat, dropLon, distBlock sql.NullFloat64
	var status, pstatus string
	var acceptedAt, pickupAt, completedAt sql.NullTime
	if err := row.Scan(
		&r.ID, &r.UserID, &pullerID, &r.PickupLocationID, &r.DestLocationID,
		&r.PickupLat, &r.PickupLon, &dropLat, &dropLon, &status, &distBlock,
		&r.PointsAwarded, &pstatus, &r.CreatedAt, &acceptedAt, &pickupAt, &completedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	if pullerID.Valid {
		r.PullerID = &pullerID.String
	}
	if dropLat.Valid {
		r.DropoffLat = &dropLat.Float64
	}
	if dropLon.Valid {
		r.DropoffLon = &dropLon.Float64
	}
	if distBlock.Valid {
		r.DistanceFromBlock = &distBlock.Float64
	}
	r.Status = models.RideStatus(status)
	r.PointsStatus = models.PointsStatus(pstatus)
	r.AcceptedAt = nullTimePtr(acceptedAt)
	r.PickupConfirmedAt = nullTimePtr(pickupAt)
	r.CompletedAt = nullTimePtr(completedAt)
	return &r, nil
}

func collectRides(rows *sql.Rows) ([]*models.Ride, error) {
	var out []*models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
