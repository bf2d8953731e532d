// Package seed loads the demo campus dataset: the destination blocks around
// CUET plus a handful of riders and pullers, enough to exercise the whole
// ride flow locally.
package seed

import (
	"context"
	"time"

	"github.com/example/rickshaw-rides/internal/geo"
	"github.com/example/rickshaw-rides/internal/models"
	"github.com/example/rickshaw-rides/internal/storage"
)

func f64(v float64) *float64 { return &v }

var Locations = []models.Location{
	{ID: "loc_1", Name: "CUET Campus", Lat: 22.4633, Lon: 91.9714, BlockID: "block_cuet"},
	{ID: "loc_2", Name: "Pahartoli", Lat: 22.4725, Lon: 91.9845, BlockID: "block_pahartoli"},
	{ID: "loc_3", Name: "Noapara", Lat: 22.4580, Lon: 91.9920, BlockID: "block_noapara"},
	{ID: "loc_4", Name: "Raojan", Lat: 22.4520, Lon: 91.9650, BlockID: "block_raojan"},
}

var users = []models.User{
	{ID: "user_1", Name: "Abdul Rahman", Age: 65, UserType: models.UserSenior, PrivilegeVerified: true},
	{ID: "user_2", Name: "Fatima Begum", Age: 72, UserType: models.UserSenior, PrivilegeVerified: true},
	{ID: "user_3", Name: "Ahmed Hassan", Age: 25, UserType: models.UserSpecialNeeds, PrivilegeVerified: true},
}

var pullers = []models.Puller{
	{ID: "puller_1", Name: "Karim Uddin", Phone: "+8801712345678", IsOnline: true,
		CurrentLat: f64(22.4633), CurrentLon: f64(91.9714)}, // CUET campus
	{ID: "puller_2", Name: "Rashid Ali", Phone: "+8801723456789", IsOnline: true,
		CurrentLat: f64(22.4700), CurrentLon: f64(91.9800)}, // near Pahartoli
	{ID: "puller_3", Name: "Hasan Mia", Phone: "+8801734567890", IsOnline: false,
		CurrentLat: f64(22.4600), CurrentLon: f64(91.9700)}, // near Noapara
}

// Load writes the demo dataset into the store and mirrors puller presence
// into the directory. Safe to call on an already-seeded memory store; rows
// are simply overwritten.
func Load(ctx context.Context, store storage.Store, dir geo.Directory) error {
	now := time.Now()
	for i := range Locations {
		if err := store.CreateLocation(ctx, &Locations[i]); err != nil {
			return err
		}
	}
	for i := range users {
		u := users[i]
		u.CreatedAt = now
		if err := store.CreateUser(ctx, &u); err != nil {
			return err
		}
	}
	for i := range pullers {
		p := pullers[i]
		p.CreatedAt = now
		if err := store.CreatePuller(ctx, &p); err != nil {
			return err
		}
		if dir != nil {
			dir.Upsert(p)
		}
	}
	return nil
}
