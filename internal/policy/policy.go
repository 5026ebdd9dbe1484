// Package policy holds the read-only policy catalog: per tier, four category
// coverage limits and a purchase price. Amounts are in minor units (cents).
package policy

import (
	"context"
	"errors"
	"time"
)

// Tier identifies a policy level.
type Tier string

const (
	TierComfort  Tier = "comfort"
	TierStandard Tier = "standard"
	TierLux      Tier = "lux"
)

// Valid reports whether the tier is one of the catalog tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierComfort, TierStandard, TierLux:
		return true
	}
	return false
}

// Policy carries the coverage limits for one tier.
type Policy struct {
	Tier                   Tier      `json:"tier"`
	LimitMedication        int64     `json:"limit_medication"`
	LimitHospitalTreatment int64     `json:"limit_hospital_treatment"`
	LimitSurgery           int64     `json:"limit_surgery"`
	LimitDentalService     int64     `json:"limit_dental_service"`
	Price                  int64     `json:"price"`
	CreatedAt              time.Time `json:"created_at"`
}

// ErrNotFound is returned when a tier has no catalog entry.
var ErrNotFound = errors.New("policy: not found")

// Catalog provides read access to policy tiers.
type Catalog interface {
	ByTier(ctx context.Context, tier Tier) (Policy, error)
	List(ctx context.Context) ([]Policy, error)
}

// Seed returns the built-in catalog used to initialise an empty store.
func Seed(now time.Time) []Policy {
	return []Policy{
		{Tier: TierComfort, LimitMedication: 20000, LimitHospitalTreatment: 100000, LimitSurgery: 0, LimitDentalService: 0, Price: 5000, CreatedAt: now},
		{Tier: TierStandard, LimitMedication: 30000, LimitHospitalTreatment: 200000, LimitSurgery: 150000, LimitDentalService: 50000, Price: 9000, CreatedAt: now},
		{Tier: TierLux, LimitMedication: 50000, LimitHospitalTreatment: 500000, LimitSurgery: 300000, LimitDentalService: 100000, Price: 15000, CreatedAt: now},
	}
}
