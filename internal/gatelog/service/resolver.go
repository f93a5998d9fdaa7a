package service

import (
	"fmt"
	"time"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/plate"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/refdata"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
)

// GeneralReception is the authority suggested when the operator typed a
// purpose that isn't linked to any specific authority.
const GeneralReception = "General Reception"

// Resolver matches a plate and a purpose against the reference tables.
// It holds no state of its own.
type Resolver struct {
	tables *refdata.Tables
	now    func() time.Time
}

func NewResolver(tables *refdata.Tables) *Resolver {
	return &Resolver{tables: tables, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Resolver) Tables() *refdata.Tables { return r.tables }

// Resolve expects an already normalized plate; validation is
// case-sensitive.
func (r *Resolver) Resolve(licensePlate, purposeText string) (types.LookupResult, error) {
	if licensePlate == "" {
		return types.LookupResult{}, fmt.Errorf("%w: enter a license plate to perform a lookup", ErrInputRequired)
	}
	if !plate.IsValid(licensePlate) {
		return types.LookupResult{}, ErrInvalidFormat
	}

	res := types.LookupResult{
		LicensePlate: licensePlate,
		PurposeText:  purposeText,
		Authorities:  []types.Authority{},
		ResolvedAt:   r.now(),
	}

	if v, ok := r.tables.VehicleByPlate(licensePlate); ok {
		res.Vehicle = &v
	}

	p, matched := r.tables.PurposeByName(purposeText)
	if matched {
		res.Purpose = &p
	}

	switch {
	case matched && len(p.AuthorityIDs) > 0:
		for _, id := range p.AuthorityIDs {
			if a, ok := r.tables.AuthorityByID(id); ok {
				res.Authorities = append(res.Authorities, a)
			}
		}
	case purposeText != "":
		if a, ok := r.tables.AuthorityByName(GeneralReception); ok {
			res.Authorities = append(res.Authorities, a)
		}
	}

	if len(res.Authorities) == 1 {
		res.SelectedAuthorityID = res.Authorities[0].ID
	}
	return res, nil
}
