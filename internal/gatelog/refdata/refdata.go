// Package refdata loads the gate's reference tables (authorities, approved
// purposes, pre-registered vehicles) from an XML document.
//
// Parsing is best effort. A record with a broken tag does not take the
// rest of the document down with it: the loader returns every record it
// could read together with an error wrapping ErrMalformed, and the caller
// decides whether to log and carry on.
package refdata

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
)

//go:embed community.xml
var defaultDocument []byte

// Tables is read-only after construction.
type Tables struct {
	authorities []types.Authority
	purposes    []types.Purpose
	vehicles    []types.RegisteredVehicle
}

// NewTables builds tables directly, mainly for tests and alternate loaders.
func NewTables(authorities []types.Authority, purposes []types.Purpose, vehicles []types.RegisteredVehicle) *Tables {
	t := &Tables{
		authorities: append([]types.Authority(nil), authorities...),
		vehicles:    append([]types.RegisteredVehicle(nil), vehicles...),
	}
	for _, p := range purposes {
		if p.AuthorityIDs == nil {
			p.AuthorityIDs = []string{}
		}
		t.purposes = append(t.purposes, p)
	}
	return t
}

// Default parses the document compiled into the binary.
func Default() (*Tables, error) {
	return Parse(defaultDocument)
}

// Load reads the document at path, or the embedded default when path is
// empty.
func Load(path string) (*Tables, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference data %s: %w", path, err)
	}
	return Parse(b)
}

// Parse extracts the three tables from data. The returned tables are never
// nil; err is non-nil when any part of the document had to be skipped.
func Parse(data []byte) (*Tables, error) {
	root, perr := buildTree(data)

	t := &Tables{}

	if g := root.find("Authorities"); g != nil {
		for _, n := range g.findAll("Authority") {
			id := n.attr("id")
			if id == "" {
				perr.note("authority without id skipped")
				continue
			}
			t.authorities = append(t.authorities, types.Authority{
				ID:         id,
				Name:       n.field("Name"),
				Department: n.field("Department"),
				Role:       n.field("Role"),
				Phone:      n.field("Phone"),
				Email:      n.field("Email"),
			})
		}
	}

	if g := root.find("ApprovedPurposes"); g != nil {
		for _, n := range g.findAll("Purpose") {
			id := n.attr("id")
			if id == "" {
				perr.note("purpose without id skipped")
				continue
			}
			t.purposes = append(t.purposes, types.Purpose{
				ID:           id,
				Name:         n.field("Name"),
				AuthorityIDs: splitIDs(n.attr("authority_ids")),
			})
		}
	}

	if g := root.find("RegisteredVehicles"); g != nil {
		for _, n := range g.findAll("Vehicle") {
			lp := n.attr("license_plate")
			if lp == "" {
				perr.note("vehicle without license_plate skipped")
				continue
			}
			t.vehicles = append(t.vehicles, types.RegisteredVehicle{
				LicensePlate: lp,
				OwnerName:    n.field("OwnerName"),
				Purpose:      n.field("Purpose"),
			})
		}
	}

	return t, perr.err()
}

func splitIDs(v string) []string {
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (t *Tables) Authorities() []types.Authority {
	return append([]types.Authority(nil), t.authorities...)
}

func (t *Tables) Purposes() []types.Purpose {
	out := make([]types.Purpose, len(t.purposes))
	for i, p := range t.purposes {
		p.AuthorityIDs = append([]string{}, p.AuthorityIDs...)
		out[i] = p
	}
	return out
}

func (t *Tables) Vehicles() []types.RegisteredVehicle {
	return append([]types.RegisteredVehicle(nil), t.vehicles...)
}

// AuthorityByID returns the first authority with the given id.
func (t *Tables) AuthorityByID(id string) (types.Authority, bool) {
	if id == "" {
		return types.Authority{}, false
	}
	for _, a := range t.authorities {
		if a.ID == id {
			return a, true
		}
	}
	return types.Authority{}, false
}

// AuthorityByName matches the name exactly.
func (t *Tables) AuthorityByName(name string) (types.Authority, bool) {
	for _, a := range t.authorities {
		if a.Name == name {
			return a, true
		}
	}
	return types.Authority{}, false
}

// PurposeByName matches case-insensitively. An empty name never matches.
func (t *Tables) PurposeByName(name string) (types.Purpose, bool) {
	if name == "" {
		return types.Purpose{}, false
	}
	for _, p := range t.purposes {
		if strings.EqualFold(p.Name, name) {
			p.AuthorityIDs = append([]string{}, p.AuthorityIDs...)
			return p, true
		}
	}
	return types.Purpose{}, false
}

// VehicleByPlate matches case-insensitively; with duplicate plates in the
// registry the first one wins.
func (t *Tables) VehicleByPlate(plate string) (types.RegisteredVehicle, bool) {
	if plate == "" {
		return types.RegisteredVehicle{}, false
	}
	for _, v := range t.vehicles {
		if strings.EqualFold(v.LicensePlate, plate) {
			return v, true
		}
	}
	return types.RegisteredVehicle{}, false
}
