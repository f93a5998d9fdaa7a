package types

import "time"

// LookupResult is the transient outcome of resolving a plate and purpose
// against the reference tables. It is never persisted.
type LookupResult struct {
	ID           string             `json:"lookupId,omitempty"`
	LicensePlate string             `json:"licensePlate"`
	PurposeText  string             `json:"purposeText"`
	Vehicle      *RegisteredVehicle `json:"vehicle,omitempty"`
	Purpose      *Purpose           `json:"purpose,omitempty"`
	Authorities  []Authority        `json:"authorities"`

	// SelectedAuthorityID is pre-filled only when exactly one authority
	// resolved; otherwise the operator has to pick.
	SelectedAuthorityID string    `json:"selectedAuthorityId,omitempty"`
	ResolvedAt          time.Time `json:"resolvedAt"`
}
