package service

import (
	"errors"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/store"
)

var (
	ErrInputRequired          = errors.New("input required")
	ErrInvalidFormat          = errors.New("license plate must be in the format AA00AA0000 (e.g. TG01AB1234)")
	ErrApprovalRequiresLookup = errors.New("perform a lookup that identifies an authority before approving entry")
	ErrAuthorityNotSelected   = errors.New("select the authority who approved the entry")
	ErrInvalidNumPeople       = errors.New("number of people must be at least 1")
	ErrExportEmpty            = errors.New("no history to export")
	ErrEnrichmentFailure      = errors.New("enrichment failed")
	ErrEnrichmentUnavailable  = errors.New("enrichment is not configured")
	ErrDecisionNotFound       = errors.New("decision not found or already resolved")
	ErrInvalidAction          = errors.New("unsupported decision action")
)

// ErrNotFound is re-exported so callers of the service don't need to
// import the store package to match it.
var ErrNotFound = store.ErrNotFound
