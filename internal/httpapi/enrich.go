package httpapi

import (
	"io"
	"net/http"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/plate"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/service"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
)

// maxImageBody caps plate-scan uploads.
const maxImageBody = 8 << 20

func (s *Server) handlePlateScan(w http.ResponseWriter, r *http.Request) {
	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "bad_image", "image too large or unreadable")
		return
	}

	p, err := s.enrichment.ScanPlate(r.Context(), image)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plateScanResponse{Plate: p})
}

func (s *Server) handleSuggestPurpose(w http.ResponseWriter, r *http.Request) {
	var req suggestPurposeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	suggestion, err := s.enrichment.SuggestPurpose(r.Context(), req.Purpose)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestPurposeResponse{Suggestion: suggestion})
}

func (s *Server) handleScreeningQuestions(w http.ResponseWriter, r *http.Request) {
	var req screeningRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var lookup *types.LookupResult
	if res, ok := s.lookups.Get(req.LookupID); ok {
		lookup = &res
	}

	questions, err := s.enrichment.ScreeningQuestions(r.Context(), service.ScreeningRequest{
		LicensePlate: plate.Normalize(req.LicensePlate),
		NumPeople:    req.NumPeople,
		PurposeText:  req.Purpose,
		Lookup:       lookup,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, screeningResponse{Questions: questions})
}
