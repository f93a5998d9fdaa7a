package httpapi

import (
	"encoding/json"
	"net/http"
)

// maxRequestBody caps JSON request bodies. The largest (a screening
// request with a long purpose) is well under 1 KiB.
const maxRequestBody = 16 << 10

// ── Requests ─────────────────────────────────────────────────────────────────

type validatePlateRequest struct {
	Plate string `json:"plate"`
}

type lookupRequest struct {
	LicensePlate string `json:"license_plate"`
	Purpose      string `json:"purpose"`
}

type approveRequest struct {
	LookupID    string `json:"lookup_id"`
	NumPeople   *int   `json:"num_people"` // nil = 1
	AuthorityID string `json:"authority_id"`
}

type resolveDecisionRequest struct {
	Confirmed bool `json:"confirmed"`
}

type suggestPurposeRequest struct {
	Purpose string `json:"purpose"`
}

type screeningRequest struct {
	LicensePlate string `json:"license_plate"`
	NumPeople    int    `json:"num_people"`
	Purpose      string `json:"purpose"`
	LookupID     string `json:"lookup_id"`
}

// ── Responses ────────────────────────────────────────────────────────────────

type validatePlateResponse struct {
	Plate string `json:"plate"`
	Valid bool   `json:"valid"`
}

type plateScanResponse struct {
	Plate string `json:"plate"`
}

type suggestPurposeResponse struct {
	Suggestion string `json:"suggestion"`
}

type screeningResponse struct {
	Questions string `json:"questions"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// decodeJSON reads a single JSON object into v. On failure it writes a
// 400 and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}
