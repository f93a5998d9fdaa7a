package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/plate"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/refdata"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
	"github.com/BrandonDHaskell/gatelog/internal/metrics"
)

// PlateRecognizer reads a license plate from a camera frame.
type PlateRecognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// TextGenerator completes a free-text prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type EnrichmentDependencies struct {
	Recognizer PlateRecognizer
	Generator  TextGenerator
	Tables     *refdata.Tables
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Timeout    time.Duration
}

// EnrichmentService wraps the optional external collaborators. It only
// returns suggestions; the ledger and the lookup desk are never touched.
type EnrichmentService struct {
	recognizer PlateRecognizer
	generator  TextGenerator
	tables     *refdata.Tables
	metrics    *metrics.Metrics
	logger     *zap.Logger
	timeout    time.Duration
}

func NewEnrichmentService(d EnrichmentDependencies) *EnrichmentService {
	s := &EnrichmentService{
		recognizer: d.Recognizer,
		generator:  d.Generator,
		tables:     d.Tables,
		metrics:    d.Metrics,
		logger:     d.Logger,
		timeout:    d.Timeout,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.timeout <= 0 {
		s.timeout = 20 * time.Second
	}
	return s
}

// ScanPlate returns the normalized plate read from image.
func (s *EnrichmentService) ScanPlate(ctx context.Context, image []byte) (string, error) {
	if s.recognizer == nil {
		return "", ErrEnrichmentUnavailable
	}
	if len(image) == 0 {
		return "", fmt.Errorf("%w: no image supplied", ErrInputRequired)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.recognizer.Recognize(ctx, image)
	if err != nil {
		return "", s.fail("plate_scan", fmt.Errorf("%w: plate not recognized: %v", ErrEnrichmentFailure, err))
	}
	p := plate.Normalize(raw)
	if !plate.IsValid(p) {
		return "", s.fail("plate_scan", fmt.Errorf("%w: invalid format: %q", ErrEnrichmentFailure, raw))
	}
	return p, nil
}

// SuggestPurpose asks for a more specific wording of purposeText. A leading
// "Purpose: " in the reply is dropped.
func (s *EnrichmentService) SuggestPurpose(ctx context.Context, purposeText string) (string, error) {
	if s.generator == nil {
		return "", ErrEnrichmentUnavailable
	}
	purposeText = strings.TrimSpace(purposeText)
	if purposeText == "" {
		return "", fmt.Errorf("%w: enter a purpose to get suggestions", ErrInputRequired)
	}

	reply, err := s.generate(ctx, "purpose", purposePrompt(purposeText, s.authorityCatalog()))
	if err != nil {
		return "", err
	}
	reply = strings.TrimPrefix(reply, "Purpose: ")
	return strings.TrimSpace(reply), nil
}

type ScreeningRequest struct {
	LicensePlate string
	NumPeople    int
	PurposeText  string
	Lookup       *types.LookupResult
}

// ScreeningQuestions suggests a few questions for the operator to ask the
// visitor, as a bulleted list.
func (s *EnrichmentService) ScreeningQuestions(ctx context.Context, req ScreeningRequest) (string, error) {
	if s.generator == nil {
		return "", ErrEnrichmentUnavailable
	}
	if req.LicensePlate == "" && req.PurposeText == "" && req.NumPeople == 0 {
		return "", fmt.Errorf("%w: provide license plate, purpose, or number of people", ErrInputRequired)
	}

	reply, err := s.generate(ctx, "screening", screeningPrompt(req))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (s *EnrichmentService) generate(ctx context.Context, kind, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", s.fail(kind, fmt.Errorf("%w: %v", ErrEnrichmentFailure, err))
	}
	return reply, nil
}

func (s *EnrichmentService) fail(kind string, err error) error {
	s.metrics.IncrementEnrichmentFailure(kind)
	s.logger.Warn("enrichment failed", zap.String("kind", kind), zap.Error(err))
	return err
}

func (s *EnrichmentService) authorityCatalog() string {
	if s.tables == nil {
		return ""
	}
	auths := s.tables.Authorities()
	parts := make([]string, 0, len(auths))
	for _, a := range auths {
		parts = append(parts, fmt.Sprintf("%s (%s, Role: %s)", a.Name, a.Department, a.Role))
	}
	return strings.Join(parts, "; ")
}

func purposePrompt(purposeText, authorities string) string {
	return fmt.Sprintf("Given the purpose of entry '%s' for a security gate, and the following known authorities: %s. "+
		"Suggest a more detailed or specific purpose. If it matches a known purpose (e.g., 'Meeting with Director'), elaborate on it. "+
		"If not, suggest a general but relevant elaboration. Respond concisely, ideally in one sentence, starting with \"Purpose:\".",
		purposeText, authorities)
}

func screeningPrompt(req ScreeningRequest) string {
	vehicleInfo := "not pre-registered"
	authorityInfo := "no specific authority identified"
	if req.Lookup != nil {
		if v := req.Lookup.Vehicle; v != nil {
			vehicleInfo = fmt.Sprintf("registered as %s by owner %s", v.Purpose, v.OwnerName)
		}
		if len(req.Lookup.Authorities) > 0 {
			names := make([]string, len(req.Lookup.Authorities))
			for i, a := range req.Lookup.Authorities {
				names[i] = a.Name
			}
			authorityInfo = "approved by " + strings.Join(names, " and ")
		}
	}

	return fmt.Sprintf("For a vehicle with license plate '%s' entering with '%s' people for the purpose of '%s', "+
		"and which is %s and %s, suggest 2-3 concise questions security personnel should ask the visitor. "+
		"Focus on verifying identity, confirming purpose, or security protocols. "+
		"Respond as a bulleted list, each question prefixed with a bullet point.",
		orNA(req.LicensePlate), strconv.Itoa(req.NumPeople), orNA(req.PurposeText), vehicleInfo, authorityInfo)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
