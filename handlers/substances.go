package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/giygas/cycletracker/aggregation"
	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/logging"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ListSubstances returns the catalog, filtered by ?q= (accent and case insensitive)
func (h *HTTPHandlerImpl) ListSubstances(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		RespondWithJSON(w, http.StatusOK, h.catalog.All())
		return
	}

	if err := h.validator.ValidateInput(query); err != nil {
		respondWithDomainError(w, err)
		return
	}

	// Always return 200 with results array (empty if no matches)
	RespondWithJSON(w, http.StatusOK, h.catalog.Search(query))
}

type addSubstanceRequest struct {
	Name              string                `json:"name"`
	Type              string                `json:"type"`
	HalfLife          float64               `json:"halfLife"`
	Concentration     float64               `json:"concentration"`
	RecommendedDosage *entities.DosageRange `json:"recommendedDosage"`
	Notes             string                `json:"notes"`
}

// AddSubstance registers a custom substance
func (h *HTTPHandlerImpl) AddSubstance(w http.ResponseWriter, r *http.Request) {
	var req addSubstanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithDomainError(w, err)
		return
	}

	if err := h.validator.ValidateInput(req.Name); err != nil {
		respondWithDomainError(w, fmt.Errorf("name: %w", err))
		return
	}
	if err := h.validator.ValidateNotes(req.Notes); err != nil {
		respondWithDomainError(w, err)
		return
	}

	s, err := entities.NewSubstance(req.Name, entities.ParseCategory(req.Type), req.HalfLife, req.Concentration, req.RecommendedDosage, req.Notes)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if err := h.catalog.Add(s); err != nil {
		respondWithDomainError(w, err)
		return
	}

	logging.Info("Substance added", "substance_id", s.ID.String(), "name", s.Name)
	RespondWithJSON(w, http.StatusCreated, s)
}

// DosageCheckResponse tells whether a dose sits inside the recommended range
type DosageCheckResponse struct {
	SubstanceID       uuid.UUID             `json:"substanceId"`
	Dose              float64               `json:"dose"`
	Valid             bool                  `json:"valid"`
	RecommendedDosage *entities.DosageRange `json:"recommendedDosage,omitempty"`
}

// ValidateDosage checks ?dose= against the recommended range of the substance {id}
func (h *HTTPHandlerImpl) ValidateDosage(w http.ResponseWriter, r *http.Request) {
	id, err := h.validator.ValidateUUID(chi.URLParam(r, "id"))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	substance, err := h.catalog.Get(id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	dose, err := h.validator.ValidateDose(r.URL.Query().Get("dose"))
	if err != nil {
		respondWithDomainError(w, fmt.Errorf("dose: %w", err))
		return
	}

	RespondWithJSON(w, http.StatusOK, DosageCheckResponse{
		SubstanceID:       substance.ID,
		Dose:              dose,
		Valid:             aggregation.ValidateDosage(dose, substance),
		RecommendedDosage: substance.RecommendedDosage,
	})
}

// GetSubstance returns one catalog entry
func (h *HTTPHandlerImpl) GetSubstance(w http.ResponseWriter, r *http.Request) {
	id, err := h.validator.ValidateUUID(chi.URLParam(r, "id"))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	substance, err := h.catalog.Get(id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, substance)
}
