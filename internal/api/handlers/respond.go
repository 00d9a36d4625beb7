package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/demandcast/backend/internal/contracts"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondErr maps the error taxonomy to a status code
func respondErr(w http.ResponseWriter, err error) {
	var lerr *contracts.ModelLoadError
	switch {
	case contracts.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &lerr), errors.Is(err, contracts.ErrModelNotLoaded):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
