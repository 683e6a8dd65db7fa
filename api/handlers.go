package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"s4/config"
	"s4/storage"
)

// sqlRequest is the body of POST /api/sql.
type sqlRequest struct {
	SQL string `json:"sql"`
}

// sqlResponse wraps the result rows of a successful execution.
type sqlResponse struct {
	SQLResponse []storage.RowRecord `json:"sqlResponse"`
}

// errorResponse is the uniform error body for every failure category.
type errorResponse struct {
	Error string `json:"error"`
}

// identityResponse is returned by the identity/liveness check.
type identityResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// healthResponse is returned by the unauthenticated health endpoint.
type healthResponse struct {
	Status string `json:"status"`
}

// respondJSON writes a JSON response with proper error handling.
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int, logger *zap.SugaredLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response already started, can only log.
		logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

// writeError logs the failure and sends the uniform error body.
func writeError(w http.ResponseWriter, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	if err != nil {
		logger.Errorw(message, "error", err, "status_code", statusCode)
	}
	respondJSON(w, errorResponse{Error: message}, statusCode, logger)
}

// verifyConnection handles GET /. It echoes basic instance identity and
// doubles as the liveness check; the secret-key gate has already run.
func (a *API) verifyConnection(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, identityResponse{
		Message: "Welcome to s4! The server is running!",
		Version: config.Version,
	}, http.StatusOK, a.logger)
}

// executeSQL handles POST /api/sql. Validation happens before any store
// access; the statement then runs on its own request-scoped connection
// and either every row comes back or the driver's error text does.
func (a *API) executeSQL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, a.config.API.MaxBodyBytes)

	var req sqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.", err, a.logger)
		return
	}

	if strings.TrimSpace(req.SQL) == "" {
		respondJSON(w, errorResponse{Error: "No SQL query provided."}, http.StatusBadRequest, a.logger)
		return
	}

	a.logger.Debugw("Executing SQL", "request_id", requestID(ctx))

	records, err := a.store.Query(ctx, req.SQL)
	if err != nil {
		// The store's native error text is the contract: it goes back
		// verbatim, and the statement is never retried.
		a.logger.Errorw("SQL execution failed",
			"error", err,
			"request_id", requestID(ctx))
		respondJSON(w, errorResponse{Error: err.Error()}, http.StatusInternalServerError, a.logger)
		return
	}

	respondJSON(w, sqlResponse{SQLResponse: records}, http.StatusOK, a.logger)
}

// healthCheck handles GET /health. It pings the store but exposes no
// instance identity and requires no credential.
func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		a.logger.Errorw("Health check failed", "error", err)
		respondJSON(w, healthResponse{Status: "unavailable"}, http.StatusServiceUnavailable, a.logger)
		return
	}
	respondJSON(w, healthResponse{Status: "ok"}, http.StatusOK, a.logger)
}
