package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type APIError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func writeHTTPError(rw http.ResponseWriter, code int, apiErr APIError) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	if err := json.NewEncoder(rw).Encode(apiErr); err != nil {
		logger.With(zap.Error(errors.Wrap(err, "encoding error response"))).Error("Failed to write HTTP error")
	}
}

func writeHTTPData(rw http.ResponseWriter, code int, data any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	if err := json.NewEncoder(rw).Encode(data); err != nil {
		logger.With(zap.Error(errors.Wrap(err, "encoding response"))).Error("Failed to write HTTP response")
	}
}
