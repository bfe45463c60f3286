package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respond writes v as JSON, or as a protobuf Struct when the client asked
// for protobuf. v must encode to a JSON object.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsProtobuf(r) {
		st, err := toStruct(v)
		if err != nil {
			s.logger.Error("protobuf response", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{"internal_error", "unexpected server error"})
			return
		}
		writeProto(w, status, st)
		return
	}
	writeJSON(w, status, v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	s.respond(w, r, status, errorBody{Error: code, Message: msg})
}

// failErr maps service and store errors to HTTP statuses.
func (s *Server) failErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidIdentityID):
		s.fail(w, r, http.StatusBadRequest, "invalid_identity_id", err.Error())
	case errors.Is(err, types.ErrInvalidName):
		s.fail(w, r, http.StatusBadRequest, "invalid_name", err.Error())
	case errors.Is(err, types.ErrInvalidDate):
		s.fail(w, r, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, types.ErrInvalidPassword):
		s.fail(w, r, http.StatusBadRequest, "invalid_password", err.Error())
	case errors.Is(err, service.ErrInvalidMode):
		s.fail(w, r, http.StatusBadRequest, "invalid_mode", err.Error())
	case errors.Is(err, types.ErrIdentityNotFound):
		s.fail(w, r, http.StatusNotFound, "identity_not_found", err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		s.fail(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, service.ErrMonitorRunning):
		s.fail(w, r, http.StatusConflict, "monitor_running", err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.fail(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
