package httpapi

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, map[string]any{
		"ok":          true,
		"server_time": s.now().UTC().Format(time.RFC3339Nano),
	})
}

// ── Identities ───────────────────────────────────────────────────────────────

type addIdentityRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type addIdentityResponse struct {
	Inserted bool   `json:"inserted"`
	ID       string `json:"id"`
}

func (s *Server) handleAddIdentity(w http.ResponseWriter, r *http.Request) {
	var req addIdentityRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}

	inserted, err := s.store.AddIdentity(r.Context(), strings.TrimSpace(req.ID), req.Name)
	if err != nil {
		s.failErr(w, r, err)
		return
	}

	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	s.respond(w, r, status, addIdentityResponse{Inserted: inserted, ID: strings.TrimSpace(req.ID)})
}

func (s *Server) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	idents, err := s.store.ListIdentities(r.Context())
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"identities": idents})
}

func (s *Server) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ident, ok, err := s.store.GetIdentityByID(r.Context(), id)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, http.StatusNotFound, "identity_not_found", "no identity with id "+id)
		return
	}
	s.respond(w, r, http.StatusOK, ident)
}

// ── Attendance ───────────────────────────────────────────────────────────────

func (s *Server) handleListAttendance(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "today" {
		date = types.DateOf(s.now())
	}
	recs, err := s.store.ListAttendance(r.Context(), date)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"date": date, "records": recs})
}

// handleStats reports counts for today, or for ?date=YYYY-MM-DD.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" || date == "today" {
		date = types.DateOf(s.now())
	}
	st, err := service.ReadStats(r.Context(), s.store, date)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, st)
}

type recognitionRequest struct {
	CandidateID string  `json:"candidate_id"`
	Distance    float64 `json:"distance"`
	// CropJPEG is an optional base64 JPEG kept when the face is unknown.
	CropJPEG string `json:"crop_jpeg,omitempty"`
}

func (s *Server) handleRecognition(w http.ResponseWriter, r *http.Request) {
	var req recognitionRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}

	var crop image.Image
	if req.CropJPEG != "" {
		raw, err := base64.StdEncoding.DecodeString(req.CropJPEG)
		if err == nil {
			crop, err = jpeg.Decode(bytes.NewReader(raw))
		}
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, "bad_crop", "crop_jpeg must be base64 JPEG")
			return
		}
	}

	s.gate.BeginScope(types.DateOf(s.now()))
	adm, err := s.gate.Admit(r.Context(), types.Recognition{
		CandidateID: strings.TrimSpace(req.CandidateID),
		Distance:    req.Distance,
	}, crop)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, adm)
}

// ── Admin ────────────────────────────────────────────────────────────────────

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type passwordRequest struct {
	Username        string `json:"username"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}
	if err := s.admin.Login(r.Context(), req.Username, req.Password); err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"ok": true, "username": req.Username})
}

func (s *Server) handleAdminPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}
	err := s.admin.ChangePassword(r.Context(), req.Username, req.CurrentPassword, req.NewPassword)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"ok": true})
}

// ── Sessions ─────────────────────────────────────────────────────────────────

type startSessionRequest struct {
	Mode string `json:"mode,omitempty"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.fail(w, r, http.StatusServiceUnavailable, "no_scanner", "no recognition sidecar configured")
		return
	}

	var req startSessionRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.fail(w, r, http.StatusBadRequest, "bad_body", "invalid request body")
			return
		}
	}
	mode := service.ModeSession
	if req.Mode != "" {
		mode = service.Mode(req.Mode)
	}

	st, err := s.monitor.Start(r.Context(), mode)
	if err != nil {
		if errors.Is(err, service.ErrMonitorRunning) {
			s.respond(w, r, http.StatusConflict, map[string]any{
				"error":   "monitor_running",
				"message": err.Error(),
				"status":  st,
			})
			return
		}
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, st)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.fail(w, r, http.StatusServiceUnavailable, "no_scanner", "no recognition sidecar configured")
		return
	}
	s.respond(w, r, http.StatusOK, s.monitor.Status())
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.fail(w, r, http.StatusServiceUnavailable, "no_scanner", "no recognition sidecar configured")
		return
	}
	s.monitor.Stop()
	s.respond(w, r, http.StatusOK, s.monitor.Status())
}
