package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"goods-registration/internal/domain"
	"goods-registration/internal/domain/model"
	"goods-registration/internal/domain/ports/adapter"
	"goods-registration/internal/usecase"
)

type stateResponse struct {
	State     *model.RegistrationState `json:"state"`
	NextRoute usecase.Route            `json:"next_route"`
}

func (s *Server) stateJSON(w http.ResponseWriter, state *model.RegistrationState) {
	s.writeJSON(w, http.StatusOK, stateResponse{State: state, NextRoute: s.reg.NextRoute(state)})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Flow      string `json:"flow"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	flow := model.FlowFull
	if req.Flow == string(model.FlowQuick) {
		flow = model.FlowQuick
	}
	state, err := s.reg.Start(r.Context(), req.SessionID, flow)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, stateResponse{State: state, NextRoute: s.reg.NextRoute(state)})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	state, err := s.reg.Current(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.stateJSON(w, state)
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.Abandon(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCaptureBarcode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value    string `json:"value"`
		Type     string `json:"type"`
		Source   string `json:"source"`
		Filename string `json:"filename"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	source := model.SourceCamera
	if req.Source == string(model.SourceUpload) {
		source = model.SourceUpload
	}
	state, err := s.reg.CaptureBarcode(r.Context(), chi.URLParam(r, "sessionID"), req.Value, req.Type, source, req.Filename)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.stateJSON(w, state)
}

func (s *Server) handleBeginManual(w http.ResponseWriter, r *http.Request) {
	state, err := s.reg.BeginManualEntry(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.stateJSON(w, state)
}

func (s *Server) handleManualBarcode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	state, err := s.reg.EnterBarcodeManually(r.Context(), chi.URLParam(r, "sessionID"), req.Value)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.stateJSON(w, state)
}

func (s *Server) handleSkipBarcode(w http.ResponseWriter, r *http.Request) {
	state, err := s.reg.SkipBarcode(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.stateJSON(w, state)
}

func (s *Server) handleRetryBarcode(w http.ResponseWriter, r *http.Request) {
	state, err := s.reg.RetryBarcode(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.stateJSON(w, state)
}

func (s *Server) handleCapturePhoto(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content     string `json:"content"`    // display data URL
		RawBase64   string `json:"raw_base64"` // reduced upload encoding
		ContentType string `json:"content_type"`
		Filename    string `json:"filename"`
		PublicURL   string `json:"public_url"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Content == "" && req.RawBase64 == "" {
		s.writeError(w, http.StatusBadRequest, "photo payload is empty")
		return
	}

	payload := model.ImagePayload{
		DisplayContent: req.Content,
		RawBase64:      req.RawBase64,
		ContentType:    req.ContentType,
		Filename:       req.Filename,
		PublicURL:      req.PublicURL,
	}
	// Stage the original bytes so the session document stays small.
	if data := originalBytes(req.Content, req.RawBase64); len(data) > 0 {
		path, err := s.stage.Stage(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("photo staging failed, keeping inline payload only")
		} else {
			payload.TempPath = path
		}
	}

	state, err := s.reg.CapturePhoto(r.Context(), chi.URLParam(r, "sessionID"), payload)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.stateJSON(w, state)
}

func (s *Server) handleSkipPhoto(w http.ResponseWriter, r *http.Request) {
	state, err := s.reg.SkipPhoto(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.stateJSON(w, state)
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	state, err := s.reg.ProcessEnrichment(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.stateJSON(w, state)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID         string `json:"member_id"`
		ProductName      string `json:"product_name"`
		ProductGroupName string `json:"product_group_name"`
		WorksSeriesName  string `json:"works_series_name"`
		Title            string `json:"title"`
		CharacterName    string `json:"character_name"`
		PurchasePrice    *int   `json:"purchase_price"`
		PurchaseLocation string `json:"purchase_location"`
		Memo             string `json:"memo"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.reg.Commit(r.Context(), chi.URLParam(r, "sessionID"), adapter.ProductFields{
		MemberID:         req.MemberID,
		ProductName:      req.ProductName,
		ProductGroupName: req.ProductGroupName,
		WorksSeriesName:  req.WorksSeriesName,
		Title:            req.Title,
		CharacterName:    req.CharacterName,
		PurchasePrice:    req.PurchasePrice,
		PurchaseLocation: req.PurchaseLocation,
		Memo:             req.Memo,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// originalBytes recovers raw photo bytes from whichever encoding the client
// sent, for temp-file staging.
func originalBytes(content, rawBase64 string) []byte {
	payload := rawBase64
	if payload == "" {
		if _, after, ok := strings.Cut(content, ","); ok && strings.HasPrefix(content, "data:") {
			payload = after
		}
	}
	if payload == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil
	}
	return data
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "registration session not found")
	case errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}
