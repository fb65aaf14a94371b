package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/protocol"
	"github.com/dmitrijs2005/contactsync/internal/server/services"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, protocol.ErrorResponse{Error: message})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request payload", common.ErrInvalidRequest)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok", Clients: s.events.ClientCount()})
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	list, err := s.contacts.ListVisible(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.RecordsFrom(list))
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	list, err := s.contacts.ListPending(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.RecordsFrom(list))
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateContactRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	c, err := s.contacts.Create(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, protocol.RecordFrom(c))
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.contacts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.RecordFrom(c))
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req protocol.UpdateContactRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	c, outcome, err := s.contacts.Update(r.Context(), id, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if outcome == services.UpdateCreated {
		status = http.StatusCreated
	}
	respondJSON(w, status, protocol.RecordFrom(c))
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := s.contacts.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	var req protocol.AckRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	kind, err := protocol.ParseAckKind(req.Type)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.contacts.Ack(r.Context(), mux.Vars(r)["id"], kind); err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		respondError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}
	res, err := s.exporter.Export(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
