// Package httpapi exposes the reconciliation service over REST and mounts the
// event channel on the same listener.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/contactsync/internal/logging"
	"github.com/dmitrijs2005/contactsync/internal/models"
	"github.com/dmitrijs2005/contactsync/internal/protocol"
	"github.com/dmitrijs2005/contactsync/internal/server/services"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 5 * time.Second

// ContactService is the part of services.ContactService the handlers use.
type ContactService interface {
	Create(ctx context.Context, req protocol.CreateContactRequest) (*models.Contact, error)
	Update(ctx context.Context, id string, req protocol.UpdateContactRequest) (*models.Contact, services.UpdateOutcome, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Contact, error)
	Ack(ctx context.Context, id string, kind protocol.AckKind) error
	ListPending(ctx context.Context) ([]*models.Contact, error)
	ListVisible(ctx context.Context) ([]*models.Contact, error)
}

// EventHub serves the event channel and reports how many clients hold it.
type EventHub interface {
	http.Handler
	ClientCount() int
}

// Exporter writes a snapshot of the visible list.
type Exporter interface {
	Export(ctx context.Context) (*protocol.ExportResponse, error)
}

type Server struct {
	address  string
	contacts ContactService
	events   EventHub
	exporter Exporter
	logger   logging.Logger
}

// NewServer wires the handlers. exporter may be nil, in which case the export
// endpoint answers 503.
func NewServer(address string, contacts ContactService, events EventHub, exporter Exporter, logger logging.Logger) *Server {
	return &Server{
		address:  address,
		contacts: contacts,
		events:   events,
		exporter: exporter,
		logger:   logger.With("module", "http_server"),
	}
}

// Router builds the route table. /contacts/pending and /contacts/export are
// registered ahead of the {id} routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/contacts", s.handleListContacts).Methods(http.MethodGet)
	r.HandleFunc("/contacts", s.handleCreateContact).Methods(http.MethodPost)
	r.HandleFunc("/contacts/pending", s.handleListPending).Methods(http.MethodGet)
	r.HandleFunc("/contacts/export", s.handleExport).Methods(http.MethodPost)
	r.HandleFunc("/contacts/{id}", s.handleGetContact).Methods(http.MethodGet)
	r.HandleFunc("/contacts/{id}", s.handleUpdateContact).Methods(http.MethodPatch)
	r.HandleFunc("/contacts/{id}", s.handleDeleteContact).Methods(http.MethodDelete)
	r.HandleFunc("/contacts/{id}/ack", s.handleAck).Methods(http.MethodPost)

	r.Handle("/ws", s.events)
	r.Handle("/", s.events)

	return r
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(shutdownCtx, "graceful shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
