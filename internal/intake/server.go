// Package intake implements the Intake RPC external collaborator
// (spec §6): the single POST /register route that parses a request,
// consults the Existence Oracle, and durably enqueues a Subdomain
// record.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stacks-network/subdomain-registrar/internal/existence"
	"github.com/stacks-network/subdomain-registrar/internal/queuestore"
	"github.com/stacks-network/subdomain-registrar/internal/subdomain"
	"github.com/stacks-network/subdomain-registrar/internal/zonefile"
)

// MaxBodyBytes is the 1 MiB cap from spec §6.
const MaxBodyBytes = 1024 * 1024

// request is the schema-validated decode target for a /register body
// (spec §6's request table), the concrete form of Design Note §9's
// "dynamic JSON parsing becomes a single schema-validated decode".
type request struct {
	Subdomain   string               `json:"subdomain" validate:"required,subdomain_name"`
	DataPubkey  string               `json:"data_pubkey" validate:"required,data_pubkey"`
	URIs        []zonefile.URIRecord `json:"uris" validate:"omitempty,dive"`
	ZonefileStr string               `json:"zonefile_str" validate:"omitempty,max=40960"`
}

var validate = newValidator()

// newValidator registers the two pattern constraints spec §6's request
// table names (subdomain, data_pubkey) against the same regexps the
// Subdomain record itself validates against, so intake and storage
// never disagree on what a legal name looks like.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("subdomain_name", func(fl validator.FieldLevel) bool {
		return subdomain.NamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("data_pubkey", func(fl validator.FieldLevel) bool {
		return subdomain.PubkeyPattern.MatchString(fl.Field().String())
	})
	return v
}

// Server is the HTTP handler for one parent domain's intake route.
type Server struct {
	parentDomain string
	store        *queuestore.Store
	oracle       existence.Oracle
	log          *slog.Logger

	httpServer *http.Server
}

// New builds the chi-routed intake server. addr is "host:port" built
// from api_bind_address/api_bind_port (spec §6).
func New(parentDomain, addr string, store *queuestore.Store, oracle existence.Oracle, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{parentDomain: parentDomain, store: store, oracle: oracle, log: log}

	r := chi.NewRouter()
	r.Post("/register", s.handleRegister)
	r.NotFound(s.handleUnsupported)
	r.MethodNotAllowed(s.handleUnsupported)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start listens and serves until the context is canceled or Stop is
// called, whichever comes first.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("intake: listen on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stop gracefully shuts the server down, per spec §5's cooperative
// cancellation: "the RPC server uses its own shutdown primitive".
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errBody(msg string) map[string]string { return map[string]string{"error": msg} }

func (s *Server) handleUnsupported(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errBody("Unsupported API method"))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > MaxBodyBytes {
		writeJSON(w, http.StatusForbidden, errBody("Content length too long. Request Denied."))
		return
	}

	limited := io.LimitReader(r.Body, MaxBodyBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errBody("Problem parsing request"))
		return
	}
	if len(raw) > MaxBodyBytes {
		writeJSON(w, http.StatusForbidden, errBody("Content length too long. Request Denied."))
		return
	}

	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		writeJSON(w, http.StatusUnauthorized, errBody("Problem parsing request"))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusUnauthorized, errBody("Problem parsing request"))
		return
	}

	zonefileText, err := resolveZonefileText(req)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errBody(err.Error()))
		return
	}

	rec := subdomain.New(req.Subdomain, req.DataPubkey, zonefileText)

	exists, err := s.oracle.Exists(r.Context(), s.parentDomain, rec.Name)
	if err != nil {
		s.log.Error("intake: existence check failed", "parent", s.parentDomain, "subdomain", rec.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, errBody("existence check failed"))
		return
	}
	if exists {
		writeJSON(w, http.StatusForbidden, errBody("Subdomain already exists on this domain"))
		return
	}

	if _, err := s.store.Enqueue(r.Context(), s.parentDomain, rec); err != nil {
		if errors.Is(err, queuestore.ErrDuplicateSubdomain) {
			writeJSON(w, http.StatusForbidden, errBody("Subdomain already exists on this domain"))
			return
		}
		s.log.Error("intake: enqueue failed", "parent", s.parentDomain, "subdomain", rec.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, errBody(err.Error()))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "true",
		"message": "Subdomain registration queued.",
	})
}

// resolveZonefileText implements spec §6: zonefile_str is used
// directly when present; otherwise uris is assembled into zone-file
// text. At least one of the two is required.
func resolveZonefileText(req request) (string, error) {
	if req.ZonefileStr != "" {
		return req.ZonefileStr, nil
	}
	if len(req.URIs) > 0 {
		return zonefile.BuildSubdomainZonefile(req.Subdomain, req.URIs), nil
	}
	return "", errors.New("request lacked either a zonefile_str or a uris entry")
}
