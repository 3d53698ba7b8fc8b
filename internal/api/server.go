package api

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	apperrors "regdesk/internal/errors"
	"regdesk/internal/limiter"
	"regdesk/internal/registration"
)

const maxBodyBytes = 64 << 10

// Registrar is the registration workflow the API exposes
type Registrar interface {
	Submit(username, password, email string) (string, error)
	Pending() ([]registration.Request, error)
	Get(id string) (*registration.Request, error)
	Approve(id, adminID string) (*registration.Request, string, error)
	Reject(id, adminID string) (*registration.Request, error)
}

// AdminTokens resolves a bearer token to an admin account ID
type AdminTokens interface {
	Lookup(token string) (string, bool)
}

// Server handles HTTP requests
type Server struct {
	registrar Registrar
	admins    AdminTokens
	limiter   *limiter.KeyedLimiter
	events    http.Handler
	validate  *validator.Validate
	logger    *slog.Logger
	timeout   time.Duration
}

// Options configure optional parts of the server
type Options struct {
	// Limiter throttles submissions per client; nil disables throttling
	Limiter *limiter.KeyedLimiter
	// Events serves the live feed; nil leaves the route unmounted
	Events http.Handler
	// Timeout bounds non-streaming requests
	Timeout time.Duration
}

// NewServer creates a new API server
func NewServer(registrar Registrar, admins AdminTokens, logger *slog.Logger, opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Server{
		registrar: registrar,
		admins:    admins,
		limiter:   opts.Limiter,
		events:    opts.Events,
		validate:  newValidator(),
		logger:    logger,
		timeout:   opts.Timeout,
	}
}

// newValidator registers a utf8 tag for fields decoded from form bodies,
// which may carry arbitrary bytes.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("utf8", func(fl validator.FieldLevel) bool {
		return utf8.ValidString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1/registrations", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.timeout))
			r.With(s.rateLimit).Post("/", s.submit)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/pending", s.listPending)
				r.Get("/{id:[a-z0-9-]+}", s.get)
				r.Post("/{id:[a-z0-9-]+}/approve", s.approve)
				r.Post("/{id:[a-z0-9-]+}/reject", s.reject)
			})
		})

		// Websocket connections outlive the request timeout
		if s.events != nil {
			r.With(s.requireAdmin).Get("/events", s.events.ServeHTTP)
		}
	})

	// Health check
	r.Get("/health", s.health)

	return r
}

// registerInput is accepted as JSON or as a form
type registerInput struct {
	Username string `json:"username" validate:"required,utf8,min=3,max=50"`
	Password string `json:"password" validate:"required,utf8,min=8,max=50"`
	Email    string `json:"email" validate:"required,utf8,email"`
}

func decodeRegister(w http.ResponseWriter, r *http.Request) (registerInput, error) {
	var in registerInput
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, err
		}
		return in, nil
	}

	if err := r.ParseForm(); err != nil {
		return in, err
	}
	in.Username = r.PostForm.Get("username")
	in.Password = r.PostForm.Get("password")
	in.Email = r.PostForm.Get("email")
	return in, nil
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	in, err := decodeRegister(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.CodeValidation, "Malformed request body")
		return
	}

	if err := s.validate.Struct(in); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.CodeValidation, validationMessage(err))
		return
	}

	id, err := s.registrar.Submit(in.Username, in.Password, in.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": id})
}

// requestView never exposes the stored password
type requestView struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Status      string  `json:"status,omitempty"`
	CreateDate  int64   `json:"create_date"`
	ProcessDate *int64  `json:"process_date,omitempty"`
	ProcessedBy *string `json:"processed_by,omitempty"`
}

func newRequestView(req *registration.Request, full bool) requestView {
	v := requestView{
		ID:         req.ID,
		Username:   req.Username,
		Email:      req.Email,
		CreateDate: req.CreateDate.UnixMilli(),
	}
	if full {
		v.Status = string(req.Status)
		if req.ProcessDate != nil {
			ms := req.ProcessDate.UnixMilli()
			v.ProcessDate = &ms
		}
		v.ProcessedBy = req.ProcessedBy
	}
	return v
}

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.registrar.Pending()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	views := make([]requestView, len(pending))
	for i := range pending {
		views[i] = newRequestView(&pending[i], false)
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": views})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	req, err := s.registrar.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRequestView(req, true))
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	_, accountID, err := s.registrar.Approve(chi.URLParam(r, "id"), adminID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "user_id": accountID})
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request) {
	if _, err := s.registrar.Reject(chi.URLParam(r, "id"), adminID(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if _, err := s.registrar.Pending(); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
