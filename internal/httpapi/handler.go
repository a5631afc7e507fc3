// Package httpapi exposes feeds, user pages, follow queries and mutations over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/metrics"
	"github.com/R3E-Network/ledgerfeed/internal/middleware"
	"github.com/R3E-Network/ledgerfeed/internal/social"
	"github.com/R3E-Network/ledgerfeed/pkg/logger"
)

// maxBodyBytes bounds mutation request bodies.
const maxBodyBytes = 16 << 10

// Options configures the router.
type Options struct {
	Logger      *logger.Logger
	CORSOrigins []string
	// SubmitRPS and SubmitBurst throttle mutation endpoints per client; zero
	// disables throttling.
	SubmitRPS   float64
	SubmitBurst int
}

type handler struct {
	svc *social.Service
	log *logger.Logger
}

// NewRouter returns the API router.
func NewRouter(svc *social.Service, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{svc: svc, log: log}

	r := mux.NewRouter()
	r.Use(middleware.RequestIDMiddleware, middleware.LoggingMiddleware(log), metrics.InstrumentHandler)

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/feed/{viewer}", h.feed).Methods(http.MethodGet)
	api.HandleFunc("/users/{owner}", h.userPage).Methods(http.MethodGet)
	api.HandleFunc("/users/{owner}/following", h.following).Methods(http.MethodGet)
	api.HandleFunc("/users/{owner}/following/{candidate}", h.isFollowing).Methods(http.MethodGet)

	throttle := func(next http.HandlerFunc) http.Handler { return next }
	if opts.SubmitRPS > 0 {
		limiter := middleware.NewRateLimiter(opts.SubmitRPS, opts.SubmitBurst, log.Named("ratelimit"))
		throttle = func(next http.HandlerFunc) http.Handler { return limiter.Handler(next) }
	}
	api.Handle("/users/{owner}/profile", throttle(h.createProfile)).Methods(http.MethodPost)
	api.Handle("/users/{owner}/posts", throttle(h.createPost)).Methods(http.MethodPost)
	api.Handle("/users/{owner}/follows", throttle(h.createFollow)).Methods(http.MethodPost)

	// Preflight requests match no route, so CORS wraps the router itself.
	if len(opts.CORSOrigins) > 0 {
		return middleware.NewCORSMiddleware(opts.CORSOrigins).Handler(r)
	}
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) feed(w http.ResponseWriter, r *http.Request) {
	viewer, err := pathIdentity(r, "viewer")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	items, err := h.svc.FeedFor(r.Context(), viewer, refresh)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"viewer": viewer, "items": items})
}

func (h *handler) userPage(w http.ResponseWriter, r *http.Request) {
	owner, err := pathIdentity(r, "owner")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.svc.Aggregator.BuildUserPage(r.Context(), owner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) following(w http.ResponseWriter, r *http.Request) {
	owner, err := pathIdentity(r, "owner")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	followees, err := h.svc.Follows.ListFollowees(r.Context(), owner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"owner": owner, "following": followees})
}

func (h *handler) isFollowing(w http.ResponseWriter, r *http.Request) {
	owner, err := pathIdentity(r, "owner")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	candidate, err := pathIdentity(r, "candidate")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok, err := h.svc.IsFollowing(r.Context(), owner, candidate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"owner": owner, "candidate": candidate, "following": ok})
}

func (h *handler) createProfile(w http.ResponseWriter, r *http.Request) {
	owner, err := pathIdentity(r, "owner")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var payload struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Mutator.CreateProfile(r.Context(), owner, payload.Username); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"owner": owner, "username": payload.Username})
}

func (h *handler) createPost(w http.ResponseWriter, r *http.Request) {
	owner, err := pathIdentity(r, "owner")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.svc.Mutator.CreatePost(r.Context(), owner, payload.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *handler) createFollow(w http.ResponseWriter, r *http.Request) {
	owner, err := pathIdentity(r, "owner")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var payload struct {
		Target ledger.Identity `json:"target"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Mutator.CreateFollowEdge(r.Context(), owner, payload.Target); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"owner": owner, "target": payload.Target, "following": true})
}

func pathIdentity(r *http.Request, name string) (ledger.Identity, error) {
	id, err := ledger.ParseIdentity(mux.Vars(r)[name])
	if err != nil {
		return ledger.Identity{}, errors.Precondition(fmt.Sprintf("invalid %s identity", name)).WithDetails("reason", err.Error())
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return errors.Precondition("invalid request body").WithDetails("reason", err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Code      errors.Code            `json:"code"`
	Error     string                 `json:"error"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	switch {
	case se != nil:
	case stderrors.Is(err, context.DeadlineExceeded):
		se = &errors.ServiceError{Code: errors.CodeInternal, Message: "deadline exceeded", HTTPStatus: http.StatusGatewayTimeout}
	default:
		se = errors.Internal("internal error", err)
	}

	if se.HTTPStatus >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("request_id", middleware.RequestID(r.Context())).Error("request failed")
	}
	writeJSON(w, se.HTTPStatus, errorBody{
		Code:      se.Code,
		Error:     err.Error(),
		Details:   se.Details,
		RequestID: middleware.RequestID(r.Context()),
	})
}
