// Package server exposes channel listings and popular frames as JSON over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fidchannels/backend"
	"fidchannels/internal/channels"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-Id"

// ChannelLister is satisfied by *channels.Aggregator
type ChannelLister interface {
	ListWithMembership(ctx context.Context, fid backend.FID, opts channels.Options) ([]channels.MemberChannel, error)
}

// FrameFinder is satisfied by *frames.Service
type FrameFinder interface {
	Popular(ctx context.Context, fid backend.FID) ([]backend.Frame, error)
}

// Options configures a Server
type Options struct {
	Addr    string
	Metrics http.Handler // served on /metrics when set
	Logger  *zap.Logger
}

// Server is the HTTP front of the aggregation layer
type Server struct {
	lister ChannelLister
	frames FrameFinder
	log    *zap.Logger
	mux    *http.ServeMux
	srv    *http.Server
}

// New creates a Server. frames may be nil, in which case /api/frames is not served.
func New(lister ChannelLister, frames FrameFinder, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		lister: lister,
		frames: frames,
		log:    log,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	s.mux.HandleFunc("GET /api/channels", s.handleChannels)
	if frames != nil {
		s.mux.HandleFunc("GET /api/frames", s.handleFrames)
	}
	if opts.Metrics != nil {
		s.mux.Handle("GET /metrics", opts.Metrics)
	}

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 2 * time.Second,
	}
	return s
}

// Handler returns the routes wrapped with request id and access logging
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

// Serve accepts connections on ln until Shutdown is called
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("http server listening", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits for active requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = backend.GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(backend.WithRequestID(r.Context(), id)))

		s.log.Debug("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

type channelsResponse struct {
	Channels []channels.MemberChannel `json:"channels"`
}

type framesResponse struct {
	Frames []backend.Frame `json:"frames"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fid, err := backend.ParseFID(q.Get("fid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sortBy, err := channels.ParseSort(q.Get("sort"))
	if err != nil {
		s.writeError(w, r, &backend.InvalidParamError{Name: "sort", Err: err})
		return
	}

	list, err := s.lister.ListWithMembership(r.Context(), fid, channels.Options{Sort: sortBy, Name: q.Get("name")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, channelsResponse{Channels: list})
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	fid, err := backend.ParseFID(r.URL.Query().Get("fid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	list, err := s.frames.Popular(r.Context(), fid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, framesResponse{Frames: list})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := backend.HTTPStatus(err)
	id := backend.RequestIDFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed", zap.String("request_id", id), zap.Error(err))
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg, RequestID: id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
