// Package processorstub hosts a deterministic HTTP fake of the video
// processing service for handler and relay tests. The stub records every
// /upload invocation, including the decoded multipart fields, and serves a
// scriptable response so tests can assert both the forwarded request and the
// relayed reply.
package processorstub

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Options describes how the stub should answer /upload requests.
type Options struct {
	// StatusCode defaults to 200.
	StatusCode int

	// ResponseBody is served verbatim. Defaults to an empty JSON object.
	ResponseBody string

	// ContentType defaults to application/json.
	ContentType string

	// Delay is applied before answering, for timeout tests.
	Delay time.Duration
}

// Invocation is one recorded /upload request.
type Invocation struct {
	Action        string
	YoutubeLink   string
	VideoFilename string
	VideoContent  []byte
	Timestamp     time.Time
}

// Server wraps a httptest.Server that mimics the processing service.
type Server struct {
	server *httptest.Server
	opts   Options

	mu          sync.Mutex
	invocations []Invocation
}

// Start spins up a new processing service stub.
func Start(opts Options) *Server {
	if opts.StatusCode == 0 {
		opts.StatusCode = http.StatusOK
	}
	if opts.ResponseBody == "" {
		opts.ResponseBody = "{}"
	}
	if opts.ContentType == "" {
		opts.ContentType = "application/json"
	}
	stub := &Server{opts: opts}
	stub.server = httptest.NewServer(http.HandlerFunc(stub.handle))
	return stub
}

// Close shuts down the underlying HTTP server.
func (s *Server) Close() {
	if s.server != nil {
		s.server.Close()
	}
}

// BaseURL returns the stub's HTTP base URL.
func (s *Server) BaseURL() string {
	return s.server.URL
}

// Invocations returns a copy of all recorded requests in order.
func (s *Server) Invocations() []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Invocation, len(s.invocations))
	copy(out, s.invocations)
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/upload" {
		http.Error(w, "unexpected request", http.StatusNotFound)
		return
	}
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "bad multipart body", http.StatusBadRequest)
		return
	}

	invocation := Invocation{
		Action:      r.FormValue("action"),
		YoutubeLink: r.FormValue("youtubeLink"),
		Timestamp:   time.Now(),
	}
	if file, header, err := r.FormFile("video"); err == nil {
		invocation.VideoFilename = header.Filename
		invocation.VideoContent, _ = io.ReadAll(file)
		_ = file.Close()
	}

	s.mu.Lock()
	s.invocations = append(s.invocations, invocation)
	s.mu.Unlock()

	if s.opts.Delay > 0 {
		time.Sleep(s.opts.Delay)
	}
	w.Header().Set("Content-Type", s.opts.ContentType)
	w.WriteHeader(s.opts.StatusCode)
	_, _ = io.WriteString(w, s.opts.ResponseBody)
}
