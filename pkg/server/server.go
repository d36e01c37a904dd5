// classifier/pkg/server/server.go

// Package server exposes the classifier over HTTP. Records arrive as query
// parameters, JSON objects or url-encoded forms and the matching category
// names are returned as {"categories": [...]}.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rgehrsitz/classifier/pkg/compiler"
	"rgehrsitz/classifier/pkg/logging"
	"rgehrsitz/classifier/pkg/runtime"
	"rgehrsitz/classifier/pkg/validator"
)

// Rules is the part of the rule store the server needs.
type Rules interface {
	Snapshot() *compiler.RuleSet
	Reload(ctx context.Context) error
}

// Options configures optional routes. A nil Gatherer disables /metrics and
// a nil Dashboard disables /events.
type Options struct {
	Gatherer  prometheus.Gatherer
	Dashboard *Dashboard
	Source    string
}

type Server struct {
	engine    *runtime.Engine
	rules     Rules
	dashboard *Dashboard
	source    string
	router    *gin.Engine
}

// Status describes the active rule set.
type Status struct {
	LoadedAt    time.Time             `json:"loaded_at"`
	Version     string                `json:"version"`
	Source      string                `json:"source,omitempty"`
	Categories  []string              `json:"categories"`
	Fields      []string              `json:"fields"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics"`
	Warnings    []validator.Finding   `json:"warnings"`
}

// classification is the response body of every classify request.
type classification struct {
	Categories []string `json:"categories"`
}

var formTemplate = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html>
<head><title>Classifier</title></head>
<body>
<form method="GET" action="{{.Action}}">
{{range .Fields}}{{.}}<br>
<input type="text" class="featureField" name="{{.}}"><br>
{{end}}<input type="submit">
</form>
</body>
</html>
`))

func New(engine *runtime.Engine, rules Rules, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.SetHTMLTemplate(formTemplate)

	s := &Server{
		engine:    engine,
		rules:     rules,
		dashboard: opts.Dashboard,
		source:    opts.Source,
		router:    router,
	}

	router.GET("/", s.handleGet)
	router.POST("/", s.handlePost)
	router.GET("/fields", s.handleFields)
	router.GET("/status", s.handleStatus)
	router.POST("/reload", s.handleReload)
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "Server is running")
	})
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	if s.dashboard != nil {
		router.GET("/events", s.dashboard.handleWebSocket)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logger.Info().Str("addr", addr).Msg("Classifier service listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logging.Logger.Info().Msg("Shutting down classifier service")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}

// StatusOf summarizes rs. Empty lists are rendered as [] rather than null.
func StatusOf(rs *compiler.RuleSet, source string) Status {
	st := Status{
		LoadedAt:    rs.LoadedAt,
		Version:     rs.Version,
		Source:      source,
		Categories:  rs.Names(),
		Fields:      rs.Fields(),
		Diagnostics: rs.Diagnostics(),
		Warnings:    validator.Lint(rs),
	}
	if st.Categories == nil {
		st.Categories = []string{}
	}
	if st.Fields == nil {
		st.Fields = []string{}
	}
	if st.Diagnostics == nil {
		st.Diagnostics = []compiler.Diagnostic{}
	}
	if st.Warnings == nil {
		st.Warnings = []validator.Finding{}
	}
	return st
}

func (s *Server) handleGet(c *gin.Context) {
	record := recordFromValues(c.Request.URL.Query())
	if len(record) == 0 {
		c.HTML(http.StatusOK, "form", gin.H{
			"Action": c.Request.URL.Path,
			"Fields": s.engine.Fields(),
		})
		return
	}
	s.classify(c, record)
}

func (s *Server) handlePost(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("reading body: %w", err))
		return
	}

	var record runtime.Record
	contentType := c.GetHeader("Content-Type")
	mediaType := ""
	if contentType != "" {
		mediaType, _, _ = mime.ParseMediaType(contentType)
	}
	switch mediaType {
	case "application/json":
		record, err = recordFromJSON(body)
	case "", "application/x-www-form-urlencoded":
		var values url.Values
		values, err = url.ParseQuery(string(body))
		record = recordFromValues(values)
	default:
		respondError(c, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported content type %q", contentType))
		return
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	s.classify(c, record)
}

func (s *Server) classify(c *gin.Context, record runtime.Record) {
	c.JSON(http.StatusOK, classification{Categories: s.engine.Classify(record)})
}

func (s *Server) handleFields(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fields": s.engine.Fields()})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusOf(s.rules.Snapshot(), s.source))
}

func (s *Server) handleReload(c *gin.Context) {
	if err := s.rules.Reload(c.Request.Context()); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, StatusOf(s.rules.Snapshot(), s.source))
}

func respondError(c *gin.Context, code int, err error) {
	logging.Logger.Error().Err(err).Str("path", c.Request.URL.Path).Int("status", code).Msg("Request failed")
	c.String(code, "Error: %s", err.Error())
}

// recordFromValues keeps the last value of a repeated parameter. Parameters
// with an empty name are ignored.
func recordFromValues(values url.Values) runtime.Record {
	record := make(runtime.Record, len(values))
	for name, vs := range values {
		if name == "" || len(vs) == 0 {
			continue
		}
		record[name] = vs[len(vs)-1]
	}
	return record
}

// recordFromJSON accepts a single object. Values that are not strings are
// rendered as their JSON text, so 3 becomes "3" and true becomes "true".
func recordFromJSON(body []byte) (runtime.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding JSON body: %w", err)
	}
	if raw == nil {
		return nil, errors.New("JSON body must be an object")
	}

	record := make(runtime.Record, len(raw))
	for name, v := range raw {
		switch val := v.(type) {
		case string:
			record[name] = val
		case json.Number:
			record[name] = val.String()
		case bool:
			record[name] = strconv.FormatBool(val)
		case nil:
			record[name] = "null"
		default:
			text, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			record[name] = string(text)
		}
	}
	return record, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Handled request")
	}
}
