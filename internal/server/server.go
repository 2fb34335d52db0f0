package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/igc2kml/internal/config"
	"github.com/shaunagostinho/igc2kml/internal/convert"
	"github.com/shaunagostinho/igc2kml/internal/geodesy"
	"github.com/shaunagostinho/igc2kml/internal/igc"
	"github.com/shaunagostinho/igc2kml/internal/kmlgen"
)

const kmlContentType = "application/vnd.google-earth.kml+xml"

// Server exposes the converter over HTTP and replays flights to WebSocket
// clients.
type Server struct {
	cfg      *config.Config
	webFS    fs.FS
	cache    *cache.Cache
	upgrader websocket.Upgrader
	router   chi.Router
}

// New creates a new Server. webFS may be nil.
func New(cfg *config.Config, webFS fs.FS) *Server {
	ttl := time.Duration(cfg.Server.CacheTTLSec) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	s := &Server{
		cfg:   cfg,
		webFS: webFS,
		cache: cache.New(ttl, 2*ttl),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger,
		middleware.Recoverer,
	)

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/config", s.handleConfig)
	r.Put("/api/config", s.handleConfigUpdate)
	r.Post("/api/convert", s.handleConvert)
	r.Post("/api/flights", s.handleFlight)
	r.Get("/ws/replay", s.handleReplay)

	if s.webFS != nil {
		r.Handle("/*", http.FileServer(http.FS(s.webFS)))
	}
	return r
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.ServerSettings().ListenAddr
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.WithField("component", "server").Infof("listening on %s", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	data, err := s.cfg.ToJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleConfigUpdate applies a partial JSON config and persists it. It
// responds with the resulting config.
func (s *Server) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if err := s.cfg.UpdateFromJSON([]byte(body)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.cfg.Save(); err != nil {
		log.WithField("component", "config").Warnf("save failed: %v", err)
	}
	s.handleConfig(w, r)
}

// handleConvert converts the IGC body to KML. Query parameters: name,
// clamp, extrude. Unset options fall back to the configured defaults.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}
	opts := s.cfg.ConvertSettings().Options
	q := r.URL.Query()
	if v := q.Get("clamp"); v != "" {
		opts.ClampToGround, _ = strconv.ParseBool(v)
	}
	if v := q.Get("extrude"); v != "" {
		opts.Extrude, _ = strconv.ParseBool(v)
	}
	name := q.Get("name")
	if name == "" {
		name = "flight"
	}

	key := cacheKey(raw, name, opts)
	if doc, found := s.cache.Get(key); found {
		w.Header().Set("X-Cache", "hit")
		writeKML(w, name, doc.(string))
		return
	}

	res, err := convert.Convert(raw, name, opts)
	if err != nil {
		writeConvertError(w, err)
		return
	}
	s.cache.SetDefault(key, res.KML)
	w.Header().Set("X-Cache", "miss")
	w.Header().Set("X-Track-Fixes", strconv.Itoa(res.Fixes))
	w.Header().Set("X-Track-Distance-Km", fmt.Sprintf("%.2f", res.DistanceKm))
	writeKML(w, name, res.KML)
}

// FlightSummary is the JSON view of a parsed flight.
type FlightSummary struct {
	*igc.FlightLog
	Snippet     string     `json:"snippet"`
	Description [][]string `json:"description"`
	Fixes       int        `json:"fixes"`
	DistanceKm  float64    `json:"distanceKm"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	First       *igc.Fix   `json:"first,omitempty"`
	Last        *igc.Fix   `json:"last,omitempty"`
}

func (s *Server) handleFlight(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}
	flight, err := igc.Parse(raw)
	if err != nil {
		writeConvertError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(flight))
}

func summarize(flight *igc.FlightLog) FlightSummary {
	sum := FlightSummary{
		FlightLog: flight,
		Snippet:   kmlgen.Snippet(flight),
		Fixes:     len(flight.Fixes),
	}
	for _, group := range kmlgen.DescriptionLines(flight) {
		var lines []string
		for _, l := range group {
			lines = append(lines, l.String())
		}
		sum.Description = append(sum.Description, lines)
	}
	if n := len(flight.Fixes); n > 0 {
		sum.DistanceKm = geodesy.TrackDistance(flight.Track())
		stamps := flight.Timestamps()
		sum.Start, sum.End = &stamps[0], &stamps[n-1]
		sum.First, sum.Last = &flight.Fixes[0], &flight.Fixes[n-1]
	}
	return sum
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.ServerSettings().MaxUploadBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return "", false
	}
	return string(data), true
}

func cacheKey(raw, name string, opts kmlgen.Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%t\x00%t\x00", name, opts.ClampToGround, opts.Extrude)
	io.WriteString(h, raw)
	return hex.EncodeToString(h.Sum(nil))
}

func writeKML(w http.ResponseWriter, name, doc string) {
	w.Header().Set("Content-Type", kmlContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".kml"))
	io.WriteString(w, doc)
}

func writeConvertError(w http.ResponseWriter, err error) {
	if errors.Is(err, igc.ErrInvalidFormat) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"component": "http",
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"bytes":     ww.BytesWritten(),
			"duration":  time.Since(start).String(),
			"requestId": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}
