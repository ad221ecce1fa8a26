package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"courseplan/internal/catalog"
	"courseplan/internal/config"
	"courseplan/internal/events"
	"courseplan/internal/ics"
	appLog "courseplan/internal/log"
	"courseplan/internal/model"
	"courseplan/internal/planner"
)

const (
	// SessionCookie carries the planning session id.
	SessionCookie = "courseplan_session"

	referenceTTL = time.Hour
	maxBodyBytes = 1 << 20
)

// Reference serves catalog reference data.
type Reference interface {
	Terms(ctx context.Context) ([]catalog.Term, error)
	Subjects(ctx context.Context) ([]catalog.Subject, error)
	Campuses(ctx context.Context) ([]catalog.Campus, error)
	Careers(ctx context.Context) ([]catalog.Career, error)
}

// Server provides the planner HTTP API.
type Server struct {
	cfg      *config.Config
	sessions *planner.Sessions
	ref      Reference
	gatherer prometheus.Gatherer
	loc      *time.Location
	mux      *http.ServeMux

	// Reference data changes once a year at most.
	refCache *gocache.Cache
}

// NewServer constructs a new Server. gatherer may be nil to disable
// /metrics.
func NewServer(cfg *config.Config, sessions *planner.Sessions, ref Reference, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		ref:      ref,
		gatherer: gatherer,
		loc:      resolveLocationOrLocal(cfg.Timezone),
		mux:      http.NewServeMux(),
		refCache: gocache.New(referenceTTL, 10*time.Minute),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="courseplan", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/terms", s.handleTerms)
	s.mux.HandleFunc("GET /api/subjects", s.handleSubjects)
	s.mux.HandleFunc("GET /api/campuses", s.handleCampuses)
	s.mux.HandleFunc("GET /api/careers", s.handleCareers)

	s.mux.HandleFunc("GET /api/courses", s.handleCourses)
	s.mux.HandleFunc("POST /api/courses", s.handleAddCourse)
	s.mux.HandleFunc("DELETE /api/courses/{id}", s.handleRemoveCourse)
	s.mux.HandleFunc("POST /api/courses/{id}/classes/{class}/check", s.handleCheckClass)
	s.mux.HandleFunc("DELETE /api/courses/{id}/classes/{class}/check", s.handleUncheckClass)
	s.mux.HandleFunc("DELETE /api/courses/{id}/groups/{index}", s.handleClearGroup)

	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /api/calendar.ics", s.handleCalendarICS)
	s.mux.HandleFunc("POST /api/calendar.ics", s.handleImportICS)
	s.mux.HandleFunc("GET /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("DELETE /api/session", s.handleEndSession)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// view returns the caller's session without starting one. Callers without
// a session get a blank planner that is never registered.
func (s *Server) view(r *http.Request) *planner.Planner {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if p, ok := s.sessions.Get(c.Value); ok {
			return p
		}
	}
	return s.sessions.Blank()
}

// planner returns the caller's session, starting one on first use. Only
// adding a course starts a session; every other route works on view.
func (s *Server) planner(w http.ResponseWriter, r *http.Request) *planner.Planner {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sid, p, created := s.sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sid,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return p
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := catalog.SearchParams{
		Subject:       q.Get("subject"),
		Title:         q.Get("title"),
		CatalogNumber: q.Get("catalogue_number"),
		ClassNumber:   q.Get("class_number"),
		Term:          q.Get("term"),
		Career:        q.Get("academic_career"),
		Campus:        q.Get("campus"),
		Page:          parseIntDefault(q.Get("page"), 1),
		PageSize:      parseIntDefault(q.Get("page_size"), 0),
	}

	courses, err := s.view(r).Search(r.Context(), params)
	if err != nil {
		status := statusFor(err)
		writeJSON(w, status, map[string]any{"courses": []model.CourseSummary{}, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": courses})
}

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	s.serveReference(w, r, "terms", func(ctx context.Context) (any, error) {
		return s.ref.Terms(ctx)
	})
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	s.serveReference(w, r, "subjects", func(ctx context.Context) (any, error) {
		return s.ref.Subjects(ctx)
	})
}

func (s *Server) handleCampuses(w http.ResponseWriter, r *http.Request) {
	s.serveReference(w, r, "campuses", func(ctx context.Context) (any, error) {
		return s.ref.Campuses(ctx)
	})
}

func (s *Server) handleCareers(w http.ResponseWriter, r *http.Request) {
	s.serveReference(w, r, "careers", func(ctx context.Context) (any, error) {
		return s.ref.Careers(ctx)
	})
}

func (s *Server) serveReference(w http.ResponseWriter, r *http.Request, key string, load func(context.Context) (any, error)) {
	if v, ok := s.refCache.Get(key); ok {
		writeJSON(w, http.StatusOK, map[string]any{key: v})
		return
	}
	v, err := load(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.refCache.SetDefault(key, v)
	writeJSON(w, http.StatusOK, map[string]any{key: v})
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"courses": s.view(r).Courses()})
}

func (s *Server) handleAddCourse(w http.ResponseWriter, r *http.Request) {
	var summary model.CourseSummary
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&summary); err != nil {
		writeError(w, http.StatusBadRequest, "invalid course: "+err.Error())
		return
	}
	if summary.ClassNumber == "" {
		writeError(w, http.StatusBadRequest, "classNumber is required")
		return
	}

	rec, added, err := s.planner(w, r).AddCourse(r.Context(), summary)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"course": rec})
}

func (s *Server) handleRemoveCourse(w http.ResponseWriter, r *http.Request) {
	id := model.ID(r.PathValue("id"))
	if !s.view(r).RemoveCourse(id) {
		writeError(w, http.StatusNotFound, planner.ErrUnknownCourse.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckClass(w http.ResponseWriter, r *http.Request) {
	evs, err := s.view(r).CheckClass(model.ID(r.PathValue("id")), model.ID(r.PathValue("class")))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if evs == nil {
		evs = []model.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (s *Server) handleUncheckClass(w http.ResponseWriter, r *http.Request) {
	n, err := s.view(r).UncheckClass(model.ID(r.PathValue("id")), model.ID(r.PathValue("class")))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": n})
}

func (s *Server) handleClearGroup(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "group index must be an integer")
		return
	}
	ids, err := s.view(r).ClearGroup(model.ID(r.PathValue("id")), index)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unchecked": ids})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": s.view(r).Events()})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view(r).Calendar())
}

func (s *Server) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	body, err := ics.Export(s.view(r).Events(), ics.ExportOptions{Location: s.loc, Name: "Course plan"})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="courseplan.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleImportICS re-checks the classes of a calendar produced by
// GET /api/calendar.ics. Only courses already selected are touched.
func (s *Server) handleImportICS(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid calendar: "+err.Error())
		return
	}
	parsed, err := ics.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid calendar: "+err.Error())
		return
	}

	refs := make([]planner.ClassRef, 0, len(parsed))
	for _, ev := range parsed {
		refs = append(refs, planner.ClassRef{Course: ev.GroupID, Class: ev.ClassID})
	}
	writeJSON(w, http.StatusOK, s.view(r).Import(refs))
}

// handleOccurrences expands the displayed events over [from, to]. Both
// dates are YYYY-MM-DD in the configured timezone; the default window is
// the seven days starting today.
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().In(s.loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	if v := q.Get("from"); v != "" {
		t, err := time.ParseInLocation(time.DateOnly, v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = t
	}
	to := from.AddDate(0, 0, 7).Add(-time.Second)
	if v := q.Get("to"); v != "" {
		t, err := time.ParseInLocation(time.DateOnly, v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	res, err := ics.Expand(s.view(r).Events(), ics.ExpandConfig{
		Location:   s.loc,
		RangeStart: from,
		RangeEnd:   to,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		s.sessions.Delete(c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, planner.ErrUnknownCourse),
		errors.Is(err, planner.ErrUnknownClass),
		errors.Is(err, planner.ErrUnknownGroup):
		return http.StatusNotFound
	case errors.Is(err, planner.ErrStaleSelection), errors.Is(err, planner.ErrClassTaken):
		return http.StatusConflict
	case errors.Is(err, events.ErrUnsupportedWeekday),
		errors.Is(err, events.ErrBadTime),
		errors.Is(err, events.ErrBadDateRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrNetwork), errors.Is(err, catalog.ErrBadResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		appLog.Error("unexpected handler error", err)
		return http.StatusInternalServerError
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
