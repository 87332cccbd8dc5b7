package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ecodash/internal/cache"
	"ecodash/internal/core"
	applog "ecodash/internal/log"
	"ecodash/internal/middleware/ratelimit"
	"ecodash/internal/middleware/security"
	"ecodash/internal/middleware/trace"
	"ecodash/internal/services"
	"ecodash/internal/source"
	"ecodash/internal/spreadsheet"
)

type Config struct {
	// CloseDelay keeps a successful form open before form:close fires.
	CloseDelay  time.Duration
	ProbePolicy services.ProbePolicy
	// ImportErrorLimit caps error_details returned to the page; 0 keeps all.
	ImportErrorLimit int
	MaxUploadBytes   int64
	CacheSize        int
	CacheTTL         time.Duration
	// WorkflowTTL drops workflows whose form was abandoned.
	WorkflowTTL       time.Duration
	CleanupInterval   time.Duration
	RequestsPerMinute int
	// SourceTimeout bounds each read from the Record Source.
	SourceTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		CloseDelay:        services.DefaultWorkflowConfig().CloseDelay,
		ProbePolicy:       services.ProbeFailOpen,
		ImportErrorLimit:  50,
		MaxUploadBytes:    10 << 20,
		CacheSize:         100,
		CacheTTL:          5 * time.Minute,
		WorkflowTTL:       30 * time.Minute,
		CleanupInterval:   10 * time.Minute,
		RequestsPerMinute: 60,
		SourceTimeout:     10 * time.Second,
	}
}

// Reference is the cached reference data shown in selects.
type Reference struct {
	Companies        []core.Company         `json:"companies"`
	ExpenditureTypes []core.ExpenditureType `json:"expenditure_types"`
}

// sectionRows is one filtered, unpaged section list.
type sectionRows struct {
	valueGenerated  []core.ValueGeneratedRecord
	expenditures    []core.GroupedExpenditureView
	capitalProvider []core.CapitalProviderPaymentRecord
}

func (r sectionRows) len(section core.Section) int {
	switch section {
	case core.SectionValueGenerated:
		return len(r.valueGenerated)
	case core.SectionExpenditures:
		return len(r.expenditures)
	default:
		return len(r.capitalProvider)
	}
}

// SectionView is the JSON body of a section list.
type SectionView struct {
	Section  core.Section `json:"section"`
	Items    any          `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

type appMetrics struct {
	cacheHits   int64
	cacheMisses int64
	writes      int64
	imports     int64
	events      int64
	uptime      time.Time
}

type Server struct {
	http.Server
	src       source.RecordSource
	config    Config
	logger    *applog.Logger
	checker   *services.DuplicateChecker
	workflows *WorkflowRegistry

	sections     *cache.LRUCache[sectionRows]
	reference    *cache.LRUCache[Reference]
	cacheManager *cache.Manager

	// sectionGen counts invalidations per section. A list read only fills
	// the cache if no invalidation happened while it was in flight.
	genMu      sync.Mutex
	sectionGen map[core.Section]uint64

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// workflowCleaner lets the cache manager expire abandoned workflows.
type workflowCleaner struct {
	registry *WorkflowRegistry
	ttl      time.Duration
}

func (c workflowCleaner) CleanExpired() int {
	return c.registry.CleanIdle(c.ttl)
}

// NewServer wires routes and middleware around a Record Source.
func NewServer(addr string, src source.RecordSource, config Config, logger *applog.Logger) *Server {
	def := DefaultConfig()
	if config.CacheSize <= 0 {
		config.CacheSize = def.CacheSize
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = def.CacheTTL
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = def.MaxUploadBytes
	}
	if config.WorkflowTTL <= 0 {
		config.WorkflowTTL = def.WorkflowTTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.SourceTimeout <= 0 {
		config.SourceTimeout = def.SourceTimeout
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		src:       src,
		config:    config,
		logger:    logger,
		checker:   services.NewDuplicateChecker(src, config.ProbePolicy),
		workflows: NewWorkflowRegistry(),
		sections:  cache.NewLRUCache[sectionRows](config.CacheSize, config.CacheTTL),
		reference: cache.NewLRUCache[Reference](1, config.CacheTTL),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: config.RequestsPerMinute,
			Methods:           []string{http.MethodPost},
		}),
		securityDetector: security.NewDetector(),
		appMetrics:       &appMetrics{uptime: time.Now()},

		sectionGen: make(map[core.Section]uint64),
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)

	s.cacheManager = cache.NewManager(logger)
	s.cacheManager.Register(s.sections)
	s.cacheManager.Register(s.reference)
	s.cacheManager.Register(workflowCleaner{registry: s.workflows, ttl: config.WorkflowTTL})
	s.cacheManager.StartCleanup(config.CleanupInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /ui/reference", s.handleReference)
	mux.HandleFunc("GET /ui/sections/{section}", s.handleSection)
	mux.HandleFunc("GET /ui/forms/{section}", s.handleFormState)
	mux.HandleFunc("POST /ui/forms/{section}/totals", s.handleFormTotals)
	mux.HandleFunc("POST /ui/forms/{section}", s.handleSubmit)
	mux.HandleFunc("GET /ui/workflows/{id}", s.handleWorkflowStatus)
	mux.HandleFunc("POST /ui/workflows/{id}/confirm", s.handleConfirm)
	mux.HandleFunc("POST /ui/workflows/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /ui/templates/{section}", s.handleTemplate)
	mux.HandleFunc("POST /ui/imports/{section}", s.handleImport)

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "Too many requests, please try again later").Write(w)
	})(h)
	h = security.NewHeadersMiddleware(security.DashboardHeadersConfig()).Middleware(h)
	h = s.securityDetector.Middleware(h)
	h = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(h)
	h = applog.Middleware(logger)(h)
	h = s.traceMiddleware.Middleware(h)

	s.Server = http.Server{Addr: addr, Handler: h}
	return s
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func sectionCacheKey(section core.Section, f services.Filter) string {
	return fmt.Sprintf("%s|%s|%d|%s", section, f.Company, f.Year, strings.ToLower(f.Query))
}

// InvalidateSection drops every cached list of a section.
func (s *Server) InvalidateSection(ctx context.Context, section core.Section) {
	s.genMu.Lock()
	s.sectionGen[section]++
	n := s.sections.DeletePrefix(string(section) + "|")
	s.genMu.Unlock()
	s.logger.DebugContext(ctx, "Section cache invalidated",
		applog.FieldSection, string(section),
		"entries_removed", n)
}

func (s *Server) onWriteSuccess(ctx context.Context, section core.Section) {
	atomic.AddInt64(&s.appMetrics.writes, 1)
	s.InvalidateSection(ctx, section)
}

func (s *Server) getReference(ctx context.Context) (Reference, error) {
	if ref, ok := s.reference.Get("reference"); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		return ref, nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	cctx, cancel := context.WithTimeout(ctx, s.config.SourceTimeout)
	defer cancel()
	companies, err := s.src.ListCompanies(cctx)
	if err != nil {
		return Reference{}, fmt.Errorf("list companies: %w", err)
	}
	types, err := s.src.ListExpenditureTypes(cctx)
	if err != nil {
		return Reference{}, fmt.Errorf("list expenditure types: %w", err)
	}
	ref := Reference{Companies: nonNil(companies), ExpenditureTypes: nonNil(types)}
	s.reference.Set("reference", ref)
	return ref, nil
}

func (s *Server) getSection(ctx context.Context, section core.Section, f services.Filter) (sectionRows, error) {
	key := sectionCacheKey(section, f)
	if rows, ok := s.sections.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		s.logger.DebugContext(ctx, "Section cache hit", applog.FieldSection, string(section))
		return rows, nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	s.genMu.Lock()
	gen := s.sectionGen[section]
	s.genMu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, s.config.SourceTimeout)
	defer cancel()

	var rows sectionRows
	switch section {
	case core.SectionValueGenerated:
		items, err := s.src.ListValueGenerated(cctx)
		if err != nil {
			return sectionRows{}, fmt.Errorf("list value generated: %w", err)
		}
		rows.valueGenerated = services.FilterValueGenerated(items, f)
	case core.SectionExpenditures:
		items, err := s.src.ListExpenditures(cctx)
		if err != nil {
			return sectionRows{}, fmt.Errorf("list expenditures: %w", err)
		}
		rows.expenditures = services.AggregateExpenditures(services.FilterExpenditures(items, f))
	case core.SectionCapitalProvider:
		items, err := s.src.ListCapitalProviderPayments(cctx)
		if err != nil {
			return sectionRows{}, fmt.Errorf("list capital provider payments: %w", err)
		}
		rows.capitalProvider = services.FilterCapitalProvider(items, f)
	}

	s.genMu.Lock()
	if s.sectionGen[section] == gen {
		s.sections.Set(key, rows)
	}
	s.genMu.Unlock()
	return rows, nil
}

func pageOf[T any](items []T, p PageParams) []T {
	start, end := p.Bounds(len(items))
	return nonNil(items[start:end])
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func (rows sectionRows) view(section core.Section, p PageParams) SectionView {
	v := SectionView{Section: section, Total: rows.len(section), Page: p.Page, PageSize: p.Size}
	switch section {
	case core.SectionValueGenerated:
		v.Items = pageOf(rows.valueGenerated, p)
	case core.SectionExpenditures:
		v.Items = pageOf(rows.expenditures, p)
	default:
		v.Items = pageOf(rows.capitalProvider, p)
	}
	return v
}

// statusFor maps Record Source errors onto dashboard responses. Anything
// unrecognised is an upstream failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidYear),
		errors.Is(err, core.ErrMissingCompany),
		errors.Is(err, core.ErrMissingType),
		errors.Is(err, core.ErrUnknownRef),
		errors.Is(err, core.ErrUnknownField),
		errors.Is(err, core.ErrUnknownSection),
		errors.Is(err, errInvalidInput),
		errors.Is(err, spreadsheet.ErrUnsupportedFile),
		errors.Is(err, spreadsheet.ErrEmptyFile),
		errors.Is(err, spreadsheet.ErrMissingColumn):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadGateway
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= 500 {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Record source request failed", err, op,
				applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()))
	}
	ErrorResponse(status, err.Error()).Write(w)
}

func pathSection(w http.ResponseWriter, r *http.Request) (core.Section, bool) {
	section, err := core.ParseSection(r.PathValue("section"))
	if err != nil {
		NotFoundError(err.Error()).Write(w)
		return "", false
	}
	return section, true
}
