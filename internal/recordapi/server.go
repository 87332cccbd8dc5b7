// Package recordapi serves the disclosure REST API over any Record Source.
package recordapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"ecodash/internal/core"
	applog "ecodash/internal/log"
	"ecodash/internal/middleware/ratelimit"
	"ecodash/internal/middleware/security"
	"ecodash/internal/middleware/trace"
	"ecodash/internal/source"
	"ecodash/internal/spreadsheet"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Config struct {
	// MaxUploadBytes caps import bodies.
	MaxUploadBytes int64
	// ErrorLimit caps error_details in import responses; 0 keeps all.
	ErrorLimit int
	// RequestsPerMinute limits writes per client IP.
	RequestsPerMinute int
}

func DefaultConfig() Config {
	return Config{
		MaxUploadBytes:    10 << 20,
		ErrorLimit:        50,
		RequestsPerMinute: 120,
	}
}

type Server struct {
	http.Server
	src          source.RecordSource
	config       Config
	logger       *applog.Logger
	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

func NewServer(addr string, src source.RecordSource, config Config, logger *applog.Logger) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentAPI)

	s := &Server{
		src:    src,
		config: config,
		logger: logger,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: config.RequestsPerMinute,
			Methods:           []string{http.MethodPost, http.MethodPut},
		}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /economic/value-generated-data", s.handleListValueGenerated)
	mux.HandleFunc("GET /economic/value-generated/{year}", s.handleGetValueGenerated)
	mux.HandleFunc("POST /economic/value-generated", s.handleCreateValueGenerated)
	mux.HandleFunc("PUT /economic/value-generated/{year}", s.handleUpdateValueGenerated)

	mux.HandleFunc("GET /economic/expenditures", s.handleListExpenditures)
	mux.HandleFunc("GET /economic/expenditures/{company}/{year}", s.handleGetExpenditures)
	mux.HandleFunc("POST /economic/expenditures", s.handleCreateExpenditure)
	mux.HandleFunc("PUT /economic/expenditures/{company}/{year}/{typeId}", s.handleUpdateExpenditure)
	mux.HandleFunc("GET /economic/check-expenditure/{company}/{year}/{typeId}", s.handleCheckExpenditure)

	mux.HandleFunc("GET /economic/capital-provider-payments", s.handleListCapitalProvider)
	mux.HandleFunc("GET /economic/capital-provider-payments/{year}", s.handleGetCapitalProvider)
	mux.HandleFunc("POST /economic/capital-provider-payments", s.handleCreateCapitalProvider)
	mux.HandleFunc("PUT /economic/capital-provider-payments/{year}", s.handleUpdateCapitalProvider)

	mux.HandleFunc("GET /reference/companies", s.handleCompanies)
	mux.HandleFunc("GET /reference/expenditure-types", s.handleExpenditureTypes)

	for _, section := range core.Sections {
		mux.HandleFunc("GET /economic/template-"+string(section), s.handleTemplate(section))
		mux.HandleFunc("POST /economic/import-"+string(section), s.handleImport(section))
	}

	detector := security.NewDetector()
	tracer := trace.NewMiddleware(detector.ExtractClientIP, logger)

	var h http.Handler = mux
	h = s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})(h)
	h = security.NewHeadersMiddleware(security.APIHeadersConfig()).Middleware(h)
	h = detector.Middleware(h)
	h = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(h)
	h = applog.Middleware(logger)(h)
	h = tracer.Middleware(h)

	s.Server = http.Server{Addr: addr, Handler: h}
	return s
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady checks that the Record Source answers a cheap read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.src.ListExpenditureTypes(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// statusFor maps domain errors onto HTTP statuses.
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
		errors.Is(err, core.ErrUnknownSection),
		errors.Is(err, core.ErrEmptyRecord),
		errors.Is(err, spreadsheet.ErrUnsupportedFile),
		errors.Is(err, spreadsheet.ErrEmptyFile),
		errors.Is(err, spreadsheet.ErrMissingColumn):
		return http.StatusBadRequest
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= 500 {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Record source failure", err, op, applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", ""))
	}
	writeError(w, status, err.Error())
}

func pathYear(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer")
		return 0, false
	}
	if err := core.ValidateYear(year); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return year, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// listOrEmpty keeps empty lists as [] on the wire.
func listOrEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func (s *Server) handleListValueGenerated(w http.ResponseWriter, r *http.Request) {
	items, err := s.src.ListValueGenerated(r.Context())
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, listOrEmpty(items))
}

func (s *Server) handleGetValueGenerated(w http.ResponseWriter, r *http.Request) {
	year, ok := pathYear(w, r)
	if !ok {
		return
	}
	rec, err := s.src.GetValueGenerated(r.Context(), year)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateValueGenerated(w http.ResponseWriter, r *http.Request) {
	var rec core.ValueGeneratedRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	out, err := s.src.CreateValueGenerated(r.Context(), rec)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleUpdateValueGenerated(w http.ResponseWriter, r *http.Request) {
	year, ok := pathYear(w, r)
	if !ok {
		return
	}
	var rec core.ValueGeneratedRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	out, err := s.src.UpdateValueGenerated(r.Context(), year, rec)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListExpenditures(w http.ResponseWriter, r *http.Request) {
	items, err := s.src.ListExpenditures(r.Context())
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, listOrEmpty(items))
}

func (s *Server) handleGetExpenditures(w http.ResponseWriter, r *http.Request) {
	year, ok := pathYear(w, r)
	if !ok {
		return
	}
	items, err := s.src.GetExpenditures(r.Context(), r.PathValue("company"), year)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateExpenditure(w http.ResponseWriter, r *http.Request) {
	var rec core.ExpenditureRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	out, err := s.src.CreateExpenditure(r.Context(), rec)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func expenditureKey(w http.ResponseWriter, r *http.Request) (core.ExpenditureKey, bool) {
	year, ok := pathYear(w, r)
	if !ok {
		return core.ExpenditureKey{}, false
	}
	return core.ExpenditureKey{Company: r.PathValue("company"), Year: year, TypeID: r.PathValue("typeId")}, true
}

func (s *Server) handleUpdateExpenditure(w http.ResponseWriter, r *http.Request) {
	key, ok := expenditureKey(w, r)
	if !ok {
		return
	}
	var rec core.ExpenditureRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	out, err := s.src.UpdateExpenditure(r.Context(), key, rec)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCheckExpenditure(w http.ResponseWriter, r *http.Request) {
	key, ok := expenditureKey(w, r)
	if !ok {
		return
	}
	exists, err := s.src.ExpenditureExists(r.Context(), key)
	if err != nil {
		s.fail(w, r, applog.OpProbe, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (s *Server) handleListCapitalProvider(w http.ResponseWriter, r *http.Request) {
	items, err := s.src.ListCapitalProviderPayments(r.Context())
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, listOrEmpty(items))
}

func (s *Server) handleGetCapitalProvider(w http.ResponseWriter, r *http.Request) {
	year, ok := pathYear(w, r)
	if !ok {
		return
	}
	rec, err := s.src.GetCapitalProviderPayment(r.Context(), year)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateCapitalProvider(w http.ResponseWriter, r *http.Request) {
	var rec core.CapitalProviderPaymentRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	out, err := s.src.CreateCapitalProviderPayment(r.Context(), rec)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleUpdateCapitalProvider(w http.ResponseWriter, r *http.Request) {
	year, ok := pathYear(w, r)
	if !ok {
		return
	}
	var rec core.CapitalProviderPaymentRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	out, err := s.src.UpdateCapitalProviderPayment(r.Context(), year, rec)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	items, err := s.src.ListCompanies(r.Context())
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, listOrEmpty(items))
}

func (s *Server) handleExpenditureTypes(w http.ResponseWriter, r *http.Request) {
	items, err := s.src.ListExpenditureTypes(r.Context())
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, listOrEmpty(items))
}

func (s *Server) handleTemplate(section core.Section) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := s.src.Template(r.Context(), section)
		if err != nil {
			s.fail(w, r, applog.OpTemplate, err)
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+spreadsheet.TemplateFilename(section)+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// handleImport answers 200 with the import report whether or not the file
// was accepted; only unreadable uploads are client errors.
func (s *Server) handleImport(section core.Section) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
		if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				status = http.StatusBadRequest
			}
			writeError(w, status, "invalid upload: "+err.Error())
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
			return
		}

		res, err := s.src.Import(r.Context(), section, header.Filename, data)
		if err != nil {
			s.fail(w, r, applog.OpImport, err)
			return
		}

		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogImport(r.Context(), string(section), header.Filename, res.TotalProcessed, res.SuccessfulImports, res.Errors)
		if res.Errors > 0 {
			slog.DebugContext(r.Context(), "Import rejected", "details", res.ErrorDetails)
		}
		writeJSON(w, http.StatusOK, res.Truncate(s.config.ErrorLimit))
	}
}
