package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	applog "ecodash/internal/log"
	"ecodash/internal/spreadsheet"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().BodyJSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Write(w)
}

// handleReady checks the Record Source answers and reports cache state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.SourceTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if _, err := s.src.ListExpenditureTypes(ctx); err != nil {
		checks["record_source"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["record_source"] = "ok"
	}

	checks["cache"] = map[string]any{
		"section_entries": s.sections.Size(),
		"status":          "ok",
	}
	checks["workflows"] = map[string]any{
		"open":   s.workflows.Len(),
		"status": "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewHTMXResponse().Status(httpStatus).BodyJSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("record_writes_total", "counter", "Successful form writes", atomic.LoadInt64(&s.appMetrics.writes))
	metric("imports_total", "counter", "Accepted spreadsheet imports", atomic.LoadInt64(&s.appMetrics.imports))
	metric("change_events_total", "counter", "record.written events received", atomic.LoadInt64(&s.appMetrics.events))
	metric("cache_hits_total", "counter", "Total cache hits", atomic.LoadInt64(&s.appMetrics.cacheHits))
	metric("cache_misses_total", "counter", "Total cache misses", atomic.LoadInt64(&s.appMetrics.cacheMisses))
	metric("cache_entries", "gauge", "Current section cache entries", s.sections.Size())
	metric("open_workflows", "gauge", "Workflows held for open forms", s.workflows.Len())
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}

func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	ref, err := s.getReference(r.Context())
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	NewHTMXResponse().BodyJSON(ref).Write(w)
}

// handleSection returns one filtered section list. Expenditures are grouped
// per (company, year).
func (s *Server) handleSection(w http.ResponseWriter, r *http.Request) {
	section, ok := pathSection(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	rows, err := s.getSection(r.Context(), section, ParseFilter(query))
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	NewHTMXResponse().BodyJSON(rows.view(section, ParsePageParams(query))).Write(w)
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	section, ok := pathSection(w, r)
	if !ok {
		return
	}
	data, err := s.src.Template(r.Context(), section)
	if err != nil {
		s.fail(w, r, applog.OpTemplate, err)
		return
	}
	NewHTMXResponse().
		Header("Content-Type", xlsxContentType).
		Header("Content-Disposition", `attachment; filename="`+spreadsheet.TemplateFilename(section)+`"`).
		Body(data).
		Write(w)
}

// handleImport forwards an upload to the Record Source. The import report is
// returned with 200 whether or not the file was accepted.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	section, ok := pathSection(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		status := statusFor(err)
		if status >= 500 {
			status = http.StatusBadRequest
		}
		ErrorResponse(status, "Invalid upload: "+err.Error()).Write(w)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		BadRequestError("Select a file to import").Write(w)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		BadRequestError("Could not read upload").Write(w)
		return
	}

	res, err := s.src.Import(r.Context(), section, header.Filename, data)
	if err != nil {
		s.fail(w, r, applog.OpImport, err)
		return
	}
	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogImport(r.Context(), string(section), header.Filename, res.TotalProcessed, res.SuccessfulImports, res.Errors)

	b := NewHTMXResponse().BodyJSON(res.Truncate(s.config.ImportErrorLimit))
	if res.SuccessfulImports > 0 {
		atomic.AddInt64(&s.appMetrics.imports, 1)
		s.InvalidateSection(r.Context(), section)
		b.TriggerSectionRefresh(section).TriggerSuccessNotification(res.Summary())
	} else {
		b.TriggerWarningNotification(res.Summary())
	}
	b.Write(w)
}

