package report

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recore-erp/recore-erp/internal/platform/httpx"
	"github.com/recore-erp/recore-erp/internal/returns"
	"github.com/recore-erp/recore-erp/web"
)

var receiptTmpl = template.Must(template.ParseFS(web.Templates, "templates/entry_receipt.html"))

// EntryLoader loads one merchandise entry with its items.
type EntryLoader interface {
	GetEntry(ctx context.Context, id int64) (*returns.Entry, error)
}

// Handler serves printable documents.
type Handler struct {
	client  *Client
	entries EntryLoader
	logger  *slog.Logger
}

// NewHandler creates the report handler.
func NewHandler(client *Client, entries EntryLoader, logger *slog.Logger) *Handler {
	return &Handler{client: client, entries: entries, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/entries/{id}.pdf", h.entryReceipt)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// entryReceipt renders the receipt the client signs when dropping off cores.
func (h *Handler) entryReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}

	entry, err := h.entries.GetEntry(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var buf strings.Builder
	err = receiptTmpl.Execute(&buf, struct {
		Entry       *returns.Entry
		GeneratedAt time.Time
	}{Entry: entry, GeneratedAt: time.Now()})
	if err != nil {
		h.logger.Error("render receipt template", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not render receipt")
		return
	}

	pdf, err := h.client.RenderHTML(r.Context(), buf.String())
	if err != nil {
		h.logger.Error("convert receipt pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "document service unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s.pdf", entry.ReportNumber))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
