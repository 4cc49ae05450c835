package ops

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/edgelake/sheetsink/internal/config"
	"github.com/edgelake/sheetsink/internal/ledger"
	"github.com/edgelake/sheetsink/internal/stats"
)

type handlers struct {
	collector *stats.Collector
	cfg       *config.Config
	db        ledger.DBTX
	logs      *ledger.LogStore
	files     *ledger.FileStore
	poison    *ledger.PoisonStore
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.collector.Snapshot())
}

func (h *handlers) configHandler(w http.ResponseWriter, r *http.Request) {
	if h.cfg == nil {
		writeJSON(w, map[string]string{"error": "no config available"})
		return
	}
	// Credentials never leave the process.
	redacted := struct {
		Site      config.SiteConfig  `json:"site"`
		Source    redactedSource     `json:"source"`
		Queue     config.QueueConfig `json:"queue"`
		Warehouse redactedWarehouse  `json:"warehouse"`
		Sync      config.SyncConfig  `json:"sync"`
		Ops       config.OpsConfig   `json:"ops"`
	}{
		Site:      h.cfg.Site,
		Source:    redactSource(h.cfg.Source),
		Queue:     h.cfg.Queue,
		Warehouse: redactWarehouse(h.cfg.Warehouse),
		Sync:      h.cfg.Sync,
		Ops:       h.cfg.Ops,
	}
	redacted.Site.ClientState = mask(redacted.Site.ClientState)
	writeJSON(w, redacted)
}

func (h *handlers) runs(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "warehouse not connected", http.StatusServiceUnavailable)
		return
	}
	runs, err := h.logs.Recent(r.Context(), h.db, limitParam(r, 50))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (h *handlers) processedFiles(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "warehouse not connected", http.StatusServiceUnavailable)
		return
	}
	files, err := h.files.Recent(r.Context(), h.db, limitParam(r, 50))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, files)
}

func (h *handlers) poisoned(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "warehouse not connected", http.StatusServiceUnavailable)
		return
	}
	msgs, err := h.poison.Recent(r.Context(), h.db, limitParam(r, 50))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, msgs)
}

func (h *handlers) logTail(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.collector.Logs())
}

type redactedSource struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

func redactSource(s config.SourceConfig) redactedSource {
	return redactedSource{BaseURL: s.BaseURL, Token: mask(s.Token)}
}

type redactedWarehouse struct {
	URL    string `json:"url"`
	Schema string `json:"schema"`
}

func redactWarehouse(wh config.WarehouseConfig) redactedWarehouse {
	return redactedWarehouse{URL: redactURL(wh.URL), Schema: wh.Schema}
}

// redactURL strips the password from a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func limitParam(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 500 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
