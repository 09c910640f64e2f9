package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/tabvault/tabvault/app/browser"
	"github.com/tabvault/tabvault/app/export"
	"github.com/tabvault/tabvault/app/store"
	"github.com/tabvault/tabvault/app/tabs"
)

// TabsListResponse is the JSON response for GET /api/v1/tabs
type TabsListResponse struct {
	Tabs     []tabs.SavedTab `json:"tabs"`
	Total    int             `json:"total"`    // records matching the search, before pagination
	Page     int             `json:"page"`     // 1-based
	Pages    int             `json:"pages"`    // total pages for this search
	PageSize int             `json:"page_size"`
	Search   string          `json:"search,omitempty"`
}

// SaveRequest is the JSON body for POST /api/v1/tabs/save
type SaveRequest struct {
	Scope string `json:"scope"` // all, active or inactive
	Close bool   `json:"close"` // close source tabs after a successful save
}

// SaveResponse reports the outcome of a save
type SaveResponse struct {
	Saved      int `json:"saved"`      // records added after dedup
	Candidates int `json:"candidates"` // open tabs considered
	Closed     int `json:"closed"`     // source tabs requested to close
}

// DeleteResponse reports the outcome of a delete, carrying the reloaded
// collection size so clients can resync optimistic state
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
	Total   int  `json:"total"`
}

// BackupResponse is the JSON response for GET /api/v1/backup
type BackupResponse struct {
	Tabs  []tabs.SavedTab `json:"tabs"`
	Total int             `json:"total"`
}

// RestoreResponse reports the outcome of a restore
type RestoreResponse struct {
	Restored int `json:"restored"`
}

// StatusResponse is the JSON response for /api/v1/status
type StatusResponse struct {
	Total        int       `json:"total"`
	LastBackupAt time.Time `json:"last_backup_at,omitzero"`
	UninstallURL string    `json:"uninstall_url,omitempty"`
	Version      string    `json:"version"`
	StartedAt    time.Time `json:"started_at"`
	HostUptime   uint64    `json:"host_uptime_sec"`
	MemUsedPct   float64   `json:"mem_used_pct"`
	Timestamp    time.Time `json:"timestamp"`
}

// handleTabsList returns one page of the collection, filtered by the
// free-text search over title and url
func (s *Server) handleTabsList(w http.ResponseWriter, r *http.Request) {
	all, err := s.tabs.GetAll()
	if err != nil {
		log.Printf("[ERROR] failed to load tabs: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load saved tabs")
		return
	}

	search := r.FormValue("search")
	matched := searchTabs(all, search)

	page := 1
	if p := r.FormValue("page"); p != "" {
		page, err = strconv.Atoi(p)
		if err != nil || page < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid page")
			return
		}
	}

	paged, pages := paginate(matched, page, s.pageSize)
	s.writeJSON(w, http.StatusOK, TabsListResponse{
		Tabs:     paged,
		Total:    len(matched),
		Page:     page,
		Pages:    pages,
		PageSize: s.pageSize,
		Search:   search,
	})
}

// handleTabsSave enumerates open browser tabs for the requested scope,
// saves them and optionally closes the saved source tabs
func (s *Server) handleTabsSave(w http.ResponseWriter, r *http.Request) {
	if s.browser == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "browser connection not configured")
		return
	}

	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scope, err := browser.ParseScope(req.Scope)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	open, err := s.browser.List(r.Context(), scope)
	if err != nil {
		log.Printf("[ERROR] failed to list browser tabs: %v", err)
		s.writeJSONError(w, http.StatusBadGateway, "failed to enumerate browser tabs")
		return
	}

	candidates := make([]tabs.Candidate, 0, len(open))
	for _, t := range open {
		candidates = append(candidates, tabs.Candidate{URL: t.URL, Title: t.Title, FavIconURL: t.FavIconURL})
	}

	saved, err := s.tabs.SaveBatch(candidates)
	if err != nil {
		log.Printf("[ERROR] failed to save tabs: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to save tabs")
		return
	}

	// close follows a successful save call, even when dedup kept the count
	// at zero - the source tabs are already in the vault
	closed := 0
	if req.Close && len(open) > 0 {
		ids := make([]string, 0, len(open))
		for _, t := range open {
			ids = append(ids, t.ID)
		}
		s.browser.CloseTabs(r.Context(), ids)
		closed = len(ids)
	}

	s.writeJSON(w, http.StatusOK, SaveResponse{Saved: saved, Candidates: len(open), Closed: closed})
}

// handleTabDelete removes one record; an unknown id is a successful no-op
func (s *Server) handleTabDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "tab ID required")
		return
	}

	if err := s.tabs.DeleteByID(id); err != nil {
		log.Printf("[ERROR] failed to delete tab %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to delete tab")
		return
	}

	// reload so the client can resync with persisted truth
	all, err := s.tabs.GetAll()
	if err != nil {
		log.Printf("[ERROR] failed to reload tabs after delete: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to reload saved tabs")
		return
	}

	s.writeJSON(w, http.StatusOK, DeleteResponse{Deleted: true, Total: len(all)})
}

// handleTabsClear removes the whole collection
func (s *Server) handleTabsClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.tabs.ClearAll(); err != nil {
		log.Printf("[ERROR] failed to clear tabs: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to clear saved tabs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// handleBackupList returns the backup snapshot
func (s *Server) handleBackupList(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.tabs.Snapshot()
	if err != nil {
		log.Printf("[ERROR] failed to load backup snapshot: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load backup snapshot")
		return
	}
	s.writeJSON(w, http.StatusOK, BackupResponse{Tabs: snap, Total: len(snap)})
}

// handleBackupRun triggers an immediate backup. Backup failures are logged
// by the scheduler and never surfaced, so this always reports accepted.
func (s *Server) handleBackupRun(w http.ResponseWriter, _ *http.Request) {
	if s.backup == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "backup not configured")
		return
	}
	s.backup.Run()
	s.writeJSON(w, http.StatusOK, map[string]bool{"triggered": true})
}

// handleExport streams the collection as a yaml or json dump
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.FormValue("format"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	all, err := s.tabs.GetAll()
	if err != nil {
		log.Printf("[ERROR] failed to load tabs for export: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load saved tabs")
		return
	}

	buf := new(bytes.Buffer)
	if err := export.Write(buf, all, format); err != nil {
		log.Printf("[ERROR] failed to encode export: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to encode export")
		return
	}

	contentType := "application/yaml"
	if format == export.FormatJSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="tabvault-export.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write export response: %v", err)
	}
}

// handleRestore parses an uploaded dump and feeds it through the save path
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.FormValue("format"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := export.Read(r.Body, format)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	restored, err := export.Restore(s.tabs, f)
	if err != nil {
		log.Printf("[ERROR] failed to restore dump: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to restore dump")
		return
	}

	s.writeJSON(w, http.StatusOK, RestoreResponse{Restored: restored})
}

// handleStatus returns collection counters plus host stats
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	all, err := s.tabs.GetAll()
	if err != nil {
		log.Printf("[ERROR] failed to load tabs for status: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load saved tabs")
		return
	}

	resp := StatusResponse{
		Total:        len(all),
		UninstallURL: s.uninstallURL,
		Version:      s.version,
		StartedAt:    s.startTime,
		Timestamp:    time.Now(),
	}

	if s.backupInfo != nil {
		ts, err := s.backupInfo.UpdatedAt(store.KeyBackup)
		if err != nil {
			log.Printf("[WARN] failed to get last backup time: %v", err)
		}
		if ts > 0 {
			resp.LastBackupAt = time.UnixMilli(ts)
		}
	}

	if uptime, err := host.Uptime(); err == nil {
		resp.HostUptime = uptime
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemUsedPct = vm.UsedPercent
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// searchTabs filters records by search term, case-insensitive match over
// title and url
func searchTabs(records []tabs.SavedTab, searchTerm string) []tabs.SavedTab {
	if searchTerm == "" {
		return records
	}

	searchLower := strings.ToLower(searchTerm)
	filtered := make([]tabs.SavedTab, 0, len(records))
	for _, t := range records {
		if strings.Contains(strings.ToLower(t.Title), searchLower) ||
			strings.Contains(strings.ToLower(t.URL), searchLower) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// paginate slices out one fixed-size page, 1-based. A page past the end
// yields an empty slice.
func paginate(records []tabs.SavedTab, page, pageSize int) (res []tabs.SavedTab, pages int) {
	pages = (len(records) + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start >= len(records) {
		return []tabs.SavedTab{}, pages
	}
	end := min(start+pageSize, len(records))
	return records[start:end], pages
}
