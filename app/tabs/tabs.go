// Package tabs implements the saved-tab collection: save with URL dedup,
// retrieval sorted by save time, delete by id and clear-all. The whole
// collection lives under a single store key as a JSON blob, and every
// operation is one read-modify-write pair over an in-memory snapshot. There
// is no locking between operations; two interleaved read-modify-write cycles
// can lose an update. A single user driving one UI at a time makes this
// acceptable.
package tabs

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/oklog/ulid/v2"

	"github.com/tabvault/tabvault/app/store"
)

// DefaultTitle replaces an empty tab title at save time
const DefaultTitle = "(untitled)"

// SavedTab is a single persisted tab record. ID and SavedAt are assigned at
// save time and never change afterwards.
type SavedTab struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	FavIconURL string `json:"favIconUrl,omitempty"`
	SavedAt    int64  `json:"savedAt"` // unix millis
}

// Candidate is a tab submitted for saving, before id/timestamp assignment
type Candidate struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	FavIconURL string `json:"favIconUrl,omitempty"`
}

// Persistence defines the store operations the manager needs
type Persistence interface {
	Read(key string) ([]byte, bool, error)
	Write(key string, value []byte) error
	Remove(key string) error
}

// Manager implements saved-tab operations on top of the key-value store
type Manager struct {
	Store Persistence
	Now   func() time.Time // defaults to time.Now
}

// New makes a manager over the given store
func New(st Persistence) *Manager {
	return &Manager{Store: st}
}

// GetAll returns the full collection sorted by SavedAt descending, newest
// first. Records sharing the same SavedAt keep their stored order. A store
// that was never written yields an empty slice.
func (m *Manager) GetAll() ([]SavedTab, error) {
	res, err := m.load(store.KeyTabs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].SavedAt > res[j].SavedAt })
	return res, nil
}

// SaveBatch saves the candidates, skipping any whose URL exactly matches a
// record already in the store. The check runs against the stored collection
// only, not within the batch itself, so two same-URL candidates in one call
// both get persisted. All records of a batch share one SavedAt. Returns the
// number of records actually added.
func (m *Manager) SaveBatch(candidates []Candidate) (int, error) {
	existing, err := m.load(store.KeyTabs)
	if err != nil {
		return 0, err
	}

	stored := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		stored[t.URL] = struct{}{}
	}

	now := m.now()
	savedAt := now.UnixMilli()

	var added []SavedTab
	for _, c := range candidates {
		if c.URL == "" {
			log.Printf("[DEBUG] skipped candidate without url, title %q", c.Title)
			continue
		}
		if _, ok := stored[c.URL]; ok {
			log.Printf("[DEBUG] skipped duplicate url %s", c.URL)
			continue
		}
		title := c.Title
		if title == "" {
			title = DefaultTitle
		}
		added = append(added, SavedTab{
			ID:         newID(now),
			URL:        c.URL,
			Title:      title,
			FavIconURL: c.FavIconURL,
			SavedAt:    savedAt,
		})
	}

	if len(added) == 0 {
		return 0, nil
	}

	// new records go before the old ones, batch order preserved
	merged := append(added, existing...)
	if err := m.save(store.KeyTabs, merged); err != nil {
		return 0, err
	}
	log.Printf("[INFO] saved %d of %d candidate tabs, collection size %d", len(added), len(candidates), len(merged))
	return len(added), nil
}

// DeleteByID removes the record with the given id. Unknown id is a no-op.
func (m *Manager) DeleteByID(id string) error {
	existing, err := m.load(store.KeyTabs)
	if err != nil {
		return err
	}

	res := make([]SavedTab, 0, len(existing))
	for _, t := range existing {
		if t.ID != id {
			res = append(res, t)
		}
	}

	if len(res) == len(existing) {
		log.Printf("[DEBUG] delete of unknown id %s ignored", id)
		return nil
	}
	return m.save(store.KeyTabs, res)
}

// ClearAll removes the whole collection key from the store. The backup
// snapshot, if any, is left untouched.
func (m *Manager) ClearAll() error {
	return m.Store.Remove(store.KeyTabs)
}

// Snapshot returns the backup copy of the collection, empty if no backup
// was ever made.
func (m *Manager) Snapshot() ([]SavedTab, error) {
	return m.load(store.KeyBackup)
}

// Backup copies the live collection verbatim to the backup key. An empty
// live collection leaves the previous snapshot in place.
func (m *Manager) Backup() (int, error) {
	data, found, err := m.Store.Read(store.KeyTabs)
	if err != nil {
		return 0, fmt.Errorf("failed to read live collection: %w", err)
	}
	if !found || len(data) == 0 {
		return 0, nil
	}

	var current []SavedTab
	if err := json.Unmarshal(data, &current); err != nil {
		return 0, fmt.Errorf("failed to decode live collection: %w", err)
	}
	if len(current) == 0 {
		return 0, nil
	}

	if err := m.Store.Write(store.KeyBackup, data); err != nil {
		return 0, fmt.Errorf("failed to write backup snapshot: %w", err)
	}
	return len(current), nil
}

func (m *Manager) load(key string) ([]SavedTab, error) {
	data, found, err := m.Store.Read(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}
	if !found || len(data) == 0 {
		return []SavedTab{}, nil
	}
	var res []SavedTab
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}
	return res, nil
}

func (m *Manager) save(key string, tabs []SavedTab) error {
	data, err := json.Marshal(tabs)
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}
	if err := m.Store.Write(key, data); err != nil {
		return fmt.Errorf("failed to write collection: %w", err)
	}
	return nil
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// newID makes a ULID for a new record, time-prefixed and globally unique
func newID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
