// Package storage keeps campaign aggregate snapshots: the latest counters
// per campaign for dashboards, plus a per-day archive. The local backend
// writes JSON files; the AWS backend writes DynamoDB items and S3 objects.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/domain"
)

// ErrNoSnapshot is returned when a campaign has never been snapshotted.
var ErrNoSnapshot = errors.New("storage: no snapshot")

// SnapshotStore persists campaign snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s domain.CampaignSnapshot) error
	Latest(ctx context.Context, campaignID string) (domain.CampaignSnapshot, error)
	History(ctx context.Context, campaignID string, from, to time.Time) ([]domain.CampaignSnapshot, error)
	// ArchiveDay writes every campaign's last snapshot of day to long-term
	// storage and returns how many were archived.
	ArchiveDay(ctx context.Context, day time.Time) (int, error)
}

// New builds the store selected by cfg.Type ("local" or "aws").
func New(ctx context.Context, cfg config.StorageConfig) (SnapshotStore, error) {
	switch cfg.Type {
	case "aws":
		s, err := NewAWSStorage(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("initializing AWS storage: %w", err)
		}
		return s, nil
	case "local", "":
		return NewLocal(cfg.LocalPath)
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// Local keeps snapshots in memory and mirrors them to JSON files under
// path: latest/<campaign>.json and archive/<yyyy-mm-dd>/<campaign>.json.
// An empty path keeps everything in memory.
type Local struct {
	path string

	mu      sync.RWMutex
	history map[string][]domain.CampaignSnapshot
}

// NewLocal creates a local store and loads existing latest snapshots.
func NewLocal(path string) (*Local, error) {
	s := &Local{path: path, history: make(map[string][]domain.CampaignSnapshot)}
	if path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Join(path, "latest"), 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	if err := s.loadFromDisk(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Local) SaveSnapshot(_ context.Context, snap domain.CampaignSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[snap.CampaignID] = append(s.history[snap.CampaignID], snap)
	if s.path == "" {
		return nil
	}
	return s.saveToFile("latest", snap.CampaignID, snap)
}

func (s *Local) Latest(_ context.Context, campaignID string) (domain.CampaignSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[campaignID]
	if len(h) == 0 {
		return domain.CampaignSnapshot{}, ErrNoSnapshot
	}
	return h[len(h)-1], nil
}

func (s *Local) History(_ context.Context, campaignID string, from, to time.Time) ([]domain.CampaignSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CampaignSnapshot
	for _, snap := range s.history[campaignID] {
		if !snap.TakenAt.Before(from) && !snap.TakenAt.After(to) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *Local) ArchiveDay(_ context.Context, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	ids := make([]string, 0, len(s.history))
	for id := range s.history {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	n := 0
	for _, id := range ids {
		last, ok := lastIn(s.history[id], start, end)
		if !ok {
			continue
		}
		if s.path != "" {
			if err := s.saveToFile(filepath.Join("archive", start.Format("2006-01-02")), id, last); err != nil {
				return n, err
			}
		}
		n++
		// Keep only what is newer than the archived day in memory.
		kept := s.history[id][:0]
		for _, snap := range s.history[id] {
			if !snap.TakenAt.Before(end) {
				kept = append(kept, snap)
			}
		}
		if len(kept) == 0 {
			kept = append(kept, last)
		}
		s.history[id] = kept
	}
	return n, nil
}

func lastIn(h []domain.CampaignSnapshot, start, end time.Time) (domain.CampaignSnapshot, bool) {
	var last domain.CampaignSnapshot
	found := false
	for _, snap := range h {
		if !snap.TakenAt.Before(start) && snap.TakenAt.Before(end) && (!found || snap.TakenAt.After(last.TakenAt)) {
			last, found = snap, true
		}
	}
	return last, found
}

func (s *Local) saveToFile(category, key string, data interface{}) error {
	dir := filepath.Join(s.path, category)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	file, err := os.Create(filepath.Join(dir, filepath.Base(key)+".json"))
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (s *Local) loadFromDisk() error {
	dir := filepath.Join(s.path, "latest")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var snap domain.CampaignSnapshot
		if err := json.Unmarshal(data, &snap); err == nil && snap.CampaignID != "" {
			s.history[snap.CampaignID] = []domain.CampaignSnapshot{snap}
		}
	}
	return nil
}
