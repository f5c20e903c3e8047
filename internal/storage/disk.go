package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pcoutinho/bolide/internal/neo"
)

const snapshotFile = "snapshot.json"

// DiskStorage persists objects as JSON files and the whole catalog as a
// single snapshot, used as a fallback when the feed is unreachable.
type DiskStorage struct {
	dir     string
	metrics Metrics
	mu      sync.RWMutex
}

// snapshotEnvelope wraps the catalog with the moment it was taken so loads
// can refuse data that is too old to trust.
type snapshotEnvelope struct {
	SavedAt time.Time             `json:"saved_at"`
	Objects map[string]neo.Object `json:"objects"`
}

func NewDiskStorage(dir string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return &DiskStorage{dir: dir}, nil
}

func (d *DiskStorage) filePath(id string) string {
	return filepath.Join(d.dir, fmt.Sprintf("%s.json", id))
}

func (d *DiskStorage) Get(ctx context.Context, id string) (*neo.Object, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	data, err := os.ReadFile(d.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var object neo.Object
	if err := json.Unmarshal(data, &object); err != nil {
		return nil, err
	}

	d.metrics.Hits++
	return &object, nil
}

func (d *DiskStorage) Set(ctx context.Context, id string, object neo.Object, ttl time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := json.MarshalIndent(object, "", "  ")
	if err != nil {
		return err
	}

	file := d.filePath(id)
	_, statErr := os.Stat(file)

	if err := os.WriteFile(file, data, 0644); err != nil {
		d.metrics.SetsDropped++
		return err
	}

	if os.IsNotExist(statErr) {
		d.metrics.KeysAdded++
	} else {
		d.metrics.KeysUpdated++
	}

	return nil
}

func (d *DiskStorage) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.Remove(d.filePath(id)); err != nil {
		return err
	}

	d.metrics.KeysDeleted++
	return nil
}

func (d *DiskStorage) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		os.Remove(filepath.Join(d.dir, e.Name()))
	}

	return nil
}

func (d *DiskStorage) List(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if name == snapshotFile {
			continue
		}
		if filepath.Ext(name) == ".json" {
			ids = append(ids, name[:len(name)-5])
		}
	}
	return ids, nil
}

// SaveSnapshot writes the whole catalog atomically (write-then-rename, so a
// crash mid-write never leaves a truncated snapshot behind).
func (d *DiskStorage) SaveSnapshot(ctx context.Context, snapshot map[string]neo.Object) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	envelope := snapshotEnvelope{
		SavedAt: time.Now().UTC(),
		Objects: snapshot,
	}

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, "snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}

	file := filepath.Join(d.dir, snapshotFile)
	if err := os.Rename(tmp.Name(), file); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// LoadSnapshot reads the catalog back. A positive maxAge rejects snapshots
// saved longer ago than that with ErrStaleSnapshot.
func (d *DiskStorage) LoadSnapshot(ctx context.Context, maxAge time.Duration) (map[string]neo.Object, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	file := filepath.Join(d.dir, snapshotFile)

	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot not found: %w", err)
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var envelope snapshotEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	if maxAge > 0 && time.Since(envelope.SavedAt) > maxAge {
		return nil, fmt.Errorf("%w: saved at %s", ErrStaleSnapshot, envelope.SavedAt.Format(time.RFC3339))
	}

	return envelope.Objects, nil
}

func (d *DiskStorage) Metrics() Metrics { return d.metrics }

func (d *DiskStorage) Close() error { return nil }
