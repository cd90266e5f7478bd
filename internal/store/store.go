package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"sales-insights/internal/config"
	"sales-insights/internal/errors"
	"sales-insights/internal/models"
)

// Store owns the canonical dataset and the columnar artifact backing it.
// Reads hand out immutable published snapshots; the upload path is the only
// writer and runs build-persist-publish as one mutually exclusive section, so
// in-flight readers keep their snapshot while a merge is underway.
type Store struct {
	cfg    config.DataConfig
	logger *slog.Logger

	mu      sync.RWMutex // guards current
	writeMu sync.Mutex   // serializes bootstrap and upload ingestion
	current *models.Dataset
}

func New(cfg config.DataConfig, logger *slog.Logger) *Store {
	return &Store{
		cfg:    cfg,
		logger: logger,
	}
}

// Bootstrap loads the canonical warehouse artifact, or falls back to the
// seed file, persisting it as the first canonical copy. It fails with
// STORAGE_UNAVAILABLE when neither source is readable.
func (s *Store) Bootstrap() (*models.Dataset, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.bootstrapLocked()
}

func (s *Store) bootstrapLocked() (*models.Dataset, error) {
	if err := s.ensureDirs(); err != nil {
		return nil, errors.StorageUnavailable(err, "cannot create data directories")
	}

	factPath := s.cfg.FactPath()
	if _, err := os.Stat(factPath); err == nil {
		rows, err := parquet.ReadFile[models.Row](factPath)
		if err != nil {
			return nil, errors.StorageUnavailable(err, "canonical store is unreadable")
		}
		ds := &models.Dataset{Rows: rows}
		ds.Sort()
		s.publish(ds)
		s.logger.Info("dataset loaded from canonical store", "path", factPath, "rows", len(rows))
		return ds, nil
	}

	seedPath := s.cfg.SeedPath()
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, errors.StorageUnavailable(err, "neither canonical store nor seed file is readable")
	}

	headers, records, err := decodeCSV(data)
	if err != nil {
		return nil, errors.StorageUnavailable(err, "seed file is not a valid delimited record set")
	}
	rows, err := harmonizeRecords(headers, records)
	if err != nil {
		return nil, errors.StorageUnavailable(err, "seed file violates the required schema")
	}

	ds := &models.Dataset{Rows: rows}
	ds.Sort()
	if err := s.writeFact(ds.Rows); err != nil {
		return nil, err
	}
	s.publish(ds)
	s.logger.Info("dataset bootstrapped from seed", "path", seedPath, "rows", len(rows))
	return ds, nil
}

// Current returns the most recently published snapshot, bootstrapping on
// first use.
func (s *Store) Current() (*models.Dataset, error) {
	s.mu.RLock()
	ds := s.current
	s.mu.RUnlock()
	if ds != nil {
		return ds, nil
	}
	return s.Bootstrap()
}

// Refresh re-executes the bootstrap load path to pick up out-of-band changes
// to the warehouse artifact.
func (s *Store) Refresh() (*models.Dataset, error) {
	return s.Bootstrap()
}

// AppendUpload harmonizes a raw delimited upload against the canonical
// schema, merges it after the existing dataset, persists the merged result
// and publishes it atomically. The raw bytes are retained verbatim in the
// upload directory for audit. On any failure the previously published
// dataset stays untouched.
func (s *Store) AppendUpload(data []byte, filename string) (*models.Dataset, int, error) {
	headers, records, err := decodeCSV(data)
	if err != nil {
		return nil, 0, err
	}
	added, err := harmonizeRecords(headers, records)
	if err != nil {
		return nil, 0, err
	}

	s.retainRawUpload(data, filename)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.snapshot()
	if cur == nil {
		if cur, err = s.bootstrapLocked(); err != nil {
			return nil, 0, err
		}
	}

	merged := &models.Dataset{Rows: append(slices.Clone(cur.Rows), added...)}
	merged.Sort()

	if err := s.writeFact(merged.Rows); err != nil {
		return nil, 0, err
	}
	s.publish(merged)

	s.logger.Info("upload ingested",
		"filename", filename,
		"rows_added", len(added),
		"total_rows", len(merged.Rows),
	)
	return merged, len(added), nil
}

func (s *Store) snapshot() *models.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) publish(ds *models.Dataset) {
	s.mu.Lock()
	s.current = ds
	s.mu.Unlock()
}

// writeFact persists rows with a write-new-then-rename swap so a crash
// mid-write never corrupts the previously good canonical copy.
func (s *Store) writeFact(rows []models.Row) error {
	factPath := s.cfg.FactPath()
	tmpPath := fmt.Sprintf("%s.tmp-%s", factPath, uuid.NewString()[:8])

	if err := parquet.WriteFile(tmpPath, rows); err != nil {
		os.Remove(tmpPath)
		return errors.StorageUnavailable(err, "cannot write canonical store")
	}
	if err := os.Rename(tmpPath, factPath); err != nil {
		os.Remove(tmpPath)
		return errors.StorageUnavailable(err, "cannot swap canonical store")
	}
	return nil
}

// retainRawUpload keeps the uploaded source file for audit and debugging.
// It is never read back at query time, so failure to retain only warns.
func (s *Store) retainRawUpload(data []byte, filename string) {
	name := fmt.Sprintf("%s-%s", uuid.NewString()[:8], filepath.Base(filename))
	path := filepath.Join(s.cfg.UploadDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Warn("failed to retain raw upload", "path", path, "error", err)
	}
}

func (s *Store) ensureDirs() error {
	if err := os.MkdirAll(s.cfg.WarehouseDir(), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(s.cfg.UploadDir(), 0o755)
}
