package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/config/params"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
	"github.com/pkg/errors"
)

// snapshotVersion is the schema version written into every snapshot header.
const snapshotVersion = 1

type snapshot struct {
	Version   int                                `json:"version"`
	SavedAt   time.Time                          `json:"savedAt"`
	Orders    map[string]*types.Order            `json:"orders"`
	Batches   map[string]*types.Batch            `json:"batches"`
	OpenIndex map[string]string                  `json:"openBatchIndex"`
	Processed []string                           `json:"processedSignatures"`
	Unmatched map[string]*types.UnmatchedDeposit `json:"unmatchedDeposits"`
	Cursor    string                             `json:"depositCursor"`
}

// Save writes the full catalog to path as a single versioned JSON document.
// The write is atomic: a temp file in the same directory is renamed over the
// target.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	snap := snapshot{
		Version:   snapshotVersion,
		SavedAt:   time.Now(),
		Orders:    s.orders,
		Batches:   s.batches,
		OpenIndex: make(map[string]string, len(s.open)),
		Processed: make([]string, 0, len(s.processed)),
		Unmatched: s.unmatched,
		Cursor:    s.cursor,
	}
	for k, v := range s.open {
		snap.OpenIndex[k.String()] = v
	}
	for sig := range s.processed {
		snap.Processed = append(snap.Processed, sig)
	}
	raw, err := json.Marshal(&snap)
	s.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "could not marshal snapshot")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "could not create snapshot temp file")
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "could not write snapshot")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "could not close snapshot")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "could not publish snapshot")
	}
	return nil
}

// Load restores the catalog from a snapshot. A missing file is not an error.
// The open-batch index is rebuilt from the restored batches so restart
// recovery never trusts a stale index.
func (s *Store) Load(path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "could not read snapshot %s", path)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return errors.Wrapf(err, "could not parse snapshot %s", path)
	}
	if snap.Version != snapshotVersion {
		return errors.Errorf("snapshot %s has schema version %d, want %d", path, snap.Version, snapshotVersion)
	}

	maxSize := params.Relay().MaxBatchSize

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = snap.Orders
	s.batches = snap.Batches
	s.unmatched = snap.Unmatched
	s.cursor = snap.Cursor
	if s.orders == nil {
		s.orders = make(map[string]*types.Order)
	}
	if s.batches == nil {
		s.batches = make(map[string]*types.Batch)
	}
	if s.unmatched == nil {
		s.unmatched = make(map[string]*types.UnmatchedDeposit)
	}
	s.processed = make(map[string]bool, len(snap.Processed))
	for _, sig := range snap.Processed {
		s.processed[sig] = true
	}
	s.batchLocks = make(map[string]*sync.Mutex)

	// Rebuild the open index: one collecting, under-capacity batch per key.
	s.open = make(map[openKey]string)
	for id, b := range s.batches {
		if b.Status != types.BatchCollecting || len(b.OrderIDs) >= maxSize {
			continue
		}
		key := openKey{market: b.MarketID, side: b.Side, encrypted: b.IsEncrypted}
		if prev, ok := s.open[key]; ok {
			log.WithFields(map[string]interface{}{
				"key":     key.String(),
				"kept":    prev,
				"dropped": id,
			}).Warn("Snapshot held two open batches for one key, closing the newer one")
			b.Status = types.BatchReady
			continue
		}
		s.open[key] = id
	}

	// Sanity-check order/batch cross references.
	for id, o := range s.orders {
		b, ok := s.batches[o.BatchID]
		if !ok || !containsString(b.OrderIDs, id) {
			return errors.Errorf("snapshot order %s references batch %s inconsistently", id, o.BatchID)
		}
	}

	openBatchesGauge.Set(float64(len(s.open)))
	unmatchedDepositsGauge.Set(float64(len(s.unmatched)))
	log.WithFields(map[string]interface{}{
		"orders":  len(s.orders),
		"batches": len(s.batches),
		"savedAt": snap.SavedAt,
	}).Info("Restored relay state from snapshot")
	return nil
}

func containsString(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
