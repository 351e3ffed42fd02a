package storage

import (
	"pricing-recovery/models"
	"pricing-recovery/utils"
)

// SnapshotLoader loads a snapshot table by its identifier.
type SnapshotLoader interface {
	Load(id string) (*models.Snapshot, error)
}

// SnapshotSource lists a site's snapshot identifiers in ascending date order.
type SnapshotSource interface {
	Snapshots(site string) ([]string, error)
}

// CheckpointStore persists one site's reconciliation checkpoint.
type CheckpointStore interface {
	Load() (models.Checkpoint, error)
	Save(cp models.Checkpoint) error
}

// OfferSink is any destination recovered offers are appended to.
type OfferSink interface {
	EnsureCreated(columns []string) error
	Append(rows []models.Offer) error
	Close() error
}

// MissingStore is the authoritative missing dataset: a sink that can also be
// read back for candidate extension.
type MissingStore interface {
	OfferSink
	Load() (*models.Snapshot, error)
	Rows() int
}

// MultiSink writes to a primary MissingStore and mirrors every append to
// secondary sinks. Mirror failures are logged and never fail the primary
// write, since the primary file is what checkpoints are consistent with.
type MultiSink struct {
	primary MissingStore
	mirrors []OfferSink
	logger  *utils.Logger
}

// NewMultiSink wraps primary with the given mirrors.
func NewMultiSink(logger *utils.Logger, primary MissingStore, mirrors ...OfferSink) *MultiSink {
	return &MultiSink{primary: primary, mirrors: mirrors, logger: logger}
}

func (m *MultiSink) EnsureCreated(columns []string) error {
	if err := m.primary.EnsureCreated(columns); err != nil {
		return err
	}
	for _, s := range m.mirrors {
		if err := s.EnsureCreated(columns); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) Append(rows []models.Offer) error {
	if err := m.primary.Append(rows); err != nil {
		return err
	}
	for _, s := range m.mirrors {
		if err := s.Append(rows); err != nil {
			m.logger.Warn("[sink] Mirror append failed (%d rows): %v", len(rows), err)
		}
	}
	return nil
}

func (m *MultiSink) Load() (*models.Snapshot, error) { return m.primary.Load() }

func (m *MultiSink) Rows() int { return m.primary.Rows() }

// Close closes every sink and returns the first error.
func (m *MultiSink) Close() error {
	err := m.primary.Close()
	for _, s := range m.mirrors {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
