package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricing-recovery/config"
	"pricing-recovery/models"
	"pricing-recovery/storage"
	"pricing-recovery/utils"
)

type fileList []string

func (f fileList) Snapshots(string) ([]string, error) {
	return append([]string(nil), f...), nil
}

// offerRow returns a maeva row in column order.
func offerRow(id, price string) []string {
	return []string{
		"1", "2024-01-01", "2024-01-10", "2024-01-12", "100", price,
		"T2", id, "Residence " + id, "Nice", "3", "1", "K1", "Station",
	}
}

func writeSnapshot(t *testing.T, dir, date string, ids ...string) string {
	t.Helper()
	path := filepath.Join(dir, "data", date, "maeva_offers.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	var b strings.Builder
	b.WriteString(strings.Join(maevaColumns(t), ",") + "\n")
	for _, id := range ids {
		b.WriteString(strings.Join(offerRow(id, "90"), ",") + "\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func maevaColumns(t *testing.T) []string {
	return maevaFields(t).Columns
}

type harness struct {
	store   *storage.FileCheckpointStore
	missing *storage.MissingCSV
	engine  *Reconciler
}

func newHarness(t *testing.T, dir string, files []string, opts Options) *harness {
	t.Helper()
	store := storage.NewFileCheckpointStore(filepath.Join(dir, "logs", "maeva", "log.json"), "maeva", fileList(files), false)
	missing := storage.NewMissingCSV(filepath.Join(dir, "missing", "maeva", "missing_maeva.csv"), utils.NewWriterLogger(io.Discard))
	engine := NewReconciler("maeva", maevaFields(t), store, storage.CSVSnapshotLoader{}, missing,
		utils.NewWriterLogger(io.Discard), opts)
	return &harness{store: store, missing: missing, engine: engine}
}

func (h *harness) missingRows(t *testing.T) []models.Offer {
	t.Helper()
	snap, err := h.missing.Load()
	require.NoError(t, err)
	return snap.Rows
}

func TestRunRecoversMissingOffers(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeSnapshot(t, dir, "01-01-2024", "1", "2"),
		writeSnapshot(t, dir, "02-01-2024", "1", "3"),
	}
	h := newHarness(t, dir, files, Options{})

	summary, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Completed)
	assert.Equal(t, 1, summary.PairsCompleted)
	assert.Equal(t, 2, summary.RowsScanned)
	assert.Equal(t, 1, summary.RowsMatched)
	assert.Equal(t, 1, summary.RowsMissing)

	data, err := os.ReadFile(h.missing.Path())
	require.NoError(t, err)
	want := strings.Join(maevaColumns(t), ",") + "\n" +
		"1,04/01/2024,13/01/2024,2024-01-12,100,90,T2,3,Residence 3,Nice,4,1,K1,Station\n"
	assert.Equal(t, want, string(data))

	cp, err := h.store.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, cp.FilePairIndex)
	assert.Equal(t, 2, cp.RowIndex)
	assert.Equal(t, 1, cp.MissingBase)
}

func TestMatchIgnoresValueFields(t *testing.T) {
	dir := t.TempDir()
	ref := writeSnapshot(t, dir, "01-01-2024", "1")

	// same identity, every value field different
	candPath := filepath.Join(dir, "data", "02-01-2024", "maeva_offers.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(candPath), 0o755))
	row := []string{"9", "N/A", "2025-06-01", "2025-06-08", "1", "2", "T2", "1", "Residence 1", "Nice", "x", "7", "K1", "Station"}
	content := strings.Join(maevaColumns(t), ",") + "\n" + strings.Join(row, ",") + "\n"
	require.NoError(t, os.WriteFile(candPath, []byte(content), 0o644))

	h := newHarness(t, dir, []string{ref, candPath}, Options{})
	summary, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RowsMatched)
	assert.Empty(t, h.missingRows(t))
}

type countingLoader struct {
	storage.CSVSnapshotLoader
	loads int
}

func (c *countingLoader) Load(id string) (*models.Snapshot, error) {
	c.loads++
	return c.CSVSnapshotLoader.Load(id)
}

func TestRunPerformsNMinusOnePairs(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for i := 1; i <= 4; i++ {
		files = append(files, writeSnapshot(t, dir, fmt.Sprintf("0%d-01-2024", i), "1", "2"))
	}

	h := newHarness(t, dir, files, Options{ResetRowIndex: true})
	loader := &countingLoader{}
	h.engine.snapshots = loader

	summary, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Completed)
	assert.Equal(t, 3, summary.PairsCompleted)
	assert.Equal(t, 6, loader.loads)
}

func TestRowIndexCarriesOverBetweenPairs(t *testing.T) {
	build := func(t *testing.T) (string, []string) {
		dir := t.TempDir()
		return dir, []string{
			writeSnapshot(t, dir, "01-01-2024", "1"),
			writeSnapshot(t, dir, "02-01-2024", "1", "2", "3"),
			writeSnapshot(t, dir, "03-01-2024", "9", "8"),
		}
	}

	t.Run("carry over", func(t *testing.T) {
		dir, files := build(t)
		h := newHarness(t, dir, files, Options{})
		summary, err := h.engine.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, summary.PairsCompleted)
		assert.Equal(t, 3, summary.RowsScanned)
		assert.Len(t, h.missingRows(t), 2)
	})

	t.Run("reset", func(t *testing.T) {
		dir, files := build(t)
		h := newHarness(t, dir, files, Options{ResetRowIndex: true})
		summary, err := h.engine.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, summary.RowsScanned)
		assert.Len(t, h.missingRows(t), 4)
	})
}

func TestCandidateExtendedWithMissingDataset(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeSnapshot(t, dir, "01-01-2024", "1"),
		writeSnapshot(t, dir, "02-01-2024", "1", "2"),
		writeSnapshot(t, dir, "03-01-2024", "1"),
		writeSnapshot(t, dir, "04-01-2024", "1"),
	}
	h := newHarness(t, dir, files, Options{ResetRowIndex: true})

	summary, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	// pair 3 scans its own row plus the offer recovered in pair 1
	assert.Equal(t, 2+1+2, summary.RowsScanned)

	rows := h.missingRows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[1]["n_offre"])
	assert.Equal(t, "04/01/2024", rows[1]["date_price"])
	assert.Equal(t, "13/01/2024", rows[1]["date_debut"])
	assert.Equal(t, "5", rows[1]["date_debut-jour"])
}

type recordingStore struct {
	storage.CheckpointStore
	saves []models.Checkpoint
}

func (r *recordingStore) Save(cp models.Checkpoint) error {
	r.saves = append(r.saves, cp)
	return r.CheckpointStore.Save(cp)
}

func TestCheckpointAdvancesOneRowAtATime(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeSnapshot(t, dir, "01-01-2024", "1"),
		writeSnapshot(t, dir, "02-01-2024", "1", "2", "3"),
		writeSnapshot(t, dir, "03-01-2024", "4", "5", "6", "7"),
	}
	h := newHarness(t, dir, files, Options{})
	rec := &recordingStore{CheckpointStore: h.store}
	h.engine.checkpoints = rec

	_, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, rec.saves)

	for i := 1; i < len(rec.saves); i++ {
		prev, cur := rec.saves[i-1], rec.saves[i]
		if cur.FilePairIndex == prev.FilePairIndex {
			assert.Equal(t, prev.RowIndex+1, cur.RowIndex, "save %d", i)
		} else {
			assert.Equal(t, prev.FilePairIndex+1, cur.FilePairIndex, "save %d", i)
			assert.Equal(t, prev.RowIndex, cur.RowIndex, "save %d", i)
		}
	}
}

func TestRestartResumesWithSameOutput(t *testing.T) {
	build := func(t *testing.T) (string, []string) {
		dir := t.TempDir()
		return dir, []string{
			writeSnapshot(t, dir, "01-01-2024", "1", "2"),
			writeSnapshot(t, dir, "02-01-2024", "1", "3", "4"),
			writeSnapshot(t, dir, "03-01-2024", "3", "5", "6", "7"),
			writeSnapshot(t, dir, "04-01-2024", "5", "8", "9", "10", "11"),
		}
	}

	baseDir, baseFiles := build(t)
	processed := 0
	base := newHarness(t, baseDir, baseFiles, Options{Progress: func(models.Progress) { processed++ }})
	_, err := base.engine.Run(context.Background())
	require.NoError(t, err)
	want, err := os.ReadFile(base.missing.Path())
	require.NoError(t, err)
	require.Greater(t, processed, 3)

	for k := 1; k < processed; k++ {
		t.Run(fmt.Sprintf("interrupt after row %d", k), func(t *testing.T) {
			dir, files := build(t)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			seen := 0
			first := newHarness(t, dir, files, Options{Progress: func(models.Progress) {
				seen++
				if seen == k {
					cancel()
				}
			}})
			summary, err := first.engine.Run(ctx)
			require.ErrorIs(t, err, context.Canceled)
			assert.False(t, summary.Completed)

			second := newHarness(t, dir, files, Options{})
			summary, err = second.engine.Run(context.Background())
			require.NoError(t, err)
			assert.True(t, summary.Completed)

			got, err := os.ReadFile(second.missing.Path())
			require.NoError(t, err)
			assert.Equal(t, string(want), string(got))
		})
	}
}

func TestRerunOfCompletedCheckpointIsNoop(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeSnapshot(t, dir, "01-01-2024", "1"),
		writeSnapshot(t, dir, "02-01-2024", "2"),
	}

	_, err := newHarness(t, dir, files, Options{}).engine.Run(context.Background())
	require.NoError(t, err)
	h := newHarness(t, dir, files, Options{})
	before, err := os.ReadFile(h.missing.Path())
	require.NoError(t, err)

	summary, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Completed)
	assert.Zero(t, summary.RowsScanned)

	after, err := os.ReadFile(h.missing.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSingleSnapshotCompletesImmediately(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir, []string{writeSnapshot(t, dir, "01-01-2024", "1")}, Options{})

	summary, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Completed)
	assert.Zero(t, summary.PairsCompleted)
}

func TestReadFaultPolicies(t *testing.T) {
	build := func(t *testing.T) (string, []string) {
		dir := t.TempDir()
		return dir, []string{
			writeSnapshot(t, dir, "01-01-2024", "1"),
			filepath.Join(dir, "data", "02-01-2024", "maeva_gone.csv"),
			writeSnapshot(t, dir, "03-01-2024", "2"),
		}
	}

	t.Run("halt", func(t *testing.T) {
		dir, files := build(t)
		h := newHarness(t, dir, files, Options{ReadFaultPolicy: config.ReadFaultHalt})
		summary, err := h.engine.Run(context.Background())
		assert.ErrorIs(t, err, storage.ErrSnapshotAbsent)
		assert.False(t, summary.Completed)

		cp, err := h.store.Peek()
		require.NoError(t, err)
		assert.Equal(t, 0, cp.FilePairIndex)
	})

	t.Run("skip", func(t *testing.T) {
		dir, files := build(t)
		h := newHarness(t, dir, files, Options{ReadFaultPolicy: config.ReadFaultSkip})
		summary, err := h.engine.Run(context.Background())
		require.NoError(t, err)
		assert.True(t, summary.Completed)
		assert.Equal(t, 2, summary.PairsSkipped)
		assert.Zero(t, summary.PairsCompleted)
	})
}

func TestUnparseableMissingRowIsRejected(t *testing.T) {
	dir := t.TempDir()
	ref := writeSnapshot(t, dir, "01-01-2024", "1")
	candPath := filepath.Join(dir, "data", "02-01-2024", "maeva_offers.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(candPath), 0o755))
	bad := offerRow("2", "90")
	bad[3] = "N/A"
	content := strings.Join(maevaColumns(t), ",") + "\n" +
		strings.Join(bad, ",") + "\n" +
		strings.Join(offerRow("3", "90"), ",") + "\n"
	require.NoError(t, os.WriteFile(candPath, []byte(content), 0o644))

	h := newHarness(t, dir, []string{ref, candPath}, Options{})
	summary, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RowsRejected)
	assert.Equal(t, 1, summary.RowsMissing)

	rows := h.missingRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "3", rows[0]["n_offre"])
}

func TestStaleCheckpointIsReported(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeSnapshot(t, dir, "01-01-2024", "1"),
		writeSnapshot(t, dir, "02-01-2024", "1"),
	}
	_, err := newHarness(t, dir, files, Options{}).engine.Run(context.Background())
	require.NoError(t, err)

	files = append(files, writeSnapshot(t, dir, "03-01-2024", "1"))
	_, err = newHarness(t, dir, files, Options{}).engine.Run(context.Background())
	assert.True(t, errors.Is(err, storage.ErrStaleCheckpoint))
}
