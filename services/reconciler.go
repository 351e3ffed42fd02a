package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricing-recovery/config"
	"pricing-recovery/models"
	"pricing-recovery/storage"
	"pricing-recovery/utils"
)

// DefaultExtendAfter is the file-pair index past which the accumulated
// missing dataset is appended to the candidate snapshot.
const DefaultExtendAfter = 1

// Options tune the engine. The zero value halts on read faults, carries the
// row index over between pairs and never reports progress.
type Options struct {
	// ResetRowIndex starts every new pair at row 0. When false the row index
	// reached in the previous pair is kept, so leading rows of a shorter
	// candidate are skipped.
	ResetRowIndex bool
	// ReadFaultPolicy is config.ReadFaultHalt or config.ReadFaultSkip.
	ReadFaultPolicy string
	// ExtendAfter overrides DefaultExtendAfter when positive.
	ExtendAfter int
	// Progress, when set, is called after every processed row.
	Progress func(models.Progress)
}

// Reconciler recovers offers missing between consecutive snapshots of one
// site. It is not safe for concurrent use, and two Reconcilers must never
// share a site's checkpoint or missing dataset.
type Reconciler struct {
	site        string
	fields      config.SiteFields
	checkpoints storage.CheckpointStore
	snapshots   storage.SnapshotLoader
	missing     storage.MissingStore
	validator   *Validator
	logger      *utils.Logger
	opts        Options
}

// NewReconciler wires an engine for site.
func NewReconciler(
	site string,
	fields config.SiteFields,
	checkpoints storage.CheckpointStore,
	snapshots storage.SnapshotLoader,
	missing storage.MissingStore,
	logger *utils.Logger,
	opts Options,
) *Reconciler {
	if opts.ExtendAfter <= 0 {
		opts.ExtendAfter = DefaultExtendAfter
	}
	if opts.ReadFaultPolicy == "" {
		opts.ReadFaultPolicy = config.ReadFaultHalt
	}
	return &Reconciler{
		site:        site,
		fields:      fields,
		checkpoints: checkpoints,
		snapshots:   snapshots,
		missing:     missing,
		validator:   NewValidator(fields),
		logger:      logger,
		opts:        opts,
	}
}

// Run processes file pairs from the checkpoint position until no pair is
// left. Running out of pairs is the normal end of a run and returns a nil
// error with Completed set. Cancelling ctx stops the run between rows, after
// the last handled row has been checkpointed.
func (r *Reconciler) Run(ctx context.Context) (*models.RunSummary, error) {
	start := time.Now()
	summary := &models.RunSummary{Site: r.site}
	defer func() { summary.Elapsed = time.Since(start) }()

	if err := r.missing.EnsureCreated(r.fields.Columns); err != nil {
		return summary, fmt.Errorf("reconciler: prepare missing dataset: %w", err)
	}

	cp, err := r.checkpoints.Load()
	if err != nil {
		return summary, fmt.Errorf("reconciler: load checkpoint: %w", err)
	}
	summary.StartPair, summary.StartRow = cp.FilePairIndex, cp.RowIndex

	r.logger.Info("[%s] Resuming at pair %d/%d, row %d",
		r.site, cp.FilePairIndex+1, pairCount(cp), cp.RowIndex)

	for !cp.Exhausted() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		cp, err = r.processPair(ctx, cp, summary)
		if err != nil {
			return summary, err
		}
	}

	summary.Completed = true
	r.logger.Info("[%s] Done: %d pairs, %d rows scanned, %d missing, %d matched, %d rejected",
		r.site, summary.PairsCompleted, summary.RowsScanned, summary.RowsMissing,
		summary.RowsMatched, summary.RowsRejected)
	return summary, nil
}

func (r *Reconciler) processPair(ctx context.Context, cp models.Checkpoint, summary *models.RunSummary) (models.Checkpoint, error) {
	refID, candID := cp.Pair()
	r.logger.Info("[%s] Loading pair %d/%d: %s -> %s", r.site, cp.FilePairIndex+1, pairCount(cp), refID, candID)

	ref, err := r.snapshots.Load(refID)
	if err != nil {
		return r.readFault(cp, summary, refID, err)
	}
	cand, err := r.snapshots.Load(candID)
	if err != nil {
		return r.readFault(cp, summary, candID, err)
	}

	if missing := r.validator.CheckHeaders(cand.Headers); len(missing) > 0 {
		r.logger.Warn("[%s] %s lacks columns %v, its rows will be rejected", r.site, candID, missing)
	}

	rows := cand.Rows
	if cp.FilePairIndex > r.opts.ExtendAfter {
		rows, err = r.extend(rows, cp.MissingBase)
		if err != nil {
			return r.readFault(cp, summary, "missing dataset", err)
		}
	}

	index := identityIndex(ref.Rows, r.fields.Identity)
	total := len(rows)

	for i := cp.RowIndex; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return cp, err
		}
		if err := r.reconcileRow(rows[i], index, summary); err != nil {
			return cp, err
		}

		cp = cp.WithRowIndex(i + 1)
		if err := r.checkpoints.Save(cp); err != nil {
			return cp, fmt.Errorf("reconciler: save checkpoint: %w", err)
		}

		if r.opts.Progress != nil {
			r.opts.Progress(models.Progress{
				Site:          r.site,
				FilePairIndex: cp.FilePairIndex,
				TotalPairs:    pairCount(cp),
				RowIndex:      i + 1,
				TotalRows:     total,
			})
		}
	}

	next, err := r.advance(cp)
	if err != nil {
		return cp, err
	}
	summary.PairsCompleted++
	return next, nil
}

// reconcileRow matches one candidate row against the reference index and
// appends it to the missing dataset when it is absent. Only sink failures
// are returned; rejected rows are logged and counted.
func (r *Reconciler) reconcileRow(row models.Offer, index map[string]struct{}, summary *models.RunSummary) error {
	summary.RowsScanned++

	if err := r.validator.Check(row); err != nil {
		summary.RowsRejected++
		r.logger.Warn("[%s] Row rejected: %v", r.site, err)
		return nil
	}

	if _, found := index[row.IdentityKey(r.fields.Identity)]; found {
		summary.RowsMatched++
		return nil
	}

	out, err := NormalizeMissing(row, r.fields)
	if err != nil {
		summary.RowsRejected++
		r.logger.Warn("[%s] Missing offer %q not normalised: %v", r.site, row.IdentityKey(r.fields.Identity), err)
		return nil
	}

	if err := r.missing.Append([]models.Offer{out}); err != nil {
		return fmt.Errorf("reconciler: append missing offer: %w", err)
	}
	summary.RowsMissing++
	return nil
}

// extend appends the first base rows of the missing dataset to rows. Rows
// added after the pair began are left out so a resumed pair sees the same
// candidate as the interrupted one.
func (r *Reconciler) extend(rows []models.Offer, base int) ([]models.Offer, error) {
	if base == 0 {
		return rows, nil
	}
	extra, err := r.missing.Load()
	if err != nil {
		if errors.Is(err, storage.ErrSnapshotAbsent) {
			return rows, nil
		}
		return nil, err
	}
	if base > extra.Len() {
		base = extra.Len()
	}

	out := make([]models.Offer, 0, len(rows)+base)
	out = append(out, rows...)
	return append(out, extra.Rows[:base]...), nil
}

// advance moves the checkpoint to the next pair and persists it.
func (r *Reconciler) advance(cp models.Checkpoint) (models.Checkpoint, error) {
	next := cp.WithFilePairIndex(cp.FilePairIndex + 1).WithMissingBase(r.missing.Rows())
	if r.opts.ResetRowIndex {
		next = next.WithRowIndex(0)
	}
	if err := r.checkpoints.Save(next); err != nil {
		return cp, fmt.Errorf("reconciler: save checkpoint: %w", err)
	}
	return next, nil
}

// readFault applies the configured policy to a snapshot that could not be
// loaded: halt returns the error with the checkpoint untouched, skip moves
// on to the next pair.
func (r *Reconciler) readFault(cp models.Checkpoint, summary *models.RunSummary, id string, err error) (models.Checkpoint, error) {
	if r.opts.ReadFaultPolicy != config.ReadFaultSkip {
		return cp, fmt.Errorf("reconciler: load %s: %w", id, err)
	}

	r.logger.Warn("[%s] Skipping pair %d, cannot load %s: %v", r.site, cp.FilePairIndex+1, id, err)
	next, aerr := r.advance(cp)
	if aerr != nil {
		return cp, aerr
	}
	summary.PairsSkipped++
	return next, nil
}

func identityIndex(rows []models.Offer, fields []string) map[string]struct{} {
	index := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		index[row.IdentityKey(fields)] = struct{}{}
	}
	return index
}

func pairCount(cp models.Checkpoint) int {
	if len(cp.Files) < 2 {
		return 0
	}
	return len(cp.Files) - 1
}
