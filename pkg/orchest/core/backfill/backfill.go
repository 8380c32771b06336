// Package backfill launches one run per selected partition of a partition
// set, under a concurrency bound, and records the outcome as a backfill
// record. Partition launches are best effort unless fail-fast is requested.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/swell/pkg/orchest/core/config"
	"github.com/tigerroll/swell/pkg/orchest/core/controller"
	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/core/metrics"
	"github.com/tigerroll/swell/pkg/orchest/core/workspace"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// Request asks the launcher to backfill a partition set.
type Request struct {
	PartitionSetName string
	// PartitionNames selects the partitions to launch. Empty means every
	// partition of the set.
	PartitionNames []string
	// ReexecutionSteps restricts each launched run to a plan subset when set.
	ReexecutionSteps []string
	// FromFailure skips partitions whose most recent run for this partition set
	// succeeded.
	FromFailure bool
	// FailFast stops dispatching further partitions after the first launch
	// failure. Already-dispatched partitions are allowed to finish launching.
	FailFast bool
}

// Launcher launches backfills.
type Launcher struct {
	ws       *workspace.Workspace
	store    repository.Store
	ctrl     *controller.RunController
	recorder metrics.MetricRecorder
	cfg      *config.EngineConfig
}

// NewLauncher creates a backfill Launcher.
func NewLauncher(ws *workspace.Workspace, store repository.Store, ctrl *controller.RunController, recorder metrics.MetricRecorder, cfg *config.EngineConfig) *Launcher {
	return &Launcher{
		ws:       ws,
		store:    store,
		ctrl:     ctrl,
		recorder: recorder,
		cfg:      cfg,
	}
}

// partitionOutcome is the result of one partition's launch attempt.
type partitionOutcome struct {
	runID string
	err   error
}

// Launch resolves the requested partitions, persists a REQUESTED backfill
// record, launches one run per partition under the configured concurrency
// bound, and finalizes the record with the launch outcome. A partition whose
// launch fails never prevents the others from launching (unless fail-fast);
// the aggregated launch errors are returned alongside the finalized record.
func (l *Launcher) Launch(ctx context.Context, req Request) (*model.Backfill, error) {
	psDef, err := l.ws.PartitionSetByName(req.PartitionSetName)
	if err != nil {
		return nil, err
	}

	partitions, err := l.resolvePartitions(psDef, req.PartitionNames)
	if err != nil {
		return nil, err
	}
	if req.FromFailure {
		partitions, err = l.filterSucceeded(ctx, psDef, partitions)
		if err != nil {
			return nil, err
		}
	}

	names := make([]string, len(partitions))
	for i, p := range partitions {
		names[i] = p.Name
	}
	bf := model.NewBackfill(req.PartitionSetName, names, req.ReexecutionSteps, req.FromFailure)
	if err := l.store.SaveBackfill(ctx, bf); err != nil {
		return nil, exception.NewInternalError("backfill",
			fmt.Sprintf("Failed to persist backfill for partition set '%s'", req.PartitionSetName), err)
	}
	logger.Infof("Backfill: launching backfill '%s' over %d partitions of set '%s'.",
		bf.ID, len(partitions), req.PartitionSetName)

	outcomes := l.launchPartitions(ctx, psDef, bf, partitions, req)

	var launchErrs *multierror.Error
	launched := make([]string, 0, len(partitions))
	failed := 0
	for i, out := range outcomes {
		if out.err != nil {
			failed++
			launchErrs = multierror.Append(launchErrs,
				fmt.Errorf("partition %q: %w", partitions[i].Name, out.err))
			continue
		}
		if out.runID != "" {
			launched = append(launched, out.runID)
		}
	}

	bf.MarkAsCompleted(launched, failed)
	if err := l.store.UpdateBackfill(ctx, bf); err != nil {
		return bf, exception.NewInternalError("backfill",
			fmt.Sprintf("Failed to finalize backfill '%s'", bf.ID), err)
	}
	l.recorder.RecordBackfill(ctx, bf)

	if failed > 0 {
		logger.Warnf("Backfill: backfill '%s' finished with %d of %d partitions failed to launch.",
			bf.ID, failed, len(partitions))
	}
	return bf, launchErrs.ErrorOrNil()
}

// launchPartitions dispatches one launch per partition, bounded by the
// configured backfill concurrency. Results are indexed by partition so the
// outcome stays deterministic regardless of goroutine interleaving.
func (l *Launcher) launchPartitions(ctx context.Context, psDef *workspace.PartitionSetDefinition, bf *model.Backfill, partitions []model.Partition, req Request) []partitionOutcome {
	bound := l.cfg.BackfillConcurrency
	if bound < 1 {
		bound = 1
	}
	sem := make(chan struct{}, bound)
	outcomes := make([]partitionOutcome, len(partitions))

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	var wg sync.WaitGroup
	for i, p := range partitions {
		if req.FailFast && dispatchCtx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, p model.Partition) {
			defer wg.Done()
			defer func() { <-sem }()

			run, err := l.launchPartitionRun(ctx, psDef, bf, p, req.ReexecutionSteps)
			if err != nil {
				outcomes[i] = partitionOutcome{err: err}
				if req.FailFast {
					stopDispatch()
				}
				return
			}
			outcomes[i] = partitionOutcome{runID: run.ID}
		}(i, p)
	}
	wg.Wait()
	return outcomes
}

// launchPartitionRun launches the run of one partition, stamping the backfill,
// partition and partition-set tags over the partition's own tags.
func (l *Launcher) launchPartitionRun(ctx context.Context, psDef *workspace.PartitionSetDefinition, bf *model.Backfill, p model.Partition, stepKeys []string) (*model.Run, error) {
	tags := p.Tags.Copy()
	tags.Add(model.TagBackfillID, bf.ID)
	tags.Add(model.TagPartition, p.Name)
	tags.Add(model.TagPartitionSet, psDef.Name)

	return l.ctrl.Launch(ctx, controller.LaunchRequest{
		JobName:  psDef.JobName,
		StepKeys: stepKeys,
		Config:   p.Config,
		Tags:     tags,
	})
}

// resolvePartitions maps the requested names to partitions of the set, in the
// set's enumeration order. An unknown name is a not-found condition and no
// backfill record is created.
func (l *Launcher) resolvePartitions(psDef *workspace.PartitionSetDefinition, names []string) ([]model.Partition, error) {
	all := psDef.Partitions()
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]model.Partition, len(all))
	for _, p := range all {
		byName[p.Name] = p
	}
	selected := make([]model.Partition, 0, len(names))
	for _, name := range names {
		p, ok := byName[name]
		if !ok {
			return nil, exception.NewNotFoundError("backfill",
				fmt.Sprintf("Partition '%s' is not part of partition set '%s'", name, psDef.Name), nil)
		}
		selected = append(selected, p)
	}
	return selected, nil
}

// filterSucceeded drops partitions whose most recent run for this partition
// set succeeded. Partitions with no prior run are kept.
func (l *Launcher) filterSucceeded(ctx context.Context, psDef *workspace.PartitionSetDefinition, partitions []model.Partition) ([]model.Partition, error) {
	kept := make([]model.Partition, 0, len(partitions))
	for _, p := range partitions {
		filter := repository.RunsFilter{
			JobName: psDef.JobName,
			Tags: model.TagMap{
				model.TagPartitionSet: {psDef.Name},
				model.TagPartition:    {p.Name},
			},
		}
		runs, err := l.store.ListRuns(ctx, filter, "", 1)
		if err != nil {
			return nil, exception.NewInternalError("backfill",
				fmt.Sprintf("Failed to look up prior runs of partition '%s'", p.Name), err)
		}
		if len(runs) > 0 && runs[0].Status == model.RunStatusSuccess {
			continue
		}
		kept = append(kept, p)
	}
	return kept, nil
}

// Get loads a backfill record by id.
func (l *Launcher) Get(ctx context.Context, backfillID string) (*model.Backfill, error) {
	bf, err := l.store.FindBackfillByID(ctx, backfillID)
	if err != nil {
		if errors.Is(err, repository.ErrBackfillNotFound) {
			return nil, exception.NewNotFoundError("backfill",
				fmt.Sprintf("Backfill '%s' does not exist", backfillID), err)
		}
		return nil, exception.NewInternalError("backfill",
			fmt.Sprintf("Failed to look up backfill '%s'", backfillID), err)
	}
	return bf, nil
}
