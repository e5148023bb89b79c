package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wp-user-migration/internal/repository"
)

const DefaultWorkers = 10

// ImportOptions son los parametros de una corrida.
type ImportOptions struct {
	Limit     int
	ChunkSize int
	Since     time.Time
	Workers   int
	FailFast  bool
}

// RecordFailure describe un registro que no se pudo migrar.
type RecordFailure struct {
	LegacyID int64  `json:"legacy_user_id"`
	Reason   string `json:"reason"`
}

// Summary acumula los resultados de la corrida.
type Summary struct {
	RunID     string          `json:"run_id"`
	Eligible  int             `json:"eligible"`
	Total     int             `json:"total"`
	Pages     int             `json:"pages"`
	Processed int             `json:"processed"`
	Created   int             `json:"created"`
	Updated   int             `json:"updated"`
	Unchanged int             `json:"unchanged"`
	NotFound  int             `json:"not_found"`
	Failed    int             `json:"failed"`
	Failures  []RecordFailure `json:"failures,omitempty"`
}

func (s *Summary) add(r RecordResult) {
	s.Processed++
	switch r.Outcome {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeNotFound:
		s.NotFound++
	case OutcomeFailed:
		s.Failed++
		reason := "unknown error"
		if r.Err != nil {
			reason = r.Err.Error()
		}
		s.Failures = append(s.Failures, RecordFailure{LegacyID: r.LegacyID, Reason: reason})
	}
}

// ErrRunAborted envuelve el primer fallo cuando FailFast corta la corrida.
var ErrRunAborted = errors.New("migration aborted")

type recordMigrator interface {
	MigrateUser(ctx context.Context, legacyID int64) RecordResult
}

// UserImporter pagina la tabla legacy y reparte cada pagina en un pool acotado de workers.
type UserImporter struct {
	logger   *zap.Logger
	source   repository.LegacyUserRepository
	migrator recordMigrator
	progress Progress
	runID    string
}

func NewUserImporter(logger *zap.Logger, source repository.LegacyUserRepository, migrator recordMigrator, progress Progress, runID string) *UserImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if progress == nil {
		progress = NopProgress{}
	}
	return &UserImporter{
		logger:   logger,
		source:   source,
		migrator: migrator,
		progress: progress,
		runID:    runID,
	}
}

// ImportUsers procesa como maximo opts.Limit usuarios con ultimo login >= opts.Since,
// en paginas de opts.ChunkSize. Cada pagina termina por completo antes de pedir la siguiente.
// Cancelar ctx detiene la corrida entre paginas; la pagina en curso siempre se completa.
func (i *UserImporter) ImportUsers(ctx context.Context, opts ImportOptions) (Summary, error) {
	summary := Summary{RunID: i.runID}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	i.logger.Info("start importing users",
		zap.Int("limit", opts.Limit),
		zap.Int("chunk_size", opts.ChunkSize),
		zap.Time("since", opts.Since),
		zap.Int("workers", workers),
	)

	count, err := i.source.CountSince(ctx, opts.Since)
	if err != nil {
		return summary, fmt.Errorf("count legacy users: %w", err)
	}
	summary.Eligible = count
	maxResults := min(count, opts.Limit)
	summary.Total = maxResults
	i.progress.Start(ctx, maxResults)

	if maxResults == 0 {
		i.logger.Info("no users to migrate", zap.Int("eligible", count))
		i.progress.Finish(ctx, summary)
		return summary, nil
	}

	chunkSize := min(opts.ChunkSize, opts.Limit)
	if chunkSize <= 0 {
		chunkSize = 1
	}

	for offset := 0; offset < maxResults; offset += chunkSize {
		if err := ctx.Err(); err != nil {
			i.progress.Finish(ctx, summary)
			return summary, fmt.Errorf("stopped before offset %d: %w", offset, err)
		}

		size := min(chunkSize, maxResults-offset)
		ids, err := i.source.ListIDsSince(ctx, opts.Since, offset, size)
		if err != nil {
			i.progress.Finish(ctx, summary)
			return summary, fmt.Errorf("list legacy users at offset %d: %w", offset, err)
		}
		if len(ids) == 0 {
			i.logger.Info("no users to migrate", zap.Int("offset", offset))
			break
		}

		results := i.runPage(ctx, ids, workers)
		summary.Pages++
		var firstFailure *RecordResult
		for idx, r := range results {
			summary.add(r)
			if r.Outcome == OutcomeFailed {
				i.logger.Error("user migration failed", zap.Int64("legacy_user_id", r.LegacyID), zap.Error(r.Err))
				if firstFailure == nil {
					firstFailure = &results[idx]
				}
			}
		}
		i.progress.Advance(ctx, results)
		i.logger.Info("page completed",
			zap.Int("page", summary.Pages),
			zap.Int("offset", offset),
			zap.Int("size", len(ids)),
			zap.Int("processed", summary.Processed),
		)

		if opts.FailFast && firstFailure != nil {
			i.progress.Finish(ctx, summary)
			return summary, fmt.Errorf("%w: legacy user %d: %w", ErrRunAborted, firstFailure.LegacyID, firstFailure.Err)
		}
		if len(ids) < size {
			break
		}
	}

	i.logger.Info("import finished",
		zap.Int("processed", summary.Processed),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("not_found", summary.NotFound),
		zap.Int("failed", summary.Failed),
	)
	i.progress.Finish(ctx, summary)
	return summary, nil
}

// runPage migra los ids de una pagina con como mucho workers en paralelo y espera a todos.
func (i *UserImporter) runPage(ctx context.Context, ids []int64, workers int) []RecordResult {
	// La pagina en curso no se cancela: cada worker termina su registro.
	workCtx := context.WithoutCancel(ctx)
	results := make([]RecordResult, len(ids))

	var g errgroup.Group
	g.SetLimit(workers)
	for idx, id := range ids {
		idx, id := idx, id
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					results[idx] = failed(id, 0, fmt.Errorf("panic: %v", p))
				}
			}()
			results[idx] = i.migrator.MigrateUser(workCtx, id)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
