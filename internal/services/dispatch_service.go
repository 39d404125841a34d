package services

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/foundry/services/scheduling/config"
	"example.com/foundry/services/scheduling/internal/cache"
	"example.com/foundry/services/scheduling/internal/dispatch"
	"example.com/foundry/services/scheduling/internal/models"
	"example.com/foundry/services/scheduling/internal/repositories"
	"example.com/foundry/services/scheduling/internal/tracing"
)

const programCacheTTL = 10 * time.Minute

// ProgramView is the cached read model of one process's dispatch program.
type ProgramView struct {
	ProcessID uint                  `json:"process_id"`
	Rows      []models.ProgramRow   `json:"rows"`
	Errors    []models.ProgramError `json:"errors"`
}

// DispatchService handles dispatch program generation and the pin overlay
type DispatchService struct {
	db          *gorm.DB // Write database
	readOnlyDB  *gorm.DB // Read-only database
	jobRepo     *repositories.JobRepository
	partRepo    *repositories.PartRepository
	lineRepo    *repositories.LineRepository
	pinRepo     *repositories.PinRepository
	programRepo *repositories.ProgramRepository
	cache       *cache.RedisCache
	tracer      tracing.Tracer
	weights     dispatch.Weights
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	cache *cache.RedisCache,
	tracer tracing.Tracer,
	cfg config.DispatchConfig,
) *DispatchService {
	weights := dispatch.Weights{
		Test:   cfg.TestWeight,
		Manual: cfg.ManualWeight,
		Normal: cfg.NormalWeight,
	}
	if weights.Test <= 0 || weights.Manual <= 0 || weights.Normal <= 0 {
		weights = dispatch.DefaultWeights()
	}

	return &DispatchService{
		db:          db,
		readOnlyDB:  readOnlyDB,
		jobRepo:     repositories.NewJobRepository(db, readOnlyDB),
		partRepo:    repositories.NewPartRepository(db, readOnlyDB),
		lineRepo:    repositories.NewLineRepository(db, readOnlyDB),
		pinRepo:     repositories.NewPinRepository(db, readOnlyDB),
		programRepo: repositories.NewProgramRepository(db, readOnlyDB),
		cache:       cache,
		tracer:      tracer,
		weights:     weights,
	}
}

// GenerateProgram runs a full dispatch pass for a process: loads the live
// snapshot, assigns every free job to its least-loaded eligible line, merges
// the pin overlay back on top and persists the result wholesale. Pins whose
// order-position vanished from the snapshot are deleted as part of the pass.
func (s *DispatchService) GenerateProgram(ctx context.Context, processID uint) error {
	txn := s.tracer.StartTransaction("generate-dispatch-program")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "process_id", processID)

	loadSpan := s.tracer.StartSpan("load-snapshot", txn)
	lines, err := s.lineRepo.ListByProcess(ctx, processID)
	if err != nil {
		loadSpan.End()
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load lines")
	}
	if len(lines) == 0 {
		loadSpan.End()
		return ErrNoLinesConfigured
	}

	jobs, err := s.jobRepo.ListByProcess(ctx, processID)
	if err != nil {
		loadSpan.End()
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load jobs")
	}

	parts, err := s.partRepo.MapByMaterial(ctx)
	if err != nil {
		loadSpan.End()
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load parts")
	}

	pins, err := s.pinRepo.ListByProcess(ctx, processID)
	if err != nil {
		loadSpan.End()
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load pins")
	}
	loadSpan.End()

	genSpan := s.tracer.StartSpan("generate", txn)
	orders := dispatch.StockIndex(jobs)

	// The pinned seed fixes each pin's quantity to its line up front so the
	// balancer accounts for it, and the pinned jobs themselves are excluded
	// from the free pass.
	seed, _, _ := dispatch.ApplyPins(dispatch.NewProgram(lines), nil, orders, pins, parts, s.weights)
	pinnedKeys := make(map[dispatch.Key]bool, len(pins))
	for _, pin := range pins {
		pinnedKeys[dispatch.Key{Pedido: pin.Pedido, Posicion: pin.Posicion, IsTest: pin.IsTest}] = true
	}
	free := make([]models.Job, 0, len(jobs))
	for _, job := range jobs {
		if pinnedKeys[dispatch.Key{Pedido: job.Pedido, Posicion: job.Posicion, IsTest: job.IsTest}] {
			continue
		}
		free = append(free, job)
	}

	program, unplaced := dispatch.Generate(lines, free, parts, seed, s.weights)
	merged, mergedErrs, stale := dispatch.ApplyPins(program, unplaced, orders, pins, parts, s.weights)
	genSpan.End()

	if err := s.persistProgram(ctx, txn, processID, merged, mergedErrs, stale); err != nil {
		return err
	}

	log.Info().
		Uint("process_id", processID).
		Int("jobs", len(jobs)).
		Int("unplaced", len(mergedErrs)).
		Int("stale_pins", len(stale)).
		Msg("Dispatch program generated")

	return nil
}

// ReapplyPins refreshes the persisted program after a pin change without a
// full regeneration pass: the stored rows are reloaded and only the pin
// overlay is recomputed against the live snapshot.
func (s *DispatchService) ReapplyPins(ctx context.Context, processID uint) error {
	txn := s.tracer.StartTransaction("reapply-pins")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "process_id", processID)

	lines, err := s.lineRepo.ListByProcess(ctx, processID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load lines")
	}
	if len(lines) == 0 {
		return ErrNoLinesConfigured
	}

	rows, errRows, err := s.programRepo.Load(ctx, processID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load stored program")
	}

	jobs, err := s.jobRepo.ListByProcess(ctx, processID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load jobs")
	}

	parts, err := s.partRepo.MapByMaterial(ctx)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load parts")
	}

	pins, err := s.pinRepo.ListByProcess(ctx, processID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load pins")
	}

	program, unplaced := dispatch.FromRows(lines, rows, errRows)
	merged, mergedErrs, stale := dispatch.ApplyPins(program, unplaced, dispatch.StockIndex(jobs), pins, parts, s.weights)

	if err := s.persistProgram(ctx, txn, processID, merged, mergedErrs, stale); err != nil {
		return err
	}

	log.Info().
		Uint("process_id", processID).
		Int("pins", len(pins)).
		Int("stale_pins", len(stale)).
		Msg("Pin overlay reapplied")

	return nil
}

// persistProgram deletes stale pins and swaps the stored rows wholesale in
// one transaction, then drops the cached read model. A pin and its rows must
// disappear together, so neither write may commit without the other.
func (s *DispatchService) persistProgram(ctx context.Context, txn *newrelic.Transaction, processID uint, program dispatch.Program, unplaced []dispatch.Unplaced, stale []models.Pin) error {
	span := s.tracer.StartSpan("persist-program", txn)
	defer span.End()

	rows, errRows := dispatch.Flatten(processID, program, unplaced)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(stale) > 0 {
			if err := s.pinRepo.WithTx(tx).DeleteAll(ctx, stale); err != nil {
				return errors.Wrap(err, "failed to delete stale pins")
			}
		}
		return errors.Wrap(s.programRepo.WithTx(tx).Replace(ctx, processID, rows, errRows), "failed to persist program")
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	if err := s.cache.Delete(ctx, cache.ProgramCacheKey(processID)); err != nil {
		log.Debug().Err(err).Uint("process_id", processID).Msg("could not invalidate program cache")
	}

	return nil
}

// GetProgram returns the persisted program for a process, served from cache
// when possible.
func (s *DispatchService) GetProgram(ctx context.Context, processID uint) (*ProgramView, error) {
	key := cache.ProgramCacheKey(processID)

	var view ProgramView
	if err := s.cache.Get(ctx, key, &view); err == nil {
		return &view, nil
	}

	rows, errRows, err := s.programRepo.Load(ctx, processID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load stored program")
	}

	view = ProgramView{ProcessID: processID, Rows: rows, Errors: errRows}
	if err := s.cache.Set(ctx, key, view, programCacheTTL); err != nil {
		log.Debug().Err(err).Uint("process_id", processID).Msg("could not cache program")
	}

	return &view, nil
}

// CreatePin pins an order-position (or a split of it) to a line and refreshes
// the stored program. A zero split id is assigned the next free one for the
// key; a zero quantity means "absorb the remainder".
func (s *DispatchService) CreatePin(ctx context.Context, pin *models.Pin) error {
	lines, err := s.lineRepo.ListByProcess(ctx, pin.ProcessID)
	if err != nil {
		return errors.Wrap(err, "failed to load lines")
	}
	known := false
	for _, line := range lines {
		if line.ID == pin.LineID {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownLine
	}

	if pin.MarkedAt.IsZero() {
		pin.MarkedAt = time.Now().UTC()
	}
	if pin.SplitID <= 0 {
		existing, err := s.pinRepo.ListByProcess(ctx, pin.ProcessID)
		if err != nil {
			return errors.Wrap(err, "failed to load pins")
		}
		next := 1
		for _, p := range existing {
			if p.Pedido == pin.Pedido && p.Posicion == pin.Posicion && p.IsTest == pin.IsTest && p.SplitID >= next {
				next = p.SplitID + 1
			}
		}
		pin.SplitID = next
	}

	if err := s.pinRepo.Create(ctx, pin); err != nil {
		return errors.Wrap(err, "failed to create pin")
	}

	log.Info().
		Uint("process_id", pin.ProcessID).
		Str("pedido", pin.Pedido).
		Str("posicion", pin.Posicion).
		Int("split_id", pin.SplitID).
		Uint("line_id", pin.LineID).
		Msg("Pin created")

	return s.ReapplyPins(ctx, pin.ProcessID)
}

// DeletePin removes a pin and refreshes the stored program.
func (s *DispatchService) DeletePin(ctx context.Context, processID, pinID uint) error {
	if err := s.pinRepo.DeleteByID(ctx, pinID); err != nil {
		return ErrPinNotFound
	}

	log.Info().Uint("process_id", processID).Uint("pin_id", pinID).Msg("Pin deleted")

	return s.ReapplyPins(ctx, processID)
}

// ListPins returns the live pins for a process.
func (s *DispatchService) ListPins(ctx context.Context, processID uint) ([]models.Pin, error) {
	return s.pinRepo.ListByProcess(ctx, processID)
}

// UpdatePriorityWeights rewrites every job's priority weight from its class
// flags. The new weights take effect on the next generation pass.
func (s *DispatchService) UpdatePriorityWeights(ctx context.Context, test, manual, normal int) error {
	if test <= 0 || manual <= 0 || normal <= 0 {
		return ErrInvalidWeights
	}

	if err := s.jobRepo.UpdatePriorityWeights(ctx, test, manual, normal); err != nil {
		return errors.Wrap(err, "failed to update priority weights")
	}

	s.weights = dispatch.Weights{Test: test, Manual: manual, Normal: normal}

	log.Info().
		Int("test", test).
		Int("manual", manual).
		Int("normal", normal).
		Msg("Priority weights updated")

	return nil
}
