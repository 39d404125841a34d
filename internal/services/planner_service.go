package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/foundry/services/scheduling/config"
	"example.com/foundry/services/scheduling/internal/cache"
	"example.com/foundry/services/scheduling/internal/models"
	"example.com/foundry/services/scheduling/internal/planner"
	"example.com/foundry/services/scheduling/internal/repositories"
	"example.com/foundry/services/scheduling/internal/search"
	"example.com/foundry/services/scheduling/internal/tracing"
)

const planCacheTTL = 30 * time.Minute

// PlanView is the cached read model of one scenario's latest plan.
type PlanView struct {
	ScenarioID uuid.UUID              `json:"scenario_id"`
	RunID      uuid.UUID              `json:"run_id"`
	CreatedAt  time.Time              `json:"created_at"`
	Orders     []planner.OrderResult  `json:"orders"`
	Skipped    []planner.Skipped      `json:"skipped"`
	Placements []models.MoldPlacement `json:"placements"`
	Weeks      []planner.WeekLoad     `json:"weeks"`
}

// PlannerService rebuilds the capacity ledger and schedules mold production
type PlannerService struct {
	db            *gorm.DB // Write database
	readOnlyDB    *gorm.DB // Read-only database
	partRepo      *repositories.PartRepository
	plannerRepo   *repositories.PlannerRepository
	wipRepo       *repositories.WipRepository
	cache         *cache.RedisCache
	elasticClient *search.ElasticClient
	tracer        tracing.Tracer
	cfg           planner.Config
}

// NewPlannerService creates a new planner service
func NewPlannerService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	cache *cache.RedisCache,
	elasticClient *search.ElasticClient,
	tracer tracing.Tracer,
	cfg config.PlannerConfig,
) *PlannerService {
	return &PlannerService{
		db:            db,
		readOnlyDB:    readOnlyDB,
		partRepo:      repositories.NewPartRepository(db, readOnlyDB),
		plannerRepo:   repositories.NewPlannerRepository(db, readOnlyDB),
		wipRepo:       repositories.NewWipRepository(readOnlyDB),
		cache:         cache,
		elasticClient: elasticClient,
		tracer:        tracer,
		cfg:           toLedgerConfig(cfg),
	}
}

// RunPlan executes a full planner pass for one scenario: the ledger is
// rebuilt from configuration and the holiday calendar, decremented by the
// current WIP snapshot, and then consumed by the placement walk. The
// resulting placements, ledger snapshot and run record replace the previous
// ones wholesale.
func (s *PlannerService) RunPlan(ctx context.Context, scenarioID uuid.UUID) error {
	txn := s.tracer.StartTransaction("run-plan")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "scenario_id", scenarioID.String())

	today := time.Now().UTC()

	loadSpan := s.tracer.StartSpan("load-snapshot", txn)
	orders, err := s.plannerRepo.ListOrders(ctx, scenarioID)
	if err != nil {
		loadSpan.End()
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load orders")
	}
	if len(orders) == 0 {
		loadSpan.End()
		return ErrNoOrders
	}

	parts, err := s.partRepo.MapByMaterial(ctx)
	if err != nil {
		loadSpan.End()
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load parts")
	}

	holidays, err := s.plannerRepo.ListHolidays(ctx, scenarioID)
	if err != nil {
		loadSpan.End()
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load holidays")
	}

	wip, err := s.wipRepo.ListWipMolds(ctx)
	if err != nil {
		loadSpan.End()
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load WIP molds")
	}

	pieces, err := s.wipRepo.ListCompletedPieces(ctx)
	if err != nil {
		loadSpan.End()
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load completed pieces")
	}
	loadSpan.End()

	planSpan := s.tracer.StartSpan("plan", txn)
	var latestDue time.Time
	for _, o := range orders {
		if o.DueDate.After(latestDue) {
			latestDue = o.DueDate
		}
	}

	ledger := planner.Rebuild(s.cfg, holidays, today, latestDue)

	missing := planner.DecrementWIP(ledger, parts, wip, pieces, today)
	for _, material := range missing {
		log.Warn().
			Str("scenario_id", scenarioID.String()).
			Str("material", material).
			Msg("WIP material has no part record, occupancy not decremented")
	}

	result := planner.Run(orders, parts, ledger, today)
	planSpan.End()

	run := &models.PlanRun{
		ID:         uuid.New(),
		ScenarioID: scenarioID,
	}
	placements := make([]models.MoldPlacement, 0, len(result.Placements))
	for _, p := range result.Placements {
		placements = append(placements, models.MoldPlacement{
			ID:         uuid.New(),
			ScenarioID: scenarioID,
			RunID:      run.ID,
			OrderNo:    p.OrderNo,
			Day:        p.Day,
			FlaskType:  p.FlaskType,
			MoldCount:  p.MoldCount,
			Tons:       p.Tons,
		})
	}
	for _, o := range result.Orders {
		run.OrdersPlanned++
		if o.Late() {
			run.OrdersLate++
		}
		if o.UnplacedUnits > 0 {
			run.OrdersUnplaced++
		}
	}
	run.OrdersSkipped = len(result.Skipped)

	// The ledger snapshot and the placements describe the same run, so they
	// commit together or not at all.
	persistSpan := s.tracer.StartSpan("persist-plan", txn)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.plannerRepo.WithTx(tx)
		if err := repo.ReplaceDailyResources(ctx, scenarioID, ledger.Records(scenarioID)); err != nil {
			return errors.Wrap(err, "failed to persist daily resources")
		}
		return errors.Wrap(repo.ReplacePlacements(ctx, run, placements), "failed to persist placements")
	})
	persistSpan.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	weeks := planner.Summarize(result)

	view := PlanView{
		ScenarioID: scenarioID,
		RunID:      run.ID,
		CreatedAt:  today,
		Orders:     result.Orders,
		Skipped:    result.Skipped,
		Placements: placements,
		Weeks:      weeks,
	}
	if err := s.cache.Set(ctx, cache.PlanCacheKey(scenarioID), view, planCacheTTL); err != nil {
		log.Debug().Err(err).Str("scenario_id", scenarioID.String()).Msg("could not cache plan")
	}

	// Indexing is best effort; the run is already durable in the database.
	if s.elasticClient != nil {
		if err := s.elasticClient.IndexPlanRun(ctx, run, weeks); err != nil {
			log.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to index plan run")
		}
	}

	log.Info().
		Str("scenario_id", scenarioID.String()).
		Str("run_id", run.ID.String()).
		Int("planned", run.OrdersPlanned).
		Int("late", run.OrdersLate).
		Int("skipped", run.OrdersSkipped).
		Int("unplaced", run.OrdersUnplaced).
		Msg("Plan run completed")

	return nil
}

// RunAll plans every scenario with pending orders. Used by the fallback cron
// in the worker; scenarios that fail are logged and skipped so one bad
// scenario cannot starve the rest.
func (s *PlannerService) RunAll(ctx context.Context) error {
	ids, err := s.plannerRepo.ListScenarioIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list scenarios")
	}

	for _, id := range ids {
		if err := s.RunPlan(ctx, id); err != nil {
			log.Error().Err(err).Str("scenario_id", id.String()).Msg("Scenario plan failed")
		}
	}

	return nil
}

// GetPlan returns the latest plan for a scenario, served from cache when
// possible. On a cache miss only the durable placements are available.
func (s *PlannerService) GetPlan(ctx context.Context, scenarioID uuid.UUID) (*PlanView, error) {
	var view PlanView
	if err := s.cache.Get(ctx, cache.PlanCacheKey(scenarioID), &view); err == nil {
		return &view, nil
	}

	placements, err := s.plannerRepo.ListPlacements(ctx, scenarioID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load placements")
	}

	view = PlanView{ScenarioID: scenarioID, Placements: placements}
	if len(placements) > 0 {
		view.RunID = placements[0].RunID
	}

	return &view, nil
}

// GetLedger returns the persisted ledger snapshot for a scenario.
func (s *PlannerService) GetLedger(ctx context.Context, scenarioID uuid.UUID) ([]models.DailyResource, error) {
	return s.plannerRepo.ListDailyResources(ctx, scenarioID)
}

// toLedgerConfig maps the file configuration onto the ledger's shape,
// resolving weekday names.
func toLedgerConfig(cfg config.PlannerConfig) planner.Config {
	shifts := make(map[time.Weekday]int, len(cfg.ShiftsByWeekday))
	for name, n := range cfg.ShiftsByWeekday {
		if day, ok := weekdayByName[strings.ToLower(name)]; ok {
			shifts[day] = n
		} else {
			log.Warn().Str("weekday", name).Msg("Unknown weekday in planner configuration, ignored")
		}
	}

	return planner.Config{
		HorizonDays:         cfg.HorizonDays,
		MinHorizonDays:      cfg.MinHorizonDays,
		BufferDays:          cfg.BufferDays,
		ShiftsByWeekday:     shifts,
		MoldsPerShift:       cfg.MoldsPerShift,
		PouringTonsPerShift: cfg.PouringTonsPerShift,
		SameMoldPerDay:      cfg.SameMoldPerDay,
		FlaskTotals:         cfg.FlaskTotals,
	}
}

var weekdayByName = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
