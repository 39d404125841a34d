package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/foundry/services/scheduling/internal/models"
)

// JobRepository provides access to the pending job snapshot
type JobRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *gorm.DB, readOnlyDB *gorm.DB) *JobRepository {
	return &JobRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ListByProcess gets all pending jobs of one process
func (r *JobRepository) ListByProcess(ctx context.Context, processID uint) ([]models.Job, error) {
	var jobs []models.Job
	err := r.readOnlyDB.WithContext(ctx).
		Where("process_id = ?", processID).
		Order("pedido, posicion, material").
		Find(&jobs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs by process")
	}
	return jobs, nil
}

// UpdatePriorityWeights recomputes every job's priority weight from the
// configured class map. Test jobs win, manually prioritized jobs follow,
// everything else gets the normal weight.
func (r *JobRepository) UpdatePriorityWeights(ctx context.Context, test, manual, normal int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Job{}).
			Where("is_test = ?", true).
			Update("priority_weight", test).Error; err != nil {
			return errors.Wrap(err, "failed to reweight test jobs")
		}
		if err := tx.Model(&models.Job{}).
			Where("is_test = ? AND manual_priority = ?", false, true).
			Update("priority_weight", manual).Error; err != nil {
			return errors.Wrap(err, "failed to reweight manual-priority jobs")
		}
		if err := tx.Model(&models.Job{}).
			Where("is_test = ? AND manual_priority = ?", false, false).
			Update("priority_weight", normal).Error; err != nil {
			return errors.Wrap(err, "failed to reweight normal jobs")
		}
		return nil
	})
}

// PartRepository provides access to part master data
type PartRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewPartRepository creates a new part repository
func NewPartRepository(db *gorm.DB, readOnlyDB *gorm.DB) *PartRepository {
	return &PartRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// MapByMaterial gets all parts keyed by material code
func (r *PartRepository) MapByMaterial(ctx context.Context) (map[string]models.Part, error) {
	var parts []models.Part
	err := r.readOnlyDB.WithContext(ctx).Find(&parts).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list parts")
	}
	byMaterial := make(map[string]models.Part, len(parts))
	for _, p := range parts {
		byMaterial[p.Material] = p
	}
	return byMaterial, nil
}

// LineRepository provides access to production line configuration
type LineRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewLineRepository creates a new line repository
func NewLineRepository(db *gorm.DB, readOnlyDB *gorm.DB) *LineRepository {
	return &LineRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ListByProcess gets a process's lines in stable ID order
func (r *LineRepository) ListByProcess(ctx context.Context, processID uint) ([]models.Line, error) {
	var lines []models.Line
	err := r.readOnlyDB.WithContext(ctx).
		Where("process_id = ?", processID).
		Order("id").
		Find(&lines).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list lines by process")
	}
	return lines, nil
}

// PinRepository provides access to in-progress locks
type PinRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewPinRepository creates a new pin repository
func NewPinRepository(db *gorm.DB, readOnlyDB *gorm.DB) *PinRepository {
	return &PinRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// WithTx returns a copy of the repository bound to an open transaction so a
// pin write can commit together with other writes.
func (r *PinRepository) WithTx(tx *gorm.DB) *PinRepository {
	return &PinRepository{db: tx, readOnlyDB: r.readOnlyDB}
}

// ListByProcess gets all pins of one process
func (r *PinRepository) ListByProcess(ctx context.Context, processID uint) ([]models.Pin, error) {
	var pins []models.Pin
	err := r.readOnlyDB.WithContext(ctx).
		Where("process_id = ?", processID).
		Order("marked_at, split_id").
		Find(&pins).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pins by process")
	}
	return pins, nil
}

// Create persists a new pin
func (r *PinRepository) Create(ctx context.Context, pin *models.Pin) error {
	return r.db.WithContext(ctx).Create(pin).Error
}

// DeleteByID removes one pin
func (r *PinRepository) DeleteByID(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Pin{}, id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete pin")
	}
	if result.RowsAffected == 0 {
		return errors.New("no pin deleted")
	}
	return nil
}

// DeleteAll removes a batch of pins, used for stale-pin self-healing
func (r *PinRepository) DeleteAll(ctx context.Context, pins []models.Pin) error {
	if len(pins) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(pins))
	for _, p := range pins {
		ids = append(ids, p.ID)
	}
	err := r.db.WithContext(ctx).Delete(&models.Pin{}, ids).Error
	return errors.Wrap(err, "failed to delete stale pins")
}

// ProgramRepository provides access to the cached dispatch program
type ProgramRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewProgramRepository creates a new program repository
func NewProgramRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ProgramRepository {
	return &ProgramRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// WithTx returns a copy of the repository bound to an open transaction.
func (r *ProgramRepository) WithTx(tx *gorm.DB) *ProgramRepository {
	return &ProgramRepository{db: tx, readOnlyDB: r.readOnlyDB}
}

// Load gets the cached program rows and error rows of one process
func (r *ProgramRepository) Load(ctx context.Context, processID uint) ([]models.ProgramRow, []models.ProgramError, error) {
	var rows []models.ProgramRow
	err := r.readOnlyDB.WithContext(ctx).
		Where("process_id = ?", processID).
		Order("line_id, seq").
		Find(&rows).Error
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load program rows")
	}

	var errRows []models.ProgramError
	err = r.readOnlyDB.WithContext(ctx).
		Where("process_id = ?", processID).
		Find(&errRows).Error
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load program errors")
	}
	return rows, errRows, nil
}

// Replace swaps one process's cached program wholesale inside a transaction
func (r *ProgramRepository) Replace(ctx context.Context, processID uint, rows []models.ProgramRow, errRows []models.ProgramError) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("process_id = ?", processID).Delete(&models.ProgramRow{}).Error; err != nil {
			return errors.Wrap(err, "failed to clear program rows")
		}
		if err := tx.Where("process_id = ?", processID).Delete(&models.ProgramError{}).Error; err != nil {
			return errors.Wrap(err, "failed to clear program errors")
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return errors.Wrap(err, "failed to insert program rows")
			}
		}
		if len(errRows) > 0 {
			if err := tx.Create(&errRows).Error; err != nil {
				return errors.Wrap(err, "failed to insert program errors")
			}
		}
		return nil
	})
}

// PlannerRepository provides access to planner orders, calendars, the daily
// resource ledger, and run output
type PlannerRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewPlannerRepository creates a new planner repository
func NewPlannerRepository(db *gorm.DB, readOnlyDB *gorm.DB) *PlannerRepository {
	return &PlannerRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// WithTx returns a copy of the repository bound to an open transaction.
func (r *PlannerRepository) WithTx(tx *gorm.DB) *PlannerRepository {
	return &PlannerRepository{db: tx, readOnlyDB: r.readOnlyDB}
}

// ListOrders gets a scenario's pending orders
func (r *PlannerRepository) ListOrders(ctx context.Context, scenarioID uuid.UUID) ([]models.PlannerOrder, error) {
	var orders []models.PlannerOrder
	err := r.readOnlyDB.WithContext(ctx).
		Where("scenario_id = ?", scenarioID).
		Order("priority, due_date, order_no").
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list planner orders")
	}
	return orders, nil
}

// ListScenarioIDs gets every scenario that currently has pending orders
func (r *PlannerRepository) ListScenarioIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.PlannerOrder{}).
		Distinct("scenario_id").
		Pluck("scenario_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list scenario ids")
	}
	return ids, nil
}

// ListHolidays gets a scenario's holiday calendar keyed by day
func (r *PlannerRepository) ListHolidays(ctx context.Context, scenarioID uuid.UUID) (map[string]bool, error) {
	var holidays []models.Holiday
	err := r.readOnlyDB.WithContext(ctx).
		Where("scenario_id = ?", scenarioID).
		Find(&holidays).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list holidays")
	}
	byDay := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		byDay[h.Day.Format("2006-01-02")] = true
	}
	return byDay, nil
}

// ReplaceDailyResources swaps a scenario's resource ledger wholesale
func (r *PlannerRepository) ReplaceDailyResources(ctx context.Context, scenarioID uuid.UUID, records []models.DailyResource) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("scenario_id = ?", scenarioID).Delete(&models.DailyResource{}).Error; err != nil {
			return errors.Wrap(err, "failed to clear daily resources")
		}
		if len(records) > 0 {
			if err := tx.CreateInBatches(&records, 500).Error; err != nil {
				return errors.Wrap(err, "failed to insert daily resources")
			}
		}
		return nil
	})
}

// ListDailyResources gets a scenario's persisted ledger
func (r *PlannerRepository) ListDailyResources(ctx context.Context, scenarioID uuid.UUID) ([]models.DailyResource, error) {
	var records []models.DailyResource
	err := r.readOnlyDB.WithContext(ctx).
		Where("scenario_id = ?", scenarioID).
		Order("day, flask_type").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list daily resources")
	}
	return records, nil
}

// ReplacePlacements swaps a scenario's mold schedule wholesale and records
// the run
func (r *PlannerRepository) ReplacePlacements(ctx context.Context, run *models.PlanRun, placements []models.MoldPlacement) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("scenario_id = ?", run.ScenarioID).Delete(&models.MoldPlacement{}).Error; err != nil {
			return errors.Wrap(err, "failed to clear mold placements")
		}
		if len(placements) > 0 {
			if err := tx.CreateInBatches(&placements, 500).Error; err != nil {
				return errors.Wrap(err, "failed to insert mold placements")
			}
		}
		if err := tx.Create(run).Error; err != nil {
			return errors.Wrap(err, "failed to record plan run")
		}
		return nil
	})
}

// ListPlacements gets a scenario's current mold schedule
func (r *PlannerRepository) ListPlacements(ctx context.Context, scenarioID uuid.UUID) ([]models.MoldPlacement, error) {
	var placements []models.MoldPlacement
	err := r.readOnlyDB.WithContext(ctx).
		Where("scenario_id = ?", scenarioID).
		Order("day, order_no").
		Find(&placements).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list mold placements")
	}
	return placements, nil
}

// WipRepository provides read-only access to the WIP snapshots refreshed by
// the upload pipeline
type WipRepository struct {
	readOnlyDB *gorm.DB
}

// NewWipRepository creates a new WIP repository
func NewWipRepository(readOnlyDB *gorm.DB) *WipRepository {
	return &WipRepository{readOnlyDB: readOnlyDB}
}

// ListWipMolds gets the molds still awaiting pour
func (r *WipRepository) ListWipMolds(ctx context.Context) ([]models.WipMold, error) {
	var molds []models.WipMold
	err := r.readOnlyDB.WithContext(ctx).Find(&molds).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list wip molds")
	}
	return molds, nil
}

// ListCompletedPieces gets the poured pieces still occupying flasks
func (r *WipRepository) ListCompletedPieces(ctx context.Context) ([]models.CompletedPiece, error) {
	var pieces []models.CompletedPiece
	err := r.readOnlyDB.WithContext(ctx).Find(&pieces).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list completed pieces")
	}
	return pieces, nil
}
