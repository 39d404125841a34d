package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// FallbackFamily is assigned to jobs whose material has no Part record, so
// they can still be matched against lines accepting the catch-all family.
const FallbackFamily = "Otros"

// Flask size classes.
const (
	FlaskSmall  = "S"
	FlaskMedium = "M"
	FlaskLarge  = "L"
)

// Job is one unit of schedulable work: an order-position-material lot group.
// Quantity is always recomputed from current lot counts by the upstream stock
// refresh; the row disappears when its backing quantity drops to zero.
type Job struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	ProcessID      uint      `gorm:"not null;index:idx_job_key,unique" json:"process_id"`
	Pedido         string    `gorm:"not null;index:idx_job_key,unique" json:"pedido"`
	Posicion       string    `gorm:"not null;index:idx_job_key,unique" json:"posicion"`
	IsTest         bool      `gorm:"not null;default:false;index:idx_job_key,unique" json:"is_test"`
	Material       string    `gorm:"not null" json:"material"`
	Quantity       int       `gorm:"not null" json:"quantity"`
	PriorityWeight int       `gorm:"not null;default:3" json:"priority_weight"`
	ManualPriority bool      `gorm:"not null;default:false" json:"manual_priority"`
	DueDate        time.Time `json:"due_date"`
	CorrelativoMin int       `json:"correlativo_min"`
	CorrelativoMax int       `json:"correlativo_max"`
	Client         string    `json:"client"`
}

// Part holds the master-data attributes of one material code.
type Part struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	Material         string    `gorm:"not null;uniqueIndex" json:"material"`
	FamilyID         string    `gorm:"not null" json:"family_id"`
	VulcanizingDays  int       `json:"vulcanizing_days"`
	MachiningDays    int       `json:"machining_days"`
	InspectionDays   int       `json:"inspection_days"`
	UnitWeightTons   float64   `json:"unit_weight_tons"`
	FlaskSize        string    `json:"flask_size"`
	PiecesPerMold    int       `json:"pieces_per_mold"`
	CoolingHours     float64   `json:"cooling_hours"`
	FinishDays       int       `json:"finish_days"`
	MinFinishDays    int       `json:"min_finish_days"`
	InclinedDrilling bool      `gorm:"not null;default:false" json:"inclined_drilling"`
	Oversized        bool      `gorm:"not null;default:false" json:"oversized"`
}

// BeforeSave clamps MinFinishDays so it never exceeds FinishDays.
func (p *Part) BeforeSave(tx *gorm.DB) error {
	if p.MinFinishDays > p.FinishDays {
		p.MinFinishDays = p.FinishDays
	}
	return nil
}

// RemainingStepDays is the summed duration of the process steps that follow
// dispatch, used to derive a row's must-start-by date.
func (p *Part) RemainingStepDays() int {
	return p.VulcanizingDays + p.MachiningDays + p.InspectionDays
}

// Line is a named capacity lane. A job is eligible for the line iff its
// part's family is in Families and every non-nil boolean requirement equals
// the part's corresponding flag. Lines are ordered by their stable ID.
type Line struct {
	ID                       uint      `gorm:"primaryKey" json:"id"`
	CreatedAt                time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	ProcessID                uint      `gorm:"not null;index" json:"process_id"`
	Name                     string    `gorm:"not null" json:"name"`
	Families                 []string  `gorm:"serializer:json" json:"families"`
	RequiresInclinedDrilling *bool     `json:"requires_inclined_drilling"`
	RequiresOversized        *bool     `json:"requires_oversized"`
}

// Pin fixes part or all of an order-position's quantity to a specific line,
// surviving program regeneration. Quantity 0 means "absorb whatever remains
// after the other splits"; the last split by (MarkedAt, SplitID) always does.
type Pin struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	ProcessID uint      `gorm:"not null;index" json:"process_id"`
	Pedido    string    `gorm:"not null" json:"pedido"`
	Posicion  string    `gorm:"not null" json:"posicion"`
	IsTest    bool      `gorm:"not null;default:false" json:"is_test"`
	SplitID   int       `gorm:"not null;default:1" json:"split_id"`
	LineID    uint      `gorm:"not null" json:"line_id"`
	Quantity  int       `gorm:"not null;default:0" json:"quantity"`
	MarkedAt  time.Time `gorm:"not null" json:"marked_at"`
}

// ProgramRow is one persisted row of the cached dispatch program.
// The full set for a process is replaced wholesale on every merge.
type ProgramRow struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	ProcessID      uint      `gorm:"not null;index" json:"process_id"`
	LineID         uint      `gorm:"not null" json:"line_id"`
	Seq            int       `gorm:"not null" json:"seq"`
	Pedido         string    `gorm:"not null" json:"pedido"`
	Posicion       string    `gorm:"not null" json:"posicion"`
	Material       string    `gorm:"not null" json:"material"`
	Quantity       int       `gorm:"not null" json:"quantity"`
	FamilyID       string    `json:"family_id"`
	PriorityKind   string    `json:"priority_kind"`
	IsTest         bool      `gorm:"not null;default:false" json:"is_test"`
	InProgress     bool      `gorm:"not null;default:false" json:"in_progress"`
	SplitID        int       `json:"split_id"`
	CorrelativoMin int       `json:"correlativo_min"`
	CorrelativoMax int       `json:"correlativo_max"`
	MustStartBy    time.Time `json:"must_start_by"`
	DueDate        time.Time `json:"due_date"`
	Client         string    `json:"client"`
}

// ProgramError is a persisted unplaced-job descriptor for the cached program.
type ProgramError struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	ProcessID uint      `gorm:"not null;index" json:"process_id"`
	Pedido    string    `json:"pedido"`
	Posicion  string    `json:"posicion"`
	Material  string    `json:"material"`
	FamilyID  string    `json:"family_id"`
	Quantity  int       `json:"quantity"`
	IsTest    bool      `json:"is_test"`
	Reason    string    `json:"reason"`
}

// PlannerOrder is one pending order to be molded and poured.
type PlannerOrder struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	ScenarioID uuid.UUID `gorm:"type:uuid;not null;index" json:"scenario_id"`
	OrderNo    string    `gorm:"not null" json:"order_no"`
	Material   string    `gorm:"not null" json:"material"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	DueDate    time.Time `json:"due_date"`
	Priority   int       `gorm:"not null;default:3" json:"priority"`
}

// DailyResource is one (day, flask type) row of the planner's capacity
// ledger. The full horizon is rebuilt from configuration and then decremented
// by WIP consumption; it is never patched piecemeal.
type DailyResource struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ScenarioID       uuid.UUID `gorm:"type:uuid;not null;index" json:"scenario_id"`
	Day              time.Time `gorm:"not null" json:"day"`
	FlaskType        string    `gorm:"not null" json:"flask_type"`
	AvailableQty     int       `gorm:"not null" json:"available_qty"`
	MoldingCapacity  int       `gorm:"not null" json:"molding_capacity"`
	SameMoldCapacity int       `gorm:"not null" json:"same_mold_capacity"`
	PouringTons      float64   `gorm:"not null" json:"pouring_tons"`
}

// MoldPlacement records that the planner decided to pour MoldCount molds of
// one order on one day. Recomputed wholesale on every planner run.
type MoldPlacement struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	ScenarioID uuid.UUID `gorm:"type:uuid;not null;index" json:"scenario_id"`
	RunID      uuid.UUID `gorm:"type:uuid;not null;index" json:"run_id"`
	OrderNo    string    `gorm:"not null" json:"order_no"`
	Day        time.Time `gorm:"not null" json:"day"`
	FlaskType  string    `gorm:"not null" json:"flask_type"`
	MoldCount  int       `gorm:"not null" json:"mold_count"`
	Tons       float64   `gorm:"not null" json:"tons"`
}

// PlanRun is the bookkeeping record of one planner pass.
type PlanRun struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	ScenarioID     uuid.UUID `gorm:"type:uuid;not null;index" json:"scenario_id"`
	OrdersPlanned  int       `json:"orders_planned"`
	OrdersLate     int       `json:"orders_late"`
	OrdersSkipped  int       `json:"orders_skipped"`
	OrdersUnplaced int       `json:"orders_unplaced"`
}

// WipMold is a mold already prepared but not yet poured. Snapshot data,
// refreshed by the upload pipeline outside this service.
type WipMold struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Material string `gorm:"not null" json:"material"`
	Molds    int    `gorm:"not null" json:"molds"`
}

// CompletedPiece is a poured piece still occupying its flask until demolding.
// MoldQuantity is the fraction of one flask this piece instance consumes.
type CompletedPiece struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Material     string    `gorm:"not null" json:"material"`
	Quantity     int       `gorm:"not null" json:"quantity"`
	MoldQuantity float64   `gorm:"not null;default:1" json:"mold_quantity"`
	DemoldDate   time.Time `json:"demold_date"`
}

// Holiday excludes one calendar day from a scenario's workday horizon.
type Holiday struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ScenarioID uuid.UUID `gorm:"type:uuid;not null;index" json:"scenario_id"`
	Day        time.Time `gorm:"not null" json:"day"`
	Name       string    `json:"name"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Job{},
		&Part{},
		&Line{},
		&Pin{},
		&ProgramRow{},
		&ProgramError{},
		&PlannerOrder{},
		&DailyResource{},
		&MoldPlacement{},
		&PlanRun{},
		&WipMold{},
		&CompletedPiece{},
		&Holiday{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
