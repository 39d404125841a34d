package services

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/foundry/services/scheduling/config"
	"example.com/foundry/services/scheduling/internal/cache"
	"example.com/foundry/services/scheduling/internal/models"
	"example.com/foundry/services/scheduling/internal/tracing"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.SetupModels(db))
	return db
}

func disabledCache(t *testing.T) *cache.RedisCache {
	t.Helper()
	c, err := cache.NewRedisCache(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	return c
}

func noopTracer(t *testing.T) tracing.Tracer {
	t.Helper()
	tr, err := tracing.NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	return tr
}

func newTestDispatchService(t *testing.T) (*DispatchService, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	svc := NewDispatchService(db, db, disabledCache(t), noopTracer(t), config.DispatchConfig{
		TestWeight: 1, ManualWeight: 2, NormalWeight: 3,
	})
	return svc, db
}

func seedDispatchFixture(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&models.Line{ID: 1, ProcessID: 1, Name: "Linea 1", Families: []string{"Parrillas"}}).Error)
	require.NoError(t, db.Create(&models.Line{ID: 2, ProcessID: 1, Name: "Linea 2", Families: []string{"Otros"}}).Error)
	require.NoError(t, db.Create(&models.Part{Material: "MAT-PAR", FamilyID: "Parrillas"}).Error)
	require.NoError(t, db.Create(&models.Part{Material: "MAT-OTR", FamilyID: "Otros"}).Error)
	require.NoError(t, db.Create(&models.Job{ProcessID: 1, Pedido: "P1", Posicion: "10", Material: "MAT-PAR", Quantity: 5, PriorityWeight: 3}).Error)
	require.NoError(t, db.Create(&models.Job{ProcessID: 1, Pedido: "P2", Posicion: "10", Material: "MAT-OTR", Quantity: 10, PriorityWeight: 3, CorrelativoMin: 100, CorrelativoMax: 109}).Error)
}

func TestGenerateProgramRequiresLines(t *testing.T) {
	svc, _ := newTestDispatchService(t)

	err := svc.GenerateProgram(context.Background(), 99)
	require.ErrorIs(t, err, ErrNoLinesConfigured)
}

func TestGenerateProgramPersistsRows(t *testing.T) {
	svc, db := newTestDispatchService(t)
	seedDispatchFixture(t, db)
	ctx := context.Background()

	require.NoError(t, svc.GenerateProgram(ctx, 1))

	view, err := svc.GetProgram(ctx, 1)
	require.NoError(t, err)
	require.Len(t, view.Rows, 2)
	require.Empty(t, view.Errors)

	byPedido := make(map[string]models.ProgramRow)
	for _, r := range view.Rows {
		byPedido[r.Pedido] = r
	}
	require.Equal(t, uint(1), byPedido["P1"].LineID)
	require.Equal(t, uint(2), byPedido["P2"].LineID)
}

func TestGenerateProgramRecordsUnplaceable(t *testing.T) {
	svc, db := newTestDispatchService(t)
	require.NoError(t, db.Create(&models.Line{ID: 1, ProcessID: 1, Name: "Linea 1", Families: []string{"Lifters"}}).Error)
	require.NoError(t, db.Create(&models.Part{Material: "MAT-PAR", FamilyID: "Parrillas"}).Error)
	require.NoError(t, db.Create(&models.Job{ProcessID: 1, Pedido: "P1", Posicion: "10", Material: "MAT-PAR", Quantity: 5, PriorityWeight: 3}).Error)
	ctx := context.Background()

	require.NoError(t, svc.GenerateProgram(ctx, 1))

	view, err := svc.GetProgram(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, view.Rows)
	require.Len(t, view.Errors, 1)
	require.Equal(t, "no eligible line for family Parrillas", view.Errors[0].Reason)
}

func TestCreatePinMovesRowAndSurvivesRegeneration(t *testing.T) {
	svc, db := newTestDispatchService(t)
	seedDispatchFixture(t, db)
	ctx := context.Background()

	require.NoError(t, svc.GenerateProgram(ctx, 1))

	// Pin P2 away from its algorithmic line. Line 1 does not accept the
	// family, which is exactly what pinning is for.
	pin := &models.Pin{ProcessID: 1, Pedido: "P2", Posicion: "10", LineID: 1, Quantity: 4}
	require.NoError(t, svc.CreatePin(ctx, pin))
	require.Equal(t, 1, pin.SplitID)

	view, err := svc.GetProgram(ctx, 1)
	require.NoError(t, err)

	var pinned []models.ProgramRow
	for _, r := range view.Rows {
		if r.Pedido == "P2" {
			pinned = append(pinned, r)
		}
	}
	require.Len(t, pinned, 1)
	require.Equal(t, uint(1), pinned[0].LineID)
	require.True(t, pinned[0].InProgress)
	require.Equal(t, 10, pinned[0].Quantity) // single split absorbs the remainder
	require.Equal(t, 100, pinned[0].CorrelativoMin)
	require.Equal(t, 109, pinned[0].CorrelativoMax)

	// A full regeneration keeps the pin in place.
	require.NoError(t, svc.GenerateProgram(ctx, 1))
	view, err = svc.GetProgram(ctx, 1)
	require.NoError(t, err)
	for _, r := range view.Rows {
		if r.Pedido == "P2" {
			require.Equal(t, uint(1), r.LineID)
		}
	}
}

func TestCreatePinAssignsNextSplitID(t *testing.T) {
	svc, db := newTestDispatchService(t)
	seedDispatchFixture(t, db)
	ctx := context.Background()

	require.NoError(t, svc.GenerateProgram(ctx, 1))

	first := &models.Pin{ProcessID: 1, Pedido: "P2", Posicion: "10", LineID: 1, Quantity: 4}
	require.NoError(t, svc.CreatePin(ctx, first))
	second := &models.Pin{ProcessID: 1, Pedido: "P2", Posicion: "10", LineID: 2}
	require.NoError(t, svc.CreatePin(ctx, second))

	require.Equal(t, 1, first.SplitID)
	require.Equal(t, 2, second.SplitID)

	view, err := svc.GetProgram(ctx, 1)
	require.NoError(t, err)

	total := 0
	for _, r := range view.Rows {
		if r.Pedido == "P2" {
			total += r.Quantity
		}
	}
	require.Equal(t, 10, total)
}

func TestGenerateProgramDeletesStalePins(t *testing.T) {
	svc, db := newTestDispatchService(t)
	seedDispatchFixture(t, db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Pin{ProcessID: 1, Pedido: "GONE", Posicion: "10", SplitID: 1, LineID: 1, MarkedAt: time.Now().UTC()}).Error)

	require.NoError(t, svc.GenerateProgram(ctx, 1))

	pins, err := svc.ListPins(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, pins)

	view, err := svc.GetProgram(ctx, 1)
	require.NoError(t, err)
	for _, r := range view.Rows {
		require.NotEqual(t, "GONE", r.Pedido)
	}
}

func TestDeletePinRestoresAlgorithmicPlacement(t *testing.T) {
	svc, db := newTestDispatchService(t)
	seedDispatchFixture(t, db)
	ctx := context.Background()

	require.NoError(t, svc.GenerateProgram(ctx, 1))
	pin := &models.Pin{ProcessID: 1, Pedido: "P2", Posicion: "10", LineID: 1}
	require.NoError(t, svc.CreatePin(ctx, pin))

	require.NoError(t, svc.DeletePin(ctx, 1, pin.ID))

	require.Error(t, svc.DeletePin(ctx, 1, pin.ID))

	// The reapply pass only clears the in-progress flag; the next generation
	// pass reassigns the order algorithmically.
	require.NoError(t, svc.GenerateProgram(ctx, 1))
	view, err := svc.GetProgram(ctx, 1)
	require.NoError(t, err)
	for _, r := range view.Rows {
		if r.Pedido == "P2" {
			require.Equal(t, uint(2), r.LineID)
			require.False(t, r.InProgress)
		}
	}
}

func TestCreatePinRejectsUnknownLine(t *testing.T) {
	svc, db := newTestDispatchService(t)
	seedDispatchFixture(t, db)
	ctx := context.Background()

	require.NoError(t, svc.GenerateProgram(ctx, 1))

	pin := &models.Pin{ProcessID: 1, Pedido: "P2", Posicion: "10", LineID: 99}
	require.ErrorIs(t, svc.CreatePin(ctx, pin), ErrUnknownLine)

	// Neither the pin nor a phantom line made it into the program.
	pins, err := svc.ListPins(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, pins)

	view, err := svc.GetProgram(ctx, 1)
	require.NoError(t, err)
	for _, r := range view.Rows {
		require.NotEqual(t, uint(99), r.LineID)
	}
}

func TestUpdatePriorityWeightsValidation(t *testing.T) {
	svc, db := newTestDispatchService(t)
	seedDispatchFixture(t, db)
	ctx := context.Background()

	require.ErrorIs(t, svc.UpdatePriorityWeights(ctx, 0, 2, 3), ErrInvalidWeights)

	require.NoError(t, db.Create(&models.Job{ProcessID: 1, Pedido: "PT", Posicion: "10", IsTest: true, Material: "MAT-OTR", Quantity: 1}).Error)
	require.NoError(t, svc.UpdatePriorityWeights(ctx, 1, 2, 4))

	var job models.Job
	require.NoError(t, db.Where("pedido = ?", "PT").First(&job).Error)
	require.Equal(t, 1, job.PriorityWeight)

	job = models.Job{}
	require.NoError(t, db.Where("pedido = ?", "P1").First(&job).Error)
	require.Equal(t, 4, job.PriorityWeight)
}
