package planner

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/foundry/services/scheduling/internal/models"
)

func testConfig() Config {
	return Config{
		HorizonDays:    30,
		MinHorizonDays: 10,
		BufferDays:     0,
		ShiftsByWeekday: map[time.Weekday]int{
			time.Monday:    1,
			time.Tuesday:   1,
			time.Wednesday: 1,
			time.Thursday:  1,
			time.Friday:    1,
		},
		MoldsPerShift:       10,
		PouringTonsPerShift: 20,
		SameMoldPerDay:      4,
		FlaskTotals:         map[string]int{models.FlaskSmall: 6, models.FlaskMedium: 3},
	}
}

// Tuesday.
var testToday = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

func TestRebuildSkipsWeekendsAndHolidays(t *testing.T) {
	holidays := map[string]bool{"2026-09-02": true}

	l := Rebuild(testConfig(), holidays, testToday, time.Time{})

	for _, day := range l.Days() {
		require.NotEqual(t, time.Saturday, day.Weekday())
		require.NotEqual(t, time.Sunday, day.Weekday())
		require.NotEqual(t, "2026-09-02", day.Format("2006-01-02"))
	}
}

func TestRebuildHorizonShrinksToLatestDue(t *testing.T) {
	cfg := testConfig()

	far := Rebuild(cfg, nil, testToday, time.Time{})
	near := Rebuild(cfg, nil, testToday, testToday.AddDate(0, 0, 15))

	require.Greater(t, far.Len(), near.Len())
	last := near.Days()[near.Len()-1]
	require.False(t, last.After(testToday.AddDate(0, 0, 16)))
}

func TestRebuildHorizonFloor(t *testing.T) {
	cfg := testConfig()

	// A due date tomorrow must not collapse the calendar below the floor.
	l := Rebuild(cfg, nil, testToday, testToday.AddDate(0, 0, 1))

	require.GreaterOrEqual(t, l.Len(), 7) // 10 calendar days minus weekend
}

func TestRebuildBufferExtendsHorizon(t *testing.T) {
	cfg := testConfig()
	base := Rebuild(cfg, nil, testToday, time.Time{})

	cfg.BufferDays = 7
	buffered := Rebuild(cfg, nil, testToday, time.Time{})

	require.Greater(t, buffered.Len(), base.Len())
}

func TestRebuildCapacitiesScaleWithShifts(t *testing.T) {
	cfg := testConfig()
	cfg.ShiftsByWeekday[time.Tuesday] = 3

	l := Rebuild(cfg, nil, testToday, time.Time{})

	require.True(t, l.Days()[0].Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 30, l.Molding(0))
	require.InDelta(t, 60, l.Pouring(0), 0.001)
	// Wednesday runs a single shift.
	require.Equal(t, 10, l.Molding(1))
	require.Equal(t, 6, l.FlaskAvailable(0, models.FlaskSmall))
}

func TestPlaceFloorsAtZero(t *testing.T) {
	l := Rebuild(testConfig(), nil, testToday, time.Time{})

	l.Place(0, models.FlaskSmall, 100, 1000)

	require.Equal(t, 0, l.FlaskAvailable(0, models.FlaskSmall))
	require.Equal(t, 0, l.Molding(0))
	require.Zero(t, l.Pouring(0))
}

func TestRecordsOnePerDayAndFlask(t *testing.T) {
	l := Rebuild(testConfig(), nil, testToday, time.Time{})

	records := l.Records(uuid.New())

	require.Len(t, records, l.Len()*2)
	for _, r := range records {
		require.GreaterOrEqual(t, r.AvailableQty, 0)
		require.GreaterOrEqual(t, r.PouringTons, 0.0)
	}
}

func TestDecrementWIPCompletedPiecesOccupyFlasks(t *testing.T) {
	parts := map[string]models.Part{
		"MAT-A": {Material: "MAT-A", FlaskSize: models.FlaskSmall, UnitWeightTons: 1, CoolingHours: 48},
	}
	pieces := []models.CompletedPiece{
		// Three pieces at half a mold each: ceil(1.5) = 2 flasks held.
		{Material: "MAT-A", Quantity: 3, MoldQuantity: 0.5, DemoldDate: testToday.AddDate(0, 0, 2)},
	}

	l := Rebuild(testConfig(), nil, testToday, time.Time{})
	missing := DecrementWIP(l, parts, nil, pieces, testToday)

	require.Empty(t, missing)
	require.Equal(t, 4, l.FlaskAvailable(0, models.FlaskSmall))
	// Molding capacity is untouched by cooling occupancy.
	require.Equal(t, 10, l.Molding(0))
}

func TestDecrementWIPPendingMoldsConsumeTonnage(t *testing.T) {
	parts := map[string]models.Part{
		"MAT-A": {Material: "MAT-A", FlaskSize: models.FlaskMedium, UnitWeightTons: 8, CoolingHours: 24},
	}
	wip := []models.WipMold{{Material: "MAT-A", Molds: 3}}

	l := Rebuild(testConfig(), nil, testToday, time.Time{})
	missing := DecrementWIP(l, parts, wip, nil, testToday)

	require.Empty(t, missing)
	// Day 0 fits 2 molds (20 tons / 8), the third spills to day 1.
	require.InDelta(t, 4, l.Pouring(0), 0.001)
	require.InDelta(t, 12, l.Pouring(1), 0.001)
	// All three molds already hold their flasks today.
	require.Equal(t, 0, l.FlaskAvailable(0, models.FlaskMedium))
}

func TestDecrementWIPUnknownMaterialReported(t *testing.T) {
	l := Rebuild(testConfig(), nil, testToday, time.Time{})

	missing := DecrementWIP(l, map[string]models.Part{}, []models.WipMold{{Material: "GHOST", Molds: 2}}, nil, testToday)

	require.Equal(t, []string{"GHOST"}, missing)
	require.InDelta(t, 20, l.Pouring(0), 0.001)
}
