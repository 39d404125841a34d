package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/foundry/services/scheduling/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func testLines() []models.Line {
	return []models.Line{
		{ID: 1, ProcessID: 1, Name: "Linea 1", Families: []string{"Parrillas"}},
		{ID: 2, ProcessID: 1, Name: "Linea 2", Families: []string{"Otros"}},
	}
}

func testParts() map[string]models.Part {
	return map[string]models.Part{
		"MAT-PAR": {Material: "MAT-PAR", FamilyID: "Parrillas"},
		"MAT-OTR": {Material: "MAT-OTR", FamilyID: "Otros"},
		"MAT-LIF": {Material: "MAT-LIF", FamilyID: "Lifters"},
	}
}

func TestGenerateAssignsByFamily(t *testing.T) {
	lines := testLines()
	jobs := []models.Job{
		{Pedido: "P1", Posicion: "10", Material: "MAT-PAR", Quantity: 5, PriorityWeight: 3},
		{Pedido: "P2", Posicion: "10", Material: "MAT-OTR", Quantity: 3, PriorityWeight: 3},
	}

	program, errs := Generate(lines, jobs, testParts(), NewProgram(lines), DefaultWeights())

	require.Empty(t, errs)
	require.Len(t, program[1], 1)
	require.Len(t, program[2], 1)
	require.Equal(t, "P1", program[1][0].Pedido)
	require.Equal(t, "P2", program[2][0].Pedido)
}

func TestGenerateReportsUnplaceableJob(t *testing.T) {
	lines := []models.Line{
		{ID: 1, ProcessID: 1, Name: "Linea 1", Families: []string{"Lifters"}},
	}
	jobs := []models.Job{
		{Pedido: "P1", Posicion: "10", Material: "MAT-PAR", Quantity: 5, PriorityWeight: 3},
	}

	program, errs := Generate(lines, jobs, testParts(), NewProgram(lines), DefaultWeights())

	require.Empty(t, program[1])
	require.Len(t, errs, 1)
	require.Equal(t, "P1", errs[0].Pedido)
	require.Equal(t, "no eligible line for family Parrillas", errs[0].Reason)
}

func TestGeneratePicksLeastLoadedLine(t *testing.T) {
	lines := []models.Line{
		{ID: 1, Families: []string{"Otros"}},
		{ID: 2, Families: []string{"Otros"}},
	}
	jobs := []models.Job{
		{Pedido: "P1", Posicion: "10", Material: "MAT-OTR", Quantity: 10, PriorityWeight: 3},
		{Pedido: "P2", Posicion: "10", Material: "MAT-OTR", Quantity: 4, PriorityWeight: 3},
		{Pedido: "P3", Posicion: "10", Material: "MAT-OTR", Quantity: 2, PriorityWeight: 3},
	}

	program, errs := Generate(lines, jobs, testParts(), NewProgram(lines), DefaultWeights())

	require.Empty(t, errs)
	// P1 goes to line 1 (tie, lowest id). P2 goes to line 2 (load 0 vs 10).
	// P3 goes to line 2 as well (load 4 vs 10).
	require.Len(t, program[1], 1)
	require.Len(t, program[2], 2)
	require.Equal(t, "P1", program[1][0].Pedido)
	require.Equal(t, "P2", program[2][0].Pedido)
	require.Equal(t, "P3", program[2][1].Pedido)
}

func TestGenerateTieBreaksByLowestLineID(t *testing.T) {
	lines := []models.Line{
		{ID: 7, Families: []string{"Otros"}},
		{ID: 3, Families: []string{"Otros"}},
	}
	jobs := []models.Job{
		{Pedido: "P1", Posicion: "10", Material: "MAT-OTR", Quantity: 1, PriorityWeight: 3},
	}

	program, _ := Generate(lines, jobs, testParts(), NewProgram(lines), DefaultWeights())

	require.Len(t, program[3], 1)
	require.Empty(t, program[7])
}

func TestGenerateOrdersByPriorityThenDueDate(t *testing.T) {
	lines := []models.Line{{ID: 1, Families: []string{"Otros"}}}
	due := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	jobs := []models.Job{
		{Pedido: "P3", Posicion: "10", Material: "MAT-OTR", Quantity: 1, PriorityWeight: 3, DueDate: due},
		{Pedido: "P1", Posicion: "10", Material: "MAT-OTR", Quantity: 1, PriorityWeight: 1, DueDate: due.AddDate(0, 0, 5)},
		{Pedido: "P2", Posicion: "10", Material: "MAT-OTR", Quantity: 1, PriorityWeight: 3, DueDate: due.AddDate(0, 0, -5)},
	}

	program, _ := Generate(lines, jobs, testParts(), NewProgram(lines), DefaultWeights())

	require.Len(t, program[1], 3)
	require.Equal(t, "P1", program[1][0].Pedido)
	require.Equal(t, "P2", program[1][1].Pedido)
	require.Equal(t, "P3", program[1][2].Pedido)
}

func TestGenerateSkipsZeroQuantityJobs(t *testing.T) {
	lines := []models.Line{{ID: 1, Families: []string{"Otros"}}}
	jobs := []models.Job{
		{Pedido: "P1", Posicion: "10", Material: "MAT-OTR", Quantity: 0, PriorityWeight: 3},
		{Pedido: "P2", Posicion: "10", Material: "MAT-OTR", Quantity: 2, PriorityWeight: 3},
	}

	program, errs := Generate(lines, jobs, testParts(), NewProgram(lines), DefaultWeights())

	require.Empty(t, errs)
	require.Len(t, program[1], 1)
	require.Equal(t, "P2", program[1][0].Pedido)
}

func TestGenerateUnknownMaterialFallsBackToOtros(t *testing.T) {
	lines := testLines()
	jobs := []models.Job{
		{Pedido: "P1", Posicion: "10", Material: "UNKNOWN", Quantity: 2, PriorityWeight: 3},
	}

	program, errs := Generate(lines, jobs, testParts(), NewProgram(lines), DefaultWeights())

	require.Empty(t, errs)
	require.Len(t, program[2], 1)
	require.Equal(t, models.FallbackFamily, program[2][0].FamilyID)
}

func TestGenerateSeedLoadsShiftBalancing(t *testing.T) {
	lines := []models.Line{
		{ID: 1, Families: []string{"Otros"}},
		{ID: 2, Families: []string{"Otros"}},
	}
	seed := NewProgram(lines)
	seed[1] = append(seed[1], Row{Pedido: "PINNED", Posicion: "10", Material: "MAT-OTR", Quantity: 50})

	jobs := []models.Job{
		{Pedido: "P1", Posicion: "10", Material: "MAT-OTR", Quantity: 1, PriorityWeight: 3},
	}

	program, _ := Generate(lines, jobs, testParts(), seed, DefaultWeights())

	// The seeded pin weighs down line 1, so the free job lands on line 2.
	require.Len(t, program[2], 1)
	require.Empty(t, program[1])
}

func TestEligibleAttributeRequirements(t *testing.T) {
	line := models.Line{
		ID:                       1,
		Families:                 []string{"Parrillas"},
		RequiresInclinedDrilling: boolPtr(true),
	}

	require.True(t, Eligible(line, "Parrillas", true, false))
	require.False(t, Eligible(line, "Parrillas", false, false))
	require.False(t, Eligible(line, "Otros", true, false))

	// Nil requirement accepts either value.
	open := models.Line{ID: 2, Families: []string{"Parrillas"}}
	require.True(t, Eligible(open, "Parrillas", true, true))
	require.True(t, Eligible(open, "Parrillas", false, false))
}

func TestGenerateConservation(t *testing.T) {
	lines := testLines()
	jobs := []models.Job{
		{Pedido: "P1", Posicion: "10", Material: "MAT-PAR", Quantity: 5, PriorityWeight: 3},
		{Pedido: "P1", Posicion: "20", Material: "MAT-OTR", Quantity: 3, PriorityWeight: 3},
		{Pedido: "P2", Posicion: "10", Material: "MAT-LIF", Quantity: 4, PriorityWeight: 3},
	}

	program, errs := Generate(lines, jobs, testParts(), NewProgram(lines), DefaultWeights())

	seen := make(map[Key]int)
	for _, rows := range program {
		for _, r := range rows {
			seen[r.RowKey()]++
		}
	}
	for _, e := range errs {
		seen[Key{Pedido: e.Pedido, Posicion: e.Posicion, IsTest: e.IsTest}]++
	}

	require.Len(t, seen, 3)
	for k, n := range seen {
		require.Equalf(t, 1, n, "key %v appeared %d times", k, n)
	}
}
