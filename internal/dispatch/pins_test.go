package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/foundry/services/scheduling/internal/models"
)

func pinStock(qty, corrMin int) map[Key]Stock {
	return map[Key]Stock{
		{Pedido: "P1", Posicion: "10"}: {
			Material:       "MAT-OTR",
			Quantity:       qty,
			CorrelativoMin: corrMin,
			PriorityWeight: 3,
		},
	}
}

func TestApplyPinsMovesRowToPinnedLine(t *testing.T) {
	lines := testLines()
	program := NewProgram(lines)
	program[2] = append(program[2], Row{Pedido: "P1", Posicion: "10", Material: "MAT-OTR", Quantity: 8})

	pins := []models.Pin{
		{ID: 1, Pedido: "P1", Posicion: "10", SplitID: 1, LineID: 1, MarkedAt: time.Now()},
	}

	merged, errs, stale := ApplyPins(program, nil, pinStock(8, 0), pins, testParts(), DefaultWeights())

	require.Empty(t, errs)
	require.Empty(t, stale)
	require.Empty(t, merged[2])
	require.Len(t, merged[1], 1)
	require.Equal(t, 8, merged[1][0].Quantity)
	require.True(t, merged[1][0].InProgress)
}

func TestApplyPinsSplitQuantities(t *testing.T) {
	lines := testLines()
	marked := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	pins := []models.Pin{
		{ID: 1, Pedido: "P1", Posicion: "10", SplitID: 1, LineID: 1, Quantity: 3, MarkedAt: marked},
		{ID: 2, Pedido: "P1", Posicion: "10", SplitID: 2, LineID: 2, Quantity: 0, MarkedAt: marked.Add(time.Hour)},
	}

	merged, _, stale := ApplyPins(NewProgram(lines), nil, pinStock(10, 100), pins, testParts(), DefaultWeights())

	require.Empty(t, stale)
	require.Len(t, merged[1], 1)
	require.Len(t, merged[2], 1)
	require.Equal(t, 3, merged[1][0].Quantity)
	// Last split absorbs the remainder.
	require.Equal(t, 7, merged[2][0].Quantity)

	// Correlativo sub-ranges advance without overlap.
	require.Equal(t, 100, merged[1][0].CorrelativoMin)
	require.Equal(t, 102, merged[1][0].CorrelativoMax)
	require.Equal(t, 103, merged[2][0].CorrelativoMin)
	require.Equal(t, 109, merged[2][0].CorrelativoMax)
}

func TestApplyPinsQuantityConservation(t *testing.T) {
	lines := testLines()
	marked := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	pins := []models.Pin{
		{ID: 1, Pedido: "P1", Posicion: "10", SplitID: 1, LineID: 1, Quantity: 6, MarkedAt: marked},
		{ID: 2, Pedido: "P1", Posicion: "10", SplitID: 2, LineID: 2, Quantity: 6, MarkedAt: marked.Add(time.Hour)},
	}

	merged, _, _ := ApplyPins(NewProgram(lines), nil, pinStock(9, 0), pins, testParts(), DefaultWeights())

	total := 0
	for _, rows := range merged {
		for _, r := range rows {
			total += r.Quantity
		}
	}
	require.Equal(t, 9, total)
}

func TestApplyPinsShrunkOrderTrimsLatestSplit(t *testing.T) {
	lines := testLines()
	marked := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	pins := []models.Pin{
		{ID: 1, Pedido: "P1", Posicion: "10", SplitID: 1, LineID: 1, Quantity: 5, MarkedAt: marked},
		{ID: 2, Pedido: "P1", Posicion: "10", SplitID: 2, LineID: 2, Quantity: 5, MarkedAt: marked.Add(time.Hour)},
	}

	// The order shrank from 10 to 4: the earlier split keeps what it can,
	// the later split is trimmed away entirely.
	merged, _, stale := ApplyPins(NewProgram(lines), nil, pinStock(4, 0), pins, testParts(), DefaultWeights())

	require.Empty(t, stale)
	require.Len(t, merged[1], 1)
	require.Equal(t, 4, merged[1][0].Quantity)
	require.Empty(t, merged[2])
}

func TestApplyPinsStalePinReturned(t *testing.T) {
	lines := testLines()
	pins := []models.Pin{
		{ID: 9, Pedido: "GONE", Posicion: "10", SplitID: 1, LineID: 1, MarkedAt: time.Now()},
	}

	merged, _, stale := ApplyPins(NewProgram(lines), nil, pinStock(5, 0), pins, testParts(), DefaultWeights())

	require.Len(t, stale, 1)
	require.Equal(t, uint(9), stale[0].ID)
	require.Empty(t, merged[1])
	require.Empty(t, merged[2])
}

func TestApplyPinsRemovesKeyFromErrors(t *testing.T) {
	lines := testLines()
	errs := []Unplaced{
		{Pedido: "P1", Posicion: "10", Material: "MAT-OTR", Reason: "no eligible line for family Lifters"},
		{Pedido: "P9", Posicion: "10", Material: "MAT-LIF", Reason: "no eligible line for family Lifters"},
	}
	pins := []models.Pin{
		{ID: 1, Pedido: "P1", Posicion: "10", SplitID: 1, LineID: 1, MarkedAt: time.Now()},
	}

	_, mergedErrs, _ := ApplyPins(NewProgram(lines), errs, pinStock(5, 0), pins, testParts(), DefaultWeights())

	require.Len(t, mergedErrs, 1)
	require.Equal(t, "P9", mergedErrs[0].Pedido)
}

func TestApplyPinsPrependsPinnedRows(t *testing.T) {
	lines := testLines()
	program := NewProgram(lines)
	program[1] = append(program[1], Row{Pedido: "FREE", Posicion: "10", Material: "MAT-PAR", Quantity: 2})

	pins := []models.Pin{
		{ID: 1, Pedido: "P1", Posicion: "10", SplitID: 1, LineID: 1, MarkedAt: time.Now()},
	}

	merged, _, _ := ApplyPins(program, nil, pinStock(5, 0), pins, testParts(), DefaultWeights())

	require.Len(t, merged[1], 2)
	require.Equal(t, "P1", merged[1][0].Pedido)
	require.Equal(t, "FREE", merged[1][1].Pedido)
}

func TestApplyPinsIdempotent(t *testing.T) {
	lines := testLines()
	program := NewProgram(lines)
	program[2] = append(program[2], Row{Pedido: "FREE", Posicion: "10", Material: "MAT-OTR", Quantity: 2})

	marked := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	pins := []models.Pin{
		{ID: 1, Pedido: "P1", Posicion: "10", SplitID: 1, LineID: 1, Quantity: 3, MarkedAt: marked},
		{ID: 2, Pedido: "P1", Posicion: "10", SplitID: 2, LineID: 2, MarkedAt: marked.Add(time.Hour)},
	}
	stock := pinStock(10, 0)
	parts := testParts()
	w := DefaultWeights()

	once, errsOnce, _ := ApplyPins(program, nil, stock, pins, parts, w)
	twice, errsTwice, _ := ApplyPins(once, errsOnce, stock, pins, parts, w)

	require.Equal(t, once, twice)
	require.Equal(t, errsOnce, errsTwice)
}
