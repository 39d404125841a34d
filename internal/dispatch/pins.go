package dispatch

import (
	"sort"

	"example.com/foundry/services/scheduling/internal/models"
)

// ApplyPins merges the pin overlay into a program. For every pinned
// order-position it looks up the current true quantity and correlativo range,
// recomputes the split quantities, strips any stale occurrence of the key
// from the program and error list, and prepends the pinned rows to the head
// of their target lines. Pins whose order-position no longer exists are
// returned as stale for the caller to delete; the merge itself never touches
// storage. Applying it twice with unchanged inputs yields identical output.
func ApplyPins(program Program, errs []Unplaced, orders map[Key]Stock, pins []models.Pin, parts map[string]models.Part, w Weights) (Program, []Unplaced, []models.Pin) {
	merged := program.Clone()

	byKey := make(map[Key][]models.Pin)
	for _, pin := range pins {
		k := Key{Pedido: pin.Pedido, Posicion: pin.Posicion, IsTest: pin.IsTest}
		byKey[k] = append(byKey[k], pin)
	}

	keys := make([]Key, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Pedido != b.Pedido {
			return a.Pedido < b.Pedido
		}
		if a.Posicion != b.Posicion {
			return a.Posicion < b.Posicion
		}
		return !a.IsTest && b.IsTest
	})

	var stale []models.Pin
	pinnedRows := make(map[uint][]Row)

	for _, k := range keys {
		stock, ok := orders[k]
		if !ok || stock.Quantity <= 0 {
			stale = append(stale, byKey[k]...)
			continue
		}

		splits := byKey[k]
		sort.SliceStable(splits, func(i, j int) bool {
			if !splits[i].MarkedAt.Equal(splits[j].MarkedAt) {
				return splits[i].MarkedAt.Before(splits[j].MarkedAt)
			}
			return splits[i].SplitID < splits[j].SplitID
		})

		family := models.FallbackFamily
		var remainingDays int
		if part, ok := parts[stock.Material]; ok {
			family = part.FamilyID
			remainingDays = part.RemainingStepDays()
		}

		// Explicit quantities are clamped to what is still unassigned; the
		// last split absorbs the remainder. An order that shrank below its
		// pinned total therefore trims from the last split backward.
		remaining := stock.Quantity
		corr := stock.CorrelativoMin
		for i, pin := range splits {
			qty := clamp(pin.Quantity, remaining)
			if i == len(splits)-1 {
				qty = remaining
			}
			if qty <= 0 {
				continue
			}
			remaining -= qty

			pinnedRows[pin.LineID] = append(pinnedRows[pin.LineID], Row{
				Pedido:         k.Pedido,
				Posicion:       k.Posicion,
				Material:       stock.Material,
				Quantity:       qty,
				FamilyID:       family,
				Kind:           w.Classify(stock.PriorityWeight),
				IsTest:         k.IsTest,
				InProgress:     true,
				SplitID:        pin.SplitID,
				CorrelativoMin: corr,
				CorrelativoMax: corr + qty - 1,
				MustStartBy:    mustStartBy(stock.DueDate, remainingDays),
				DueDate:        stock.DueDate,
				Client:         stock.Client,
			})
			corr += qty
		}
	}

	// Strip every pinned key (live or stale) from the generic rows and from
	// the error list, and re-flag the survivors as not in progress.
	for id, rows := range merged {
		kept := rows[:0]
		for _, r := range rows {
			if _, pinnedKey := byKey[r.RowKey()]; pinnedKey {
				continue
			}
			r.InProgress = false
			r.SplitID = 0
			kept = append(kept, r)
		}
		merged[id] = kept
	}

	mergedErrs := make([]Unplaced, 0, len(errs))
	for _, e := range errs {
		k := Key{Pedido: e.Pedido, Posicion: e.Posicion, IsTest: e.IsTest}
		if _, pinnedKey := byKey[k]; pinnedKey {
			continue
		}
		mergedErrs = append(mergedErrs, e)
	}

	// Pinned rows always lead their line, ahead of algorithmic placements.
	for lineID, rows := range pinnedRows {
		merged[lineID] = append(rows, merged[lineID]...)
	}

	return merged, mergedErrs, stale
}

func clamp(qty, remaining int) int {
	if qty < 0 {
		return 0
	}
	if qty > remaining {
		return remaining
	}
	return qty
}
