package planner

import (
	"fmt"
	"sort"
	"time"

	"example.com/foundry/services/scheduling/internal/models"
)

// Placement is one (order, day) pour decision.
type Placement struct {
	OrderNo   string    `json:"order_no"`
	Material  string    `json:"material"`
	Day       time.Time `json:"day"`
	FlaskType string    `json:"flask_type"`
	MoldCount int       `json:"mold_count"`
	Tons      float64   `json:"tons"`
}

// OrderResult is the projected outcome for one planned order.
type OrderResult struct {
	OrderNo             string    `json:"order_no"`
	Material            string    `json:"material"`
	Quantity            int       `json:"quantity"`
	MoldUnits           int       `json:"mold_units"`
	PlacedUnits         int       `json:"placed_units"`
	UnplacedUnits       int       `json:"unplaced_units"`
	CompletionDay       time.Time `json:"completion_day"`
	DeliveryDate        time.Time `json:"delivery_date"`
	DueDate             time.Time `json:"due_date"`
	FinishReductionDays int       `json:"finish_reduction_days"`
	LateDays            int       `json:"late_days"`
}

// Late reports whether the order misses its due date even after maximal
// finish compression.
func (r OrderResult) Late() bool { return r.LateDays > 0 }

// Skipped is the diagnostic for an order excluded from the run.
type Skipped struct {
	OrderNo  string `json:"order_no"`
	Material string `json:"material"`
	Reason   string `json:"reason"`
}

// Result is the full output of one planner pass.
type Result struct {
	Placements []Placement   `json:"placements"`
	Orders     []OrderResult `json:"orders"`
	Skipped    []Skipped     `json:"skipped"`
}

// Run places every order's required mold units onto the ledger's workdays.
// Orders are processed in ascending (priority, due date, order number)
// order; each walks the calendar from tomorrow and takes as much of a day's
// remaining flask, molding, same-material, and tonnage capacity as it can,
// spilling the rest onto later days. An order that cannot be fully placed
// within the horizon keeps its partial placements and reports the remainder;
// it never aborts the batch. The ledger is consumed in place.
func Run(orders []models.PlannerOrder, parts map[string]models.Part, l *Ledger, today time.Time) Result {
	res := Result{}
	today = normalizeDay(today)

	ordered := make([]models.PlannerOrder, len(orders))
	copy(ordered, orders)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.OrderNo < b.OrderNo
	})

	// Same-material daily consumption is shared across orders.
	type sameKey struct {
		day      int
		material string
	}
	sameUsed := make(map[sameKey]int)

	for _, order := range ordered {
		if order.Quantity <= 0 {
			res.Skipped = append(res.Skipped, Skipped{
				OrderNo:  order.OrderNo,
				Material: order.Material,
				Reason:   fmt.Sprintf("non-positive quantity %d", order.Quantity),
			})
			continue
		}
		part, ok := parts[order.Material]
		if !ok {
			res.Skipped = append(res.Skipped, Skipped{
				OrderNo:  order.OrderNo,
				Material: order.Material,
				Reason:   "no part record",
			})
			continue
		}
		if reason := validatePart(part); reason != "" {
			res.Skipped = append(res.Skipped, Skipped{
				OrderNo:  order.OrderNo,
				Material: order.Material,
				Reason:   reason,
			})
			continue
		}

		units := MoldUnits(order.Quantity, part.PiecesPerMold)
		remaining := units
		var completion time.Time

		// Today is reserved for already-committed work.
		for i := 0; i < l.Len() && remaining > 0; i++ {
			if !l.days[i].After(today) {
				continue
			}

			fit := remaining
			if avail := l.FlaskAvailable(i, part.FlaskSize); avail < fit {
				fit = avail
			}
			if molding := l.Molding(i); molding < fit {
				fit = molding
			}
			if same := l.SameMoldCap(i) - sameUsed[sameKey{i, order.Material}]; same < fit {
				fit = same
			}
			if byTons := int(l.Pouring(i) / part.UnitWeightTons); byTons < fit {
				fit = byTons
			}
			if fit <= 0 {
				continue
			}

			tons := float64(fit) * part.UnitWeightTons
			l.Place(i, part.FlaskSize, fit, tons)
			sameUsed[sameKey{i, order.Material}] += fit
			res.Placements = append(res.Placements, Placement{
				OrderNo:   order.OrderNo,
				Material:  order.Material,
				Day:       l.days[i],
				FlaskType: part.FlaskSize,
				MoldCount: fit,
				Tons:      tons,
			})
			remaining -= fit
			completion = l.days[i]
		}

		result := OrderResult{
			OrderNo:       order.OrderNo,
			Material:      order.Material,
			Quantity:      order.Quantity,
			MoldUnits:     units,
			PlacedUnits:   units - remaining,
			UnplacedUnits: remaining,
			DueDate:       order.DueDate,
		}
		if remaining == 0 {
			result.CompletionDay = completion
			delivery := ProjectDelivery(completion, order.DueDate, part)
			result.DeliveryDate = delivery.Date
			result.FinishReductionDays = delivery.FinishReductionDays
			result.LateDays = delivery.LateDays
		}
		res.Orders = append(res.Orders, result)
	}

	return res
}
