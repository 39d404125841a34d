package planner

import (
	"math"
	"time"

	"example.com/foundry/services/scheduling/internal/models"
)

// MoldUnits converts an ordered piece quantity into the number of flask
// pours it requires. A non-positive pieces-per-mold is treated as 1.
func MoldUnits(quantity, piecesPerMold int) int {
	if piecesPerMold <= 0 {
		piecesPerMold = 1
	}
	return int(math.Ceil(float64(quantity) / float64(piecesPerMold)))
}

// CoolingDays is the number of whole days a poured mold occupies its flask.
func CoolingDays(coolingHours float64) int {
	return int(math.Ceil(coolingHours / 24))
}

// deliveryFrom computes the feasible delivery date for a pour completed on
// the given day: demolding after cooling, one release day, the finishing
// chain, and one dispatch day.
func deliveryFrom(completion time.Time, coolingHours float64, finishDays int) time.Time {
	return completion.AddDate(0, 0, CoolingDays(coolingHours)+1+finishDays+1)
}

// Delivery is the projected outcome for one order once its last mold unit
// has a pour day.
type Delivery struct {
	Date                time.Time
	FinishReductionDays int
	LateDays            int
}

// ProjectDelivery derives the delivery date from a completion day, then, if
// the order would be late, compresses finishing down to the part's minimum
// finish days until the due date is met or the compression is exhausted.
// Compression only changes the reported date; finishing consumes no modeled
// resource.
func ProjectDelivery(completion, due time.Time, part models.Part) Delivery {
	finish := part.FinishDays
	minFinish := part.MinFinishDays
	if minFinish > finish {
		minFinish = finish
	}

	date := deliveryFrom(completion, part.CoolingHours, finish)
	d := Delivery{Date: date}
	if due.IsZero() || !date.After(due) {
		return d
	}

	late := daysBetween(due, date)
	reduction := finish - minFinish
	if reduction > late {
		reduction = late
	}
	if reduction > 0 {
		d.FinishReductionDays = reduction
		d.Date = deliveryFrom(completion, part.CoolingHours, finish-reduction)
	}
	if d.Date.After(due) {
		d.LateDays = daysBetween(due, d.Date)
	}
	return d
}

// validatePart reports the first missing attribute that makes lead-time math
// impossible for an order, or "" when the part is usable.
func validatePart(part models.Part) string {
	switch {
	case part.FlaskSize == "":
		return "missing flask size"
	case part.UnitWeightTons <= 0:
		return "missing unit weight"
	case part.CoolingHours <= 0:
		return "missing cooling time"
	}
	return ""
}

func daysBetween(from, to time.Time) int {
	return int(normalizeDay(to).Sub(normalizeDay(from)).Hours() / 24)
}

func normalizeDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
