package planner

import (
	"math"
	"time"

	"github.com/google/uuid"

	"example.com/foundry/services/scheduling/internal/models"
)

// Config is the capacity configuration a ledger is rebuilt from. It is
// passed in explicitly; the planner reads no ambient global state.
type Config struct {
	HorizonDays         int
	MinHorizonDays      int
	BufferDays          int
	ShiftsByWeekday     map[time.Weekday]int
	MoldsPerShift       int
	PouringTonsPerShift float64
	SameMoldPerDay      int
	FlaskTotals         map[string]int
}

// Ledger is the day-indexed capacity state the planner consumes: flask
// inventory per size class, shared molding slots, and pouring tonnage, one
// entry per workday of the horizon.
type Ledger struct {
	days     []time.Time
	index    map[string]int
	flasks   []map[string]int
	molding  []int
	sameMold []int
	pouring  []float64
}

// Rebuild constructs a fresh ledger from configuration. Only configured
// working weekdays that are not holidays become ledger days. The horizon is
// min(configured horizon, days needed to cover the latest known due date)
// plus buffer, floored at MinHorizonDays so a short configured horizon never
// yields an empty calendar.
func Rebuild(cfg Config, holidays map[string]bool, today, latestDue time.Time) *Ledger {
	horizon := cfg.HorizonDays
	if !latestDue.IsZero() {
		if needed := daysBetween(today, latestDue); needed < horizon {
			horizon = needed
		}
	}
	if horizon < cfg.MinHorizonDays {
		horizon = cfg.MinHorizonDays
	}
	horizon += cfg.BufferDays

	l := &Ledger{index: make(map[string]int)}
	day := normalizeDay(today)
	for offset := 0; offset <= horizon; offset++ {
		d := day.AddDate(0, 0, offset)
		shifts := cfg.ShiftsByWeekday[d.Weekday()]
		if shifts <= 0 || holidays[dayKey(d)] {
			continue
		}

		avail := make(map[string]int, len(cfg.FlaskTotals))
		for flask, total := range cfg.FlaskTotals {
			avail[flask] = total
		}
		l.index[dayKey(d)] = len(l.days)
		l.days = append(l.days, d)
		l.flasks = append(l.flasks, avail)
		l.molding = append(l.molding, cfg.MoldsPerShift*shifts)
		l.sameMold = append(l.sameMold, cfg.SameMoldPerDay)
		l.pouring = append(l.pouring, cfg.PouringTonsPerShift*float64(shifts))
	}
	return l
}

// Days returns the ledger's workdays in chronological order.
func (l *Ledger) Days() []time.Time { return l.days }

// Len returns the number of workdays in the horizon.
func (l *Ledger) Len() int { return len(l.days) }

// FlaskAvailable returns the remaining flask count of one size on one day.
func (l *Ledger) FlaskAvailable(i int, flask string) int {
	return l.flasks[i][flask]
}

// Molding returns the remaining shared molding capacity on one day.
func (l *Ledger) Molding(i int) int { return l.molding[i] }

// SameMoldCap returns the per-material daily sub-cap recorded for one day.
func (l *Ledger) SameMoldCap(i int) int { return l.sameMold[i] }

// Pouring returns the remaining pouring tonnage on one day.
func (l *Ledger) Pouring(i int) float64 { return l.pouring[i] }

// Place consumes molding capacity, pouring tonnage, and flask inventory for
// a pour of the given size on one day.
func (l *Ledger) Place(i int, flask string, molds int, tons float64) {
	l.flasks[i][flask] -= molds
	l.molding[i] -= molds
	l.pouring[i] -= tons
	if l.flasks[i][flask] < 0 {
		l.flasks[i][flask] = 0
	}
	if l.molding[i] < 0 {
		l.molding[i] = 0
	}
	if l.pouring[i] < 0 {
		l.pouring[i] = 0
	}
}

// OccupyFlasks removes cooling occupancy from the flask inventory only,
// flooring at zero.
func (l *Ledger) OccupyFlasks(i int, flask string, molds int) {
	l.flasks[i][flask] -= molds
	if l.flasks[i][flask] < 0 {
		l.flasks[i][flask] = 0
	}
}

// ConsumePouring deducts tonnage on one day, flooring at zero.
func (l *Ledger) ConsumePouring(i int, tons float64) {
	l.pouring[i] -= tons
	if l.pouring[i] < 0 {
		l.pouring[i] = 0
	}
}

// Records flattens the ledger into the persisted per-(day, flask) rows that
// replace the scenario's previous ledger wholesale.
func (l *Ledger) Records(scenarioID uuid.UUID) []models.DailyResource {
	var out []models.DailyResource
	for i, day := range l.days {
		for flask, qty := range l.flasks[i] {
			out = append(out, models.DailyResource{
				ID:               uuid.New(),
				ScenarioID:       scenarioID,
				Day:              day,
				FlaskType:        flask,
				AvailableQty:     qty,
				MoldingCapacity:  l.molding[i],
				SameMoldCapacity: l.sameMold[i],
				PouringTons:      l.pouring[i],
			})
		}
	}
	return out
}

// DecrementWIP charges in-flight work against a freshly rebuilt ledger.
// Phase one: completed-but-not-demolded pieces occupy their flask from today
// until max(demold date, today) plus one day; fractional per-piece occupancy
// accumulates per (day, flask) and is rounded up before subtracting.
// Phase two: molds still awaiting pour are walked onto the earliest days
// with pouring tonnage, then occupy a flask through cooling. Materials with
// no usable part record are returned as diagnostics and consume nothing.
func DecrementWIP(l *Ledger, parts map[string]models.Part, wip []models.WipMold, pieces []models.CompletedPiece, today time.Time) []string {
	var missing []string
	today = normalizeDay(today)

	occupancy := make([]map[string]float64, l.Len())
	for _, piece := range pieces {
		part, ok := parts[piece.Material]
		if !ok || part.FlaskSize == "" {
			missing = append(missing, piece.Material)
			continue
		}
		until := normalizeDay(piece.DemoldDate)
		if until.Before(today) {
			until = today
		}
		until = until.AddDate(0, 0, 1)

		for i, day := range l.days {
			if day.Before(today) || day.After(until) {
				continue
			}
			if occupancy[i] == nil {
				occupancy[i] = make(map[string]float64)
			}
			occupancy[i][part.FlaskSize] += piece.MoldQuantity * float64(piece.Quantity)
		}
	}
	for i, perFlask := range occupancy {
		for flask, frac := range perFlask {
			l.OccupyFlasks(i, flask, int(math.Ceil(frac)))
		}
	}

	for _, mold := range wip {
		part, ok := parts[mold.Material]
		if !ok || part.FlaskSize == "" || part.UnitWeightTons <= 0 {
			missing = append(missing, mold.Material)
			continue
		}
		remaining := mold.Molds
		for i := 0; i < l.Len() && remaining > 0; i++ {
			if l.days[i].Before(today) {
				continue
			}
			fit := int(l.Pouring(i) / part.UnitWeightTons)
			if fit <= 0 {
				continue
			}
			if fit > remaining {
				fit = remaining
			}
			l.ConsumePouring(i, float64(fit)*part.UnitWeightTons)
			occupyThrough(l, i, part, fit)
			remaining -= fit
		}
		if remaining > 0 && l.Len() > 0 {
			// No tonnage anywhere in the horizon: the molds still hold
			// flasks from today onward.
			occupyThrough(l, l.Len()-1, part, remaining)
		}
	}

	return missing
}

// occupyThrough holds flasks from the pour day through cooling plus the
// demold day.
func occupyThrough(l *Ledger, pourIdx int, part models.Part, molds int) {
	until := l.days[pourIdx].AddDate(0, 0, CoolingDays(part.CoolingHours)+1)
	for i := 0; i < l.Len(); i++ {
		if l.days[i].After(until) {
			break
		}
		l.OccupyFlasks(i, part.FlaskSize, molds)
	}
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
