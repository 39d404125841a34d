package planner

import "sort"

// WeekLoad aggregates one ISO week of the mold schedule.
type WeekLoad struct {
	Year       int     `json:"year"`
	Week       int     `json:"week"`
	Molds      int     `json:"molds"`
	Tons       float64 `json:"tons"`
	LateOrders int     `json:"late_orders"`
}

// Summarize rolls placements up into per-ISO-week molding load, counting
// each late order in the week of its projected delivery.
func Summarize(res Result) []WeekLoad {
	type wk struct{ year, week int }
	buckets := make(map[wk]*WeekLoad)

	get := func(year, week int) *WeekLoad {
		k := wk{year, week}
		if buckets[k] == nil {
			buckets[k] = &WeekLoad{Year: year, Week: week}
		}
		return buckets[k]
	}

	for _, p := range res.Placements {
		y, w := p.Day.ISOWeek()
		b := get(y, w)
		b.Molds += p.MoldCount
		b.Tons += p.Tons
	}
	for _, o := range res.Orders {
		if !o.Late() || o.DeliveryDate.IsZero() {
			continue
		}
		y, w := o.DeliveryDate.ISOWeek()
		get(y, w).LateOrders++
	}

	out := make([]WeekLoad, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Week < out[j].Week
	})
	return out
}
