package dispatch

import (
	"fmt"
	"sort"
	"time"

	"example.com/foundry/services/scheduling/internal/models"
)

// Eligible reports whether a line can accept a part: the part's family must
// be in the line's allowed set and every boolean requirement the line
// declares must equal the part's corresponding flag. A nil requirement is
// "don't care".
func Eligible(line models.Line, family string, inclinedDrilling, oversized bool) bool {
	found := false
	for _, f := range line.Families {
		if f == family {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if line.RequiresInclinedDrilling != nil && *line.RequiresInclinedDrilling != inclinedDrilling {
		return false
	}
	if line.RequiresOversized != nil && *line.RequiresOversized != oversized {
		return false
	}
	return true
}

// Generate assigns the given jobs to lines and returns one ordered sequence
// per line plus the jobs no line could accept. The pinned program is used
// only to seed each line's current load, so balancing accounts for work a
// pin already fixed to a line; pinned rows themselves are merged afterwards
// by ApplyPins. Pure function: no side effects on its inputs' backing store.
func Generate(lines []models.Line, jobs []models.Job, parts map[string]models.Part, pinned Program, w Weights) (Program, []Unplaced) {
	program := NewProgram(lines)
	errs := []Unplaced{}

	loads := make(map[uint]int, len(lines))
	for id, rows := range pinned {
		for _, r := range rows {
			loads[id] += r.Quantity
		}
	}

	ordered := make([]models.Job, len(jobs))
	copy(ordered, jobs)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.PriorityWeight != b.PriorityWeight {
			return a.PriorityWeight < b.PriorityWeight
		}
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		if a.Pedido != b.Pedido {
			return a.Pedido < b.Pedido
		}
		if a.Posicion != b.Posicion {
			return a.Posicion < b.Posicion
		}
		return a.Material < b.Material
	})

	for _, job := range ordered {
		if job.Quantity <= 0 {
			continue
		}

		family := models.FallbackFamily
		inclined, oversized := false, false
		var remainingDays int
		if part, ok := parts[job.Material]; ok {
			family = part.FamilyID
			inclined = part.InclinedDrilling
			oversized = part.Oversized
			remainingDays = part.RemainingStepDays()
		}

		var best *models.Line
		for i := range lines {
			line := &lines[i]
			if !Eligible(*line, family, inclined, oversized) {
				continue
			}
			if best == nil || loads[line.ID] < loads[best.ID] ||
				(loads[line.ID] == loads[best.ID] && line.ID < best.ID) {
				best = line
			}
		}
		if best == nil {
			errs = append(errs, Unplaced{
				Pedido:   job.Pedido,
				Posicion: job.Posicion,
				Material: job.Material,
				FamilyID: family,
				Quantity: job.Quantity,
				IsTest:   job.IsTest,
				Reason:   fmt.Sprintf("no eligible line for family %s", family),
			})
			continue
		}

		program[best.ID] = append(program[best.ID], Row{
			Pedido:         job.Pedido,
			Posicion:       job.Posicion,
			Material:       job.Material,
			Quantity:       job.Quantity,
			FamilyID:       family,
			Kind:           w.Classify(job.PriorityWeight),
			IsTest:         job.IsTest,
			CorrelativoMin: job.CorrelativoMin,
			CorrelativoMax: job.CorrelativoMax,
			MustStartBy:    mustStartBy(job.DueDate, remainingDays),
			DueDate:        job.DueDate,
			Client:         job.Client,
		})
		loads[best.ID] += job.Quantity
	}

	return program, errs
}

func mustStartBy(due time.Time, remainingDays int) time.Time {
	if due.IsZero() {
		return due
	}
	return due.AddDate(0, 0, -remainingDays)
}
