package dispatch

import (
	"sort"

	"example.com/foundry/services/scheduling/internal/models"
)

// Flatten converts a program into the persisted row and error records for
// one process. Sequence numbers encode each line's row order.
func Flatten(processID uint, p Program, errs []Unplaced) ([]models.ProgramRow, []models.ProgramError) {
	lineIDs := make([]uint, 0, len(p))
	for id := range p {
		lineIDs = append(lineIDs, id)
	}
	sort.Slice(lineIDs, func(i, j int) bool { return lineIDs[i] < lineIDs[j] })

	var rows []models.ProgramRow
	for _, lineID := range lineIDs {
		for seq, r := range p[lineID] {
			rows = append(rows, models.ProgramRow{
				ProcessID:      processID,
				LineID:         lineID,
				Seq:            seq,
				Pedido:         r.Pedido,
				Posicion:       r.Posicion,
				Material:       r.Material,
				Quantity:       r.Quantity,
				FamilyID:       r.FamilyID,
				PriorityKind:   string(r.Kind),
				IsTest:         r.IsTest,
				InProgress:     r.InProgress,
				SplitID:        r.SplitID,
				CorrelativoMin: r.CorrelativoMin,
				CorrelativoMax: r.CorrelativoMax,
				MustStartBy:    r.MustStartBy,
				DueDate:        r.DueDate,
				Client:         r.Client,
			})
		}
	}

	var errRecords []models.ProgramError
	for _, e := range errs {
		errRecords = append(errRecords, models.ProgramError{
			ProcessID: processID,
			Pedido:    e.Pedido,
			Posicion:  e.Posicion,
			Material:  e.Material,
			FamilyID:  e.FamilyID,
			Quantity:  e.Quantity,
			IsTest:    e.IsTest,
			Reason:    e.Reason,
		})
	}

	return rows, errRecords
}

// FromRows rebuilds the in-memory program from persisted records. Lines with
// no rows still appear with an empty sequence.
func FromRows(lines []models.Line, rows []models.ProgramRow, errRecords []models.ProgramError) (Program, []Unplaced) {
	p := NewProgram(lines)

	sorted := make([]models.ProgramRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].LineID != sorted[j].LineID {
			return sorted[i].LineID < sorted[j].LineID
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	for _, r := range sorted {
		p[r.LineID] = append(p[r.LineID], Row{
			Pedido:         r.Pedido,
			Posicion:       r.Posicion,
			Material:       r.Material,
			Quantity:       r.Quantity,
			FamilyID:       r.FamilyID,
			Kind:           Kind(r.PriorityKind),
			IsTest:         r.IsTest,
			InProgress:     r.InProgress,
			SplitID:        r.SplitID,
			CorrelativoMin: r.CorrelativoMin,
			CorrelativoMax: r.CorrelativoMax,
			MustStartBy:    r.MustStartBy,
			DueDate:        r.DueDate,
			Client:         r.Client,
		})
	}

	errs := make([]Unplaced, 0, len(errRecords))
	for _, e := range errRecords {
		errs = append(errs, Unplaced{
			Pedido:   e.Pedido,
			Posicion: e.Posicion,
			Material: e.Material,
			FamilyID: e.FamilyID,
			Quantity: e.Quantity,
			IsTest:   e.IsTest,
			Reason:   e.Reason,
		})
	}

	return p, errs
}
