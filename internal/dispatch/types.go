package dispatch

import (
	"time"

	"example.com/foundry/services/scheduling/internal/models"
)

// Weights maps priority classes to the numeric weight used for job ordering.
// Lower weight means more urgent.
type Weights struct {
	Test   int `json:"test"`
	Manual int `json:"manual"`
	Normal int `json:"normal"`
}

// DefaultWeights returns the standard test=1, manual=2, normal=3 ordering.
func DefaultWeights() Weights {
	return Weights{Test: 1, Manual: 2, Normal: 3}
}

// Kind tags a row for UI coloring.
type Kind string

const (
	KindTest     Kind = "test"
	KindPriority Kind = "priority"
	KindNormal   Kind = "normal"
)

// Classify maps a job's priority weight back to its display kind.
func (w Weights) Classify(weight int) Kind {
	switch weight {
	case w.Test:
		return KindTest
	case w.Manual:
		return KindPriority
	default:
		return KindNormal
	}
}

// Row is one placed entry of a line's dispatch sequence.
type Row struct {
	Pedido         string    `json:"pedido"`
	Posicion       string    `json:"posicion"`
	Material       string    `json:"material"`
	Quantity       int       `json:"quantity"`
	FamilyID       string    `json:"family_id"`
	Kind           Kind      `json:"priority_kind"`
	IsTest         bool      `json:"is_test"`
	InProgress     bool      `json:"in_progress"`
	SplitID        int       `json:"split_id"`
	CorrelativoMin int       `json:"correlativo_min"`
	CorrelativoMax int       `json:"correlativo_max"`
	MustStartBy    time.Time `json:"must_start_by"`
	DueDate        time.Time `json:"due_date"`
	Client         string    `json:"client"`
}

// Key identifies one order-position for overlay purposes.
type Key struct {
	Pedido   string
	Posicion string
	IsTest   bool
}

// RowKey returns the overlay key of a row.
func (r Row) RowKey() Key {
	return Key{Pedido: r.Pedido, Posicion: r.Posicion, IsTest: r.IsTest}
}

// Program maps line ID to that line's ordered row sequence. Every configured
// line appears as a key, even when its sequence is empty.
type Program map[uint][]Row

// NewProgram returns an empty program covering the given lines.
func NewProgram(lines []models.Line) Program {
	p := make(Program, len(lines))
	for _, l := range lines {
		p[l.ID] = []Row{}
	}
	return p
}

// Clone returns a deep copy of the program.
func (p Program) Clone() Program {
	out := make(Program, len(p))
	for id, rows := range p {
		cp := make([]Row, len(rows))
		copy(cp, rows)
		out[id] = cp
	}
	return out
}

// Unplaced describes a job no line could accept.
type Unplaced struct {
	Pedido   string `json:"pedido"`
	Posicion string `json:"posicion"`
	Material string `json:"material"`
	FamilyID string `json:"family_id"`
	Quantity int    `json:"quantity"`
	IsTest   bool   `json:"is_test"`
	Reason   string `json:"reason"`
}

// Stock is the current true state of one order-position, looked up from the
// live job snapshot rather than from a stale cached program.
type Stock struct {
	Material       string
	Quantity       int
	CorrelativoMin int
	CorrelativoMax int
	Client         string
	DueDate        time.Time
	PriorityWeight int
	IsTest         bool
}

// StockIndex builds the order-position lookup the pin overlay needs from the
// current job snapshot.
func StockIndex(jobs []models.Job) map[Key]Stock {
	idx := make(map[Key]Stock, len(jobs))
	for _, j := range jobs {
		idx[Key{Pedido: j.Pedido, Posicion: j.Posicion, IsTest: j.IsTest}] = Stock{
			Material:       j.Material,
			Quantity:       j.Quantity,
			CorrelativoMin: j.CorrelativoMin,
			CorrelativoMax: j.CorrelativoMax,
			Client:         j.Client,
			DueDate:        j.DueDate,
			PriorityWeight: j.PriorityWeight,
			IsTest:         j.IsTest,
		}
	}
	return idx
}
