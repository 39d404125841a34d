package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType definitions
const (
	StockRefreshed = "StockRefreshed"
	PlanRequested  = "PlanRequested"
)

// AzureBusMessage is the common message structure
type AzureBusMessage struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

// StockRefreshedEvent is published by the upload pipeline after a new job
// snapshot has been written for a process.
type StockRefreshedEvent struct {
	ProcessID uint `json:"process_id"`
}

// PlanRequestedEvent asks the worker to run the planner for a scenario.
type PlanRequestedEvent struct {
	ScenarioID uuid.UUID `json:"scenario_id"`
}

// DispatchHandler regenerates the dispatch program for a process.
type DispatchHandler interface {
	GenerateProgram(ctx context.Context, processID uint) error
}

// PlannerHandler runs the planner for a scenario.
type PlannerHandler interface {
	RunPlan(ctx context.Context, scenarioID uuid.UUID) error
}

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error
}

type Processor struct {
	dispatch DispatchHandler
	planner  PlannerHandler
}

func NewProcessor(dispatch DispatchHandler, planner PlannerHandler) *Processor {
	return &Processor{
		dispatch: dispatch,
		planner:  planner,
	}
}

func (p *Processor) ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	var msg AzureBusMessage
	if err := json.Unmarshal(message.Body, &msg); err != nil {
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	log.Info().Str("eventType", msg.EventType).Msg("Processing message")

	switch msg.EventType {
	case StockRefreshed:
		var ev StockRefreshedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return err
		}
		return p.dispatch.GenerateProgram(ctx, ev.ProcessID)

	case PlanRequested:
		var ev PlanRequestedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return err
		}
		return p.planner.RunPlan(ctx, ev.ScenarioID)

	default:
		return fmt.Errorf("unsupported event type: %s", msg.EventType)
	}
}
