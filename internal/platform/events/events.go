// Package events carries integration events between services.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	PatientCaseCreated = "PatientCaseCreated"
	PatientCaseDeleted = "PatientCaseDeleted"

	BloodPressureCreated = "BloodPressureCreated"
	BloodPressureUpdated = "BloodPressureUpdated"
	BloodPressureDeleted = "BloodPressureDeleted"
	BodyWeightCreated    = "BodyWeightCreated"
	BodyWeightUpdated    = "BodyWeightUpdated"
	BodyWeightDeleted    = "BodyWeightDeleted"
	TemperatureCreated   = "TemperatureCreated"
	TemperatureUpdated   = "TemperatureUpdated"
	TemperatureDeleted   = "TemperatureDeleted"
)

var ErrClosed = errors.New("event bus closed")

// Event is the envelope of an integration event.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Source     string          `json:"source"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// New wraps payload in an event emitted by source.
func New(name, source string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Event{
		ID:         uuid.New(),
		Name:       name,
		Source:     source,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return nil
}

// PatientCase is the payload of the patient case events.
type PatientCase struct {
	ID        uuid.UUID  `json:"id"`
	Firstname string     `json:"firstname,omitempty"`
	Lastname  string     `json:"lastname"`
	BirthDate *time.Time `json:"birthDate,omitempty"`
}

// Name returns "Firstname Lastname", or the lastname alone.
func (p PatientCase) Name() string {
	if p.Firstname == "" {
		return p.Lastname
	}
	return p.Firstname + " " + p.Lastname
}

// MeasureChanged is the payload of the measure events.
type MeasureChanged struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patientId"`
}

type Handler func(ctx context.Context, e Event) error

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus delivers published events to the handlers subscribed to their name.
type Bus interface {
	Publisher
	Subscribe(name string, h Handler)
}

// Publish builds and publishes an event in one call.
func Publish(ctx context.Context, p Publisher, name, source string, payload interface{}) error {
	if p == nil {
		return nil
	}
	e, err := New(name, source, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, e)
}

type multi []Publisher

// Multi publishes every event to each publisher in turn.
func Multi(publishers ...Publisher) Publisher {
	return multi(publishers)
}

func (m multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
