package patients

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medeasy/medeasy/internal/platform/cqrs"
	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/events"
	"github.com/medeasy/medeasy/internal/platform/jsonpatch"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/internal/platform/validation"
)

// -- Mock Repository --

type mockRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, db.NotFound("patient", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	stored, ok := m.patients[p.ID]
	if !ok {
		return db.NotFound("patient", p.ID)
	}
	if stored.Version != p.Version {
		return db.ErrVersionMismatch
	}
	p.Version++
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.patients[id]; !ok {
		return db.NotFound("patient", id)
	}
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) Search(_ context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Patient, int, error) {
	var matched []*Patient
	for _, p := range m.patients {
		if f == nil || search.Match(f, p.getter()) {
			matched = append(matched, p)
		}
	}
	if len(sorts) == 0 {
		sorts = []search.Sort{{Field: "lastname"}}
	}
	search.SortSlice(matched, sorts, (*Patient).getter)
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.Name)
	}
	return out
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *mockRepo, *recordingBus) {
	repo := newMockRepo()
	bus := &recordingBus{}
	svc := NewService(repo, db.NopUnitOfWork{}, bus, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }
	return svc, repo, bus
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func patch(t *testing.T, raw string) []jsonpatch.Operation {
	t.Helper()
	ops, err := jsonpatch.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse patch: %v", err)
	}
	return ops
}

// -- Tests --

func TestService_Create(t *testing.T) {
	svc, repo, bus := newTestService()

	p, warnings, err := svc.Create(context.Background(), Info{Firstname: "Bruce", Lastname: "Wayne", BirthDate: date(1970, 2, 19)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
	if p.ID == uuid.Nil || p.Version != 1 || p.CreatedBy != "system" {
		t.Errorf("unexpected patient %+v", p)
	}
	if _, ok := repo.patients[p.ID]; !ok {
		t.Error("expected patient to be stored")
	}

	names := bus.names()
	if len(names) != 1 || names[0] != events.PatientCaseCreated {
		t.Fatalf("expected PatientCaseCreated, got %v", names)
	}
	var payload events.PatientCase
	if err := bus.events[0].Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.ID != p.ID || payload.Name() != "Bruce Wayne" {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestService_Create_WarningDoesNotBlock(t *testing.T) {
	svc, _, _ := newTestService()
	p, warnings, err := svc.Create(context.Background(), Info{Lastname: "Wayne"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a patient")
	}
	if len(warnings) != 1 || warnings[0].Field != "firstname" {
		t.Errorf("expected firstname warning, got %v", warnings)
	}
}

func TestService_Create_ValidationErrors(t *testing.T) {
	svc, repo, bus := newTestService()
	_, _, err := svc.Create(context.Background(), Info{Firstname: "Bruce", BirthDate: date(2030, 1, 1)})

	var fe *validation.FailedError
	if !errors.As(err, &fe) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	fields := fe.Fields()
	if _, ok := fields["lastname"]; !ok {
		t.Errorf("expected lastname failure, got %v", fields)
	}
	if _, ok := fields["birthDate"]; !ok {
		t.Errorf("expected birthDate failure, got %v", fields)
	}
	if len(repo.patients) != 0 || len(bus.names()) != 0 {
		t.Error("invalid patient must not be stored or announced")
	}
}

func TestService_Search(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	for _, info := range []Info{
		{Firstname: "Bruce", Lastname: "Wayne"},
		{Firstname: "Dick", Lastname: "Grayson"},
		{Firstname: "Brian", Lastname: "Bruno"},
	} {
		if _, _, err := svc.Create(ctx, info); err != nil {
			t.Fatal(err)
		}
	}

	f, err := SearchInfo{Firstname: "!Br*"}.Filter()
	if err != nil {
		t.Fatal(err)
	}
	items, total, err := svc.Search(ctx, f, nil, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].Firstname != "Dick" {
		t.Errorf("expected only Dick, got %d items", total)
	}

	items, _, err = svc.List(ctx, search.ParseSort("-lastname"), 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if items[0].Lastname != "Wayne" || items[2].Lastname != "Bruno" {
		t.Errorf("expected lastname descending, got %s..%s", items[0].Lastname, items[2].Lastname)
	}
}

func TestService_Search_UnknownSort(t *testing.T) {
	svc, _, _ := newTestService()
	_, _, err := svc.List(context.Background(), search.ParseSort("password"), 10, 0)
	if !errors.Is(err, search.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestService_Patch(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	p, _, _ := svc.Create(ctx, Info{Firstname: "Bruce", Lastname: "Wayne"})

	updated, _, result, err := svc.Patch(ctx, p.ID, patch(t, `[{"op":"replace","path":"/lastname","value":"Kent"}]`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != cqrs.ModifyDone {
		t.Fatalf("expected Done, got %s", result)
	}
	if updated.Lastname != "Kent" || updated.Firstname != "Bruce" || updated.Version != 2 {
		t.Errorf("unexpected patched patient %+v", updated)
	}
}

func TestService_Patch_Warnings(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	p, _, _ := svc.Create(ctx, Info{Firstname: "Bruce", Lastname: "Wayne"})

	updated, warnings, result, err := svc.Patch(ctx, p.ID, patch(t, `[{"op":"remove","path":"/firstname"}]`), nil)
	if err != nil || result != cqrs.ModifyDone {
		t.Fatalf("unexpected outcome %s, %v", result, err)
	}
	if updated.Firstname != "" {
		t.Errorf("expected firstname to be removed, got %q", updated.Firstname)
	}
	if len(warnings) != 1 || warnings[0].Field != "firstname" {
		t.Errorf("expected a firstname warning, got %+v", warnings)
	}
}

func TestService_Patch_Results(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	p, _, _ := svc.Create(ctx, Info{Firstname: "Bruce", Lastname: "Wayne"})
	stale := 7

	tests := []struct {
		name     string
		id       uuid.UUID
		ops      string
		expected *int
		want     cqrs.ModifyCommandResult
	}{
		{"unknown patient", uuid.New(), `[{"op":"replace","path":"/lastname","value":"Kent"}]`, nil, cqrs.ModifyFailedNotFound},
		{"stale version", p.ID, `[{"op":"replace","path":"/lastname","value":"Kent"}]`, &stale, cqrs.ModifyFailedConflict},
		{"failed test", p.ID, `[{"op":"test","path":"/lastname","value":"Kent"}]`, nil, cqrs.ModifyFailedConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, result, err := svc.Patch(ctx, tt.id, patch(t, tt.ops), tt.expected)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.want {
				t.Errorf("expected %s, got %s", tt.want, result)
			}
		})
	}
}

func TestService_Patch_Rejected(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	p, _, _ := svc.Create(ctx, Info{Firstname: "Bruce", Lastname: "Wayne"})

	_, _, _, err := svc.Patch(ctx, p.ID, patch(t, `[{"op":"replace","path":"/id","value":"`+uuid.NewString()+`"}]`), nil)
	if !errors.Is(err, jsonpatch.ErrInvalidPatch) {
		t.Errorf("expected ErrInvalidPatch for id, got %v", err)
	}

	_, _, _, err = svc.Patch(ctx, p.ID, patch(t, `[{"op":"remove","path":"/lastname"}]`), nil)
	var fe *validation.FailedError
	if !errors.As(err, &fe) {
		t.Errorf("expected validation failure when removing lastname, got %v", err)
	}
}

func TestService_Delete(t *testing.T) {
	svc, repo, bus := newTestService()
	ctx := context.Background()
	p, _, _ := svc.Create(ctx, Info{Firstname: "Bruce", Lastname: "Wayne"})

	result, err := svc.Delete(ctx, p.ID)
	if err != nil || result != cqrs.DeleteDone {
		t.Fatalf("expected Done, got %s %v", result, err)
	}
	if len(repo.patients) != 0 {
		t.Error("expected patient to be removed")
	}
	names := bus.names()
	if names[len(names)-1] != events.PatientCaseDeleted {
		t.Errorf("expected PatientCaseDeleted, got %v", names)
	}

	result, err = svc.Delete(ctx, p.ID)
	if err != nil || result != cqrs.DeleteFailedNotFound {
		t.Errorf("expected NotFound, got %s %v", result, err)
	}
}

func TestPatient_JSON(t *testing.T) {
	p := &Patient{ID: uuid.New(), Lastname: "Wayne"}
	p.Created("bruce", fixedNow)
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["firstname"]; ok {
		t.Error("empty firstname should be omitted")
	}
	if m["version"] != float64(1) || m["createdBy"] != "bruce" {
		t.Errorf("expected audit fields at the top level, got %v", m)
	}
}
