package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medeasy/medeasy/internal/platform/events"
)

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient(events.PatientCaseCreated)

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount(events.PatientCaseCreated) != 1 {
		t.Fatalf("unexpected counts %d / %d", hub.ClientCount(), hub.TopicCount(events.PatientCaseCreated))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount(events.PatientCaseCreated) != 0 {
		t.Fatalf("expected empty hub")
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send to be closed")
	}
	hub.Unregister(client)
}

func TestHub_PublishByName(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	patients := NewClient(events.PatientCaseCreated)
	measures := NewClient(events.BloodPressureCreated)
	everything := NewClient(AllEvents, events.PatientCaseCreated)
	for _, c := range []*Client{patients, measures, everything} {
		hub.Register(c)
	}

	e, _ := events.New(events.PatientCaseCreated, "patients", events.PatientCase{ID: uuid.New()})
	if err := hub.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	if len(patients.Send) != 1 {
		t.Errorf("expected subscriber to receive the event")
	}
	if len(measures.Send) != 0 {
		t.Errorf("expected other subscriptions to be skipped")
	}
	if len(everything.Send) != 1 {
		t.Errorf("expected exactly one delivery to a client subscribed twice, got %d", len(everything.Send))
	}
}

func TestHub_SubscribeAndUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient()
	hub.Register(client)

	hub.Process(client, ClientMessage{Action: "subscribe", Events: []string{events.TemperatureCreated, events.TemperatureDeleted}})
	if hub.TopicCount(events.TemperatureCreated) != 1 || hub.TopicCount(events.TemperatureDeleted) != 1 {
		t.Fatal("expected both subscriptions")
	}

	hub.Process(client, ClientMessage{Action: "unsubscribe", Events: []string{events.TemperatureCreated}})
	if hub.TopicCount(events.TemperatureCreated) != 0 || hub.TopicCount(events.TemperatureDeleted) != 1 {
		t.Fatal("expected only TemperatureDeleted left")
	}

	hub.Process(client, ClientMessage{Action: "noop", Events: []string{events.BodyWeightCreated}})
	if hub.TopicCount(events.BodyWeightCreated) != 0 {
		t.Fatal("unknown actions must be ignored")
	}
}

func TestHub_SlowClientDropsEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient(AllEvents)
	hub.Register(client)

	for i := 0; i < sendBuffer+5; i++ {
		_ = hub.Publish(context.Background(), events.Event{Name: events.BodyWeightCreated})
	}
	if len(client.Send) != sendBuffer {
		t.Errorf("expected a full buffer of %d, got %d", sendBuffer, len(client.Send))
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.medeasy.io"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.medeasy.io", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/events/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := check(r); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}
	if !originChecker(nil)(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Error("empty list must accept any origin")
	}
}

func TestHandler_Connect_RequiresUpgrade(t *testing.T) {
	e := echo.New()
	NewHandler(NewHub(zerolog.Nop()), nil).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/events/ws", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a plain GET, got %d", rec.Code)
	}
}

func TestHandler_StreamsEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil).RegisterRoutes(e)

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/events/ws?events=" + events.BloodPressureCreated
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(events.BloodPressureCreated) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Events: []string{events.BloodPressureDeleted}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	for hub.TopicCount(events.BloodPressureDeleted) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never applied")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sent, _ := events.New(events.BloodPressureDeleted, "measures", events.MeasureChanged{ID: uuid.New()})
	_ = hub.Publish(context.Background(), sent)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received events.Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.ID != sent.ID || received.Name != events.BloodPressureDeleted {
		t.Errorf("unexpected event %+v", received)
	}
}
