package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sipadi/padi/internal/bus"
	"github.com/sipadi/padi/internal/domain"
	"github.com/sipadi/padi/internal/treatment"
)

type update struct {
	treatment *domain.Treatment
	status    domain.TreatmentStatus
}

type memStore struct {
	mu      sync.Mutex
	updates map[string]update
	err     error
}

func newMemStore() *memStore {
	return &memStore{updates: make(map[string]update)}
}

func (s *memStore) UpdateTreatment(ctx context.Context, id string, t *domain.Treatment, status domain.TreatmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.updates[id] = update{treatment: t, status: status}
	return nil
}

func (s *memStore) get(id string) (update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.updates[id]
	return u, ok
}

type failingAdvisor struct{}

func (failingAdvisor) Advise(ctx context.Context, req *domain.TreatmentRequest) (*domain.Treatment, error) {
	return nil, errors.New("advisor down")
}

func blasRequest(historyID, userID string) *domain.TreatmentRequest {
	return &domain.TreatmentRequest{
		HistoryID: historyID,
		UserID:    userID,
		Primary: domain.DiagnosisResult{
			DiseaseID:   1,
			DiseaseCode: "P01",
			DiseaseName: "Blas",
			CFFinal:     0.9856,
		},
		Symptoms: []domain.SymptomRef{{Code: "G01", Name: "Bercak pada daun"}},
	}
}

func publish(t *testing.T, b domain.EventBus, req *domain.TreatmentRequest) {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := b.Publish(context.Background(), req.UserID, domain.TopicTreatmentRequested, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWorker(t *testing.T) {
	t.Run("StartAndStop", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		w := NewWorker(eventBus, newMemStore(), treatment.NewFallback())
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicTreatmentRequested {
			t.Errorf("expected topic %s, got %s", domain.TopicTreatmentRequested, stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if got := w.GetStats().SubscriptionCount; got != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", got)
		}
	})

	t.Run("ProcessesEveryUser", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()
		store := newMemStore()

		w := NewWorker(eventBus, store, treatment.NewFallback())
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		ready := make(chan ReadyMessage, 2)
		for _, user := range []string{"user-a", "user-b"} {
			_, err := eventBus.Subscribe(context.Background(), user, domain.TopicTreatmentReady, func(ctx context.Context, msg *domain.Message) error {
				var m ReadyMessage
				if err := json.Unmarshal(msg.Payload, &m); err != nil {
					return err
				}
				ready <- m
				return nil
			})
			if err != nil {
				t.Fatalf("Subscribe failed: %v", err)
			}
		}

		publish(t, eventBus, blasRequest("h-a", "user-a"))
		publish(t, eventBus, blasRequest("h-b", "user-b"))

		seen := map[string]bool{}
		for i := 0; i < 2; i++ {
			select {
			case m := <-ready:
				seen[m.HistoryID] = true
				if m.Status != domain.TreatmentReady {
					t.Errorf("expected ready status, got %s", m.Status)
				}
				if m.Treatment == nil || m.Treatment.Source != domain.SourceFallback {
					t.Errorf("expected fallback treatment, got %+v", m.Treatment)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for treatment")
			}
		}
		if !seen["h-a"] || !seen["h-b"] {
			t.Errorf("expected both histories, got %v", seen)
		}

		u, ok := store.get("h-a")
		if !ok || u.status != domain.TreatmentReady {
			t.Errorf("expected stored ready treatment, got %+v", u)
		}
		if got := w.GetStats().Processed; got != 2 {
			t.Errorf("expected 2 processed, got %d", got)
		}
	})

	t.Run("NamespaceScoped", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()
		store := newMemStore()

		w := NewWorker(eventBus, store, treatment.NewFallback())
		if err := w.Start(Config{Namespaces: []string{"user-a", "user-b"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		if got := w.GetStats().SubscriptionCount; got != 2 {
			t.Errorf("expected 2 subscriptions, got %d", got)
		}

		publish(t, eventBus, blasRequest("h-c", "user-c"))
		publish(t, eventBus, blasRequest("h-a", "user-a"))

		waitFor(t, func() bool {
			_, ok := store.get("h-a")
			return ok
		})
		if _, ok := store.get("h-c"); ok {
			t.Error("expected user-c request to be ignored")
		}
	})

	t.Run("AdvisorFailureMarksFailed", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()
		store := newMemStore()

		w := NewWorker(eventBus, store, failingAdvisor{})
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		publish(t, eventBus, blasRequest("h-f", "user-a"))

		waitFor(t, func() bool {
			_, ok := store.get("h-f")
			return ok
		})
		u, _ := store.get("h-f")
		if u.status != domain.TreatmentFailed {
			t.Errorf("expected failed status, got %s", u.status)
		}
		if u.treatment != nil {
			t.Errorf("expected no treatment, got %+v", u.treatment)
		}
		waitFor(t, func() bool { return w.GetStats().Failed == 1 })
	})
}

func TestProcessTreatment(t *testing.T) {
	ctx := context.Background()

	t.Run("RequiresHistoryID", func(t *testing.T) {
		eventBus := bus.NewChannelBus(10)
		defer eventBus.Close()

		w := NewWorker(eventBus, newMemStore(), treatment.NewFallback())
		if err := w.ProcessTreatment(ctx, blasRequest("", "user-a")); err == nil {
			t.Error("expected error without history id")
		}
	})

	t.Run("StoreError", func(t *testing.T) {
		eventBus := bus.NewChannelBus(10)
		defer eventBus.Close()
		store := newMemStore()
		store.err = domain.ErrNotFound

		w := NewWorker(eventBus, store, treatment.NewFallback())
		err := w.ProcessTreatment(ctx, blasRequest("h-1", "user-a"))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if got := w.GetStats().Failed; got != 1 {
			t.Errorf("expected 1 failure, got %d", got)
		}
	})

	t.Run("FallsBackToMessageNamespace", func(t *testing.T) {
		eventBus := bus.NewChannelBus(10)
		defer eventBus.Close()
		store := newMemStore()

		w := NewWorker(eventBus, store, treatment.NewFallback())
		req := blasRequest("h-2", "")
		payload, _ := json.Marshal(req)
		err := w.handleMessage(ctx, &domain.Message{ID: "m-1", Namespace: "user-z", Payload: payload})
		if err != nil {
			t.Fatalf("handleMessage failed: %v", err)
		}
		if _, ok := store.get("h-2"); !ok {
			t.Error("expected treatment to be stored")
		}
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		eventBus := bus.NewChannelBus(10)
		defer eventBus.Close()

		w := NewWorker(eventBus, newMemStore(), treatment.NewFallback())
		if err := w.handleMessage(ctx, &domain.Message{ID: "m-1", Namespace: "user-a", Payload: []byte("{")}); err == nil {
			t.Error("expected error for malformed payload")
		}
	})
}
