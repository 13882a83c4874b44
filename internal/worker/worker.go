// Package worker generates treatment plans asynchronously from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sipadi/padi/internal/domain"
)

// TreatmentStore persists generated treatments.
type TreatmentStore interface {
	UpdateTreatment(ctx context.Context, id string, t *domain.Treatment, status domain.TreatmentStatus) error
}

// Worker consumes treatment requests and stores the advisor's answer.
type Worker struct {
	bus     domain.EventBus
	store   TreatmentStore
	advisor domain.TreatmentAdvisor

	processed atomic.Int64
	failed    atomic.Int64

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Namespaces limits the worker to these users. Empty means every user.
	Namespaces []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, store TreatmentStore, advisor domain.TreatmentAdvisor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		store:   store,
		advisor: advisor,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to treatment requests.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.Namespaces) == 0 {
		return w.subscribe(domain.NamespaceAny)
	}

	for _, ns := range cfg.Namespaces {
		if err := w.subscribe(ns); err != nil {
			slog.Error("failed to start worker for namespace",
				"namespace", ns,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started", "namespace_count", len(cfg.Namespaces))
	return nil
}

func (w *Worker) subscribe(namespace string) error {
	sub, err := w.bus.Subscribe(w.ctx, namespace, domain.TopicTreatmentRequested, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("treatment worker started",
		"namespace", namespace,
		"topic", domain.TopicTreatmentRequested,
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req domain.TreatmentRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse treatment request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if req.UserID == "" {
		req.UserID = msg.Namespace
	}
	return w.ProcessTreatment(ctx, &req)
}

// ReadyMessage is published to the user's namespace once a treatment is stored.
type ReadyMessage struct {
	HistoryID string                 `json:"history_id"`
	Status    domain.TreatmentStatus `json:"treatment_status"`
	Treatment *domain.Treatment      `json:"treatment,omitempty"`
}

// ProcessTreatment asks the advisor for a plan and records it against the
// diagnosis history. A failing advisor marks the treatment failed.
func (w *Worker) ProcessTreatment(ctx context.Context, req *domain.TreatmentRequest) error {
	start := time.Now()
	if req.HistoryID == "" {
		w.failed.Add(1)
		return fmt.Errorf("treatment request without history id")
	}

	status := domain.TreatmentReady
	t, err := w.advisor.Advise(ctx, req)
	if err != nil {
		slog.Warn("treatment generation failed",
			"history_id", req.HistoryID,
			"error", err,
		)
		status = domain.TreatmentFailed
		t = nil
	}

	if err := w.store.UpdateTreatment(ctx, req.HistoryID, t, status); err != nil {
		w.failed.Add(1)
		slog.Error("failed to save treatment",
			"history_id", req.HistoryID,
			"error", err,
		)
		return err
	}

	if status == domain.TreatmentFailed {
		w.failed.Add(1)
	} else {
		w.processed.Add(1)
	}

	payload, _ := json.Marshal(&ReadyMessage{HistoryID: req.HistoryID, Status: status, Treatment: t})
	if req.UserID != "" {
		if err := w.bus.Publish(ctx, req.UserID, domain.TopicTreatmentReady, payload); err != nil {
			slog.Error("failed to publish treatment",
				"history_id", req.HistoryID,
				"error", err,
			)
		}
	}

	slog.Info("treatment processed",
		"history_id", req.HistoryID,
		"user_id", req.UserID,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and cancels in-flight requests.
func (w *Worker) Stop() error {
	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.cancel()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
