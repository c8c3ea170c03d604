// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/chartpulse/internal/config"
)

func startServer(t *testing.T) *EmbeddedServer {
	t.Helper()
	srv, err := NewEmbeddedServer("127.0.0.1", -1)
	if err != nil {
		t.Fatalf("NewEmbeddedServer() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func TestNATSPublisherDelivers(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	if !srv.IsRunning() {
		t.Fatal("server not running")
	}

	sub, err := natsgo.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	msgs := make(chan *natsgo.Msg, 4)
	s, err := sub.ChanSubscribe("charts.>", msgs)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Unsubscribe() }()
	if err := sub.Flush(); err != nil {
		t.Fatal(err)
	}

	pub, err := NewNATSPublisher(srv.ClientURL(), &config.EventsConfig{SubjectPrefix: "charts", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewNATSPublisher() error = %v", err)
	}
	defer func() { _ = pub.Close() }()

	ev := NewEvent(TypeRunCompleted, "run-1", "2025-01-09", map[string]int{"rising": 3})
	if err := pub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Subject != "charts.run.completed" {
			t.Errorf("subject = %s", msg.Subject)
		}
		if msg.Header.Get(natsgo.MsgIdHdr) != ev.ID {
			t.Errorf("message id header = %q, want %q", msg.Header.Get(natsgo.MsgIdHdr), ev.ID)
		}
		var got struct {
			ID        string         `json:"id"`
			Type      string         `json:"type"`
			RunID     string         `json:"run_id"`
			ChartWeek string         `json:"chart_week"`
			Data      map[string]int `json:"data"`
		}
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatal(err)
		}
		if got.ID != ev.ID || got.Type != TypeRunCompleted || got.RunID != "run-1" || got.ChartWeek != "2025-01-09" || got.Data["rising"] != 3 {
			t.Errorf("payload = %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestNATSPublisherClosed(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	pub, err := NewNATSPublisher(srv.ClientURL(), &config.EventsConfig{SubjectPrefix: "charts"})
	if err != nil {
		t.Fatal(err)
	}
	if err := pub.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if err := pub.Publish(context.Background(), NewEvent(TypeRunFailed, "", "", nil)); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("Publish after Close = %v", err)
	}
}

func TestNewEventIDsAreUnique(t *testing.T) {
	t.Parallel()

	a := NewEvent(TypeMergeCompleted, "r", "w", nil)
	b := NewEvent(TypeMergeCompleted, "r", "w", nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids %q and %q", a.ID, b.ID)
	}
	if err := (NopPublisher{}).Publish(context.Background(), a); err != nil {
		t.Error(err)
	}
}
