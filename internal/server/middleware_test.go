package server

import (
	"testing"
	"time"
)

func TestClientLimiter_Disabled(t *testing.T) {
	l := newClientLimiter(0, 5)
	for i := 0; i < 100; i++ {
		if !l.allow("10.0.0.1:1234") {
			t.Fatalf("request %d denied by a disabled limiter", i)
		}
	}
}

func TestClientLimiter_PerHost(t *testing.T) {
	l := newClientLimiter(0.001, 1)

	if !l.allow("10.0.0.1:1000") {
		t.Fatal("first request denied")
	}
	if l.allow("10.0.0.1:2000") {
		t.Fatal("second request from the same host allowed")
	}
	if !l.allow("10.0.0.2:1000") {
		t.Fatal("request from another host denied")
	}
}

func TestClientLimiter_DropsIdleClients(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := newClientLimiter(1, 1)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	l.allow("10.0.0.1:1000")
	l.allow("10.0.0.2:1000")
	if len(l.clients) != 2 {
		t.Fatalf("tracking %d clients, want 2", len(l.clients))
	}

	now = now.Add(limiterIdleTTL / 2)
	l.allow("10.0.0.2:1000")

	now = now.Add(limiterIdleTTL/2 + limiterSweepInterval)
	l.allow("10.0.0.3:1000")

	if _, ok := l.clients["10.0.0.1"]; ok {
		t.Fatal("idle client was kept")
	}
	if _, ok := l.clients["10.0.0.2"]; !ok {
		t.Fatal("recently seen client was dropped")
	}
	if len(l.clients) != 2 {
		t.Fatalf("tracking %d clients, want 2", len(l.clients))
	}
}
