package http

import (
	"context"
	"testing"
	"time"
)

func TestServerOptions(t *testing.T) {
	s := NewServer(NewHandler(&fakeValidator{}, &fakeBatch{}, &inlineRunner{}, nil, ""),
		WithAddr("127.0.0.1:18443"),
		WithShutdownTimeout(2*time.Second),
	)
	if s.addr != "127.0.0.1:18443" {
		t.Errorf("addr = %q", s.addr)
	}
	if s.shutdownTimeout != 2*time.Second {
		t.Errorf("shutdownTimeout = %v", s.shutdownTimeout)
	}
}

func TestServerDefaults(t *testing.T) {
	s := NewServer(NewHandler(&fakeValidator{}, &fakeBatch{}, &inlineRunner{}, nil, ""))
	if s.addr != "0.0.0.0:9090" {
		t.Errorf("addr = %q", s.addr)
	}
	if s.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v", s.shutdownTimeout)
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	s := NewServer(NewHandler(&fakeValidator{}, &fakeBatch{}, &inlineRunner{}, nil, ""),
		WithAddr("127.0.0.1:0"),
		WithShutdownTimeout(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	// Give the listener a moment, then trigger graceful shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
