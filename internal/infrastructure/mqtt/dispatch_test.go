package mqtt

import (
	"errors"
	"testing"
	"time"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		topic   string
		pattern string
		want    bool
	}{
		// Exact
		{"consultease/faculty/7/status", "consultease/faculty/7/status", true},
		{"consultease/faculty/7/status", "consultease/faculty/8/status", false},

		// Single-level wildcard
		{"consultease/faculty/7/status", "consultease/faculty/+/status", true},
		{"consultease/faculty/7/heartbeat", "consultease/faculty/+/status", false},
		{"consultease/faculty/7/a/status", "consultease/faculty/+/status", false},
		{"a/b", "+/+", true},
		{"a/b/c", "+/+", false},

		// Multi-level wildcard
		{"consultease/faculty/7/status", "consultease/#", true},
		{"consultease", "consultease/#", true},
		{"other/faculty/7/status", "consultease/#", false},
		{"a/b/c/d", "a/b/#", true},

		// Mixed
		{"consultease/faculty/7/responses", "consultease/+/7/#", true},
	}

	for _, tt := range tests {
		if got := topicMatches(tt.topic, tt.pattern); got != tt.want {
			t.Errorf("topicMatches(%q, %q) = %v, want %v", tt.topic, tt.pattern, got, tt.want)
		}
	}
}

func TestDispatcherExactMatchPrecedence(t *testing.T) {
	d := newDispatcher(1, noopLogger{})

	var hit string
	record := func(name string) Handler {
		return HandlerFunc(func(string, any) error {
			hit = name
			return nil
		})
	}

	// Wildcard registered first; exact match must still win.
	if err := d.register("consultease/faculty/+/status", 1, record("wildcard")); err != nil {
		t.Fatalf("register() error = %v", err)
	}
	if err := d.register("consultease/faculty/7/status", 1, record("exact")); err != nil {
		t.Fatalf("register() error = %v", err)
	}

	h := d.findHandler("consultease/faculty/7/status")
	if h == nil {
		t.Fatal("findHandler() = nil")
	}
	h.HandleMessage("consultease/faculty/7/status", nil)
	if hit != "exact" {
		t.Errorf("matched handler = %q, want exact", hit)
	}
}

func TestDispatcherRegistrationOrderTieBreak(t *testing.T) {
	d := newDispatcher(1, noopLogger{})

	var hit string
	record := func(name string) Handler {
		return HandlerFunc(func(string, any) error {
			hit = name
			return nil
		})
	}

	if err := d.register("consultease/faculty/+/status", 1, record("first")); err != nil {
		t.Fatalf("register() error = %v", err)
	}
	if err := d.register("consultease/#", 1, record("second")); err != nil {
		t.Fatalf("register() error = %v", err)
	}

	h := d.findHandler("consultease/faculty/7/status")
	h.HandleMessage("consultease/faculty/7/status", nil)
	if hit != "first" {
		t.Errorf("matched handler = %q, want first (registration order)", hit)
	}
}

func TestDispatcherDuplicatePattern(t *testing.T) {
	d := newDispatcher(1, noopLogger{})

	h := HandlerFunc(func(string, any) error { return nil })
	if err := d.register("a/b", 1, h); err != nil {
		t.Fatalf("register() error = %v", err)
	}
	if err := d.register("a/b", 1, h); !errors.Is(err, ErrHandlerExists) {
		t.Errorf("register() duplicate error = %v, want ErrHandlerExists", err)
	}
}

func TestDispatcherUnregister(t *testing.T) {
	d := newDispatcher(1, noopLogger{})

	h := HandlerFunc(func(string, any) error { return nil })
	if err := d.register("a/b", 1, h); err != nil {
		t.Fatalf("register() error = %v", err)
	}

	if !d.unregister("a/b") {
		t.Error("unregister() = false, want true")
	}
	if d.unregister("a/b") {
		t.Error("unregister() second call = true, want false")
	}
	if d.findHandler("a/b") != nil {
		t.Error("findHandler() after unregister should be nil")
	}
}

func TestDispatcherDecodesJSON(t *testing.T) {
	d := newDispatcher(2, noopLogger{})
	d.start()
	defer d.stop()

	got := make(chan any, 1)
	err := d.register("consultease/faculty/+/status", 1,
		HandlerFunc(func(_ string, payload any) error {
			got <- payload
			return nil
		}))
	if err != nil {
		t.Fatalf("register() error = %v", err)
	}

	d.dispatch("consultease/faculty/7/status", []byte(`{"present":true}`))

	select {
	case payload := <-got:
		obj, ok := payload.(map[string]any)
		if !ok {
			t.Fatalf("payload type = %T, want map", payload)
		}
		if obj["present"] != true {
			t.Errorf("payload[present] = %v, want true", obj["present"])
		}
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestDispatcherNonJSONDegradesToString(t *testing.T) {
	d := newDispatcher(2, noopLogger{})
	d.start()
	defer d.stop()

	got := make(chan any, 1)
	err := d.register(TopicLegacyFacultyStatus, 1,
		HandlerFunc(func(_ string, payload any) error {
			got <- payload
			return nil
		}))
	if err != nil {
		t.Fatalf("register() error = %v", err)
	}

	d.dispatch(TopicLegacyFacultyStatus, []byte("keychain_connected"))

	select {
	case payload := <-got:
		if s, ok := payload.(string); !ok || s != "keychain_connected" {
			t.Errorf("payload = %v (%T), want string keychain_connected", payload, payload)
		}
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestDispatcherSurvivesHandlerPanic(t *testing.T) {
	d := newDispatcher(1, noopLogger{})
	d.start()
	defer d.stop()

	got := make(chan string, 1)
	if err := d.register("panics", 1, HandlerFunc(func(string, any) error {
		panic("boom")
	})); err != nil {
		t.Fatalf("register() error = %v", err)
	}
	if err := d.register("works", 1, HandlerFunc(func(topic string, _ any) error {
		got <- topic
		return nil
	})); err != nil {
		t.Fatalf("register() error = %v", err)
	}

	// With a single worker, the panicking handler runs first; the second
	// message proves the worker survived it.
	d.dispatch("panics", []byte(`{}`))
	d.dispatch("works", []byte(`{}`))

	select {
	case topic := <-got:
		if topic != "works" {
			t.Errorf("topic = %q, want works", topic)
		}
	case <-time.After(time.Second):
		t.Fatal("worker pool did not survive handler panic")
	}
}

func TestDispatcherUnmatchedTopicIgnored(t *testing.T) {
	d := newDispatcher(1, noopLogger{})
	d.start()
	defer d.stop()

	// Must not panic or block.
	d.dispatch("nobody/listens/here", []byte(`{}`))
}

func TestDispatcherDispatchAfterStopDropsMessage(t *testing.T) {
	d := newDispatcher(1, noopLogger{})

	delivered := make(chan struct{}, 1)
	if err := d.register("consultease/faculty/+/status", 1, HandlerFunc(func(string, any) error {
		delivered <- struct{}{}
		return nil
	})); err != nil {
		t.Fatalf("register() error = %v", err)
	}

	d.start()
	d.stop()

	// A delivery goroutine that outlives the shutdown must not panic on the
	// closed job channel; the message is dropped.
	d.dispatch("consultease/faculty/7/status", []byte(`true`))

	select {
	case <-delivered:
		t.Error("handler ran after stop, want message dropped")
	case <-time.After(50 * time.Millisecond):
	}

	// Repeated stop stays a no-op.
	d.stop()
}
