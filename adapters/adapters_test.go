package adapters

import (
	"testing"

	"github.com/agentrail/agentrail/event"
)

type stubAdapter struct{ name string }

func (a stubAdapter) Name() string { return a.name }

func (a stubAdapter) ExtractCallInfo(req, resp any) (event.Event, error) {
	return &event.Generic{Envelope: event.New()}, nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(stubAdapter{name: "alpha"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(stubAdapter{name: "alpha"}); err == nil {
		t.Fatal("duplicate registration must fail")
	}

	a, ok := reg.Lookup("alpha")
	if !ok || a.Name() != "alpha" {
		t.Fatalf("lookup alpha = %v, %v", a, ok)
	}
	if _, ok := reg.Lookup("missing"); ok {
		t.Error("lookup of unregistered adapter succeeded")
	}
}
