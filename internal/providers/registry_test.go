package providers

import (
	"testing"
	"time"
)

func TestRegistryDefault(t *testing.T) {
	reg := NewRegistry("mock")
	reg.Register(&Mock{})

	p, err := reg.Get("")
	if err != nil || p.Name() != "mock" {
		t.Errorf("default lookup: %v %v", p, err)
	}
	if _, err := reg.Get("nope"); err == nil {
		t.Error("unknown provider accepted")
	}
}

func TestResolveFallback(t *testing.T) {
	reg := NewRegistry("native")
	native := &Mock{NameStr: "native", Caps: Capabilities{CanGenerateDocs: true, CanReadAttachments: true}}
	opencode := &Mock{NameStr: "opencode"}
	reg.Register(native)
	reg.Register(opencode)

	got, switched := reg.ResolveFallback(opencode)
	if !switched || got.Name() != "native" {
		t.Errorf("fallback: got %s switched=%v", got.Name(), switched)
	}

	got, switched = reg.ResolveFallback(native)
	if switched || got.Name() != "native" {
		t.Error("native request should not re-route")
	}
}

func TestResolveFallbackWithoutNative(t *testing.T) {
	reg := NewRegistry("pi")
	pi := &Mock{NameStr: "pi"}
	reg.Register(pi)

	// No native provider registered: the request stays put.
	got, switched := reg.ResolveFallback(pi)
	if switched || got.Name() != "pi" {
		t.Errorf("got %s switched=%v", got.Name(), switched)
	}
}

func TestCapabilityDeclarations(t *testing.T) {
	native := NewNative("key", "", "m", time.Minute).Capabilities()
	if !native.CanGenerateDocs || !native.CanReadAttachments {
		t.Errorf("native caps = %+v", native)
	}
	if native.CanRunUnsandboxed {
		t.Error("native must not run unsandboxed")
	}

	codex := NewCodex("codex", time.Minute).Capabilities()
	if !codex.CanRunUnsandboxed {
		t.Error("codex is the unsandboxed adapter")
	}
	if codex.CanGenerateDocs {
		t.Error("codex does not drive the generator tools")
	}

	for name, caps := range map[string]Capabilities{
		"opencode": NewOpencode("http://localhost:1", time.Minute).Capabilities(),
		"pi":       NewPi("pi", time.Minute).Capabilities(),
		"nanobot":  NewNanobot("nanobot", time.Minute).Capabilities(),
	} {
		if caps != (Capabilities{}) {
			t.Errorf("%s caps = %+v, want none", name, caps)
		}
	}
}
