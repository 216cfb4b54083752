package llm

import (
	"context"
	"testing"
)

type fakeProvider struct {
	name     string
	response *Response
	err      error
	lastReq  Request
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func TestClientRoutesByProviderField(t *testing.T) {
	a := &fakeProvider{name: "anthropic", response: &Response{Text: "from anthropic"}}
	o := &fakeProvider{name: "openai", response: &Response{Text: "from openai"}}
	c := NewClient(WithProvider(a), WithProvider(o), WithDefaultProvider("openai"))

	resp, err := c.Complete(context.Background(), Request{Provider: "anthropic", Model: "whatever"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "from anthropic" {
		t.Errorf("routed to wrong provider: %q", resp.Text)
	}
}

func TestClientInfersProviderFromModel(t *testing.T) {
	a := &fakeProvider{name: "anthropic", response: &Response{Text: "ok"}}
	o := &fakeProvider{name: "openai", response: &Response{Text: "ok"}}
	c := NewClient(WithProvider(a), WithProvider(o), WithDefaultProvider("openai"))

	if _, err := c.Complete(context.Background(), Request{Model: "claude-sonnet-4-5"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.lastReq.Model != "claude-sonnet-4-5" {
		t.Error("expected the anthropic provider to receive the request")
	}
}

func TestClientSingleProviderBecomesDefault(t *testing.T) {
	p := &fakeProvider{name: "anthropic", response: &Response{Text: "ok"}}
	c := NewClient(WithProvider(p))

	if _, err := c.Complete(context.Background(), Request{Model: "unknown-model"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientUnregisteredProvider(t *testing.T) {
	c := NewClient()
	_, err := c.Complete(context.Background(), Request{Model: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("expected ConfigurationError, got %T", err)
	}
}

func TestClientSetsProviderOnRequest(t *testing.T) {
	p := &fakeProvider{name: "openai", response: &Response{Text: "ok"}}
	c := NewClient(WithProvider(p))

	if _, err := c.Complete(context.Background(), Request{Model: "gpt-5.2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.lastReq.Provider != "openai" {
		t.Errorf("expected provider stamped on request, got %q", p.lastReq.Provider)
	}
}
