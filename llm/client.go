package llm

import (
	"context"
	"fmt"
	"sync"
)

// Provider is the adapter interface implemented per backend vendor.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client routes requests to registered providers by name, falling back
// to a model-catalog lookup and then the default provider.
type Client struct {
	providers       map[string]Provider
	defaultProvider string
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider.
func WithProvider(p Provider) ClientOption {
	return func(c *Client) {
		c.providers[p.Name()] = p
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// NewClient creates a Client. With exactly one provider registered and
// no explicit default, that provider becomes the default.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{providers: make(map[string]Provider)}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds a provider after construction.
func (c *Client) RegisterProvider(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[p.Name()] = p
	if c.defaultProvider == "" {
		c.defaultProvider = p.Name()
	}
}

func (c *Client) resolve(req Request) (Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		name = InferProvider(req.Model)
	}
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigurationError{ClientError: ClientError{
			Message: "no provider specified and no default provider configured",
		}}
	}
	p, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{ClientError: ClientError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return p, nil
}

// Complete routes a blocking request to the resolved provider.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	p, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = p.Name()
	}
	return p.Complete(ctx, req)
}

// NewClientFromEnv builds a Client by probing the environment for
// provider credentials; providers whose keys are missing are skipped.
func NewClientFromEnv() *Client {
	c := NewClient()
	for _, provider := range []string{"anthropic", "openai"} {
		p, err := NewGollmProvider(provider, "")
		if err == nil {
			c.RegisterProvider(p)
		}
	}
	return c
}
