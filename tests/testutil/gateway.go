package testutil

import (
	"context"
	"sync"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/provider"
)

// FakeGateway is an in-process provider.Gateway. Each operation runs the
// matching func field when set; otherwise it answers with a benign
// default. Calls are counted per operation.
type FakeGateway struct {
	AllocateFunc   func(ctx context.Context, existingToken string) (*provider.Allocation, error)
	RenameFunc     func(ctx context.Context, localPart, token, domain string) (*provider.Allocation, error)
	ListFunc       func(ctx context.Context, token string, sinceSeq int) (*provider.MessageList, error)
	FetchFunc      func(ctx context.Context, token, id string) (*model.MessageDetail, error)
	InvalidateFunc func(ctx context.Context, token, address string) (bool, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ provider.Gateway = (*FakeGateway)(nil)

func (g *FakeGateway) record(op string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[op]++
}

// Calls returns how many times op ("allocate", "rename", "list",
// "fetch", "invalidate") was invoked.
func (g *FakeGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// TotalCalls returns the number of calls across all operations.
func (g *FakeGateway) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *FakeGateway) AllocateAddress(ctx context.Context, existingToken string) (*provider.Allocation, error) {
	g.record("allocate")
	if g.AllocateFunc != nil {
		return g.AllocateFunc(ctx, existingToken)
	}
	return &provider.Allocation{Address: "fake@sharklasers.com", Token: "fake-token"}, nil
}

func (g *FakeGateway) RenameAddress(ctx context.Context, localPart, token, domain string) (*provider.Allocation, error) {
	g.record("rename")
	if g.RenameFunc != nil {
		return g.RenameFunc(ctx, localPart, token, domain)
	}
	return &provider.Allocation{Address: localPart + "@" + domain, Token: token}, nil
}

func (g *FakeGateway) ListNewMessages(ctx context.Context, token string, sinceSeq int) (*provider.MessageList, error) {
	g.record("list")
	if g.ListFunc != nil {
		return g.ListFunc(ctx, token, sinceSeq)
	}
	return &provider.MessageList{}, nil
}

func (g *FakeGateway) FetchMessage(ctx context.Context, token, id string) (*model.MessageDetail, error) {
	g.record("fetch")
	if g.FetchFunc != nil {
		return g.FetchFunc(ctx, token, id)
	}
	return nil, &provider.NotFoundError{ID: id}
}

func (g *FakeGateway) InvalidateSession(ctx context.Context, token, address string) (bool, error) {
	g.record("invalidate")
	if g.InvalidateFunc != nil {
		return g.InvalidateFunc(ctx, token, address)
	}
	return true, nil
}

// Summaries builds minimal message summaries with the given ids.
func Summaries(ids ...string) []model.MessageSummary {
	out := make([]model.MessageSummary, len(ids))
	for i, id := range ids {
		out[i] = model.MessageSummary{
			ID:      id,
			From:    "sender" + id + "@example.com",
			Subject: "subject " + id,
		}
	}
	return out
}
