package provider

import (
	"context"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/nhle/tempmail/internal/model"
)

// Allocation is the identity returned by allocate and rename calls.
// Token may be empty on rename when the provider keeps the old one.
type Allocation struct {
	Address   string
	Token     string
	Alias     string
	Timestamp int64
}

// MessageList is one answer of the list operation.
type MessageList struct {
	Messages []model.MessageSummary
	Count    int
	Address  string
	Token    string
}

// Allocator obtains and renames mailbox addresses.
type Allocator interface {
	// AllocateAddress requests a mailbox. With an empty token the provider
	// allocates a fresh random address; with a token it returns the
	// mailbox the token already owns.
	AllocateAddress(ctx context.Context, existingToken string) (*Allocation, error)

	// RenameAddress binds localPart@domain to token.
	RenameAddress(ctx context.Context, localPart, token, domain string) (*Allocation, error)

	// InvalidateSession asks the provider to forget the mailbox. A second
	// call is not an error; it reports whatever the provider reports.
	InvalidateSession(ctx context.Context, token, address string) (bool, error)
}

// MessageLister lists the provider's current view of the inbox.
type MessageLister interface {
	// ListNewMessages returns messages since the opaque sinceSeq cursor.
	// A cursor of 0 lists every currently visible message.
	ListNewMessages(ctx context.Context, token string, sinceSeq int) (*MessageList, error)
}

// MessageFetcher retrieves full message content.
type MessageFetcher interface {
	FetchMessage(ctx context.Context, token, id string) (*model.MessageDetail, error)
}

// Gateway is the full set of provider operations. Implementations never
// retry: every failure is returned as a NetworkError, ProviderError,
// ValidationError or NotFoundError and the caller decides what to do.
type Gateway interface {
	Allocator
	MessageLister
	MessageFetcher
}

// Domains is an ordered set of supported address suffixes.
type Domains []string

// Supports reports whether domain is one of the supported suffixes.
// Comparison is case-insensitive.
func (d Domains) Supports(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return slices.ContainsFunc(d, func(s string) bool {
		return strings.EqualFold(s, domain)
	})
}

// Random returns an arbitrary supported domain, or "" when empty.
func (d Domains) Random() string {
	if len(d) == 0 {
		return ""
	}
	return d[rand.IntN(len(d))]
}

// Next returns the domain after current, wrapping around. An unknown
// current yields the first domain.
func (d Domains) Next(current string) string {
	if len(d) == 0 {
		return ""
	}
	i := slices.IndexFunc(d, func(s string) bool {
		return strings.EqualFold(s, current)
	})
	return d[(i+1)%len(d)]
}

// ValidateRename checks a rename request before it leaves the client.
func ValidateRename(localPart, domain string, domains Domains) error {
	if strings.TrimSpace(localPart) == "" {
		return &ValidationError{Field: "local part", Message: "must not be empty"}
	}
	if strings.Contains(localPart, "@") {
		return &ValidationError{Field: "local part", Message: "must not contain '@'"}
	}
	if len(domains) > 0 && !domains.Supports(domain) {
		return &ValidationError{Field: "domain", Message: domain + " is not a supported domain"}
	}
	return nil
}
