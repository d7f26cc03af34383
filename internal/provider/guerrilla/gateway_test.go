package guerrilla

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/provider"
	"github.com/nhle/tempmail/tests/testutil"
)

func newTestGateway(t *testing.T, p *testutil.FakeProvider) *Gateway {
	t.Helper()
	cfg := model.DefaultAppConfig().Provider
	cfg.BaseURL = p.URL()
	g, err := New(cfg, nil)
	require.NoError(t, err)
	return g
}

func TestNewRejectsRelativeURL(t *testing.T) {
	cfg := model.DefaultAppConfig().Provider
	cfg.BaseURL = "/ajax.php"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestAllocateAddress(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	g := newTestGateway(t, p)
	ctx := context.Background()

	alloc, err := g.AllocateAddress(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "tok1", alloc.Token)
	assert.Contains(t, alloc.Address, "user1@")
	assert.Equal(t, int64(1700000000), alloc.Timestamp)

	reqs := p.Requests("get_email_address")
	require.Len(t, reqs, 1)
	assert.Equal(t, "en", reqs[0].Get("lang"))
	assert.True(t, g.Domains().Supports(reqs[0].Get("site")))
	assert.False(t, reqs[0].Has("sid_token"))

	again, err := g.AllocateAddress(ctx, alloc.Token)
	require.NoError(t, err)
	assert.Equal(t, alloc.Address, again.Address)
	assert.Equal(t, alloc.Token, p.Requests("get_email_address")[1].Get("sid_token"))
}

func TestAllocateAddressIncompleteResponse(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	p.Override("get_email_address", func(w http.ResponseWriter, _ *http.Request) {
		testutil.WriteJSON(w, map[string]interface{}{"email_addr": "abc@sharklasers.com"})
	})

	_, err := newTestGateway(t, p).AllocateAddress(context.Background(), "")
	require.Error(t, err)
	assert.True(t, provider.IsProviderError(err))
}

func TestRenameAddress(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	g := newTestGateway(t, p)
	ctx := context.Background()

	alloc, err := g.AllocateAddress(ctx, "")
	require.NoError(t, err)

	renamed, err := g.RenameAddress(ctx, "  xyz ", alloc.Token, "grr.la")
	require.NoError(t, err)
	assert.Equal(t, "xyz@grr.la", renamed.Address)
	assert.Equal(t, alloc.Token, renamed.Token)
	assert.Equal(t, int64(1700000100), renamed.Timestamp)

	req := p.Requests("set_email_user")[0]
	assert.Equal(t, "xyz", req.Get("email_user"))
	assert.Equal(t, "grr.la", req.Get("site"))
	assert.Equal(t, alloc.Token, req.Get("sid_token"))
}

func TestRenameAddressValidatesBeforeRequest(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	g := newTestGateway(t, p)

	tests := []struct {
		name   string
		local  string
		token  string
		domain string
	}{
		{"empty local part", "", "tok", "grr.la"},
		{"blank local part", "   ", "tok", "grr.la"},
		{"unsupported domain", "xyz", "tok", "example.com"},
		{"missing token", "xyz", "", "grr.la"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.RenameAddress(context.Background(), tt.local, tt.token, tt.domain)
			require.Error(t, err)
			assert.True(t, provider.IsValidationError(err))
		})
	}
	assert.Empty(t, p.Requests("set_email_user"))
}

func TestRenameAddressProviderError(t *testing.T) {
	p := testutil.NewFakeProvider(t)

	_, err := newTestGateway(t, p).RenameAddress(context.Background(), "xyz", "unknown", "grr.la")
	require.Error(t, err)
	var pErr *provider.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "invalid sid_token", pErr.Message)
}

func TestListNewMessages(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	g := newTestGateway(t, p)
	ctx := context.Background()

	alloc, err := g.AllocateAddress(ctx, "")
	require.NoError(t, err)
	p.Deliver(alloc.Token,
		testutil.FakeMail{ID: "2", From: "b@example.com", Subject: "second", Body: "two", Timestamp: 1700000200},
		testutil.FakeMail{ID: "1", From: "a@example.com", Subject: "first", Body: "one", Timestamp: 1700000100},
	)

	list, err := g.ListNewMessages(ctx, alloc.Token, 0)
	require.NoError(t, err)
	require.Len(t, list.Messages, 2)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, alloc.Address, list.Address)

	first := list.Messages[0]
	assert.Equal(t, "2", first.ID)
	assert.Equal(t, "b@example.com", first.From)
	assert.Equal(t, "second", first.Subject)
	assert.Equal(t, "two", first.Excerpt)
	assert.Equal(t, int64(1700000200), first.Timestamp)
	assert.False(t, first.Read())

	assert.Equal(t, "0", p.Requests("check_email")[0].Get("seq"))
}

func TestListNewMessagesSkipsEntriesWithoutID(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	p.Override("check_email", func(w http.ResponseWriter, _ *http.Request) {
		testutil.WriteJSON(w, map[string]interface{}{
			"list": []map[string]interface{}{
				{"mail_id": 7, "mail_from": "x@example.com", "mail_timestamp": 1700000000},
				{"mail_id": "", "mail_from": "ghost@example.com"},
				{"mail_id": nil},
			},
			"count": 3,
		})
	})

	list, err := newTestGateway(t, p).ListNewMessages(context.Background(), "tok", 0)
	require.NoError(t, err)
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "7", list.Messages[0].ID)
}

func TestFetchMessage(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	g := newTestGateway(t, p)
	ctx := context.Background()

	alloc, err := g.AllocateAddress(ctx, "")
	require.NoError(t, err)
	p.Deliver(alloc.Token, testutil.FakeMail{
		ID: "9", From: "a@example.com", Subject: "hi", Body: "<p>hello</p>", Timestamp: 1700000000,
	})

	d, err := g.FetchMessage(ctx, alloc.Token, "9")
	require.NoError(t, err)
	assert.Equal(t, "9", d.ID)
	assert.Equal(t, "<p>hello</p>", d.Body)
	assert.Equal(t, "text/html", d.ContentType)
	assert.Equal(t, time.Unix(1700000000, 0), d.ReceivedAt())

	req := p.Requests("fetch_email")[0]
	assert.Equal(t, "9", req.Get("email_id"))
}

func TestFetchMessageNotFound(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	g := newTestGateway(t, p)

	_, err := g.FetchMessage(context.Background(), "tok", "404")
	require.Error(t, err)
	assert.True(t, provider.IsNotFound(err))

	_, err = g.FetchMessage(context.Background(), "tok", " ")
	assert.True(t, provider.IsValidationError(err))
	assert.Len(t, p.Requests("fetch_email"), 1)
}

func TestInvalidateSession(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	g := newTestGateway(t, p)
	ctx := context.Background()

	alloc, err := g.AllocateAddress(ctx, "")
	require.NoError(t, err)

	ok, err := g.InvalidateSession(ctx, alloc.Token, alloc.Address)
	require.NoError(t, err)
	assert.True(t, ok)
	_, known := p.Address(alloc.Token)
	assert.False(t, known)

	req := p.Requests("forget_me")[0]
	assert.Equal(t, alloc.Address, req.Get("email_addr"))
}

func TestInvalidateSessionUnrecognizedAnswer(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	p.Override("forget_me", func(w http.ResponseWriter, _ *http.Request) {
		testutil.WriteJSON(w, []int{1, 2})
	})

	_, err := newTestGateway(t, p).InvalidateSession(context.Background(), "tok", "a@grr.la")
	assert.True(t, provider.IsProviderError(err))
}

func TestTransportFailures(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		p := testutil.NewFakeProvider(t)
		p.Override("check_email", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		_, err := newTestGateway(t, p).ListNewMessages(context.Background(), "tok", 0)
		assert.True(t, provider.IsProviderError(err))
	})

	t.Run("not json", func(t *testing.T) {
		p := testutil.NewFakeProvider(t)
		p.Override("check_email", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		})
		_, err := newTestGateway(t, p).ListNewMessages(context.Background(), "tok", 0)
		assert.True(t, provider.IsProviderError(err))
	})

	t.Run("unreachable", func(t *testing.T) {
		p := testutil.NewFakeProvider(t)
		g := newTestGateway(t, p)
		p.Server.Close()

		_, err := g.ListNewMessages(context.Background(), "tok", 0)
		require.Error(t, err)
		assert.True(t, provider.IsNetworkError(err))
	})

	t.Run("cancelled", func(t *testing.T) {
		p := testutil.NewFakeProvider(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newTestGateway(t, p).AllocateAddress(ctx, "")
		assert.True(t, provider.IsNetworkError(err))
	})
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		raw   string
		value bool
		known bool
	}{
		{`true`, true, true},
		{`false`, false, true},
		{`1`, true, true},
		{`0`, false, true},
		{`"true"`, true, true},
		{`"0"`, false, true},
		{`{"success": true}`, true, true},
		{`{"success": "1"}`, true, true},
		{`{"other": true}`, false, false},
		{`"maybe"`, false, false},
	}
	for _, tt := range tests {
		js, err := simplejson.NewJson([]byte(tt.raw))
		require.NoError(t, err, tt.raw)
		value, known := truthy(js)
		assert.Equal(t, tt.value, value, tt.raw)
		assert.Equal(t, tt.known, known, tt.raw)
	}
}

func TestFlexDecoding(t *testing.T) {
	var resp listResponse
	raw := []byte(`{"list":[{"mail_id":12,"mail_timestamp":"1700000000","mail_read":1}],"count":"1","ts":null}`)
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Len(t, resp.List, 1)
	assert.Equal(t, flexString("12"), resp.List[0].MailID)
	assert.Equal(t, flexInt(1700000000), resp.List[0].MailTimestamp)
	assert.Equal(t, flexString("1"), resp.List[0].MailRead)
	assert.Equal(t, flexInt(1), resp.Count)
	assert.Equal(t, flexInt(0), resp.TS)
}
