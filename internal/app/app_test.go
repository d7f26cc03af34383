package app

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/tempmail/internal/lifecycle"
	"github.com/nhle/tempmail/internal/model"
	appsync "github.com/nhle/tempmail/internal/sync"
	"github.com/nhle/tempmail/internal/ui/addressform"
	"github.com/nhle/tempmail/tests/testutil"
)

func newTestCore(t *testing.T, p *testutil.FakeProvider) *Core {
	t.Helper()
	cfg := model.DefaultAppConfig()
	cfg.Provider.BaseURL = p.URL()
	cfg.Storage.DBPath = ":memory:"
	cfg.Sync.RefreshMinIntervalMs = 0

	c, err := NewCore(cfg, nil, CoreOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// started returns a root model whose session has been allocated.
func started(t *testing.T, c *Core) Model {
	t.Helper()
	m := New(c)
	next, _ := m.Update(m.startSession()())
	mm := next.(Model)
	require.True(t, mm.session.Valid())
	return mm
}

func TestCorePollsAndFetches(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	c := newTestCore(t, p)
	ctx := context.Background()

	sess, err := c.Lifecycle.Start(ctx)
	require.NoError(t, err)
	p.Deliver(sess.Token, testutil.FakeMail{
		ID: "1", From: "a@example.com", Subject: "hello", Body: "<p>hi</p>", Timestamp: 1700000100,
	})

	res, err := c.Sync.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, sess.Address, res.Address)

	d, err := c.Fetcher.GetDetail(ctx, sess.Token, "1")
	require.NoError(t, err)
	assert.Equal(t, "hello", d.Subject)
}

func TestCoreRestoresSessionWithoutNetwork(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	cfg := model.DefaultAppConfig()
	cfg.Provider.BaseURL = p.URL()
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "tempmail.db")

	first, err := NewCore(cfg, nil, CoreOptions{})
	require.NoError(t, err)
	sess, err := first.Lifecycle.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewCore(cfg, nil, CoreOptions{})
	require.NoError(t, err)
	defer second.Close()

	restored, err := second.Lifecycle.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sess, restored)
	assert.Len(t, p.Requests("get_email_address"), 1)
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	_, err := OpenStore(model.StorageConfig{DBPath: ":memory:", TokenBackend: "vault"})
	assert.Error(t, err)
}

func TestModelStartShowsAddress(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	m := started(t, newTestCore(t, p))

	assert.False(t, m.busy)
	assert.Contains(t, m.session.Address, "user1@")
	assert.Empty(t, m.errMsg)
}

func TestModelDropsResultsForOldAddress(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	m := started(t, newTestCore(t, p))

	next, _ := m.Update(appsync.SyncResultMsg{
		Address: "someone-else@grr.la",
		Inbox:   model.Inbox{{ID: "1", From: "a@example.com"}},
		Added:   1,
	})
	assert.Equal(t, 0, next.(Model).inbox.Len())

	next, _ = m.Update(appsync.SyncResultMsg{
		Address: m.session.Address,
		Inbox:   model.Inbox{{ID: "1", From: "a@example.com"}},
		Added:   1,
	})
	mm := next.(Model)
	assert.Equal(t, 1, mm.inbox.Len())
	assert.Equal(t, "1 new message", mm.notice)
}

func TestModelSyncErrorKeepsInbox(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	m := started(t, newTestCore(t, p))

	next, _ := m.Update(appsync.SyncResultMsg{
		Address: m.session.Address,
		Inbox:   model.Inbox{{ID: "1"}},
		Added:   1,
	})
	next, _ = next.(Model).Update(appsync.SyncResultMsg{
		Address: m.session.Address,
		Error:   assert.AnError,
	})
	mm := next.(Model)
	assert.Equal(t, 1, mm.inbox.Len())
	assert.Contains(t, mm.errMsg, "Sync failed")
}

func TestModelRenameFlow(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	c := newTestCore(t, p)
	m := started(t, c)

	next, _ := m.executeCommand("rename")
	mm := next.(Model)
	require.Equal(t, ViewEdit, mm.currentView)
	assert.Equal(t, lifecycle.StateEditing, c.Lifecycle.State())

	next, cmd := mm.Update(addressform.SubmittedMsg{
		Draft: lifecycle.Draft{LocalPart: "xyz", Domain: "grr.la"},
	})
	require.NotNil(t, cmd)
	next, _ = next.(Model).Update(cmd())
	mm = next.(Model)

	assert.Equal(t, "xyz@grr.la", mm.session.Address)
	assert.Equal(t, ViewInbox, mm.currentView)
	assert.Equal(t, lifecycle.StateActive, c.Lifecycle.State())
	assert.Contains(t, mm.notice, "xyz@grr.la")
}

func TestModelRenameFailureKeepsForm(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	c := newTestCore(t, p)
	m := started(t, c)

	next, _ := m.executeCommand("rename")
	p.Override("set_email_user", func(w http.ResponseWriter, _ *http.Request) {
		testutil.WriteJSON(w, map[string]interface{}{"error": "taken"})
	})

	next, cmd := next.(Model).Update(addressform.SubmittedMsg{
		Draft: lifecycle.Draft{LocalPart: "xyz", Domain: "grr.la"},
	})
	next, _ = next.(Model).Update(cmd())
	mm := next.(Model)

	assert.Equal(t, ViewEdit, mm.currentView)
	assert.Equal(t, m.session, mm.session)
	assert.Equal(t, lifecycle.StateEditing, c.Lifecycle.State())
	assert.Equal(t, "xyz", c.Lifecycle.Draft().LocalPart)
}

func TestModelForgetReplacesAddress(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	m := started(t, newTestCore(t, p))
	old := m.session

	next, cmd := m.Update(forgetAnsweredMsg{confirmed: true})
	require.NotNil(t, cmd)
	next, _ = next.(Model).Update(cmd())
	mm := next.(Model)

	assert.NotEqual(t, old.Address, mm.session.Address)
	assert.Len(t, p.Requests("forget_me"), 1)
}

func TestModelForgetDeclined(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	m := started(t, newTestCore(t, p))

	next, cmd := m.Update(forgetAnsweredMsg{confirmed: false})
	assert.Nil(t, cmd)
	assert.Equal(t, m.session, next.(Model).session)
	assert.Empty(t, p.Requests("forget_me"))
}

func TestModelUnknownCommand(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	m := started(t, newTestCore(t, p))

	next, _ := m.executeCommand("launch")
	assert.Contains(t, next.(Model).errMsg, `"launch"`)
}

func TestPluralize(t *testing.T) {
	assert.Equal(t, "1 new message", pluralize(1, "new message"))
	assert.Equal(t, "3 new messages", pluralize(3, "new message"))
}
