package lifecycle

import (
	"context"
	"errors"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/provider"
	"github.com/nhle/tempmail/internal/store"
	"github.com/nhle/tempmail/tests/testutil"
)

var domains = provider.Domains(model.DefaultDomains)

// recordingListener remembers every session it was told about.
type recordingListener struct {
	mu       gosync.Mutex
	sessions []model.Session
}

func (l *recordingListener) SessionChanged(sess model.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions = append(l.sessions, sess)
}

func (l *recordingListener) all() []model.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Session(nil), l.sessions...)
}

func allocating(addr, token string) func(context.Context, string) (*provider.Allocation, error) {
	return func(context.Context, string) (*provider.Allocation, error) {
		return &provider.Allocation{Address: addr, Token: token}, nil
	}
}

func newManager(t *testing.T, gw *testutil.FakeGateway) (*Manager, *store.SQLiteStore, *recordingListener) {
	t.Helper()
	st := testutil.NewTestStore(t)
	l := &recordingListener{}
	return New(gw, st, domains, l, nil), st, l
}

func TestStartAllocatesOnFirstRun(t *testing.T) {
	ctx := context.Background()
	gw := &testutil.FakeGateway{AllocateFunc: allocating("abc@sharklasers.com", "T1")}
	m, st, l := newManager(t, gw)

	sess, err := m.Start(ctx)
	require.NoError(t, err)

	want := model.Session{Address: "abc@sharklasers.com", Token: "T1"}
	assert.Equal(t, want, sess)
	assert.Equal(t, StateActive, m.State())
	assert.Equal(t, 1, gw.Calls("allocate"))

	stored, err := st.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, want, *stored)

	inbox, err := st.LoadInbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	assert.Equal(t, []model.Session{want}, l.all())
}

func TestStartRestoresWithoutNetwork(t *testing.T) {
	ctx := context.Background()
	gw := &testutil.FakeGateway{}
	m, st, l := newManager(t, gw)

	want := model.Session{Address: "abc@sharklasers.com", Token: "T1"}
	require.NoError(t, st.SaveSession(ctx, want))
	require.NoError(t, st.SaveInbox(ctx, model.Inbox(testutil.Summaries("1", "2"))))

	sess, err := m.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, sess)
	assert.Equal(t, StateActive, m.State())
	assert.Zero(t, gw.TotalCalls())

	inbox, err := st.LoadInbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, inbox.IDs())
	assert.Equal(t, []model.Session{want}, l.all())
}

func TestStartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	gw := &testutil.FakeGateway{}
	m, _, _ := newManager(t, gw)

	first, err := m.Start(ctx)
	require.NoError(t, err)
	second, err := m.Start(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gw.Calls("allocate"))
}

func TestStartAllocationFailure(t *testing.T) {
	ctx := context.Background()
	netErr := &provider.NetworkError{Op: "get_email_address", Err: errors.New("offline")}
	gw := &testutil.FakeGateway{
		AllocateFunc: func(context.Context, string) (*provider.Allocation, error) { return nil, netErr },
	}
	m, st, _ := newManager(t, gw)

	_, err := m.Start(ctx)
	require.Error(t, err)
	assert.True(t, provider.IsNetworkError(err))
	assert.Equal(t, StateUninitialized, m.State())

	stored, err := st.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestBeginEditSeedsDraft(t *testing.T) {
	gw := &testutil.FakeGateway{AllocateFunc: allocating("abc@sharklasers.com", "T1")}
	m, _, _ := newManager(t, gw)

	_, err := m.BeginEdit()
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = m.Start(context.Background())
	require.NoError(t, err)

	draft, err := m.BeginEdit()
	require.NoError(t, err)
	assert.Equal(t, Draft{LocalPart: "abc", Domain: "sharklasers.com"}, draft)
	assert.Equal(t, StateEditing, m.State())
	assert.Equal(t, 1, gw.TotalCalls())

	_, err = m.BeginEdit()
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestSaveRenamesAndClearsInbox(t *testing.T) {
	ctx := context.Background()
	gw := &testutil.FakeGateway{
		AllocateFunc: allocating("abc@sharklasers.com", "T1"),
		RenameFunc: func(_ context.Context, local, token, domain string) (*provider.Allocation, error) {
			return &provider.Allocation{Address: local + "@" + domain, Token: "T2"}, nil
		},
	}
	m, st, l := newManager(t, gw)

	_, err := m.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, st.SaveInbox(ctx, model.Inbox(testutil.Summaries("1"))))

	_, err = m.BeginEdit()
	require.NoError(t, err)
	require.NoError(t, m.UpdateDraft(Draft{LocalPart: " mybox ", Domain: "grr.la"}))

	sess, err := m.Save(ctx)
	require.NoError(t, err)

	want := model.Session{Address: "mybox@grr.la", Token: "T2"}
	assert.Equal(t, want, sess)
	assert.Equal(t, StateActive, m.State())
	assert.Equal(t, Draft{}, m.Draft())

	stored, err := st.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, want, *stored)

	inbox, err := st.LoadInbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	got := l.all()
	require.Len(t, got, 3)
	assert.True(t, got[1].IsZero(), "listener must see the old identity dropped before the store changes")
	assert.Equal(t, want, got[2])
}

func TestSaveKeepsTokenWhenProviderOmitsIt(t *testing.T) {
	ctx := context.Background()
	gw := &testutil.FakeGateway{
		AllocateFunc: allocating("abc@sharklasers.com", "T1"),
		RenameFunc: func(_ context.Context, local, _, domain string) (*provider.Allocation, error) {
			return &provider.Allocation{Address: local + "@" + domain}, nil
		},
	}
	m, _, _ := newManager(t, gw)
	_, err := m.Start(ctx)
	require.NoError(t, err)
	_, err = m.BeginEdit()
	require.NoError(t, err)

	sess, err := m.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1", sess.Token)
}

func TestSaveRejectsInvalidDraftWithoutNetwork(t *testing.T) {
	tests := []struct {
		name  string
		draft Draft
		field string
	}{
		{name: "empty local part", draft: Draft{LocalPart: "", Domain: "grr.la"}, field: "local part"},
		{name: "blank local part", draft: Draft{LocalPart: "   ", Domain: "grr.la"}, field: "local part"},
		{name: "at sign", draft: Draft{LocalPart: "a@b", Domain: "grr.la"}, field: "local part"},
		{name: "unsupported domain", draft: Draft{LocalPart: "mybox", Domain: "example.com"}, field: "domain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			gw := &testutil.FakeGateway{AllocateFunc: allocating("abc@sharklasers.com", "T1")}
			m, st, _ := newManager(t, gw)
			_, err := m.Start(ctx)
			require.NoError(t, err)
			_, err = m.BeginEdit()
			require.NoError(t, err)
			require.NoError(t, m.UpdateDraft(tt.draft))

			_, err = m.Save(ctx)
			require.Error(t, err)
			var vErr *provider.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)

			assert.Zero(t, gw.Calls("rename"))
			assert.Equal(t, StateEditing, m.State())
			assert.Equal(t, tt.draft, m.Draft())

			stored, err := st.LoadSession(ctx)
			require.NoError(t, err)
			assert.Equal(t, "abc@sharklasers.com", stored.Address)
		})
	}
}

func TestSaveProviderFailureStaysEditing(t *testing.T) {
	ctx := context.Background()
	gw := &testutil.FakeGateway{
		AllocateFunc: allocating("abc@sharklasers.com", "T1"),
		RenameFunc: func(context.Context, string, string, string) (*provider.Allocation, error) {
			return nil, &provider.ProviderError{Op: "set_email_user", Message: "name taken"}
		},
	}
	m, st, _ := newManager(t, gw)
	_, err := m.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, st.SaveInbox(ctx, model.Inbox(testutil.Summaries("1"))))
	_, err = m.BeginEdit()
	require.NoError(t, err)
	draft := Draft{LocalPart: "taken", Domain: "grr.la"}
	require.NoError(t, m.UpdateDraft(draft))

	_, err = m.Save(ctx)
	require.Error(t, err)
	assert.True(t, provider.IsProviderError(err))
	assert.Equal(t, StateEditing, m.State())
	assert.Equal(t, draft, m.Draft())
	assert.Equal(t, "abc@sharklasers.com", m.Session().Address)

	inbox, err := st.LoadInbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, inbox.IDs())
}

func TestCancelRestoresActive(t *testing.T) {
	gw := &testutil.FakeGateway{}
	m, _, _ := newManager(t, gw)

	assert.ErrorIs(t, m.Cancel(), ErrNotEditing)
	assert.ErrorIs(t, m.UpdateDraft(Draft{LocalPart: "x"}), ErrNotEditing)

	before, err := m.Start(context.Background())
	require.NoError(t, err)
	_, err = m.BeginEdit()
	require.NoError(t, err)
	require.NoError(t, m.UpdateDraft(Draft{LocalPart: "other", Domain: "grr.la"}))

	require.NoError(t, m.Cancel())
	assert.Equal(t, StateActive, m.State())
	assert.Equal(t, before, m.Session())
	assert.Equal(t, Draft{}, m.Draft())
	assert.Zero(t, gw.Calls("rename"))
}

func TestInvalidateReplacesIdentity(t *testing.T) {
	ctx := context.Background()
	addrs := []string{"first@sharklasers.com", "second@grr.la"}
	var n int
	gw := &testutil.FakeGateway{
		AllocateFunc: func(context.Context, string) (*provider.Allocation, error) {
			a := addrs[n]
			n++
			return &provider.Allocation{Address: a, Token: "T" + a}, nil
		},
	}
	m, st, l := newManager(t, gw)

	old, err := m.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, st.SaveInbox(ctx, model.Inbox(testutil.Summaries("1", "2"))))

	fresh, err := m.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second@grr.la", fresh.Address)
	assert.NotEqual(t, old, fresh)
	assert.Equal(t, StateActive, m.State())
	assert.Equal(t, 1, gw.Calls("invalidate"))

	inbox, err := st.LoadInbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	got := l.all()
	require.Len(t, got, 3)
	assert.Equal(t, old, got[0])
	assert.True(t, got[1].IsZero())
	assert.Equal(t, fresh, got[2])
}

func TestInvalidateClearsLocallyWhenProviderFails(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	var allocations int
	gw := &testutil.FakeGateway{
		AllocateFunc: func(context.Context, string) (*provider.Allocation, error) {
			allocations++
			if allocations == 1 {
				return &provider.Allocation{Address: "old@sharklasers.com", Token: "T1"}, nil
			}
			return &provider.Allocation{Address: "new@sharklasers.com", Token: "T2"}, nil
		},
		InvalidateFunc: func(context.Context, string, string) (bool, error) {
			return false, &provider.NetworkError{Op: "forget_me", Err: errors.New("offline")}
		},
	}
	st := testutil.NewTestStore(t)
	m := New(gw, st, domains, nil, zap.New(core).Sugar())

	_, err := m.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, st.SaveInbox(ctx, model.Inbox(testutil.Summaries("1"))))

	fresh, err := m.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new@sharklasers.com", fresh.Address)

	stored, err := st.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, fresh, *stored)

	inbox, err := st.LoadInbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	assert.Equal(t, 1, logs.FilterMessageSnippet("clearing locally anyway").Len())
}

func TestInvalidateAllocationFailureLeavesUninitialized(t *testing.T) {
	ctx := context.Background()
	var fail bool
	gw := &testutil.FakeGateway{
		AllocateFunc: func(context.Context, string) (*provider.Allocation, error) {
			if fail {
				return nil, &provider.NetworkError{Op: "get_email_address", Err: errors.New("offline")}
			}
			return &provider.Allocation{Address: "old@sharklasers.com", Token: "T1"}, nil
		},
	}
	m, st, _ := newManager(t, gw)
	_, err := m.Start(ctx)
	require.NoError(t, err)

	fail = true
	_, err = m.Invalidate(ctx)
	require.Error(t, err)
	assert.Equal(t, StateUninitialized, m.State())
	assert.True(t, m.Session().IsZero())

	stored, err := st.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)

	fail = false
	sess, err := m.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "old@sharklasers.com", sess.Address)
}

func TestInvalidateRequiresStart(t *testing.T) {
	gw := &testutil.FakeGateway{}
	m, _, _ := newManager(t, gw)

	_, err := m.Invalidate(context.Background())
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Zero(t, gw.TotalCalls())
}

func TestRefreshSameAddressUpdatesTokenOnly(t *testing.T) {
	ctx := context.Background()
	var calls int
	gw := &testutil.FakeGateway{
		AllocateFunc: func(_ context.Context, existing string) (*provider.Allocation, error) {
			calls++
			if calls == 1 {
				return &provider.Allocation{Address: "abc@sharklasers.com", Token: "T1"}, nil
			}
			assert.Equal(t, "T1", existing)
			return &provider.Allocation{Address: "abc@sharklasers.com", Token: "T2"}, nil
		},
	}
	m, st, _ := newManager(t, gw)
	_, err := m.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, st.SaveInbox(ctx, model.Inbox(testutil.Summaries("1"))))

	sess, err := m.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Session{Address: "abc@sharklasers.com", Token: "T2"}, sess)

	stored, err := st.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T2", stored.Token)

	inbox, err := st.LoadInbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, inbox.IDs())
}

func TestRefreshExpiredAddressReplacesIdentity(t *testing.T) {
	ctx := context.Background()
	var calls int
	gw := &testutil.FakeGateway{
		AllocateFunc: func(context.Context, string) (*provider.Allocation, error) {
			calls++
			if calls == 1 {
				return &provider.Allocation{Address: "abc@sharklasers.com", Token: "T1"}, nil
			}
			return &provider.Allocation{Address: "zzz@grr.la", Token: "T9"}, nil
		},
	}
	m, st, _ := newManager(t, gw)
	_, err := m.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, st.SaveInbox(ctx, model.Inbox(testutil.Summaries("1"))))

	sess, err := m.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "zzz@grr.la", sess.Address)

	inbox, err := st.LoadInbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestRefreshRequiresActive(t *testing.T) {
	gw := &testutil.FakeGateway{}
	m, _, _ := newManager(t, gw)

	_, err := m.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNotActive)
}
