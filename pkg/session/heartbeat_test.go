package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomaslejdung/coview/pkg/presence"
	"github.com/tomaslejdung/coview/pkg/store"
)

func newTickSession(t *testing.T, mem *store.MemoryStore, name string) *Session {
	t.Helper()
	cfg := Config{
		SessionCode: "TEST-SPAN-01",
		DisplayName: name,
		// Long enough that a freshly written record does not need an
		// immediate rewrite on the next manual tick.
		HeartbeatPeriod: time.Minute,
	}
	s := New(cfg, presence.NewClient(mem, BlobKey(cfg.SessionCode)), newFakeNetwork().dialer(), newFakeViewer())
	t.Cleanup(func() { s.Close() })
	return s
}

func readDoc(t *testing.T, mem *store.MemoryStore, key string) (*presence.Document, string) {
	t.Helper()
	text, rev, err := mem.Get(context.Background(), key)
	require.NoError(t, err)
	doc, err := presence.DecodeDocument(text)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc, rev
}

func TestTick_PublishesPresenceRecord(t *testing.T) {
	mem := store.NewMemoryStore()
	s := newTickSession(t, mem, "alice")

	s.tick(context.Background())

	doc, _ := readDoc(t, mem, s.presence.Key())
	rec := doc.Client(s.ID())
	require.NotNil(t, rec)
	assert.Equal(t, "alice", rec.Name)
	assert.InDelta(t, time.Now().UnixMilli(), rec.LastSeen, float64(5*time.Second.Milliseconds()))
}

func TestTick_SkipsWriteWhenRecordIsCurrent(t *testing.T) {
	mem := store.NewMemoryStore()
	s := newTickSession(t, mem, "alice")
	ctx := context.Background()

	s.tick(ctx)
	_, rev1 := readDoc(t, mem, s.presence.Key())

	s.tick(ctx)
	_, rev2 := readDoc(t, mem, s.presence.Key())
	assert.Equal(t, rev1, rev2, "a current record must not be rewritten")
}

func TestTick_WritesWhenNameChanges(t *testing.T) {
	mem := store.NewMemoryStore()
	s := newTickSession(t, mem, "alice")
	ctx := context.Background()

	s.tick(ctx)
	s.SetDisplayName("alice-2")
	s.tick(ctx)

	doc, _ := readDoc(t, mem, s.presence.Key())
	assert.Equal(t, "alice-2", doc.Client(s.ID()).Name)
}

func TestTick_DerivesRoleFromDocument(t *testing.T) {
	mem := store.NewMemoryStore()
	s := newTickSession(t, mem, "bob")
	ctx := context.Background()

	s.tick(ctx)
	assert.False(t, s.Status().IsLeader)
	assert.Empty(t, s.Status().LeaderID)

	// Another client claims the session.
	other := presence.NewClient(mem, s.presence.Key())
	_, err := other.Update(ctx, func(doc *presence.Document) {
		doc.LeaderClientID = "usurper"
		doc.MergeSelf(presence.ClientRecord{
			ID:       "usurper",
			LastSeen: time.Now().UnixMilli(),
			Name:     "eve",
		})
	})
	require.NoError(t, err)

	s.tick(ctx)
	st := s.Status()
	assert.False(t, st.IsLeader)
	assert.Equal(t, "usurper", st.LeaderID)
}

func TestTick_DeposedLeaderStopsBroadcasting(t *testing.T) {
	mem := store.NewMemoryStore()
	s := newTickSession(t, mem, "bob")
	ctx := context.Background()

	require.NoError(t, s.Present(ctx))
	require.True(t, s.Status().IsLeader)

	other := presence.NewClient(mem, s.presence.Key())
	_, err := other.Update(ctx, func(doc *presence.Document) {
		doc.LeaderClientID = "usurper"
		doc.MergeSelf(presence.ClientRecord{
			ID:       "usurper",
			LastSeen: time.Now().UnixMilli(),
		})
	})
	require.NoError(t, err)

	s.tick(ctx)

	assert.False(t, s.Status().IsLeader)
	s.mu.Lock()
	assert.Nil(t, s.broadcastPhase)
	assert.Empty(t, s.pairs)
	assert.Empty(t, s.offers)
	s.mu.Unlock()
}

func TestTick_DepartedPeerStopsTriggeringWrites(t *testing.T) {
	mem := store.NewMemoryStore()
	s := newTickSession(t, mem, "bob")
	ctx := context.Background()

	require.NoError(t, s.Present(ctx))

	// A connected follower whose record has since aged out of the
	// document, leaving its offer envelope behind on our side.
	conn, err := newFakeNetwork().dialer().NewConn()
	require.NoError(t, err)
	s.mu.Lock()
	s.pairs["ghost"] = &pair{
		peerID:    "ghost",
		conn:      conn,
		channel:   openChannel(broadcastChannelLabel),
		state:     PairConnected,
		createdAt: time.Now(),
		finalized: true,
	}
	s.offers = []presence.SignalingEnvelope{{Value: "offer/conn-1", TargetClientID: "ghost"}}
	s.mu.Unlock()

	// The first tick prunes the pair along with its orphaned envelope.
	s.tick(ctx)
	s.mu.Lock()
	assert.Empty(t, s.pairs)
	assert.Empty(t, s.offers)
	s.mu.Unlock()

	// With the envelope gone the stored record is current again, so
	// further ticks stop rewriting the document.
	_, rev1 := readDoc(t, mem, s.presence.Key())
	s.tick(ctx)
	_, rev2 := readDoc(t, mem, s.presence.Key())
	assert.Equal(t, rev1, rev2)
}

func TestTick_LeaderHeartbeatKeepsClaim(t *testing.T) {
	mem := store.NewMemoryStore()
	cfg := Config{
		SessionCode:     "TEST-SPAN-01",
		HeartbeatPeriod: time.Millisecond, // every tick rewrites
	}
	s := New(cfg, presence.NewClient(mem, BlobKey(cfg.SessionCode)), newFakeNetwork().dialer(), newFakeViewer())
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.Present(ctx))
	time.Sleep(5 * time.Millisecond)
	s.tick(ctx)

	doc, _ := readDoc(t, mem, s.presence.Key())
	assert.Equal(t, s.ID(), doc.LeaderClientID)
}

func TestTick_SurvivesStoreFailure(t *testing.T) {
	cfg := Config{SessionCode: "TEST-SPAN-01", HeartbeatPeriod: time.Minute}
	pc := presence.NewClient(&failingStore{}, BlobKey(cfg.SessionCode))
	s := New(cfg, pc, newFakeNetwork().dialer(), newFakeViewer())
	t.Cleanup(func() { s.Close() })

	// Nothing readable, nothing cached: the tick degrades to a no-op.
	s.tick(context.Background())
	st := s.Status()
	assert.False(t, st.IsLeader)
	assert.Empty(t, st.Peers)
}

// failingStore errors on every call.
type failingStore struct{}

func (f *failingStore) Get(ctx context.Context, key string) (string, string, error) {
	return "", "", context.DeadlineExceeded
}

func (f *failingStore) Put(ctx context.Context, key, text, prevRev string) (string, error) {
	return "", context.DeadlineExceeded
}
