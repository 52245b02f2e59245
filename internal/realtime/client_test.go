package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// fakeRealtime accepts websocket connections, answers joins, and hands each
// joined connection to the test.
type fakeRealtime struct {
	t      *testing.T
	joins  chan message
	conns  chan *websocket.Conn
	apikey chan string
}

func newFakeRealtime(t *testing.T) (*fakeRealtime, string) {
	f := &fakeRealtime{
		t:      t,
		joins:  make(chan message, 8),
		conns:  make(chan *websocket.Conn, 8),
		apikey: make(chan string, 8),
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realtime/v1/websocket" {
			http.NotFound(w, r)
			return
		}
		f.apikey <- r.URL.Query().Get("apikey")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var join message
		if err := conn.ReadJSON(&join); err != nil {
			conn.Close()
			return
		}
		f.joins <- join
		reply, _ := newMessage(join.Topic, eventReply, map[string]any{"status": "ok", "response": map[string]any{}}, 0)
		reply.Ref = join.Ref
		conn.WriteJSON(reply)
		f.conns <- conn
		// Drain client frames (heartbeats) until the connection closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func (f *fakeRealtime) conn() *websocket.Conn {
	f.t.Helper()
	select {
	case c := <-f.conns:
		return c
	case <-time.After(2 * time.Second):
		f.t.Fatal("no realtime connection")
		return nil
	}
}

func pushChange(t *testing.T, conn *websocket.Conn, typ string, record, old types.Row) {
	t.Helper()
	payload := map[string]any{"data": map[string]any{
		"schema":     "public",
		"table":      types.TableOrders,
		"type":       typ,
		"record":     record,
		"old_record": old,
	}}
	msg, err := newMessage(topicFor(types.TableOrders), eventChanges, payload, 0)
	require.NoError(t, err)
	msg.Ref = nil
	require.NoError(t, conn.WriteJSON(msg))
}

func next(t *testing.T, sub types.Subscription) types.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return types.ChangeEvent{}
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(Config{
		URL:         url,
		Key:         "anon",
		AccessToken: "jwt",
		Heartbeat:   5 * time.Second,
		MinBackoff:  10 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

var ordersForR1 = []types.Predicate{{Field: "restaurant_id", Op: types.OpEq, Value: "r1"}}

func TestSubscribeJoinsWithFilter(t *testing.T) {
	fake, url := newFakeRealtime(t)
	c := newTestClient(t, url)

	sub, err := c.Subscribe(context.Background(), types.TableOrders, ordersForR1)
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, "anon", <-fake.apikey)
	join := <-fake.joins
	assert.Equal(t, eventJoin, join.Event)
	assert.Equal(t, "realtime:public:orders", join.Topic)

	var payload joinPayload
	require.NoError(t, json.Unmarshal(join.Payload, &payload))
	assert.Equal(t, "jwt", payload.AccessToken)
	require.Len(t, payload.Config.PostgresChanges, 1)
	assert.Equal(t, changeConfig{Event: "*", Schema: "public", Table: "orders", Filter: "restaurant_id=eq.r1"},
		payload.Config.PostgresChanges[0])
}

func TestChangesAreDelivered(t *testing.T) {
	fake, url := newFakeRealtime(t)
	c := newTestClient(t, url)
	sub, err := c.Subscribe(context.Background(), types.TableOrders, ordersForR1)
	require.NoError(t, err)
	defer sub.Close()
	conn := fake.conn()

	pushChange(t, conn, "INSERT", types.Row{"id": "o9", "restaurant_id": "r2"}, nil)
	pushChange(t, conn, "INSERT", types.Row{"id": "o1", "restaurant_id": "r1", "status": "pending"}, nil)
	ev := next(t, sub)
	assert.Equal(t, types.ChangeInsert, ev.Op)
	assert.Equal(t, "o1", ev.New.ID())
	assert.Nil(t, ev.Old)

	pushChange(t, conn, "UPDATE",
		types.Row{"id": "o1", "restaurant_id": "r1", "status": "confirmed"},
		types.Row{"id": "o1", "status": "pending"})
	ev = next(t, sub)
	assert.Equal(t, types.ChangeUpdate, ev.Op)
	assert.Equal(t, "pending", ev.Old["status"])
	assert.Equal(t, "confirmed", ev.New["status"])

	// Deletes usually carry only the key.
	pushChange(t, conn, "DELETE", nil, types.Row{"id": "o1"})
	ev = next(t, sub)
	assert.Equal(t, types.ChangeDelete, ev.Op)
	assert.Equal(t, "o1", ev.Old.ID())
}

func TestReconnectEmitsResync(t *testing.T) {
	fake, url := newFakeRealtime(t)
	c := newTestClient(t, url)
	sub, err := c.Subscribe(context.Background(), types.TableOrders, ordersForR1)
	require.NoError(t, err)
	defer sub.Close()

	fake.conn().Close()
	ev := next(t, sub)
	assert.Equal(t, types.ChangeResync, ev.Op)
	assert.Equal(t, types.TableOrders, ev.Table)

	conn := fake.conn()
	pushChange(t, conn, "INSERT", types.Row{"id": "o2", "restaurant_id": "r1"}, nil)
	assert.Equal(t, "o2", next(t, sub).New.ID())
}

func TestCloseClosesEvents(t *testing.T) {
	_, url := newFakeRealtime(t)
	c := newTestClient(t, url)
	sub, err := c.Subscribe(context.Background(), types.TableOrders, nil)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestSubscribeDialFailure(t *testing.T) {
	c, err := New(Config{URL: "http://127.0.0.1:1", Key: "k"}, zerolog.Nop())
	require.NoError(t, err)
	_, err = c.Subscribe(context.Background(), types.TableOrders, nil)
	assert.Error(t, err)
}

func TestWebsocketURL(t *testing.T) {
	u, err := websocketURL("https://abc.supabase.co/", "key")
	require.NoError(t, err)
	assert.Equal(t, "wss://abc.supabase.co/realtime/v1/websocket?apikey=key&vsn=1.0.0", u)

	u, err = websocketURL("http://localhost:54321", "key")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:54321/realtime/v1/websocket?apikey=key&vsn=1.0.0", u)

	_, err = websocketURL("ftp://x", "key")
	assert.Error(t, err)
	_, err = websocketURL("https://x", "")
	assert.Error(t, err)
}

func TestServerFilter(t *testing.T) {
	assert.Equal(t, "", serverFilter(nil))
	assert.Equal(t, "is_active=eq.true", serverFilter([]types.Predicate{
		{Field: "total", Op: types.OpGte, Value: 10.0},
		{Field: "is_active", Op: types.OpEq, Value: true},
	}))
}

func TestDeleteMatchesPresentColumnsOnly(t *testing.T) {
	ev := types.ChangeEvent{Op: types.ChangeDelete, Old: types.Row{"id": "o1"}}
	assert.True(t, matches(ordersForR1, ev))

	ev.Old["restaurant_id"] = "r2"
	assert.False(t, matches(ordersForR1, ev))
}
