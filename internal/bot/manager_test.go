package bot

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/snakebot/internal/directory"
	"example.com/snakebot/internal/msclient"
)

type fakeEmit struct {
	event string
	data  map[string]any
}

type fakeChannel struct {
	mu          sync.Mutex
	emits       []fakeEmit
	handlers    map[string][]msclient.Handler
	onConnect   []func()
	disconnects int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]msclient.Handler)}
}

func (c *fakeChannel) Connect(context.Context) error {
	for _, h := range c.onConnect {
		h()
	}
	return nil
}

func (c *fakeChannel) Emit(event string, payload any) error {
	var data map[string]any
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(b, &data); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.emits = append(c.emits, fakeEmit{event: event, data: data})
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) On(event string, h msclient.Handler) {
	c.handlers[event] = append(c.handlers[event], h)
}

func (c *fakeChannel) OnConnect(h func()) {
	c.onConnect = append(c.onConnect, h)
}

func (c *fakeChannel) Disconnect() {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
}

func (c *fakeChannel) fire(t *testing.T, event string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	for _, h := range c.handlers[event] {
		h(data)
	}
}

func (c *fakeChannel) eventsOf(event string) []fakeEmit {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []fakeEmit
	for _, e := range c.emits {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type channelFactory struct {
	mu    sync.Mutex
	chans []*fakeChannel
}

func (f *channelFactory) new(string) msclient.Channel {
	c := newFakeChannel()
	f.mu.Lock()
	f.chans = append(f.chans, c)
	f.mu.Unlock()
	return c
}

// forRoom находит канал по комнате из ушедшего join_request.
func (f *channelFactory) forRoom(t *testing.T, room string) *fakeChannel {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chans {
		for _, e := range c.eventsOf(msclient.EventJoinRequest) {
			if e.data["room"] == room {
				return c
			}
		}
	}
	t.Fatalf("no channel joined room %q", room)
	return nil
}

type listResult struct {
	rooms []string
	err   error
}

type fakeLister struct {
	mu    sync.Mutex
	queue []listResult
}

func (l *fakeLister) FetchLiveRooms(context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, directory.ErrUnavailable
	}
	res := l.queue[0]
	if len(l.queue) > 1 {
		l.queue = l.queue[1:]
	}
	return res.rooms, res.err
}

func newTestManager(t *testing.T, opts Options, lister roomLister) (*Manager, *channelFactory) {
	t.Helper()
	m, err := New(opts)
	require.NoError(t, err)
	f := &channelFactory{}
	m.newChannel = f.new
	m.dir = lister
	return m, f
}

func TestNewRequiresName(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	assert.ErrorContains(t, err, "name")
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	m, err := New(Options{Name: "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"classic-classic_0", "classic-classic_1"}, m.rooms)
	assert.Equal(t, defaultServerURL, m.opts.ServerURL)
	assert.NotEmpty(t, m.opts.UID, "uid must be generated when not supplied")
	assert.Equal(t, defaultPollInterval, m.interval)
}

func TestSyncRoomsAppliesDelta(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{queue: []listResult{
		{rooms: []string{"R1", "R2"}},
		{rooms: []string{"R2"}},
	}}
	m, f := newTestManager(t, Options{
		Name:  "B",
		Rooms: []string{"R1"},
		Bot:   BotOptions{UID: "u1"},
	}, lister)

	m.syncRooms(context.Background())
	assert.Equal(t, []string{"R1"}, m.ActiveRooms())

	sess, err := m.SessionForRoom("R1")
	require.NoError(t, err)
	assert.Equal(t, msclient.StateJoining, sess.State())

	// R2 жива, но не желаема
	_, err = m.SessionForRoom("R2")
	assert.ErrorIs(t, err, ErrNotFound)

	// R1 пропала из live — снимается, хотя все еще желаема
	m.syncRooms(context.Background())
	assert.Empty(t, m.ActiveRooms())
	assert.Equal(t, msclient.StateEnded, sess.State())
	assert.Equal(t, 1, f.forRoom(t, "R1").disconnects)
}

func TestSyncRoomsDirectoryUnavailableIsNoop(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{queue: []listResult{
		{rooms: []string{"R1"}},
		{err: directory.ErrUnavailable},
	}}
	m, _ := newTestManager(t, Options{
		Name:  "B",
		Rooms: []string{"R1"},
		Bot:   BotOptions{UID: "u1"},
	}, lister)

	m.syncRooms(context.Background())
	require.Equal(t, []string{"R1"}, m.ActiveRooms())
	sess, err := m.SessionForRoom("R1")
	require.NoError(t, err)

	// сбой справочника — «данных нет», а не «комнат ноль»
	m.syncRooms(context.Background())
	assert.Equal(t, []string{"R1"}, m.ActiveRooms())
	assert.NotEqual(t, msclient.StateEnded, sess.State())
}

func TestDirectionEmittedOnlyForPresentSnake(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{queue: []listResult{{rooms: []string{"R1"}}}}
	m, f := newTestManager(t, Options{
		Name:  "B",
		Rooms: []string{"R1"},
		Bot:   BotOptions{UID: "u1", APIKey: "k"},
		OnNeedDirection: func(*msclient.Board, string) msclient.Direction {
			return msclient.DirectionLeft
		},
	}, lister)

	m.syncRooms(context.Background())
	ch := f.forRoom(t, "R1")

	// своей змейки в снимке нет — хода нет, что бы ни вернул колбэк
	ch.fire(t, msclient.EventBoardRespond, map[string]any{
		"snakes": []map[string]string{{"uid": "other", "name": "X"}},
	})
	assert.Empty(t, ch.eventsOf(msclient.EventChangeDirection))

	ch.fire(t, msclient.EventBoardRespond, map[string]any{
		"snakes": []map[string]string{{"uid": "u1", "name": "B"}},
	})
	moves := ch.eventsOf(msclient.EventChangeDirection)
	require.Len(t, moves, 1)
	assert.Equal(t, "u1", moves[0].data["uid"])
	assert.Equal(t, "left", moves[0].data["direction"])
	assert.Equal(t, "k", moves[0].data["api_key"])
}

func TestNoDirectionWhenCallbackReturnsEmpty(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{queue: []listResult{{rooms: []string{"R1"}}}}
	m, f := newTestManager(t, Options{
		Name:  "B",
		Rooms: []string{"R1"},
		Bot:   BotOptions{UID: "u1"},
		OnNeedDirection: func(*msclient.Board, string) msclient.Direction {
			return ""
		},
	}, lister)

	m.syncRooms(context.Background())
	ch := f.forRoom(t, "R1")
	ch.fire(t, msclient.EventBoardRespond, map[string]any{
		"snakes": []map[string]string{{"uid": "u1", "name": "B"}},
	})
	assert.Empty(t, ch.eventsOf(msclient.EventChangeDirection))
}

func TestNoDirectionWithoutCallback(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{queue: []listResult{{rooms: []string{"R1"}}}}
	m, f := newTestManager(t, Options{
		Name:  "B",
		Rooms: []string{"R1"},
		Bot:   BotOptions{UID: "u1"},
	}, lister)

	m.syncRooms(context.Background())
	ch := f.forRoom(t, "R1")
	ch.fire(t, msclient.EventBoardRespond, map[string]any{
		"snakes": []map[string]string{{"uid": "u1", "name": "B"}},
	})
	assert.Empty(t, ch.eventsOf(msclient.EventChangeDirection))
	// и переговоры о спавне без колбэка не начинаются
	ch.fire(t, msclient.EventJoinRespond, map[string]string{"room": "R1"})
	assert.Empty(t, ch.eventsOf(msclient.EventRequestOptimalSpawn))
}

func TestOptimalSpawnRequestedAfterJoinAck(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{queue: []listResult{{rooms: []string{"R1"}}}}
	m, f := newTestManager(t, Options{
		Name:  "B",
		Rooms: []string{"R1"},
		Bot:   BotOptions{UID: "u1"},
		OnNeedDirection: func(*msclient.Board, string) msclient.Direction {
			return msclient.DirectionLeft
		},
	}, lister)

	m.syncRooms(context.Background())
	ch := f.forRoom(t, "R1")
	assert.Empty(t, ch.eventsOf(msclient.EventRequestOptimalSpawn))

	ch.fire(t, msclient.EventJoinRespond, map[string]string{"room": "R1"})
	reqs := ch.eventsOf(msclient.EventRequestOptimalSpawn)
	require.Len(t, reqs, 1)
	assert.Equal(t, "R1", reqs[0].data["room"])
}

func TestCommandForwarding(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{queue: []listResult{{rooms: []string{"R1"}}}}
	m, f := newTestManager(t, Options{
		Name:  "B",
		Rooms: []string{"R1"},
		Bot:   BotOptions{UID: "u1"},
	}, lister)

	type command struct{ from, message, room string }
	var got []command
	m.IsCommand = func(message string) bool { return len(message) > 0 && message[0] == '/' }
	m.OnCommand = func(from, message string, reply ReplyFunc, room string) {
		got = append(got, command{from, message, room})
		reply("pong")
	}

	m.syncRooms(context.Background())
	ch := f.forRoom(t, "R1")

	// своё эхо пропускается
	ch.fire(t, msclient.EventChat, map[string]string{"from": "B", "message": "/ping"})
	assert.Empty(t, got)

	// не команда — пропускается
	ch.fire(t, msclient.EventChat, map[string]string{"from": "alice", "message": "hello"})
	assert.Empty(t, got)

	ch.fire(t, msclient.EventChat, map[string]string{"from": "alice", "message": "/ping"})
	require.Len(t, got, 1)
	assert.Equal(t, command{"alice", "/ping", "R1"}, got[0])

	// reply привязан к сессии-источнику
	chats := ch.eventsOf(msclient.EventChat)
	require.Len(t, chats, 1)
	assert.Equal(t, "pong", chats[0].data["message"])
	assert.Equal(t, "B", chats[0].data["from"])
	assert.Equal(t, "R1", chats[0].data["room"])
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{queue: []listResult{{rooms: []string{"R1"}}}}
	m, _ := newTestManager(t, Options{
		Name:         "B",
		Rooms:        []string{"R1"},
		Bot:          BotOptions{UID: "u1"},
		PollInterval: time.Hour, // только стартовая сверка
	}, lister)

	require.NoError(t, m.Start())
	assert.Error(t, m.Start(), "second start must fail")

	require.Eventually(t, func() bool {
		return len(m.ActiveRooms()) == 1
	}, time.Second, 10*time.Millisecond)

	sess, err := m.SessionForRoom("R1")
	require.NoError(t, err)

	m.Stop()
	assert.Equal(t, msclient.StateEnded, sess.State())
	assert.Empty(t, m.ActiveRooms())

	m.Stop() // повторный Stop безопасен
}
