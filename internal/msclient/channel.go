package msclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Handler обрабатывает полезную нагрузку одного входящего события.
type Handler func(data json.RawMessage)

// Channel — двунаправленный канал именованных событий до игрового сервера.
// Session написан против этого интерфейса; боевая реализация — WSChannel.
type Channel interface {
	Connect(ctx context.Context) error
	Emit(event string, payload any) error
	On(event string, h Handler)
	OnConnect(h func())
	Disconnect()
}

// конверт кадра на проводе
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WSChannel — Channel поверх gorilla/websocket.
// Запись сериализована (мьютекс + write-deadline), чтение — в readLoop
// с экспоненциальным реконнектом.
type WSChannel struct {
	url string
	log zerolog.Logger

	conn   *websocket.Conn
	wmu    sync.Mutex // сериализует запись в websocket
	closed atomic.Bool

	hmu       sync.Mutex
	handlers  map[string][]Handler
	onConnect []func()
}

// NewWSChannel строит канал до serverURL (http/https превращается в ws/wss).
func NewWSChannel(serverURL string, log zerolog.Logger) *WSChannel {
	return &WSChannel{
		url:      wsURL(serverURL),
		log:      log.With().Str("module", "channel").Logger(),
		handlers: make(map[string][]Handler),
	}
}

func wsURL(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil {
		return serverURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket"
	}
	return u.String()
}

// Connect — устанавливает WebSocket и запускает readLoop.
// Контекст можно отменить для мягкого выхода из readLoop.
func (ch *WSChannel) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ch.url, nil)
	if err != nil {
		return err
	}
	ch.conn = conn
	ch.closed.Store(false)
	ch.fireConnect()

	go ch.readLoop(ctx)
	return nil
}

// Emit отправляет событие с полезной нагрузкой.
func (ch *WSChannel) Emit(event string, payload any) error {
	if ch.conn == nil {
		return fmt.Errorf("not connected")
	}
	env := envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}

	ch.wmu.Lock()
	defer ch.wmu.Unlock()
	_ = ch.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ch.conn.WriteMessage(websocket.TextMessage, frame)
}

// On регистрирует обработчик входящего события. Регистрировать до Connect.
func (ch *WSChannel) On(event string, h Handler) {
	ch.hmu.Lock()
	ch.handlers[event] = append(ch.handlers[event], h)
	ch.hmu.Unlock()
}

// OnConnect регистрирует обработчик (ре)подключения транспорта.
func (ch *WSChannel) OnConnect(h func()) {
	ch.hmu.Lock()
	ch.onConnect = append(ch.onConnect, h)
	ch.hmu.Unlock()
}

// Disconnect закрывает канал. Повторный вызов безопасен.
func (ch *WSChannel) Disconnect() {
	if !ch.closed.CompareAndSwap(false, true) {
		return
	}
	ch.closeConn()
}

func (ch *WSChannel) closeConn() {
	ch.wmu.Lock()
	defer ch.wmu.Unlock()
	if ch.conn != nil {
		_ = ch.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		_ = ch.conn.Close()
	}
}

func (ch *WSChannel) fireConnect() {
	ch.hmu.Lock()
	hs := make([]func(), len(ch.onConnect))
	copy(hs, ch.onConnect)
	ch.hmu.Unlock()
	for _, h := range hs {
		h()
	}
}

func (ch *WSChannel) dispatch(env envelope) {
	ch.hmu.Lock()
	hs := make([]Handler, len(ch.handlers[env.Event]))
	copy(hs, ch.handlers[env.Event])
	ch.hmu.Unlock()
	if len(hs) == 0 {
		ch.log.Debug().Str("event", env.Event).Msg("no handler for event")
		return
	}
	for _, h := range hs {
		h(env.Data)
	}
}

func (ch *WSChannel) readLoop(ctx context.Context) {
	// закрыть сокет по отмене контекста, чтобы ReadMessage проснулся
	go func() {
		<-ctx.Done()
		ch.closed.Store(true)
		ch.closeConn()
	}()

	backoff := time.Second

	for {
		_, data, err := ch.conn.ReadMessage()
		if err == nil {
			var env envelope
			if uerr := json.Unmarshal(data, &env); uerr != nil {
				ch.log.Debug().Err(uerr).Msg("malformed frame, skipped")
				continue
			}
			ch.dispatch(env)
			backoff = time.Second
			continue
		}

		if ch.closed.Load() {
			return
		}
		ch.log.Warn().Err(err).Msg("read error, reconnecting")
		ch.closeConn()

		// реконнект с backoff
		if !ch.reconnect(ctx, &backoff) {
			return
		}
	}
}

func (ch *WSChannel) reconnect(ctx context.Context, backoff *time.Duration) bool {
	for !ch.closed.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(*backoff):
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, ch.url, nil)
			if err != nil {
				ch.log.Warn().Err(err).Dur("wait", *backoff).Msg("reconnect failed")
				if *backoff < 30*time.Second {
					*backoff *= 2
					if *backoff > 30*time.Second {
						*backoff = 30 * time.Second
					}
				}
				continue
			}
			ch.wmu.Lock()
			ch.conn = conn
			ch.wmu.Unlock()
			ch.log.Info().Msg("reconnected")
			ch.fireConnect()
			*backoff = time.Second
			return true
		}
	}
	return false
}
