package msclient

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// State — фаза жизненного цикла сессии. Движется только вперед;
// End переводит в StateEnded из любой фазы.
type State int32

const (
	StateConnecting State = iota
	StateJoining
	StateReady
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoining:
		return "joining"
	case StateReady:
		return "ready"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// SessionOpts — учетные данные бота для одной комнаты.
type SessionOpts struct {
	APIKey string
	UID    string
}

// Session — присутствие одного бота в одной комнате: рукопожатие входа,
// кэш доски, переговоры о спавне, исходящие команды.
//
// "События" (колбэки поля структуры):
//   - OnReady — первый снимок доски получен, сессия работоспособна;
//   - OnJoined — сервер подтвердил вход в комнату;
//   - OnBoardUpdate — каждый снимок доски (включая первый);
//   - OnChat — входящее сообщение чата.
type Session struct {
	name   string
	room   string
	apiKey string
	uid    string

	ch  Channel
	log zerolog.Logger

	state atomic.Int32
	first atomic.Bool // рукопожатие входа выполняется один раз за сессию

	mu         sync.Mutex
	board      *Board
	serverRoom string // каноническая ссылка комнаты из подтверждения входа

	OnReady       func()
	OnJoined      func()
	OnBoardUpdate func(*Board)
	OnChat        func(from, message string)
}

// NewSession создает сессию и подписывает её обработчики на канал.
// Канал еще не подключен: вызвать Connect отдельно.
func NewSession(name, room string, ch Channel, opts SessionOpts, log zerolog.Logger) *Session {
	s := &Session{
		name:   name,
		room:   room,
		apiKey: opts.APIKey,
		uid:    opts.UID,
		ch:     ch,
		log:    log.With().Str("module", "session").Str("room", room).Logger(),
	}
	s.state.Store(int32(StateConnecting))
	s.first.Store(true)

	ch.OnConnect(s.handleConnect)
	ch.On(EventJoinRespond, s.handleJoinRespond)
	ch.On(EventBoardRespond, s.handleBoard)
	ch.On(EventSnakeDeath, s.handleSnakeDeath)
	ch.On(EventWin, s.handleWin)
	ch.On(EventOptimalSpawn, s.handleOptimalSpawn)
	ch.On(EventChat, s.handleChat)
	ch.On(EventError, s.handleError)

	s.log.Debug().Str("name", name).Msg("session created")
	return s
}

// Connect открывает канал; рукопожатие входа уйдет из обработчика коннекта.
func (s *Session) Connect(ctx context.Context) error {
	return s.ch.Connect(ctx)
}

func (s *Session) Room() string { return s.room }
func (s *Session) UID() string  { return s.uid }

func (s *Session) State() State {
	return State(s.state.Load())
}

// Ready — получен ли уже первый снимок доски.
func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// Board возвращает последний снимок доски, nil до готовности.
func (s *Session) Board() *Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board
}

// SendMessage шлет сообщение в чат комнаты от имени бота.
func (s *Session) SendMessage(message string) {
	if s.State() == StateEnded {
		return
	}
	if err := s.ch.Emit(EventChat, chatMessage{Room: s.room, From: s.name, Message: message}); err != nil {
		s.log.Warn().Err(err).Msg("chat send failed")
	}
}

// ChangeDirection шлет смену направления для своей змейки.
func (s *Session) ChangeDirection(d Direction) error {
	if s.State() == StateEnded {
		return nil
	}
	return s.ch.Emit(EventChangeDirection, directionChange{UID: s.uid, Direction: d, APIKey: s.apiKey})
}

// RequestOptimalSpawn просит сервер подобрать точку спавна в этой комнате.
func (s *Session) RequestOptimalSpawn() {
	if s.State() == StateEnded {
		return
	}
	if err := s.ch.Emit(EventRequestOptimalSpawn, optimalSpawnRequest{Room: s.room}); err != nil {
		s.log.Warn().Err(err).Msg("optimal spawn request failed")
	}
}

// End разрывает канал и гасит сессию. Идемпотентен: повторный вызов
// ничего не делает. Поздние события после End игнорируются.
func (s *Session) End() {
	prev := State(s.state.Swap(int32(StateEnded)))
	if prev == StateEnded {
		return
	}
	s.ch.Disconnect()
	s.mu.Lock()
	s.board = nil
	s.mu.Unlock()
	s.log.Debug().Msg("session ended")
}

// ----- обработчики входящих событий -----

func (s *Session) handleConnect() {
	if s.State() == StateEnded {
		return
	}
	// вход шлется строго один раз; транспорт может переподключаться ниже,
	// но повторный join_request породил бы двойное членство
	if !s.first.CompareAndSwap(true, false) {
		s.log.Warn().Msg("transport reconnected, join handshake not repeated")
		return
	}
	s.log.Debug().Msg("connected, joining")
	if err := s.ch.Emit(EventJoinRequest, joinRequest{
		Room:      s.room,
		APIKey:    s.apiKey,
		UIDPlease: s.uid,
		Bot:       true,
	}); err != nil {
		s.log.Warn().Err(err).Msg("join request failed")
		return
	}
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateJoining))
}

func (s *Session) handleJoinRespond(data json.RawMessage) {
	if s.State() == StateEnded {
		return
	}
	var resp joinRespond
	if err := json.Unmarshal(data, &resp); err != nil {
		s.log.Debug().Err(err).Msg("bad join respond payload")
		return
	}
	s.mu.Lock()
	s.serverRoom = resp.Room
	s.mu.Unlock()
	s.log.Debug().Msg("joined")
	// готовность наступит только с первым снимком доски:
	// без него решения принимать не по чему
	if s.OnJoined != nil {
		s.OnJoined()
	}
}

func (s *Session) handleBoard(data json.RawMessage) {
	var board Board
	if err := json.Unmarshal(data, &board); err != nil {
		s.log.Debug().Err(err).Msg("bad board payload")
		return
	}
	board.Raw = data

	becameReady := false
	for {
		st := s.State()
		if st == StateEnded {
			return
		}
		if st == StateReady {
			break
		}
		if s.state.CompareAndSwap(int32(st), int32(StateReady)) {
			becameReady = true
			break
		}
	}

	s.mu.Lock()
	s.board = &board
	s.mu.Unlock()

	if becameReady {
		s.log.Debug().Msg("ready")
		if s.OnReady != nil {
			s.OnReady()
		}
	}
	if s.OnBoardUpdate != nil {
		s.OnBoardUpdate(&board)
	}
}

func (s *Session) handleSnakeDeath(data json.RawMessage) {
	if s.State() == StateEnded {
		return
	}
	var d snakeDeath
	if err := json.Unmarshal(data, &d); err != nil {
		s.log.Debug().Err(err).Msg("bad snake death payload")
		return
	}
	if d.UID != s.uid {
		return
	}
	s.log.Debug().Msg("died, requesting respawn")
	s.RequestOptimalSpawn()
}

func (s *Session) handleWin(json.RawMessage) {
	if s.State() == StateEnded {
		return
	}
	s.log.Debug().Msg("won, requesting respawn")
	s.RequestOptimalSpawn()
}

func (s *Session) handleOptimalSpawn(data json.RawMessage) {
	if s.State() == StateEnded {
		return
	}
	var sp optimalSpawn
	if err := json.Unmarshal(data, &sp); err != nil {
		s.log.Debug().Err(err).Msg("bad optimal spawn payload")
		return
	}
	if err := s.ch.Emit(EventSpawnRequest, spawnRequest{
		Username: s.name,
		Spawn:    sp.OptimalSpawn,
		Room:     s.room,
		UID:      s.uid,
		Bot:      true,
	}); err != nil {
		s.log.Warn().Err(err).Msg("spawn request failed")
	}
}

func (s *Session) handleChat(data json.RawMessage) {
	if s.State() == StateEnded {
		return
	}
	var msg chatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Debug().Err(err).Msg("bad chat payload")
		return
	}
	if s.OnChat != nil {
		s.OnChat(msg.From, msg.Message)
	}
}

func (s *Session) handleError(data json.RawMessage) {
	s.log.Debug().Str("data", string(data)).Msg("server error event")
}
