package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"example.com/snakebot/internal/directory"
	"example.com/snakebot/internal/msclient"
)

// ErrNotFound — для данной комнаты нет активной сессии.
var ErrNotFound = errors.New("no session for room")

// DirectionFunc — решающий колбэк: по снимку доски и комнате вернуть
// направление. Пустое направление = хода нет. Колбэк должен быть чистым:
// никаких побочных эффектов, только возврат значения.
type DirectionFunc func(board *msclient.Board, room string) msclient.Direction

// ReplyFunc шлет ответ в чат той комнаты, из которой пришла команда.
type ReplyFunc func(message string)

// BotOptions — учетные данные и адрес сервера для всех сессий пула.
type BotOptions struct {
	ServerURL string
	APIKey    string
	UID       string
}

// Options — конфигурация пула на этапе конструирования.
type Options struct {
	Name            string   // обязательное имя бота
	Rooms           []string // желаемые комнаты; по умолчанию — пара classic
	OnNeedDirection DirectionFunc
	Bot             BotOptions
	Log             bool
	PollInterval    time.Duration // период сверки комнат, по умолчанию 5s
}

const (
	defaultServerURL    = "https://multisnake.xyz"
	defaultPollInterval = 5 * time.Second
)

func defaultRooms() []string {
	return []string{"classic-classic_0", "classic-classic_1"}
}

// roomLister — то, что пулу нужно от справочника комнат.
type roomLister interface {
	FetchLiveRooms(ctx context.Context) ([]string, error)
}

// Manager держит по одной сессии на каждую комнату, которая одновременно
// желаема и жива. Реестр сессий мутирует только цикл сверки — обработчики
// событий сессий его не трогают.
type Manager struct {
	name            string
	rooms           []string
	onNeedDirection DirectionFunc
	opts            BotOptions
	interval        time.Duration
	log             zerolog.Logger

	// IsCommand классифицирует сообщение чата как команду боту.
	// OnCommand вызывается для каждой команды с reply, привязанным
	// к сессии-источнику. Задавать до Start.
	IsCommand func(message string) bool
	OnCommand func(from, message string, reply ReplyFunc, room string)

	dir        roomLister
	newChannel func(serverURL string) msclient.Channel

	mu       sync.Mutex
	sessions map[string]*msclient.Session
	stopCh   chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New валидирует опции и собирает пул. Ошибки конфигурации фатальны
// здесь, а не где-то посреди работы.
func New(opts Options) (*Manager, error) {
	if opts.Name == "" {
		return nil, errors.New("bot must have a name")
	}
	rooms := opts.Rooms
	if len(rooms) == 0 {
		rooms = defaultRooms()
	}
	if opts.Bot.ServerURL == "" {
		opts.Bot.ServerURL = defaultServerURL
	}
	if opts.Bot.UID == "" {
		// без uid бот не найдет свою змейку в снимке и никогда не походит
		opts.Bot.UID = uuid.NewString()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	logger := zerolog.Nop()
	if opts.Log {
		logger = zlog.With().Str("module", "bot").Str("name", opts.Name).Logger()
	}

	m := &Manager{
		name:            opts.Name,
		rooms:           rooms,
		onNeedDirection: opts.OnNeedDirection,
		opts:            opts.Bot,
		interval:        interval,
		log:             logger,
		dir:             directory.New(opts.Bot.ServerURL),
		sessions:        make(map[string]*msclient.Session),
	}
	m.newChannel = func(serverURL string) msclient.Channel {
		return msclient.NewWSChannel(serverURL, m.log)
	}
	return m, nil
}

// Start запускает периодическую сверку комнат.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return errors.New("already started")
	}
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go m.reconcileLoop(ctx, stopCh)
	return nil
}

// Stop гасит цикл сверки и завершает все сессии.
// Повторный Stop() ничего не делает.
func (m *Manager) Stop() {
	m.mu.Lock()
	ch := m.stopCh
	m.stopCh = nil
	m.mu.Unlock()

	if ch == nil {
		return
	}
	close(ch)
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	ended := make([]*msclient.Session, 0, len(m.sessions))
	for room, sess := range m.sessions {
		ended = append(ended, sess)
		delete(m.sessions, room)
	}
	m.mu.Unlock()
	for _, sess := range ended {
		sess.End()
	}
	m.log.Debug().Msg("stopped")
}

// SessionForRoom возвращает активную сессию комнаты или ErrNotFound.
func (m *Manager) SessionForRoom(room string) (*msclient.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[room]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// ActiveRooms — комнаты, в которых сейчас есть сессия.
func (m *Manager) ActiveRooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make([]string, 0, len(m.sessions))
	for room := range m.sessions {
		rooms = append(rooms, room)
	}
	return rooms
}

func (m *Manager) reconcileLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer m.wg.Done()

	// первая сверка сразу, не дожидаясь тика
	m.syncRooms(ctx)

	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-t.C:
			m.syncRooms(ctx)
		}
	}
}

// syncRooms — один цикл сверки: опросить справочник, применить дельту.
// Недоступный справочник — не «ноль комнат», а «данных нет»: активный
// набор не трогаем, следующий тик попробует снова.
func (m *Manager) syncRooms(ctx context.Context) {
	live, err := m.dir.FetchLiveRooms(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("directory unavailable, keeping rooms")
		return
	}

	delta := Reconcile(m.rooms, m.ActiveRooms(), live)
	for _, room := range delta.Add {
		m.addBot(ctx, room)
	}
	for _, room := range delta.Remove {
		m.removeBot(room)
	}
}

func (m *Manager) addBot(ctx context.Context, room string) {
	ch := m.newChannel(m.opts.ServerURL)
	sess := msclient.NewSession(m.name, room, ch, msclient.SessionOpts{
		APIKey: m.opts.APIKey,
		UID:    m.opts.UID,
	}, m.log)
	m.wireSession(sess, room)

	// регистрируем до Connect: вторая сессия на ту же комнату
	// не должна возникнуть даже на время рукопожатия
	m.mu.Lock()
	if _, exists := m.sessions[room]; exists {
		m.mu.Unlock()
		return
	}
	m.sessions[room] = sess
	m.mu.Unlock()

	if err := sess.Connect(ctx); err != nil {
		m.log.Warn().Err(err).Str("room", room).Msg("connect failed")
		m.removeBot(room)
		return
	}
	m.log.Info().Str("room", room).Msg("bot added")
}

func (m *Manager) removeBot(room string) {
	m.mu.Lock()
	sess, ok := m.sessions[room]
	if ok {
		delete(m.sessions, room)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	sess.End()
	m.log.Info().Str("room", room).Msg("bot removed")
}

func (m *Manager) wireSession(sess *msclient.Session, room string) {
	sess.OnReady = func() {
		m.log.Info().Str("room", room).Msg("bot ready")
	}

	if m.onNeedDirection != nil {
		sess.OnJoined = func() {
			sess.RequestOptimalSpawn()
		}
		sess.OnBoardUpdate = func(board *msclient.Board) {
			// мертвый или не заспавненный бот ходить не должен
			if board.FindSnake(sess.UID()) == nil {
				return
			}
			d := m.onNeedDirection(board, room)
			if d == "" {
				return
			}
			if err := sess.ChangeDirection(d); err != nil {
				m.log.Warn().Err(err).Str("room", room).Msg("direction change failed")
			}
		}
	}

	sess.OnChat = func(from, message string) {
		if from == m.name {
			return
		}
		if m.IsCommand == nil || !m.IsCommand(message) {
			return
		}
		if m.OnCommand == nil {
			return
		}
		m.OnCommand(from, message, sess.SendMessage, room)
	}
}
