package msclient

import "encoding/json"

// Имена событий протокола multisnake (как их шлет сервер).
const (
	EventJoinRequest         = "join_request"
	EventJoinRespond         = "join_request_respond"
	EventBoardRespond        = "board_request_respond"
	EventChangeDirection     = "change_direction"
	EventSpawnRequest        = "spawn_request"
	EventChat                = "chat"
	EventRequestOptimalSpawn = "request_optimal_spawn"
	EventOptimalSpawn        = "optimal_spawn"
	EventSnakeDeath          = "snake_death"
	EventWin                 = "win"
	EventError               = "error"
)

// Direction — направление движения змейки.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Snake — чужая или своя змейка в снимке доски. Клиент читает только
// uid и имя; остальное сервер может слать как угодно.
type Snake struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// Board — снимок доски комнаты. Raw хранит полное тело события,
// чтобы решающий колбэк мог видеть поля, которые клиент не разбирает.
type Board struct {
	Snakes []Snake         `json:"snakes"`
	Raw    json.RawMessage `json:"-"`
}

// FindSnake ищет змейку по uid, nil если её нет на доске.
func (b *Board) FindSnake(uid string) *Snake {
	if b == nil || uid == "" {
		return nil
	}
	for i := range b.Snakes {
		if b.Snakes[i].UID == uid {
			return &b.Snakes[i]
		}
	}
	return nil
}

// ----- полезные нагрузки событий -----

type joinRequest struct {
	Room      string `json:"room"`
	APIKey    string `json:"api_key"`
	UIDPlease string `json:"uidPlease"`
	Bot       bool   `json:"bot"`
}

type joinRespond struct {
	Room string `json:"room"`
}

type directionChange struct {
	UID       string    `json:"uid"`
	Direction Direction `json:"direction"`
	APIKey    string    `json:"api_key"`
}

type spawnRequest struct {
	Username string          `json:"username"`
	Spawn    json.RawMessage `json:"spawn"`
	Room     string          `json:"room"`
	UID      string          `json:"uid"`
	Bot      bool            `json:"bot"`
}

type chatMessage struct {
	Room    string `json:"room,omitempty"`
	From    string `json:"from"`
	Message string `json:"message"`
}

type optimalSpawnRequest struct {
	Room string `json:"room"`
}

type optimalSpawn struct {
	OptimalSpawn json.RawMessage `json:"optimal_spawn"`
}

type snakeDeath struct {
	UID string `json:"uid"`
}
