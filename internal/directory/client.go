package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrUnavailable — справочник комнат недоступен (сеть/статус/битый JSON).
// Вызывающий обязан трактовать это как «данных в этом цикле нет»,
// а не как «комнат ноль».
var ErrUnavailable = errors.New("room directory unavailable")

// Client опрашивает HTTP-справочник живых комнат сервера.
type Client struct {
	http    *http.Client
	baseURL string

	mu        sync.Mutex
	etag      string // для If-None-Match
	lastRooms []string
}

type roomDescriptor struct {
	RoomKey string `json:"room_key"`
}

// New создает клиент справочника для данного базового URL.
func New(baseURL string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
	}
}

// FetchLiveRooms возвращает ключи живых комнат на текущий момент.
// Любой сбой (сеть, не-2xx, кривое тело) сворачивается в ErrUnavailable.
// Использует ETag для экономии: на 304 отдается предыдущий снимок.
func (c *Client) FetchLiveRooms(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/rooms", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	c.mu.Lock()
	if c.etag != "" {
		req.Header.Set("If-None-Match", c.etag)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	// 304 — ничего не изменилось, отдадим предыдущий снимок
	if resp.StatusCode == http.StatusNotModified {
		c.mu.Lock()
		prev := make([]string, len(c.lastRooms))
		copy(prev, c.lastRooms)
		c.mu.Unlock()
		return prev, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var descs []roomDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&descs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rooms := make([]string, 0, len(descs))
	for _, d := range descs {
		rooms = append(rooms, d.RoomKey)
	}

	c.mu.Lock()
	if et := resp.Header.Get("ETag"); et != "" {
		c.etag = et
	}
	c.lastRooms = make([]string, len(rooms))
	copy(c.lastRooms, rooms)
	c.mu.Unlock()

	return rooms, nil
}
