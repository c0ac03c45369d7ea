package miner

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"grass_auto/internal/config"
	"grass_auto/internal/grass"
	"grass_auto/internal/store/sqlite"
)

const (
	maxFailureStreak = 5
	pingInterval     = 2 * time.Minute
	readWindow       = 3 * time.Minute
	replyWindow      = 10 * time.Second
)

// Options wires one mining session.
type Options struct {
	Mining        config.MiningConfig
	API           config.APIConfig
	Store         *sqlite.Store
	Client        *grass.Client
	Proxy         string
	MinProxyScore int
	Log           *zap.Logger
}

// Miner keeps one device online over a proxy-bound websocket, answers the
// service's liveness checks and records polled point totals. It has no
// natural terminal success: Run returns only on context cancellation or a
// sustained connection-failure streak.
type Miner struct {
	opts Options

	mu           sync.Mutex
	proxy        string
	scoreChecked bool

	// wait is swapped out by tests so a failure streak plays out without
	// real backoff sleeps.
	wait func(failures int) time.Duration
}

func New(opts Options) *Miner {
	return &Miner{opts: opts, proxy: opts.Proxy, wait: backoff}
}

type wsMessage struct {
	ID           string          `json:"id"`
	Version      string          `json:"version,omitempty"`
	Action       string          `json:"action,omitempty"`
	OriginAction string          `json:"origin_action,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Result       any             `json:"result,omitempty"`
}

func (m *Miner) Run(ctx context.Context) error {
	// The pollers must not outlive the worker: when the failure streak ends
	// the loop, cancel stops them before the caller closes the client.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if m.opts.Mining.CheckPoints {
		go m.pollPoints(ctx)
	}

	failures := 0
	for {
		started := time.Now()
		err := m.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A session that held for a while was healthy; only consecutive
		// quick failures count toward the streak.
		if time.Since(started) > 5*time.Minute {
			failures = 0
		}
		failures++
		if failures >= maxFailureStreak {
			return fmt.Errorf("mining connection failed %d times in a row: %w", failures, err)
		}

		wait := m.wait(failures)
		if errors.Is(err, grass.ErrServiceDown) && m.opts.Mining.StopWhenSiteDown {
			wait = m.opts.Mining.SiteDownCooldown()
			m.opts.Log.Warn("service degraded, pausing mining",
				zap.String("email", m.opts.Client.Email()), zap.Duration("cooldown", wait))
		} else {
			m.opts.Log.Debug("mining reconnect",
				zap.String("email", m.opts.Client.Email()), zap.Int("failures", failures), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session holds one connection from dial to first error.
func (m *Miner) session(ctx context.Context) error {
	conn, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	// Writer side: client PINGs on a fixed cadence.
	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				writeErr <- ctx.Err()
				return
			case <-pingTicker.C:
				msg := wsMessage{ID: uuid.NewString(), Version: "1.0.0", Action: "PING", Data: json.RawMessage(`{}`)}
				if err := m.write(conn, msg); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case err := <-writeErr:
			return err
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(readWindow))
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		switch msg.Action {
		case "AUTH":
			if err := m.write(conn, m.authReply(msg.ID)); err != nil {
				return err
			}
			m.opts.Log.Debug("mining session authenticated",
				zap.String("email", m.opts.Client.Email()), zap.String("proxy", tail(m.currentProxy())))
			m.checkProxyScoreOnce(ctx)
		case "PING":
			if err := m.write(conn, wsMessage{ID: msg.ID, OriginAction: "PONG"}); err != nil {
				return err
			}
		case "PONG":
			// our PING acknowledged
		default:
			// Unknown service actions get a generic OK so the server does
			// not drop the device.
			if err := m.write(conn, wsMessage{ID: msg.ID, OriginAction: msg.Action, Result: map[string]any{}}); err != nil {
				return err
			}
		}
	}
}

func (m *Miner) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: true},
	}
	if proxy := m.currentProxy(); proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("proxy url: %w", err)
		}
		dialer.Proxy = http.ProxyURL(u)
	}

	conn, resp, err := dialer.DialContext(ctx, m.opts.API.WSURL, http.Header{
		"User-Agent": {m.opts.API.UserAgent},
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 500 {
			return nil, fmt.Errorf("dial %s: %w", m.opts.API.WSURL, grass.ErrServiceDown)
		}
		return nil, fmt.Errorf("dial %s: %w", m.opts.API.WSURL, err)
	}
	return conn, nil
}

func (m *Miner) write(conn *websocket.Conn, msg wsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(replyWindow))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Action+msg.OriginAction, err)
	}
	return nil
}

func (m *Miner) authReply(id string) wsMessage {
	return wsMessage{
		ID:           id,
		OriginAction: "AUTH",
		Result: map[string]any{
			"browser_id":  m.opts.Client.DeviceKey(),
			"user_id":     m.opts.Client.UserID(),
			"user_agent":  m.opts.API.UserAgent,
			"timestamp":   time.Now().Unix(),
			"device_type": "extension",
			"node_type":   m.opts.API.NodeType,
			"version":     "4.26.2",
		},
	}
}

// pollPoints records the account's total on a fixed cadence, independent of
// the connection. Failures are logged, never fatal.
func (m *Miner) pollPoints(ctx context.Context) {
	ticker := time.NewTicker(m.opts.Mining.PointsInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		points, err := m.opts.Client.Points(ctx)
		if err != nil {
			m.opts.Log.Warn("points poll failed",
				zap.String("email", m.opts.Client.Email()), zap.Error(err))
			continue
		}
		if err := m.opts.Store.RecordPoints(ctx, m.opts.Client.UserID(), m.opts.Client.Email(), points); err != nil {
			m.opts.Log.Warn("points record failed",
				zap.String("email", m.opts.Client.Email()), zap.Error(err))
			continue
		}
		m.opts.Log.Info("points",
			zap.String("email", m.opts.Client.Email()), zap.Float64("points", points))
	}
}

func (m *Miner) currentProxy() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proxy
}

// checkProxyScoreOnce swaps in an extra proxy when the network scores the
// bound one below the configured threshold. The persisted binding stays
// untouched; the replacement only serves this session's reconnects.
func (m *Miner) checkProxyScoreOnce(ctx context.Context) {
	m.mu.Lock()
	if m.scoreChecked || m.opts.MinProxyScore <= 0 {
		m.mu.Unlock()
		return
	}
	m.scoreChecked = true
	m.mu.Unlock()

	go func() {
		// The score shows up a little after the device connects.
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Minute):
		}

		score, err := m.opts.Client.ProxyScore(ctx)
		if err != nil {
			m.opts.Log.Debug("proxy score unavailable",
				zap.String("email", m.opts.Client.Email()), zap.Error(err))
			m.mu.Lock()
			m.scoreChecked = false
			m.mu.Unlock()
			return
		}
		if score >= m.opts.MinProxyScore {
			return
		}

		replacement, ok, err := m.opts.Store.WithdrawExtraProxy(ctx)
		if err != nil || !ok {
			m.opts.Log.Warn("proxy score below threshold, no extra proxy available",
				zap.String("email", m.opts.Client.Email()), zap.Int("score", score))
			return
		}
		m.opts.Log.Warn("proxy score below threshold, switching to extra proxy",
			zap.String("email", m.opts.Client.Email()), zap.Int("score", score),
			zap.String("proxy", tail(replacement)))
		m.mu.Lock()
		m.proxy = replacement
		m.scoreChecked = false
		m.mu.Unlock()
	}()
}

func backoff(failures int) time.Duration {
	d := time.Duration(failures) * 5 * time.Second
	if d > time.Minute {
		d = time.Minute
	}
	return d + time.Duration(rand.Intn(2000))*time.Millisecond
}

func tail(proxy string) string {
	if len(proxy) <= 10 {
		return proxy
	}
	return proxy[len(proxy)-10:]
}
