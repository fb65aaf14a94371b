// Package wscheck probes the event channel: it connects, pings, prints every
// message received while holding the connection open, then closes cleanly.
package wscheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/ilyakaznacheev/cleanenv"
)

// ErrConnectTimeout is returned when the handshake does not finish in time.
var ErrConnectTimeout = errors.New("connection timed out")

type Config struct {
	URL              string `env:"WS_URL" env-default:"ws://127.0.0.1:3000/ws"`
	ConnectTimeoutMS int    `env:"WS_CONNECT_TIMEOUT_MS" env-default:"8000"`
	StayOpenMS       int    `env:"WS_STAY_OPEN_MS" env-default:"5000"`
}

// LoadConfig reads the probe settings from the environment.
func LoadConfig() (*Config, error) {
	var c Config
	if err := cleanenv.ReadEnv(&c); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &c, nil
}

type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "[ws-check] "+format+"\n", args...)
}

// Check runs the probe. A nil result means the connection opened.
func Check(ctx context.Context, cfg *Config, out io.Writer) error {
	p := &printer{out: out}
	p.printf("Connecting to %s ...", cfg.URL)

	dialCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeoutMS)*time.Millisecond)
	conn, _, err := websocket.Dial(dialCtx, cfg.URL, nil)
	timedOut := errors.Is(dialCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if timedOut {
			p.printf("Connection timed out after %dms", cfg.ConnectTimeoutMS)
			return fmt.Errorf("%w after %dms", ErrConnectTimeout, cfg.ConnectTimeoutMS)
		}
		p.printf("error: %v", err)
		return fmt.Errorf("connect %s: %w", cfg.URL, err)
	}
	defer conn.CloseNow()
	p.printf("WebSocket open")

	hold := time.Duration(cfg.StayOpenMS) * time.Millisecond
	pingCtx, stopPing := context.WithTimeout(ctx, hold)
	pingDone := make(chan struct{})
	defer func() {
		stopPing()
		<-pingDone
	}()

	go func() {
		defer close(pingDone)
		start := time.Now()
		if err := conn.Ping(pingCtx); err == nil {
			p.printf("--> pong (%s)", time.Since(start).Round(time.Millisecond))
		}
	}()

	// Read must not be bound to the hold: a cancelled read tears the
	// connection down without a close frame.
	closed := make(chan struct{})
	timer := time.AfterFunc(hold, func() {
		defer close(closed)
		p.printf("Closing after brief hold")
		_ = conn.Close(websocket.StatusNormalClosure, "ws-check done")
	})

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if !timer.Stop() {
				<-closed
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			if code := websocket.CloseStatus(err); code != -1 {
				p.printf("close: code=%d", code)
			} else {
				p.printf("error: %v", err)
			}
			return nil
		}
		if typ == websocket.MessageText {
			p.printf("message: %s", data)
		} else {
			p.printf("message (binary, %d bytes)", len(data))
		}
	}
}
