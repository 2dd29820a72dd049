// Package server streams the height field to browsers over websockets and
// feeds their pointer motion back into the simulation.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Distortions81/ripple-field/internal/pointer"
	"github.com/Distortions81/ripple-field/internal/ripple"
	"github.com/Distortions81/ripple-field/internal/scene"
	"github.com/Distortions81/ripple-field/internal/scheduler"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxMessageSize = 4096
	inboundBuffer  = 256
	shutdownGrace  = 5 * time.Second
)

// Message types exchanged as JSON text frames.
const (
	TypeHello   = "hello"
	TypePointer = "pointer"
	TypeReset   = "reset"
)

// Message is the JSON envelope for control traffic.
type Message struct {
	Type string `json:"type"`

	// hello
	ID         string `json:"id,omitempty"`
	GridWidth  int    `json:"grid_width,omitempty"`
	GridHeight int    `json:"grid_height,omitempty"`
	FrameRate  int    `json:"frame_rate,omitempty"`

	// pointer: device pixels inside the client's viewport.
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	ViewportW int     `json:"viewport_w,omitempty"`
	ViewportH int     `json:"viewport_h,omitempty"`
}

// Options configure a Server.
type Options struct {
	FrameRate     int
	StepsPerFrame int
	Downsample    int
	SendBuffer    int
	WriteTimeout  time.Duration
	Camera        scene.Camera
	Surface       scene.Surface
	Pointer       pointer.Options
	Logger        *zap.Logger
}

type outbound struct {
	kind int
	data []byte
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan outbound
}

type inbound struct {
	msg Message
	at  time.Time
}

// Server owns a scheduler and fans its frames out to websocket clients.
type Server struct {
	opts     Options
	sched    *scheduler.Scheduler
	mapper   *pointer.Mapper
	logger   *zap.Logger
	upgrader websocket.Upgrader

	inbound chan inbound

	mu      sync.Mutex
	clients map[uuid.UUID]*client
	closed  bool
	wg      sync.WaitGroup

	frames atomic.Uint64
	frame  []byte
}

// New wraps sim. The server drives it through its own scheduler.
func New(sim *ripple.Simulation, opts Options) *Server {
	if opts.FrameRate <= 0 {
		opts.FrameRate = 30
	}
	if opts.Downsample <= 0 {
		opts.Downsample = 1
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 4
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		opts:    opts,
		mapper:  pointer.NewMapper(sim.Queue(), opts.Pointer),
		logger:  opts.Logger.Named("server"),
		inbound: make(chan inbound, inboundBuffer),
		clients: make(map[uuid.UUID]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.sched = scheduler.New(sim,
		scheduler.WithIngester(scheduler.IngestFunc(s.ingest)),
		scheduler.WithRenderer(scheduler.RenderFunc(s.broadcast)),
		scheduler.WithStepsPerFrame(opts.StepsPerFrame),
		scheduler.WithLogger(s.logger),
	)
	return s
}

// Handler serves /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"clients": s.ClientCount(),
			"frames":  s.frames.Load(),
		})
	})
	return mux
}

// Scheduler exposes the frame scheduler.
func (s *Server) Scheduler() *scheduler.Scheduler { return s.sched }

// Loop runs frames from ticks until ctx is done.
func (s *Server) Loop(ctx context.Context, ticks <-chan time.Time) error {
	return s.sched.Run(ctx, ticks)
}

// ListenAndServe serves on addr and runs the simulation at the configured
// frame rate until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Second / time.Duration(s.opts.FrameRate))
		defer ticker.Stop()
		err := s.Loop(ctx, ticker.C)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.Close()
		return err
	})
	return g.Wait()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{id: uuid.New(), conn: conn, send: make(chan outbound, s.opts.SendBuffer)}

	hello, err := json.Marshal(Message{
		Type:       TypeHello,
		ID:         c.id.String(),
		GridWidth:  s.sched.Simulation().Params().Width,
		GridHeight: s.sched.Simulation().Params().Height,
		FrameRate:  s.opts.FrameRate,
	})
	if err != nil {
		conn.Close()
		return
	}
	c.send <- outbound{kind: websocket.TextMessage, data: hello}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c.id] = c
	s.wg.Add(2)
	s.mu.Unlock()
	s.logger.Info("client connected", zap.Stringer("client_id", c.id))

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) readPump(c *client) {
	defer s.wg.Done()
	defer s.unregister(c)
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("client read failed", zap.Stringer("client_id", c.id), zap.Error(err))
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("bad client message", zap.Stringer("client_id", c.id), zap.Error(err))
			continue
		}
		select {
		case s.inbound <- inbound{msg: msg, at: time.Now()}:
		default:
		}
	}
}

func (s *Server) writePump(c *client) {
	defer s.wg.Done()
	defer c.conn.Close()
	for out := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		if err := c.conn.WriteMessage(out.kind, out.data); err != nil {
			s.logger.Debug("client write failed", zap.Stringer("client_id", c.id), zap.Error(err))
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.opts.WriteTimeout))
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.send)
	}
	s.mu.Unlock()
	c.conn.Close()
	s.logger.Info("client disconnected", zap.Stringer("client_id", c.id))
}

// ingest runs in the scheduler's ingest phase, so the mapper has a single
// producer no matter how many clients are connected.
func (s *Server) ingest(time.Time) {
	for {
		select {
		case in := <-s.inbound:
			s.apply(in)
		default:
			return
		}
	}
}

func (s *Server) apply(in inbound) {
	switch in.msg.Type {
	case TypePointer:
		s.mapper.HandleMove(pointer.Event{
			X:         in.msg.X,
			Y:         in.msg.Y,
			ViewportW: in.msg.ViewportW,
			ViewportH: in.msg.ViewportH,
			At:        in.at,
			Camera:    s.opts.Camera,
			Surface:   s.opts.Surface,
		})
	case TypeReset:
		s.sched.Reset()
		s.mapper.Reset()
	}
}

func (s *Server) broadcast(v ripple.View) error {
	s.frames.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return nil
	}
	s.frame = encodeFrame(s.frame, v, s.opts.Downsample, s.sched.Simulation().Field().Steps())
	for _, c := range s.clients {
		// Each client gets its own copy; slow clients skip frames.
		select {
		case c.send <- outbound{kind: websocket.BinaryMessage, data: append([]byte(nil), s.frame...)}:
		default:
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Counts returns the pointer outcome tallies. Only safe from the frame
// goroutine or after the loop has stopped.
func (s *Server) Counts() pointer.Counts { return s.mapper.Counts() }

// Close disconnects every client and waits for their goroutines. The
// scheduler is left to its owner.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	for id, c := range s.clients {
		delete(s.clients, id)
		close(c.send)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
