//go:build linux

package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"gosock/internal/errors"
	"gosock/internal/frame"
	"gosock/internal/metrics"
	"gosock/internal/pool"
	"gosock/internal/retry"
	"gosock/util"
)

const maxEvents = 256

// Server is a single-threaded epoll server.  Listen and Serve must be
// called from the same goroutine; Addr and Clients are safe anywhere.
type Server struct {
	opts    Options
	handler Handler
	log     *util.Logger
	metrics *metrics.Collector

	peers   *pool.Pool[peer]
	byFd    map[int]pool.Handle
	pending []pool.Handle // marked for disconnect, reaped after each batch
	decoder frame.Decoder
	limiter *rate.Limiter
	breaker *retry.CircuitBreaker
	paused  bool

	lfd, epfd, wakefd int
	addr              atomic.Pointer[net.TCPAddr]
	clients           atomic.Int32
}

// New creates a Server.  A nil handler serves DefaultRouter; a nil
// logger is silent except for errors; a nil collector disables metrics.
func New(opts Options, handler Handler, logger *util.Logger, m *metrics.Collector) *Server {
	opts = opts.withDefaults()
	if handler == nil {
		handler = DefaultRouter()
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}
	s := &Server{
		opts:    opts,
		handler: handler,
		log:     logger,
		metrics: m,
		byFd:    make(map[int]pool.Handle),
		decoder: frame.Decoder{MaxSize: opts.MaxMessageSize},
		lfd:     -1,
		epfd:    -1,
		wakefd:  -1,
	}
	if opts.AcceptRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.AcceptRate), opts.AcceptBurst)
	}
	s.breaker = retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
		MaxFailures: opts.MaxAcceptFailures,
		CoolDown:    opts.AcceptCoolDown,
		OnStateChange: func(from, to retry.State) {
			logger.Verbose("accept breaker %s -> %s", from, to)
		},
	})
	return s
}

// Addr returns the bound listen address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if a := s.addr.Load(); a != nil {
		return a
	}
	return nil
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int { return int(s.clients.Load()) }

// Run is Listen followed by Serve.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// ── Listener ─────────────────────────────────────────────────────────

// Listen binds the listening socket and sets up epoll.
func (s *Server) Listen() (err error) {
	ap, err := util.ParseBindAddr(s.opts.Host, s.opts.Port)
	if err != nil {
		return err
	}
	addr := ap.String()
	defer func() {
		if err != nil {
			s.closeFds()
			err = errors.Wrap("listen", addr, err)
		}
	}()

	domain, sa := toSockaddr(ap)
	if s.lfd, err = unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP); err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err = unix.SetsockoptInt(s.lfd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	if s.opts.ReusePort {
		if err = unix.SetsockoptInt(s.lfd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			return fmt.Errorf("SO_REUSEPORT: %w", err)
		}
	}
	if err = unix.Bind(s.lfd, sa); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	if err = unix.Listen(s.lfd, s.opts.Backlog); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if s.epfd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	if s.wakefd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		return fmt.Errorf("eventfd: %w", err)
	}
	if err = s.watch(s.lfd, unix.EPOLLIN); err != nil {
		return err
	}
	if err = s.watch(s.wakefd, unix.EPOLLIN); err != nil {
		return err
	}

	bound, err := unix.Getsockname(s.lfd)
	if err != nil {
		return fmt.Errorf("getsockname: %w", err)
	}
	s.addr.Store(net.TCPAddrFromAddrPort(fromSockaddr(bound)))
	s.peers = pool.New[peer](s.opts.MaxClients)
	return nil
}

func (s *Server) watch(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd=%d: %w", fd, err)
	}
	return nil
}

func (s *Server) unwatch(fd int) {
	unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil) //nolint:errcheck
}

// ── Event loop ───────────────────────────────────────────────────────

// Serve runs the event loop until ctx is cancelled, then flushes and
// disconnects every client.  Listen must have succeeded.
func (s *Server) Serve(ctx context.Context) error {
	if s.epfd < 0 {
		return errors.New("server: Serve called before Listen")
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			var one [8]byte
			one[0] = 1
			unix.Write(s.wakefd, one[:]) //nolint:errcheck
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
		s.shutdown()
	}()

	s.log.Info("listening on %s (max %d clients)", s.Addr(), s.opts.MaxClients)

	events := make([]unix.EpollEvent, maxEvents)
	timeout := int(s.opts.TickInterval / time.Millisecond)
	if timeout < 1 {
		timeout = 1
	}
	last := time.Now()

	for ctx.Err() == nil {
		n, err := unix.EpollWait(s.epfd, events, timeout)
		if err != nil && err != unix.EINTR {
			return fmt.Errorf("epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			switch fd := int(events[i].Fd); fd {
			case s.lfd:
				s.acceptAll()
			case s.wakefd:
				var buf [8]byte
				unix.Read(s.wakefd, buf[:]) //nolint:errcheck
			default:
				s.onReadable(fd)
			}
		}

		if now := time.Now(); now.Sub(last) >= s.opts.TickInterval {
			s.tick(now.Sub(last))
			last = now
		}
		s.reap()
	}
	return nil
}

// ── Accept ───────────────────────────────────────────────────────────

func (s *Server) acceptAll() {
	for !s.paused {
		nfd, sa, err := unix.Accept4(s.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == unix.EAGAIN:
			return
		case err == unix.EINTR || err == unix.ECONNABORTED:
			continue
		case err != nil:
			s.breaker.Record(err)
			s.metrics.RecordError("accept: " + err.Error())
			s.log.Warn("accept: %v", err)
			if !s.breaker.Allow() {
				s.pauseAccept()
			}
			return
		}
		s.breaker.Record(nil)

		if s.limiter != nil && !s.limiter.Allow() {
			s.reject(nfd, "accept rate exceeded")
			continue
		}
		s.admit(nfd, sa)
	}
}

func (s *Server) pauseAccept() {
	s.unwatch(s.lfd)
	s.paused = true
	s.metrics.AcceptPaused()
	s.log.Warn("accepting paused for %v after repeated failures", s.breaker.Remaining())
}

func (s *Server) resumeAccept() {
	if err := s.watch(s.lfd, unix.EPOLLIN); err != nil {
		s.log.Error("resume accept: %v", err)
		return
	}
	s.paused = false
	s.log.Verbose("accepting resumed")
}

func (s *Server) reject(fd int, why string) {
	unix.Close(fd) //nolint:errcheck
	s.metrics.ConnectionRejected()
	s.log.Verbose("rejected fd=%d: %s", fd, why)
}

func (s *Server) admit(fd int, sa unix.Sockaddr) {
	h, p, err := s.peers.Acquire(func(p *peer) {
		p.sock.Reset(fd, s.opts.WriteTimeout)
		p.sock.metrics = s.metrics
		p.conn.Reset(&p.sock, s.opts.connOptions())
		p.srv = s
		p.remote = fromSockaddr(sa).String()
		p.drop = dropNone
		p.dropErr = nil
	})
	if err != nil {
		s.reject(fd, fmt.Sprintf("%v (%d clients)", err, s.peers.Len()))
		return
	}
	p.handle = h

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		s.log.Debug("TCP_NODELAY fd=%d: %v", fd, err)
	}
	if err := s.watch(fd, unix.EPOLLIN|unix.EPOLLRDHUP); err != nil {
		s.log.Warn("%v", err)
		p.conn.Close() //nolint:errcheck
		s.peers.Release(h, nil)
		s.metrics.ConnectionRejected()
		return
	}
	s.byFd[fd] = h
	s.clients.Add(1)
	s.metrics.ConnectionOpened()
	s.log.Verbose("client fd=%d connected from %s (%d/%d)", fd, p.remote, s.peers.Len(), s.peers.Cap())
}

// ── Receive and dispatch ─────────────────────────────────────────────

func (s *Server) onReadable(fd int) {
	h, ok := s.byFd[fd]
	if !ok {
		return
	}
	p, ok := s.peers.Get(h)
	if !ok || p.drop != dropNone {
		return
	}

	n, err := p.conn.Receive()
	if n > 0 {
		s.metrics.BytesReceived(int64(n))
		p.conn.ResetHeartbeat()
		_, derr := s.decoder.Drain(&p.conn, func(m frame.Message) error {
			s.metrics.MessageReceived()
			return s.handler.Handle(p, m)
		})
		switch {
		case derr == nil:
		case errors.Is(derr, frame.ErrMalformed):
			s.markDrop(p, dropProtocol, derr)
		default:
			s.markDrop(p, dropHandler, derr)
		}
	}

	switch {
	case err == nil, errors.Is(err, errors.ErrWouldBlock):
	case err == io.EOF:
		s.markDrop(p, dropEOF, nil)
	case errors.Is(err, errors.ErrRecvBufferFull):
		s.markDrop(p, dropProtocol, err)
	default:
		s.markDrop(p, dropRead, err)
	}
}

func (s *Server) broadcast(cmd frame.Cmd, payload []byte) int {
	delivered := 0
	s.peers.Each(func(_ pool.Handle, p *peer) bool {
		if p.drop == dropNone && p.Send(cmd, payload) == nil {
			delivered++
		}
		return true
	})
	return delivered
}

// ── Timers ───────────────────────────────────────────────────────────

// tick feeds dt to every connection's accumulators, drops the ones
// that went quiet and flushes the ones whose buffered data is stale.
func (s *Server) tick(dt time.Duration) {
	s.peers.Each(func(_ pool.Handle, p *peer) bool {
		if p.drop != dropNone {
			return true
		}
		if !p.conn.IsAlive(dt) {
			s.markDrop(p, dropDead, nil)
			return true
		}
		if p.conn.FlushDue(dt) {
			if p.conn.Buffered() > 0 {
				s.metrics.TimedFlush()
			}
			if err := p.conn.Flush(); err != nil {
				s.markDrop(p, dropWrite, err)
				return true
			}
			p.conn.ResetSendAge()
		}
		return true
	})

	if s.paused && s.breaker.Allow() {
		s.resumeAccept()
	}
}

// ── Disconnect ───────────────────────────────────────────────────────

// markDrop schedules p for disconnection at the end of the current
// batch.  Later events for the same descriptor in the batch are
// ignored, and the descriptor number cannot be reused before reap.
func (s *Server) markDrop(p *peer, reason dropReason, err error) {
	if p.drop != dropNone {
		return
	}
	p.drop = reason
	p.dropErr = err
	s.pending = append(s.pending, p.handle)
}

func (s *Server) reap() {
	for _, h := range s.pending {
		if p, ok := s.peers.Get(h); ok {
			s.disconnect(p)
		}
	}
	s.pending = s.pending[:0]
}

func (s *Server) disconnect(p *peer) {
	fd := p.conn.Handle()
	if p.drop.graceful() {
		if err := p.conn.Flush(); err != nil {
			s.log.Debug("final flush fd=%d: %v", fd, err)
		}
	}
	s.unwatch(fd)
	delete(s.byFd, fd)
	if err := p.conn.Close(); err != nil {
		s.log.Debug("close fd=%d: %v", fd, err)
	}

	switch p.drop {
	case dropDead:
		s.metrics.ConnectionDead()
		s.log.Verbose("client fd=%d (%s) dropped: %s after %v", fd, p.remote, p.drop, p.conn.HeartbeatAge())
	case dropRead, dropWrite, dropProtocol:
		s.metrics.RecordError(p.dropErr.Error())
		s.log.Warn("client fd=%d (%s) dropped: %s: %v", fd, p.remote, p.drop, p.dropErr)
	default:
		if p.dropErr != nil {
			s.log.Verbose("client fd=%d (%s) dropped: %s: %v", fd, p.remote, p.drop, p.dropErr)
		} else {
			s.log.Verbose("client fd=%d (%s) disconnected: %s", fd, p.remote, p.drop)
		}
	}

	s.peers.Release(p.handle, func(p *peer) {
		p.remote = ""
		p.dropErr = nil
	})
	s.clients.Add(-1)
	s.metrics.ConnectionClosed()
}

func (s *Server) shutdown() {
	if s.peers != nil {
		s.peers.Each(func(_ pool.Handle, p *peer) bool {
			s.markDrop(p, dropShutdown, nil)
			return true
		})
		s.reap()
	}
	s.closeFds()
	s.log.Verbose("server stopped: %s", s.metrics.JSON())
}

func (s *Server) closeFds() {
	for _, fd := range []*int{&s.lfd, &s.wakefd, &s.epfd} {
		if *fd >= 0 {
			unix.Close(*fd) //nolint:errcheck
			*fd = -1
		}
	}
}

// ── Address conversion ───────────────────────────────────────────────

func toSockaddr(ap netip.AddrPort) (int, unix.Sockaddr) {
	if ap.Addr().Is4() {
		return unix.AF_INET, &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ap.Addr().As4()}
	}
	return unix.AF_INET6, &unix.SockaddrInet6{Port: int(ap.Port()), Addr: ap.Addr().As16()}
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr).Unmap(), uint16(a.Port))
	}
	return netip.AddrPort{}
}
