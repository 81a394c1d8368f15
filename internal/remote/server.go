// Package remote provides the TCP command server for remote scrolling.
//
// The protocol is one plaintext, newline-terminated command per connection
// ("scroll up" or "scroll down"). Nothing is written back to the client.
package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"eyescroll/internal/protocol"
	"eyescroll/internal/scroll"
)

// DefaultAddr is the address the command server listens on by default
const DefaultAddr = ":8080"

// DefaultMaxLineBytes caps how much of a command line is buffered
const DefaultMaxLineBytes = 4096

// ErrServerRunning is returned by Start when the server is already listening
var ErrServerRunning = errors.New("remote: server already running")

// DispatchFunc receives every parsed command
type DispatchFunc func(d scroll.Direction)

// Options tune a Server. The zero value means no read timeout and
// DefaultMaxLineBytes.
type Options struct {
	// ReadTimeout bounds how long a connection may take to send its line.
	// Zero waits forever.
	ReadTimeout time.Duration

	// MaxLineBytes is the longest accepted command line
	MaxLineBytes int
}

// Server accepts TCP connections and turns each one's line into a dispatch.
// Every connection is handled on its own goroutine; there is no limit on
// how many run at once.
type Server struct {
	addr     string
	dispatch DispatchFunc
	opts     Options

	mu         sync.Mutex
	ln         net.Listener
	acceptDone chan struct{}
	conns      map[net.Conn]struct{}
	handlers   sync.WaitGroup
}

// NewServer creates a stopped server for addr
func NewServer(addr string, dispatch DispatchFunc, opts Options) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = DefaultMaxLineBytes
	}
	return &Server{
		addr:     addr,
		dispatch: dispatch,
		opts:     opts,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Start binds the listening socket and starts the accept loop. A bind
// failure is returned and leaves the server stopped.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return ErrServerRunning
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("remote: listen on %s: %w", s.addr, err)
	}

	s.ln = ln
	s.acceptDone = make(chan struct{})
	go s.acceptLoop(ln, s.acceptDone)

	log.Printf("Remote: Command server listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or nil when stopped
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Running reports whether the server is accepting connections
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ln != nil
}

// Active returns the number of connections currently being handled
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Stop closes the listening socket and waits for the accept loop to exit.
// Connections already accepted keep running to completion. Stopping a
// stopped server does nothing.
func (s *Server) Stop() error {
	s.mu.Lock()
	ln, done := s.ln, s.acceptDone
	s.ln, s.acceptDone = nil, nil
	s.mu.Unlock()

	if ln == nil {
		return nil
	}

	err := ln.Close()
	<-done
	log.Printf("Remote: Command server stopped")
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Shutdown stops the server and waits for in-flight connections. When ctx
// ends first the remaining connections are closed and ctx.Err() returned.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Stop()

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		n := s.closeConns()
		log.Printf("Remote: Abandoned %d in-flight connection(s)", n)
		<-done
		return ctx.Err()
	}
}

func (s *Server) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Accept errors such as EMFILE are transient; keep serving
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > time.Second {
				backoff = time.Second
			}
			log.Printf("Remote: Accept error: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.track(ln, conn) {
			conn.Close()
			return
		}
		go s.handle(conn)
	}
}

// track registers conn as in flight unless ln has been stopped meanwhile
func (s *Server) track(ln net.Listener, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != ln {
		return false
	}
	s.conns[conn] = struct{}{}
	s.handlers.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) closeConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
	return len(s.conns)
}

func (s *Server) handle(conn net.Conn) {
	defer s.handlers.Done()
	defer s.untrack(conn)

	id := uuid.NewString()[:8]
	remote := conn.RemoteAddr()

	if s.opts.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}

	line, err := readLine(conn, s.opts.MaxLineBytes)
	if err != nil {
		if errors.Is(err, io.EOF) {
			log.Printf("Remote: [%s] %s closed without a command", id, remote)
		} else {
			log.Printf("Remote: [%s] Read error from %s: %v", id, remote, err)
		}
		return
	}

	d, err := protocol.ParseCommand(line)
	if err != nil {
		log.Printf("Remote: [%s] Unknown command from %s: %q", id, remote, line)
		return
	}

	log.Printf("Remote: [%s] %s -> scroll %s", id, remote, d)
	if s.dispatch != nil {
		s.dispatch(d)
	}
}

// readLine returns the first line of r. A final line without a terminator
// counts; an empty stream returns io.EOF.
func readLine(r io.Reader, max int) (string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(256, max)), max)
	if sc.Scan() {
		return sc.Text(), nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
