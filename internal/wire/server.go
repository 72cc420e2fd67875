package wire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"pathkvs/store"
)

// Server accepts line-protocol connections and drives a store.Transaction
// per connection, handing each accepted conn off to its own goroutine.
type Server struct {
	db     *store.Database
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer returns a Server driving db. A nil logger discards logs.
func NewServer(db *store.Database, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{db: db, logger: logger}
}

// Serve accepts connections on ln until ctx is cancelled or Close is
// called. It blocks; call it from its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting new connections and waits for every connection
// handler to return; a handler returns once its client closes the
// connection.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	addr := conn.RemoteAddr().String()
	s.logger.Debug("connection opened", "addr", addr)

	tx := s.db.BeginTransaction()
	defer func() { tx.Rollback() }()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	w := bufio.NewWriter(conn)
	defer w.Flush()

	for scanner.Scan() {
		line := scanner.Text()
		cmd, err := Parse(line)
		if err != nil {
			fmt.Fprintf(w, "ERROR %s\n", err)
			w.Flush()
			continue
		}

		done := s.dispatch(w, tx, cmd)
		w.Flush()
		if done {
			tx = s.db.BeginTransaction()
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("connection read error", "addr", addr, "err", err)
	}
	s.logger.Debug("connection closed", "addr", addr)
}

// dispatch executes one parsed command against tx and writes its
// response. It returns true when tx has reached a terminal state
// (committed or rolled back) and the caller should begin a fresh one.
func (s *Server) dispatch(w *bufio.Writer, tx *store.Transaction, cmd Command) bool {
	switch cmd.Kind {
	case KindWrite:
		if err := tx.Write(cmd.Key, cmd.Val); err != nil {
			fmt.Fprintf(w, "ERROR %s\n", err)
			return false
		}
		fmt.Fprintln(w, "OK")
		return false

	case KindDelete:
		if err := tx.Delete(cmd.Key); err != nil {
			fmt.Fprintf(w, "ERROR %s\n", err)
			return false
		}
		fmt.Fprintln(w, "OK")
		return false

	case KindRead:
		val, ok, err := tx.Read(cmd.Key)
		if err != nil {
			fmt.Fprintf(w, "ERROR %s\n", err)
			return false
		}
		if !ok {
			fmt.Fprintln(w, "ABSENT")
			return false
		}
		w.WriteString("VALUE ")
		w.Write(val)
		w.WriteByte('\n')
		return false

	case KindScanKeys, KindScanWithValues:
		rows, err := tx.ScanPrefix(cmd.Begin, cmd.End)
		if err != nil {
			fmt.Fprintf(w, "ERROR %s\n", err)
			return false
		}
		withValues := cmd.Kind == KindScanWithValues
		for _, row := range rows {
			fmt.Fprintln(w, FormatScanRow(row.Key, row.Val, withValues))
		}
		fmt.Fprintln(w, scanTerminator)
		return false

	case KindCommit:
		result, err := tx.Commit()
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				fmt.Fprintln(w, "CONFLICT")
				return true
			}
			fmt.Fprintf(w, "ERROR %s\n", err)
			return true
		}
		fmt.Fprintf(w, "OK %s %d\n", uuid.UUID(result.ID).String(), result.Generation)
		return true

	case KindRollback:
		tx.Rollback()
		fmt.Fprintln(w, "OK")
		return true

	case KindStats:
		stats := s.db.Stats()
		fmt.Fprintf(w, "GENERATION %d ACTIVE %d\n", stats.Generation, stats.ActiveTransactions)
		return false

	default:
		fmt.Fprintln(w, "ERROR unrecognized command")
		return false
	}
}
