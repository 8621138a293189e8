package analytics

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Store owns the analytics database. All writes flow through Submit onto an
// unbounded queue drained by a single worker goroutine; write failures are
// logged, never returned to the submitter. Reads use a separate connection
// so the HTTP layer never queues behind writes.
type Store struct {
	write *sql.DB
	read  *sql.DB
	log   zerolog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []WorkUnit
	closed bool
	done   chan struct{}
}

// Open opens (creating and migrating if needed) the database at path and
// starts the write worker.
func Open(path string, log zerolog.Logger) (*Store, error) {
	write, err := openDB(path, 1)
	if err != nil {
		return nil, err
	}
	if err := migrateDB(write); err != nil {
		write.Close()
		return nil, err
	}
	read, err := openDB(path, 4)
	if err != nil {
		write.Close()
		return nil, err
	}

	s := &Store{
		write: write,
		read:  read,
		log:   log.With().Str("component", "analytics").Logger(),
		done:  make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s, nil
}

// Submit queues a work unit. Never blocks; units submitted after Close are
// dropped.
func (s *Store) Submit(u WorkUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Warn().Msg("work unit dropped after close")
		return
	}
	s.queue = append(s.queue, u)
	s.cond.Signal()
}

// Close drains the queue, stops the worker, and closes both connections.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()

	<-s.done
	rerr := s.read.Close()
	werr := s.write.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

func (s *Store) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		batch := s.queue
		s.queue = nil
		stop := s.closed
		s.mu.Unlock()

		for _, u := range batch {
			if err := s.exec(u); err != nil {
				s.log.Error().Err(err).Type("unit", u).Msg("analytics write failed")
			}
		}
		if stop {
			return
		}
	}
}

func (s *Store) exec(u WorkUnit) error {
	tx, err := s.write.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := u.Execute(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Flush blocks until every unit submitted before the call has executed.
// Exposed for the control plane's synchronous paths and for tests.
func (s *Store) Flush() {
	fence := make(chan struct{})
	s.Submit(fenceUnit{ch: fence})
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	<-fence
}

type fenceUnit struct{ ch chan struct{} }

func (u fenceUnit) Execute(*sql.Tx) error {
	close(u.ch)
	return nil
}

// Checkpoint flushes pending writes and merges the WAL back into the main
// database file. Called from the periodic maintenance job.
func (s *Store) Checkpoint() error {
	s.Flush()
	if _, err := s.write.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}
