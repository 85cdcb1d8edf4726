// Package diskstore implements the line-delimited JSON overflow log and
// its rename-based recovery handoff.
package diskstore

import (
	"bufio"
	"bytes"
	"errors"
	"os"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/beaconhq/beacon-go/internal/buffer"
)

// ErrStorageFull is returned by Persist when appending the batch would
// exceed the configured byte budget. The caller drops the batch.
var ErrStorageFull = errors.New("diskstore: storage budget exceeded")

// Store is the append-only overflow file plus its .recovering sibling.
type Store struct {
	path           string
	recoveringPath string
	maxBytes       int64
	logger         *zerolog.Logger
}

// New builds a Store rooted at path with the given byte budget.
func New(path string, maxBytes int64, logger *zerolog.Logger) *Store {
	return &Store{
		path:           path,
		recoveringPath: path + ".recovering",
		maxBytes:       maxBytes,
		logger:         logger,
	}
}

// Path returns the configured live overflow path.
func (s *Store) Path() string { return s.path }

// Size returns the current size in bytes of the live overflow file, or 0
// if it does not exist.
func (s *Store) Size() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Persist appends batch, serialized as a single JSON array line, to the
// live overflow file. It refuses the write (without rotation) if doing so
// would exceed maxBytes.
func (s *Store) Persist(batch []buffer.Event) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size()+int64(len(data)) > s.maxBytes {
		s.debugf("dropping batch of %d events: storage budget exceeded (%d+%d > %d)",
			len(batch), info.Size(), len(data), s.maxBytes)
		return ErrStorageFull
	}

	_, err = f.Write(data)
	return err
}

// Recover probes <path>.recovering then <path>, in that order, and reads
// up to space events from whichever is found first. When the live path is
// the one read, it is atomically renamed to the .recovering sibling on
// success (or unlinked on a failed rename) so a crash between rename and
// the next successful flush re-loads the same events. pending reports
// whether a .recovering file now exists that DiscardRecovering should
// clear after the next successful flush.
func (s *Store) Recover(space int) (events []buffer.Event, pending bool, err error) {
	if exists(s.recoveringPath) {
		events = s.readLines(s.recoveringPath, space)
		return events, true, nil
	}

	if !exists(s.path) {
		return nil, false, nil
	}

	events = s.readLines(s.path, space)

	if err := os.Rename(s.path, s.recoveringPath); err != nil {
		s.debugf("rename to recovering file failed, unlinking live file: %v", err)
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return events, false, rmErr
		}
		return events, false, nil
	}

	return events, true, nil
}

// DiscardRecovering unlinks the .recovering file. Called after a flush
// that successfully delivered events loaded from it.
func (s *Store) DiscardRecovering() error {
	if err := os.Remove(s.recoveringPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) readLines(path string, space int) []buffer.Event {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var events []buffer.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() && len(events) < space {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var arr []buffer.Event
		if err := json.Unmarshal(line, &arr); err == nil {
			for _, e := range arr {
				if len(events) >= space {
					break
				}
				events = append(events, e)
			}
			continue
		}

		var obj buffer.Event
		if err := json.Unmarshal(line, &obj); err == nil {
			events = append(events, obj)
			continue
		}
		// malformed line: skipped.
	}

	return events
}

func (s *Store) debugf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Debug().Msgf(format, args...)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
