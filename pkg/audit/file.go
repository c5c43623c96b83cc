package audit

import (
	"math"
	"os"
	"sync"

	"emperror.dev/errors"
	"github.com/c2h5oh/datasize"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultMaxSize    = 10 * datasize.MB
	DefaultMaxBackups = 1
	defaultQueueSize  = 256
)

// FileSink appends events as JSON lines to a file from a background goroutine. Events are
// dropped when the queue is full. The file is rotated by lumberjack once it grows past
// maxSize, rounded up to whole megabytes; rotated files are named "<name>-<timestamp><ext>".
type FileSink struct {
	path   string
	logger *lumberjack.Logger

	queue chan Event
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewFileSink checks that path is writable and starts the writer goroutine.
func NewFileSink(path string, maxSize datasize.ByteSize) (*FileSink, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening audit log %s", path)
	}
	_ = f.Close()

	s := &FileSink{
		path: path,
		logger: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    megabytes(maxSize),
			MaxBackups: DefaultMaxBackups,
		},
		queue: make(chan Event, defaultQueueSize),
		done:  make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func megabytes(size datasize.ByteSize) int {
	mb := int(math.Ceil(size.MBytes()))
	if mb < 1 {
		return 1
	}
	return mb
}

func (s *FileSink) Append(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- e:
	default:
		s.dropped++
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (s *FileSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close flushes pending events and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

func (s *FileSink) run() {
	defer close(s.done)

	failing := false
	for e := range s.queue {
		b, err := json.Marshal(e)
		if err != nil {
			log.Debugf("audit: encoding event: %v", err)
			continue
		}
		b = append(b, '\n')

		if _, err := s.logger.Write(b); err == nil {
			failing = false
			continue
		} else if !failing {
			log.Warnf("audit: writing %s: %v", s.path, err)
			failing = true
		}

		// rotation failed or the event exceeds the size limit: keep it in the active file
		if err := s.appendDirect(b); err != nil {
			log.Errorf("audit: writing event: %v", err)
		}
	}

	if err := s.logger.Close(); err != nil {
		log.Debugf("audit: closing %s: %v", s.path, err)
	}
}

func (s *FileSink) appendDirect(b []byte) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, err = f.Write(b)
	return errors.Combine(err, f.Close())
}
