package audit

import (
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/nxadm/tail"
)

// Follower tails an audit log written by FileSink.
type Follower struct {
	tail   *tail.Tail
	Events chan *Record
}

// Record is one decoded line, or the error encountered reading it.
type Record struct {
	Event
	Err error `json:"-"`
}

// Follow starts tailing path. When fromStart is false only new events are delivered.
func Follow(path string, fromStart bool) (*Follower, error) {
	cfg := tail.Config{
		ReOpen: true,
		Follow: true,
		Logger: tail.DiscardingLogger,
	}
	if !fromStart {
		cfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	t, err := tail.TailFile(path, cfg)
	if err != nil {
		return nil, err
	}

	return &Follower{
		tail:   t,
		Events: make(chan *Record),
	}, nil
}

func (f *Follower) Stop() error {
	return f.tail.Stop()
}

// Start forwards decoded lines to Events until the tail stops.
func (f *Follower) Start() {
	defer close(f.Events)
	for line := range f.tail.Lines {
		if line.Err != nil {
			f.Events <- &Record{Err: line.Err}
			continue
		}

		if strings.TrimSpace(line.Text) == "" {
			continue
		}
		rec := Record{}
		if err := json.Unmarshal([]byte(line.Text), &rec.Event); err != nil {
			f.Events <- &Record{Err: err}
		} else {
			f.Events <- &rec
		}
	}
}
