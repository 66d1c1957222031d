package proc

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"strconv"
	"sync"
)

var (
	phaseRx = regexp.MustCompile(`Starting phase (\d)/4`)
	finalRx = regexp.MustCompile(`(Renamed|Copied) final file`)
)

const maxChunk = 1 << 20

// PhaseReader estimates progress of a plot run from its log file. It only
// knows the four phases the plotter announces, so the estimate moves in
// steps of 25 percent. Every call reads just the bytes appended since the
// previous one.
type PhaseReader struct {
	mx      sync.Mutex
	path    string
	offset  int64
	percent float64
}

func NewPhaseReader(path string) *PhaseReader {
	return &PhaseReader{path: path, percent: -1}
}

// Progress returns the latest estimate, -1 before the first phase marker.
func (r *PhaseReader) Progress() float64 {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.advance()
	return r.percent
}

func (r *PhaseReader) advance() {
	f, err := os.Open(r.path)
	if err != nil {
		return
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
		return
	}

	for {
		buf, err := io.ReadAll(io.LimitReader(f, maxChunk))
		if err != nil || len(buf) == 0 {
			return
		}
		// keep a partial last line for the next call, unless a single line
		// is longer than a chunk
		end := bytes.LastIndexByte(buf, '\n')
		if end < 0 {
			if len(buf) < maxChunk {
				return
			}
			end = len(buf) - 1
		}
		r.scan(buf[:end+1])
		r.offset += int64(end + 1)
		if len(buf) < maxChunk {
			return
		}
		if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
			return
		}
	}
}

func (r *PhaseReader) scan(chunk []byte) {
	for line := range bytes.Lines(chunk) {
		if finalRx.Match(line) {
			r.percent = 100
			continue
		}
		m := phaseRx.FindSubmatch(line)
		if m == nil {
			continue
		}
		phase, err := strconv.Atoi(string(m[1]))
		if err != nil || phase < 1 || phase > 4 {
			continue
		}
		r.percent = float64(phase-1) * 25
	}
}
