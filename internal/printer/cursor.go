package printer

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
)

// cursorWriter persists the last fully-emitted slot using a two-voter
// protocol: both emit paths call Advance after their own successful write,
// and the file is written only when the second voter acknowledges the slot
// the first one saw. A voter running behind is ignored; the cursor then
// simply updates less often. The written value never decreases.
type cursorWriter struct {
	mu       sync.Mutex
	path     string
	lastSeen uint64
}

func newCursorWriter(path string) *cursorWriter {
	return &cursorWriter{path: path}
}

// Advance records one voter's acknowledgement of slot. When both voters
// agree the slot is written to the cursor file as ASCII decimal, atomically.
func (c *cursorWriter) Advance(slot uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case slot > c.lastSeen:
		c.lastSeen = slot
		return nil
	case slot == c.lastSeen:
		if c.path == "" {
			return nil
		}

		err := atomic.WriteFile(c.path, strings.NewReader(strconv.FormatUint(slot, 10)))
		if err != nil {
			return fmt.Errorf("write cursor file: %w", err)
		}

		return nil
	default:
		// A late voter from an earlier round. Harmless.
		return nil
	}
}

// ReadCursor loads the restart cursor from path. The second return is false
// when no cursor file exists (cold start).
func ReadCursor(path string) (uint64, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("read cursor file: %w", err)
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return 0, false, nil
	}

	slot, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cursor file %q: %w", text, err)
	}

	return slot, true, nil
}
