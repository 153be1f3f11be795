// Package printer emits serialized artifacts to the downstream pipes and
// gates the durable cursor behind their acknowledgement.
//
// Each enabled pipe is served by one long-lived writer goroutine fed from a
// bounded channel, so lines of distinct slots leave a pipe in emission
// order and backpressure is explicit. The two pipes write concurrently and
// may finish a given slot in either order; downstream joins on slot.
//
// A failed pipe write poisons the printer: the first error is retained,
// every later Print returns it, and the cursor is never advanced for the
// failed emission. Callers treat a poisoned printer as fatal and rely on
// the cursor for restart.
package printer

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/streamingfast/firehose-geyser-plugin/internal/codec"
)

// queueDepth bounds buffered emissions per pipe. The host produces at block
// cadence, so the queue is normally empty; the bound only matters when a
// pipe consumer stalls.
const queueDepth = 64

// Config selects the printer's outputs. An empty pipe path disables that
// pipe; its emissions degenerate to a bare cursor vote. Noop suppresses all
// writes but preserves flow, for testing.
type Config struct {
	BlockPath        string
	AccountBlockPath string
	CursorPath       string
	Noop             bool
}

type job struct {
	slot uint64
	line []byte
	// vote is false for framing lines that must not advance the cursor.
	vote bool
}

type pipe struct {
	name string
	out  io.WriteCloser
	jobs chan job
}

// Printer frames artifacts onto the configured pipes.
type Printer struct {
	log    *logrus.Entry
	noop   bool
	cursor *cursorWriter

	block        *pipe
	accountBlock *pipe

	group *errgroup.Group

	mu       sync.Mutex
	err      error
	poisoned chan struct{}
}

// New opens the configured pipes and starts their writers.
func New(cfg Config, log *logrus.Entry) (*Printer, error) {
	var blockOut, accountOut io.WriteCloser

	if !cfg.Noop && cfg.BlockPath != "" {
		f, err := os.OpenFile(cfg.BlockPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open block pipe: %w", err)
		}

		blockOut = f
	}

	if !cfg.Noop && cfg.AccountBlockPath != "" {
		f, err := os.OpenFile(cfg.AccountBlockPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			if blockOut != nil {
				_ = blockOut.Close()
			}

			return nil, fmt.Errorf("open account block pipe: %w", err)
		}

		accountOut = f
	}

	return newPrinter(cfg, blockOut, accountOut, log), nil
}

// newPrinter wires the writer goroutines around the given outputs. Split
// from New so tests can inject failing outputs.
func newPrinter(cfg Config, blockOut, accountOut io.WriteCloser, log *logrus.Entry) *Printer {
	p := &Printer{
		log:      log,
		noop:     cfg.Noop,
		cursor:   newCursorWriter(cfg.CursorPath),
		group:    &errgroup.Group{},
		poisoned: make(chan struct{}),
	}

	if blockOut != nil {
		p.block = &pipe{name: "block", out: blockOut, jobs: make(chan job, queueDepth)}
		p.group.Go(func() error { return p.run(p.block) })
	}

	if accountOut != nil {
		p.accountBlock = &pipe{name: "accountblock", out: accountOut, jobs: make(chan job, queueDepth)}
		p.group.Go(func() error { return p.run(p.accountBlock) })
	}

	return p
}

// run drains one pipe's queue. The cursor voter fires only after the line
// has been fully written; that ordering is the durability contract.
func (p *Printer) run(pw *pipe) error {
	for j := range pw.jobs {
		if _, err := pw.out.Write(j.line); err != nil {
			err = fmt.Errorf("%s pipe write: %w", pw.name, err)
			p.poison(err)

			return err
		}

		if !j.vote {
			continue
		}

		if err := p.cursor.Advance(j.slot); err != nil {
			p.poison(err)

			return err
		}
	}

	return nil
}

func (p *Printer) poison(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err == nil {
		p.err = err
		close(p.poisoned)
		p.log.WithError(err).Error("pipe writer failed, printer poisoned")
	}
}

// Err returns the first write failure, if any.
func (p *Printer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

func (p *Printer) enqueue(pw *pipe, j job) error {
	// Fast path while the queue has room, so a concurrent poisoning never
	// races an otherwise-deliverable job.
	select {
	case pw.jobs <- j:
		return nil
	default:
	}

	select {
	case pw.jobs <- j:
		return nil
	case <-p.poisoned:
		return p.Err()
	}
}

// PrintInit writes the framing line of each enabled pipe. blockType and
// accountBlockType are the fully qualified artifact types the pipes carry.
func (p *Printer) PrintInit(blockType, accountBlockType string) error {
	if p.noop {
		p.log.WithField("block_type", blockType).Debug("init (noop mode)")
		return nil
	}

	if p.block != nil {
		line := []byte(fmt.Sprintf("FIRE INIT 3.0 %s\n", blockType))
		if err := p.enqueue(p.block, job{line: line}); err != nil {
			return err
		}
	}

	if p.accountBlock != nil {
		line := []byte(fmt.Sprintf("FIRE INIT 3.0 %s\n", accountBlockType))
		if err := p.enqueue(p.accountBlock, job{line: line}); err != nil {
			return err
		}
	}

	return nil
}

// Print emits one slot's artifacts. Each enabled pipe receives one line;
// a disabled pipe contributes its cursor vote immediately so the two-voter
// protocol degenerates correctly. Returns the poisoning error once any
// earlier write has failed.
func (p *Printer) Print(info *codec.BlockInfo, lib uint64, block *codec.Block, accountBlock *codec.AccountBlock) error {
	if err := p.Err(); err != nil {
		return err
	}

	if p.noop {
		p.log.WithField("slot", info.Slot).Debug("print block (noop mode)")

		if err := p.cursor.Advance(info.Slot); err != nil {
			return err
		}

		return p.cursor.Advance(info.Slot)
	}

	if p.block == nil {
		if err := p.cursor.Advance(info.Slot); err != nil {
			return err
		}
	} else {
		line := formatBlockLine(info, lib, block.Marshal())
		if err := p.enqueue(p.block, job{slot: info.Slot, line: line, vote: true}); err != nil {
			return err
		}
	}

	if p.accountBlock == nil {
		if err := p.cursor.Advance(info.Slot); err != nil {
			return err
		}
	} else {
		line := formatBlockLine(info, lib, accountBlock.Marshal())
		if err := p.enqueue(p.accountBlock, job{slot: info.Slot, line: line, vote: true}); err != nil {
			return err
		}
	}

	return nil
}

// formatBlockLine frames one artifact. The timestamp rides in nanoseconds.
func formatBlockLine(info *codec.BlockInfo, lib uint64, payload []byte) []byte {
	return []byte(fmt.Sprintf("FIRE BLOCK %d %s %d %s %d %d %s\n",
		info.Slot,
		info.Hash,
		info.ParentSlot,
		info.ParentHash,
		lib,
		info.Timestamp*1_000_000_000,
		base64.StdEncoding.EncodeToString(payload),
	))
}

// Close drains both queues, stops the writers and closes the pipes. The
// first write failure, if any, is returned.
func (p *Printer) Close() error {
	if p.block != nil {
		close(p.block.jobs)
	}

	if p.accountBlock != nil {
		close(p.accountBlock.jobs)
	}

	err := p.group.Wait()

	if p.block != nil {
		_ = p.block.out.Close()
	}

	if p.accountBlock != nil {
		_ = p.accountBlock.out.Close()
	}

	return err
}
