// Package geyserplugin converts a validator's real-time notifications of
// account writes, transactions and block metadata into a totally-ordered
// stream of serialized Block and AccountBlock artifacts, emitted to
// downstream consumers through line-framed pipes.
//
// [Plugin] implements [geyser.Plugin]. It normalizes the host's versioned
// payloads, filters vote-program account noise, fingerprints account data
// for redundancy suppression, and forwards everything to the state core,
// which decides when slots are complete and emits them in strictly
// increasing order along the confirmed chain. A durable cursor file
// advances only once a slot's artifacts are fully written, so a restart
// resumes exactly where the pipes left off.
package geyserplugin

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/streamingfast/firehose-geyser-plugin/internal/codec"
	"github.com/streamingfast/firehose-geyser-plugin/internal/config"
	"github.com/streamingfast/firehose-geyser-plugin/internal/logging"
	"github.com/streamingfast/firehose-geyser-plugin/internal/metrics"
	"github.com/streamingfast/firehose-geyser-plugin/internal/printer"
	"github.com/streamingfast/firehose-geyser-plugin/internal/solrpc"
	"github.com/streamingfast/firehose-geyser-plugin/internal/state"
	"github.com/streamingfast/firehose-geyser-plugin/pkg/geyser"
)

// Version is baked into the plugin name reported to the host.
const Version = "1.0.0"

// Plugin is the geyser plugin. The zero value is valid; the host calls
// OnLoad before any notification.
type Plugin struct {
	mu    sync.RWMutex
	inner *inner
}

type inner struct {
	log         *logrus.Entry
	cfg         config.Config
	state       *state.State
	printer     *printer.Printer
	stopMetrics func()
}

var _ geyser.Plugin = (*Plugin)(nil)

// Name identifies the plugin in host logs.
func (p *Plugin) Name() string {
	return "firehose-geyser-plugin-" + Version
}

// OnLoad wires the plugin from the JSON config file at configPath: logger,
// cursor recovery, RPC clients, pipe writers and the state core, then
// writes each enabled pipe's init framing.
func (p *Plugin) OnLoad(configPath string, isReload bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}

	log := logger.WithField("plugin", p.Name())

	var cursor *uint64
	if cfg.CursorFile != "" {
		slot, found, err := printer.ReadCursor(cfg.CursorFile)
		if err != nil {
			return err
		}

		if found {
			cursor = &slot
			log.WithField("cursor", slot).Info("resuming from cursor file")
		}
	}

	pr, err := printer.New(printer.Config{
		BlockPath:        cfg.BlockDestinationFile,
		AccountBlockPath: cfg.AccountBlockDestinationFile,
		CursorPath:       cfg.CursorFile,
		Noop:             cfg.Noop,
	}, log.WithField("component", "printer"))
	if err != nil {
		return err
	}

	chain := solrpc.New(cfg.LocalRPCClient.Endpoint, cfg.RemoteRPCClient.Endpoint,
		log.WithField("component", "rpc"))

	st := state.New(state.Options{
		Cursor:  cursor,
		Chain:   chain,
		Printer: pr,
		Log:     log.WithField("component", "state"),
	})

	if err := pr.PrintInit(codec.BlockTypeName, codec.AccountBlockTypeName); err != nil {
		_ = pr.Close()
		return fmt.Errorf("write init framing: %w", err)
	}

	p.mu.Lock()
	p.inner = &inner{
		log:         log,
		cfg:         cfg,
		state:       st,
		printer:     pr,
		stopMetrics: metrics.Serve(cfg.PrometheusListenAddress, log.WithField("component", "metrics")),
	}
	p.mu.Unlock()

	log.WithFields(logrus.Fields{
		"reload":         isReload,
		"noop":           cfg.Noop,
		"send_processed": cfg.SendProcessed,
	}).Info("plugin loaded")

	return nil
}

// OnUnload drains the pipes and releases everything.
func (p *Plugin) OnUnload() {
	p.mu.Lock()
	in := p.inner
	p.inner = nil
	p.mu.Unlock()

	if in == nil {
		return
	}

	if err := in.printer.Close(); err != nil {
		in.log.WithError(err).Error("closing pipes")
	}

	in.stopMetrics()
	in.log.Info("plugin unloaded")
}

func (p *Plugin) get() (*inner, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.inner == nil {
		return nil, ErrNotLoaded
	}

	return p.inner, nil
}

// UpdateAccount feeds one account write into the state core. Startup
// snapshot writes teach the redundancy hash table only. Vote-program
// accounts are dropped before hashing.
func (p *Plugin) UpdateAccount(account geyser.ReplicaAccountInfoVersions, slot uint64, isStartup bool) error {
	in, err := p.get()
	if err != nil {
		return err
	}

	write, err := normalizeAccount(account)
	if err != nil {
		return err
	}

	if isVoteAccount(write.Owner[:]) {
		metrics.AccountWritesDropped.WithLabelValues("vote_program").Inc()
		return nil
	}

	in.state.SetAccount(slot, write, isStartup, dataHash(write.Data))

	return nil
}

// NotifyTransaction buffers one executed transaction for its slot.
func (p *Plugin) NotifyTransaction(transaction geyser.ReplicaTransactionInfoVersions, slot uint64) error {
	in, err := p.get()
	if err != nil {
		return err
	}

	record, err := normalizeTransaction(transaction)
	if err != nil {
		return err
	}

	in.state.SetTransaction(slot, record)

	return nil
}

// NotifyBlockMetadata records a replayed slot's metadata.
func (p *Plugin) NotifyBlockMetadata(meta geyser.ReplicaBlockInfoVersions) error {
	in, err := p.get()
	if err != nil {
		return err
	}

	info, err := normalizeBlockMeta(meta)
	if err != nil {
		return err
	}

	in.state.SetBlockInfo(info)

	return nil
}

// UpdateSlotStatus routes commitment transitions: rooted slots move the
// LIB; confirmed slots (or processed ones under send_processed) join the
// confirmed set and drive the processing loop. An emission failure here is
// fatal — the process aborts and restarts from the durable cursor.
func (p *Plugin) UpdateSlotStatus(slot uint64, parent *uint64, status geyser.SlotStatus) error {
	in, err := p.get()
	if err != nil {
		return err
	}

	switch status {
	case geyser.SlotRooted:
		in.state.SetLib(slot)
		return nil
	case geyser.SlotConfirmed:
		if in.cfg.SendProcessed {
			return nil
		}
	case geyser.SlotProcessed:
		if !in.cfg.SendProcessed {
			return nil
		}
	default:
		return nil
	}

	in.state.SetConfirmedSlot(slot)

	if err := in.state.ProcessUpTo(slot); err != nil {
		// Log at Fatal: the pipe is poisoned or a write failed mid-slot.
		// The durable cursor guarantees a clean resume after restart.
		in.log.WithError(err).WithField("slot", slot).Fatal("block emission failed")
	}

	return nil
}

// NotifyEndOfStartup logs the size of the hash table taught by the
// startup snapshot.
func (p *Plugin) NotifyEndOfStartup() error {
	in, err := p.get()
	if err != nil {
		return err
	}

	in.log.WithField("accounts", in.state.HashCount()).Info("startup snapshot complete")

	return nil
}

// NotifyEntry is unused; entry notifications are declined.
func (p *Plugin) NotifyEntry(entry geyser.ReplicaEntryInfoVersions) error {
	return nil
}

// AccountDataNotificationsEnabled opts into account write notifications.
func (p *Plugin) AccountDataNotificationsEnabled() bool { return true }

// TransactionNotificationsEnabled opts into transaction notifications.
func (p *Plugin) TransactionNotificationsEnabled() bool { return true }

// EntryNotificationsEnabled declines entry notifications.
func (p *Plugin) EntryNotificationsEnabled() bool { return false }
