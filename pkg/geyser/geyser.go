// Package geyser defines the host-facing plugin ABI consumed by this
// repository: the [Plugin] interface a validator drives, the slot commitment
// levels it reports, and the versioned "replica" payloads it delivers.
//
// The host delivers account writes, transactions, block metadata and slot
// status transitions asynchronously and from arbitrary threads. Payloads are
// versioned: each notification arrives as a tagged variant
// ([ReplicaAccountInfoVersions], [ReplicaTransactionInfoVersions],
// [ReplicaBlockInfoVersions]) where exactly one version pointer is set.
// Fields absent from older versions default sensibly; an empty variant is an
// unsupported ABI version. The root plugin rejects such a notification with
// an error returned to the host; it does not abort the process.
//
// # Delivery contract
//
//   - UpdateAccount may be called for hundreds of slots before the first
//     block metadata arrives (validator catchup). With isStartup true the
//     write belongs to the startup snapshot, not to live slot flow.
//   - NotifyTransaction and NotifyBlockMetadata for one slot may interleave
//     in any order.
//   - UpdateSlotStatus reports Processed, then Confirmed, then Rooted for
//     slots on the winning fork; skipped slots report nothing.
package geyser

import "fmt"

// SlotStatus is the commitment level the host attaches to a slot
// status transition.
type SlotStatus uint8

const (
	// SlotProcessed means the node replayed the slot.
	SlotProcessed SlotStatus = iota
	// SlotRooted means the slot is finalized and can never be rolled back.
	SlotRooted
	// SlotConfirmed means the cluster voted on the slot (mid-strength).
	SlotConfirmed
)

// String returns the lowercase wire name of the status.
func (s SlotStatus) String() string {
	switch s {
	case SlotProcessed:
		return "processed"
	case SlotRooted:
		return "rooted"
	case SlotConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("slotstatus(%d)", uint8(s))
	}
}

// Plugin is the contract a geyser plugin implements. The host calls OnLoad
// once before any notification and OnUnload once after the last one. All
// other methods may be invoked concurrently from arbitrary goroutines.
type Plugin interface {
	// Name identifies the plugin in host logs.
	Name() string

	// OnLoad initializes the plugin from the JSON config file at
	// configPath. isReload is true when the host reloads a live plugin.
	OnLoad(configPath string, isReload bool) error

	// OnUnload releases all plugin resources. The host guarantees no
	// notification is in flight or will follow.
	OnUnload()

	// UpdateAccount delivers one observed account write at slot.
	// isStartup marks snapshot restore writes.
	UpdateAccount(account ReplicaAccountInfoVersions, slot uint64, isStartup bool) error

	// NotifyTransaction delivers one executed transaction at slot.
	NotifyTransaction(transaction ReplicaTransactionInfoVersions, slot uint64) error

	// NotifyBlockMetadata delivers the block metadata of a replayed slot.
	NotifyBlockMetadata(meta ReplicaBlockInfoVersions) error

	// UpdateSlotStatus reports a commitment transition for slot. parent is
	// set when the host knows the parent slot at this transition.
	UpdateSlotStatus(slot uint64, parent *uint64, status SlotStatus) error

	// NotifyEndOfStartup signals that the startup snapshot has been fully
	// delivered and live notifications begin.
	NotifyEndOfStartup() error

	// NotifyEntry delivers ledger entry summaries, when enabled.
	NotifyEntry(entry ReplicaEntryInfoVersions) error

	// AccountDataNotificationsEnabled reports whether the host should
	// deliver UpdateAccount calls.
	AccountDataNotificationsEnabled() bool

	// TransactionNotificationsEnabled reports whether the host should
	// deliver NotifyTransaction calls.
	TransactionNotificationsEnabled() bool

	// EntryNotificationsEnabled reports whether the host should deliver
	// NotifyEntry calls.
	EntryNotificationsEnabled() bool
}
