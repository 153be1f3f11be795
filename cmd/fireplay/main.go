// Command fireplay drives the plugin from a recorded event journal, the
// way a validator would, for bench and soak testing without a validator.
//
// The journal is JSON lines, one event per line:
//
//	{"type":"account","slot":5,"pubkey":"<base58>","owner":"<base58>",
//	 "data":"<base64>","write_version":1,"lamports":1,"startup":false}
//	{"type":"transaction","slot":5,"index":0,"signature":"<base58>"}
//	{"type":"blockmeta","slot":5,"parent_slot":4,"blockhash":"...",
//	 "parent_blockhash":"...","block_time":1700000000,"transaction_count":1}
//	{"type":"status","slot":5,"status":"processed|confirmed|rooted"}
//	{"type":"end_of_startup"}
package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gagliardetto/solana-go"
	flag "github.com/spf13/pflag"

	geyserplugin "github.com/streamingfast/firehose-geyser-plugin"
	"github.com/streamingfast/firehose-geyser-plugin/pkg/geyser"
)

func main() {
	os.Exit(run(os.Stdout, os.Stderr, os.Args))
}

type event struct {
	Type string `json:"type"`
	Slot uint64 `json:"slot"`

	// account
	Pubkey       string `json:"pubkey,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Data         string `json:"data,omitempty"`
	WriteVersion uint64 `json:"write_version,omitempty"`
	Lamports     uint64 `json:"lamports,omitempty"`
	Startup      bool   `json:"startup,omitempty"`

	// transaction
	Index     uint64 `json:"index,omitempty"`
	Signature string `json:"signature,omitempty"`

	// blockmeta
	ParentSlot       uint64  `json:"parent_slot,omitempty"`
	Blockhash        string  `json:"blockhash,omitempty"`
	ParentBlockhash  string  `json:"parent_blockhash,omitempty"`
	BlockTime        *int64  `json:"block_time,omitempty"`
	BlockHeight      *uint64 `json:"block_height,omitempty"`
	TransactionCount uint64  `json:"transaction_count,omitempty"`

	// status
	Status string `json:"status,omitempty"`
}

func run(out, errOut io.Writer, args []string) int {
	flags := flag.NewFlagSet("fireplay", flag.ContinueOnError)
	flags.SetOutput(errOut)
	flagConfig := flags.StringP("config", "c", "", "Plugin config `file` (required)")
	flagJournal := flags.StringP("journal", "j", "-", "Event journal `file`, - for stdin")

	if err := flags.Parse(args[1:]); err != nil {
		return 1
	}

	if *flagConfig == "" {
		fmt.Fprintln(errOut, "error: --config is required")
		flags.PrintDefaults()

		return 1
	}

	in := os.Stdin
	if *flagJournal != "-" {
		f, err := os.Open(*flagJournal)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		defer f.Close()

		in = f
	}

	plugin := &geyserplugin.Plugin{}
	if err := plugin.OnLoad(*flagConfig, false); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer plugin.OnUnload()

	count, err := replay(plugin, in)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	fmt.Fprintf(out, "replayed %d events\n", count)

	return 0
}

func replay(plugin geyser.Plugin, in io.Reader) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)

	count := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev event
		if err := json.Unmarshal(line, &ev); err != nil {
			return count, fmt.Errorf("journal line %d: %w", count+1, err)
		}

		if err := apply(plugin, &ev); err != nil {
			return count, fmt.Errorf("journal line %d: %w", count+1, err)
		}

		count++
	}

	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("read journal: %w", err)
	}

	return count, nil
}

func apply(plugin geyser.Plugin, ev *event) error {
	switch ev.Type {
	case "account":
		pubkey, err := solana.PublicKeyFromBase58(ev.Pubkey)
		if err != nil {
			return fmt.Errorf("pubkey: %w", err)
		}

		owner, err := solana.PublicKeyFromBase58(ev.Owner)
		if err != nil {
			return fmt.Errorf("owner: %w", err)
		}

		data, err := base64.StdEncoding.DecodeString(ev.Data)
		if err != nil {
			return fmt.Errorf("data: %w", err)
		}

		return plugin.UpdateAccount(geyser.ReplicaAccountInfoVersions{
			V2: &geyser.ReplicaAccountInfoV2{
				Pubkey:       pubkey[:],
				Owner:        owner[:],
				Lamports:     ev.Lamports,
				Data:         data,
				WriteVersion: ev.WriteVersion,
			},
		}, ev.Slot, ev.Startup)

	case "transaction":
		sig, err := solana.SignatureFromBase58(ev.Signature)
		if err != nil {
			return fmt.Errorf("signature: %w", err)
		}

		return plugin.NotifyTransaction(geyser.ReplicaTransactionInfoVersions{
			V2: &geyser.ReplicaTransactionInfoV2{
				Signature: sig,
				Index:     ev.Index,
				Transaction: &solana.Transaction{
					Signatures: []solana.Signature{sig},
				},
				Meta: &geyser.TransactionStatusMeta{},
			},
		}, ev.Slot)

	case "blockmeta":
		return plugin.NotifyBlockMetadata(geyser.ReplicaBlockInfoVersions{
			V2: &geyser.ReplicaBlockInfoV2{
				Slot:                     ev.Slot,
				Blockhash:                ev.Blockhash,
				ParentSlot:               ev.ParentSlot,
				ParentBlockhash:          ev.ParentBlockhash,
				BlockTime:                ev.BlockTime,
				BlockHeight:              ev.BlockHeight,
				ExecutedTransactionCount: ev.TransactionCount,
			},
		})

	case "status":
		var status geyser.SlotStatus

		switch ev.Status {
		case "processed":
			status = geyser.SlotProcessed
		case "confirmed":
			status = geyser.SlotConfirmed
		case "rooted":
			status = geyser.SlotRooted
		default:
			return fmt.Errorf("unknown slot status %q", ev.Status)
		}

		return plugin.UpdateSlotStatus(ev.Slot, nil, status)

	case "end_of_startup":
		return plugin.NotifyEndOfStartup()

	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}
