// Package committer implements the Batch Committer (spec §4.3): one
// operation, submit_once, that drains the queue head, materializes a
// zone-file update, submits it, and durably records the per-row
// outcome.
package committer

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/stacks-network/subdomain-registrar/internal/namingapi"
	"github.com/stacks-network/subdomain-registrar/internal/queuestore"
	"github.com/stacks-network/subdomain-registrar/internal/subdomain"
	"github.com/stacks-network/subdomain-registrar/internal/zonefile"
)

// minBatchSize is the floor the adaptive batch-size rule (spec §9,
// Open Question 2) is never allowed to shrink below.
const minBatchSize = 1

// Summary is submit_once's structured return value.
type Summary struct {
	Committed int
	TxID      string
	Error     string
}

// Committer is the per-parent-domain batch committer. It is not safe
// for concurrent submit_once calls against the same parent domain; the
// Registrar Worker guarantees that (spec §4.4).
type Committer struct {
	ParentDomain string

	store   *queuestore.Store
	builder zonefile.Builder
	api     *namingapi.Client
	log     *slog.Logger

	entriesPerTx int
}

// New constructs a Committer for one parent domain, with an initial
// batch size (spec's "entries_per_tx starts at a configured default").
func New(parentDomain string, store *queuestore.Store, builder zonefile.Builder, api *namingapi.Client, initialBatchSize int, log *slog.Logger) *Committer {
	if initialBatchSize < minBatchSize {
		initialBatchSize = minBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Committer{
		ParentDomain: parentDomain,
		store:        store,
		builder:      builder,
		api:          api,
		log:          log,
		entriesPerTx: initialBatchSize,
	}
}

// EntriesPerTx reports the current adaptive batch size, for tests and
// observability.
func (c *Committer) EntriesPerTx() int { return c.entriesPerTx }

// SubmitOnce attempts zero or one batch. It never returns an error
// past its own boundary (spec §7's propagation policy): every failure
// is materialized as durable row state plus the returned Summary.
func (c *Committer) SubmitOnce(ctx context.Context) Summary {
	rows, err := c.store.Head(ctx, c.ParentDomain, c.entriesPerTx)
	if err != nil {
		c.log.Error("committer: head failed, rows remain pending", "parent", c.ParentDomain, "error", err)
		return Summary{Error: err.Error()}
	}
	if len(rows) == 0 {
		return Summary{Committed: 0}
	}

	ids := make([]int64, len(rows))
	records := make([]subdomain.Record, len(rows))
	for i, r := range rows {
		ids[i] = r.ReceivedAt
		records[i] = r.Record
	}

	text, duplicateIdx, err := c.builder.Build(ctx, c.ParentDomain, records)
	if err != nil {
		msg := fmt.Sprintf("zonefile builder failed: %v", err)
		if markErr := c.store.Mark(ctx, c.ParentDomain, ids, queuestore.StateFailed, msg); markErr != nil {
			c.log.Error("committer: failed to mark rows after builder error", "parent", c.ParentDomain, "error", markErr)
		}
		return Summary{Error: msg}
	}

	dupSet := make(map[int]bool, len(duplicateIdx))
	for _, i := range duplicateIdx {
		dupSet[i] = true
	}

	var dupIDs, remainingIDs []int64
	for i, r := range rows {
		if dupSet[i] {
			dupIDs = append(dupIDs, r.ReceivedAt)
		} else {
			remainingIDs = append(remainingIDs, r.ReceivedAt)
		}
	}
	if len(dupIDs) > 0 {
		if err := c.store.Mark(ctx, c.ParentDomain, dupIDs, queuestore.StateAlreadyExisted, ""); err != nil {
			c.log.Error("committer: failed to mark duplicate rows", "parent", c.ParentDomain, "error", err)
			return Summary{Error: err.Error()}
		}
	}
	if len(remainingIDs) == 0 {
		c.log.Info("committer: batch fully duplicate, nothing submitted", "parent", c.ParentDomain, "duplicates", len(dupIDs))
		return Summary{Committed: 0}
	}

	resp, err := c.api.SubmitZonefile(ctx, c.ParentDomain, text)
	if err != nil {
		// Transport failure: no HTTP response at all (spec §4.3 failure classes).
		msg := err.Error()
		if markErr := c.store.Mark(ctx, c.ParentDomain, remainingIDs, queuestore.StateFailed, msg); markErr != nil {
			c.log.Error("committer: failed to mark rows after transport error", "parent", c.ParentDomain, "error", markErr)
		}
		return Summary{Error: msg}
	}

	if resp.StatusCode != 202 {
		if resp.ExceedsMaxLength() {
			c.shrinkBatchSize()
		}
		msg := fmt.Sprintf("naming API returned %d: %s", resp.StatusCode, resp.RawBody)
		if markErr := c.store.Mark(ctx, c.ParentDomain, remainingIDs, queuestore.StateFailed, msg); markErr != nil {
			c.log.Error("committer: failed to mark rows after non-202 response", "parent", c.ParentDomain, "error", markErr)
		}
		c.log.Error("committer: batch rejected", "parent", c.ParentDomain, "status", resp.StatusCode, "body", resp.RawBody)
		return Summary{Error: msg}
	}

	if !resp.BodyParsed {
		// 202 with an unparseable body: indeterminate, leave rows PENDING for the next tick.
		c.log.Warn("committer: 202 response body did not parse, rows left pending", "parent", c.ParentDomain)
		return Summary{Error: "parse"}
	}

	if resp.Error != "" {
		if markErr := c.store.Mark(ctx, c.ParentDomain, remainingIDs, queuestore.StateFailed, resp.Error); markErr != nil {
			c.log.Error("committer: failed to mark rows after error body", "parent", c.ParentDomain, "error", markErr)
		}
		return Summary{Error: resp.Error}
	}

	if resp.TransactionHash == "" {
		// 202, parsed body, but no txid: same indeterminate treatment as an unparseable body.
		c.log.Warn("committer: 202 response carried no transaction_hash, rows left pending", "parent", c.ParentDomain)
		return Summary{Error: "parse"}
	}

	if err := c.store.Mark(ctx, c.ParentDomain, remainingIDs, queuestore.StateCommitted, resp.TransactionHash); err != nil {
		c.log.Error("committer: failed to mark committed rows", "parent", c.ParentDomain, "error", err)
		return Summary{Error: err.Error()}
	}

	c.log.Info("committer: batch committed", "parent", c.ParentDomain, "committed", len(remainingIDs), "duplicates", len(dupIDs), "txid", resp.TransactionHash)
	return Summary{Committed: len(remainingIDs), TxID: resp.TransactionHash}
}

// shrinkBatchSize applies the adaptive-batch-size rule: floor(0.8 *
// entries_per_tx), never below minBatchSize (spec §9, Open Question 2).
func (c *Committer) shrinkBatchSize() {
	next := int(math.Floor(0.8 * float64(c.entriesPerTx)))
	if next < minBatchSize {
		next = minBatchSize
	}
	c.log.Info("committer: shrinking batch size after max-length signal", "parent", c.ParentDomain, "from", c.entriesPerTx, "to", next)
	c.entriesPerTx = next
}
