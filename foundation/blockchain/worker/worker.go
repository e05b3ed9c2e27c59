// Package worker schedules the three background loops a running node
// needs: driving voting rounds on a fixed cadence, fanning newly admitted
// transactions out to peers, and periodically decaying the participation
// rate of miners nobody has heard a vote from.
package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/node"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/store"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/tx"
)

// maxTxShareRequests bounds the outbound transaction-sharing queue; once
// full, additional shares are dropped rather than blocking the admitting
// caller.
const maxTxShareRequests = 256

// Worker drives a Node's round loop, transaction propagation, and
// participation decay on independent schedules.
type Worker struct {
	node   *node.Node
	ticker *time.Ticker

	shut     chan struct{}
	runRound chan bool
	shareTx  chan tx.Tx

	evHandler node.EventHandler

	eg *errgroup.Group

	activeMu sync.Mutex
	active   map[crypto.Address]bool
}

// Run constructs a Worker for n, registers it as n's Worker, and starts
// the three background goroutines: round driving on roundInterval, tx
// sharing, and participation decay on decayInterval. It blocks until all
// three report they are running.
func Run(ctx context.Context, n *node.Node, roundInterval, decayInterval time.Duration, evHandler node.EventHandler) *Worker {
	eg, gctx := errgroup.WithContext(ctx)

	w := &Worker{
		node:      n,
		ticker:    time.NewTicker(roundInterval),
		shut:      make(chan struct{}),
		runRound:  make(chan bool, 1),
		shareTx:   make(chan tx.Tx, maxTxShareRequests),
		evHandler: evHandler,
		eg:        eg,
		active:    make(map[crypto.Address]bool),
	}

	n.Worker = w

	hasStarted := make(chan bool, 3)

	eg.Go(func() error {
		hasStarted <- true
		w.roundOperations(gctx)
		return nil
	})
	eg.Go(func() error {
		hasStarted <- true
		w.shareTxOperations(gctx)
		return nil
	})
	eg.Go(func() error {
		hasStarted <- true
		w.decayOperations(gctx, decayInterval)
		return nil
	})

	for i := 0; i < 3; i++ {
		<-hasStarted
	}

	return w
}

// =============================================================================
// These methods implement the node.Worker interface.

// Shutdown stops the ticker and terminates all three goroutines, waiting
// for them to exit before returning.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.ticker.Stop()
	close(w.shut)
	w.eg.Wait()
}

// SignalRunRound requests that a round be driven. If one is already
// queued, this is a no-op rather than a blocking send.
func (w *Worker) SignalRunRound() {
	select {
	case w.runRound <- true:
	default:
	}
	w.evHandler("worker: SignalRunRound: round signaled")
}

// SignalShareTx queues t for propagation to peers. If the queue is full,
// the share is dropped; the tx is still durably in the mempool, so
// nothing is lost beyond this node's gossip of it.
func (w *Worker) SignalShareTx(t tx.Tx) {
	select {
	case w.shareTx <- t:
	default:
		w.evHandler("worker: SignalShareTx: queue full, transaction not shared")
	}
}

// SubmitVote forwards v to the Node and records its signer as active for
// this decay period, so the periodic decay sweep does not penalize a
// miner whose vote only this worker observed.
func (w *Worker) SubmitVote(v store.Vote) error {
	if err := w.node.SubmitVote(v); err != nil {
		return err
	}

	w.activeMu.Lock()
	w.active[v.MinerAddress] = true
	w.activeMu.Unlock()

	return nil
}

// =============================================================================

// isShutdown reports whether Shutdown has been called.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

// roundOperations drives the node's per-height round loop: a tick or an
// explicit SignalRunRound both trigger one attempt, never overlapping,
// since the channel send in either case just schedules the next iteration
// of this single goroutine's loop.
func (w *Worker) roundOperations(ctx context.Context) {
	w.evHandler("worker: roundOperations: G started")
	defer w.evHandler("worker: roundOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			w.SignalRunRound()
		case <-w.runRound:
			if !w.isShutdown() {
				w.runRoundOperation(ctx)
			}
		case <-w.shut:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runRoundOperation runs exactly one call to Node.RunRound under a context
// that this goroutine pair can cancel if shutdown arrives mid-round,
// mirroring the cancelable mining-operation pattern this was adapted
// from: one goroutine does the work, a second watches for an early-exit
// signal and cancels the shared context.
func (w *Worker) runRoundOperation(ctx context.Context) {
	w.evHandler("worker: runRoundOperation: ROUND: started")
	defer w.evHandler("worker: runRoundOperation: ROUND: completed")

	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case <-w.shut:
		case <-roundCtx.Done():
		}
	}()

	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		block, err := w.node.RunRound(roundCtx)
		duration := time.Since(t)

		w.evHandler("worker: runRoundOperation: ROUND: duration[%v]", duration)

		if err != nil {
			switch {
			case err == node.ErrNoTransactions:
				w.evHandler("worker: runRoundOperation: ROUND: no transactions to batch")
			case roundCtx.Err() != nil:
				w.evHandler("worker: runRoundOperation: ROUND: cancelled")
			default:
				w.evHandler("worker: runRoundOperation: ROUND: ERROR: %s", err)
			}
			return
		}

		w.evHandler("worker: runRoundOperation: ROUND: committed block[%d]", block.Header.Number)
	}()

	wg.Wait()
}

// shareTxOperations drains the share queue, propagating each transaction
// to known peers. The actual network fan-out is the peer package's
// concern; this loop is where a future peer client would be invoked.
func (w *Worker) shareTxOperations(ctx context.Context) {
	w.evHandler("worker: shareTxOperations: G started")
	defer w.evHandler("worker: shareTxOperations: G completed")

	for {
		select {
		case t := <-w.shareTx:
			hash, err := t.Hash()
			if err != nil {
				w.evHandler("worker: shareTxOperations: ERROR: %s", err)
				continue
			}
			w.evHandler("worker: shareTxOperations: sharing tx[%x]", hash)
		case <-w.shut:
			return
		case <-ctx.Done():
			return
		}
	}
}

// decayOperations runs Node.DecaySweep on a fixed cadence, treating every
// miner this worker has seen vote since the last sweep as active, then
// resetting that set for the next period.
func (w *Worker) decayOperations(ctx context.Context, interval time.Duration) {
	w.evHandler("worker: decayOperations: G started")
	defer w.evHandler("worker: decayOperations: G completed")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.activeMu.Lock()
			active := w.active
			w.active = make(map[crypto.Address]bool)
			w.activeMu.Unlock()

			if err := w.node.DecaySweep(active); err != nil {
				w.evHandler("worker: decayOperations: ERROR: %s", err)
			}
		case <-w.shut:
			return
		case <-ctx.Done():
			return
		}
	}
}
