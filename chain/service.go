// Package chain serializes every fork-choice mutation through a single
// message loop: a biased tick-first select between the slot clock and an
// inbound message channel, mirroring geanlabs-gean/node/node.go's slotTicker
// and the message enum (ProduceBlock, BuildAttestationData, ProcessBlock,
// ProcessAttestation, CheckIfCanonicalCheckpoint) described in
// original_source/crates/common/chain/lean/src/service.rs.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/geanlabs/gean/forkchoice"
	"github.com/geanlabs/gean/types"
)

// ErrStopped is returned by request methods called after Stop.
var ErrStopped = errors.New("chain: service stopped")

// GossipSink publishes accepted objects back out to the network. Satisfied
// by networking.Service.
type GossipSink interface {
	GossipBlock(ctx context.Context, signed *types.SignedBlockWithAttestation) error
	GossipAttestation(ctx context.Context, att *types.SignedAttestation) error
}

// Service owns a forkchoice.Store and drives its tick protocol, accepting
// requests one at a time so store mutations never race with each other.
type Service struct {
	fc          *forkchoice.Store
	gossip      GossipSink
	genesisTime uint64
	logger      *slog.Logger

	// HasProposal reports whether this node proposes at the given slot's
	// start. Set by the validator service; consulted once per tick so the
	// tick%4==0 has_proposal flag forkchoice's tick table requires is
	// computed from the node's own duty schedule rather than guessed here.
	HasProposal func(slot types.Slot) bool

	inbox chan func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a chain service over fc, publishing accepted gossip
// objects through sink.
func NewService(fc *forkchoice.Store, sink GossipSink, genesisTime uint64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fc:          fc,
		gossip:      sink,
		genesisTime: genesisTime,
		logger:      logger,
		inbox:       make(chan func(), 64),
	}
}

// Start begins the message loop. ctx bounds the service's lifetime.
func (s *Service) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop shuts the service down and waits for the message loop to exit.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(types.SecondsPerInterval) * time.Second)
	defer ticker.Stop()

	for {
		// Biased tick-first: if a tick and a message are both ready, the
		// tick fires first so slot timing never starves behind a burst of
		// inbound messages.
		select {
		case <-ticker.C:
			s.onTick()
			continue
		default:
		}

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.onTick()
		case fn := <-s.inbox:
			fn()
		}
	}
}

func (s *Service) onTick() {
	now := uint64(time.Now().Unix())
	if now < s.genesisTime {
		return
	}

	hasProposal := false
	if s.HasProposal != nil {
		if curSlot, err := s.fc.CurrentSlot(); err == nil {
			hasProposal = s.HasProposal(curSlot + 1)
		}
	}

	if err := s.fc.AdvanceTime(now, hasProposal); err != nil {
		s.logger.Warn("chain: advance time failed", "error", err)
	}
}

// dispatch runs fn on the message loop and blocks for its result, unless ctx
// is cancelled or the service has stopped first.
func dispatch[T any](ctx context.Context, s *Service, fn func() (T, error)) (T, error) {
	var zero T
	type result struct {
		val T
		err error
	}
	reply := make(chan result, 1)

	select {
	case s.inbox <- func() {
		val, err := fn()
		reply <- result{val, err}
	}:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.ctx.Done():
		return zero, ErrStopped
	}

	select {
	case r := <-reply:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// NumValidators returns the size of the validator registry as of the
// current head state, used by the validator service to compute proposer
// assignment without reaching into the store directly.
func (s *Service) NumValidators(ctx context.Context) (uint64, error) {
	return dispatch(ctx, s, func() (uint64, error) {
		return s.fc.NumValidators()
	})
}


// ProduceBlock requests block production for slot by proposerIndex.
func (s *Service) ProduceBlock(ctx context.Context, slot types.Slot, proposerIndex types.ValidatorIndex) (*types.Block, error) {
	return dispatch(ctx, s, func() (*types.Block, error) {
		return s.fc.ProduceBlock(slot, proposerIndex)
	})
}

// BuildAttestationData requests attestation data for slot.
func (s *Service) BuildAttestationData(ctx context.Context, slot types.Slot) (*types.AttestationData, error) {
	return dispatch(ctx, s, func() (*types.AttestationData, error) {
		return s.fc.ProduceAttestationData(slot)
	})
}

// ProcessBlock runs on_block for signed, always verifying its signatures,
// whether the block came from gossip or from the local validator's own
// proposal. If accepted and
// needGossip, the same signed block is forwarded to the outbound gossip
// sink. Errors are logged and never returned to the network layer that
// triggered them.
func (s *Service) ProcessBlock(ctx context.Context, signed *types.SignedBlockWithAttestation, needGossip bool) {
	_, err := dispatch(ctx, s, func() (struct{}, error) {
		return struct{}{}, s.fc.OnBlock(signed, true)
	})
	if err != nil {
		s.logger.Warn("chain: process block failed", "slot", signed.Message.Block.Slot, "error", err)
		return
	}
	if needGossip && s.gossip != nil {
		if err := s.gossip.GossipBlock(ctx, signed); err != nil {
			s.logger.Warn("chain: gossip block failed", "error", err)
		}
	}
}

// ProcessAttestation runs on_attestation for signed, symmetric to
// ProcessBlock.
func (s *Service) ProcessAttestation(ctx context.Context, signed *types.SignedAttestation, needGossip bool) {
	_, err := dispatch(ctx, s, func() (struct{}, error) {
		return struct{}{}, s.fc.OnAttestation(signed)
	})
	if err != nil {
		s.logger.Debug("chain: process attestation failed", "validator", signed.Message.ValidatorID, "error", err)
		return
	}
	if needGossip && s.gossip != nil {
		if err := s.gossip.GossipAttestation(ctx, signed); err != nil {
			s.logger.Warn("chain: gossip attestation failed", "error", err)
		}
	}
}

// canonicalBootstrapSlots is the threshold below which
// CheckIfCanonicalCheckpoint always answers true, a bootstrap convenience
// for early-genesis checkpoints (spec Open Question: exact threshold
// unspecified elsewhere; 5 chosen to match JUSTIFICATION_LOOKBACK_SLOTS+2,
// wide enough to cover genesis-era forks without masking real divergence).
const canonicalBootstrapSlots = 5

// CheckIfCanonicalCheckpoint answers whether slot_index[checkpoint.slot] ==
// checkpoint.root, treating a missing entry or an early slot as canonical.
func (s *Service) CheckIfCanonicalCheckpoint(ctx context.Context, peerID string, checkpoint types.Checkpoint) (string, bool, error) {
	ok, err := dispatch(ctx, s, func() (bool, error) {
		if checkpoint.Slot < canonicalBootstrapSlots {
			return true, nil
		}
		root, found, err := s.fc.GetBlockRootBySlot(checkpoint.Slot)
		if err != nil {
			return false, fmt.Errorf("check canonical checkpoint: %w", err)
		}
		if !found {
			return true, nil
		}
		return root == checkpoint.Root, nil
	})
	return peerID, ok, err
}
