package diff

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cedarlabs/vaultsync/internal/block"
)

// Applier is the capability the reconciler needs from the remote side.
// The reconciler depends on this interface, never on a concrete
// gateway client, per the "coroutines/callbacks as capability traits"
// design note (spec §9) -- this also makes the reconciler trivial to
// property-test with a fake.
type Applier interface {
	AddBlocks(ctx context.Context, parentIndex int, blocks []*block.Block) error
	DeleteBlockChildren(ctx context.Context, startIndex, endIndex int) error
	UpdateTextElements(ctx context.Context, remoteBlockID string, elements []block.Element) error
	FlushTextUpdates(ctx context.Context) error
	ClearDocument(ctx context.Context) error
}

// Config controls reconciler thresholds left open by spec §9 ("Open
// questions / ambiguities to preserve, not guess" -- the diff threshold
// is explicitly heuristic and must stay configurable).
type Config struct {
	// FullOverwriteThreshold: once the number of non-equal opcodes
	// exceeds this, or the remote document is empty, clear + re-add
	// the whole local tree instead of patching incrementally.
	FullOverwriteThreshold int
}

// DefaultConfig matches the spec's stated default of 15.
func DefaultConfig() Config {
	return Config{FullOverwriteThreshold: 15}
}

// Reconcile hashes remote and local top-level block sequences, computes
// the minimal edit script, and applies it via a. It implements spec
// §4.5 in full: the global fallback (empty remote or too many opcodes),
// the opcode-application ordering (reverse I1), the in-place
// update-vs-delete+insert decision for 1:1 replacements, and the
// batch-update-failure fallback to full overwrite.
func Reconcile(ctx context.Context, cfg Config, remote []*block.Block, local []*block.Block, a Applier) error {
	remoteHashes := block.HashAll(remote)
	localHashes := block.HashAll(local)

	ops := Opcodes(remoteHashes, localHashes)
	nonEqual := NonEqualCount(ops)

	if len(remote) == 0 || nonEqual > cfg.FullOverwriteThreshold {
		return fullOverwrite(ctx, local, a)
	}
	if nonEqual == 0 {
		return nil
	}

	reversed := ReverseByI1(ops)
	hadUpdates := false
	for _, op := range reversed {
		switch op.Tag {
		case OpEqual:
			continue
		case OpInsert:
			if err := a.AddBlocks(ctx, op.I1, local[op.J1:op.J2]); err != nil {
				return errors.Wrapf(err, "insert at %d", op.I1)
			}
		case OpDelete:
			if err := a.DeleteBlockChildren(ctx, op.I1, op.I2); err != nil {
				return errors.Wrapf(err, "delete %d:%d", op.I1, op.I2)
			}
		case OpReplace:
			if inPlaceEligible(remote, local, op) {
				if err := a.UpdateTextElements(ctx, remote[op.I1].ID, local[op.J1].Elements); err != nil {
					return errors.Wrap(err, "queue in-place update")
				}
				hadUpdates = true
				continue
			}
			if err := a.DeleteBlockChildren(ctx, op.I1, op.I2); err != nil {
				return errors.Wrapf(err, "replace-delete %d:%d", op.I1, op.I2)
			}
			if err := a.AddBlocks(ctx, op.I1, local[op.J1:op.J2]); err != nil {
				return errors.Wrapf(err, "replace-insert at %d", op.I1)
			}
		}
	}

	if hadUpdates {
		if err := a.FlushTextUpdates(ctx); err != nil {
			// "If the collected batch update call fails, fall back to full overwrite." (§4.5)
			return fullOverwrite(ctx, local, a)
		}
	}
	return nil
}

// inPlaceEligible implements the 1:1, same-type, non-empty-local-elements
// rule from §4.5's replace-opcode handling.
func inPlaceEligible(remote, local []*block.Block, op Opcode) bool {
	if op.I2-op.I1 != 1 || op.J2-op.J1 != 1 {
		return false
	}
	r, l := remote[op.I1], local[op.J1]
	if r.Type != l.Type {
		return false
	}
	if !l.Type.IsTextBearing() {
		return false
	}
	return len(l.Elements) > 0
}

func fullOverwrite(ctx context.Context, local []*block.Block, a Applier) error {
	if err := a.ClearDocument(ctx); err != nil {
		return errors.Wrap(err, "clear document")
	}
	if err := a.AddBlocks(ctx, 0, local); err != nil {
		return errors.Wrap(err, "full overwrite add")
	}
	return nil
}

