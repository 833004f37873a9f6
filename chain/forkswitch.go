package chain

import (
	"marketchain/types"
	"marketchain/xerrors"
)

// popHead reverses the single most-recently-applied block, keeping c.history
// in lockstep with objectdb's retained undo window, and returns the popped
// block so a caller can restore it later.
func (c *Controller) popHead() (*types.Block, error) {
	if len(c.history) == 0 {
		return nil, xerrors.New(xerrors.KindUndo, "chain.popHead", "no applied block to pop", xerrors.ErrUndoWindowExceeded)
	}
	if err := c.DB.PopBlock(); err != nil {
		return nil, err
	}
	last := c.history[len(c.history)-1]
	c.history = c.history[:len(c.history)-1]
	return last.block, nil
}

// SwitchFork reorganizes the chain onto altChain, an ordered sequence of
// blocks (oldest first) whose first block's Previous identifies the
// divergence point from the current head. Blocks are
// popped off the current head, within the retained undo window, until the
// divergence point is reached; altChain is then applied in order. If any
// block in altChain fails to apply, every alt block applied so far is popped
// and the original branch (preserved in a side buffer of the blocks popped to
// make room) is reapplied before SwitchFork returns the failure, leaving the
// chain exactly as it was before the call.
//
// Popping past the retained undo window is a fatal UndoError: this chain
// does not support reorganizations deeper than the window.
func (c *Controller) SwitchFork(altChain []*types.Block, firstAltNumber uint32, skip SkipFlags) error {
	if len(altChain) == 0 {
		return nil
	}

	var sideBuffer []*types.Block // most-recently-applied first
	for {
		dgp := DynamicGlobalProperties(c.DB)
		if dgp.HeadBlockID == altChain[0].Previous {
			break
		}
		popped, err := c.popHead()
		if err != nil {
			c.reapply(sideBuffer, firstAltNumber, skip) // best-effort: restore whatever we already popped
			return err
		}
		sideBuffer = append(sideBuffer, popped)
	}

	for i, block := range altChain {
		if err := c.ApplyBlock(firstAltNumber+uint32(i), block, skip); err != nil {
			// Unwind the alt blocks that did apply, then restore the
			// original branch from the side buffer.
			for j := 0; j < i; j++ {
				if _, popErr := c.popHead(); popErr != nil {
					return popErr // fatal: the database is now in an unrecoverable state
				}
			}
			if reErr := c.reapply(sideBuffer, firstAltNumber, skip); reErr != nil {
				return reErr
			}
			return err
		}
	}
	return nil
}

// reapply restores blocks popped into a side buffer (most-recently-popped,
// i.e. highest block number, first) back onto the head in their original
// oldest-to-newest order. Every popped block's original number was exactly
// firstAltNumber + its position counting up from the divergence point, since
// popHead only ever removes the current head one block at a time.
func (c *Controller) reapply(sideBuffer []*types.Block, firstAltNumber uint32, skip SkipFlags) error {
	if len(sideBuffer) == 0 {
		return nil
	}
	pos := uint32(0)
	for i := len(sideBuffer) - 1; i >= 0; i-- {
		number := firstAltNumber + pos
		if err := c.ApplyBlock(number, sideBuffer[i], skip); err != nil {
			return xerrors.New(xerrors.KindUndo, "chain.reapply", "failed to restore original branch after a failed fork switch", xerrors.ErrUndoWindowExceeded)
		}
		pos++
	}
	return nil
}
