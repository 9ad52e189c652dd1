// Package blocks reassembles wrapped statement lines into one logical
// transaction record per block.
package blocks

import (
	"strings"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/amount"
)

// Block is one reconstructed logical transaction span.
type Block struct {
	Lines []string
}

// Text joins the block's lines with single spaces.
func (b Block) Text() string {
	return strings.Join(b.Lines, " ")
}

// Collapse walks normalized, non-empty lines and groups them into blocks.
//
// Statement exports frequently wrap a description across 2-3 lines with the
// amount isolated on its own trailing line; "does this line look like a
// standalone amount" is the join signal:
//
//   - an amount-only line is appended to the open block and closes it;
//   - otherwise, if the open block already holds an amount token, the block
//     is closed and this line starts a new one;
//   - otherwise the line joins the open block.
//
// A dangling open block with no trailing amount is still emitted; it may
// fail enrichment later, which is acceptable best-effort behavior.
func Collapse(text string) []Block {
	var out []Block
	var cur []string
	curHasAmount := false

	flush := func() {
		if len(cur) > 0 {
			out = append(out, Block{Lines: cur})
			cur = nil
			curHasAmount = false
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if amount.IsAmountOnly(line) {
			cur = append(cur, line)
			flush()
			continue
		}
		if curHasAmount {
			flush()
		}
		cur = append(cur, line)
		if amount.HasToken(line) {
			curHasAmount = true
		}
	}
	flush()
	return out
}
