package diff

import (
	"context"
	"testing"

	"github.com/hooklift/assert"
	"github.com/pkg/errors"

	"github.com/cedarlabs/vaultsync/internal/block"
)

type call struct {
	kind       string
	start, end int
	blocks     []*block.Block
	elements   []block.Element
}

type fakeApplier struct {
	calls           []call
	flushErr        error
	clearedAndAdded bool
}

func (f *fakeApplier) AddBlocks(ctx context.Context, parentIndex int, blocks []*block.Block) error {
	f.calls = append(f.calls, call{kind: "add", start: parentIndex, blocks: blocks})
	return nil
}

func (f *fakeApplier) DeleteBlockChildren(ctx context.Context, startIndex, endIndex int) error {
	f.calls = append(f.calls, call{kind: "delete", start: startIndex, end: endIndex})
	return nil
}

func (f *fakeApplier) UpdateTextElements(ctx context.Context, remoteBlockID string, elements []block.Element) error {
	f.calls = append(f.calls, call{kind: "update:" + remoteBlockID, elements: elements})
	return nil
}

func (f *fakeApplier) FlushTextUpdates(ctx context.Context) error {
	f.calls = append(f.calls, call{kind: "flush"})
	return f.flushErr
}

func (f *fakeApplier) ClearDocument(ctx context.Context) error {
	f.calls = append(f.calls, call{kind: "clear"})
	f.clearedAndAdded = true
	return nil
}

func textBlock(id, content string) *block.Block {
	return &block.Block{ID: id, Type: block.TypeText, Elements: []block.Element{block.TextRun(content)}}
}

func TestReconcileNoOpWhenHashesMatch(t *testing.T) {
	remote := []*block.Block{textBlock("r1", "same")}
	local := []*block.Block{textBlock("", "same")}

	a := &fakeApplier{}
	err := Reconcile(context.Background(), DefaultConfig(), remote, local, a)
	assert.Ok(t, err)
	assert.Equals(t, 0, len(a.calls))
}

func TestReconcileFullOverwriteWhenRemoteEmpty(t *testing.T) {
	local := []*block.Block{textBlock("", "new content")}

	a := &fakeApplier{}
	err := Reconcile(context.Background(), DefaultConfig(), nil, local, a)
	assert.Ok(t, err)
	assert.Cond(t, a.clearedAndAdded, "expected ClearDocument + AddBlocks on an empty remote")
	assert.Equals(t, 2, len(a.calls))
	assert.Equals(t, "clear", a.calls[0].kind)
	assert.Equals(t, "add", a.calls[1].kind)
}

func TestReconcileFullOverwriteWhenTooManyOpcodes(t *testing.T) {
	remote := []*block.Block{textBlock("r1", "a"), textBlock("r2", "b")}
	local := []*block.Block{textBlock("", "x"), textBlock("", "y"), textBlock("", "z")}

	cfg := Config{FullOverwriteThreshold: 0}
	a := &fakeApplier{}
	err := Reconcile(context.Background(), cfg, remote, local, a)
	assert.Ok(t, err)
	assert.Cond(t, a.clearedAndAdded, "expected global fallback once non-equal opcodes exceed the threshold")
}

func TestReconcileInPlaceUpdateForSingleBlockReplace(t *testing.T) {
	remote := []*block.Block{textBlock("r1", "old")}
	local := []*block.Block{textBlock("", "new")}

	a := &fakeApplier{}
	err := Reconcile(context.Background(), DefaultConfig(), remote, local, a)
	assert.Ok(t, err)

	assert.Cond(t, !a.clearedAndAdded, "a single 1:1 text replace must stay in-place, not fall back to full overwrite")
	var sawUpdate, sawFlush bool
	for _, c := range a.calls {
		if c.kind == "update:r1" {
			sawUpdate = true
		}
		if c.kind == "flush" {
			sawFlush = true
		}
	}
	assert.Cond(t, sawUpdate, "expected an in-place UpdateTextElements call for remote block r1")
	assert.Cond(t, sawFlush, "expected FlushTextUpdates after queuing in-place updates")
}

func TestReconcileReplaceDeleteInsertForTypeMismatch(t *testing.T) {
	remote := []*block.Block{{ID: "r1", Type: block.TypeText, Elements: []block.Element{block.TextRun("old")}}}
	local := []*block.Block{{Type: block.TypeHeading1, Elements: []block.Element{block.TextRun("new")}}}

	a := &fakeApplier{}
	err := Reconcile(context.Background(), DefaultConfig(), remote, local, a)
	assert.Ok(t, err)

	assert.Cond(t, !a.clearedAndAdded, "a type-mismatched replace is not eligible for global fallback")
	var sawDelete, sawAdd bool
	for _, c := range a.calls {
		if c.kind == "delete" {
			sawDelete = true
		}
		if c.kind == "add" {
			sawAdd = true
		}
	}
	assert.Cond(t, sawDelete, "expected a delete for the replaced block")
	assert.Cond(t, sawAdd, "expected an insert for the replacement block")
}

func TestReconcileFallsBackToFullOverwriteWhenFlushFails(t *testing.T) {
	remote := []*block.Block{textBlock("r1", "old")}
	local := []*block.Block{textBlock("", "new")}

	a := &fakeApplier{flushErr: errors.New("batch update rejected")}
	err := Reconcile(context.Background(), DefaultConfig(), remote, local, a)
	assert.Ok(t, err)
	assert.Cond(t, a.clearedAndAdded, "a failed FlushTextUpdates must fall back to full overwrite")
}

func TestReconcileAppliesOpcodesInReverseIndexOrder(t *testing.T) {
	remote := []*block.Block{textBlock("r1", "a"), textBlock("r2", "b")}
	local := []*block.Block{textBlock("", "a"), textBlock("", "x"), textBlock("", "c")}

	a := &fakeApplier{}
	err := Reconcile(context.Background(), DefaultConfig(), remote, local, a)
	assert.Ok(t, err)
	assert.Cond(t, !a.clearedAndAdded, "small edit scripts must patch in place")

	// Mutating calls (everything but the trailing flush) must run in
	// descending remote-index order so earlier indices are never
	// invalidated by edits applied first (spec §4.9's ordering guarantee).
	var prevStart = -1
	for _, c := range a.calls {
		if c.kind == "flush" {
			continue
		}
		assert.Cond(t, prevStart == -1 || c.start <= prevStart, "expected mutating calls in descending start-index order")
		prevStart = c.start
	}
}
