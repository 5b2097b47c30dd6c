package gateway

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/cedarlabs/vaultsync/internal/block"
)

// Document is a handle bound to one remote document; every C1 document
// operation spec §4.1 lists is a method on it so callers don't have to
// thread document_id through every call.
type Document struct {
	client     *Client
	documentID string
	pending    []pendingUpdate
}

type pendingUpdate struct {
	blockID  string
	elements []block.Element
}

// CreateDocument creates a new document under parent and returns a
// bound Document handle.
func (c *Client) CreateDocument(ctx context.Context, parent, title string) (*Document, error) {
	resp, err := c.call(ctx, Request{
		Method: "POST",
		Path:   "/open-apis/docx/v1/documents",
		Body:   map[string]any{"folder_token": parent, "title": title},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create document")
	}
	id, _ := resp.Data.(map[string]any)["document_id"].(string)
	return &Document{client: c, documentID: id}, nil
}

// Open binds to an existing remote document by id.
func (c *Client) Open(documentID string) *Document {
	return &Document{client: c, documentID: documentID}
}

// DocumentID returns the remote token this handle is bound to.
func (d *Document) DocumentID() string { return d.documentID }

// ListBlockChildren returns the document's direct top-level block
// children, decoded into a block.Block tree one level deep (spec §4.1
// "list_document_blocks / get_block_children").
func (d *Document) ListBlockChildren(ctx context.Context) ([]*block.Block, error) {
	resp, err := d.client.call(ctx, Request{
		Method: "GET",
		Path:   fmt.Sprintf("/open-apis/docx/v1/documents/%s/blocks/%s/children", d.documentID, d.documentID),
	})
	if err != nil {
		return nil, errors.Wrap(err, "list block children")
	}
	items, _ := resp.Data.(map[string]any)["items"].([]any)
	out := make([]*block.Block, 0, len(items))
	for _, raw := range items {
		payload, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, fromBlockPayload(blockPayload(payload)))
	}
	return out, nil
}

// AddBlocks implements diff.Applier: insert local[...] as children of
// the document starting at parentIndex.
func (d *Document) AddBlocks(ctx context.Context, parentIndex int, blocks []*block.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	payload := make([]blockPayload, len(blocks))
	for i, b := range blocks {
		payload[i] = toBlockPayload(b)
	}
	_, err := d.client.call(ctx, Request{
		Method: "POST",
		Path:   fmt.Sprintf("/open-apis/docx/v1/documents/%s/blocks/%s/children", d.documentID, d.documentID),
		Body: map[string]any{
			"index":    parentIndex,
			"children": payload,
		},
	})
	return errors.Wrap(err, "add blocks")
}

// DeleteBlockChildren implements diff.Applier.
func (d *Document) DeleteBlockChildren(ctx context.Context, startIndex, endIndex int) error {
	_, err := d.client.call(ctx, Request{
		Method: "DELETE",
		Path:   fmt.Sprintf("/open-apis/docx/v1/documents/%s/blocks/%s/children/batch_delete", d.documentID, d.documentID),
		Body:   map[string]any{"start_index": startIndex, "end_index": endIndex},
	})
	return errors.Wrap(err, "delete block children")
}

// UpdateTextElements implements diff.Applier: it queues the update
// rather than calling the network immediately, since spec §4.5 collects
// in-place replacements into one batch_update_blocks call per pass.
func (d *Document) UpdateTextElements(ctx context.Context, remoteBlockID string, elements []block.Element) error {
	d.pending = append(d.pending, pendingUpdate{blockID: remoteBlockID, elements: elements})
	return nil
}

// FlushTextUpdates implements diff.Applier: sends every queued
// UpdateTextElements call as one batch_update_blocks request.
func (d *Document) FlushTextUpdates(ctx context.Context) error {
	if len(d.pending) == 0 {
		return nil
	}
	updates := make([]map[string]any, len(d.pending))
	for i, u := range d.pending {
		updates[i] = map[string]any{
			"block_id": u.blockID,
			"replace_text_elements": map[string]any{
				"elements": toElementPayloads(u.elements),
			},
		}
	}
	_, err := d.client.call(ctx, Request{
		Method: "PATCH",
		Path:   fmt.Sprintf("/open-apis/docx/v1/documents/%s/blocks/batch_update", d.documentID),
		Body:   map[string]any{"requests": updates},
	})
	d.pending = nil
	return errors.Wrap(err, "batch update blocks")
}

// ClearDocument implements diff.Applier.
func (d *Document) ClearDocument(ctx context.Context) error {
	children, err := d.ListBlockChildren(ctx)
	if err != nil {
		return errors.Wrap(err, "list blocks before clear")
	}
	if len(children) == 0 {
		return nil
	}
	return d.DeleteBlockChildren(ctx, 0, len(children))
}
