package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rickgao/lot-watch/internal/model"
)

// FetchLots fetches one page of the lot list.
func (c *Client) FetchLots(ctx context.Context, params QueryParams) (*model.LotCollection, error) {
	var resp model.LotCollection
	if err := c.get(ctx, c.endpoints.Lots, params.Values(), &resp); err != nil {
		return nil, fmt.Errorf("fetch lots: %w", err)
	}
	return &resp, nil
}

// FetchLot fetches a single lot with the given fieldset.
func (c *Client) FetchLot(ctx context.Context, lotID int64, fieldset string) (*model.LotRecord, error) {
	if fieldset == "" {
		fieldset = FieldsetDetail
	}
	path := strings.TrimSuffix(c.endpoints.Lot, "/") + "/" + strconv.FormatInt(lotID, 10) + "/" + fieldset

	var resp LotResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch lot %d: %w", lotID, err)
	}
	if resp.Response == nil {
		return nil, fmt.Errorf("fetch lot %d: empty response", lotID)
	}
	return resp.Response, nil
}
