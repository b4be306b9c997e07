package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// SubmitBids posts a bulk absentee bid submission for one auction.
// The request is not retried.
func (c *Client) SubmitBids(ctx context.Context, auctionID int64, bids []BidSubmission) (*BidResponse, error) {
	path := strings.ReplaceAll(c.endpoints.QuickBid, "{auctionId}", strconv.FormatInt(auctionID, 10))

	var resp BidResponse
	if err := c.post(ctx, path, bids, &resp); err != nil {
		return nil, fmt.Errorf("submit bids: %w", err)
	}

	c.logger.Debug("submitted bids",
		"auction_id", auctionID,
		"count", len(bids),
		"results", len(resp.ResultPage),
	)
	return &resp, nil
}
