// Package api provides the REST client for the auction lots endpoints.
//
// Endpoints (paths are configurable, defaults shown):
//   - GET  /api/lots?{filters}            lot list page
//   - GET  /api/lot/{id}/{fieldset}       single lot, wrapped in {"response": ...}
//   - POST /api/auctions/{auctionId}/quick-bid   bulk absentee bids
//
// GET requests are retried with jittered exponential backoff on 5xx and
// 429. Bid submissions are never retried.
package api
