// Package bidding submits bulk absentee bids for the lots a bidder has
// marked on the page and folds the server's answer back into those lots.
package bidding
