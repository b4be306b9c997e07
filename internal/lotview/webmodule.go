package lotview

import "github.com/rickgao/lot-watch/internal/model"

// PrepareLots gives every lot without one a web module whose bid form is
// prefilled with the bidder's standing absentee bid. It fits
// reconcile.WithAfterLots.
func PrepareLots(lots []*model.LotRecord) []*model.LotRecord {
	for _, lot := range lots {
		if lot == nil || lot.WebModule != nil {
			continue
		}
		wm := &model.WebModule{}
		if b := lot.AbsenteeBid; b != nil {
			wm.AbsenteeBid.Amount = b.MaxBid
			if b.MaxBid == 0 {
				wm.AbsenteeBid.Amount = b.MaxBidPercentage
			}
		}
		lot.WebModule = wm
	}
	return lots
}
