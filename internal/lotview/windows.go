package lotview

import (
	"github.com/samber/lo"

	"github.com/rickgao/lot-watch/internal/model"
)

// Lazy load window sizes.
const (
	ListOffset         = 10
	GridOffset         = 30
	LargeCatalogOffset = 100

	// LargeCatalogBrand shows large pages in one go.
	LargeCatalogBrand = "sagafurs"
)

// LazyLoadOffset returns how many lots are loaded around the lot in view,
// which is also the initial size of the visible window.
func LazyLoadOffset(view, brand string) int {
	if brand == LargeCatalogBrand {
		return LargeCatalogOffset
	}
	if view == "grid" {
		return GridOffset
	}
	return ListOffset
}

// Placeholder returns the lightweight stand-in for lot.
func Placeholder(lot *model.LotRecord) *model.LotRecord {
	p := &model.LotRecord{
		RowID:              lot.RowID,
		LotNumber:          lot.LotNumber,
		LotNumberExtension: lot.LotNumberExtension,
	}
	if lot.Auction != nil {
		p.Auction = &model.AuctionRef{RowID: lot.Auction.RowID}
	}
	p.SetAnnotation("_placeholder", true)
	return p
}

// PlaceholderList returns placeholders for lots[start:]. Lots without an
// auction are left out.
func PlaceholderList(lots []*model.LotRecord, start int) []*model.LotRecord {
	if start < 0 {
		start = 0
	}
	if start >= len(lots) {
		return nil
	}
	return lo.FilterMap(lots[start:], func(l *model.LotRecord, _ int) (*model.LotRecord, bool) {
		if l == nil || l.Auction == nil {
			return nil, false
		}
		return Placeholder(l), true
	})
}

// SplitWindows builds the visible window for a full page: copies of the
// first offset lots followed by placeholders for the rest. The returned
// window shares no record with all.
func SplitWindows(all *model.LotCollection, offset int) *model.LotCollection {
	visible := &model.LotCollection{}
	if all == nil {
		return visible
	}
	visible.QueryInfo = all.QueryInfo

	n := min(max(offset, 0), len(all.ResultPage))
	visible.ResultPage = make([]*model.LotRecord, 0, len(all.ResultPage))
	for _, lot := range all.ResultPage[:n] {
		visible.ResultPage = append(visible.ResultPage, lot.Clone())
	}
	visible.ResultPage = append(visible.ResultPage, PlaceholderList(all.ResultPage, n)...)
	return visible
}

// FillWindow replaces placeholders of visible within offset positions of
// center with copies of the same lots from full. It returns the number of
// lots loaded.
func FillWindow(visible, full *model.LotCollection, center, offset int) int {
	if visible == nil || full == nil || len(visible.ResultPage) == 0 {
		return 0
	}

	start := max(center-offset, 0)
	end := min(center+offset, len(visible.ResultPage)-1)

	loaded := 0
	for i := start; i <= end; i++ {
		lot := visible.ResultPage[i]
		if lot == nil || !lot.IsPlaceholder() {
			continue
		}
		src, _ := full.Find(lot.RowID)
		if src == nil {
			continue
		}
		visible.ResultPage[i] = src.Clone()
		loaded++
	}
	return loaded
}
