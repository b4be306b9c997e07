package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/lot-watch/internal/api"
	"github.com/rickgao/lot-watch/internal/config"
	"github.com/rickgao/lot-watch/internal/model"
	"github.com/rickgao/lot-watch/internal/reconcile"
	"github.com/rickgao/lot-watch/internal/refresh"
	"github.com/rickgao/lot-watch/internal/registration"
	"github.com/rickgao/lot-watch/internal/storage"
)

func TestInitialAuction(t *testing.T) {
	c := &model.LotCollection{ResultPage: []*model.LotRecord{
		{RowID: 1},
		{RowID: 2, Auction: &model.AuctionRef{RowID: 5, Title: "Spring"}},
		{RowID: 3, Auction: &model.AuctionRef{RowID: 9, Title: "Fall"}},
	}}

	if got := initialAuction(0, c); got == nil || got.RowID != 5 {
		t.Errorf("initialAuction(0) = %v, want auction 5", got)
	}
	if got := initialAuction(9, c); got == nil || got.Title != "Fall" {
		t.Errorf("initialAuction(9) = %v, want auction 9", got)
	}
	if got := initialAuction(12, c); got == nil || got.RowID != 12 || got.Title != "" {
		t.Errorf("initialAuction(12) = %v, want bare auction 12", got)
	}
	if got := initialAuction(0, &model.LotCollection{}); got != nil {
		t.Errorf("initialAuction on empty page = %v, want nil", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("configured query is saved", func(t *testing.T) {
		store := storage.NewMemory()
		store.SaveQuery(ctx, map[string]string{"auction_id": "3", "page": "4"})

		got := resolveQuery(ctx, store, config.QueryConfig{AuctionID: 9}, discardLogger())
		if got["auction_id"] != "9" || got["page"] != "1" {
			t.Errorf("query = %v, want auction 9 page 1", got)
		}
		saved, err := store.LastQuery(ctx)
		if err != nil {
			t.Fatalf("LastQuery() error = %v", err)
		}
		if saved["auction_id"] != "9" {
			t.Errorf("saved auction_id = %q, want 9", saved["auction_id"])
		}
	})

	t.Run("empty config restores last query", func(t *testing.T) {
		store := storage.NewMemory()
		store.SaveQuery(ctx, map[string]string{"auction_id": "3", "page": "4", "status": "open"})

		got := resolveQuery(ctx, store, config.QueryConfig{}, discardLogger())
		if got["auction_id"] != "3" || got.Page() != 4 || got["status"] != "open" {
			t.Errorf("query = %v, want the saved query", got)
		}
		if id := queryAuctionID(got); id != 3 {
			t.Errorf("queryAuctionID() = %d, want 3", id)
		}
	})

	t.Run("empty config and nothing saved", func(t *testing.T) {
		store := storage.NewMemory()

		got := resolveQuery(ctx, store, config.QueryConfig{}, discardLogger())
		if len(got) != 1 || got["page"] != "1" {
			t.Errorf("query = %v, want page 1 only", got)
		}
		if id := queryAuctionID(got); id != 0 {
			t.Errorf("queryAuctionID() = %d, want 0", id)
		}
		if _, err := store.LastQuery(ctx); err != nil {
			t.Errorf("LastQuery() error = %v, want saved default", err)
		}
	})
}

// pagedFetcher returns two lots titled after the requested page.
type pagedFetcher struct{}

func (pagedFetcher) FetchLots(_ context.Context, params api.QueryParams) (*model.LotCollection, error) {
	title := "page" + strconv.Itoa(params.Page())
	first := int64(params.Page() * 10)
	return &model.LotCollection{
		ResultPage: []*model.LotRecord{
			{RowID: first, LotNumber: "1", Title: title, Status: "open"},
			{RowID: first + 1, LotNumber: "2", Title: title, Status: "open"},
		},
		QueryInfo: model.QueryInfo{TotalNumResults: 2, Page: params.Page(), Pages: 1, PageSize: 25},
	}, nil
}

func TestServerSetQuery(t *testing.T) {
	ctx := context.Background()
	registry := registration.New()
	refresher := refresh.New(refresh.Config{Interval: time.Hour, Query: api.QueryParams{"page": "1"}},
		pagedFetcher{}, reconcile.New(registry), discardLogger())

	initial, _ := pagedFetcher{}.FetchLots(ctx, api.QueryParams{"page": "1"})
	if err := refresher.Init(ctx, initial, nil); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := refresher.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { stopWithTimeout(discardLogger(), "refresher", refresher.Stop) })

	store := storage.NewMemory()
	srv := &server{refresher: refresher, registry: registry, store: store, logger: discardLogger()}
	handler := srv.handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lots/query", strings.NewReader(`{"page":"2"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	titles := func() []string {
		var out []string
		refresher.View(ctx, func(visible, _ *model.LotCollection) {
			for _, lot := range visible.ResultPage {
				out = append(out, lot.Title)
			}
		})
		return out
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := titles(); len(got) == 2 && got[0] == "page2" && got[1] == "page2" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := titles(); len(got) != 2 || got[0] != "page2" || got[1] != "page2" {
		t.Errorf("titles = %v, want [page2 page2]", got)
	}

	saved, err := store.LastQuery(ctx)
	if err != nil {
		t.Fatalf("LastQuery() error = %v", err)
	}
	if saved["page"] != "2" {
		t.Errorf("saved page = %q, want 2", saved["page"])
	}

	for _, body := range []string{`[1,2]`, `null`, `{"page":`} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lots/query", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}
