package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/lot-watch/internal/api"
	"github.com/rickgao/lot-watch/internal/bidding"
	"github.com/rickgao/lot-watch/internal/config"
	"github.com/rickgao/lot-watch/internal/connection"
	"github.com/rickgao/lot-watch/internal/lotview"
	"github.com/rickgao/lot-watch/internal/model"
	"github.com/rickgao/lot-watch/internal/refresh"
	"github.com/rickgao/lot-watch/internal/registration"
	"github.com/rickgao/lot-watch/internal/storage"
	"github.com/rickgao/lot-watch/internal/version"
	"github.com/rickgao/lot-watch/internal/writer"
)

// debugLotLimit caps /debug/lots output.
const debugLotLimit = 100

type server struct {
	cfg       *config.LotWatchConfig
	refresher *refresh.Refresher
	registry  *registration.Registry
	transport *connection.Transport
	submitter *bidding.Submitter
	pool      *pgxpool.Pool
	archive   *writer.ObservationWriter
	store     storage.QueryStore
	logger    *slog.Logger
}

// lotSummary is one lot in /debug/lots.
type lotSummary struct {
	RowID         int64   `json:"row_id"`
	LotNumber     string  `json:"lot_number"`
	Title         string  `json:"title,omitempty"`
	Status        string  `json:"status,omitempty"`
	CurrentPrice  float64 `json:"current_price,omitempty"`
	AuctionID     int64   `json:"auction_id,omitempty"`
	Placeholder   bool    `json:"placeholder,omitempty"`
	Group         string  `json:"group,omitempty"`
	NewAuction    bool    `json:"new_auction,omitempty"`
	NewDate       bool    `json:"new_date,omitempty"`
	LastInAuction bool    `json:"last_in_auction,omitempty"`
	BulkBid       bool    `json:"bulk_bid,omitempty"`
}

// bulkMark marks a lot for the next bulk submission.
type bulkMark struct {
	RowID  int64   `json:"row_id"`
	Amount float64 `json:"amount"`
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /debug/lots", s.debugLots)
	mux.HandleFunc("GET /debug/registrations", s.debugRegistrations)
	mux.HandleFunc("POST /lots/load", s.loadLots)
	mux.HandleFunc("POST /lots/query", s.setQuery)
	mux.HandleFunc("POST /bids/mark", s.markBids)
	mux.HandleFunc("POST /bids/submit", s.submitBids)
	return mux
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Version    version.Info   `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.Get(),
		Components: make(map[string]any),
	}

	stats := s.refresher.Stats()
	health.Components["refresher"] = map[string]any{
		"applied_seq":  stats.AppliedSeq,
		"refreshes":    stats.Refreshes,
		"stale":        stats.Stale,
		"errors":       stats.Errors,
		"last_refresh": stats.LastRefresh,
		"timer_armed":  stats.TimerArmed,
	}

	if s.cfg.Push.URL != "" {
		health.Components["push"] = map[string]any{
			"available":        s.transport.Available(),
			"connected":        s.transport.Connected(),
			"heartbeat_lagged": s.transport.HeartbeatLagged(),
			"client_id":        s.transport.ClientID(),
		}
		if !s.transport.Available() {
			health.Status = "degraded"
		}
	}

	health.Components["registrations"] = s.registry.Len()

	if s.pool != nil {
		if err := s.pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["archive"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["archive"] = s.archive.Stats()
		}
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *server) debugLots(w http.ResponseWriter, r *http.Request) {
	var (
		lots  []lotSummary
		total int
	)
	err := s.refresher.View(r.Context(), func(visible, _ *model.LotCollection) {
		grouper := lotview.NewGrouper(s.registry, s.cfg.Bidding.GroupBidding)
		total = visible.Len()
		for _, lot := range visible.ResultPage {
			if lot == nil {
				continue
			}
			if len(lots) == debugLotLimit {
				break
			}
			summary := lotSummary{
				RowID:         lot.RowID,
				LotNumber:     lot.LotNumber + lot.LotNumberExtension,
				Title:         lot.Title,
				Status:        lot.Status,
				CurrentPrice:  lot.CurrentPrice,
				AuctionID:     lot.AuctionID(),
				Placeholder:   lot.IsPlaceholder(),
				NewAuction:    lotview.IsLotInNewAuction(lot, visible),
				NewDate:       lotview.IsLotInNewDate(lot, visible),
				LastInAuction: lotview.IsLastLotInAuction(lot, visible),
				BulkBid:       lot.WebModule != nil && lot.WebModule.BulkBid,
			}
			if g := grouper.LotGroup(lot); g != nil {
				summary.Group = g.Label
			}
			lots = append(lots, summary)
		}
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":   total,
		"showing": len(lots),
		"lots":    lots,
	})
}

func (s *server) debugRegistrations(w http.ResponseWriter, _ *http.Request) {
	regs := s.registry.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":         len(regs),
		"registrations": regs,
	})
}

// loadLots fills the visible window around ?position=.
func (s *server) loadLots(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(r.URL.Query().Get("position"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("position must be an integer"))
		return
	}
	loaded, err := s.refresher.Load(r.Context(), position)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"loaded": loaded})
}

// setQuery replaces the watched query with the filters in the body, a JSON
// object of string values. The new query is saved for the next start.
func (s *server) setQuery(w http.ResponseWriter, r *http.Request) {
	var params api.QueryParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if params == nil {
		s.writeError(w, http.StatusBadRequest, errors.New("query must be a JSON object"))
		return
	}

	if err := s.refresher.SetQuery(r.Context(), params); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if s.store != nil {
		if err := s.store.SaveQuery(r.Context(), params); err != nil {
			s.logger.Warn("failed to save query", "error", err)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"query": params})
}

func (s *server) markBids(w http.ResponseWriter, r *http.Request) {
	var marks []bulkMark
	if err := json.NewDecoder(r.Body).Decode(&marks); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	var marked int
	err := s.refresher.View(r.Context(), func(visible, _ *model.LotCollection) {
		for _, m := range marks {
			lot, _ := visible.Find(m.RowID)
			if lot == nil || lot.IsPlaceholder() {
				continue
			}
			if lot.WebModule == nil {
				lot.WebModule = &model.WebModule{}
			}
			lot.WebModule.BulkBid = m.Amount != 0
			lot.WebModule.AbsenteeBid.Amount = m.Amount
			marked++
		}
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
}

func (s *server) submitBids(w http.ResponseWriter, r *http.Request) {
	auctionID := s.cfg.Query.AuctionID
	if v := r.URL.Query().Get("auction_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errors.New("auction_id must be an integer"))
			return
		}
		auctionID = id
	}
	if auctionID == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("auction_id is required"))
		return
	}

	var visible *model.LotCollection
	if err := s.refresher.View(r.Context(), func(v, _ *model.LotCollection) { visible = v }); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	res, err := s.submitter.Submit(r.Context(), auctionID, visible)
	switch {
	case errors.Is(err, bidding.ErrNoBulkBids):
		s.writeError(w, http.StatusBadRequest, err)
	case err != nil && res.Accepted == 0 && res.Refetched == 0:
		s.writeError(w, http.StatusBadGateway, err)
	case err != nil:
		s.writeJSON(w, http.StatusMultiStatus, map[string]any{"result": res, "error": err.Error()})
	default:
		s.writeJSON(w, http.StatusOK, map[string]any{"result": res})
	}
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
