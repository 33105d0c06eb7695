package handlers

import (
	"net/http"

	"github.com/concave-dev/anchor/internal/chain"
	"github.com/concave-dev/anchor/internal/payload"
	"github.com/concave-dev/anchor/internal/pipeline"
	"github.com/concave-dev/anchor/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// StatsResponse aggregates relay operational state: per-status payload
// counts, attempt statistics, the number of in-flight submissions, and the
// relay account's on-chain balance in wei.
type StatsResponse struct {
	StatusCounts map[string]int      `json:"status_counts"`
	Attempts     *store.AttemptStats `json:"attempts"`
	InFlight     int                 `json:"in_flight"`
	BalanceWei   string              `json:"balance_wei,omitempty"`
	BalanceError string              `json:"balance_error,omitempty"`
}

// HandleStats reports relay-wide operational statistics. A failed balance
// lookup degrades to a note in the response rather than failing the request,
// so the endpoint stays useful while the RPC node is down.
func HandleStats(s store.Store, tracker *pipeline.InFlightTracker, ch chain.Client, from common.Address) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		resp := StatsResponse{
			StatusCounts: make(map[string]int),
			InFlight:     tracker.Len(),
		}

		statuses := []payload.Status{
			payload.StatusPending,
			payload.StatusSubmitted,
			payload.StatusConfirmed,
			payload.StatusFailed,
		}
		for _, status := range statuses {
			count, err := s.Count(ctx, store.Filter{Statuses: []payload.Status{status}})
			if err != nil {
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
				return
			}
			resp.StatusCounts[string(status)] = count
		}

		attempts, err := s.AttemptStats(ctx, store.Filter{})
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		resp.Attempts = attempts

		if ch != nil {
			balance, err := ch.GetBalance(ctx, from)
			if err != nil {
				resp.BalanceError = err.Error()
			} else {
				resp.BalanceWei = balance.String()
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}
