package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pixperk/tslock/pkg/metrics"
	"github.com/pixperk/tslock/pkg/slots"
	tstime "github.com/pixperk/tslock/pkg/time"
	"github.com/pixperk/tslock/pkg/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// read-only HTTP view of a lease table
type Server struct {
	echo  *echo.Echo
	addr  string
	table *slots.Table
	clock tstime.Source
	log   zerolog.Logger
}

type SlotView struct {
	Index     int         `json:"index"`
	Word      uint64      `json:"word"`
	State     types.State `json:"state"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	Remaining float64     `json:"remaining_seconds"`
}

func NewServer(addr string, table *slots.Table, clock tstime.Source, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:  e,
		addr:  addr,
		table: table,
		clock: clock,
		log:   log,
	}

	e.GET("/healthz", s.health)
	e.GET("/slots", s.listSlots)
	e.GET("/slots/:index", s.getSlot)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// serves until Stop is called or ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.Stop(shutdownCtx); err != nil {
				s.log.Warn().Err(err).Msg("http gateway shutdown")
			}
		case <-stopped:
		}
	}()

	s.log.Info().Str("addr", s.addr).Msg("http gateway listening")
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP gateway: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"slots":  s.table.Len(),
	})
}

func (s *Server) snapshot() ([]SlotView, error) {
	statuses, err := s.table.Snapshot(s.clock)
	if err != nil {
		return nil, err
	}

	held := 0
	views := make([]SlotView, len(statuses))
	for i, st := range statuses {
		views[i] = SlotView{
			Index:     i,
			Word:      st.Word,
			State:     st.State,
			Remaining: st.Remaining().Seconds(),
		}
		if st.State != types.StateUnlocked {
			exp := types.Ticket(st.Word).ExpiresAt().UTC()
			views[i].ExpiresAt = &exp
		}
		if st.State == types.StateHeld {
			held++
		}
	}
	metrics.SlotsHeld.Set(float64(held))
	return views, nil
}

func (s *Server) listSlots(c echo.Context) error {
	views, err := s.snapshot()
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) getSlot(c echo.Context) error {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index must be an integer")
	}
	if idx < 0 || idx >= s.table.Len() {
		return toHTTPError(slots.ErrSlotOutOfRange)
	}

	views, err := s.snapshot()
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, views[idx])
}

// converts domain errors to HTTP errors
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, slots.ErrSlotOutOfRange):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, slots.ErrClosed), errors.Is(err, types.ErrClockUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
