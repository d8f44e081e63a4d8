package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"moex-panic-scanner/internal/moex"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().In(s.cal.Location()).Format(time.RFC3339),
	})
}

type scanRequest struct {
	Instruments []string `json:"instruments"`
	RealTime    bool     `json:"real_time"`
}

// handleScan runs an on-demand scan over the requested instruments, or the
// configured watchlist when the request names none.
func (s *Server) handleScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	instruments := req.Instruments
	if len(instruments) == 0 {
		instruments = s.scanner.Config().Instruments
	}
	if len(instruments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no instruments to scan"})
		return
	}

	result := s.scanner.ScanAll(c.Request.Context(), instruments, req.RealTime)
	c.JSON(http.StatusOK, toWireScanResult(result, s.cal.Location()))
}

// handleOverheat reports how far an instrument's RSI sits from the midline,
// scaled to a 0-100 percentage, together with its latest stored signal.
func (s *Server) handleOverheat(c *gin.Context) {
	ticker := strings.ToUpper(c.Param("ticker"))

	w, err := s.scanner.PrepareWindow(c.Request.Context(), ticker, true)
	if err != nil {
		if strings.Contains(err.Error(), "insufficient candles") {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "not enough price history"})
			return
		}
		s.upstreamError(c, err)
		return
	}

	zone := "neutral"
	switch {
	case w.RSI14 <= 35:
		zone = "oversold"
	case w.RSI14 >= 65:
		zone = "overbought"
	}

	resp := gin.H{
		"instrument":   ticker,
		"overheat_pct": OverheatPct(w.RSI14),
		"rsi14":        w.RSI14,
		"zone":         zone,
		"last_price":   w.LastPrice,
		"volume_ratio": w.VolumeRatio,
	}

	if last, err := s.repo.LastSignal(c.Request.Context(), ticker); err != nil {
		s.log.Warn().Err(err).Str("instrument", ticker).Msg("last signal lookup failed")
	} else if last != nil {
		sig := toWireSignal(last, s.cal.Location())
		resp["last_signal"] = sig
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSignalHistory(c *gin.Context) {
	instrument := strings.ToUpper(c.Query("instrument"))
	days := intQuery(c, "days", 7)
	limit := intQuery(c, "limit", 50)

	signals, err := s.repo.SignalHistory(c.Request.Context(), instrument, days, limit)
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(signals),
		"signals": toWireSignals(signals, s.cal.Location()),
	})
}

func (s *Server) handleTopSignals(c *gin.Context) {
	period := c.DefaultQuery("period", "today")
	limit := intQuery(c, "limit", 10)

	signals, err := s.repo.TopSignals(c.Request.Context(), period, limit)
	if err != nil {
		if strings.Contains(err.Error(), "unknown period") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period must be one of today, yesterday, week, month"})
			return
		}
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"period":  period,
		"count":   len(signals),
		"signals": toWireSignals(signals, s.cal.Location()),
	})
}

func (s *Server) handlePanicSignals(c *gin.Context) {
	days := intQuery(c, "days", 7)
	limit := intQuery(c, "limit", 50)

	signals, err := s.repo.PanicSignals(c.Request.Context(), days, limit)
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(signals),
		"signals": toWireSignals(signals, s.cal.Location()),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	days := intQuery(c, "days", 7)

	stats, err := s.repo.Stats(c.Request.Context(), days)
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleCandles(c *gin.Context) {
	ticker := strings.ToUpper(c.Query("ticker"))
	if ticker == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker is required"})
		return
	}
	interval := c.DefaultQuery("interval", moex.IntervalDay)
	if moex.IntervalDuration(interval) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported interval"})
		return
	}
	count := intQuery(c, "count", 60)
	if count < 1 || count > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be between 1 and 500"})
		return
	}

	candles, err := s.provider.Candles(c.Request.Context(), ticker, interval, count)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"instrument": ticker,
		"interval":   interval,
		"count":      len(candles),
		"candles":    candles,
	})
}

func (s *Server) handlePrices(c *gin.Context) {
	raw := c.Query("tickers")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tickers is required"})
		return
	}

	prices := make(map[string]interface{})
	for _, ticker := range strings.Split(raw, ",") {
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if ticker == "" {
			continue
		}
		price, err := s.provider.LastPrice(c.Request.Context(), ticker)
		if err != nil {
			prices[ticker] = gin.H{"error": "unavailable"}
			continue
		}
		prices[ticker] = gin.H{"price": price}
	}
	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

func (s *Server) handleOrderBook(c *gin.Context) {
	ticker := strings.ToUpper(c.Param("ticker"))
	depth := intQuery(c, "depth", 10)
	if depth < 1 || depth > 50 {
		depth = 10
	}

	book, err := s.provider.OrderBook(c.Request.Context(), ticker, depth)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *Server) handleMarketStatus(c *gin.Context) {
	now := s.cal.Now()
	open, reason := s.cal.IsMarketOpenNow()
	c.JSON(http.StatusOK, gin.H{
		"open":          open,
		"reason":        reason,
		"active_zone":   s.cal.InActiveZone(now),
		"short_session": s.cal.IsShortSession(now),
		"exchange_time": now.Format(time.RFC3339),
	})
}

type ignoreRequest struct {
	Instrument    string  `json:"instrument"`
	DurationHours float64 `json:"duration_hours"`
}

// handleIgnore excludes an instrument from scans. The exclusion is held in
// memory and lapses on its own.
func (s *Server) handleIgnore(c *gin.Context) {
	var req ignoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.Instrument = strings.ToUpper(strings.TrimSpace(req.Instrument))
	if req.Instrument == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instrument is required"})
		return
	}
	if req.DurationHours <= 0 {
		req.DurationHours = 24
	}

	until := s.scanner.IgnoreInstrument(req.Instrument, time.Duration(req.DurationHours*float64(time.Hour)))
	c.JSON(http.StatusOK, gin.H{
		"instrument":    req.Instrument,
		"ignored_until": until.In(s.cal.Location()).Format(time.RFC3339),
	})
}

func (s *Server) handleHolidaysReload(c *gin.Context) {
	if err := s.cal.Reload(); err != nil {
		s.log.Error().Err(err).Msg("holiday calendar reload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "calendar reload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// upstreamError maps adapter failures onto generic responses. Raw upstream
// error text never crosses the API boundary.
func (s *Server) upstreamError(c *gin.Context, err error) {
	s.log.Warn().Err(err).Str("path", c.FullPath()).Msg("upstream request failed")
	switch {
	case errors.Is(err, moex.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "instrument not found"})
	case errors.Is(err, moex.ErrRateLimited):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market data temporarily unavailable"})
	case errors.Is(err, moex.ErrPermission):
		c.JSON(http.StatusBadGateway, gin.H{"error": "market data access denied"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "market data unavailable"})
	}
}

func (s *Server) storageError(c *gin.Context, err error) {
	s.log.Error().Err(err).Str("path", c.FullPath()).Msg("storage query failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
}
