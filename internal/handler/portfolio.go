package handler

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"polypulse/internal/format"
	"polypulse/internal/service"
)

// PortfolioHandler handles watchlist and position commands.
type PortfolioHandler struct {
	watchlistService *service.WatchlistService
	portfolioService *service.PortfolioService
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(watchlistService *service.WatchlistService, portfolioService *service.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{watchlistService: watchlistService, portfolioService: portfolioService}
}

// HandleWatch handles /watch <query>.
func (h *PortfolioHandler) HandleWatch(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	query := strings.Join(c.Args(), " ")
	if query == "" {
		return usage(c, "/watch <market>")
	}

	ctx, cancel := requestContext()
	defer cancel()

	item, err := h.watchlistService.Add(ctx, user.ID, query)
	if err != nil {
		return replyError(c, "watch", err)
	}
	return reply(c, fmt.Sprintf("👀 Watching %s at %s.", name(item.MarketName), format.PercentPrecise(item.PriceAtAdd)))
}

// HandleUnwatch handles /unwatch <query>.
func (h *PortfolioHandler) HandleUnwatch(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	query := strings.Join(c.Args(), " ")
	if query == "" {
		return usage(c, "/unwatch <market>")
	}

	ctx, cancel := requestContext()
	defer cancel()

	item, err := h.watchlistService.Remove(ctx, user.ID, query)
	if err != nil {
		return replyError(c, "unwatch", err)
	}
	return reply(c, fmt.Sprintf("Removed %s from your watchlist.", name(item.MarketName)))
}

// HandleWatchlist handles /watchlist.
func (h *PortfolioHandler) HandleWatchlist(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()

	entries, err := h.watchlistService.List(ctx, user.ID)
	if err != nil {
		return replyError(c, "watchlist", err)
	}
	return reply(c, renderWatchlist(entries))
}

// HandleBuy handles /buy <query> <yes|no> <shares> <price>.
func (h *PortfolioHandler) HandleBuy(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	query, tail, ok := splitTail(c.Args(), 3)
	if !ok {
		return usage(c, "/buy <market> <yes|no> <shares> <price>\nExample: /buy bitcoin 100k yes 200 0.42")
	}
	shares, err := strconv.ParseFloat(strings.ReplaceAll(tail[1], ",", ""), 64)
	if err != nil {
		return replyError(c, "buy", service.ErrInvalidAmount)
	}

	ctx, cancel := requestContext()
	defer cancel()

	pos, err := h.portfolioService.Buy(ctx, user.ID, query, tail[0], shares, tail[2])
	if err != nil {
		return replyError(c, "buy", err)
	}
	return reply(c, fmt.Sprintf("💼 Recorded %s %.2f shares of %s at %s.",
		pos.Side, pos.Shares, name(pos.MarketName), format.PercentPrecise(pos.EntryPrice)))
}

// HandleSell handles /sell <query>.
func (h *PortfolioHandler) HandleSell(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	query := strings.Join(c.Args(), " ")
	if query == "" {
		return usage(c, "/sell <market>")
	}

	ctx, cancel := requestContext()
	defer cancel()

	marketName, err := h.portfolioService.Sell(ctx, user.ID, query)
	if err != nil {
		return replyError(c, "sell", err)
	}
	return reply(c, fmt.Sprintf("Closed your position in %s.", name(marketName)))
}

// HandlePortfolio handles /portfolio.
func (h *PortfolioHandler) HandlePortfolio(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()

	p, err := h.portfolioService.Summary(ctx, user.ID)
	if err != nil {
		return replyError(c, "portfolio", err)
	}
	return reply(c, renderPortfolio(p))
}
