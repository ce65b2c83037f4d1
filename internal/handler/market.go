package handler

import (
	"strings"

	tele "gopkg.in/telebot.v3"

	"polypulse/internal/service"
)

// trendingCount is the number of markets /trending lists.
const trendingCount = 10

// MarketHandler handles market lookups.
type MarketHandler struct {
	marketService *service.MarketService
	siteURL       string
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketService *service.MarketService, siteURL string) *MarketHandler {
	return &MarketHandler{marketService: marketService, siteURL: siteURL}
}

// HandlePrice handles /price <query>.
func (h *MarketHandler) HandlePrice(c tele.Context) error {
	query := strings.Join(c.Args(), " ")
	if query == "" {
		return usage(c, "/price <market or id>")
	}

	ctx, cancel := requestContext()
	defer cancel()

	market, err := h.marketService.Resolve(ctx, query)
	if err != nil {
		return replyError(c, "price", err)
	}
	return reply(c, renderMarket(market, h.siteURL))
}

// HandleTrending handles /trending.
func (h *MarketHandler) HandleTrending(c tele.Context) error {
	ctx, cancel := requestContext()
	defer cancel()

	markets, err := h.marketService.Trending(ctx, trendingCount)
	if err != nil {
		return replyError(c, "trending", err)
	}
	return reply(c, renderTrending(markets))
}
