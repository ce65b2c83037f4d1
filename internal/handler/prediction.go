package handler

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"polypulse/internal/format"
	"polypulse/internal/service"
)

// predictionsShown is the number of predictions /predictions lists.
const predictionsShown = 10

// PredictionHandler handles prediction commands.
type PredictionHandler struct {
	predictionService *service.PredictionService
}

// NewPredictionHandler creates a new PredictionHandler.
func NewPredictionHandler(predictionService *service.PredictionService) *PredictionHandler {
	return &PredictionHandler{predictionService: predictionService}
}

// HandlePredict handles /predict <query> <yes|no>.
func (h *PredictionHandler) HandlePredict(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	query, tail, ok := splitTail(c.Args(), 1)
	if !ok {
		return usage(c, "/predict <market> <yes|no>")
	}

	ctx, cancel := requestContext()
	defer cancel()

	p, err := h.predictionService.Predict(ctx, user.ID, query, tail[0])
	if err != nil {
		return replyError(c, "predict", err)
	}
	return reply(c, fmt.Sprintf("🎯 Called %s on %s at %s. You'll be scored when it resolves.",
		p.Side, name(p.MarketName), format.Percent(p.Odds)))
}

// HandlePredictions handles /predictions.
func (h *PredictionHandler) HandlePredictions(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()

	preds, err := h.predictionService.List(ctx, user.ID, predictionsShown)
	if err != nil {
		return replyError(c, "predictions", err)
	}
	return reply(c, renderPredictions(preds))
}

// HandleLeaderboard handles /leaderboard.
func (h *PredictionHandler) HandleLeaderboard(c tele.Context) error {
	ctx, cancel := requestContext()
	defer cancel()

	entries, err := h.predictionService.Leaderboard(ctx)
	if err != nil {
		return replyError(c, "leaderboard", err)
	}
	return reply(c, renderLeaderboard(entries))
}
