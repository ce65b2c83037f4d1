package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"polypulse/internal/format"
	"polypulse/internal/model"
	"polypulse/internal/monitor"
	"polypulse/internal/polymarket"
	"polypulse/internal/service"
)

// Listing sizes for preference screens.
const (
	recentWhales = 5
	popularTags  = 10
)

// TagSource lists Polymarket tags.
type TagSource interface {
	Tags(ctx context.Context) ([]polymarket.Tag, error)
}

// PreferenceHandler handles notification settings.
type PreferenceHandler struct {
	preferenceService *service.PreferenceService
	whales            service.WhaleFeed
	tags              TagSource
}

// NewPreferenceHandler creates a new PreferenceHandler. whales and tags may
// be nil.
func NewPreferenceHandler(preferenceService *service.PreferenceService, whales service.WhaleFeed, tags TagSource) *PreferenceHandler {
	return &PreferenceHandler{preferenceService: preferenceService, whales: whales, tags: tags}
}

// HandleWhales handles /whales [on|off|<min usd>].
func (h *PreferenceHandler) HandleWhales(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	args := c.Args()

	ctx, cancel := requestContext()
	defer cancel()

	if len(args) == 0 {
		p, err := h.preferenceService.Whale(ctx, user.ID, chatID(c))
		if err != nil {
			return replyError(c, "whales", err)
		}
		return reply(c, renderWhalePref(p, h.recentWhales(ctx)))
	}
	if len(args) > 1 {
		return usage(c, "/whales [on|off|<min usd>]")
	}

	enabled, ok := isOn(args[0])
	minUSD := 0.0
	if !ok {
		v, err := parseUSD(args[0])
		if err != nil {
			return replyError(c, "whales", err)
		}
		enabled, minUSD = true, v
	}

	p, err := h.preferenceService.SetWhale(ctx, user.ID, chatID(c), enabled, minUSD)
	if err != nil {
		return replyError(c, "whales", err)
	}
	if !p.Enabled {
		return reply(c, "🐋 Whale alerts off.")
	}
	return reply(c, fmt.Sprintf("🐋 Whale alerts on for trades of %s or more.", format.USD(p.MinUSD)))
}

func (h *PreferenceHandler) recentWhales(ctx context.Context) []*model.WhaleEvent {
	if h.whales == nil {
		return nil
	}
	events, err := h.whales.Recent(ctx, time.Now().Add(-24*time.Hour), recentWhales)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load recent whale events")
		return nil
	}
	return events
}

// HandleBriefing handles /briefing [on|off|<hour> [tz]|filter <categories|clear>].
func (h *PreferenceHandler) HandleBriefing(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	args := c.Args()

	ctx, cancel := requestContext()
	defer cancel()

	var upd service.BriefingUpdate
	switch {
	case len(args) == 0:
		p, err := h.preferenceService.Briefing(ctx, user.ID, chatID(c))
		if err != nil {
			return replyError(c, "briefing", err)
		}
		return reply(c, renderBriefingPref(p))

	case strings.EqualFold(args[0], "filter"):
		if len(args) < 2 {
			return usage(c, "/briefing filter <categories|clear>")
		}
		filter := args[1:]
		if len(filter) == 1 && strings.EqualFold(filter[0], "clear") {
			filter = []string{}
		}
		upd.Filter = filter

	default:
		if on, ok := isOn(args[0]); ok && len(args) == 1 {
			upd.Enabled = &on
			break
		}
		hour, err := strconv.Atoi(strings.TrimSuffix(args[0], ":00"))
		if err != nil || len(args) > 2 {
			return usage(c, "/briefing [on|off|<hour> [timezone]|filter <categories|clear>]")
		}
		upd.Hour = &hour
		if len(args) == 2 {
			upd.Timezone = &args[1]
		}
	}

	p, err := h.preferenceService.SetBriefing(ctx, user.ID, chatID(c), upd)
	if err != nil {
		return replyError(c, "briefing", err)
	}
	return reply(c, renderBriefingPref(p))
}

// HandleSmart handles /smart [<type> <on|off> [categories...]].
func (h *PreferenceHandler) HandleSmart(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	args := c.Args()

	ctx, cancel := requestContext()
	defer cancel()

	if len(args) == 0 {
		prefs, err := h.preferenceService.Smart(ctx, user.ID, chatID(c))
		if err != nil {
			return replyError(c, "smart", err)
		}
		return reply(c, renderSmartPrefs(prefs))
	}
	if len(args) < 2 {
		return usage(c, "/smart <volume|momentum|new> <on|off> [categories]")
	}
	enabled, ok := isOn(args[1])
	if !ok {
		return usage(c, "/smart <volume|momentum|new> <on|off> [categories]")
	}

	p, err := h.preferenceService.SetSmart(ctx, user.ID, chatID(c), args[0], enabled, args[2:])
	if err != nil {
		return replyError(c, "smart", err)
	}
	state := "off"
	if p.Enabled {
		state = "on"
	}
	msg := fmt.Sprintf("🧠 %s alerts %s.", smartLabels[p.AlertType], state)
	if cats := p.DecodeParams().Categories; p.Enabled && len(cats) > 0 {
		msg += " Categories: " + strings.Join(cats, ", ") + "."
	}
	return reply(c, msg)
}

// HandleCategories handles /categories [add|remove <category>].
func (h *PreferenceHandler) HandleCategories(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	args := c.Args()

	ctx, cancel := requestContext()
	defer cancel()

	if len(args) == 0 {
		followed, err := h.preferenceService.Categories(ctx, user.ID)
		if err != nil {
			return replyError(c, "categories", err)
		}
		return reply(c, renderCategories(followed, monitor.Categories, h.popularTags(ctx)))
	}
	if len(args) != 2 {
		return usage(c, "/categories [add|remove <category>]")
	}

	switch strings.ToLower(args[0]) {
	case "add", "follow":
		category, err := h.preferenceService.FollowCategory(ctx, user.ID, args[1])
		if err != nil {
			return replyError(c, "categories", err)
		}
		return reply(c, fmt.Sprintf("🏷 Following %s.", category))
	case "remove", "unfollow":
		removed, err := h.preferenceService.UnfollowCategory(ctx, user.ID, args[1])
		if err != nil {
			return replyError(c, "categories", err)
		}
		if !removed {
			return reply(c, "You don't follow that category.")
		}
		return reply(c, "🏷 Unfollowed "+strings.ToLower(args[1])+".")
	}
	return usage(c, "/categories [add|remove <category>]")
}

func (h *PreferenceHandler) popularTags(ctx context.Context) []polymarket.Tag {
	if h.tags == nil {
		return nil
	}
	tags, err := h.tags.Tags(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load tags")
		return nil
	}
	if len(tags) > popularTags {
		tags = tags[:popularTags]
	}
	return tags
}
