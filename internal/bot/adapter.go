// Package bot maintains the persistent socket to the remote automation bot
// and translates its loosely-typed event frames into the overlay's closed
// action vocabulary. Normalization happens entirely at this boundary; the
// reducer layer never sees a duck-typed payload.
package bot

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"streamglass/internal/action"
	"streamglass/internal/models"
)

// frame is the bot's wire envelope. Data stays raw until the event type is
// known; field names inside vary by platform and bot version.
type frame struct {
	Event *struct {
		Source string `json:"source"`
		Type   string `json:"type"`
	} `json:"event"`
	Data map[string]any `json:"data"`
}

// Adapter converts bot frames into actions.
type Adapter struct {
	printer *message.Printer
}

// NewAdapter builds an adapter formatting donation amounts for the given
// locale tag; an empty tag means English.
func NewAdapter(locale string) *Adapter {
	tag := language.English
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			tag = parsed
		}
	}
	return &Adapter{printer: message.NewPrinter(tag)}
}

// Normalize maps one raw frame to an action. The second result reports
// whether the frame produced anything; unknown event types are skipped
// silently since the bot multiplexes far more than the overlay consumes.
func (ad *Adapter) Normalize(raw []byte) (action.Action, bool, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return action.Action{}, false, fmt.Errorf("bot: decode frame: %w", err)
	}
	if f.Event == nil {
		return action.Action{}, false, nil
	}
	platform := normalizePlatform(f.Event.Source)
	kind := strings.ToLower(strings.TrimSpace(f.Event.Type))
	data := f.Data

	switch kind {
	case "follow":
		return action.NewAlertEnqueued(ad.baseAlert(models.AlertFollow, platform, data)), true, nil
	case "sub", "resub", "subscription", "giftsub", "newsponsor":
		alert := ad.baseAlert(models.AlertSub, platform, data)
		alert.Tier = stringField(data, "tier", "subTier", "sub_tier", "plan")
		alert.Months = intField(data, "months", "cumulativeMonths", "cumulative_months")
		alert.IsGift = kind == "giftsub" || boolField(data, "isGift", "is_gift", "gifted")
		alert.GiftRecipient = stringField(data, "recipient", "recipientUser", "recipient_user")
		return action.NewAlertEnqueued(alert), true, nil
	case "cheer", "bits":
		alert := ad.baseAlert(models.AlertCheer, platform, data)
		alert.Amount = moneyField(data, "bits", "amount")
		return action.NewAlertEnqueued(alert), true, nil
	case "raid":
		alert := ad.baseAlert(models.AlertRaid, platform, data)
		alert.Viewers = intField(data, "viewers", "viewerCount", "viewer_count")
		return action.NewAlertEnqueued(alert), true, nil
	case "donation", "tip", "superchat":
		alert := ad.baseAlert(models.AlertDonation, platform, data)
		alert.Amount = moneyField(data, "amount", "value")
		alert.Currency = strings.ToUpper(stringField(data, "currency", "currencyCode", "currency_code"))
		alert.AmountDisplay = ad.formatAmount(alert.Amount, alert.Currency)
		return action.NewAlertEnqueued(alert), true, nil
	case "rewardredemption", "redemption", "channelpointreward":
		alert := ad.baseAlert(models.AlertRedemption, platform, data)
		alert.Reward = stringField(data, "reward", "rewardName", "reward_name", "title")
		alert.Cost = intField(data, "cost", "rewardCost", "reward_cost")
		return action.NewAlertEnqueued(alert), true, nil
	case "firstword", "firstmessage":
		alert := ad.baseAlert(models.AlertFirstWord, platform, data)
		return action.NewAlertEnqueued(alert), true, nil
	case "streamupdate", "streamonline", "streamoffline":
		live := kind != "streamoffline"
		if kind == "streamupdate" {
			live = boolField(data, "live", "isLive", "is_live")
		}
		return action.NewStreamLive(action.StreamChange{
			Live:     live,
			Title:    stringField(data, "title", "streamTitle", "stream_title"),
			Category: stringField(data, "category", "game", "gameName"),
		}), true, nil
	case "broadcasterinfo", "channelinfo":
		return action.NewBroadcasterSet(action.BroadcasterInfo{
			Name:      stringField(data, "name", "displayName", "display_name", "channel"),
			Platform:  platform,
			AvatarURL: stringField(data, "avatarUrl", "avatar_url", "profileImageUrl"),
		}), true, nil
	case "globalvariableupdated", "globalvarupdate":
		return normalizeVariable(data)
	}
	return action.Action{}, false, nil
}

// normalizeVariable maps the bot's global-variable updates onto counter and
// goal actions using the variable name as a routing key.
func normalizeVariable(data map[string]any) (action.Action, bool, error) {
	name := stringField(data, "name", "variable", "key")
	value := int64(intField(data, "value", "newValue", "new_value"))
	switch {
	case strings.HasPrefix(name, "counter."):
		return action.NewCounterSet(strings.TrimPrefix(name, "counter."), value), true, nil
	case strings.HasPrefix(name, "goal."):
		return action.NewGoalProgress(strings.TrimPrefix(name, "goal."), value), true, nil
	}
	return action.Action{}, false, nil
}

func (ad *Adapter) baseAlert(t models.AlertType, platform models.Platform, data map[string]any) models.Alert {
	id := stringField(data, "id", "eventId", "event_id", "messageId")
	if id == "" {
		id = uuid.NewString()
	}
	return models.Alert{
		ID:       id,
		Type:     t,
		Platform: platform,
		User:     stringField(data, "user", "userName", "user_name", "displayName", "display_name"),
		Message:  stringField(data, "message", "text", "userInput", "user_input"),
	}
}

func (ad *Adapter) formatAmount(amount models.Money, code string) string {
	if amount.IsZero() {
		return ""
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		if code == "" {
			return amount.DecimalString()
		}
		return amount.DecimalString() + " " + code
	}
	return ad.printer.Sprint(currency.Symbol(unit.Amount(amount.Float64())))
}

func normalizePlatform(source string) models.Platform {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "twitch":
		return models.PlatformTwitch
	case "youtube":
		return models.PlatformYouTube
	case "kick":
		return models.PlatformKick
	default:
		return models.PlatformTest
	}
}

// stringField returns the first non-empty string among the candidate keys.
// Bot payloads are inconsistent about casing across platforms and versions,
// hence the alias lists.
func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := data[key]; ok {
			switch v := value.(type) {
			case string:
				if trimmed := strings.TrimSpace(v); trimmed != "" {
					return trimmed
				}
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
	}
	return ""
}

func intField(data map[string]any, keys ...string) int {
	for _, key := range keys {
		if value, ok := data[key]; ok {
			switch v := value.(type) {
			case float64:
				return int(v)
			case string:
				if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
					return parsed
				}
			}
		}
	}
	return 0
}

func boolField(data map[string]any, keys ...string) bool {
	for _, key := range keys {
		if value, ok := data[key]; ok {
			switch v := value.(type) {
			case bool:
				return v
			case string:
				if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
					return parsed
				}
			}
		}
	}
	return false
}

func moneyField(data map[string]any, keys ...string) models.Money {
	for _, key := range keys {
		if value, ok := data[key]; ok {
			switch v := value.(type) {
			case float64:
				return models.NewMoneyFromMinorUnits(int64(math.Round(v * 1e8)))
			case string:
				if parsed, err := models.ParseMoney(v); err == nil {
					return parsed
				}
			}
		}
	}
	return models.Money{}
}
