package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	bundleDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
	bundleService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/service"
	issueDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/issue/domain"
	renderService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/render/service"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/config"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// RefreshCallbackPrefix prefixes the callback data of the refresh button
const RefreshCallbackPrefix = "refresh:"

// callbackTextLimit is Telegram's bound on callback answer text
const callbackTextLimit = 200

const helpText = "👋 Tracker bundle bot keeps one live message per channel listing tracker issues by group.\n\n" +
	"**Bundle**\n" +
	"/bind [interval] [pin=on|off] [suppress=on|off] - post a new bundle message\n" +
	"/edit interval=N pin=on|off suppress=on|off - change bundle settings\n" +
	"/refresh - refresh the bundle now\n" +
	"/groups - show bundle settings and groups\n" +
	"/status - show bot status\n\n" +
	"**Groups**\n" +
	"/group_add <name> [labels] - add or replace a group\n" +
	"/group_remove <name> - remove a group\n" +
	"/group_rename <old> <new> - rename a group\n" +
	"/group_labels <name> [labels] - replace a group's labels\n\n" +
	"**Presets**\n" +
	"/preset_save <name> <interval> [labels] - save a preset\n" +
	"/presets [prefix] - list presets\n" +
	"/group_add_preset <preset> <group> - add a group from a preset\n\n" +
	"**Tasks**\n" +
	"/tasks [status] [@assignee] - list matching tasks\n" +
	"/summary - open issues by status\n" +
	"/search [labels] [| keyword] - search issues\n\n" +
	"Labels are separated by spaces or commas. Shortcuts: `todo` `doing` `done` `#bug` `#task` `#feature`."

// Refresher refreshes a channel's bundle on demand
type Refresher interface {
	RefreshNow(ctx context.Context, channelID string) error
}

// TaskLister renders task lists and tracker reports
type TaskLister interface {
	RenderTaskList(ctx context.Context, channelID string, query renderService.TaskQuery) (string, error)
	RenderStatusSummary(ctx context.Context) (string, error)
	RenderSearch(ctx context.Context, labels []string, keyword string) (string, error)
}

// Sender is the subset of *bot.Bot used for replies
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

type reply struct {
	text   string
	markup models.ReplyMarkup
}

type command func(ctx context.Context, chatID string, args []string) reply

// Handler handles Telegram bot commands
type Handler struct {
	cfg       *config.Config
	bundles   *bundleService.Service
	refresher Refresher
	tasks     TaskLister
	commands  map[string]command
	now       func() time.Time

	// username is the bot's own handle; commands addressed to other bots are ignored
	username string
}

// New creates a new Telegram handler
func New(cfg *config.Config, bundles *bundleService.Service, refresher Refresher, tasks TaskLister) *Handler {
	h := &Handler{
		cfg:       cfg,
		bundles:   bundles,
		refresher: refresher,
		tasks:     tasks,
		now:       time.Now,
	}
	h.commands = map[string]command{
		"start":            h.handleHelp,
		"help":             h.handleHelp,
		"bind":             h.handleBind,
		"group_add":        h.handleGroupAdd,
		"group_remove":     h.handleGroupRemove,
		"group_rename":     h.handleGroupRename,
		"group_labels":     h.handleGroupLabels,
		"groups":           h.handleGroups,
		"edit":             h.handleEdit,
		"refresh":          h.handleRefresh,
		"preset_save":      h.handlePresetSave,
		"presets":          h.handlePresets,
		"group_add_preset": h.handleGroupAddPreset,
		"tasks":            h.handleTasks,
		"summary":          h.handleSummary,
		"search":           h.handleSearch,
		"status":           h.handleStatus,
	}
	return h
}

// SetUsername sets the bot handle that "/command@handle" must name
func (h *Handler) SetUsername(username string) {
	h.username = strings.TrimPrefix(username, "@")
}

// RegisterCommands registers bot commands. Commands are matched by exact
// name since several share a prefix, and arrive as messages or channel posts.
func (h *Handler) RegisterCommands(ctx context.Context, b *bot.Bot) {
	if me, err := b.GetMe(ctx); err != nil {
		slog.Warn("Failed to get bot identity, answering commands addressed to any bot", "error", err)
	} else {
		h.SetUsername(me.Username)
	}

	b.RegisterHandlerMatchFunc(h.matchCommand, func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.HandleUpdate(ctx, b, update)
	})
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, RefreshCallbackPrefix, bot.MatchTypePrefix, func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.HandleCallback(ctx, b, update)
	})
}

func (h *Handler) matchCommand(update *models.Update) bool {
	msg := commandMessage(update)
	if msg == nil {
		return false
	}
	name, _, ok := h.parseCommand(msg.Text)
	if !ok {
		return false
	}
	_, known := h.commands[name]
	return known
}

// HandleUpdate runs the command carried by a message or channel post
func (h *Handler) HandleUpdate(ctx context.Context, sender Sender, update *models.Update) {
	msg := commandMessage(update)
	if msg == nil {
		return
	}
	name, args, ok := h.parseCommand(msg.Text)
	if !ok {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	r := h.execute(ctx, chatID, name, args)
	if r.text == "" {
		return
	}
	h.send(ctx, sender, msg.Chat.ID, r)
}

// HandleCallback handles the inline refresh button
func (h *Handler) HandleCallback(ctx context.Context, sender Sender, update *models.Update) {
	query := update.CallbackQuery
	if query == nil {
		return
	}
	channelID := strings.TrimPrefix(query.Data, RefreshCallbackPrefix)

	text := "✅ Bundle refreshed."
	if err := h.refresher.RefreshNow(ctx, channelID); err != nil {
		slog.Error("Manual refresh failed", "channel_id", channelID, "error", err)
		text = shorten("❌ "+err.Error(), callbackTextLimit)
	}

	if _, err := sender.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
		Text:            text,
	}); err != nil {
		slog.Warn("Failed to answer callback query", "channel_id", channelID, "error", err)
	}
}

func (h *Handler) execute(ctx context.Context, chatID, name string, args []string) reply {
	cmd, ok := h.commands[name]
	if !ok {
		return reply{}
	}
	slog.Debug("Handling command", "command", name, "chat_id", chatID, "args", args)
	return cmd(ctx, chatID, args)
}

func (h *Handler) send(ctx context.Context, sender Sender, chatID int64, r reply) {
	text, entities := FormatEntities(r.text)
	params := &bot.SendMessageParams{
		ChatID:             chatID,
		Text:               text,
		Entities:           entities,
		ReplyMarkup:        r.markup,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	}
	if _, err := sender.SendMessage(ctx, params); err != nil {
		slog.Error("Failed to send reply", "chat_id", chatID, "error", err)
	}
}

func (h *Handler) handleHelp(context.Context, string, []string) reply {
	return reply{text: helpText}
}

func (h *Handler) handleBind(ctx context.Context, chatID string, args []string) reply {
	opts := bundleService.BindOptions{Pin: true, Suppress: true}
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			opts.Interval = n
			continue
		}
		edit, err := parseSettings([]string{arg})
		if err != nil {
			return usage("/bind [interval] [pin=on|off] [suppress=on|off]")
		}
		opts.Interval = lo.FromPtrOr(edit.Interval, opts.Interval)
		opts.Pin = lo.FromPtrOr(edit.Pin, opts.Pin)
		opts.Suppress = lo.FromPtrOr(edit.Suppress, opts.Suppress)
	}

	bundle, err := h.bundles.Bind(ctx, chatID, opts)
	if err != nil {
		return failure(err, chatID)
	}
	return reply{text: fmt.Sprintf("✅ Bundle created: interval %dm, pin %s, suppress %s.\nAdd groups with `/group_add <name> [labels]`.",
		bundle.IntervalMinutes, onOff(bundle.Pin), onOff(bundle.Suppress))}
}

func (h *Handler) handleGroupAdd(ctx context.Context, chatID string, args []string) reply {
	if len(args) < 1 {
		return usage("/group_add <name> [labels]")
	}
	group, err := h.bundles.AddGroup(ctx, chatID, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return failure(err, chatID)
	}
	return reply{text: fmt.Sprintf("✅ Group **%s** saved: %s", group.Name, h.describeLabels(ctx, group.LabelFilters))}
}

func (h *Handler) handleGroupRemove(ctx context.Context, chatID string, args []string) reply {
	if len(args) != 1 {
		return usage("/group_remove <name>")
	}
	removed, err := h.bundles.RemoveGroup(ctx, chatID, args[0])
	if err != nil {
		return failure(err, chatID)
	}
	if !removed {
		return reply{text: fmt.Sprintf("ℹ️ No group named **%s**.", args[0])}
	}
	return reply{text: fmt.Sprintf("✅ Group **%s** removed.", args[0])}
}

func (h *Handler) handleGroupRename(ctx context.Context, chatID string, args []string) reply {
	if len(args) != 2 {
		return usage("/group_rename <old> <new>")
	}
	if err := h.bundles.RenameGroup(ctx, chatID, args[0], args[1]); err != nil {
		return failure(err, chatID)
	}
	return reply{text: fmt.Sprintf("✅ Group **%s** renamed to **%s**.", args[0], args[1])}
}

func (h *Handler) handleGroupLabels(ctx context.Context, chatID string, args []string) reply {
	if len(args) < 1 {
		return usage("/group_labels <name> [labels]")
	}
	group, err := h.bundles.SetGroupLabels(ctx, chatID, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return failure(err, chatID)
	}
	return reply{text: fmt.Sprintf("✅ Group **%s** labels: %s", group.Name, h.describeLabels(ctx, group.LabelFilters))}
}

func (h *Handler) handleGroups(ctx context.Context, chatID string, _ []string) reply {
	desc, err := h.bundles.Describe(ctx, chatID)
	if err != nil {
		return failure(err, chatID)
	}

	var text strings.Builder
	text.WriteString("📋 **Bundle**\n")
	if desc.Bundle != nil {
		fmt.Fprintf(&text, "message `%d` | interval %dm | pin %s | suppress %s\n",
			desc.Bundle.MessageID, desc.Bundle.IntervalMinutes, onOff(desc.Bundle.Pin), onOff(desc.Bundle.Suppress))
	} else {
		text.WriteString("not posted yet, use /bind\n")
	}
	lastRefresh := "never"
	if desc.LastRefresh > 0 {
		lastRefresh = renderService.RelativeTime(time.Unix(desc.LastRefresh, 0), h.now())
	}
	fmt.Fprintf(&text, "last refresh: %s\n\n**Groups** (%d)\n", lastRefresh, len(desc.Groups))
	if len(desc.Groups) == 0 {
		text.WriteString("none, add one with /group_add")
	}
	for _, group := range desc.Groups {
		fmt.Fprintf(&text, "- **%s**: %s\n", group.Name, labelList(group.LabelFilters))
	}

	return reply{
		text: strings.TrimRight(text.String(), "\n"),
		markup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{{
				{Text: "🔄 Refresh now", CallbackData: RefreshCallbackPrefix + chatID},
			}},
		},
	}
}

func (h *Handler) handleEdit(ctx context.Context, chatID string, args []string) reply {
	edit, err := parseSettings(args)
	if err != nil || edit.IsEmpty() {
		return usage("/edit interval=N pin=on|off suppress=on|off")
	}
	bundle, err := h.bundles.EditBundle(ctx, chatID, edit)
	if err != nil {
		return failure(err, chatID)
	}
	return reply{text: fmt.Sprintf("✅ Bundle updated: interval %dm, pin %s, suppress %s.",
		bundle.IntervalMinutes, onOff(bundle.Pin), onOff(bundle.Suppress))}
}

func (h *Handler) handleRefresh(ctx context.Context, chatID string, _ []string) reply {
	if err := h.refresher.RefreshNow(ctx, chatID); err != nil {
		return failure(err, chatID)
	}
	return reply{text: "✅ Bundle refreshed."}
}

func (h *Handler) handlePresetSave(ctx context.Context, chatID string, args []string) reply {
	if len(args) < 2 {
		return usage("/preset_save <name> <interval> [labels]")
	}
	interval, err := strconv.Atoi(args[1])
	if err != nil {
		return usage("/preset_save <name> <interval> [labels]")
	}
	preset, err := h.bundles.SavePreset(ctx, args[0], interval, strings.Join(args[2:], " "))
	if err != nil {
		return failure(err, chatID)
	}
	return reply{text: fmt.Sprintf("✅ Preset **%s** saved: interval %dm, labels %s",
		preset.Name, preset.IntervalMinutes, labelList(preset.LabelFilters))}
}

func (h *Handler) handlePresets(ctx context.Context, chatID string, args []string) reply {
	presets, err := h.bundles.ListPresets(ctx, strings.Join(args, " "))
	if err != nil {
		return failure(err, chatID)
	}
	if len(presets) == 0 {
		return reply{text: "📭 No presets saved yet. Use /preset_save to add one."}
	}

	var text strings.Builder
	fmt.Fprintf(&text, "📋 **Presets** (%d)\n", len(presets))
	for _, preset := range presets {
		fmt.Fprintf(&text, "- **%s**: %dm, %s\n", preset.Name, preset.IntervalMinutes, labelList(preset.LabelFilters))
	}
	return reply{text: strings.TrimRight(text.String(), "\n")}
}

func (h *Handler) handleGroupAddPreset(ctx context.Context, chatID string, args []string) reply {
	if len(args) != 2 {
		return usage("/group_add_preset <preset> <group>")
	}
	group, err := h.bundles.AddGroupFromPreset(ctx, chatID, args[0], args[1])
	if err != nil {
		return failure(err, chatID)
	}
	return reply{text: fmt.Sprintf("✅ Group **%s** saved from preset **%s**: %s", group.Name, args[0], labelList(group.LabelFilters))}
}

func (h *Handler) handleTasks(ctx context.Context, chatID string, args []string) reply {
	var query renderService.TaskQuery
	for _, arg := range args {
		if strings.HasPrefix(arg, "@") {
			query.Assignee = arg
			continue
		}
		status, err := parseStatus(arg)
		if err != nil {
			return usage("/tasks [todo|doing|done] [@assignee]")
		}
		query.Statuses = append(query.Statuses, status)
	}

	text, err := h.tasks.RenderTaskList(ctx, chatID, query)
	if err != nil {
		return failure(err, chatID)
	}
	return reply{text: text}
}

func (h *Handler) handleSummary(ctx context.Context, chatID string, _ []string) reply {
	text, err := h.tasks.RenderStatusSummary(ctx)
	if err != nil {
		return failure(err, chatID)
	}
	return reply{text: text}
}

// handleSearch takes labels, then an optional "|" followed by a keyword
func (h *Handler) handleSearch(ctx context.Context, chatID string, args []string) reply {
	rawLabels, keyword, _ := strings.Cut(strings.Join(args, " "), "|")
	labels, err := bundleDomain.NormalizeLabels(rawLabels)
	if err != nil {
		return failure(err, chatID)
	}
	keyword = strings.TrimSpace(keyword)
	if len(labels) == 0 && keyword == "" {
		return usage("/search [labels] [| keyword]")
	}

	text, err := h.tasks.RenderSearch(ctx, labels, keyword)
	if err != nil {
		return failure(err, chatID)
	}
	return reply{text: text}
}

func (h *Handler) handleStatus(ctx context.Context, chatID string, _ []string) reply {
	bundles, err := h.bundles.ListBundles(ctx)
	if err != nil {
		return failure(err, chatID)
	}

	return reply{text: fmt.Sprintf("📊 **Bot status**\n\n"+
		"Bundles: %d\n"+
		"Repository: %s/%s\n"+
		"Tick: %s\n"+
		"Default interval: %dm\n"+
		"Storage: %s (%s)\n"+
		"Timezone: %s",
		len(bundles), h.cfg.GitHubOwner, h.cfg.GitHubRepo, h.cfg.Tick(), h.bundles.DefaultInterval(),
		h.cfg.StorageDriver, h.cfg.StoragePath, h.cfg.Timezone)}
}

// describeLabels lists filters and flags the ones the tracker does not know
func (h *Handler) describeLabels(ctx context.Context, filters []string) string {
	text := labelList(filters)
	if unknown := h.bundles.UnknownLabels(ctx, filters); len(unknown) > 0 {
		text += "\n⚠️ Unknown labels: " + labelList(unknown)
	}
	return text
}

func commandMessage(update *models.Update) *models.Message {
	if update.Message != nil {
		return update.Message
	}
	return update.ChannelPost
}

// parseCommand splits "/name@bot arg..." into a lowercased name and its
// arguments. Commands naming another bot are rejected.
func (h *Handler) parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name, target, addressed := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	if name == "" {
		return "", nil, false
	}
	if addressed && h.username != "" && !strings.EqualFold(target, h.username) {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

// parseSettings reads key=value bundle settings
func parseSettings(args []string) (bundleService.BundleEdit, error) {
	var edit bundleService.BundleEdit
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return edit, oops.Code(errors.CodeValidation).Errorf("expected key=value, got %q", arg)
		}
		switch strings.ToLower(key) {
		case "interval":
			n, err := strconv.Atoi(value)
			if err != nil {
				return edit, oops.Code(errors.CodeValidation).With("interval", value).Wrap(err)
			}
			edit.Interval = &n
		case "pin":
			on, err := parseSwitch(value)
			if err != nil {
				return edit, err
			}
			edit.Pin = &on
		case "suppress":
			on, err := parseSwitch(value)
			if err != nil {
				return edit, err
			}
			edit.Suppress = &on
		default:
			return edit, oops.Code(errors.CodeValidation).Errorf("unknown setting %q", key)
		}
	}
	return edit, nil
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, oops.Code(errors.CodeValidation).Errorf("expected on or off, got %q", value)
	}
}

func parseStatus(token string) (issueDomain.Status, error) {
	label := strings.ToLower(token)
	if expanded, ok := bundleDomain.Shortcuts()[label]; ok {
		label = expanded
	}
	return issueDomain.ParseStatus(strings.TrimPrefix(label, "status:"))
}

func labelList(labels []string) string {
	if len(labels) == 0 {
		return "no labels"
	}
	return strings.Join(lo.Map(labels, func(label string, _ int) string {
		return "`" + label + "`"
	}), " ")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// shorten cuts text over limit UTF-16 units and ends it with an ellipsis
func shorten(text string, limit int) string {
	if len(utf16.Encode([]rune(text))) <= limit {
		return text
	}
	var (
		out   strings.Builder
		units int
	)
	for _, r := range text {
		n := utf16.RuneLen(r)
		if units+n > limit-1 {
			break
		}
		out.WriteRune(r)
		units += n
	}
	return out.String() + "…"
}

func usage(syntax string) reply {
	return reply{text: "Usage: `" + syntax + "`"}
}

func failure(err error, chatID string) reply {
	slog.Debug("Command failed", "chat_id", chatID, "error", err)
	return reply{text: "❌ " + err.Error()}
}
