package telegram

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	bundleDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/repository"
	bundleService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/service"
	issueDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/issue/domain"
	messageDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/message/domain"
	refreshDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/refresh/domain"
	renderService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/render/service"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/config"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct{}

func (stubRenderer) RenderBundle(_ context.Context, channelID string) (string, error) {
	return "bundle for " + channelID, nil
}

type stubMessages struct {
	nextID int
}

func (m *stubMessages) Converge(context.Context, messageDomain.Desired) (*messageDomain.Result, error) {
	m.nextID++
	return &messageDomain.Result{MessageID: m.nextID, Recreated: true}, nil
}

func (m *stubMessages) ApplyState(context.Context, messageDomain.Desired) error {
	return nil
}

type stubLabels []string

func (l stubLabels) ListLabels(context.Context) ([]string, error) {
	return l, nil
}

type stubRefresher struct {
	calls []string
	err   error
}

func (r *stubRefresher) RefreshNow(_ context.Context, channelID string) error {
	r.calls = append(r.calls, channelID)
	return r.err
}

type stubTasks struct {
	query        renderService.TaskQuery
	searchLabels []string
	keyword      string
	err          error
}

func (s *stubTasks) RenderTaskList(_ context.Context, _ string, query renderService.TaskQuery) (string, error) {
	s.query = query
	return "**tasks** (0 of 0)", nil
}

func (s *stubTasks) RenderStatusSummary(context.Context) (string, error) {
	return "📊 **open issues**: 0", s.err
}

func (s *stubTasks) RenderSearch(_ context.Context, labels []string, keyword string) (string, error) {
	s.searchLabels, s.keyword = labels, keyword
	return renderService.NoSearchResultsText, s.err
}

type fakeSender struct {
	sent    []*bot.SendMessageParams
	answers []*bot.AnswerCallbackQueryParams
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.sent = append(f.sent, params)
	return &models.Message{ID: len(f.sent)}, nil
}

func (f *fakeSender) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.answers = append(f.answers, params)
	return true, nil
}

type handlerFixture struct {
	handler   *Handler
	store     repository.Repository
	refresher *stubRefresher
	tasks     *stubTasks
	ctx       context.Context
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store, err := repository.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	bundles := bundleService.New(store, stubRenderer{}, &stubMessages{nextID: 40}, refreshDomain.NewState(), stubLabels{"type:bug", "status:todo"}, 5)
	cfg := &config.Config{
		GitHubOwner:   "acme",
		GitHubRepo:    "tracker",
		StorageDriver: bundleDomain.StorageDriverFile,
		StoragePath:   "./data",
		TickSeconds:   60,
		Timezone:      "Asia/Tokyo",
	}
	f := &handlerFixture{
		store:     store,
		refresher: &stubRefresher{},
		tasks:     &stubTasks{},
		ctx:       context.Background(),
	}
	f.handler = New(cfg, bundles, f.refresher, f.tasks)
	return f
}

func (f *handlerFixture) run(name string, args ...string) reply {
	return f.handler.execute(f.ctx, "-100", name, args)
}

func TestParseCommand(t *testing.T) {
	h := &Handler{}
	h.SetUsername("@Tracker_Bot")

	name, args, ok := h.parseCommand("/Group_Add@tracker_bot Bugs todo #bug")
	require.True(t, ok)
	assert.Equal(t, "group_add", name)
	assert.Equal(t, []string{"Bugs", "todo", "#bug"}, args)

	name, _, ok = h.parseCommand("/help")
	require.True(t, ok)
	assert.Equal(t, "help", name)

	_, _, ok = h.parseCommand("/help@some_other_bot")
	assert.False(t, ok, "commands for other bots are ignored")
	_, _, ok = h.parseCommand("hello /bind")
	assert.False(t, ok)
	_, _, ok = h.parseCommand("/")
	assert.False(t, ok)

	anonymous := &Handler{}
	_, _, ok = anonymous.parseCommand("/help@some_other_bot")
	assert.True(t, ok, "without a known handle every addressed command is taken")
}

func TestMatchCommandIsExact(t *testing.T) {
	f := newHandlerFixture(t)
	post := func(text string) *models.Update {
		return &models.Update{ChannelPost: &models.Message{Text: text, Chat: models.Chat{ID: -100}}}
	}

	assert.True(t, f.handler.matchCommand(post("/group_add_preset triage Inbox")))
	assert.True(t, f.handler.matchCommand(post("/groups")))
	assert.False(t, f.handler.matchCommand(post("/group_addx")))

	f.handler.SetUsername("tracker_bot")
	assert.True(t, f.handler.matchCommand(post("/groups@tracker_bot")))
	assert.False(t, f.handler.matchCommand(post("/groups@other_bot")))
	assert.False(t, f.handler.matchCommand(&models.Update{}))
}

func TestBindCommand(t *testing.T) {
	f := newHandlerFixture(t)

	r := f.run("bind", "30", "pin=off")
	assert.Contains(t, r.text, "interval 30m, pin off, suppress on")

	bundle, err := f.store.GetBundle(f.ctx, "-100")
	require.NoError(t, err)
	assert.Equal(t, 41, bundle.MessageID)
	assert.False(t, bundle.Pin)
	assert.True(t, bundle.Suppress)

	r = f.run("bind", "999")
	assert.Equal(t, "❌ "+errors.ErrInvalidInterval.Error(), r.text)

	r = f.run("bind", "sideways")
	assert.Contains(t, r.text, "Usage:")
}

func TestGroupCommands(t *testing.T) {
	f := newHandlerFixture(t)

	r := f.run("group_add", "Bugs", "todo,", "#bug", "area:ui")
	assert.Contains(t, r.text, "✅ Group **Bugs** saved: `status:todo` `type:bug` `area:ui`")
	assert.Contains(t, r.text, "Unknown labels: `area:ui`")

	r = f.run("group_labels", "Bugs", "doing")
	assert.Contains(t, r.text, "`status:in_progress`")

	r = f.run("group_labels", "Missing", "doing")
	assert.Equal(t, "❌ "+errors.ErrGroupNotFound.Error(), r.text)

	r = f.run("group_rename", "Bugs", "Defects")
	assert.Contains(t, r.text, "renamed to **Defects**")

	r = f.run("group_remove", "Bugs")
	assert.Contains(t, r.text, "No group named")

	r = f.run("group_remove", "Defects")
	assert.Contains(t, r.text, "removed")

	r = f.run("group_add")
	assert.Contains(t, r.text, "Usage: `/group_add <name> [labels]`")
}

func TestGroupsCommand(t *testing.T) {
	f := newHandlerFixture(t)

	r := f.run("groups")
	assert.Equal(t, "❌ "+errors.ErrBundleNotFound.Error(), r.text)

	f.run("group_add", "Bugs", "#bug")
	r = f.run("groups")
	assert.Contains(t, r.text, "message `41` | interval 5m | pin on | suppress on")
	assert.Contains(t, r.text, "last refresh: never")
	assert.Contains(t, r.text, "- **Bugs**: `type:bug`")

	markup, ok := r.markup.(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "refresh:-100", markup.InlineKeyboard[0][0].CallbackData)
}

func TestEditCommand(t *testing.T) {
	f := newHandlerFixture(t)

	r := f.run("edit")
	assert.Contains(t, r.text, "Usage:")
	r = f.run("edit", "colour=red")
	assert.Contains(t, r.text, "Usage:")

	r = f.run("edit", "pin=off")
	assert.Equal(t, "❌ "+errors.ErrBundleNotFound.Error(), r.text)

	f.run("bind")
	r = f.run("edit", "interval=15", "suppress=off")
	assert.Equal(t, "✅ Bundle updated: interval 15m, pin on, suppress off.", r.text)
}

func TestPresetCommands(t *testing.T) {
	f := newHandlerFixture(t)

	r := f.run("presets")
	assert.Contains(t, r.text, "No presets")

	r = f.run("preset_save", "triage", "ten")
	assert.Contains(t, r.text, "Usage:")

	r = f.run("preset_save", "triage", "10", "todo", "#bug")
	assert.Equal(t, "✅ Preset **triage** saved: interval 10m, labels `status:todo` `type:bug`", r.text)

	r = f.run("presets", "tri")
	assert.Contains(t, r.text, "- **triage**: 10m, `status:todo` `type:bug`")

	r = f.run("group_add_preset", "triage", "Inbox")
	assert.Contains(t, r.text, "✅ Group **Inbox** saved from preset **triage**")

	r = f.run("group_add_preset", "missing", "Inbox")
	assert.Equal(t, "❌ "+errors.ErrPresetNotFound.Error(), r.text)
}

func TestRefreshCommand(t *testing.T) {
	f := newHandlerFixture(t)

	r := f.run("refresh")
	assert.Equal(t, "✅ Bundle refreshed.", r.text)
	assert.Equal(t, []string{"-100"}, f.refresher.calls)

	f.refresher.err = fmt.Errorf("tracker down")
	r = f.run("refresh")
	assert.Equal(t, "❌ tracker down", r.text)
}

func TestTasksCommand(t *testing.T) {
	f := newHandlerFixture(t)

	r := f.run("tasks", "doing", "@alice")
	assert.Equal(t, "**tasks** (0 of 0)", r.text)
	assert.Equal(t, []issueDomain.Status{issueDomain.StatusInProgress}, f.tasks.query.Statuses)
	assert.Equal(t, "@alice", f.tasks.query.Assignee)

	r = f.run("tasks", "blocked")
	assert.Contains(t, r.text, "Usage:")
}

func TestSummaryCommand(t *testing.T) {
	f := newHandlerFixture(t)

	r := f.run("summary")
	assert.Equal(t, "📊 **open issues**: 0", r.text)

	f.tasks.err = fmt.Errorf("tracker down")
	r = f.run("summary")
	assert.Equal(t, "❌ tracker down", r.text)
}

func TestSearchCommand(t *testing.T) {
	f := newHandlerFixture(t)

	r := f.run("search", "#bug,", "todo", "|", "login", "crash")
	assert.Equal(t, renderService.NoSearchResultsText, r.text)
	assert.Equal(t, []string{"type:bug", "status:todo"}, f.tasks.searchLabels)
	assert.Equal(t, "login crash", f.tasks.keyword)

	f.run("search", "|crash")
	assert.Empty(t, f.tasks.searchLabels)
	assert.Equal(t, "crash", f.tasks.keyword)

	f.run("search", "area:ui")
	assert.Equal(t, []string{"area:ui"}, f.tasks.searchLabels)
	assert.Empty(t, f.tasks.keyword)

	r = f.run("search")
	assert.Contains(t, r.text, "Usage: `/search [labels] [| keyword]`")
	r = f.run("search", "|")
	assert.Contains(t, r.text, "Usage:")
}

func TestStatusCommand(t *testing.T) {
	f := newHandlerFixture(t)
	f.run("bind")

	r := f.run("status")
	assert.Contains(t, r.text, "Bundles: 1")
	assert.Contains(t, r.text, "Repository: acme/tracker")
	assert.Contains(t, r.text, "Tick: 1m0s")
}

func TestHandleUpdateReplies(t *testing.T) {
	f := newHandlerFixture(t)
	sender := &fakeSender{}

	f.handler.HandleUpdate(f.ctx, sender, &models.Update{
		ChannelPost: &models.Message{Text: "/help", Chat: models.Chat{ID: -100}},
	})
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(-100), sender.sent[0].ChatID)
	assert.NotContains(t, sender.sent[0].Text, "**")
	assert.NotEmpty(t, sender.sent[0].Entities)

	f.handler.HandleUpdate(f.ctx, sender, &models.Update{
		Message: &models.Message{Text: "/unknown", Chat: models.Chat{ID: -100}},
	})
	assert.Len(t, sender.sent, 1)
}

func TestHandleCallback(t *testing.T) {
	f := newHandlerFixture(t)
	sender := &fakeSender{}

	f.handler.HandleCallback(f.ctx, sender, &models.Update{
		CallbackQuery: &models.CallbackQuery{ID: "q1", Data: "refresh:-100"},
	})
	assert.Equal(t, []string{"-100"}, f.refresher.calls)
	require.Len(t, sender.answers, 1)
	assert.Equal(t, "q1", sender.answers[0].CallbackQueryID)
	assert.Equal(t, "✅ Bundle refreshed.", sender.answers[0].Text)
}


func TestHandleCallbackShortensLongErrors(t *testing.T) {
	f := newHandlerFixture(t)
	sender := &fakeSender{}
	f.refresher.err = fmt.Errorf("github: %s", strings.Repeat("🐛 rate limited ", 40))

	f.handler.HandleCallback(f.ctx, sender, &models.Update{
		CallbackQuery: &models.CallbackQuery{ID: "q1", Data: "refresh:-100"},
	})
	require.Len(t, sender.answers, 1)
	text := sender.answers[0].Text
	assert.True(t, strings.HasPrefix(text, "❌ github: "))
	assert.True(t, strings.HasSuffix(text, "…"))
	assert.LessOrEqual(t, len(utf16.Encode([]rune(text))), callbackTextLimit)
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", shorten("short", 10))
	assert.Equal(t, "abcdefghi…", shorten("abcdefghijklmnop", 10))
	assert.Equal(t, "🐛🐛🐛🐛…", shorten(strings.Repeat("🐛", 10), 10), "wide runes count twice")
}
