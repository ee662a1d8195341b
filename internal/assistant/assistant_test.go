package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/slack-recall/internal/commands"
	"github.com/xaenox/slack-recall/internal/llm"
	"github.com/xaenox/slack-recall/internal/models"
	"github.com/xaenox/slack-recall/internal/search"
	"github.com/xaenox/slack-recall/internal/storage"
	"github.com/xaenox/slack-recall/internal/threads"
	"go.uber.org/zap/zaptest"
)

type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	rewrite string
	answer  string
	selectReply string
	err     error
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return "", f.err
	}
	switch {
	case strings.HasPrefix(req.Prompt, "Rewrite"):
		return f.rewrite, nil
	case strings.HasPrefix(req.Prompt, "You answer"):
		return f.answer, nil
	case strings.HasPrefix(req.Prompt, "You pick"):
		return f.selectReply, nil
	}
	return "", nil
}

func (f *fakeLLM) prompt(prefix string) string {
	for _, p := range f.prompts {
		if strings.HasPrefix(p, prefix) {
			return p
		}
	}
	return ""
}

type fakeMemory struct {
	context    string
	history    []models.HistoryMessage
	readErr    error
	writeErr   error
	saved      []models.Interaction
	savedTo    []string
	historyReq int
}

func (m *fakeMemory) EnsureUser(context.Context, string) error           { return nil }
func (m *fakeMemory) CreateThread(context.Context, string, string) error { return nil }
func (m *fakeMemory) Close() error                                       { return nil }

func (m *fakeMemory) Context(context.Context, string, string) (string, error) {
	return m.context, m.readErr
}

func (m *fakeMemory) History(context.Context, string, int) ([]models.HistoryMessage, error) {
	m.historyReq++
	return m.history, m.readErr
}

func (m *fakeMemory) AddInteraction(_ context.Context, threadID string, in models.Interaction) error {
	m.savedTo = append(m.savedTo, threadID)
	m.saved = append(m.saved, in)
	return m.writeErr
}

type fakeThreads struct {
	current string
	created int
	err     error
}

func (f *fakeThreads) Current(context.Context, string) (string, error) { return f.current, f.err }

func (f *fakeThreads) Create(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.created++
	f.current = "auto-thread"
	return f.current, nil
}

type fakeSelector struct {
	channels []models.Channel
	err      error
	got      string
}

func (f *fakeSelector) Select(_ context.Context, instructions string) ([]models.Channel, error) {
	f.got = instructions
	return f.channels, f.err
}

type fakeSearcher struct {
	results map[string][]models.Message
	fail    map[string]bool
	order   []string
}

func (f *fakeSearcher) Search(_ context.Context, ch models.Channel, _ string) ([]models.Message, error) {
	f.order = append(f.order, ch.ID)
	if f.fail[ch.ID] {
		return nil, errors.New("history unavailable")
	}
	return f.results[ch.ID], nil
}

type recordingCommands struct{ inputs []string }

func (r *recordingCommands) Handle(_ context.Context, _ string, input string) string {
	r.inputs = append(r.inputs, input)
	return "command reply"
}

type fixture struct {
	cmds     *recordingCommands
	threads  *fakeThreads
	memory   *fakeMemory
	selector *fakeSelector
	searcher *fakeSearcher
	llm      *fakeLLM
	o        *Orchestrator
}

func newFixture(t *testing.T, opts Options) *fixture {
	f := &fixture{
		cmds:    &recordingCommands{},
		threads: &fakeThreads{current: "thread-1"},
		memory:  &fakeMemory{context: "The user leads the payments team."},
		selector: &fakeSelector{channels: []models.Channel{
			{ID: "C2", Name: "payments"},
			{ID: "C1", Name: "general"},
		}},
		searcher: &fakeSearcher{results: map[string][]models.Message{
			"C2": {{Text: "Payments v2 ships on Friday", TS: "1718000000.000100", User: "U7"}},
			"C1": {},
		}},
		llm: &fakeLLM{rewrite: "Find the payments v2 release date", answer: "Payments v2 ships on Friday."},
	}
	f.o = New(f.cmds, f.threads, f.memory, f.selector, f.searcher, f.llm, opts, zaptest.NewLogger(t))
	return f
}

func TestHandleQuery(t *testing.T) {
	f := newFixture(t, Options{IncludeThreadHistory: true})
	f.memory.history = []models.HistoryMessage{{RoleType: "user", Content: "what about payments?"}}

	answer, err := f.o.Handle(context.Background(), Request{UserID: "U1", UserName: "alice", Query: "  when does it ship? "})
	require.NoError(t, err)
	assert.Equal(t, "Payments v2 ships on Friday.", answer)

	assert.Equal(t, "Find the payments v2 release date", f.selector.got)
	assert.Equal(t, []string{"C2", "C1"}, f.searcher.order)

	rewrite := f.llm.prompt("Rewrite")
	assert.Contains(t, rewrite, "The user leads the payments team.")
	assert.Contains(t, rewrite, "user: what about payments?")
	assert.Contains(t, rewrite, "User query: when does it ship?")

	synth := f.llm.prompt("You answer")
	assert.Contains(t, synth, `"channel_name": "payments"`)
	assert.Contains(t, synth, "Payments v2 ships on Friday")
	assert.Contains(t, synth, `"channel_id": "C1"`)
	assert.Contains(t, synth, "user: what about payments?")

	require.Len(t, f.memory.saved, 1)
	assert.Equal(t, []string{"thread-1"}, f.memory.savedTo)
	assert.Equal(t, models.Interaction{
		UserID:           "U1",
		UserName:         "alice",
		UserMessage:      "when does it ship?",
		AssistantMessage: "Payments v2 ships on Friday.",
	}, f.memory.saved[0])
	assert.Zero(t, f.threads.created)
}

func TestHandleQueryWithoutThreadHistory(t *testing.T) {
	f := newFixture(t, Options{IncludeThreadHistory: false})
	f.memory.history = []models.HistoryMessage{{RoleType: "user", Content: "secret history"}}

	_, err := f.o.Handle(context.Background(), Request{UserID: "U1", Query: "status?"})
	require.NoError(t, err)

	assert.Zero(t, f.memory.historyReq)
	assert.NotContains(t, f.llm.prompt("Rewrite"), "Conversation history")
	assert.NotContains(t, f.llm.prompt("You answer"), "secret history")
}

func TestHandleCommand(t *testing.T) {
	f := newFixture(t, Options{})

	reply, err := f.o.Handle(context.Background(), Request{UserID: "U1", Query: " ~thread -l"})
	require.NoError(t, err)
	assert.Equal(t, "command reply", reply)
	assert.Equal(t, []string{"~thread -l"}, f.cmds.inputs)
	assert.Empty(t, f.llm.prompts)
}

func TestHandleEmptyQuery(t *testing.T) {
	f := newFixture(t, Options{})

	reply, err := f.o.Handle(context.Background(), Request{UserID: "U1", Query: "   "})
	require.NoError(t, err)
	assert.Equal(t, emptyQueryReply, reply)
	assert.Empty(t, f.llm.prompts)
}

func TestHandleNoRelevantChannels(t *testing.T) {
	f := newFixture(t, Options{})
	f.selector.channels = []models.Channel{}

	reply, err := f.o.Handle(context.Background(), Request{UserID: "U1", Query: "anything?"})
	require.NoError(t, err)
	assert.Equal(t, "No relevant channels found for your query.", reply)
	assert.Empty(t, f.searcher.order)
	assert.Empty(t, f.llm.prompt("You answer"))
	assert.Empty(t, f.memory.saved)
}

func TestHandleSelectorError(t *testing.T) {
	f := newFixture(t, Options{})
	f.selector.err = search.ErrNoChannels

	_, err := f.o.Handle(context.Background(), Request{UserID: "U1", Query: "anything?"})
	assert.ErrorIs(t, err, search.ErrNoChannels)
}

func TestHandleChannelSearchFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.searcher.fail = map[string]bool{"C2": true}

	answer, err := f.o.Handle(context.Background(), Request{UserID: "U1", Query: "ship date?"})
	require.NoError(t, err)
	assert.Equal(t, "Payments v2 ships on Friday.", answer)
	assert.Equal(t, []string{"C2", "C1"}, f.searcher.order)
	assert.Contains(t, f.llm.prompt("You answer"), `"messages": []`)
}

func TestHandleMemoryFailuresDegrade(t *testing.T) {
	f := newFixture(t, Options{IncludeThreadHistory: true})
	f.memory.readErr = errors.New("memory down")
	f.memory.writeErr = errors.New("memory down")

	answer, err := f.o.Handle(context.Background(), Request{UserID: "U1", Query: "ship date?"})
	require.NoError(t, err)
	assert.Equal(t, "Payments v2 ships on Friday.", answer)
	assert.Contains(t, f.llm.prompt("Rewrite"), noContextText)
	assert.Contains(t, f.llm.prompt("Rewrite"), noHistoryText)
}

func TestHandleFirstQueryCreatesThread(t *testing.T) {
	f := newFixture(t, Options{})
	f.threads.current = ""

	_, err := f.o.Handle(context.Background(), Request{UserID: "U1", Query: "ship date?"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.threads.created)
	assert.Equal(t, []string{"auto-thread"}, f.memory.savedTo)
}

func TestHandleNoThreadSkipsMemory(t *testing.T) {
	f := newFixture(t, Options{IncludeThreadHistory: true})
	f.threads.current = ""
	f.threads.err = errors.New("directory down")

	answer, err := f.o.Handle(context.Background(), Request{UserID: "U1", Query: "ship date?"})
	require.NoError(t, err)
	assert.Equal(t, "Payments v2 ships on Friday.", answer)
	assert.Zero(t, f.memory.historyReq)
	assert.Empty(t, f.memory.saved)
	assert.NotContains(t, f.llm.prompt("Rewrite"), "payments team")
}

func TestHandleModelFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.llm.err = errors.New("model overloaded")

	_, err := f.o.Handle(context.Background(), Request{UserID: "U1", Query: "ship date?"})
	assert.ErrorContains(t, err, "model overloaded")
	assert.Empty(t, f.memory.saved)
}

type countingHistory struct{ calls int }

func (c *countingHistory) FetchHistory(context.Context, string, models.TimeWindow) ([]models.Message, error) {
	c.calls++
	return nil, nil
}

type staticDirectory []models.Channel

func (d staticDirectory) ListChannels(context.Context, int) ([]models.Channel, error) {
	return d, nil
}

func TestEndToEndCommandsAndNoChannels(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	mem := &fakeMemory{}
	threadSvc := threads.NewService(storage.NewMemoryStorage(), mem, logger)
	completer := &fakeLLM{rewrite: "Find budget approvals", selectReply: "[]"}
	history := &countingHistory{}

	o := New(
		commands.NewHandler(threadSvc, logger),
		threadSvc,
		mem,
		search.NewChannelSelector(staticDirectory{{ID: "C1", Name: "general"}}, completer, logger),
		search.NewHistorySearcher(history, completer, nil, "", logger),
		completer,
		Options{IncludeThreadHistory: true},
		logger,
	)

	created, err := o.Handle(ctx, Request{UserID: "U1", Query: "~thread -c"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(created, "Created thread: "))
	id := strings.TrimPrefix(created, "Created thread: ")
	require.NotEmpty(t, id)

	listed, err := o.Handle(ctx, Request{UserID: "U1", Query: "~thread -l"})
	require.NoError(t, err)
	assert.Equal(t, "Threads:\n1. "+id+"\n", listed)

	reply, err := o.Handle(ctx, Request{UserID: "U1", Query: "who approved the budget?"})
	require.NoError(t, err)
	assert.Equal(t, "No relevant channels found for your query.", reply)
	assert.Zero(t, history.calls)
}
