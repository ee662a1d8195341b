// Package assistant answers user queries from Slack history: it rewrites the
// query with the user's memory, picks channels, searches them and composes
// a grounded answer.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xaenox/slack-recall/internal/commands"
	"github.com/xaenox/slack-recall/internal/llm"
	"github.com/xaenox/slack-recall/internal/memory"
	"github.com/xaenox/slack-recall/internal/models"
	"go.uber.org/zap"
)

const (
	NoChannelsReply = "No relevant channels found for your query."
	emptyQueryReply = "Please ask a question about your Slack history, or send ~help for commands."
	noContextText   = "No prior context available."
	noHistoryText   = "No previous messages in this thread."
	defaultHistoryN = 10
)

// Request is one inbound user input.
type Request struct {
	UserID   string
	UserName string
	Query    string
}

type CommandHandler interface {
	Handle(ctx context.Context, userID, input string) string
}

type ThreadResolver interface {
	Current(ctx context.Context, userID string) (string, error)
	Create(ctx context.Context, userID string) (string, error)
}

type ChannelSelector interface {
	Select(ctx context.Context, instructions string) ([]models.Channel, error)
}

type HistorySearcher interface {
	Search(ctx context.Context, channel models.Channel, instructions string) ([]models.Message, error)
}

type Options struct {
	// IncludeThreadHistory feeds the thread's recent messages into the
	// rewrite and answer prompts.
	IncludeThreadHistory bool
	HistoryLimit         int
}

type Orchestrator struct {
	commands CommandHandler
	threads  ThreadResolver
	memory   memory.Store
	selector ChannelSelector
	searcher HistorySearcher
	llm      llm.Completer
	opts     Options
	logger   *zap.Logger
}

func New(
	commands CommandHandler,
	threads ThreadResolver,
	mem memory.Store,
	selector ChannelSelector,
	searcher HistorySearcher,
	completer llm.Completer,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryN
	}
	return &Orchestrator{
		commands: commands,
		threads:  threads,
		memory:   mem,
		selector: selector,
		searcher: searcher,
		llm:      completer,
		opts:     opts,
		logger:   logger,
	}
}

// Handle answers a query or executes a command. Command replies and the
// no-channel reply are returned as text; only listing and model transport
// failures are errors.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (string, error) {
	query := strings.TrimSpace(req.Query)
	if commands.IsCommand(query) {
		return o.commands.Handle(ctx, req.UserID, query), nil
	}
	if query == "" {
		return emptyQueryReply, nil
	}

	logger := o.logger.With(zap.String("user_id", req.UserID))

	threadID := o.resolveThread(ctx, req.UserID, logger)
	memoryContext := o.memoryContext(ctx, req.UserID, threadID, logger)
	history := o.threadHistory(ctx, threadID, logger)

	instructions, err := o.rewrite(ctx, query, memoryContext, history)
	if err != nil {
		return "", err
	}
	logger.Info("Rewrote query", zap.String("instructions", instructions))

	channels, err := o.selector.Select(ctx, instructions)
	if err != nil {
		return "", fmt.Errorf("select channels: %w", err)
	}
	if len(channels) == 0 {
		logger.Info("No relevant channels for query")
		return NoChannelsReply, nil
	}

	results := make([]models.ChannelResult, 0, len(channels))
	for _, ch := range channels {
		messages, err := o.searcher.Search(ctx, ch, instructions)
		if err != nil {
			logger.Error("Channel search failed",
				zap.Error(err),
				zap.String("channel_id", ch.ID),
				zap.String("channel_name", ch.Name))
			messages = []models.Message{}
		}
		logger.Info("Searched channel",
			zap.String("channel_id", ch.ID),
			zap.String("channel_name", ch.Name),
			zap.Int("messages", len(messages)))
		results = append(results, models.ChannelResult{
			ChannelName: ch.Name,
			ChannelID:   ch.ID,
			Messages:    messages,
		})
	}

	answer, err := o.synthesize(ctx, query, memoryContext, history, results)
	if err != nil {
		return "", err
	}

	o.persist(ctx, threadID, models.Interaction{
		UserID:           req.UserID,
		UserName:         req.UserName,
		UserMessage:      query,
		AssistantMessage: answer,
	}, logger)

	return answer, nil
}

// resolveThread returns the user's current thread, creating one on a first
// query. It returns "" when no thread can be resolved; every memory
// operation then degrades to empty results or a no-op.
func (o *Orchestrator) resolveThread(ctx context.Context, userID string, logger *zap.Logger) string {
	threadID, err := o.threads.Current(ctx, userID)
	if err != nil {
		logger.Error("Failed to load current thread", zap.Error(err))
		return ""
	}
	if threadID != "" {
		return threadID
	}

	threadID, err = o.threads.Create(ctx, userID)
	if err != nil {
		logger.Error("Failed to create thread for first query", zap.Error(err))
		return ""
	}
	return threadID
}

func (o *Orchestrator) memoryContext(ctx context.Context, userID, threadID string, logger *zap.Logger) string {
	if threadID == "" {
		return ""
	}
	text, err := o.memory.Context(ctx, userID, threadID)
	if err != nil {
		logger.Warn("Failed to load memory context", zap.Error(err), zap.String("thread_id", threadID))
		return ""
	}
	return text
}

func (o *Orchestrator) threadHistory(ctx context.Context, threadID string, logger *zap.Logger) []models.HistoryMessage {
	if threadID == "" || !o.opts.IncludeThreadHistory {
		return nil
	}
	history, err := o.memory.History(ctx, threadID, o.opts.HistoryLimit)
	if err != nil {
		logger.Warn("Failed to load thread history", zap.Error(err), zap.String("thread_id", threadID))
		return nil
	}
	return history
}

func (o *Orchestrator) persist(ctx context.Context, threadID string, in models.Interaction, logger *zap.Logger) {
	if threadID == "" {
		return
	}
	if err := o.memory.AddInteraction(ctx, threadID, in); err != nil {
		logger.Error("Failed to save interaction", zap.Error(err), zap.String("thread_id", threadID))
	}
}

func (o *Orchestrator) rewrite(ctx context.Context, query, memoryContext string, history []models.HistoryMessage) (string, error) {
	var b strings.Builder
	b.WriteString(`Rewrite the user's query into clear search instructions for finding relevant Slack messages.
Use the context and conversation history only to resolve references (people, projects, "it", "that").
Do not add facts, names or dates that are not present in the query, context or history.
If there is no useful context, restate the query as a short imperative instruction.
Return only the instructions.

`)
	o.writeContext(&b, memoryContext, history)
	fmt.Fprintf(&b, "User query: %s", query)

	reply, err := o.llm.Complete(ctx, llm.Request{Prompt: b.String()})
	if err != nil {
		return "", fmt.Errorf("rewrite query: %w", err)
	}
	if reply == "" {
		return query, nil
	}
	return reply, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, query, memoryContext string, history []models.HistoryMessage, results []models.ChannelResult) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal search results: %w", err)
	}

	var b strings.Builder
	b.WriteString(`You answer questions about a Slack workspace using only the search results below.
Rules:
- Reply in plain text, no Markdown headings or tables.
- You may link a message inline with its permalink as <permalink|short label> and mention people as <@USERID>.
- Base every statement on the search results, context or conversation history.
- If the results do not contain enough evidence, say so and ask the user a clarifying question instead of guessing.

`)
	o.writeContext(&b, memoryContext, history)
	fmt.Fprintf(&b, "Search results:\n%s\n\nUser query: %s", data, query)

	answer, err := o.llm.Complete(ctx, llm.Request{Prompt: b.String()})
	if err != nil {
		return "", fmt.Errorf("compose answer: %w", err)
	}
	return answer, nil
}

func (o *Orchestrator) writeContext(b *strings.Builder, memoryContext string, history []models.HistoryMessage) {
	if memoryContext == "" {
		memoryContext = noContextText
	}
	fmt.Fprintf(b, "Context:\n%s\n\n", memoryContext)

	if !o.opts.IncludeThreadHistory {
		return
	}
	b.WriteString("Conversation history:\n")
	if len(history) == 0 {
		b.WriteString(noHistoryText + "\n")
	}
	for _, m := range history {
		fmt.Fprintf(b, "%s: %s\n", m.RoleType, m.Content)
	}
	b.WriteString("\n")
}
