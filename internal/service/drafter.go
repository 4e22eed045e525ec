package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/llm"
	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
	"github.com/capitalize-ai/recruit-chat/pkg/metrics"
)

var (
	// ErrDraftingDisabled is returned when no language model is configured.
	ErrDraftingDisabled = errors.New("reply drafting is not configured")

	errEmptyCompletion = errors.New("model returned an empty draft")
)

const draftInstruction = `あなたは求人サービスの運営担当者です。以下は応募者との会話履歴です。
運営担当者として、次に送る返信の下書きを日本語で1通だけ作成してください。
挨拶や署名は不要です。返信本文のみを出力してください。`

// DrafterOptions tunes a ReplyDrafter.
type DrafterOptions struct {
	Model     string
	History   int
	MaxTokens int
	Timeout   time.Duration
}

// ReplyDrafter asks a language model for an operator reply based on the
// recent conversation.
type ReplyDrafter struct {
	client   llm.Client
	messages store.MessageStore
	opts     DrafterOptions
	logger   *logger.Logger
}

// NewReplyDrafter creates a drafter backed by client.
func NewReplyDrafter(client llm.Client, messages store.MessageStore, opts DrafterOptions, log *logger.Logger) *ReplyDrafter {
	if opts.History <= 0 {
		opts.History = 20
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 512
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &ReplyDrafter{
		client:   client,
		messages: messages,
		opts:     opts,
		logger:   log,
	}
}

// Provider returns the language model provider name.
func (d *ReplyDrafter) Provider() string {
	return d.client.Name()
}

// Draft returns a suggested operator reply for roomID.
func (d *ReplyDrafter) Draft(ctx context.Context, roomID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	history, err := d.messages.RecentMessages(ctx, roomID, d.opts.History)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}

	resp, err := d.client.Complete(ctx, &llm.CompletionRequest{
		Model:     d.opts.Model,
		Messages:  BuildDraftPrompt(history),
		MaxTokens: d.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}

	d.logger.Debug("reply drafted",
		zap.String("room_id", roomID),
		zap.String("provider", d.client.Name()),
		zap.String("model", resp.Model),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Int64("latency_ms", resp.LatencyMs),
	)

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}

// BuildDraftPrompt renders history as a single prompt. Deleted messages
// and images are shown by placeholder text.
func BuildDraftPrompt(history []model.ChatMessage) []llm.ChatMessage {
	var b strings.Builder
	b.WriteString(draftInstruction)
	b.WriteString("\n\n")
	for i := range history {
		msg := &history[i]
		label := "応募者"
		if msg.Sender == model.RoleAdmin {
			label = "運営"
		}
		text := msg.DisplayText()
		if text == "" && msg.ImageURL != nil {
			text = "（画像）"
		}
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", label, text)
	}
	return []llm.ChatMessage{{Role: llm.RoleUser, Content: b.String()}}
}

// DraftReply asks the drafter for a reply and puts it into the operator's
// input for roomID, exactly like selecting a quick reply.
func (s *ChatService) DraftReply(ctx context.Context, roomID string) (*model.SelectionResponse, error) {
	if s.drafter == nil {
		return nil, ErrDraftingDisabled
	}

	ctx, span := tracer.Start(ctx, "ChatService.DraftReply")
	defer span.End()

	text, err := s.drafter.Draft(ctx, roomID)
	if err != nil {
		metrics.DraftRequestsTotal.WithLabelValues(s.drafter.Provider(), "error").Inc()
		span.RecordError(err)
		return nil, err
	}
	metrics.DraftRequestsTotal.WithLabelValues(s.drafter.Provider(), "ok").Inc()
	return s.applySelection(ctx, roomID, text)
}
