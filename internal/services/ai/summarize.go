package ai

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/middleware"
	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/pkg/textutil"
)

// Summarizer condenses an oversize reply back under an agent's token
// limit without losing the agent's voice.
type Summarizer struct {
	client  Client
	metrics *middleware.Metrics
	logger  *logrus.Logger
}

func NewSummarizer(client Client, metrics *middleware.Metrics, logger *logrus.Logger) *Summarizer {
	return &Summarizer{client: client, metrics: metrics, logger: logger}
}

// Condense shortens text to at most maxTokens. It tries an in-persona
// rewrite first, then a basic summary, then truncation. Truncation
// cannot fail, so Condense always returns a fitting result.
func (s *Summarizer) Condense(ctx context.Context, agent *models.Agent, text string, maxTokens int) string {
	if textutil.EstimateTokens(text) <= maxTokens {
		return text
	}

	s.logger.WithFields(logrus.Fields{
		"agent":     agent.Name,
		"tokens":    textutil.EstimateTokens(text),
		"maxTokens": maxTokens,
	}).Info("Reply exceeds token limit, condensing")

	if smart, err := s.smartSummary(ctx, agent, text, maxTokens); err == nil && textutil.EstimateTokens(smart) <= maxTokens {
		s.metrics.RecordSummary("smart")
		return smart
	} else if err != nil {
		s.logger.WithError(err).WithField("agent", agent.Name).Warn("Smart summary failed")
	}

	if basic, err := s.basicSummary(ctx, agent, text, maxTokens); err == nil && basic != "" {
		s.metrics.RecordSummary("basic")
		return basic
	} else if err != nil {
		s.logger.WithError(err).WithField("agent", agent.Name).Warn("Basic summary failed")
	}

	s.metrics.RecordSummary("truncate")
	return textutil.TruncateTokens(text, maxTokens)
}

// smartSummary asks the agent to rewrite its own reply in character.
func (s *Summarizer) smartSummary(ctx context.Context, agent *models.Agent, text string, maxTokens int) (string, error) {
	prompt := fmt.Sprintf(`You need to rewrite the following response to fit within %d tokens while:
1. Maintaining your personality and role as %s
2. Preserving key information and technical details
3. Keeping the same tone and emotion
4. Ensuring the response remains natural and conversational

Original text to summarize:
%s

Important: Your response should be a direct continuation of the conversation, not a meta-description of the summary.`, maxTokens, agent.Name, text)

	return s.client.Complete(ctx, agent, []models.ChatMessage{
		{Role: "system", Content: agent.Personality},
		{Role: "user", Content: prompt},
	}, maxTokens)
}

func (s *Summarizer) basicSummary(ctx context.Context, agent *models.Agent, text string, maxTokens int) (string, error) {
	return s.client.Complete(ctx, agent, []models.ChatMessage{
		{
			Role:    "system",
			Content: fmt.Sprintf("%s\nAdditional instruction: Summarize while maintaining the same tone and personality.", agent.Personality),
		},
		{
			Role:    "user",
			Content: fmt.Sprintf("Please summarize this response to fit within %d tokens while maintaining the key points and your personality:\n\n%s", maxTokens, text),
		},
	}, maxTokens)
}
