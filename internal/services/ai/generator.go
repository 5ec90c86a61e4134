package ai

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/pkg/textutil"
)

const groupInstruction = "You are participating in a group chat. Maintain conversation context and engage naturally with other participants."

// Generator produces agent replies with token budget enforcement.
// Replies that come back over the agent's effective limit go through
// the summarizer cascade.
type Generator struct {
	client     Client
	summarizer *Summarizer
	logger     *logrus.Logger
}

func NewGenerator(client Client, summarizer *Summarizer, logger *logrus.Logger) *Generator {
	return &Generator{client: client, summarizer: summarizer, logger: logger}
}

// EffectiveLimit is the token budget actually requested for an agent,
// 95% of the configured limit to leave headroom for the estimate
// being approximate.
func EffectiveLimit(limit int) int {
	return limit * 95 / 100
}

// Generate asks an agent to reply to prompt given the recent room
// context. Context messages are passed as prior assistant turns.
func (g *Generator) Generate(ctx context.Context, agent *models.Agent, prompt string, contextLines []string, tokenLimit int) (string, error) {
	effectiveLimit := EffectiveLimit(tokenLimit)

	messages := make([]models.ChatMessage, 0, len(contextLines)+2)
	if agent.Personality != "" {
		messages = append(messages, models.ChatMessage{
			Role:    "system",
			Content: fmt.Sprintf("%s\n%s", agent.Personality, groupInstruction),
		})
	}
	for _, line := range contextLines {
		messages = append(messages, models.ChatMessage{Role: "assistant", Content: line})
	}
	messages = append(messages, models.ChatMessage{Role: "user", Content: prompt})

	reply, err := g.client.Complete(ctx, agent, messages, effectiveLimit)
	if err != nil {
		return "", err
	}

	if textutil.EstimateTokens(reply) > effectiveLimit {
		reply = g.summarizer.Condense(ctx, agent, reply, effectiveLimit)
	}

	g.logger.WithFields(logrus.Fields{
		"agent":  agent.Name,
		"tokens": textutil.EstimateTokens(reply),
	}).Debug("Generated reply")
	return reply, nil
}

// GenerateDirect asks an agent to reply in a one-to-one chat, with the
// prior exchange passed role-tagged.
func (g *Generator) GenerateDirect(ctx context.Context, agent *models.Agent, history []models.ChatMessage, prompt string, tokenLimit int) (string, error) {
	effectiveLimit := EffectiveLimit(tokenLimit)

	messages := make([]models.ChatMessage, 0, len(history)+2)
	if agent.Personality != "" {
		messages = append(messages, models.ChatMessage{Role: "system", Content: agent.Personality})
	}
	messages = append(messages, history...)
	messages = append(messages, models.ChatMessage{Role: "user", Content: prompt})

	reply, err := g.client.Complete(ctx, agent, messages, effectiveLimit)
	if err != nil {
		return "", err
	}
	if textutil.EstimateTokens(reply) > effectiveLimit {
		reply = g.summarizer.Condense(ctx, agent, reply, effectiveLimit)
	}
	return reply, nil
}
