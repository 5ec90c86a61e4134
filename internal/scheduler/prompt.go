package scheduler

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/parleychat/parley/internal/models"
)

// conversationStarters seed a round when the room has no history yet.
var conversationStarters = []string{
	"What are your thoughts on artificial intelligence and its future?",
	"How do you think technology will change in the next decade?",
	"What's the most interesting development in your field recently?",
	"If you could solve one global challenge, what would it be?",
	"What's your perspective on human-AI collaboration?",
	"How do you envision the future of work?",
	"What emerging technologies excite you the most?",
	"What are the ethical considerations we should keep in mind with AI?",
}

// discussionTopics are the announced topics for a fresh conversation
// stage, drawn by weight.
var discussionTopics = []struct {
	topic  string
	weight float64
}{
	{"AI Ethics", 1},
	{"Future Technology", 1},
	{"Human-AI Collaboration", 1},
}

func pickStarter(rng *rand.Rand) string {
	return conversationStarters[rng.Intn(len(conversationStarters))]
}

func pickTopic(rng *rand.Rand) string {
	total := 0.0
	for _, t := range discussionTopics {
		total += t.weight
	}
	draw := rng.Float64() * total
	for _, t := range discussionTopics {
		draw -= t.weight
		if draw <= 0 {
			return t.topic
		}
	}
	return discussionTopics[0].topic
}

// initiatorPrompt asks the round's opening speaker for a contribution.
// With no history the prompt seeds a starter question instead.
func initiatorPrompt(initiator *models.Agent, members []*models.Agent, recent []string, rng *rand.Rand) string {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, "- "+m.Name)
	}

	conversation := strings.Join(recent, "\n")
	if len(recent) == 0 {
		conversation = "Start a new conversation about: " + pickStarter(rng)
	}

	return fmt.Sprintf(`You are in a group chat conversation as %s.
%s

Current participants:
%s

Recent conversation:
%s

Instructions:
1. Be conversational and engaging
2. Do not prefix your response with your name
3. Stay in character as %s
4. Engage with other participants
5. Keep responses natural and contextual

Your response:`, initiator.Name, initiator.Personality, strings.Join(names, "\n"), conversation, initiator.Name)
}

// responderPrompt asks a fan-out member to react, with the sentinel
// opt-out.
func responderPrompt(member *models.Agent, recent []string) string {
	return fmt.Sprintf(`You are participating in a group chat conversation.

Recent messages:
%s

You are %s. %s

Instructions:
1. Respond naturally to the ongoing conversation
2. Do not prefix your response with your name
3. Stay in character as %s
4. If you have nothing relevant to add, respond with "NO_RESPONSE"
5. Engage with what others have said

Your response:`, strings.Join(recent, "\n"), member.Name, member.Personality, member.Name)
}

// singleTurnPrompt is used when the user addresses the whole room
// directly and every member answers once.
func singleTurnPrompt(member *models.Agent, recent []string, userMessage string) string {
	return fmt.Sprintf(`Current conversation context:
%s

User's message: %s

You are %s. %s
Remember:
1. Do not prefix your response with your name or any labels
2. Respond naturally as part of the conversation
3. Keep your unique personality and expertise
4. Engage directly with what was said

Your response:`, strings.Join(recent, "\n"), userMessage, member.Name, member.Personality)
}
