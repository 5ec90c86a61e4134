package convo

import (
	"math/rand"
	"strings"
	"time"

	"github.com/parleychat/parley/internal/models"
)

// responseFloor keeps agents from replying back to back instantly
// regardless of how low the configured intervals go.
const responseFloor = 2 * time.Second

// ResponseChance computes the probability that an agent replies to a
// message. The result may exceed 1, which makes the reply certain; a
// direct name mention is meant to nearly always get an answer.
func ResponseChance(agent *models.Agent, base float64, text string, sig Signals, ctx *Context) float64 {
	personality := strings.ToLower(agent.Personality)
	chance := base

	if strings.Contains(personality, "talkative") {
		chance += 0.2
	}
	if strings.Contains(personality, "reserved") {
		chance -= 0.2
	}

	if Mentions(text, agent.Name) {
		chance += 0.4
	}
	if sig.HasTechnicalTerms && strings.Contains(personality, "technical") {
		chance += 0.3
	}
	if sig.IsGreeting && strings.Contains(personality, "friendly") {
		chance += 0.2
	}
	if ctx.Participation(agent.Name) > 3 {
		chance -= 0.3
	}
	return chance
}

// ShouldRespond draws once against the computed chance.
func ShouldRespond(agent *models.Agent, base float64, text string, sig Signals, ctx *Context, rng *rand.Rand) bool {
	return rng.Float64() < ResponseChance(agent, base, text, sig, ctx)
}

// Delay computes how long an agent waits before replying. The base is
// uniform over the configured interval with a floor of two seconds,
// then shaped by personality, by the message itself and by how lively
// the conversation currently is.
func Delay(agent *models.Agent, settings *models.ChatSettings, text string, sig Signals, ctx *Context, now time.Time, rng *rand.Rand) time.Duration {
	minDelay := settings.MinInterval
	if minDelay < responseFloor {
		minDelay = responseFloor
	}
	maxDelay := settings.MaxInterval
	if maxDelay < minDelay+responseFloor {
		maxDelay = minDelay + responseFloor
	}

	delay := float64(minDelay) + rng.Float64()*float64(maxDelay-minDelay)

	personality := strings.ToLower(agent.Personality)
	if strings.Contains(personality, "quick") || strings.Contains(personality, "efficient") {
		delay *= 0.8
	}
	if strings.Contains(personality, "thoughtful") || strings.Contains(personality, "analytical") {
		delay *= 1.3
	}

	if sig.IsQuestion {
		delay *= 0.85
	}
	if Mentions(text, agent.Name) {
		delay *= 0.8
	}
	if sig.HasTechnicalTerms {
		delay *= 1.2
	}

	// Natural variance, 20% either way.
	delay *= 0.8 + rng.Float64()*0.4

	// Lively conversations move faster.
	if last := ctx.LastActivity(); !last.IsZero() && now.Sub(last) < 5*time.Second {
		delay *= 0.7
	}

	return time.Duration(delay)
}

// NextRoundDelay spaces out conversation rounds: twice the max
// interval as a base, inflated by how many members just had a chance
// to speak, plus jitter.
func NextRoundDelay(settings *models.ChatSettings, responders int, rng *rand.Rand) time.Duration {
	base := float64(settings.MaxInterval) * 2
	next := base + base*float64(responders)*0.5 + rng.Float64()*float64(3*time.Second)
	return time.Duration(next)
}
