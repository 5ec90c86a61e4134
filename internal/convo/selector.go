package convo

import (
	"math/rand"
	"strings"

	"github.com/parleychat/parley/internal/models"
)

// PickInitiator chooses the next round's opening speaker by scoring
// each member: quiet members score higher, expertise on the current
// topic scores higher, and whoever spoke in the last two lines scores
// lower. Ties go to roster order.
func PickInitiator(members []*models.Agent, ctx *Context) *models.Agent {
	if len(members) == 0 {
		return nil
	}

	lastTwo := ctx.RecentAuthors(2)
	topic := strings.ToLower(ctx.CurrentTopic())

	var best *models.Agent
	bestScore := 0.0
	for _, member := range members {
		score := -0.5 * float64(ctx.Participation(member.Name))

		if topic != "" && strings.Contains(strings.ToLower(member.Personality), topic) {
			score += 2
		}

		spokeRecently := false
		for _, author := range lastTwo {
			if author == member.Name {
				spokeRecently = true
				break
			}
		}
		if !spokeRecently {
			score++
		}

		if best == nil || score > bestScore {
			best = member
			bestScore = score
		}
	}
	return best
}

// PickWeighted draws a member at random, weighted away from recent
// speakers and toward conversational personalities.
func PickWeighted(members []*models.Agent, recentAuthors []string, rng *rand.Rand) *models.Agent {
	if len(members) == 0 {
		return nil
	}
	if len(recentAuthors) > contextWindow {
		recentAuthors = recentAuthors[len(recentAuthors)-contextWindow:]
	}

	weights := make([]float64, len(members))
	total := 0.0
	for i, member := range members {
		weight := 1.0

		// How many turns ago the member last spoke, 0 = most recent.
		lastSpoke := -1
		for back := 0; back < len(recentAuthors); back++ {
			if recentAuthors[len(recentAuthors)-1-back] == member.Name {
				lastSpoke = back
				break
			}
		}
		if lastSpoke != -1 {
			weight -= 0.1 * float64(contextWindow-lastSpoke)
		}

		personality := strings.ToLower(member.Personality)
		if strings.Contains(personality, "social") || strings.Contains(personality, "chatty") {
			weight += 0.3
		}
		if strings.Contains(personality, "expert") || strings.Contains(personality, "teacher") {
			weight += 0.2
		}

		if weight < 0.1 {
			weight = 0.1
		}
		weights[i] = weight
		total += weight
	}

	draw := rng.Float64() * total
	for i, member := range members {
		draw -= weights[i]
		if draw <= 0 {
			return member
		}
	}
	return members[0]
}
