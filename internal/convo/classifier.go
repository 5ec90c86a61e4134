// Package convo holds the conversation dynamics: message
// classification, rolling context, speaker selection and the response
// policy that decides who replies and when.
package convo

import (
	"regexp"
	"strings"
)

// Topic labels produced by ClassifyTopic.
const (
	TopicTechnical  = "technical"
	TopicConceptual = "conceptual"
	TopicOpinion    = "opinion"
	TopicQuestion   = "question"
	TopicGeneral    = "general"
)

// Sentiment labels produced by ClassifySentiment.
const (
	SentimentPositive    = "positive"
	SentimentNegative    = "negative"
	SentimentNeutral     = "neutral"
	SentimentQuestioning = "questioning"
)

var topicPatterns = []struct {
	topic   string
	pattern *regexp.Regexp
}{
	{TopicTechnical, regexp.MustCompile(`(?i)\b(code|programming|algorithm|development|software)\b`)},
	{TopicConceptual, regexp.MustCompile(`(?i)\b(concept|theory|approach|methodology)\b`)},
	{TopicOpinion, regexp.MustCompile(`(?i)\b(think|believe|feel|opinion|perspective)\b`)},
	{TopicQuestion, regexp.MustCompile(`(?i)\b(what|how|why|when|where|who|which)\b.*\?`)},
}

var sentimentPatterns = []struct {
	sentiment string
	pattern   *regexp.Regexp
}{
	{SentimentPositive, regexp.MustCompile(`(?i)\b(great|good|excellent|amazing|love|happy|agree|yes|thanks)\b`)},
	{SentimentNegative, regexp.MustCompile(`(?i)\b(bad|wrong|disagree|no|cannot|shouldn't|won't)\b`)},
	{SentimentNeutral, regexp.MustCompile(`(?i)\b(think|maybe|perhaps|possibly|understand)\b`)},
	{SentimentQuestioning, regexp.MustCompile(`(?i)\b(what|how|why|when|where|who|which)\b.*\?`)},
}

var (
	questionPattern  = regexp.MustCompile(`\?`)
	technicalPattern = regexp.MustCompile(`(?i)\b(code|programming|javascript|python|api|data|algorithm)\b`)
	greetingPattern  = regexp.MustCompile(`(?i)\b(hi|hello|hey|greetings)\b`)
	opinionPattern   = regexp.MustCompile(`(?i)\b(think|believe|feel|opinion|consider)\b`)
	emotionPattern   = regexp.MustCompile(`(?i)\b(happy|sad|angry|excited|interesting|curious)\b`)
)

// ClassifyTopic labels a message with its dominant topic, first match
// wins.
func ClassifyTopic(text string) string {
	for _, entry := range topicPatterns {
		if entry.pattern.MatchString(text) {
			return entry.topic
		}
	}
	return TopicGeneral
}

// Sentiment is a coarse emotional read of a single message.
type Sentiment struct {
	Type     string
	Strength float64
}

// ClassifySentiment labels a message's sentiment. Strength grows with
// the number of indicator hits.
func ClassifySentiment(text string) Sentiment {
	for _, entry := range sentimentPatterns {
		if matches := entry.pattern.FindAllString(text, -1); len(matches) > 0 {
			return Sentiment{
				Type:     entry.sentiment,
				Strength: float64(len(matches))*0.2 + 0.5,
			}
		}
	}
	return Sentiment{Type: SentimentNeutral, Strength: 0.5}
}

// Signals are the surface features of a message that drive response
// chance and delay.
type Signals struct {
	IsQuestion        bool
	HasTechnicalTerms bool
	IsGreeting        bool
	IsOpinion         bool
	HasEmotion        bool
}

// Analyze extracts the response-driving signals from a message.
func Analyze(text string) Signals {
	return Signals{
		IsQuestion:        questionPattern.MatchString(text),
		HasTechnicalTerms: technicalPattern.MatchString(text),
		IsGreeting:        greetingPattern.MatchString(text),
		IsOpinion:         opinionPattern.MatchString(text),
		HasEmotion:        emotionPattern.MatchString(text),
	}
}

// Mentions reports whether text names the agent directly.
func Mentions(text, agentName string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(agentName))
}
