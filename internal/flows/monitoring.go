package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/esshva/quinn/internal/extract"
	"github.com/esshva/quinn/internal/model"
)

// defaultHealthScore is the baseline for deals with no recorded health.
const defaultHealthScore = 70

// Monitoring builds the four-stage deal monitoring flow:
// sentiment → health → alert → recovery.
func Monitoring(d Deps) Graph {
	return Graph{
		Flow: model.FlowMonitoring,
		Stages: []Stage{
			{Name: "sentiment", Message: "Analyzing communication sentiment...", Run: d.sentimentStage},
			{Name: "health", Message: "Calculating deal health score...", Run: d.healthStage},
			{Name: "alert", Message: "Detecting potential risks...", Run: d.alertStage},
			{Name: "recovery", Message: "Generating recovery strategy...", Run: d.recoveryStage},
		},
	}
}

type sentimentResult struct {
	Scores           []model.SentimentScore `json:"scores"`
	OverallSentiment float64                `json:"overall_sentiment"`
}

// sentimentStage scores recency-weighted sentiment over the communication
// batch. Batches arrive newest first; the most recent item carries the
// highest weight.
func (d Deps) sentimentStage(ctx context.Context, s State) map[string]any {
	comms := Get[[]model.Communication](s, KeyCommunications)
	deal := Get[model.Deal](s, KeyDeal)

	if len(comms) == 0 {
		d.logger().Warn("sentiment: no communications to analyze")
		return map[string]any{
			KeySentimentScores:  []model.SentimentScore{},
			KeyOverallSentiment: 0.0,
		}
	}

	var lines []string
	for i, c := range comms {
		if i == 10 {
			break
		}
		label := fmt.Sprintf("Email #%d", i+1)
		if i == 0 {
			label = "* MOST RECENT EMAIL"
		}
		lines = append(lines, fmt.Sprintf("--- %s (Date: %s) ---\nFrom: %s\nSubject: %s\n%s",
			label, orUnknown(c.Date), orUnknown(c.From), orUnknown(c.Subject), c.Content))
	}

	prompt := fmt.Sprintf(`You are a deal intelligence analyst. Analyze the sentiment of these recent communications for the deal: %s.

IMPORTANT: The emails below are sorted NEWEST FIRST. The MOST RECENT EMAIL carries the HIGHEST weight; it reflects the client's CURRENT state of mind. Older emails provide context but should NOT override the latest sentiment. If the latest email is positive, the overall sentiment should lean positive even if older emails were negative.

COMMUNICATIONS:
%s

Analyze each communication and provide overall sentiment. The overall_sentiment MUST primarily reflect the most recent email's tone. Return JSON:
{
    "scores": [
        {
            "index": 0,
            "sentiment": -1.0 to 1.0,
            "signals": ["positive or negative signals detected"],
            "summary": "brief summary"
        }
    ],
    "overall_sentiment": -1.0 to 1.0 (MUST primarily reflect the LATEST email)
}

Return ONLY valid JSON.`, orUnknown(deal.Title), strings.Join(lines, "\n\n"))

	raw := d.generate(ctx, prompt, d.Tunables.AnalysisTokens)

	var result sentimentResult
	if !extract.Decode(raw, "overall_sentiment", &result) {
		d.logger().Error("sentiment: could not parse reasoner response")
		return map[string]any{
			KeySentimentScores:  []model.SentimentScore{},
			KeyOverallSentiment: 0.0,
			KeyErrors:           []string{"sentiment parsing failed"},
		}
	}
	result.OverallSentiment = extract.ClampRange(result.OverallSentiment, -1, 1)
	for i := range result.Scores {
		result.Scores[i].Sentiment = extract.ClampRange(result.Scores[i].Sentiment, -1, 1)
	}

	d.logger().Info("sentiment: analysis complete",
		"communications_analyzed", len(result.Scores), "overall_sentiment", result.OverallSentiment)
	return map[string]any{
		KeySentimentScores:  result.Scores,
		KeyOverallSentiment: result.OverallSentiment,
	}
}

// healthStage blends the prior health score with the sentiment delta and
// classifies the trend. Deterministic; no reasoning call.
func (d Deps) healthStage(_ context.Context, s State) map[string]any {
	deal := Get[model.Deal](s, KeyDeal)
	sentiment := Get[float64](s, KeyOverallSentiment)

	base := deal.HealthScore
	if base == 0 {
		base = defaultHealthScore
	}

	adjustment := int(sentiment * d.Tunables.SentimentWeight)
	health := base + adjustment
	if health < 0 {
		health = 0
	}
	if health > 100 {
		health = 100
	}

	previous := base
	if p, ok := s[KeyPreviousHealth].(int); ok {
		previous = p
	}
	trend := model.TrendStable
	switch {
	case health > previous+d.Tunables.TrendThreshold:
		trend = model.TrendUp
	case health < previous-d.Tunables.TrendThreshold:
		trend = model.TrendDown
	}

	d.logger().Info("health: score calculated", "score", health, "trend", trend)
	return map[string]any{
		KeyHealthScore: health,
		KeyTrend:       trend,
	}
}

// alertStage derives alerts from fixed thresholds. Deterministic; the
// positive_update info alert fires only when nothing negative did.
func (d Deps) alertStage(_ context.Context, s State) map[string]any {
	sentiment := Get[float64](s, KeyOverallSentiment)
	health := Get[int](s, KeyHealthScore)
	scores := Get[[]model.SentimentScore](s, KeySentimentScores)
	deal := Get[model.Deal](s, KeyDeal)

	client := deal.ClientName
	if client == "" {
		client = "client"
	}

	var alerts []model.Alert

	if sentiment < -0.3 {
		severity := model.SeverityHigh
		if sentiment < -0.6 {
			severity = model.SeverityCritical
		}
		alerts = append(alerts, model.Alert{
			Type:        model.AlertSentimentDrop,
			Severity:    severity,
			Title:       fmt.Sprintf("Negative sentiment detected for %s", client),
			Description: fmt.Sprintf("Overall sentiment score: %.2f. Immediate attention required.", sentiment),
		})
	}

	if health < 50 {
		alerts = append(alerts, model.Alert{
			Type:        model.AlertDeadlineRisk,
			Severity:    model.SeverityHigh,
			Title:       fmt.Sprintf("Deal health critical: %d%%", health),
			Description: fmt.Sprintf("Deal health has dropped to %d%%. Review and take action.", health),
		})
	}

	for _, score := range scores {
		for _, signal := range score.Signals {
			if strings.Contains(strings.ToLower(signal), "competitor") {
				alerts = append(alerts, model.Alert{
					Type:        model.AlertCompetitorMention,
					Severity:    model.SeverityMedium,
					Title:       "Competitor mentioned in communications",
					Description: signal,
				})
				break
			}
		}
	}

	if len(alerts) == 0 && sentiment > 0.2 {
		var signals []string
		for _, score := range scores {
			signals = append(signals, score.Signals...)
		}
		detail := "Good relationship signals detected."
		if len(signals) > 0 {
			if len(signals) > 3 {
				signals = signals[:3]
			}
			detail = strings.Join(signals, "; ")
		}
		alerts = append(alerts, model.Alert{
			Type:        model.AlertPositiveUpdate,
			Severity:    model.SeverityInfo,
			Title:       fmt.Sprintf("Positive sentiment from %s", client),
			Description: fmt.Sprintf("Client communication is positive (sentiment: %.2f). %s", sentiment, detail),
		})
	}

	d.logger().Info("alert: alerts generated", "alert_count", len(alerts))
	return map[string]any{KeyAlerts: alerts}
}

type recoveryResult struct {
	RecoveryEmail   string   `json:"recovery_email"`
	RecoveryActions []string `json:"recovery_actions"`
}

// recoveryStage drafts a reply email and internal action items. Skipped
// (empty plan) when the alert stage produced nothing. Positive situations
// get a follow-up draft, negative ones a recovery draft.
func (d Deps) recoveryStage(ctx context.Context, s State) map[string]any {
	alerts := Get[[]model.Alert](s, KeyAlerts)
	deal := Get[model.Deal](s, KeyDeal)
	sentiment := Get[float64](s, KeyOverallSentiment)
	comms := Get[[]model.Communication](s, KeyCommunications)

	if len(alerts) == 0 {
		d.logger().Info("recovery: no alerts detected, skipping")
		return map[string]any{KeyRecovery: model.RecoveryPlan{}}
	}

	positive := true
	var alertLines []string
	for _, a := range alerts {
		if a.Type != model.AlertPositiveUpdate {
			positive = false
		}
		alertLines = append(alertLines, fmt.Sprintf("- [%s] %s: %s", a.Severity, a.Title, a.Description))
	}

	commsSummary, senderName, senderEmail := summarizeComms(comms)
	recipient := senderName
	if recipient == "" {
		recipient = orUnknown(deal.ClientName)
	}
	if commsSummary == "" {
		commsSummary = "(No source emails available)"
	}
	if senderEmail == "" {
		senderEmail = "their email"
	}

	var prompt string
	if positive {
		prompt = fmt.Sprintf(`You are a deal intelligence analyst. The client has sent a POSITIVE email about the deal. Generate a warm, professional reply to strengthen the relationship.

DEAL: %s
CLIENT: %s
SENTIMENT: %.2f (POSITIVE)

SOURCE EMAILS:
%s

RECIPIENT: %s at %s

Generate:
1. A warm, professional reply email that thanks them for the positive feedback, references specific points from their email, reaffirms commitment, and proposes next steps. The email must be well-formatted with separate paragraphs, start with a greeting, and end with a professional sign-off.
2. A list of internal action items to capitalize on the positive momentum.

Return JSON:
{
    "recovery_email": "Subject: Re: ...\n\nDear %s,\n\n...",
    "recovery_actions": ["Action item 1", "Action item 2"]
}

Return ONLY valid JSON.`,
			orUnknown(deal.Title), orUnknown(deal.ClientName), sentiment,
			commsSummary, recipient, senderEmail, recipient)
	} else {
		prompt = fmt.Sprintf(`You are a deal intelligence analyst. Based on these alerts for %s, generate a recovery strategy.

DEAL: %s
CLIENT: %s
SENTIMENT: %.2f

ALERTS:
%s

SOURCE EMAILS THAT TRIGGERED THESE ALERTS:
%s

RECIPIENT FOR RECOVERY EMAIL: %s at %s

Provide:
1. A professional recovery email that directly addresses their specific concerns from the source emails above, reaffirms value, and offers concrete next steps. The email must be well-formatted with separate paragraphs, start with a greeting, and end with a professional sign-off.
2. A list of internal action items for the team.

Return JSON:
{
    "recovery_email": "Subject: Re: Concern about ...\n\nDear [Name],\n\n...",
    "recovery_actions": ["Action item 1", "Action item 2"]
}

Return ONLY valid JSON.`,
			orUnknown(deal.ClientName), orUnknown(deal.Title), orUnknown(deal.ClientName),
			sentiment, strings.Join(alertLines, "\n"), commsSummary, recipient, senderEmail)
	}

	raw := d.generate(ctx, prompt, d.Tunables.AnalysisTokens)

	var result recoveryResult
	if !extract.Decode(raw, "recovery_email", &result) {
		d.logger().Error("recovery: could not parse reasoner response")
		return map[string]any{
			KeyRecovery: model.RecoveryPlan{},
			KeyErrors:   []string{"recovery parsing failed"},
		}
	}

	plan := splitRecoveryEmail(result.RecoveryEmail, deal.Title)
	plan.Actions = result.RecoveryActions

	d.logger().Info("recovery: strategy generated", "actions_count", len(plan.Actions))
	return map[string]any{KeyRecovery: plan}
}

// splitRecoveryEmail pulls a leading "Subject:" line out of a drafted
// email. Drafts without one get a "Re:" subject built from the deal title.
func splitRecoveryEmail(raw, dealTitle string) model.RecoveryPlan {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.RecoveryPlan{}
	}
	first, rest, _ := strings.Cut(raw, "\n")
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(first)), "subject:") {
		subject := strings.TrimSpace(strings.TrimSpace(first)[len("subject:"):])
		return model.RecoveryPlan{
			EmailSubject: subject,
			EmailBody:    strings.TrimSpace(rest),
		}
	}
	return model.RecoveryPlan{
		EmailSubject: "Re: " + dealTitle,
		EmailBody:    raw,
	}
}

// summarizeComms renders source emails for recovery prompts and pulls the
// first sender as the reply recipient. Content is capped per email.
func summarizeComms(comms []model.Communication) (summary, senderName, senderEmail string) {
	if len(comms) == 0 {
		return "", "", ""
	}
	var lines []string
	for _, c := range comms {
		content := c.Content
		if len(content) > 500 {
			content = content[:500]
		}
		lines = append(lines, fmt.Sprintf("From: %s\nSubject: %s\nDate: %s\n%s",
			c.From, orUnknown(c.Subject), c.Date, content))
		if senderEmail == "" && c.From != "" {
			senderEmail = c.From
			if name, _, found := strings.Cut(c.From, "<"); found {
				senderName = strings.Trim(strings.TrimSpace(name), `"`)
			} else if name, _, found := strings.Cut(c.From, "@"); found {
				senderName = name
			}
		}
	}
	return strings.Join(lines, "\n---\n"), senderName, senderEmail
}
