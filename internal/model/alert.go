package model

// AlertType identifies what triggered an alert.
type AlertType string

const (
	AlertSentimentDrop     AlertType = "sentiment_drop"
	AlertDeadlineRisk      AlertType = "deadline_risk"
	AlertCompetitorMention AlertType = "competitor_mention"
	AlertPositiveUpdate    AlertType = "positive_update"
)

// Severity ranks how urgent an alert is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Alert is one deterministic finding from the monitoring flow.
type Alert struct {
	Type        AlertType `json:"alert_type"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

// Communication is one inbound message (email, call note) about a deal,
// fetched from an upstream integration. Batches arrive newest first.
type Communication struct {
	Type    string `json:"type"`
	Date    string `json:"date"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// SentimentScore is the per-communication sentiment assessment.
type SentimentScore struct {
	Index     int      `json:"index"`
	Sentiment float64  `json:"sentiment"`
	Signals   []string `json:"signals,omitempty"`
	Summary   string   `json:"summary,omitempty"`
}

// Trend classifies health-score movement between monitoring runs.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// RecoveryPlan is the drafted client reply plus internal follow-ups
// produced by the monitoring flow's recovery stage.
type RecoveryPlan struct {
	EmailSubject string   `json:"email_subject,omitempty"`
	EmailBody    string   `json:"email_body,omitempty"`
	Actions      []string `json:"actions,omitempty"`
}
