package services

import (
	"log/slog"
	"regexp"
	"strings"
)

// Threat levels, ordered by severity.
const (
	ThreatSafe     = "safe"
	ThreatLow      = "low"
	ThreatMedium   = "medium"
	ThreatHigh     = "high"
	ThreatCritical = "critical"
)

// Threat types.
const (
	ThreatTypePromptInjection = "prompt_injection"
	ThreatTypeJailbreak       = "jailbreak"
	ThreatTypeSQLInjection    = "sql_injection"
	ThreatTypeXSS             = "xss"
	ThreatTypeSpam            = "spam_repetition"
)

// ThreatAssessment is the scanner's verdict for one message.
type ThreatAssessment struct {
	Level       string
	Type        string
	MatchedRule string
}

// ShouldBlock reports whether the assessment must short-circuit the pipeline.
// Only high and critical findings block; lower levels are logged for audit.
func (a ThreatAssessment) ShouldBlock() bool {
	return a.Level == ThreatHigh || a.Level == ThreatCritical
}

// ThreatRule is one declarative detection rule. New rules are added to the
// table, not to control flow.
type ThreatRule struct {
	Name    string
	Type    string
	Level   string
	Pattern *regexp.Regexp
}

// Spam repetition thresholds: identical content in the last 3 user turns,
// looking back over the most recent 6 messages.
const (
	spamRepeatCount = 3
	SpamLookback    = 6
)

var threatRules = []ThreatRule{
	// Prompt injection: instruction override
	{
		Name:    "instruction_override",
		Type:    ThreatTypePromptInjection,
		Level:   ThreatCritical,
		Pattern: regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|prompts?|rules?|context)`),
	},
	{
		Name:    "system_prompt_probe",
		Type:    ThreatTypePromptInjection,
		Level:   ThreatHigh,
		Pattern: regexp.MustCompile(`(?i)(show|reveal|print|repeat|output|display)\s+(your\s+|the\s+)?(system\s+prompt|instructions|rules)`),
	},
	{
		Name:    "system_prompt_mention",
		Type:    ThreatTypePromptInjection,
		Level:   ThreatMedium,
		Pattern: regexp.MustCompile(`(?i)system\s+prompt`),
	},
	{
		Name:    "delimiter_injection",
		Type:    ThreatTypePromptInjection,
		Level:   ThreatHigh,
		Pattern: regexp.MustCompile(`(?i)(</?system>|\[INST\]|\[/INST\]|<<SYS>>)`),
	},
	// Jailbreak phrasing
	{
		Name:    "jailbreak_keyword",
		Type:    ThreatTypeJailbreak,
		Level:   ThreatHigh,
		Pattern: regexp.MustCompile(`(?i)\bjailbreak\b|\bDAN\s+mode\b|developer\s+mode`),
	},
	{
		Name:    "role_override",
		Type:    ThreatTypeJailbreak,
		Level:   ThreatHigh,
		Pattern: regexp.MustCompile(`(?i)(act\s+as|pretend\s+(you\s+are|to\s+be)|you\s+are\s+now)\s+(a|an|the)?\s*(system|admin|root|developer|dan)`),
	},
	{
		Name:    "role_play_generic",
		Type:    ThreatTypeJailbreak,
		Level:   ThreatLow,
		Pattern: regexp.MustCompile(`(?i)\bact\s+as\b`),
	},
	// SQL fragments
	{
		Name:    "sql_statement",
		Type:    ThreatTypeSQLInjection,
		Level:   ThreatHigh,
		Pattern: regexp.MustCompile(`(?i)(union\s+select|drop\s+table|insert\s+into|delete\s+from|'\s*or\s+'?1'?\s*=\s*'?1|--\s*$)`),
	},
	// XSS fragments
	{
		Name:    "script_tag",
		Type:    ThreatTypeXSS,
		Level:   ThreatHigh,
		Pattern: regexp.MustCompile(`(?i)(<script[\s>]|javascript:|onerror\s*=|onload\s*=)`),
	},
}

// ThreatScanner is a deterministic rule-based detector. No learned model;
// the same input always yields the same assessment.
type ThreatScanner struct {
	rules []ThreatRule
}

// NewThreatScanner creates a scanner with the default rule set.
func NewThreatScanner() *ThreatScanner {
	return &ThreatScanner{rules: threatRules}
}

// Scan classifies a message. recentUserMessages are the lead's latest user
// turns (newest first, current message excluded) used for the repetition
// check; only the most recent SpamLookback entries are considered.
func (s *ThreatScanner) Scan(content string, recentUserMessages []string) ThreatAssessment {
	worst := ThreatAssessment{Level: ThreatSafe}

	for _, rule := range s.rules {
		if rule.Pattern.MatchString(content) {
			if threatRank(rule.Level) > threatRank(worst.Level) {
				worst = ThreatAssessment{
					Level:       rule.Level,
					Type:        rule.Type,
					MatchedRule: rule.Name,
				}
			}
		}
	}

	if spam := s.scanRepetition(content, recentUserMessages); spam != nil {
		if threatRank(spam.Level) > threatRank(worst.Level) {
			worst = *spam
		}
	}

	if worst.Level != ThreatSafe && !worst.ShouldBlock() {
		slog.Info("Low-severity threat match",
			"level", worst.Level,
			"type", worst.Type,
			"rule", worst.MatchedRule)
	}

	return worst
}

// scanRepetition fires when the current message makes the third identical
// user turn in a row within the lookback.
func (s *ThreatScanner) scanRepetition(content string, recent []string) *ThreatAssessment {
	if len(recent) > SpamLookback {
		recent = recent[:SpamLookback]
	}

	normalized := strings.ToLower(strings.TrimSpace(content))
	if normalized == "" {
		return nil
	}

	identical := 1 // the current message
	for _, prev := range recent {
		if strings.ToLower(strings.TrimSpace(prev)) == normalized {
			identical++
			if identical >= spamRepeatCount {
				return &ThreatAssessment{
					Level:       ThreatHigh,
					Type:        ThreatTypeSpam,
					MatchedRule: "identical_repetition",
				}
			}
		} else {
			break
		}
	}

	return nil
}

func threatRank(level string) int {
	switch level {
	case ThreatCritical:
		return 4
	case ThreatHigh:
		return 3
	case ThreatMedium:
		return 2
	case ThreatLow:
		return 1
	default:
		return 0
	}
}
