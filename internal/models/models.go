// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

// Package models defines the data model of spec §3: the row shapes shared
// across storage, ingest, classification, and every analytics component.
package models

import "time"

// Website is the tenant-scoping entity every analytics query and ingested
// event is keyed by.
type Website struct {
	ID        int64
	TenantID  string
	Name      string
	Domain    string
	Timezone  string
	ShareID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session rolls up a visitor's activity within the idle window.
type Session struct {
	SessionID     string
	WebsiteID     int64
	VisitorID     string
	FirstSeen     time.Time
	LastSeen      time.Time
	PageviewCount int
	EntryPage     string
	IsBot         bool
	BotScore      int
	BotReason     string
}

// EventType enumerates the two kinds of row the ingest pipeline accepts.
type EventType string

const (
	EventTypePageview EventType = "pageview"
	EventTypeEvent    EventType = "event"
)

// Event is the immutable (except for bot flags) flat row stored per
// pageview or custom event.
type Event struct {
	ID          int64
	WebsiteID   int64
	SessionID   string
	VisitorID   string
	EventType   EventType
	EventName   string
	EventData   string
	URL         string
	Referrer    string
	Country     string
	Region      string
	City        string
	Browser     string
	OS          string
	DeviceType  string
	Screen      string
	Language    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	LinkID      *int64
	PixelID     *int64
	SourceIP    string
	UserAgent   string
	IsBot       bool
	BotScore    int
	BotReason   string
	CreatedAt   time.Time
}

// GoalType enumerates what an event must match to satisfy a Goal.
type GoalType string

const (
	GoalTypePageView GoalType = "page_view"
	GoalTypeEvent    GoalType = "event"
)

// MatchOperator enumerates the comparison applied between a goal/funnel
// step's MatchValue and the candidate event field.
type MatchOperator string

const (
	MatchOperatorEquals   MatchOperator = "equals"
	MatchOperatorContains MatchOperator = "contains"
)

// ValueMode enumerates how a Goal's conversion revenue is computed.
type ValueMode string

const (
	ValueModeNone           ValueMode = "none"
	ValueModeFixed          ValueMode = "fixed"
	ValueModeEventProperty  ValueMode = "event_property"
)

// Goal is a named conversion definition, unique per website.
type Goal struct {
	ID               int64
	WebsiteID        int64
	Name             string
	GoalType         GoalType
	MatchValue       string
	MatchOperator    MatchOperator
	ValueMode        ValueMode
	FixedValue       *float64
	ValuePropertyKey string
	Currency         string
}

// FunnelStep is one ordered step of a Funnel.
type FunnelStep struct {
	ID            int64
	FunnelID      int64
	StepOrder     int
	StepType      GoalType
	MatchValue    string
	MatchOperator MatchOperator
	Label         string
}

// Funnel is an ordered sequence of 2-8 steps, unique per website by name.
type Funnel struct {
	ID        int64
	WebsiteID int64
	Name      string
	Steps     []FunnelStep
}

// BotPolicyMode enumerates the three classification policies of spec §4.D.
type BotPolicyMode string

const (
	BotPolicyModeStrict   BotPolicyMode = "strict"
	BotPolicyModeBalanced BotPolicyMode = "balanced"
	BotPolicyModeOff      BotPolicyMode = "off"
)

// BotPolicy is the per-website classification policy.
type BotPolicy struct {
	WebsiteID      int64
	Mode           BotPolicyMode
	ThresholdScore int
	UpdatedAt      time.Time
}

// OverrideListKind enumerates whether an override rule allows or blocks.
type OverrideListKind string

const (
	OverrideListAllow OverrideListKind = "allow"
	OverrideListBlock OverrideListKind = "block"
)

// OverrideMatchType enumerates the supported override rule matchers.
type OverrideMatchType string

const (
	OverrideMatchUAContains OverrideMatchType = "ua_contains"
	OverrideMatchIPExact    OverrideMatchType = "ip_exact"
	OverrideMatchIPCIDR     OverrideMatchType = "ip_cidr"
)

// BotOverride is a manual allow/block rule that takes precedence over
// heuristic bot classification.
type BotOverride struct {
	ID         int64
	WebsiteID  int64
	ListKind   OverrideListKind
	MatchType  OverrideMatchType
	MatchValue string
	Note       string
	CreatedAt  time.Time
}

// RecomputeStatus enumerates the lifecycle of a bot-recompute run.
type RecomputeStatus string

const (
	RecomputeStatusQueued  RecomputeStatus = "queued"
	RecomputeStatusRunning RecomputeStatus = "running"
	RecomputeStatusSuccess RecomputeStatus = "success"
	RecomputeStatusFailed  RecomputeStatus = "failed"
)

// RecomputeRun tracks a single window-scoped bot reclassification job.
type RecomputeRun struct {
	ID           int64
	WebsiteID    int64
	StartDate    time.Time
	EndDate      time.Time
	Status       RecomputeStatus
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// Schedule enumerates the fixed schedule vocabulary for subscriptions.
type Schedule string

const (
	ScheduleDaily   Schedule = "daily"
	ScheduleWeekly  Schedule = "weekly"
	ScheduleMonthly Schedule = "monthly"
)

// DeliveryChannel enumerates the supported outbound transports.
type DeliveryChannel string

const (
	ChannelEmail   DeliveryChannel = "email"
	ChannelWebhook DeliveryChannel = "webhook"
)

// Subscription is a scheduled report delivery.
type Subscription struct {
	ID         int64
	WebsiteID  int64
	ReportID   string
	Schedule   Schedule
	Timezone   string
	Channel    DeliveryChannel
	Target     string
	IsActive   bool
	LastRunAt  *time.Time
	NextRunAt  time.Time
	CreatedAt  time.Time
}

// AlertMetric enumerates the metrics an AlertRule can watch.
type AlertMetric string

const (
	AlertMetricPageviews      AlertMetric = "pageviews"
	AlertMetricVisitors       AlertMetric = "visitors"
	AlertMetricConversions    AlertMetric = "conversions"
	AlertMetricConversionRate AlertMetric = "conversion_rate"
)

// AlertConditionType enumerates how an AlertRule's threshold is evaluated.
type AlertConditionType string

const (
	AlertConditionSpike           AlertConditionType = "spike"
	AlertConditionDrop            AlertConditionType = "drop"
	AlertConditionThresholdAbove  AlertConditionType = "threshold_above"
	AlertConditionThresholdBelow  AlertConditionType = "threshold_below"
)

// AlertRule is a watched metric condition that triggers a delivery.
type AlertRule struct {
	ID             int64
	WebsiteID      int64
	Name           string
	Metric         AlertMetric
	ConditionType  AlertConditionType
	ThresholdValue float64
	LookbackDays   int
	Channel        DeliveryChannel
	Target         string
	IsActive       bool
}

// DeliverySourceType enumerates what triggered a NotificationDelivery.
type DeliverySourceType string

const (
	DeliverySourceSubscription DeliverySourceType = "subscription"
	DeliverySourceAlert        DeliverySourceType = "alert"
)

// DeliveryStatus enumerates the outcome of a delivery attempt.
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// NotificationDelivery records one idempotent delivery attempt.
type NotificationDelivery struct {
	ID             int64
	SourceType     DeliverySourceType
	SourceID       int64
	IdempotencyKey string
	Status         DeliveryStatus
	ErrorMessage   string
	DeliveredAt    time.Time
}
