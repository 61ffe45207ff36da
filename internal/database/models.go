package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// ServiceState represents the availability state of a service
type ServiceState string

const (
	ServiceStateUnknown ServiceState = "unknown"
	ServiceStateUp      ServiceState = "up"
	ServiceStateDown    ServiceState = "down"
	ServiceStatePaused  ServiceState = "paused"
)

// Severity represents the importance of a service, copied onto its alerts
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Service is a monitored service owning monitors, alerts and mute windows.
// State transitions only happen through the state machine.
type Service struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	Name              string       `gorm:"size:255;not null" json:"name"`
	State             ServiceState `gorm:"type:varchar(20);not null;default:'unknown'" json:"state"`
	PreviousState     ServiceState `gorm:"type:varchar(20);not null;default:'unknown'" json:"previous_state"`
	Severity          Severity     `gorm:"type:varchar(20);not null;default:'medium'" json:"severity"`
	PausedUntil       *time.Time   `json:"paused_until,omitempty"`
	AutoResume        bool         `gorm:"default:false" json:"auto_resume"`
	Suppressed        bool         `gorm:"default:false" json:"suppressed"`
	SuppressionReason string       `gorm:"size:512" json:"suppression_reason"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`

	// Relationships
	Monitors    []Monitor    `gorm:"foreignKey:ServiceID;constraint:OnDelete:CASCADE" json:"monitors,omitempty"`
	Alerts      []Alert      `gorm:"foreignKey:ServiceID;constraint:OnDelete:CASCADE" json:"alerts,omitempty"`
	MuteWindows []MuteWindow `gorm:"foreignKey:ServiceID;constraint:OnDelete:CASCADE" json:"mute_windows,omitempty"`
	Contacts    []Contact    `gorm:"many2many:service_contacts;" json:"contacts,omitempty"`
}

// IsPaused returns true if the service is currently paused
func (s *Service) IsPaused() bool {
	return s.State == ServiceStatePaused
}

// MonitorType represents the kind of check a monitor performs
type MonitorType string

const (
	MonitorTypeWebhook     MonitorType = "webhook"
	MonitorTypeHeartbeat   MonitorType = "heartbeat"
	MonitorTypeHealthCheck MonitorType = "health_check"
	MonitorTypeMetric      MonitorType = "metric"
)

// ThresholdStrategy decides how metric values are judged out-of-range
type ThresholdStrategy string

const (
	StrategyImmediate           ThresholdStrategy = "immediate"
	StrategyConsecutiveCount    ThresholdStrategy = "consecutive_count"
	StrategyTimeDurationAverage ThresholdStrategy = "time_duration_average"
	StrategySampleCountAverage  ThresholdStrategy = "sample_count_average"
)

// Monitor is a single check configuration attached to a service. The
// token addresses inbound check-ins; type-specific configuration lives
// in the health-check and metric field groups.
type Monitor struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	ServiceID          uint        `gorm:"not null;index" json:"service_id"`
	Name               string      `gorm:"size:255" json:"name"`
	Type               MonitorType `gorm:"type:varchar(20);not null;index" json:"type"`
	Token              string      `gorm:"size:36;uniqueIndex;not null" json:"token"`
	IntervalSeconds    int         `gorm:"default:60" json:"interval_seconds"`
	GracePeriodSeconds int         `gorm:"default:0" json:"grace_period_seconds"`
	LastCheckIn        *time.Time  `json:"last_check_in,omitempty"`

	// Health check configuration
	URL                 string `gorm:"size:1024" json:"url"`
	Method              string `gorm:"size:10" json:"method"`
	ExpectedStatusCodes string `gorm:"size:255" json:"expected_status_codes"` // comma-separated, e.g. "200,204"
	BodyRegex           string `gorm:"size:512" json:"body_regex"`
	TimeoutSeconds      int    `gorm:"default:10" json:"timeout_seconds"`

	// Metric configuration
	MinValue         *float64          `json:"min_value,omitempty"`
	MaxValue         *float64          `json:"max_value,omitempty"`
	Strategy         ThresholdStrategy `gorm:"type:varchar(30);default:'immediate'" json:"strategy"`
	ThresholdCount   int               `gorm:"default:1" json:"threshold_count"`
	WindowSeconds    int               `gorm:"default:300" json:"window_seconds"`
	RetentionSeconds int               `gorm:"default:604800" json:"retention_seconds"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExpectedStatusSet parses the comma-separated expected status code list.
// An empty configuration defaults to accepting 200.
func (m *Monitor) ExpectedStatusSet() map[int]bool {
	set := make(map[int]bool)
	for _, part := range strings.Split(m.ExpectedStatusCodes, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if code, err := strconv.Atoi(part); err == nil {
			set[code] = true
		}
	}
	if len(set) == 0 {
		set[200] = true
	}
	return set
}

// CheckInDeadline returns the instant after which a heartbeat monitor is
// considered missed, anchored on the last check-in or creation time.
func (m *Monitor) CheckInDeadline() time.Time {
	anchor := m.CreatedAt
	if m.LastCheckIn != nil {
		anchor = *m.LastCheckIn
	}
	return anchor.Add(time.Duration(m.IntervalSeconds+m.GracePeriodSeconds) * time.Second)
}

// IsOutOfRange reports whether a value violates any configured bound
func (m *Monitor) IsOutOfRange(value float64) bool {
	if m.MinValue != nil && value < *m.MinValue {
		return true
	}
	if m.MaxValue != nil && value > *m.MaxValue {
		return true
	}
	return false
}

// EventType classifies how a monitor event was produced
type EventType string

const (
	EventTypeCheckIn     EventType = "check_in"
	EventTypePoll        EventType = "poll"
	EventTypeMetric      EventType = "metric"
	EventTypeStateChange EventType = "state_change"
)

// MonitorEvent is an append-only fact recorded per check-in, poll,
// metric ingest or state change. Events are the source of truth for
// rollups and threshold lookbacks and are never updated once written.
type MonitorEvent struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	MonitorID    uint      `gorm:"not null;index:idx_monitor_events_monitor_created" json:"monitor_id"`
	EventType    EventType `gorm:"type:varchar(20);not null" json:"event_type"`
	Success      bool      `json:"success"`
	Value        *float64  `json:"value,omitempty"`
	IsOutOfRange bool      `json:"is_out_of_range"`
	Message      string    `gorm:"size:1024" json:"message"`
	CreatedAt    time.Time `gorm:"index:idx_monitor_events_monitor_created" json:"created_at"`
}

// Granularity is the period size of a rollup row
type Granularity string

const (
	GranularityHourly  Granularity = "hourly"
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// MonitorRollup is a pre-aggregated statistics row. At most one row
// exists per (monitor, granularity, period start); new events landing in
// an open period upsert the same row.
type MonitorRollup struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	MonitorID   uint        `gorm:"not null;uniqueIndex:idx_rollup_period" json:"monitor_id"`
	ServiceID   uint        `gorm:"not null;index" json:"service_id"`
	Granularity Granularity `gorm:"type:varchar(10);not null;uniqueIndex:idx_rollup_period" json:"granularity"`
	PeriodStart time.Time   `gorm:"not null;uniqueIndex:idx_rollup_period" json:"period_start"`

	Count         int      `json:"count"`
	SuccessCount  int      `json:"success_count"`
	FailureCount  int      `json:"failure_count"`
	SampleCount   int      `json:"sample_count"`
	UptimePercent *float64 `json:"uptime_percent,omitempty"`

	// Statistics over valued events; nil when no event carried a value
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
	Mean     *float64 `json:"mean,omitempty"`
	Median   *float64 `json:"median,omitempty"`
	P80      *float64 `json:"p80,omitempty"`
	P90      *float64 `json:"p90,omitempty"`
	P95      *float64 `json:"p95,omitempty"`
	StdDev   *float64 `json:"std_dev,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AlertType classifies why an alert was raised
type AlertType string

const (
	AlertTypeFailure           AlertType = "failure"
	AlertTypeMissedHeartbeat   AlertType = "missed_heartbeat"
	AlertTypeFailedHealthCheck AlertType = "failed_health_check"
	AlertTypeRecovery          AlertType = "recovery"
)

// Alert is raised by the state machine on a down or recovery transition.
// DispatchedAt stays nil until every resolved channel accepted it.
type Alert struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ServiceID      uint       `gorm:"not null;index" json:"service_id"`
	Type           AlertType  `gorm:"type:varchar(30);not null" json:"type"`
	Severity       Severity   `gorm:"type:varchar(20);not null" json:"severity"`
	Reason         string     `gorm:"size:1024" json:"reason"`
	DispatchedAt   *time.Time `gorm:"index" json:"dispatched_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// GetSeverityEmoji returns an emoji for the alert severity
func GetSeverityEmoji(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return ":red_circle:"
	case SeverityHigh:
		return ":large_orange_circle:"
	case SeverityMedium:
		return ":large_yellow_circle:"
	case SeverityLow:
		return ":large_blue_circle:"
	default:
		return ":white_circle:"
	}
}

// MuteWindow suppresses alert creation for a service during [StartsAt, EndsAt)
type MuteWindow struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ServiceID uint      `gorm:"not null;index" json:"service_id"`
	StartsAt  time.Time `gorm:"not null" json:"starts_at"`
	EndsAt    time.Time `gorm:"not null" json:"ends_at"`
	Reason    string    `gorm:"size:512" json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// IsActiveAt reports whether the window covers the given instant
func (w *MuteWindow) IsActiveAt(t time.Time) bool {
	return !t.Before(w.StartsAt) && t.Before(w.EndsAt)
}

// Peer is a paired remote instance. Ongoing traffic is one-directional:
// we push heartbeats and dispatch-health webhooks keyed by the tokens the
// remote side minted for us during pairing.
type Peer struct {
	ID                       uint      `gorm:"primaryKey" json:"id"`
	Name                     string    `gorm:"size:255;not null" json:"name"`
	URL                      string    `gorm:"size:1024;not null" json:"url"`
	HeartbeatToken           string    `gorm:"size:36;uniqueIndex;not null" json:"heartbeat_token"`
	WebhookToken             string    `gorm:"size:36;uniqueIndex;not null" json:"webhook_token"`
	ServiceID                uint      `gorm:"not null;index" json:"service_id"`
	PairedAt                 time.Time `json:"paired_at"`
	HeartbeatIntervalSeconds int       `gorm:"default:30" json:"heartbeat_interval_seconds"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// PairingSecret backs the pairing handshake. Secrets are single-use and
// expire ten minutes after initiation; validation consumes them.
type PairingSecret struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Secret    string    `gorm:"size:64;uniqueIndex;not null" json:"secret"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Used      bool      `gorm:"default:false" json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// Contact groups notification channels; the default contact is the
// fallback for services with no linked contacts
type Contact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	IsDefault bool      `gorm:"default:false" json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Channels []ContactChannel `gorm:"foreignKey:ContactID;constraint:OnDelete:CASCADE" json:"channels,omitempty"`
}

// ContactChannel is one configured notification transport for a contact
type ContactChannel struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ContactID   uint      `gorm:"not null;index" json:"contact_id"`
	ChannelType string    `gorm:"size:50;not null" json:"channel_type"`
	Enabled     bool      `gorm:"default:true" json:"enabled"`
	Settings    JSONB     `gorm:"type:jsonb" json:"settings"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ServiceDependency is a directed edge: the dependent service relies on
// the dependency service. The graph never stores a cycle; insertion is
// guarded by the cycle check in the dependency service.
type ServiceDependency struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	DependentServiceID  uint      `gorm:"not null;uniqueIndex:idx_dependency_edge;index" json:"dependent_service_id"`
	DependencyServiceID uint      `gorm:"not null;uniqueIndex:idx_dependency_edge;index" json:"dependency_service_id"`
	CreatedAt           time.Time `json:"created_at"`
}

// TableName overrides for explicit table naming
func (Service) TableName() string {
	return "services"
}

func (Monitor) TableName() string {
	return "monitors"
}

func (MonitorEvent) TableName() string {
	return "monitor_events"
}

func (MonitorRollup) TableName() string {
	return "monitor_rollups"
}

func (Alert) TableName() string {
	return "alerts"
}

func (MuteWindow) TableName() string {
	return "mute_windows"
}

func (Peer) TableName() string {
	return "peers"
}

func (PairingSecret) TableName() string {
	return "pairing_secrets"
}

func (Contact) TableName() string {
	return "contacts"
}

func (ContactChannel) TableName() string {
	return "contact_channels"
}

func (ServiceDependency) TableName() string {
	return "service_dependencies"
}
