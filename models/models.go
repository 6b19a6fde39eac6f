package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Plate sentinels written by the recognition pipeline when no usable plate text exists
const (
	PlateAbsent     = "NONE"
	PlateUnreadable = "UNREADABLE"
)

// ViolationStatus enum
type ViolationStatus string

const (
	ViolationWarning   ViolationStatus = "warning"
	ViolationPending   ViolationStatus = "pending"
	ViolationCleared   ViolationStatus = "cleared"
	ViolationResolved  ViolationStatus = "resolved"
	ViolationIssued    ViolationStatus = "issued"
	ViolationCancelled ViolationStatus = "cancelled"
)

// ActiveStatuses are the statuses covered by the one-open-violation-per-vehicle rule
var ActiveStatuses = []ViolationStatus{ViolationWarning, ViolationPending}

// IsActive reports whether the status holds the (plate, location) slot
func (s ViolationStatus) IsActive() bool {
	for _, active := range ActiveStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status
func (s ViolationStatus) Valid() bool {
	switch s {
	case ViolationWarning, ViolationPending, ViolationCleared, ViolationResolved, ViolationIssued, ViolationCancelled:
		return true
	}
	return false
}

// transitions lists the legal source statuses for every target status
var transitions = map[ViolationStatus][]ViolationStatus{
	ViolationPending:   {ViolationWarning},
	ViolationCleared:   {ViolationWarning},
	ViolationResolved:  {ViolationWarning, ViolationPending},
	ViolationIssued:    {ViolationWarning, ViolationPending},
	ViolationCancelled: {ViolationIssued},
}

// SourcesFor returns the statuses a violation may move to `to` from.
// Nothing may transition into warning: violations are born there.
func SourcesFor(to ViolationStatus) []ViolationStatus {
	return transitions[to]
}

// CanTransition reports whether from -> to is a legal lifecycle step
func CanTransition(from, to ViolationStatus) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// IsSentinelPlate reports whether plate is one of the no-plate markers
func IsSentinelPlate(plate string) bool {
	return plate == PlateAbsent || plate == PlateUnreadable
}

// NormalizePlate upper-cases the plate text and strips separators.
// Raw "no plate" markers coming from the recognizer collapse into the two sentinels.
func NormalizePlate(raw string) string {
	p := strings.ToUpper(strings.TrimSpace(raw))
	switch p {
	case "", "NONE", "NULL", "N/A", "NO_PLATE", "ABSENT":
		return PlateAbsent
	case "UNREADABLE", "UNKNOWN", "?", "ILLEGIBLE":
		return PlateUnreadable
	}
	p = strings.NewReplacer(" ", "", ".", "", "_", "").Replace(p)
	return p
}

// Cursor is a keyset position for batch scans ordered by (timestamp, id)
type Cursor struct {
	At time.Time
	ID string
}

func (c Cursor) IsZero() bool {
	return c.At.IsZero() && c.ID == ""
}

// Before reports whether the row at (at, id) comes after the cursor
func (c Cursor) Before(at time.Time, id string) bool {
	if c.IsZero() {
		return true
	}
	return at.After(c.At) || (at.Equal(c.At) && id > c.ID)
}

// ActiveKey builds the unique slot key that guards one open violation per (plate, location)
func ActiveKey(plate, locationID string) string {
	return plate + "|" + locationID
}

// JSONB type for GORM - can handle both objects and arrays
type JSONB struct {
	Data interface{} `json:"-"`
}

// NewJSONB creates a new JSONB from any value
func NewJSONB(v interface{}) JSONB {
	return JSONB{Data: v}
}

// UnmarshalJSON implements json.Unmarshaler
func (j *JSONB) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &j.Data)
}

// MarshalJSON implements json.Marshaler
func (j JSONB) MarshalJSON() ([]byte, error) {
	if j.Data == nil {
		return []byte("null"), nil
	}
	return json.Marshal(j.Data)
}

func (j JSONB) Value() (driver.Value, error) {
	if j.Data == nil {
		return nil, nil
	}
	return json.Marshal(j.Data)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		j.Data = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(raw, &j.Data)
}

// Violation model - one illegal-parking case for a plate at a location
type Violation struct {
	ID          string          `gorm:"primaryKey;column:id" json:"id"`
	PlateNumber string          `gorm:"column:plate_number;index:idx_violation_plate_location" json:"plateNumber"`
	LocationID  string          `gorm:"column:location_id;index:idx_violation_plate_location;index" json:"locationId"`
	Status      ViolationStatus `gorm:"column:status;index" json:"status"`

	DetectedAt       time.Time  `gorm:"column:detected_at;index" json:"detectedAt"`
	WarningExpiresAt *time.Time `gorm:"column:warning_expires_at;index" json:"warningExpiresAt,omitempty"`
	IssuedAt         *time.Time `gorm:"column:issued_at" json:"issuedAt,omitempty"`

	// Set while the violation is warning/pending, NULL otherwise. Unique across the table.
	ActiveKey *string `gorm:"column:active_key;uniqueIndex" json:"-"`

	DetectionID    *string             `gorm:"column:detection_id" json:"detectionId,omitempty"`
	TicketID       *string             `gorm:"column:ticket_id" json:"ticketId,omitempty"`
	FineAmount     decimal.NullDecimal `gorm:"column:fine_amount;type:numeric(12,2)" json:"fineAmount"`
	ResolutionNote *string             `gorm:"column:resolution_note" json:"resolutionNote,omitempty"`
	ClosedAt       *time.Time          `gorm:"column:closed_at" json:"closedAt,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Violation) TableName() string {
	return "violations"
}

// ObjectClass enum
type ObjectClass string

const (
	ObjectVehicle ObjectClass = "vehicle"
	ObjectNone    ObjectClass = "none"
)

// Detection model - one AI-analyzed sighting, written by the capture pipeline
type Detection struct {
	ID          string      `gorm:"primaryKey;column:id" json:"id"`
	CameraID    string      `gorm:"column:camera_id;index" json:"cameraId"`
	LocationID  string      `gorm:"column:location_id;index:idx_detection_presence,priority:2" json:"locationId"`
	PlateNumber string      `gorm:"column:plate_number;index:idx_detection_presence,priority:1" json:"plateNumber"`
	ObjectClass ObjectClass `gorm:"column:object_class;index" json:"objectClass"`
	Confidence  float64     `gorm:"column:confidence" json:"confidence"`
	DetectedAt  time.Time   `gorm:"column:detected_at;index:idx_detection_presence,priority:3;index" json:"detectedAt"`
	ImagePath   *string     `gorm:"column:image_path" json:"imagePath,omitempty"`
	BBox        JSONB       `gorm:"type:jsonb;column:bbox" json:"bbox,omitempty"`
}

func (Detection) TableName() string {
	return "detections"
}

// Channel enum - outbound owner notification channel
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelViber Channel = "viber"
)

// DeliveryStatus enum
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryError     DeliveryStatus = "error"
	DeliveryUnknown   DeliveryStatus = "unknown"
	DeliveryRejected  DeliveryStatus = "rejected"
)

// RetryableStatuses are picked up by the retry scheduler
var RetryableStatuses = []DeliveryStatus{DeliveryError, DeliveryFailed, DeliveryUnknown}

// Retryable reports whether the retry scheduler may act on the status
func (s DeliveryStatus) Retryable() bool {
	for _, r := range RetryableStatuses {
		if s == r {
			return true
		}
	}
	return false
}

// NotificationLog model - one outbound delivery attempt
type NotificationLog struct {
	ID                string         `gorm:"primaryKey;column:id" json:"id"`
	ViolationID       *string        `gorm:"column:violation_id;index" json:"violationId,omitempty"`
	Recipient         string         `gorm:"column:recipient" json:"recipient"`
	Channel           Channel        `gorm:"column:channel;index" json:"channel"`
	Message           string         `gorm:"column:message;type:text" json:"message"`
	Status            DeliveryStatus `gorm:"column:status;index" json:"status"`
	StatusDetail      *string        `gorm:"column:status_detail" json:"statusDetail,omitempty"`
	ProviderMessageID *string        `gorm:"column:provider_message_id;index" json:"providerMessageId,omitempty"`
	Error             *string        `gorm:"column:error;type:text" json:"error,omitempty"`

	SentAt      time.Time  `gorm:"column:sent_at;index" json:"sentAt"`
	DeliveredAt *time.Time `gorm:"column:delivered_at" json:"deliveredAt,omitempty"`
	RetryCount  int        `gorm:"column:retry_count;default:0" json:"retryCount"`
	LastRetryAt *time.Time `gorm:"column:last_retry_at" json:"lastRetryAt,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (NotificationLog) TableName() string {
	return "notification_logs"
}

// LastAttemptAt is the reference point for the retry backoff window
func (n NotificationLog) LastAttemptAt() time.Time {
	if n.LastRetryAt != nil {
		return *n.LastRetryAt
	}
	return n.SentAt
}

// AlertType enum
type AlertType string

const (
	AlertPlateNotVisible AlertType = "plate_not_visible"
	AlertWarningExpired  AlertType = "warning_expired"
	AlertVehicleDetected AlertType = "vehicle_detected"
	AlertIncidentCreated AlertType = "incident_created"
)

// AuthorityAlert model - in-app notification for the enforcing authority
type AuthorityAlert struct {
	ID          string    `gorm:"primaryKey;column:id" json:"id"`
	Type        AlertType `gorm:"column:type;index" json:"type"`
	RecipientID *string   `gorm:"column:recipient_id;index" json:"recipientId,omitempty"` // nil = every authority user

	PlateNumber string  `gorm:"column:plate_number;index" json:"plateNumber"`
	LocationID  string  `gorm:"column:location_id;index" json:"locationId"`
	Reason      string  `gorm:"column:reason" json:"reason"`
	ViolationID *string `gorm:"column:violation_id" json:"violationId,omitempty"`
	DetectionID *string `gorm:"column:detection_id;index" json:"detectionId,omitempty"`
	IncidentID  *string `gorm:"column:incident_id" json:"incidentId,omitempty"`
	ImagePath   *string `gorm:"column:image_path" json:"imagePath,omitempty"`
	Payload     JSONB   `gorm:"type:jsonb;column:payload" json:"payload,omitempty"`

	Read   bool       `gorm:"column:read;default:false;index" json:"read"`
	ReadAt *time.Time `gorm:"column:read_at" json:"readAt,omitempty"`

	// Dedup slot, populated while unread
	OpenKey *string `gorm:"column:open_key;uniqueIndex" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
}

func (AuthorityAlert) TableName() string {
	return "authority_alerts"
}

// AlertTypeName lets the event exporter route alerts by type
func (a AuthorityAlert) AlertTypeName() string {
	return string(a.Type)
}

// AlertOpenKey builds the dedup key of an unread alert
func AlertOpenKey(t AlertType, plate, locationID string, recipientID *string) string {
	r := "*"
	if recipientID != nil {
		r = *recipientID
	}
	return string(t) + "|" + plate + "|" + locationID + "|" + r
}

// PreferredChannel enum - how an owner wants to be reached
type PreferredChannel string

const (
	PreferSMS   PreferredChannel = "sms"
	PreferViber PreferredChannel = "viber"
	PreferBoth  PreferredChannel = "both"
	PreferNone  PreferredChannel = "none"
)

// Channels expands the preference into concrete channels
func (p PreferredChannel) Channels() []Channel {
	switch p {
	case PreferViber:
		return []Channel{ChannelViber}
	case PreferBoth:
		return []Channel{ChannelSMS, ChannelViber}
	case PreferNone:
		return nil
	default:
		return []Channel{ChannelSMS}
	}
}

// Vehicle model - registry entry maintained by the vehicle CRUD
type Vehicle struct {
	ID               string           `gorm:"primaryKey;column:id" json:"id"`
	PlateNumber      string           `gorm:"column:plate_number;uniqueIndex" json:"plateNumber"`
	OwnerName        string           `gorm:"column:owner_name" json:"ownerName"`
	ContactNumber    *string          `gorm:"column:contact_number" json:"contactNumber,omitempty"`
	PreferredChannel PreferredChannel `gorm:"column:preferred_channel;default:sms" json:"preferredChannel"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}

// NotificationPreference model - per-user opt-out of authority alert types
type NotificationPreference struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	UserID    string    `gorm:"column:user_id;uniqueIndex:idx_pref_user_type" json:"userId"`
	AlertType AlertType `gorm:"column:alert_type;uniqueIndex:idx_pref_user_type" json:"alertType"`
	Enabled   bool      `gorm:"column:enabled;default:true" json:"enabled"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (NotificationPreference) TableName() string {
	return "notification_preferences"
}

// IncidentStatus enum
type IncidentStatus string

const (
	IncidentOpen   IncidentStatus = "open"
	IncidentClosed IncidentStatus = "closed"
)

// Incident model - authority case file, owned by the incident CRUD
type Incident struct {
	ID          string         `gorm:"primaryKey;column:id" json:"id"`
	DetectionID *string        `gorm:"column:detection_id;index" json:"detectionId,omitempty"`
	Status      IncidentStatus `gorm:"column:status;default:open;index" json:"status"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"createdAt"`
}

func (Incident) TableName() string {
	return "incidents"
}
