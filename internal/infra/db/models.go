package db

import (
	"time"

	"tabula/internal/domain"
)

// RecordRow is the shared column layout of the per-kind head tables. The
// concrete table is chosen per query with recordTable, so the struct
// carries no TableName of its own.
type RecordRow struct {
	ID              string `gorm:"primaryKey"`
	Version         int64  `gorm:"not null"`
	Status          string `gorm:"not null"`
	Author          string `gorm:"index;not null"`
	AuthorSignature string `gorm:"not null"`
	ContentHash     string `gorm:"index;not null"`
	ParentHash      string
	PayloadJSON     []byte    `gorm:"type:jsonb;not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

var recordTables = map[domain.RecordKind]string{
	domain.KindIssue:    "issues",
	domain.KindPattern:  "patterns",
	domain.KindSolution: "solutions",
	domain.KindBrief:    "briefs",
	domain.KindArtifact: "artifacts",
}

func recordTable(kind domain.RecordKind) string {
	return recordTables[kind]
}

type RecordVersionModel struct {
	ID              int64  `gorm:"primaryKey"`
	RecordID        string `gorm:"uniqueIndex:idx_record_versions_record_version;not null"`
	Version         int64  `gorm:"uniqueIndex:idx_record_versions_record_version;not null"`
	Kind            string `gorm:"index;not null"`
	Status          string `gorm:"not null"`
	Author          string `gorm:"not null"`
	AuthorSignature string `gorm:"not null"`
	ContentHash     string `gorm:"not null"`
	ParentHash      string
	PayloadJSON     []byte    `gorm:"type:jsonb;not null"`
	RecordCreatedAt time.Time `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (RecordVersionModel) TableName() string {
	return "record_versions"
}

type ActorModel struct {
	ID          string `gorm:"primaryKey"`
	Type        string `gorm:"not null"`
	DisplayName string
	PublicKey   string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (ActorModel) TableName() string {
	return "actors"
}

type SourceFetchModel struct {
	ID         int64   `gorm:"primaryKey"`
	Domain     string  `gorm:"index;not null"`
	Outcome    string  `gorm:"not null"`
	LatencyMs  float64 `gorm:"not null"`
	ErrorClass *string
	FetchedAt  time.Time `gorm:"index;not null"`
}

func (SourceFetchModel) TableName() string {
	return "source_fetch_log"
}

type SourceHealthModel struct {
	Domain            string `gorm:"primaryKey"`
	TotalFetches      int64  `gorm:"not null"`
	SuccessfulFetches int64  `gorm:"not null"`
	FailedFetches     int64  `gorm:"not null"`
	SuccessRate       *float64
	LatencyMeanMs     *float64
	LatencyP95Ms      *float64
	LatencyMinMs      *float64
	LatencyMaxMs      *float64
	ErrorsJSON        []byte    `gorm:"type:jsonb"`
	HealthStatus      string    `gorm:"not null"`
	StatusSince       time.Time `gorm:"not null"`
	AlertActive       bool      `gorm:"not null"`
	AlertReason       *string
	AlertSince        *time.Time
	WindowStartAt     time.Time `gorm:"not null"`
	WindowDays        int       `gorm:"not null"`
	LastFetchAt       *time.Time
	LastCalculatedAt  time.Time `gorm:"not null"`
}

func (SourceHealthModel) TableName() string {
	return "source_health"
}

type HealthSnapshotModel struct {
	ID           int64  `gorm:"primaryKey"`
	Domain       string `gorm:"index;not null"`
	SuccessRate  *float64
	HealthStatus string    `gorm:"not null"`
	RecordedAt   time.Time `gorm:"index;not null"`
}

func (HealthSnapshotModel) TableName() string {
	return "source_health_history"
}

type SourceAssessmentModel struct {
	Domain                      string    `gorm:"primaryKey"`
	Independence                float64   `gorm:"not null"`
	PerspectiveDiversity        float64   `gorm:"not null"`
	SelectionBiasResistance     float64   `gorm:"not null"`
	QuantificationBiasAwareness float64   `gorm:"not null"`
	IdeologicalTransparency     float64   `gorm:"not null"`
	FundingTransparency         float64   `gorm:"not null"`
	ConflictDisclosure          float64   `gorm:"not null"`
	GeographicNeutrality        float64   `gorm:"not null"`
	TemporalNeutrality          float64   `gorm:"not null"`
	FactualAccuracy             float64   `gorm:"not null"`
	MethodologicalRigor         float64   `gorm:"not null"`
	Transparency                float64   `gorm:"not null"`
	UpdatedAt                   time.Time `gorm:"not null"`
}

func (SourceAssessmentModel) TableName() string {
	return "source_assessments"
}
