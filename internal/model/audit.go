package model

import "time"

// AuditEventKind enumerates the lifecycle events the audit stream records (spec §4.8).
type AuditEventKind string

const (
	AuditJobCreated        AuditEventKind = "job_created"
	AuditJobStateChanged   AuditEventKind = "job_state_changed"
	AuditBatchInserted     AuditEventKind = "batch_inserted"
	AuditItemClaimed       AuditEventKind = "item_claimed"
	AuditItemCheckpointed  AuditEventKind = "item_checkpointed"
	AuditProviderQueried   AuditEventKind = "provider_queried"
	AuditReprocessRequested AuditEventKind = "reprocess_requested"
)

// AuditEvent is the minimum record shape the audit stream emits.
type AuditEvent struct {
	Kind    AuditEventKind
	JobID   string
	ItemID  string
	Ts      time.Time
	ActorID string
	Payload map[string]interface{}
}
