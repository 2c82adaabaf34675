// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
//   - base.go: AggregateModel (id, created_at, version)
//   - customer.go: customers
//   - kyc.go: kyc_cases
//   - audit.go: audit_records (append-only)
//   - outbox.go: outbox_events for the transactional outbox
//
// The authoritative schema, including expression and partial indexes and the
// audit trigger, lives in migrations/. The gorm tags describe the columns for
// AutoMigrate in tests.
package models
