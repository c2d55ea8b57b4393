// Package app composes the token layer into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Wiring and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── token/          # Tokens and per-standard property records
//	│   ├── operation/      # Submitted operation records
//	│   ├── module/         # Module attachments and registry entries
//	│   └── schema/         # Generic field-set validation
//	├── storage/            # Store interfaces plus memory, postgres and
//	│                       # supabase implementations, and migrations
//	├── services/           # Business logic (tokens, panels, operations,
//	│                       # modules, registry)
//	├── httpapi/            # HTTP handlers, routing and the event feed
//	├── system/             # Background service lifecycle management
//	├── runtime/            # Config-driven backend selection and serving
//	└── metrics/            # Prometheus collectors
//
// The app package wires services from internal/app/services/ with their
// stores and the shared gateway, validator and event plumbing. Business
// logic stays in the service packages; HTTP concerns stay in httpapi.
//
// # Adding a New Domain
//
//  1. Create domain models in internal/app/domain/<name>/
//  2. Add a store interface to internal/app/storage/interfaces.go
//  3. Implement it in storage/memory, storage/postgres and storage/supabase
//  4. Create the service in internal/app/services/<name>/service.go
//  5. Wire it in internal/app/application.go
//  6. Add handlers in internal/app/httpapi/
package app
