// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package postgres implements the storage interfaces on PostgreSQL with the
// pgvector extension.
//
// Tenant isolation is enforced in the database: every transaction binds a
// tenant identifier through set_current_tenant, and row-level security
// policies filter every table against it. Application code never writes a
// tenant predicate into a WHERE clause.
//
// Schema management lives in the Migrator, which serializes concurrent
// migration runs with a session-scoped advisory lock and applies each
// version in its own transaction.
package postgres
