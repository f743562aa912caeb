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


// Package storage provides the storage abstraction layer for engram.
//
// This package defines repository interfaces that decouple storage
// implementation from business logic. The reference backend lives in the
// postgres subpackage; consumers depend only on the interfaces here.
//
// # Tenant isolation
//
// Every repository operation takes an explicit tenant identifier. The
// backend binds it to the active transaction before any statement runs and
// the database's row-level policies filter on it, so an id belonging to
// another tenant behaves exactly like an id that does not exist.
//
// # Transactions
//
// UnitOfWork.Execute runs a function inside a single transaction whose state
// travels through the context. Repository methods detect the ambient
// transaction and participate in it; outside a unit of work each method
// opens its own.
//
// # Thread safety
//
// All repository implementations must be safe for concurrent use from
// multiple goroutines. All methods accept a context.Context for
// cancellation and timeout support.
package storage
