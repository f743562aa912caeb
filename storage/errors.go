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


package storage

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	// Lookups scoped to the wrong tenant report this same error so that
	// existence of another tenant's data never leaks.
	ErrNotFound = errors.New("record not found")

	// ErrTenantUnbound indicates no tenant identifier is bound to the
	// current transaction.
	ErrTenantUnbound = errors.New("no tenant bound to transaction")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrNoForwardSQL indicates a migration version without forward SQL.
	ErrNoForwardSQL = errors.New("migration has no forward sql")

	// ErrNoBackwardSQL indicates a rollback touched a version without
	// backward SQL.
	ErrNoBackwardSQL = errors.New("migration has no backward sql")
)
