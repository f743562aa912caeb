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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidMemory indicates a Memory failed validation.
	ErrInvalidMemory = errors.New("invalid memory")

	// ErrEmptyContent indicates the content is empty or blank.
	ErrEmptyContent = errors.New("content cannot be blank")

	// ErrContentTooLong indicates the content exceeds MaxContentLength.
	ErrContentTooLong = errors.New("content exceeds maximum length")

	// ErrMemoryStored indicates a mutation was attempted on a STORED memory.
	ErrMemoryStored = errors.New("memory is stored and cannot be modified")

	// ErrInvalidStatus indicates an unknown lifecycle status value.
	ErrInvalidStatus = errors.New("invalid memory status")

	// ErrInvalidEmbedding indicates an Embedding failed validation.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrEmptyVector indicates an embedding vector has no components.
	ErrEmptyVector = errors.New("embedding vector cannot be empty")

	// ErrEmptyModel indicates an embedding has no generating model name.
	ErrEmptyModel = errors.New("embedding model cannot be empty")

	// ErrDimensionMismatch indicates two vectors of differing dimensionality
	// were compared.
	ErrDimensionMismatch = errors.New("vector dimensions do not match")

	// ErrInvalidSource indicates a Source failed validation.
	ErrInvalidSource = errors.New("invalid source")

	// ErrInvalidSourceType indicates an unknown provenance type.
	ErrInvalidSourceType = errors.New("invalid source type")

	// ErrSourceContextTooLong indicates the source context exceeds
	// MaxSourceContextLength.
	ErrSourceContextTooLong = errors.New("source context exceeds maximum length")

	// ErrEmptyTag indicates a tag normalizes to the empty string.
	ErrEmptyTag = errors.New("tag cannot be empty")

	// ErrInvalidEntity indicates an entity with empty text or type.
	ErrInvalidEntity = errors.New("entity text and type cannot be empty")

	// ErrEmptyAction indicates an action normalizes to the empty string.
	ErrEmptyAction = errors.New("action cannot be empty")

	// ErrInvalidTenantID indicates a missing or malformed tenant identifier.
	ErrInvalidTenantID = errors.New("invalid tenant id")

	// ErrInvalidMetric indicates an unknown distance metric.
	ErrInvalidMetric = errors.New("invalid distance metric")
)
