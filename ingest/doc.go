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


// Package ingest orchestrates the enrichment and persistence of memories.
//
// The pipeline takes raw content, generates embeddings and annotation
// extractions concurrently on a worker pool, assembles the results into
// memory aggregates, and persists the whole batch atomically through the
// storage unit of work. A batch either enriches completely or is not
// persisted at all.
package ingest
