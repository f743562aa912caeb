package ingest

import "errors"

var (
	// ErrRepositoryRequired is returned when a pipeline is created without a repository.
	ErrRepositoryRequired = errors.New("ingest: memory repository is required")

	// ErrUnitOfWorkRequired is returned when a pipeline is created without a unit of work.
	ErrUnitOfWorkRequired = errors.New("ingest: unit of work is required")

	// ErrProviderRequired is returned when a pipeline is created without an AI provider.
	ErrProviderRequired = errors.New("ingest: AI provider is required")

	// ErrNoContent is returned when an ingestion batch contains no content.
	ErrNoContent = errors.New("ingest: no content to ingest")
)
