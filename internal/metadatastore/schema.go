package metadatastore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// schemaSDL is the combined DefraDB GraphQL SDL for the Book, Chapter,
// AudioArtifact, SyncTable, EditJournal, and Job collections, applied as
// one document rather than one AddSchema call per type. The collections do
// not reference each other; a Job's target is the plain target_key string.
const schemaSDL = `
type Book {
	title: String
	author: String
	language: String
	publisher: String
	toc: String
	chapters: String
	storage_root: String
	created_at: String
}

type Chapter {
	book_id: String
	index: Int
	title: String
	word_count: Int
	normalized_html_blob_key: String
	token_table: String
}

type AudioArtifact {
	book_id: String
	chapter_index: Int
	language: String
	source: String
	voice: String
	canonical_blob_key: String
	canonical_duration_ms: Int
	source_blob_key_ref: String
	provisional_timing: String
}

type SyncTable {
	entries: String
}

type EditJournal {
	entries: String
}

type Job {
	kind: String
	target_key: String
	state: String
	error: String
	created_at: String
	updated_at: String
	events: String
}
`

// Initialize applies the metadata store's schema. It is safe to call on
// every server start: an "already exists" response from DefraDB is treated
// as success.
func Initialize(ctx context.Context, client *Client, logger *slog.Logger) error {
	if err := client.AddSchema(ctx, schemaSDL); err != nil {
		if isAlreadyExistsError(err) {
			logger.Info("metadata store schema already exists")
			return nil
		}
		return fmt.Errorf("metadatastore: adding schema: %w", err)
	}
	logger.Info("metadata store schema initialized")
	return nil
}

func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "collection already exists") || strings.Contains(msg, "already exists")
}
