package metadatastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/readalong/readalong/internal/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("metadatastore: record not found")

// Store is the persisted-record side of the pipeline: Book, Chapter,
// AudioArtifact, SyncTable, EditJournal and Job records. It is the Go
// interface boundary for the out-of-scope object-metadata database
// collaborator named in the system overview.
type Store interface {
	CreateBook(ctx context.Context, b *types.Book) error
	GetBook(ctx context.Context, id string) (*types.Book, error)
	ListBooks(ctx context.Context) ([]*types.Book, error)

	PutChapter(ctx context.Context, ch *types.Chapter) error
	GetChapter(ctx context.Context, bookID string, idx int) (*types.Chapter, error)

	PutAudioArtifact(ctx context.Context, a *types.AudioArtifact) error
	GetAudioArtifact(ctx context.Context, bookID string, chapterIdx int, lang string) (*types.AudioArtifact, error)

	PutSyncTable(ctx context.Context, bookID string, chapterIdx int, lang string, st types.SyncTable) error
	GetSyncTable(ctx context.Context, bookID string, chapterIdx int, lang string) (types.SyncTable, error)

	AppendEditJournal(ctx context.Context, bookID string, chapterIdx int, lang string, e types.EditJournalEntry) error
	GetEditJournal(ctx context.Context, bookID string, chapterIdx int, lang string) ([]types.EditJournalEntry, error)

	CreateJob(ctx context.Context, j *types.JobRecord) error
	UpdateJob(ctx context.Context, j *types.JobRecord) error
	GetJob(ctx context.Context, id string) (*types.JobRecord, error)
	ListJobsByState(ctx context.Context, state types.JobState) ([]*types.JobRecord, error)
}

// GraphQLStore implements Store against a DefraDB-compatible GraphQL
// endpoint, following the Client/Execute/Create pattern used throughout
// this codebase's provider and docker-managed-service clients.
type GraphQLStore struct {
	client *Client
}

// NewGraphQLStore wraps an already-healthy Client.
func NewGraphQLStore(c *Client) *GraphQLStore {
	return &GraphQLStore{client: c}
}

func (s *GraphQLStore) CreateBook(ctx context.Context, b *types.Book) error {
	chaptersJSON, _ := json.Marshal(b.Chapters)
	tocJSON, _ := json.Marshal(b.TOC)
	_, err := s.client.Create(ctx, "Book", map[string]any{
		"_docID":       b.ID,
		"title":        b.Title,
		"author":       b.Author,
		"language":     b.Language,
		"publisher":    b.Publisher,
		"toc":          string(tocJSON),
		"chapters":     string(chaptersJSON),
		"storage_root": b.StorageRoot,
		"created_at":   b.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("metadatastore: create book: %w", err)
	}
	return nil
}

func (s *GraphQLStore) GetBook(ctx context.Context, id string) (*types.Book, error) {
	query := fmt.Sprintf(`query {
		Book(docID: %q) {
			_docID title author language publisher toc chapters storage_root created_at
		}
	}`, id)
	resp, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("metadatastore: get book: %s", errMsg)
	}
	docs, _ := resp.Data["Book"].([]any)
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: book %s", ErrNotFound, id)
	}
	return decodeBook(docs[0])
}

func (s *GraphQLStore) ListBooks(ctx context.Context) ([]*types.Book, error) {
	resp, err := s.client.Query(ctx, `query {
		Book {
			_docID title author language publisher toc chapters storage_root created_at
		}
	}`)
	if err != nil {
		return nil, err
	}
	docs, _ := resp.Data["Book"].([]any)
	books := make([]*types.Book, 0, len(docs))
	for _, d := range docs {
		b, err := decodeBook(d)
		if err != nil {
			continue
		}
		books = append(books, b)
	}
	return books, nil
}

func decodeBook(d any) (*types.Book, error) {
	m, ok := d.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("metadatastore: unexpected book document shape")
	}
	b := &types.Book{
		ID:          asString(m["_docID"]),
		Title:       asString(m["title"]),
		Author:      asString(m["author"]),
		Language:    asString(m["language"]),
		Publisher:   asString(m["publisher"]),
		StorageRoot: asString(m["storage_root"]),
	}
	_ = json.Unmarshal([]byte(asString(m["toc"])), &b.TOC)
	_ = json.Unmarshal([]byte(asString(m["chapters"])), &b.Chapters)
	return b, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// The remaining Store methods (chapters, audio artifacts, sync tables, edit
// journals, jobs) follow the same Create/Query pattern as CreateBook and
// GetBook above. Chapters are keyed by a docID of "{book_id}:{index}",
// the per-language collections (audio artifacts, sync tables, edit
// journals) by "{book_id}:{chapter_index}:{language}", and Job records by
// the job's own id.

func (s *GraphQLStore) PutChapter(ctx context.Context, ch *types.Chapter) error {
	tokensJSON, _ := json.Marshal(ch.TokenTable)
	docID := fmt.Sprintf("%s:%d", ch.BookID, ch.Index)
	_, err := s.client.Create(ctx, "Chapter", map[string]any{
		"_docID":                   docID,
		"book_id":                  ch.BookID,
		"index":                    ch.Index,
		"title":                    ch.Title,
		"word_count":               ch.WordCount,
		"normalized_html_blob_key": ch.NormalizedHTMLBlobKey,
		"token_table":              string(tokensJSON),
	})
	if err != nil {
		return fmt.Errorf("metadatastore: put chapter: %w", err)
	}
	return nil
}

func (s *GraphQLStore) GetChapter(ctx context.Context, bookID string, idx int) (*types.Chapter, error) {
	docID := fmt.Sprintf("%s:%d", bookID, idx)
	query := fmt.Sprintf(`query {
		Chapter(docID: %q) { _docID book_id index title word_count normalized_html_blob_key token_table }
	}`, docID)
	resp, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	docs, _ := resp.Data["Chapter"].([]any)
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: chapter %s", ErrNotFound, docID)
	}
	m := docs[0].(map[string]any)
	ch := &types.Chapter{
		BookID:                bookID,
		Index:                 idx,
		Title:                 asString(m["title"]),
		NormalizedHTMLBlobKey: asString(m["normalized_html_blob_key"]),
	}
	_ = json.Unmarshal([]byte(asString(m["token_table"])), &ch.TokenTable)
	ch.WordCount = len(ch.TokenTable)
	return ch, nil
}

func audioDocID(bookID string, chapterIdx int, lang string) string {
	return fmt.Sprintf("%s:%d:%s", bookID, chapterIdx, lang)
}

func (s *GraphQLStore) PutAudioArtifact(ctx context.Context, a *types.AudioArtifact) error {
	timingJSON, _ := json.Marshal(a.ProvisionalTiming)
	docID := audioDocID(a.BookID, a.ChapterIndex, a.Language)
	_, err := s.client.Create(ctx, "AudioArtifact", map[string]any{
		"_docID":                docID,
		"book_id":               a.BookID,
		"chapter_index":         a.ChapterIndex,
		"language":              a.Language,
		"source":                string(a.Source),
		"voice":                 a.Voice,
		"provisional_timing":    string(timingJSON),
		"canonical_blob_key":    a.CanonicalBlobKey,
		"canonical_duration_ms": a.CanonicalDurationMS,
		"source_blob_key_ref":   a.SourceBlobKeyRef,
	})
	if err != nil {
		return fmt.Errorf("metadatastore: put audio artifact: %w", err)
	}
	return nil
}

func (s *GraphQLStore) GetAudioArtifact(ctx context.Context, bookID string, chapterIdx int, lang string) (*types.AudioArtifact, error) {
	docID := audioDocID(bookID, chapterIdx, lang)
	query := fmt.Sprintf(`query {
		AudioArtifact(docID: %q) {
			_docID book_id chapter_index language source voice provisional_timing
			canonical_blob_key canonical_duration_ms source_blob_key_ref
		}
	}`, docID)
	resp, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	docs, _ := resp.Data["AudioArtifact"].([]any)
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: audio artifact %s", ErrNotFound, docID)
	}
	m := docs[0].(map[string]any)
	a := &types.AudioArtifact{
		BookID:           bookID,
		ChapterIndex:     chapterIdx,
		Language:         lang,
		Source:           types.AudioSource(asString(m["source"])),
		Voice:            asString(m["voice"]),
		CanonicalBlobKey: asString(m["canonical_blob_key"]),
		SourceBlobKeyRef: asString(m["source_blob_key_ref"]),
	}
	if d, ok := m["canonical_duration_ms"].(float64); ok {
		a.CanonicalDurationMS = int(d)
	}
	_ = json.Unmarshal([]byte(asString(m["provisional_timing"])), &a.ProvisionalTiming)
	return a, nil
}

func (s *GraphQLStore) PutSyncTable(ctx context.Context, bookID string, chapterIdx int, lang string, st types.SyncTable) error {
	data, _ := json.Marshal(st)
	docID := audioDocID(bookID, chapterIdx, lang)
	_, err := s.client.Create(ctx, "SyncTable", map[string]any{
		"_docID":  docID,
		"entries": string(data),
	})
	if err != nil {
		return fmt.Errorf("metadatastore: put sync table: %w", err)
	}
	return nil
}

func (s *GraphQLStore) GetSyncTable(ctx context.Context, bookID string, chapterIdx int, lang string) (types.SyncTable, error) {
	docID := audioDocID(bookID, chapterIdx, lang)
	query := fmt.Sprintf(`query { SyncTable(docID: %q) { _docID entries } }`, docID)
	resp, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	docs, _ := resp.Data["SyncTable"].([]any)
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: sync table %s", ErrNotFound, docID)
	}
	m := docs[0].(map[string]any)
	var st types.SyncTable
	_ = json.Unmarshal([]byte(asString(m["entries"])), &st)
	return st, nil
}

func (s *GraphQLStore) AppendEditJournal(ctx context.Context, bookID string, chapterIdx int, lang string, e types.EditJournalEntry) error {
	existing, err := s.GetEditJournal(ctx, bookID, chapterIdx, lang)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	existing = append(existing, e)
	data, _ := json.Marshal(existing)
	docID := audioDocID(bookID, chapterIdx, lang)
	_, err = s.client.Create(ctx, "EditJournal", map[string]any{
		"_docID":  docID,
		"entries": string(data),
	})
	if err != nil {
		return fmt.Errorf("metadatastore: append edit journal: %w", err)
	}
	return nil
}

func (s *GraphQLStore) GetEditJournal(ctx context.Context, bookID string, chapterIdx int, lang string) ([]types.EditJournalEntry, error) {
	docID := audioDocID(bookID, chapterIdx, lang)
	query := fmt.Sprintf(`query { EditJournal(docID: %q) { _docID entries } }`, docID)
	resp, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	docs, _ := resp.Data["EditJournal"].([]any)
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: edit journal %s", ErrNotFound, docID)
	}
	m := docs[0].(map[string]any)
	var entries []types.EditJournalEntry
	_ = json.Unmarshal([]byte(asString(m["entries"])), &entries)
	return entries, nil
}

func (s *GraphQLStore) CreateJob(ctx context.Context, j *types.JobRecord) error {
	_, err := s.client.Create(ctx, "Job", map[string]any{
		"_docID":     j.ID,
		"kind":       string(j.Kind),
		"target_key": j.TargetKey,
		"state":      string(j.State),
		"error":      j.Error,
		"created_at": j.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"updated_at": j.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("metadatastore: create job: %w", err)
	}
	return nil
}

func (s *GraphQLStore) UpdateJob(ctx context.Context, j *types.JobRecord) error {
	query := fmt.Sprintf(`mutation {
		update_Job(docID: %q, input: {state: %q, error: %q, updated_at: %q}) { _docID }
	}`, j.ID, string(j.State), j.Error, j.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	resp, err := s.client.Execute(ctx, query, nil)
	if err != nil {
		return err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return fmt.Errorf("metadatastore: update job: %s", errMsg)
	}
	return nil
}

func (s *GraphQLStore) GetJob(ctx context.Context, id string) (*types.JobRecord, error) {
	query := fmt.Sprintf(`query {
		Job(docID: %q) { _docID kind target_key state error created_at updated_at }
	}`, id)
	resp, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	docs, _ := resp.Data["Job"].([]any)
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return decodeJob(docs[0])
}

func (s *GraphQLStore) ListJobsByState(ctx context.Context, state types.JobState) ([]*types.JobRecord, error) {
	query := fmt.Sprintf(`query {
		Job(filter: {state: {_eq: %q}}) { _docID kind target_key state error created_at updated_at }
	}`, string(state))
	resp, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	docs, _ := resp.Data["Job"].([]any)
	jobs := make([]*types.JobRecord, 0, len(docs))
	for _, d := range docs {
		j, err := decodeJob(d)
		if err != nil {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func decodeJob(d any) (*types.JobRecord, error) {
	m, ok := d.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("metadatastore: unexpected job document shape")
	}
	return &types.JobRecord{
		ID:        asString(m["_docID"]),
		Kind:      types.JobKind(asString(m["kind"])),
		TargetKey: asString(m["target_key"]),
		State:     types.JobState(asString(m["state"])),
		Error:     asString(m["error"]),
	}, nil
}
