// Package translate produces a translated token table for a chapter by
// calling an LLM client with the chapter's token surfaces, preserving
// token ids so a translated chapter can still drive alignment and audio
// generation downstream.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/readalong/readalong/internal/blobstore"
	"github.com/readalong/readalong/internal/jobs"
	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/providers"
	"github.com/readalong/readalong/internal/types"
)

const systemPrompt = "You translate book chapters word-for-word, preserving sentence structure as closely as the target language allows. Respond with one translated line per input line, in the same order, and nothing else."

// Job translates a chapter's token surfaces into targetLang and persists
// the result as a JSON-encoded token table blob.
type Job struct {
	BookID       string
	ChapterIndex int
	TargetLang   string
	LLM          providers.LLMClient
	LLMName      string

	// MaxRetries and RetryDelay bound retries of the LLM call itself, for
	// transient backend failures. Zero means the NewJob defaults.
	MaxRetries int
	RetryDelay time.Duration

	Store metadatastore.Store
	Blobs blobstore.Store
}

// NewJob constructs a translate Job. The caller resolves the LLM client
// from the registry before calling this.
func NewJob(bookID string, chapterIndex int, targetLang string, llm providers.LLMClient, llmName string, store metadatastore.Store, blobs blobstore.Store) *Job {
	return &Job{
		BookID:       bookID,
		ChapterIndex: chapterIndex,
		TargetLang:   targetLang,
		LLM:          llm,
		LLMName:      llmName,
		MaxRetries:   3,
		RetryDelay:   2 * time.Second,
		Store:        store,
		Blobs:        blobs,
	}
}

// LoadTokenTable reads back a chapter's token table previously translated
// into targetLang, for a synthesis job to read from directly.
func LoadTokenTable(blobs blobstore.Store, bookID string, chapterIndex int, targetLang string) ([]types.Token, error) {
	keys := blobstore.BookKeys{BookID: bookID}
	data, err := blobs.Get(keys.TranslatedTokenTable(chapterIndex, targetLang))
	if err != nil {
		return nil, fmt.Errorf("translate: loading translated token table: %w", err)
	}
	var table []types.Token
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("translate: decoding translated token table: %w", err)
	}
	return table, nil
}

func (j *Job) ID() string          { return "" }
func (j *Job) Kind() types.JobKind { return types.JobKindTranslateChapter }
func (j *Job) TargetKey() string {
	return fmt.Sprintf("%s/%d/%s/translate", j.BookID, j.ChapterIndex, j.TargetLang)
}

func (j *Job) Run(ctx context.Context, report jobs.ProgressFunc) error {
	report("load", "loading chapter", 0.1)
	chapter, err := j.Store.GetChapter(ctx, j.BookID, j.ChapterIndex)
	if err != nil {
		return fmt.Errorf("translate: loading chapter: %w", err)
	}
	if len(chapter.TokenTable) == 0 {
		return fmt.Errorf("translate: chapter %d has no tokens", j.ChapterIndex)
	}

	report("translate", fmt.Sprintf("calling %s", j.LLMName), 0.4)
	lines := make([]string, len(chapter.TokenTable))
	for i, tok := range chapter.TokenTable {
		lines[i] = tok.Surface
	}

	maxRetries := j.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := j.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}

	var result *providers.ChatResult
	err = retry.Do(
		func() error {
			res, chatErr := j.LLM.Chat(ctx, &providers.ChatRequest{
				Messages: []providers.Message{
					{Role: "system", Content: systemPrompt},
					{Role: "user", Content: fmt.Sprintf("Translate the following lines to %s:\n%s", j.TargetLang, strings.Join(lines, "\n"))},
				},
			})
			if chatErr != nil {
				return chatErr
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxRetries)),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("translate: llm call: %w", err)
	}

	translatedLines := strings.Split(strings.TrimRight(result.Content, "\n"), "\n")

	table := make([]types.Token, len(chapter.TokenTable))
	for i, tok := range chapter.TokenTable {
		surface := tok.Surface
		if i < len(translatedLines) {
			surface = strings.TrimSpace(translatedLines[i])
		}
		table[i] = types.Token{ID: tok.ID, Surface: surface, Normalized: strings.ToLower(surface)}
	}

	report("persist", "writing translated token table", 0.8)
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(table); err != nil {
		return fmt.Errorf("translate: encoding token table: %w", err)
	}

	keys := blobstore.BookKeys{BookID: j.BookID}
	if err := j.Blobs.Put(keys.TranslatedTokenTable(j.ChapterIndex, j.TargetLang), buf.Bytes()); err != nil {
		return fmt.Errorf("translate: persisting token table: %w", err)
	}

	report("done", fmt.Sprintf("translated %d tokens", len(table)), 1.0)
	return nil
}
