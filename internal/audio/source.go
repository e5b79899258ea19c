package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/avast/retry-go/v4"

	"github.com/readalong/readalong/internal/blobstore"
	"github.com/readalong/readalong/internal/jobs"
	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/providers"
	"github.com/readalong/readalong/internal/translate"
	"github.com/readalong/readalong/internal/types"
)

// maxTTSChars bounds a single TTS request's input, matching the common
// provider-side input ceiling (OpenAI's gpt-4o-mini-tts family included).
const maxTTSChars = 4096

// SynthesizeJob generates canonical audio for a chapter by calling a TTS
// provider and persisting the result as an AudioArtifact.
type SynthesizeJob struct {
	BookID       string
	ChapterIndex int
	Language     string
	Provider     providers.TTSProvider
	ProviderName string
	Voice        string
	Format       string

	// UseTranslation, when true and Language differs from SourceLanguage,
	// synthesizes from the chapter's already-translated token table instead
	// of its original tokens.
	UseTranslation bool
	SourceLanguage string

	Store   metadatastore.Store
	Blobs   blobstore.Store
	WorkDir string
}

// NewSynthesizeJob constructs a SynthesizeJob. The caller resolves the
// TTS provider from the registry before calling this.
func NewSynthesizeJob(bookID string, chapterIndex int, language string, provider providers.TTSProvider, providerName, voice, format string, useTranslation bool, sourceLanguage string, store metadatastore.Store, blobs blobstore.Store, workDir string) *SynthesizeJob {
	return &SynthesizeJob{
		BookID:         bookID,
		ChapterIndex:   chapterIndex,
		Language:       language,
		Provider:       provider,
		ProviderName:   providerName,
		Voice:          voice,
		Format:         format,
		UseTranslation: useTranslation,
		SourceLanguage: sourceLanguage,
		Store:          store,
		Blobs:          blobs,
		WorkDir:        workDir,
	}
}

func (j *SynthesizeJob) ID() string        { return "" }
func (j *SynthesizeJob) Kind() types.JobKind { return types.JobKindSynthesize }
func (j *SynthesizeJob) TargetKey() string {
	return fmt.Sprintf("%s/%d/%s/synthesize", j.BookID, j.ChapterIndex, j.Language)
}

// Run synthesizes the chapter's token text, concatenates per-chunk audio,
// and writes the canonical AudioArtifact.
func (j *SynthesizeJob) Run(ctx context.Context, report jobs.ProgressFunc) error {
	chapter, err := j.Store.GetChapter(ctx, j.BookID, j.ChapterIndex)
	if err != nil {
		return fmt.Errorf("audio: loading chapter: %w", err)
	}

	tokenTable := chapter.TokenTable
	source := types.AudioSourceTTS
	if j.UseTranslation && j.SourceLanguage != "" && j.Language != j.SourceLanguage {
		translated, err := translate.LoadTokenTable(j.Blobs, j.BookID, j.ChapterIndex, j.Language)
		if err != nil {
			return fmt.Errorf("audio: loading translated token table for %s (translate the chapter first): %w", j.Language, err)
		}
		tokenTable = translated
		source = types.AudioSourceTTSTranslated
	}

	text := tokensToText(tokenTable)
	chunks := splitForTTS(text, maxTTSChars)
	if len(chunks) == 0 {
		return fmt.Errorf("audio: chapter %d has no text to synthesize", j.ChapterIndex)
	}

	chunkDir := filepath.Join(j.WorkDir, fmt.Sprintf("%s-%d-%s", j.BookID, j.ChapterIndex, j.Language))
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return fmt.Errorf("audio: creating work dir: %w", err)
	}
	defer os.RemoveAll(chunkDir)

	var timing []types.TimingEntry
	var chunkFiles []string
	offsetMS := 0
	tokenCursor := 0

	for i, chunk := range chunks {
		report("synthesize", fmt.Sprintf("chunk %d/%d", i+1, len(chunks)), float64(i)/float64(len(chunks)))

		var result *providers.TTSResult
		retryErr := retry.Do(
			func() error {
				res, genErr := j.Provider.Generate(ctx, &providers.TTSRequest{
					Text:   chunk,
					Voice:  j.Voice,
					Format: j.Format,
				})
				if genErr != nil {
					return genErr
				}
				if !res.Success {
					return fmt.Errorf("tts provider %s reported failure on chunk %d: %s", j.ProviderName, i, res.ErrorMessage)
				}
				result = res
				return nil
			},
			retry.Context(ctx),
			retry.Attempts(uint(max(j.Provider.MaxRetries(), 1))),
			retry.Delay(j.Provider.RetryDelayBase()),
			retry.LastErrorOnly(true),
		)
		if retryErr != nil {
			return fmt.Errorf("audio: tts provider %s failed on chunk %d: %w", j.ProviderName, i, retryErr)
		}

		chunkPath := filepath.Join(chunkDir, fmt.Sprintf("chunk_%04d.bin", i))
		if err := os.WriteFile(chunkPath, result.Audio, 0o644); err != nil {
			return fmt.Errorf("audio: writing chunk %d: %w", i, err)
		}
		chunkFiles = append(chunkFiles, chunkPath)

		duration := result.DurationMS
		if duration == 0 {
			if d, err := DurationMS(ctx, chunkPath); err == nil {
				duration = d
			}
		}

		// Attribute this chunk's duration evenly across the tokens it covers,
		// advancing tokenCursor by the chunk's word count. This provisional
		// timing is a starting point for the aligner, not a final sync table.
		wordsInChunk := len(strings.Fields(chunk))
		if wordsInChunk > 0 && tokenCursor < len(tokenTable) {
			perWordMS := duration / wordsInChunk
			for w := 0; w < wordsInChunk && tokenCursor < len(tokenTable); w++ {
				tok := tokenTable[tokenCursor]
				timing = append(timing, types.TimingEntry{
					TokenID:     tok.ID,
					ClipBeginMS: offsetMS + w*perWordMS,
					ClipEndMS:   offsetMS + (w+1)*perWordMS,
				})
				tokenCursor++
			}
		}
		offsetMS += duration
	}

	report("concatenate", "joining chunks", 0.9)

	keys := blobstore.BookKeys{BookID: j.BookID}
	canonicalKey := keys.Audio(j.ChapterIndex, j.Language, j.Voice)
	canonicalPath := filepath.Join(chunkDir, "canonical.bin")

	if err := Concatenate(ctx, chunkFiles, canonicalPath); err != nil {
		return fmt.Errorf("audio: concatenating chunks: %w", err)
	}

	data, err := os.ReadFile(canonicalPath)
	if err != nil {
		return fmt.Errorf("audio: reading concatenated audio: %w", err)
	}
	if err := j.Blobs.Put(canonicalKey, data); err != nil {
		return fmt.Errorf("audio: storing canonical audio: %w", err)
	}
	sourceKey := keys.SourceAudio(j.ChapterIndex, j.Language, j.Voice)
	if err := j.Blobs.Put(sourceKey, data); err != nil {
		return fmt.Errorf("audio: storing source audio: %w", err)
	}

	totalDuration, err := DurationMS(ctx, canonicalPath)
	if err != nil {
		totalDuration = offsetMS
	}

	artifact := &types.AudioArtifact{
		BookID:              j.BookID,
		ChapterIndex:        j.ChapterIndex,
		Language:            j.Language,
		Source:              source,
		Voice:               j.Voice,
		ProvisionalTiming:   timing,
		CanonicalBlobKey:    canonicalKey,
		CanonicalDurationMS: totalDuration,
		SourceBlobKeyRef:    sourceKey,
	}
	if err := j.Store.PutAudioArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("audio: persisting artifact: %w", err)
	}

	report("done", "synthesis complete", 1.0)
	return nil
}

// UploadJob persists a user-supplied audio file as the canonical
// AudioArtifact for a chapter, bypassing TTS entirely.
type UploadJob struct {
	BookID       string
	ChapterIndex int
	Language     string
	Data         []byte

	Store metadatastore.Store
	Blobs blobstore.Store
}

func (j *UploadJob) ID() string         { return "" }
func (j *UploadJob) Kind() types.JobKind { return types.JobKindSynthesize }
func (j *UploadJob) TargetKey() string {
	return fmt.Sprintf("%s/%d/%s/upload", j.BookID, j.ChapterIndex, j.Language)
}

func (j *UploadJob) Run(ctx context.Context, report jobs.ProgressFunc) error {
	report("store", "saving uploaded audio", 0.2)

	keys := blobstore.BookKeys{BookID: j.BookID}
	canonicalKey := keys.Audio(j.ChapterIndex, j.Language, "upload")
	if err := j.Blobs.Put(canonicalKey, j.Data); err != nil {
		return fmt.Errorf("audio: storing uploaded audio: %w", err)
	}
	sourceKey := keys.SourceAudio(j.ChapterIndex, j.Language, "upload")
	if err := j.Blobs.Put(sourceKey, j.Data); err != nil {
		return fmt.Errorf("audio: storing source audio: %w", err)
	}

	tmp, err := os.CreateTemp("", "readalong-upload-*.bin")
	if err != nil {
		return fmt.Errorf("audio: creating probe temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(j.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("audio: writing probe temp file: %w", err)
	}
	tmp.Close()

	duration, err := DurationMS(ctx, tmp.Name())
	if err != nil {
		return fmt.Errorf("audio: probing uploaded audio duration: %w", err)
	}

	artifact := &types.AudioArtifact{
		BookID:              j.BookID,
		ChapterIndex:        j.ChapterIndex,
		Language:            j.Language,
		Source:              types.AudioSourceUpload,
		CanonicalBlobKey:    canonicalKey,
		CanonicalDurationMS: duration,
		SourceBlobKeyRef:    sourceKey,
	}
	if err := j.Store.PutAudioArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("audio: persisting artifact: %w", err)
	}

	report("done", "upload stored", 1.0)
	return nil
}

func tokensToText(tokens []types.Token) string {
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.Surface
	}
	return strings.Join(words, " ")
}

// splitForTTS splits text into chunks no longer than maxChars, preferring
// sentence boundaries. When a window holds no sentence boundary it cuts at
// the last space, and when it holds no space either it cuts at exactly
// maxChars, so a chunk can end mid-sentence or mid-word.
func splitForTTS(text string, maxChars int) []string {
	text = normalizeWhitespace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}

		cut := lastSentenceBoundary(text, start, end)
		if cut <= start {
			cut = lastSpace(text, start, end)
		}
		if cut <= start {
			cut = end
		}

		chunk := strings.TrimSpace(text[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		start = cut
	}
	return chunks
}

func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

func lastSentenceBoundary(text string, from, to int) int {
	for i := to; i > from; i-- {
		if text[i-1] == '.' || text[i-1] == '!' || text[i-1] == '?' {
			return i
		}
	}
	return -1
}

func lastSpace(text string, from, to int) int {
	for i := to; i > from; i-- {
		if text[i-1] == ' ' {
			return i
		}
	}
	return -1
}
