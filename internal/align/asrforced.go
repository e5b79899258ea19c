package align

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/readalong/readalong/internal/blobstore"
	"github.com/readalong/readalong/internal/types"
)

// ASRForced runs a remote ASR-based forced aligner over the canonical
// waveform, constrained to the chapter's token sequence. There is no
// forced-alignment SDK available, so the wire format here follows the
// same hand-rolled HTTP-JSON shape the TTS/LLM clients use.
type ASRForced struct {
	Blobs      blobstore.Store
	Client     *http.Client
	BaseURL    string
	APIKey     string
	MaxRetries int
	RetryDelay time.Duration
}

// NewASRForced constructs an ASRForced aligner.
func NewASRForced(blobs blobstore.Store, baseURL, apiKey string) *ASRForced {
	return &ASRForced{
		Blobs:      blobs,
		Client:     &http.Client{Timeout: 5 * time.Minute},
		BaseURL:    baseURL,
		APIKey:     apiKey,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
}

type asrForcedRequest struct {
	AudioBase64 string   `json:"audio_base64"`
	AudioFormat string   `json:"audio_format"`
	Words       []string `json:"words"`
}

type asrForcedWord struct {
	Index       int  `json:"index"`
	ClipBeginMS int  `json:"clip_begin_ms"`
	ClipEndMS   int  `json:"clip_end_ms"`
	Matched     bool `json:"matched"`
}

type asrForcedResponse struct {
	Words []asrForcedWord `json:"words"`
}

func (a *ASRForced) Align(ctx context.Context, artifact *types.AudioArtifact, tokens []types.Token) (types.SyncTable, error) {
	audio, err := a.Blobs.Get(artifact.CanonicalBlobKey)
	if err != nil {
		return nil, fmt.Errorf("align: loading canonical audio: %w", err)
	}

	words := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = tok.Surface
	}
	reqBody := asrForcedRequest{
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		AudioFormat: "mp3",
		Words:       words,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("align: encoding asr-forced request: %w", err)
	}

	var parsed asrForcedResponse
	err = retry.Do(
		func() error {
			result, callErr := a.call(ctx, payload)
			if callErr != nil {
				return callErr
			}
			parsed = result
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(max(a.MaxRetries, 1))),
		retry.Delay(a.RetryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("align: asr-forced call: %w", err)
	}

	byIndex := make(map[int]asrForcedWord, len(parsed.Words))
	for _, w := range parsed.Words {
		if w.Matched {
			byIndex[w.Index] = w
		}
	}

	table := make(types.SyncTable, len(tokens))
	for i, tok := range tokens {
		w, ok := byIndex[i]
		if !ok {
			table[i] = types.SyncEntry{TokenID: tok.ID}
			continue
		}
		begin, end := w.ClipBeginMS, w.ClipEndMS
		table[i] = types.SyncEntry{TokenID: tok.ID, ClipBeginMS: &begin, ClipEndMS: &end}
	}
	table = Postprocess(table)
	return ClipBounds(table, artifact.CanonicalDurationMS), nil
}

func (a *ASRForced) call(ctx context.Context, payload []byte) (asrForcedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/align", bytes.NewReader(payload))
	if err != nil {
		return asrForcedResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return asrForcedResponse{}, fmt.Errorf("asr-forced request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return asrForcedResponse{}, fmt.Errorf("asr-forced returned status %d", resp.StatusCode)
	}

	var parsed asrForcedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return asrForcedResponse{}, fmt.Errorf("decoding asr-forced response: %w", err)
	}
	return parsed, nil
}
