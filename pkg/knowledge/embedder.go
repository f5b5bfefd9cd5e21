package knowledge

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
	"google.golang.org/genai"
)

// Task tells the embedder whether a text is stored or searched for.
type Task string

const (
	TaskDocument Task = "RETRIEVAL_DOCUMENT"
	TaskQuery    Task = "RETRIEVAL_QUERY"
)

// Embedder turns texts into vectors of Dimensions() length.
type Embedder interface {
	Embed(ctx context.Context, texts []string, task Task) ([][]float32, error)
	Dimensions() int
	Name() string
}

const DefaultHashingDimensions = 512

// HashingEmbedder is an offline embedder: cl100k tokens of the lowercased
// text are hashed into a fixed number of signed buckets and the result is
// L2-normalized. Texts sharing vocabulary land close together.
type HashingEmbedder struct {
	codec tokenizer.Codec
	dims  int
}

var _ Embedder = &HashingEmbedder{}

func NewHashingEmbedder(dims int) (*HashingEmbedder, error) {
	if dims <= 0 {
		dims = DefaultHashingDimensions
	}
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, errors.Wrap(err, "load tokenizer")
	}
	return &HashingEmbedder{codec: codec, dims: dims}, nil
}

func (e *HashingEmbedder) Dimensions() int { return e.dims }
func (e *HashingEmbedder) Name() string    { return "hashing" }

func (e *HashingEmbedder) Embed(ctx context.Context, texts []string, _ Task) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.embedOne(text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *HashingEmbedder) embedOne(text string) ([]float32, error) {
	v := make([]float32, e.dims)
	ids, _, err := e.codec.Encode(strings.ToLower(text))
	if err != nil {
		return nil, errors.Wrap(err, "tokenize")
	}
	var buf [8]byte
	for _, id := range ids {
		h := fnv.New64a()
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		_, _ = h.Write(buf[:])
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dims))
		if sum>>63 == 1 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}
	normalize(v)
	return v, nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}

const (
	DefaultGeminiModel      = "text-embedding-004"
	DefaultGeminiDimensions = 768
	geminiBatchSize         = 100
)

// GeminiEmbedder calls the Gemini embedding API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

var _ Embedder = &GeminiEmbedder{}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dims int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if dims <= 0 {
		dims = DefaultGeminiDimensions
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return &GeminiEmbedder{client: client, model: model, dims: dims}, nil
}

func (e *GeminiEmbedder) Dimensions() int { return e.dims }
func (e *GeminiEmbedder) Name() string    { return "gemini:" + e.model }

func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	dims := int32(e.dims)
	for start := 0; start < len(texts); start += geminiBatchSize {
		end := start + geminiBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}
		result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
			TaskType:             string(task),
			OutputDimensionality: &dims,
		})
		if err != nil {
			return nil, errors.Wrap(err, "gemini embed")
		}
		if len(result.Embeddings) != len(contents) {
			return nil, errors.Errorf("gemini embed: got %d embeddings for %d texts", len(result.Embeddings), len(contents))
		}
		for _, emb := range result.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}
