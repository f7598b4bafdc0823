// Semantic index - SQLite persistence + embedding providers, cosine search
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	openai "github.com/sashabaranov/go-openai"
)

// EmbeddingProvider turns text into vectors
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
	Name() string
}

// Config for the vector store. Embedding credentials and model live on the
// EmbeddingProvider, not here.
type Config struct {
	MaxResults int     // default 5
	MinScore   float32 // default 0.3
}

// VectorStore is the semantic index over past turns
type VectorStore struct {
	db        *sql.DB
	embedding EmbeddingProvider
	cfg       Config
	mu        sync.RWMutex
}

// Entry is one indexed item
type Entry struct {
	ID         string
	SessionKey string
	Text       string
	Category   string
	CreatedAt  int64
}

// Result is a search hit with its similarity score
type Result struct {
	Entry Entry
	Score float32
}

var embeddingDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

func dimForModel(model string, override int) int {
	if override > 0 {
		return override
	}
	if d, ok := embeddingDims[model]; ok {
		return d
	}
	return 1536
}

// OpenAIProvider embeds via the OpenAI embeddings API
type OpenAIProvider struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIProvider creates an embedding provider
func NewOpenAIProvider(apiKey, model string, dim int) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key required")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
		dim:    dimForModel(model, dim),
	}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.model),
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	out := make([]float32, len(resp.Data[0].Embedding))
	copy(out, resp.Data[0].Embedding)
	return out, nil
}

func (p *OpenAIProvider) Dim() int     { return p.dim }
func (p *OpenAIProvider) Name() string { return "openai:" + p.model }

// NewVectorStore opens the index database at dbPath
func NewVectorStore(dbPath string, embedding EmbeddingProvider, cfg Config) (*VectorStore, error) {
	if embedding == nil {
		return nil, fmt.Errorf("embedding provider required")
	}
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS turn_vectors (
			id TEXT PRIMARY KEY,
			session_key TEXT NOT NULL,
			text TEXT NOT NULL,
			category TEXT DEFAULT '',
			vector BLOB NOT NULL,
			created_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init vector schema: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_turn_vectors_session ON turn_vectors(session_key, created_at)`); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.MaxResults == 0 {
		cfg.MaxResults = 5
	}
	if cfg.MinScore == 0 {
		cfg.MinScore = 0.3
	}

	return &VectorStore{db: db, embedding: embedding, cfg: cfg}, nil
}

// Insert embeds text and stores it under the session
func (s *VectorStore) Insert(ctx context.Context, sessionKey, text, category string) (string, error) {
	vec, err := s.embedding.Embed(ctx, text)
	if err != nil {
		return "", err
	}
	normalizeVector(vec)

	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO turn_vectors (id, session_key, text, category, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, sessionKey, text, category, serializeVector(vec), time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("insert vector: %w", err)
	}
	return id, nil
}

// Search returns the top-k entries most similar to query
func (s *VectorStore) Search(ctx context.Context, query string, k int, minScore float32) ([]Result, error) {
	if k <= 0 {
		k = s.cfg.MaxResults
	}
	if minScore <= 0 {
		minScore = s.cfg.MinScore
	}

	queryVec, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	normalizeVector(queryVec)

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Linear scan over recent candidates; fine at chat-history scale
	maxCandidates := k * 4
	if maxCandidates < 200 {
		maxCandidates = 200
	}
	rows, err := s.db.Query(`
		SELECT id, session_key, text, category, vector, created_at
		FROM turn_vectors
		ORDER BY created_at DESC
		LIMIT ?
	`, maxCandidates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []Result
	for rows.Next() {
		var r Result
		var blob []byte
		if err := rows.Scan(&r.Entry.ID, &r.Entry.SessionKey, &r.Entry.Text, &r.Entry.Category, &blob, &r.Entry.CreatedAt); err != nil {
			return nil, err
		}
		vec := deserializeVector(blob)
		if len(vec) == len(queryVec) {
			r.Score = cosineSimilarity(queryVec, vec)
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	results := make([]Result, 0, k)
	for _, r := range all {
		if r.Score >= minScore && len(results) < k {
			results = append(results, r)
		}
	}
	return results, nil
}

// Count returns the number of indexed entries
func (s *VectorStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM turn_vectors`).Scan(&n)
	return n, err
}

// Close closes the index database
func (s *VectorStore) Close() error {
	return s.db.Close()
}

func serializeVector(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

func deserializeVector(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float32
	for i := 0; i < len(a); i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(normA*normB)))
}

func normalizeVector(v []float32) {
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range v {
		v[i] /= norm
	}
}
