// Package onnx embeds text locally with a sentence-transformer model
// (all-MiniLM-L6-v2 by default) through ONNX Runtime.
//
// The runtime binding needs cgo and the onnxruntime shared library, so the
// embedder itself is behind the "onnx" build tag. Tokenization and pooling
// are pure Go and always built.
package onnx

import (
	"encoding/json"
	"os"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
)

// Special tokens. IDs are looked up in the vocabulary; the fallbacks are
// the bert-base-uncased values.
const (
	tokenPad = "[PAD]"
	tokenUnk = "[UNK]"
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"

	continuationPrefix = "##"
	maxWordRunes       = 100
)

// Tokenizer is a BERT WordPiece tokenizer for uncased models.
type Tokenizer struct {
	vocab map[string]int64
	pad   int64
	unk   int64
	cls   int64
	sep   int64
}

// Encoding is a model-ready token sequence padded to a fixed length.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Attended returns the number of non-padding positions.
func (e Encoding) Attended() int {
	n := 0
	for _, m := range e.AttentionMask {
		if m == 1 {
			n++
		}
	}
	return n
}

// NewTokenizer builds a tokenizer from a token -> id vocabulary.
func NewTokenizer(vocab map[string]int64) *Tokenizer {
	lookup := func(tok string, fallback int64) int64 {
		if id, ok := vocab[tok]; ok {
			return id
		}
		return fallback
	}
	return &Tokenizer{
		vocab: vocab,
		pad:   lookup(tokenPad, 0),
		unk:   lookup(tokenUnk, 100),
		cls:   lookup(tokenCLS, 101),
		sep:   lookup(tokenSEP, 102),
	}
}

// LoadTokenizer reads the vocabulary from a HuggingFace tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read tokenizer", goerr.V("path", path))
	}

	var raw struct {
		Model struct {
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, goerr.Wrap(err, "failed to parse tokenizer", goerr.V("path", path))
	}
	if len(raw.Model.Vocab) == 0 {
		return nil, goerr.New("tokenizer has no vocabulary", goerr.V("path", path))
	}
	return NewTokenizer(raw.Model.Vocab), nil
}

// Tokenize converts text to WordPiece token IDs without special tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range basicSplit(text) {
		ids = append(ids, t.wordPiece(word)...)
	}
	return ids
}

// Encode produces [CLS] tokens [SEP] padded to maxLen, truncating the
// tokens if needed.
func (t *Tokenizer) Encode(text string, maxLen int) Encoding {
	if maxLen < 2 {
		maxLen = 2
	}
	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	enc := Encoding{
		InputIDs:      make([]int64, maxLen),
		AttentionMask: make([]int64, maxLen),
		TokenTypeIDs:  make([]int64, maxLen),
	}
	for i := range enc.InputIDs {
		enc.InputIDs[i] = t.pad
	}

	enc.InputIDs[0] = t.cls
	enc.AttentionMask[0] = 1
	for i, id := range tokens {
		enc.InputIDs[i+1] = id
		enc.AttentionMask[i+1] = 1
	}
	end := len(tokens) + 1
	enc.InputIDs[end] = t.sep
	enc.AttentionMask[end] = 1
	return enc
}

// wordPiece splits word greedily into the longest vocabulary pieces. A word
// with any unmatched remainder becomes a single [UNK].
func (t *Tokenizer) wordPiece(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []int64{t.unk}
	}

	var ids []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		var (
			id    int64
			found bool
		)
		for ; end > start; end-- {
			piece := string(runes[start:end])
			if start > 0 {
				piece = continuationPrefix + piece
			}
			if id, found = t.vocab[piece]; found {
				break
			}
		}
		if !found {
			return []int64{t.unk}
		}
		ids = append(ids, id)
		start = end
	}
	return ids
}

// basicSplit lowercases, drops control characters and splits on
// whitespace and punctuation, keeping punctuation as separate words.
func basicSplit(text string) []string {
	var (
		words []string
		cur   strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case r == 0 || r == unicode.ReplacementChar || unicode.IsControl(r) && !unicode.IsSpace(r):
			continue
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}
