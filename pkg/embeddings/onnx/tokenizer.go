package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Tokenizer is a lower-casing BERT WordPiece tokenizer.
type Tokenizer struct {
	vocab map[string]int64
	cls   int64
	sep   int64
	unk   int64
}

// LoadTokenizer reads the vocabulary from a HuggingFace tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tokenizer: %w", err)
	}

	var doc struct {
		Model struct {
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing tokenizer: %w", err)
	}
	return NewTokenizer(doc.Model.Vocab)
}

// NewTokenizer builds a tokenizer over vocab, which must contain the [CLS],
// [SEP] and [UNK] special tokens.
func NewTokenizer(vocab map[string]int64) (*Tokenizer, error) {
	t := &Tokenizer{vocab: vocab}
	for tok, dst := range map[string]*int64{"[CLS]": &t.cls, "[SEP]": &t.sep, "[UNK]": &t.unk} {
		id, ok := vocab[tok]
		if !ok {
			return nil, fmt.Errorf("tokenizer vocabulary is missing %s", tok)
		}
		*dst = id
	}
	return t, nil
}

// Encode returns input ids framed by [CLS] and [SEP] and the matching
// attention mask, both padded to maxLen.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int64) {
	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)

	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	ids[0], mask[0] = t.cls, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = t.sep, 1
	return ids, mask
}

// Tokenize converts text to WordPiece ids without special tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var out []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		out = append(out, t.wordPiece(word)...)
	}
	return out
}

// wordPiece greedily matches the longest vocabulary prefix, continuing with
// "##" pieces. A word with any unmatched remainder becomes a single [UNK].
func (t *Tokenizer) wordPiece(word string) []int64 {
	if id, ok := t.vocab[word]; ok {
		return []int64{id}
	}

	runes := []rune(word)
	var pieces []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		var id int64 = -1
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if v, ok := t.vocab[sub]; ok {
				id = v
				break
			}
		}
		if id < 0 {
			return []int64{t.unk}
		}
		pieces = append(pieces, id)
		start = end
	}
	return pieces
}

// splitWords splits on whitespace and isolates punctuation as BERT's basic
// tokenizer does.
func splitWords(text string) []string {
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
	for _, r := range text {
		switch {
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

// meanPool averages the hidden states of attended tokens. hidden is laid out
// as [seq][dims].
func meanPool(hidden []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	var n float32
	for i, m := range mask {
		if m == 0 {
			continue
		}
		n++
		row := hidden[i*dims : (i+1)*dims]
		for j, v := range row {
			out[j] += v
		}
	}
	if n == 0 {
		return out
	}
	for j := range out {
		out[j] /= n
	}
	return out
}
