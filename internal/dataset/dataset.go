// Package dataset implements the token-stream data model: building a
// corpus of token sequences from text files, persisting it, and the
// shuffle/split/shrink/join/chunk operations the trainer and ensemble
// consume.
package dataset

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/samuelless/chatclm/internal/clmerr"
	"github.com/samuelless/chatclm/internal/tokenizer"
	"github.com/samuelless/chatclm/internal/tokens"
)

// indexPrefix strips a leading "<integer><whitespace>" prefix some corpus
// formats carry (e.g. Leipzig Corpora line numbers).
var indexPrefix = regexp.MustCompile(`^\d+\s`)

// Dataset is an ordered sequence of token sequences ("sentences").
// The zero value is the empty dataset, a legal value that trains into an
// untrained model.
type Dataset struct {
	data [][]tokens.Token
}

// FromData wraps an existing slice of token sequences.
func FromData(data [][]tokens.Token) Dataset {
	return Dataset{data: data}
}

// Data returns the underlying sentence slice. Callers must not mutate it.
func (d Dataset) Data() [][]tokens.Token {
	return d.data
}

// Len returns the number of sentences.
func (d Dataset) Len() int {
	return len(d.data)
}

// TotalTokens returns the sum of all sentence lengths.
func (d Dataset) TotalTokens() int {
	total := 0
	for _, s := range d.data {
		total += len(s)
	}
	return total
}

// LocateDataFiles globs rootDir for the corpus file convention:
// "<rootDir>/**/*-sentences.txt".
func LocateDataFiles(rootDir string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(rootDir), "**/*-sentences.txt")
	if err != nil {
		return nil, clmerr.Wrap(clmerr.Io, fmt.Errorf("glob %s: %w", rootDir, err))
	}
	for i, m := range matches {
		matches[i] = rootDir + "/" + m
	}
	return matches, nil
}

// ProgressFunc reports tokenization progress as bytes processed / total.
type ProgressFunc func(done, total int64)

// ComputeFromFiles reads each file line-by-line, strips a leading
// "<index><whitespace>" prefix, tokenizes with tk, drops empty results,
// and returns a freshly shuffled dataset. Lines are tokenized in parallel
// across goroutines; their pre-shuffle order is therefore
// implementation-defined.
func ComputeFromFiles(files []string, tk *tokenizer.Tokenizer, progress ProgressFunc) (Dataset, error) {
	type line struct {
		text string
	}

	var lines []line
	var totalBytes int64
	for _, f := range files {
		fh, err := os.Open(f)
		if err != nil {
			return Dataset{}, clmerr.Wrap(clmerr.Io, fmt.Errorf("open %s: %w", f, err))
		}
		sc := bufio.NewScanner(fh)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for sc.Scan() {
			text := sc.Text()
			lines = append(lines, line{text: text})
			totalBytes += int64(len(text))
		}
		err = sc.Err()
		fh.Close()
		if err != nil {
			return Dataset{}, clmerr.Wrap(clmerr.Io, fmt.Errorf("scan %s: %w", f, err))
		}
	}

	tokenized := make([][]tokens.Token, len(lines))
	var doneBytes int64
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(8)
	for i := range lines {
		i := i
		g.Go(func() error {
			text := indexPrefix.ReplaceAllString(lines[i].text, "")
			toks := tk.Encode(text)
			tokenized[i] = toks
			if progress != nil {
				mu.Lock()
				doneBytes += int64(len(lines[i].text))
				progress(doneBytes, totalBytes)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Dataset{}, err
	}

	var out [][]tokens.Token
	for _, toks := range tokenized {
		if len(toks) > 0 {
			out = append(out, toks)
		}
	}

	ds := Dataset{data: out}
	ds.Shuffle()
	return ds, nil
}

// LoadOrCompute returns the dataset cached at path if it exists, otherwise
// computes it from the corpus files under dataDir, persists it, and
// returns it.
func LoadOrCompute(path, dataDir string, tk *tokenizer.Tokenizer, progress ProgressFunc) (Dataset, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	files, err := LocateDataFiles(dataDir)
	if err != nil {
		return Dataset{}, err
	}
	ds, err := ComputeFromFiles(files, tk, progress)
	if err != nil {
		return Dataset{}, err
	}
	if err := ds.Save(path); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// Shuffle performs a uniform in-place permutation using a thread-local
// RNG: the ordering after shuffling is a uniform random permutation
// drawn once.
func (d *Dataset) Shuffle() {
	rand.Shuffle(len(d.data), func(i, j int) {
		d.data[i], d.data[j] = d.data[j], d.data[i]
	})
}

// SplitTrainTest splits contiguously at round(r·n), r ∈ [0,1].
func (d Dataset) SplitTrainTest(r float64) (train, test Dataset, err error) {
	if r < 0 || r > 1 {
		return Dataset{}, Dataset{}, clmerr.Wrap(clmerr.InvalidOptions, fmt.Errorf("split ratio must be in [0,1], got %v", r))
	}
	n := int(float64(len(d.data))*r + 0.5)
	trainData := make([][]tokens.Token, n)
	copy(trainData, d.data[:n])
	testData := make([][]tokens.Token, len(d.data)-n)
	copy(testData, d.data[n:])
	return Dataset{data: trainData}, Dataset{data: testData}, nil
}

// ShrinkToSize returns a prefix dataset whose total token count equals
// exactly min(tokenBudget, d.TotalTokens()); the last included sentence is
// truncated if needed.
func (d Dataset) ShrinkToSize(tokenBudget int) Dataset {
	var out [][]tokens.Token
	total := 0
	for _, s := range d.data {
		if total+len(s) <= tokenBudget {
			out = append(out, s)
			total += len(s)
		} else if total >= tokenBudget {
			continue
		} else {
			remaining := tokenBudget - total
			partial := make([]tokens.Token, remaining)
			copy(partial, s[:remaining])
			out = append(out, partial)
			total += remaining
		}
	}
	return Dataset{data: out}
}

// JoinLines greedily concatenates consecutive sentences into one until the
// accumulator's length reaches targetSize, then starts a new one — every
// sentence except possibly the last then has length >= targetSize.
func (d Dataset) JoinLines(targetSize int) Dataset {
	var out [][]tokens.Token
	var acc []tokens.Token
	for _, s := range d.data {
		acc = append(acc, s...)
		if len(acc) >= targetSize {
			out = append(out, acc)
			acc = nil
		}
	}
	if len(acc) > 0 {
		out = append(out, acc)
	}
	return Dataset{data: out}
}

// SplitIntoChunks partitions the sentence list into exactly n contiguous
// chunks of ceil(len(d)/n) sentences. Fails with clmerr.EmptyInput if the
// dataset has no sentences. When the sentences run out before the n-th
// chunk, the trailing chunks are shorter or empty (e.g. 10 sentences split
// 6 ways yields 5 chunks of 2 followed by one empty chunk).
func (d Dataset) SplitIntoChunks(n int) ([]Dataset, error) {
	if len(d.data) == 0 {
		return nil, clmerr.Wrap(clmerr.EmptyInput, fmt.Errorf("cannot split an empty dataset into chunks"))
	}
	if n <= 0 {
		return nil, clmerr.Wrap(clmerr.InvalidOptions, fmt.Errorf("chunk count must be >= 1, got %d", n))
	}
	chunkSize := (len(d.data) + n - 1) / n
	chunks := make([]Dataset, 0, n)
	for i := 0; i < n; i++ {
		start := i * chunkSize
		if start > len(d.data) {
			start = len(d.data)
		}
		end := start + chunkSize
		if end > len(d.data) {
			end = len(d.data)
		}
		part := make([][]tokens.Token, end-start)
		copy(part, d.data[start:end])
		chunks = append(chunks, Dataset{data: part})
	}
	return chunks, nil
}
