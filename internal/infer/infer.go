// Package infer implements the inference driver: autoregressive
// prompt extension built from the ensemble and predictor, plus the
// process-wide lazy singleton model the UI-facing entrypoints use.
package infer

import (
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/samuelless/chatclm/internal/ensemble"
	"github.com/samuelless/chatclm/internal/predictor"
	"github.com/samuelless/chatclm/internal/tokenizer"
	"github.com/samuelless/chatclm/internal/tokens"
)

// DefaultMaxPromptLen is the stop condition the UI convention uses:
// prompts longer than this in characters short-circuit generation.
const DefaultMaxPromptLen = 250

// Driver wires a tokenizer, an ensemble and a predictor into the
// autoregressive extension loop and the single-step beam prediction the
// predictor-to-UI contract describes.
type Driver struct {
	tk           *tokenizer.Tokenizer
	ens          *ensemble.EnsembleModel
	pred         *predictor.Predictor
	maxToken     tokens.Token
	maxPromptLen int
}

// New builds a Driver. maxPromptLen <= 0 uses DefaultMaxPromptLen. nbWorker
// is forwarded to the predictor's candidate-scoring fan-out; callers
// typically pass the same thread count used for ensemble training.
func New(tk *tokenizer.Tokenizer, ens *ensemble.EnsembleModel, seed int64, topK, maxPromptLen, nbWorker int) *Driver {
	if maxPromptLen <= 0 {
		maxPromptLen = DefaultMaxPromptLen
	}
	return &Driver{
		tk:           tk,
		ens:          ens,
		pred:         predictor.New(ens, seed, topK, nbWorker),
		maxToken:     tk.MaxToken(),
		maxPromptLen: maxPromptLen,
	}
}

// Generate tokenizes prompt, repeats sampling M times appending one token
// per iteration, and decodes the result. Returns false if the prompt
// exceeds maxPromptLen in characters — the "stop generating" signal.
func (d *Driver) Generate(prompt string, m int) (string, bool) {
	if utf8.RuneCountInString(prompt) > d.maxPromptLen {
		return "", false
	}
	seq := d.tk.Encode(prompt)
	for i := 0; i < m; i++ {
		next, err := d.pred.Sample(seq, d.maxToken)
		if err != nil {
			return "", false
		}
		seq = append(seq, next)
	}
	return d.tk.Decode(seq), true
}

// PredictNext implements the predictor-to-UI contract: a single
// beam-searched token appended to prompt, or false to signal
// "stop generating" (e.g. prompt too long).
func (d *Driver) PredictNext(prompt string, depth, width int) (string, bool) {
	if utf8.RuneCountInString(prompt) > d.maxPromptLen {
		return "", false
	}
	seq := d.tk.Encode(prompt)
	next, _, err := d.pred.PredictTokens(seq, d.maxToken, depth, width)
	if err != nil {
		return "", false
	}
	seq = append(seq, next)
	return d.tk.Decode(seq), true
}

// singleton is a process-wide, once-initialized value constructed at
// first use. The constructor is fallible and the first failure is cached
// and returned on every subsequent call, for the lifetime of the process.
var singleton = sync.OnceValues(loadSingleton)

// loader is swapped in tests and by Configure; by default it is nil and
// Singleton fails until Configure is called.
var loader func() (*Driver, error)

// Configure installs the constructor the process-wide singleton uses.
// Must be called before the first call to Singleton(); later calls have
// no effect once the singleton has been constructed (or has failed).
func Configure(build func() (*Driver, error)) {
	loader = build
}

func loadSingleton() (*Driver, error) {
	if loader == nil {
		return nil, errUnconfigured
	}
	return loader()
}

// Singleton returns the process-wide Driver, constructing it on first
// call. A construction failure is cached and returned on every subsequent
// call — it is terminal for this process.
func Singleton() (*Driver, error) {
	return singleton()
}

var errUnconfigured = errors.New("infer: Configure must be called before Singleton")
