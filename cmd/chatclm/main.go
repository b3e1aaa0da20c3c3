package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/samuelless/chatclm/internal/config"
	"github.com/samuelless/chatclm/internal/dataset"
	"github.com/samuelless/chatclm/internal/ensemble"
	"github.com/samuelless/chatclm/internal/eval"
	"github.com/samuelless/chatclm/internal/infer"
	"github.com/samuelless/chatclm/internal/tokenizer"
	"github.com/samuelless/chatclm/internal/trainopts"
)

var (
	defaultDataDir            = "./data"
	defaultTokenizerPath      = "./tokenizer.json"
	defaultDatasetCheckpoint  = "dataset.checkpoint"
	defaultEnsembleCheckpoint = "ensemble.checkpoint"
	defaultThreads            = 8
	defaultEnsembleSize       = 1
	defaultPredictorTopK      = 10
	defaultMaxPromptLen       = infer.DefaultMaxPromptLen

	trainDefaults = trainopts.Default()
)

func main() {
	root := &cobra.Command{
		Use:   "chatclm",
		Short: "A compression-as-language-model engine",
		Long:  "chatclm — a next-token predictor derived from the marginal compressed-byte cost of extending a prompt, with no neural weights.",
	}

	cfg, err := config.Load(".chatclm.toml")
	if err == nil {
		if cfg.DataDir != "" {
			defaultDataDir = cfg.DataDir
		}
		if cfg.TokenizerPath != "" {
			defaultTokenizerPath = cfg.TokenizerPath
		}
		if cfg.DatasetCheckpoint != "" {
			defaultDatasetCheckpoint = cfg.DatasetCheckpoint
		}
		if cfg.EnsembleCheckpoint != "" {
			defaultEnsembleCheckpoint = cfg.EnsembleCheckpoint
		}
		if cfg.Threads > 0 {
			defaultThreads = cfg.Threads
		}
		if cfg.EnsembleSize > 0 {
			defaultEnsembleSize = cfg.EnsembleSize
		}
		if cfg.PredictorTopK > 0 {
			defaultPredictorTopK = cfg.PredictorTopK
		}
		if cfg.MaxPromptLen > 0 {
			defaultMaxPromptLen = cfg.MaxPromptLen
		}
		if cfg.K > 0 {
			trainDefaults.K = uint32(cfg.K)
		}
		if cfg.D > 0 {
			trainDefaults.D = uint32(cfg.D)
		}
		if cfg.F > 0 {
			trainDefaults.F = uint32(cfg.F)
		}
		if cfg.Steps > 0 {
			trainDefaults.Steps = uint32(cfg.Steps)
		}
		if cfg.CompressionLevel > 0 {
			trainDefaults.CompressionLevel = uint32(cfg.CompressionLevel)
		}
		if cfg.DictionarySizePercentage > 0 {
			trainDefaults.DictionarySizePercentage = cfg.DictionarySizePercentage
		}
	}

	var dataDir, tokenizerPath, datasetCheckpoint, ensembleCheckpoint string
	var threads, ensembleSize, predictorTopK, maxPromptLen int
	root.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir, "directory containing *-sentences.txt corpus files")
	root.PersistentFlags().StringVar(&tokenizerPath, "tokenizer", defaultTokenizerPath, "path to tokenizer.json")
	root.PersistentFlags().StringVar(&datasetCheckpoint, "dataset", defaultDatasetCheckpoint, "path to the dataset checkpoint")
	root.PersistentFlags().StringVar(&ensembleCheckpoint, "ensemble", defaultEnsembleCheckpoint, "path to the ensemble checkpoint")
	root.PersistentFlags().IntVar(&threads, "threads", defaultThreads, "worker thread count for parallel stages")
	root.PersistentFlags().IntVar(&ensembleSize, "ensemble-size", defaultEnsembleSize, "number of independently trained dictionaries")
	root.PersistentFlags().IntVar(&predictorTopK, "predictor-top-k", defaultPredictorTopK, "restrict sampling to the K cheapest candidates")
	root.PersistentFlags().IntVar(&maxPromptLen, "max-prompt-len", defaultMaxPromptLen, "stop generating once the prompt exceeds this many characters")

	loadTokenizer := func() (*tokenizer.Tokenizer, error) {
		return tokenizer.New(tokenizer.Custom, tokenizerPath)
	}

	openDataset := func(tk *tokenizer.Tokenizer) (dataset.Dataset, error) {
		return dataset.LoadOrCompute(datasetCheckpoint, dataDir, tk, progressPrinter())
	}

	// ---- chatclm train -----------------------------------------------------
	var k, d, f, steps, compressionLevel int
	var dictSizePct float64
	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train an ensemble of dictionary models from the corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := loadTokenizer()
			if err != nil {
				return err
			}
			defer tk.Close()

			ds, err := openDataset(tk)
			if err != nil {
				return err
			}

			opts := trainDefaults
			opts.EnsembleSize = uint32(ensembleSize)
			opts.NbThreads = uint32(threads)
			opts.K = uint32(k)
			opts.D = uint32(d)
			opts.F = uint32(f)
			opts.Steps = uint32(steps)
			opts.CompressionLevel = uint32(compressionLevel)
			opts.DictionarySizePercentage = dictSizePct

			fmt.Fprintf(os.Stderr, "Training ensemble (size=%d) on %d sentences…\n", ensembleSize, ds.Len())
			start := time.Now()
			ens, err := ensemble.Train(ds, opts)
			if err != nil {
				return err
			}
			defer ens.Close()

			if err := ens.SaveCheckpoint(ensembleCheckpoint); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Done in %s. Ensemble saved to %s.\n", time.Since(start).Round(time.Millisecond), ensembleCheckpoint)
			return nil
		},
	}
	trainCmd.Flags().IntVar(&k, "k", int(trainDefaults.K), "fastCover segment size")
	trainCmd.Flags().IntVar(&d, "d", int(trainDefaults.D), "fastCover dmer size")
	trainCmd.Flags().IntVar(&f, "f", int(trainDefaults.F), "fastCover frequency table log")
	trainCmd.Flags().IntVar(&steps, "steps", int(trainDefaults.Steps), "fastCover optimization steps")
	trainCmd.Flags().IntVar(&compressionLevel, "compression-level", int(trainDefaults.CompressionLevel), "zstd compression level used while training")
	trainCmd.Flags().Float64Var(&dictSizePct, "dictionary-size-percentage", trainDefaults.DictionarySizePercentage, "dictionary size as a fraction of the concatenated raw corpus")
	root.AddCommand(trainCmd)

	// ---- chatclm predict ----------------------------------------------------
	var depth, width, genLen int
	var seed int64
	predictCmd := &cobra.Command{
		Use:   "predict <prompt...>",
		Short: "Extend a prompt using the trained ensemble",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := joinArgs(args)

			tk, err := loadTokenizer()
			if err != nil {
				return err
			}
			defer tk.Close()

			ens, err := ensemble.FromCheckpoint(ensembleCheckpoint)
			if err != nil {
				return err
			}
			defer ens.Close()

			driver := infer.New(tk, ens, seed, predictorTopK, maxPromptLen, threads)

			if genLen > 0 {
				out, ok := driver.Generate(prompt, genLen)
				if !ok {
					fmt.Println("<stop>")
					return nil
				}
				fmt.Println(out)
				return nil
			}

			out, ok := driver.PredictNext(prompt, depth, width)
			if !ok {
				fmt.Println("<stop>")
				return nil
			}
			fmt.Println(out)
			return nil
		},
	}
	predictCmd.Flags().IntVar(&depth, "depth", 1, "beam lookahead depth")
	predictCmd.Flags().IntVar(&width, "width", 4, "beam lookahead width")
	predictCmd.Flags().IntVar(&genLen, "gen-len", 0, "if > 0, sample this many tokens instead of one beam-searched token")
	predictCmd.Flags().Int64Var(&seed, "seed", 0, "predictor RNG seed")
	root.AddCommand(predictCmd)

	// ---- chatclm eval -------------------------------------------------------
	var nSamples int
	var splitRatio float64
	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate average bytes-per-token and information gain on held-out data",
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := loadTokenizer()
			if err != nil {
				return err
			}
			defer tk.Close()

			ds, err := openDataset(tk)
			if err != nil {
				return err
			}
			_, test, err := ds.SplitTrainTest(splitRatio)
			if err != nil {
				return err
			}

			ens, err := ensemble.FromCheckpoint(ensembleCheckpoint)
			if err != nil {
				return err
			}
			defer ens.Close()

			bpt := eval.AverageBytesPerToken(ens, test, nSamples, seed)
			infGain := eval.AverageInformationGain(ens, test, tk.MaxToken(), nSamples, seed)

			fmt.Printf("average bytes/token: %.4f ± %.4f (99%% CI)\n", bpt.Mean, bpt.ConfidenceHalfWidth())
			fmt.Printf("average info gain:   %.4f ± %.4f (99%% CI)\n", infGain.Mean, infGain.ConfidenceHalfWidth())
			return nil
		},
	}
	evalCmd.Flags().IntVar(&nSamples, "samples", eval.DefaultSamples, "number of samples to draw")
	evalCmd.Flags().Float64Var(&splitRatio, "split", 0.9, "train/test split ratio")
	root.AddCommand(evalCmd)

	// ---- chatclm tune --------------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "tune",
		Short: "Run one training + evaluation pass from a JSON stdin request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTune(tokenizerPath, datasetCheckpoint)
		},
	})

	// ---- chatclm serve ---------------------------------------------------
	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a minimal HTTP prediction endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			infer.Configure(func() (*infer.Driver, error) {
				tk, err := loadTokenizer()
				if err != nil {
					return nil, err
				}
				ens, err := ensemble.FromCheckpoint(ensembleCheckpoint)
				if err != nil {
					tk.Close()
					return nil, err
				}
				return infer.New(tk, ens, seed, predictorTopK, maxPromptLen, threads), nil
			})

			driver, err := infer.Singleton()
			if err != nil {
				return err
			}
			return runServe(ctx, addr, driver)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

// progressPrinter prints a compact \r progress line, matching the
// teacher's makeProgressPrinter idiom.
func progressPrinter() dataset.ProgressFunc {
	return func(done, total int64) {
		if total == 0 {
			return
		}
		pct := 100 * done / total
		if done < total {
			fmt.Fprintf(os.Stderr, "\r  tokenizing… %3d%% (%d/%d bytes)", pct, done, total)
		} else {
			fmt.Fprintf(os.Stderr, "\r  tokenizing… 100%% (%d/%d bytes)\n", done, total)
		}
	}
}

// tuningParameters / tuningMetrics are the stdin/stdout JSON contract a
// hyperparameter search driver uses to run one train+evaluate pass.
type tuningParameters struct {
	D                        uint32  `json:"d"`
	F                        uint32  `json:"f"`
	K                        float64 `json:"k"`
	CompressionLevel         uint32  `json:"compressionLevel"`
	DatasetSize              uint32  `json:"datasetSize"`
	DictionarySizePercentage float64 `json:"dictionarySizePercentage"`
}

type tuningMetrics struct {
	ValBpt             float64 `json:"valBpt"`
	ValBptStderr       float64 `json:"valBptStderr"`
	TrainBpt           float64 `json:"trainBpt"`
	TrainPbtStderr     float64 `json:"trainPbtStderr"`
	ValInfGain         float64 `json:"valInfGain"`
	ValInfGainStderr   float64 `json:"valInfGainStderr"`
	TrainInfGain       float64 `json:"trainInfGain"`
	TrainInfGainStderr float64 `json:"trainInfGainStderr"`
	TrainingTime       float64 `json:"trainingTime"`
	DictionarySize     int     `json:"dictionarySize"`
}

func runTune(tokenizerPath, datasetPath string) error {
	tk, err := tokenizer.New(tokenizer.Custom, tokenizerPath)
	if err != nil {
		return err
	}
	defer tk.Close()

	ds, err := dataset.Load(datasetPath)
	if err != nil {
		return err
	}

	var params tuningParameters
	dec := json.NewDecoder(os.Stdin)
	if err := dec.Decode(&params); err != nil {
		return fmt.Errorf("decode tuning parameters: %w", err)
	}

	train, test, err := ds.SplitTrainTest(0.9)
	if err != nil {
		return err
	}
	shrunkTrain := ds.ShrinkToSize(int(params.DatasetSize))

	def := trainopts.Default()
	opts := trainopts.Options{
		Accel:                    def.Accel,
		D:                        params.D,
		F:                        params.F,
		K:                        uint32(params.K),
		ShrinkDict:               def.ShrinkDict,
		ShrinkDictMaxRegression:  def.ShrinkDictMaxRegression,
		SplitPoint:               def.SplitPoint,
		Steps:                    def.Steps,
		NbThreads:                8,
		CompressionLevel:         params.CompressionLevel,
		DictionarySizePercentage: params.DictionarySizePercentage,
		EnsembleSize:             1,
	}

	start := time.Now()
	ens, err := ensemble.Train(train, opts)
	if err != nil {
		return err
	}
	defer ens.Close()
	elapsed := time.Since(start).Seconds()

	valBpt := eval.AverageBytesPerToken(ens, test, eval.DefaultSamples, 0)
	trainBpt := eval.AverageBytesPerToken(ens, shrunkTrain, eval.DefaultSamples, 0)
	valInfGain := eval.AverageInformationGain(ens, test, tk.MaxToken(), eval.DefaultSamples, 0)
	trainInfGain := eval.AverageInformationGain(ens, shrunkTrain, tk.MaxToken(), eval.DefaultSamples, 0)

	dictSize := 0
	if len(ens.Members()) > 0 {
		dictSize = ens.Members()[0].DictionarySize()
	}

	metrics := tuningMetrics{
		ValBpt:             valBpt.Mean,
		ValBptStderr:       valBpt.StdErr,
		TrainBpt:           trainBpt.Mean,
		TrainPbtStderr:     trainBpt.StdErr,
		ValInfGain:         valInfGain.Mean,
		ValInfGainStderr:   valInfGain.StdErr,
		TrainInfGain:       trainInfGain.Mean,
		TrainInfGainStderr: trainInfGain.StdErr,
		TrainingTime:       elapsed,
		DictionarySize:     dictSize,
	}

	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(metrics)
}
