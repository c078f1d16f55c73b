// Package cli wires the cobra command tree for the wabbitlearn
// binary: flag parsing, namespace/transform/instance construction, the
// training driver loop, and the serving entry point.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var opts struct {
	data         string
	initialReg   string
	finalReg     string
	saveResume   bool
	predictions  string
	predAfter    int
	holdoutAfter int
	delay        int
	testonly     bool
	cache        string
	daemon       bool
	port         int
	metricsAddr  string
	lineTimeout  time.Duration
	convertReg   string

	namespaces string
	transforms []string

	lrBits  uint32
	ffmBits uint32
	k       int
	lr      float64
	powerT  float64
	epsilon float64
	loss    string
	clip    float64
}

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "wabbitlearn",
	Short:   "Online learner and inference server for sparse linear+FFM models",
	Version: version,
	RunE:    runRoot,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.data, "data", "", "path to the training/serving data file")
	f.StringVar(&opts.initialReg, "initial_regressor", "", "snapshot to load before training or serving")
	f.StringVar(&opts.finalReg, "final_regressor", "", "snapshot path to write after training")
	f.BoolVar(&opts.saveResume, "save_resume", false, "persist optimizer state so training can resume (required with --final_regressor)")
	f.StringVar(&opts.predictions, "predictions", "", "path to write one prediction per line")
	f.IntVar(&opts.predAfter, "predictions_after", 0, "suppress prediction output for the first N examples")
	f.IntVar(&opts.holdoutAfter, "holdout_after", -1, "examples with index >= N never update weights (-1 disables)")
	f.IntVar(&opts.delay, "prediction_model_delay", 0, "apply weight updates using the feature buffer from N examples ago")
	f.BoolVar(&opts.testonly, "testonly", false, "skip all weight updates for this pass")
	f.StringVar(&opts.cache, "cache", "", "record cache file: write if absent, replay if present and compatible")
	f.BoolVar(&opts.daemon, "daemon", false, "serve predictions over TCP instead of reading --data")
	f.IntVar(&opts.port, "port", 26542, "TCP port for --daemon")
	f.StringVar(&opts.metricsAddr, "metrics_addr", "", "HTTP address for Prometheus /metrics (empty disables it)")
	f.DurationVar(&opts.lineTimeout, "line_timeout", 30*time.Second, "per-line read timeout while serving")
	f.StringVar(&opts.convertReg, "convert_inference_regressor", "", "load --initial_regressor and re-save as an inference-only snapshot at this path")

	f.StringVar(&opts.namespaces, "namespaces", "", "path to the namespace map CSV (required)")
	f.StringArrayVar(&opts.transforms, "transform", nil, "NEW_NS=RULE(ARG_NS,...) declaration; repeatable")

	f.Uint32Var(&opts.lrBits, "lr_bits", 18, "linear hash width: linear region is 2^lr_bits")
	f.Uint32Var(&opts.ffmBits, "ffm_bits", 18, "FFM hash width: FFM region is 2^ffm_bits*k*num_fields")
	f.IntVar(&opts.k, "k", 4, "FFM embedding dimension")
	f.Float64Var(&opts.lr, "learning_rate", 0.1, "optimizer learning rate (eta)")
	f.Float64Var(&opts.powerT, "power_t", 0.5, "power-t exponent (AdaGrad fixes this at 0.5)")
	f.Float64Var(&opts.epsilon, "epsilon", 1e-8, "optimizer epsilon")
	f.StringVar(&opts.loss, "loss", "logistic", "loss function: logistic or squared")
	f.Float64Var(&opts.clip, "clip", 20, "clip dL/dy to [-clip, +clip]")
}

// Execute runs the root command, returning a non-nil error if the
// process should exit 1 (spec.md §6 "Exit codes").
func Execute() error {
	return rootCmd.Execute()
}

func fail(format string, args ...interface{}) error {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return fmt.Errorf(format, args...)
}
