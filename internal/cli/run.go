package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	wl "github.com/wabbitlearn/wabbitlearn"
	"github.com/wabbitlearn/wabbitlearn/internal/serve"
)

func runRoot(cmd *cobra.Command, args []string) error {
	if opts.finalReg != "" && !opts.saveResume {
		return fail("--final_regressor requires --save_resume")
	}
	if opts.namespaces == "" {
		return fail("--namespaces is required")
	}

	nm, err := wl.NewNamespaceMap(opts.namespaces)
	if err != nil {
		return fail("loading namespace map: %v", err)
	}
	transforms, err := wl.ParseTransforms(nm, opts.transforms)
	if err != nil {
		return fail("parsing transforms: %v", err)
	}
	inst, err := buildInstance(nm, transforms)
	if err != nil {
		return fail("building model instance: %v", err)
	}

	if opts.convertReg != "" {
		return runConvert(inst)
	}

	reg, err := buildRegressor(inst)
	if err != nil {
		return fail("loading initial regressor: %v", err)
	}

	if opts.daemon {
		return runDaemon(inst, reg)
	}
	return runTraining(inst, reg)
}

func buildInstance(nm *wl.NamespaceMap, transforms []*wl.Transform) (*wl.Instance, error) {
	inst := wl.DefaultInstance(nm, transforms, uint(opts.lrBits), uint(opts.ffmBits), opts.k)
	inst.LR = float32(opts.lr)
	inst.Power = float32(opts.powerT)
	inst.Epsilon = float32(opts.epsilon)
	inst.Clip = float32(opts.clip)
	switch opts.loss {
	case "logistic":
		inst.Loss = wl.LossLogistic
	case "squared":
		inst.Loss = wl.LossSquared
	default:
		return nil, fmt.Errorf("unknown --loss %q (want logistic or squared)", opts.loss)
	}
	return inst, nil
}

func buildRegressor(inst *wl.Instance) (*wl.Regressor, error) {
	if opts.initialReg == "" {
		return wl.NewRegressor(inst), nil
	}
	arena, err := wl.LoadSnapshot(opts.initialReg, inst)
	if err != nil {
		return nil, err
	}
	return wl.NewRegressorWithArena(inst, arena), nil
}

// runConvert implements --convert_inference_regressor: load a
// resumable snapshot and re-save it inference-only (optimizer state
// dropped, FFM weights quantized), without touching arena contents.
func runConvert(inst *wl.Instance) error {
	if opts.initialReg == "" {
		return fail("--convert_inference_regressor requires --initial_regressor")
	}
	arena, err := wl.LoadSnapshot(opts.initialReg, inst)
	if err != nil {
		return fail("loading snapshot to convert: %v", err)
	}
	if err := wl.SaveSnapshot(opts.convertReg, inst, arena, true, false); err != nil {
		return fail("writing converted snapshot: %v", err)
	}
	glog.Infof("converted %s -> %s (inference-only, quantized)", opts.initialReg, opts.convertReg)
	return nil
}

func runDaemon(inst *wl.Instance, reg *wl.Regressor) error {
	cfg := serve.Config{
		Addr:        fmt.Sprintf(":%d", opts.port),
		MetricsAddr: opts.metricsAddr,
		LineTimeout: opts.lineTimeout,
	}
	srv := serve.NewServer(cfg, inst, reg, prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Info("shutdown signal received, closing listeners")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		return fail("serving: %v", err)
	}
	return nil
}

// runTraining drives one pass over --data: parse, optionally cache,
// apply transforms, translate, forward (+ delayed/held-out backward),
// optionally write predictions, then optionally persist the final
// snapshot (§4.3, §4.8, §8 boundary behaviors 9-10).
func runTraining(inst *wl.Instance, reg *wl.Regressor) error {
	if opts.data == "" && opts.cache == "" {
		return fail("--data (or a readable --cache) is required outside --daemon mode")
	}

	frames, closeSrc, err := openFrameSource(inst)
	if err != nil {
		return fail("opening input: %v", err)
	}
	defer closeSrc()

	var predOut *bufio.Writer
	if opts.predictions != "" {
		f, err := os.Create(opts.predictions)
		if err != nil {
			return fail("creating --predictions file: %v", err)
		}
		defer f.Close()
		predOut = bufio.NewWriter(f)
		defer predOut.Flush()
	}

	translator := wl.NewTranslator(inst)
	var delayQueue []*wl.FeatureBuffer
	if opts.delay > 0 {
		delayQueue = make([]*wl.FeatureBuffer, opts.delay)
	}

	index := 0
	for {
		frame, err := frames()
		if err == errDone {
			break
		}
		if err != nil {
			return fail("training aborted: %v", err)
		}

		wl.ApplyTransforms(inst.Transforms, frame)
		fb := translator.Translate(frame)

		pred := reg.Learn(fb, false)

		update := !opts.testonly && (opts.holdoutAfter < 0 || index < opts.holdoutAfter)
		if opts.delay > 0 {
			slot := index % opts.delay
			if index >= opts.delay && update {
				reg.Learn(delayQueue[slot], true)
			}
			delayQueue[slot] = fb.Clone()
		} else if update {
			reg.Learn(fb, true)
		}

		if predOut != nil && index >= opts.predAfter {
			fmt.Fprintf(predOut, "%.6f\n", pred)
		}
		index++
	}

	if opts.finalReg != "" {
		if err := wl.SaveSnapshot(opts.finalReg, inst, reg.Arena, false, opts.saveResume); err != nil {
			return fail("writing --final_regressor: %v", err)
		}
	}
	return nil
}
