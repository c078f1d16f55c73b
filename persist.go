package wabbitlearn

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/golang/glog"
)

// snapshotMagic identifies a model snapshot file (§4.8 "Persistence").
// The header is a fixed sequence of binary fields rather than a gob
// stream, because §6 requires a stable binary layout for the weight
// regions and gob's wire format is not a committed contract. Metadata
// is written first, followed by the raw weight bytes, so a reader can
// validate compatibility before touching the (potentially large)
// weight regions.
const snapshotMagic = "WABTLRN1"
const snapshotVersion uint32 = 1

const (
	quantFlagNone byte = 0
	quantFlagFFM3 byte = 1
)

// SaveSnapshot writes inst's hyperparameters, namespace fingerprint,
// and arena to path. When quantizeFFM is true the FFM weight region is
// written as 3-byte truncated floats (§4.8); the linear region is
// never quantized. When includeOptimizer is true the accumulator
// vectors are appended so training can resume exactly; inference-only
// snapshots (--convert_inference_regressor) omit them.
func SaveSnapshot(path string, inst *Instance, arena *Arena, quantizeFFM, includeOptimizer bool) error {
	f, err := os.Create(path)
	if err != nil {
		return newErrf(IoError, err, "creating snapshot %s", path)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return newErrf(IoError, err, "writing snapshot magic")
	}

	linearSize := uint64(inst.LinearSize())
	ffmSize := uint64(inst.FFMSize())
	fp := inst.Namespaces.Fingerprint()

	quantFlag := quantFlagNone
	if quantizeFFM {
		quantFlag = quantFlagFFM3
	}
	optFlag := byte(0)
	if includeOptimizer {
		optFlag = 1
	}

	hdr := []interface{}{
		snapshotVersion,
		uint32(inst.LrBits),
		uint32(inst.FfmBits),
		uint32(inst.K),
		uint32(inst.Optimizer),
		uint32(inst.Loss),
		math.Float32bits(inst.LR),
		math.Float32bits(inst.Power),
		math.Float32bits(inst.Epsilon),
		math.Float32bits(inst.Clip),
		linearSize,
		ffmSize,
	}
	for _, field := range hdr {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return newErrf(IoError, err, "writing snapshot header")
		}
	}
	if _, err := w.Write(fp[:]); err != nil {
		return newErrf(IoError, err, "writing snapshot fingerprint")
	}
	if _, err := w.Write([]byte{quantFlag, optFlag}); err != nil {
		return newErrf(IoError, err, "writing snapshot flags")
	}

	if err := writeFloat32Region(w, arena.Weights[:linearSize]); err != nil {
		return err
	}
	ffmWeights := arena.Weights[linearSize:]
	if quantizeFFM {
		if _, err := w.Write(quantizeWeights(ffmWeights)); err != nil {
			return newErrf(IoError, err, "writing quantized FFM region")
		}
	} else if err := writeFloat32Region(w, ffmWeights); err != nil {
		return err
	}

	if includeOptimizer {
		if err := writeFloat32Region(w, arena.Accum); err != nil {
			return err
		}
	}

	if err := w.Flush(); err != nil {
		return newErrf(IoError, err, "flushing snapshot %s", path)
	}
	glog.Infof("wrote snapshot %s (%d linear, %d ffm, quantized=%v, optimizer=%v)",
		path, linearSize, ffmSize, quantizeFFM, includeOptimizer)
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot and returns an
// Arena sized and ordered to match inst. It returns a *Error with Kind
// SnapshotIncompatible if the file's magic, version, namespace
// fingerprint, or hash/FFM dimensions do not match inst.
func LoadSnapshot(path string, inst *Instance) (*Arena, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErrf(IoError, err, "opening snapshot %s", path)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, newErrf(SnapshotIncompatible, err, "reading snapshot magic")
	}
	if string(magic) != snapshotMagic {
		return nil, newErr(SnapshotIncompatible, "not a wabbitlearn snapshot", nil)
	}

	var version, lrBits, ffmBits, k, optKind, lossKind uint32
	var lrBitsF, powerBitsF, epsBitsF, clipBitsF uint32
	var linearSize, ffmSize uint64
	for _, field := range []*uint32{&version, &lrBits, &ffmBits, &k, &optKind, &lossKind, &lrBitsF, &powerBitsF, &epsBitsF, &clipBitsF} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return nil, newErrf(SnapshotIncompatible, err, "reading snapshot header")
		}
	}
	for _, field := range []*uint64{&linearSize, &ffmSize} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return nil, newErrf(SnapshotIncompatible, err, "reading snapshot region sizes")
		}
	}
	if version != snapshotVersion {
		return nil, newErrf(SnapshotIncompatible, nil, "snapshot version %d, want %d", version, snapshotVersion)
	}

	var fp [16]byte
	if _, err := io.ReadFull(r, fp[:]); err != nil {
		return nil, newErrf(SnapshotIncompatible, err, "reading snapshot fingerprint")
	}
	flags := make([]byte, 2)
	if _, err := io.ReadFull(r, flags); err != nil {
		return nil, newErrf(SnapshotIncompatible, err, "reading snapshot flags")
	}
	quantized := flags[0] == quantFlagFFM3
	hasOptimizer := flags[1] == 1

	wantFP := inst.Namespaces.Fingerprint()
	if fp != wantFP {
		return nil, newErr(SnapshotIncompatible, "namespace fingerprint mismatch", nil)
	}
	if uint(lrBits) != inst.LrBits || uint(ffmBits) != inst.FfmBits || int(k) != inst.K {
		return nil, newErrf(SnapshotIncompatible, nil,
			"snapshot layout lr_bits=%d ffm_bits=%d k=%d does not match instance lr_bits=%d ffm_bits=%d k=%d",
			lrBits, ffmBits, k, inst.LrBits, inst.FfmBits, inst.K)
	}
	if OptimizerKind(optKind) != inst.Optimizer || LossKind(lossKind) != inst.Loss {
		return nil, newErr(SnapshotIncompatible, "snapshot optimizer/loss kind mismatch", nil)
	}
	if linearSize != uint64(inst.LinearSize()) || ffmSize != uint64(inst.FFMSize()) {
		return nil, newErr(SnapshotIncompatible, "snapshot region size mismatch", nil)
	}

	arena := NewArena(inst)
	if err := readFloat32Region(r, arena.Weights[:linearSize]); err != nil {
		return nil, err
	}
	ffmWeights := arena.Weights[linearSize:]
	if quantized {
		buf := make([]byte, len(ffmWeights)*3)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, newErrf(SnapshotIncompatible, err, "reading quantized FFM region")
		}
		if err := dequantizeWeights(buf, ffmWeights); err != nil {
			return nil, err
		}
	} else if err := readFloat32Region(r, ffmWeights); err != nil {
		return nil, err
	}

	if hasOptimizer {
		if err := readFloat32Region(r, arena.Accum); err != nil {
			return nil, err
		}
	}
	glog.Infof("loaded snapshot %s (%d linear, %d ffm, quantized=%v, optimizer=%v)",
		path, linearSize, ffmSize, quantized, hasOptimizer)
	return arena, nil
}

func writeFloat32Region(w io.Writer, vals []float32) error {
	buf := make([]byte, 4)
	for _, v := range vals {
		binary.BigEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := w.Write(buf); err != nil {
			return newErrf(IoError, err, "writing weight region")
		}
	}
	return nil
}

func readFloat32Region(r io.Reader, dst []float32) error {
	buf := make([]byte, 4)
	for i := range dst {
		if _, err := io.ReadFull(r, buf); err != nil {
			return newErrf(SnapshotIncompatible, err, "reading weight region")
		}
		dst[i] = math.Float32frombits(binary.BigEndian.Uint32(buf))
	}
	return nil
}
