package cli

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/golang/glog"

	wl "github.com/wabbitlearn/wabbitlearn"
)

// errDone signals a frame source is exhausted; it is never wrapped so
// callers can compare it directly.
var errDone = errors.New("frame source exhausted")

// openFrameSource picks one of three pull-iterators over --data and
// --cache (§4.3, §9 "pull loop, not callbacks"):
//   - --cache present and fingerprint-compatible: replay it, ignoring
//     --data (cache-replay-equivalence, E3).
//   - --cache absent: parse --data directly, no caching.
//   - --cache absent on disk but requested: parse --data and append
//     every frame to a newly created cache file; an IoError on the
//     cache write downgrades to a warning and training continues
//     without a cache (§7).
func openFrameSource(inst *wl.Instance) (next func() (*wl.Frame, error), closeFn func(), err error) {
	if opts.cache != "" {
		if _, statErr := os.Stat(opts.cache); statErr == nil {
			return openCacheReplay(inst)
		}
	}
	return openParseSource(inst)
}

func openCacheReplay(inst *wl.Instance) (func() (*wl.Frame, error), func(), error) {
	cr, err := wl.NewCacheReader(opts.cache, inst.Namespaces)
	if err != nil {
		return nil, nil, err
	}
	glog.Infof("replaying record cache %s", opts.cache)
	dst := wl.NewFrame(inst.NumFields())
	next := func() (*wl.Frame, error) {
		if err := cr.Next(dst); err != nil {
			if err == io.EOF {
				return nil, errDone
			}
			return nil, err
		}
		return dst, nil
	}
	return next, func() { cr.Close() }, nil
}

func openParseSource(inst *wl.Instance) (func() (*wl.Frame, error), func(), error) {
	if opts.data == "" {
		return nil, nil, errors.New("no --cache to replay and --data is empty")
	}
	f, err := os.Open(opts.data)
	if err != nil {
		return nil, nil, err
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	parser := wl.NewParser(inst)

	var cw *wl.CacheWriter
	if opts.cache != "" {
		w, werr := wl.NewCacheWriter(opts.cache, inst.Namespaces)
		if werr != nil {
			glog.Warningf("disabling record cache: %v", werr)
		} else {
			cw = w
		}
	}

	next := func() (*wl.Frame, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, err
			}
			return nil, errDone
		}
		frame, perr := parser.Parse(scanner.Bytes())
		if perr != nil {
			return nil, perr
		}
		if cw != nil {
			if err := cw.Append(frame); err != nil {
				glog.Warningf("disabling record cache: %v", err)
				cw.Close()
				cw = nil
			}
		}
		return frame, nil
	}
	closeFn := func() {
		f.Close()
		if cw != nil {
			cw.Close()
		}
	}
	return next, closeFn, nil
}
