package wabbitlearn

import (
	"bufio"
	"io"
	"os"

	"github.com/golang/glog"
)

// cacheMagic/cacheVersion identify a record cache file (§4.3): a
// fixed magic-and-version header followed by the namespace
// fingerprint, then a stream of length-prefixed Frame records.
const cacheMagic = "WABCACH1"
const cacheVersion uint32 = 1

// CacheWriter appends parsed Frames to a record cache file so a
// second pass over the same data can skip re-parsing (§4.3). It is
// bound to one NamespaceMap's fingerprint; a cache built against a
// different namespace declaration is rejected at open time by
// CacheReader, not silently misread.
type CacheWriter struct {
	f   *os.File
	w   *bufio.Writer
	buf []byte
}

// NewCacheWriter creates (or truncates) the cache file at path and
// writes its header.
func NewCacheWriter(path string, nm *NamespaceMap) (*CacheWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, newErrf(IoError, err, "creating cache %s", path)
	}
	cw := &CacheWriter{f: f, w: bufio.NewWriter(f)}
	if err := cw.writeHeader(nm); err != nil {
		f.Close()
		return nil, err
	}
	return cw, nil
}

func (cw *CacheWriter) writeHeader(nm *NamespaceMap) error {
	if _, err := io.WriteString(cw.w, cacheMagic); err != nil {
		return newErrf(IoError, err, "writing cache magic")
	}
	var verBuf [4]byte
	verBuf[0] = byte(cacheVersion >> 24)
	verBuf[1] = byte(cacheVersion >> 16)
	verBuf[2] = byte(cacheVersion >> 8)
	verBuf[3] = byte(cacheVersion)
	if _, err := cw.w.Write(verBuf[:]); err != nil {
		return newErrf(IoError, err, "writing cache version")
	}
	fp := nm.Fingerprint()
	if _, err := cw.w.Write(fp[:]); err != nil {
		return newErrf(IoError, err, "writing cache fingerprint")
	}
	return nil
}

// Append writes one Frame to the cache.
func (cw *CacheWriter) Append(frame *Frame) error {
	cw.buf = frame.Encode(cw.buf)
	if err := writeFrame(cw.w, cw.buf); err != nil {
		return newErrf(IoError, err, "appending frame to cache")
	}
	return nil
}

// Close flushes and closes the cache file.
func (cw *CacheWriter) Close() error {
	if err := cw.w.Flush(); err != nil {
		cw.f.Close()
		return newErrf(IoError, err, "flushing cache")
	}
	return cw.f.Close()
}

// CacheReader replays Frames previously written by CacheWriter.
type CacheReader struct {
	f   *os.File
	r   *bufio.Reader
	buf []byte
}

// NewCacheReader opens the cache file at path and validates its
// header against nm's fingerprint, returning a *Error with Kind
// CacheIncompatible on any magic/version/fingerprint mismatch (§4.3,
// §7) so a stale or foreign cache is never replayed. The training
// driver treats this error as fatal; it does not fall back to
// re-parsing the source data.
func NewCacheReader(path string, nm *NamespaceMap) (*CacheReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErrf(IoError, err, "opening cache %s", path)
	}
	r := bufio.NewReader(f)

	magic := make([]byte, len(cacheMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		f.Close()
		return nil, newErrf(CacheIncompatible, err, "reading cache magic")
	}
	if string(magic) != cacheMagic {
		f.Close()
		return nil, newErr(CacheIncompatible, "not a wabbitlearn cache file", nil)
	}
	var verBuf [4]byte
	if _, err := io.ReadFull(r, verBuf[:]); err != nil {
		f.Close()
		return nil, newErrf(CacheIncompatible, err, "reading cache version")
	}
	version := uint32(verBuf[0])<<24 | uint32(verBuf[1])<<16 | uint32(verBuf[2])<<8 | uint32(verBuf[3])
	if version != cacheVersion {
		f.Close()
		return nil, newErrf(CacheIncompatible, nil, "cache version %d, want %d", version, cacheVersion)
	}
	var fp [16]byte
	if _, err := io.ReadFull(r, fp[:]); err != nil {
		f.Close()
		return nil, newErrf(CacheIncompatible, err, "reading cache fingerprint")
	}
	if fp != nm.Fingerprint() {
		f.Close()
		return nil, newErr(CacheIncompatible, "cache namespace fingerprint mismatch", nil)
	}
	glog.Infof("opened record cache %s", path)
	return &CacheReader{f: f, r: r}, nil
}

// Next decodes the next Frame into dst, reusing its backing slices.
// It returns io.EOF, unwrapped, when the cache is exhausted so callers
// can use it in a standard for-loop.
func (cr *CacheReader) Next(dst *Frame) error {
	n, err := readFrameLen(cr.r)
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return newErrf(CacheIncompatible, err, "reading frame length")
	}
	if cap(cr.buf) < n {
		cr.buf = make([]byte, n)
	}
	cr.buf = cr.buf[:n]
	if _, err := io.ReadFull(cr.r, cr.buf); err != nil {
		return newErrf(CacheIncompatible, err, "reading frame body")
	}
	if err := dst.Decode(cr.buf); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying cache file.
func (cr *CacheReader) Close() error {
	return cr.f.Close()
}
