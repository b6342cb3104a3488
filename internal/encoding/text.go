// Package encoding normalizes text files of unknown encoding to UTF-8.
// Migration bundles are plain base64, but they pass through mail clients and
// editors that add byte order marks or re-encode them as UTF-16.
package encoding

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const sniffSize = 4096

var ErrTooLarge = errors.New("text exceeds size limit")

type bom struct {
	prefix []byte
	enc    encoding.Encoding
}

// UTF-8 is listed with a nil encoding: the mark is dropped and the rest passes through.
var boms = []bom{
	{prefix: []byte{0xEF, 0xBB, 0xBF}},
	{prefix: []byte{0xFF, 0xFE}, enc: unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)},
	{prefix: []byte{0xFE, 0xFF}, enc: unicode.UTF16(unicode.BigEndian, unicode.UseBOM)},
}

var charsets = map[string]encoding.Encoding{
	"UTF-16LE":     unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	"UTF-16BE":     unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	"ISO-8859-1":   charmap.Windows1252,
	"windows-1252": charmap.Windows1252,
	"ISO-8859-9":   charmap.ISO8859_9,
}

// NewReader returns a reader yielding r's content as UTF-8.
func NewReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffSize)

	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("sniffing encoding: %w", err)
	}

	for _, b := range boms {
		if !bytes.HasPrefix(head, b.prefix) {
			continue
		}

		if b.enc == nil {
			_, _ = br.Discard(len(b.prefix))
			return br, nil
		}

		return transform.NewReader(br, b.enc.NewDecoder()), nil
	}

	if utf8.Valid(head) {
		return br, nil
	}

	if res, err := chardet.NewTextDetector().DetectBest(head); err == nil {
		if res.Charset == "UTF-8" {
			return br, nil
		}

		if enc, ok := charsets[res.Charset]; ok {
			return transform.NewReader(br, enc.NewDecoder()), nil
		}
	}

	return transform.NewReader(br, charmap.Windows1252.NewDecoder()), nil
}

// ReadText decodes at most limit bytes of r and returns it with surrounding
// whitespace removed. A non-positive limit means no limit.
func ReadText(r io.Reader, limit int64) (string, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}

	dec, err := NewReader(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder

	n, err := io.Copy(&sb, dec)
	if err != nil {
		return "", fmt.Errorf("decoding text: %w", err)
	}

	if limit > 0 && n > limit {
		return "", ErrTooLarge
	}

	return strings.TrimSpace(sb.String()), nil
}
