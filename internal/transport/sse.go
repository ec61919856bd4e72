package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	streamro "github.com/arjunv/quotaproxy/internal/ro"
	"github.com/arjunv/quotaproxy/internal/ratelimit"
)

const chunkReadSize = 32 * 1024

// DefaultChunkRateLimit caps how many upstream response chunks per
// second are relayed to the client, so a single very fast streaming
// response can't monopolize the proxy's outbound bandwidth.
var DefaultChunkRateLimit = ratelimit.ROLimiterConfig{Count: 200, Interval: time.Second}

// RelayStream reads src in chunks, rate-shapes them through the
// reactive pipeline in internal/ro, writes each chunk to dst (flushing
// after every write so SSE clients see data as it arrives), and returns
// the full accumulated body once src is exhausted. The accumulated body
// is what OnSuccess's token-usage extraction and the response cache
// operate on.
func RelayStream(ctx context.Context, dst io.Writer, src io.Reader, limit ratelimit.ROLimiterConfig) ([]byte, error) {
	chunks := make(chan []byte)
	readErrCh := make(chan error, 1)

	go func() {
		defer close(chunks)
		buf := make([]byte, chunkReadSize)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					readErrCh <- ctx.Err()
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					readErrCh <- err
				}
				return
			}
		}
	}()

	var full bytes.Buffer
	var writeErr error

	source := streamro.StreamFromChannel(chunks)
	limited := ratelimit.LimitGlobal(source, limit.Count, limit.Interval)
	tapped := streamro.MapStream(limited, func(chunk []byte) []byte {
		full.Write(chunk)
		if writeErr == nil {
			if _, err := dst.Write(chunk); err != nil {
				writeErr = err
			} else if f, ok := dst.(http.Flusher); ok {
				f.Flush()
			}
		}
		return chunk
	})

	if _, _, err := streamro.CollectWithContext(ctx, tapped); err != nil {
		return full.Bytes(), err
	}
	if writeErr != nil {
		return full.Bytes(), writeErr
	}

	select {
	case err := <-readErrCh:
		return full.Bytes(), err
	default:
	}

	return full.Bytes(), nil
}

// sseDataLines splits a body that may be a raw JSON object/array or a
// sequence of SSE "data: ..." lines into the individual JSON payloads
// worth inspecting for usage metadata.
func sseDataLines(body []byte) [][]byte {
	if !bytes.Contains(body, []byte("data:")) {
		return [][]byte{body}
	}

	var out [][]byte
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		const prefix = "data:"
		idx := bytes.Index(line, []byte(prefix))
		if idx == -1 {
			continue
		}
		data := bytes.TrimSpace(line[idx+len(prefix):])
		if len(data) == 0 || bytes.Equal(data, []byte("[DONE]")) {
			continue
		}
		out = append(out, data)
	}
	if len(out) == 0 {
		return [][]byte{body}
	}
	return out
}

// ExtractTokenUsage scans a full (possibly SSE-chunked) Gemini response
// body for the token count to report to the key engine. It mirrors the
// original implementation's parsing: usageMetadata.totalTokenCount wins
// outright and stops the scan; candidates[0].tokenCount is kept as a
// running fallback in case a later chunk carries the authoritative
// usageMetadata field. Returns 0 if neither field ever appears.
func ExtractTokenUsage(body []byte) int {
	fallback := 0
	for _, line := range sseDataLines(body) {
		if v := gjson.GetBytes(line, "usageMetadata.totalTokenCount"); v.Exists() {
			return int(v.Int())
		}
		if v := gjson.GetBytes(line, "candidates.0.tokenCount"); v.Exists() {
			fallback = int(v.Int())
		}
	}
	return fallback
}

// IsGenerateContentPath reports whether path names a generateContent
// (or streamGenerateContent) call, the only request shape this proxy
// rewrites the model segment of.
func IsGenerateContentPath(path string) bool {
	return bytes.Contains([]byte(path), []byte("generateContent"))
}

// SetSSEHeaders sets the headers required for the client to correctly
// receive a streamed response: disabling buffering at every hop between
// this proxy and the client so partial chunks are delivered promptly.
func SetSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Connection", "keep-alive")
}
