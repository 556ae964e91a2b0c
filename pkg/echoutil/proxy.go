// Package echoutil provides logging setup and a streaming reverse-proxy
// helper, adapted from the teacher's pkg/echoutil. The proxy helper backs
// C10's LLM gateway passthrough, which must stream request/response
// bodies unchanged (spec §4.10).
package echoutil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Proxy forwards the current request to url and streams the response back
// to the client unchanged, preserving headers and (if present) chunked
// transfer-encoding.
func Proxy(c echo.Context, url string, extraHeaders http.Header) error {
	req, err := buildUpstreamRequest(c, url, extraHeaders)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return CopyResponse(c, resp)
}

func buildUpstreamRequest(c echo.Context, url string, extra http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(c.Request().Context(), c.Request().Method, url, c.Request().Body)
	if err != nil {
		return nil, err
	}

	CopyHeader(req.Header, c.Request().Header, "host")
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	return req, nil
}

// CopyHeader copies every header from src to dest except the ones listed
// in except (case-insensitive).
func CopyHeader(dest, src http.Header, except ...string) {
	excluded := make(map[string]struct{}, len(except))
	for _, x := range except {
		excluded[strings.ToLower(x)] = struct{}{}
	}
	for k, vs := range src {
		if _, skip := excluded[strings.ToLower(k)]; skip {
			continue
		}
		for _, v := range vs {
			dest.Add(k, v)
		}
	}
}

// CopyResponse streams resp into the echo response, preserving chunked
// transfer-encoding so the LLM gateway's token-by-token stream reaches the
// client without buffering.
func CopyResponse(c echo.Context, resp *http.Response) error {
	ctx := c.Request().Context()
	dst := c.Response()
	CopyHeader(dst.Header(), resp.Header)

	chunked := false
	for _, te := range resp.TransferEncoding {
		dst.Header().Add("Transfer-Encoding", te)
		if strings.ToLower(te) == "chunked" {
			chunked = true
		}
	}
	dst.WriteHeader(resp.StatusCode)

	if !chunked {
		_, err := io.Copy(dst.Writer, resp.Body)
		return err
	}

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			dst.Flush()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// StreamCopy exposes the chunked-copy loop for non-echo callers (e.g. the
// LLM proxy's own streaming client plumbing wired via context).
func StreamCopy(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			if f, ok := dst.(interface{ Flush() }); ok {
				f.Flush()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
