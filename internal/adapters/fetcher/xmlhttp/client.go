// Package xmlhttp fetches gate counters from sensors that publish them as XML over HTTP.
package xmlhttp

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/internal/misc"
	"github.com/vshulcz/Gatecounter/internal/ports"
)

// DefaultTimeout bounds a single sensor request.
const DefaultTimeout = 30 * time.Second

const maxBodySize = 1 << 20

// Client performs one GET per Fetch call and decodes the count0..count2 elements.
type Client struct {
	hc   *http.Client
	bufs *misc.Pool[*bytes.Buffer]
}

var _ ports.SampleFetcher = (*Client)(nil)

// New returns a Client. A nil hc gets a client with DefaultTimeout; a zero timeout
// on a supplied client is replaced with DefaultTimeout as well.
func New(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	if hc.Timeout <= 0 {
		cp := *hc
		cp.Timeout = DefaultTimeout
		hc = &cp
	}
	return &Client{hc: hc, bufs: misc.NewBufferPool()}
}

type countsXML struct {
	Count0 *string `xml:"count0"`
	Count1 *string `xml:"count1"`
	Count2 *string `xml:"count2"`
}

// Fetch issues the request and parses the response. Failures are *domain.FetchError
// values matching domain.ErrBadStatus or domain.ErrParseFailure.
func (c *Client) Fetch(ctx context.Context, url string) (domain.RawSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return domain.RawSample{}, parseFailure(url, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := c.hc.Do(req)
	if err != nil {
		return domain.RawSample{}, parseFailure(url, fmt.Errorf("http do: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return domain.RawSample{}, &domain.FetchError{Kind: domain.ErrBadStatus, URL: url, Status: resp.StatusCode}
	}

	buf := c.bufs.Get()
	defer c.bufs.Put(buf)
	if _, err := buf.ReadFrom(io.LimitReader(resp.Body, maxBodySize)); err != nil {
		return domain.RawSample{}, parseFailure(url, fmt.Errorf("read body: %w", err))
	}

	raw, err := Decode(buf.Bytes())
	if err != nil {
		return domain.RawSample{}, parseFailure(url, err)
	}
	return raw, nil
}

// Decode parses a sensor document. The three counters must be direct children of
// the root element and hold base-10 integers.
func Decode(body []byte) (domain.RawSample, error) {
	var doc countsXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return domain.RawSample{}, fmt.Errorf("decode xml: %w", err)
	}
	alarm, err := counter("count0", doc.Count0)
	if err != nil {
		return domain.RawSample{}, err
	}
	incoming, err := counter("count1", doc.Count1)
	if err != nil {
		return domain.RawSample{}, err
	}
	outgoing, err := counter("count2", doc.Count2)
	if err != nil {
		return domain.RawSample{}, err
	}
	return domain.RawSample{Alarm: alarm, Incoming: incoming, Outgoing: outgoing}, nil
}

var errMissingElement = errors.New("missing element")

func counter(name string, text *string) (int64, error) {
	if text == nil {
		return 0, fmt.Errorf("%s: %w", name, errMissingElement)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(*text), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func parseFailure(url string, err error) error {
	return &domain.FetchError{Kind: domain.ErrParseFailure, URL: url, Err: err}
}
