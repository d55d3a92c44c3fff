package suclient

import (
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"

	"github.com/permaweb/ao-cu/culog"
	"github.com/permaweb/ao-cu/cuerr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary
var log = culog.New(os.Stdout, "suclient")

const pageSize = 1000

// Client is the CU's handle onto a single SU endpoint.
type Client struct {
	client  *fasthttp.Client
	baseURL string
	timeout time.Duration
	retries int
}

// New builds a Client against baseURL, retrying transient failures up
// to maxRetries times with a short linear backoff.
func New(baseURL string, timeout time.Duration, maxRetries int) *Client {
	return &Client{client: &fasthttp.Client{}, baseURL: trimSlash(baseURL), timeout: timeout, retries: maxRetries}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func (c *Client) getJSON(path string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			log.Warnf("retrying %s (attempt %d): %v", path, attempt, lastErr)
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
		statusCode, body, err := c.client.GetTimeout(nil, c.baseURL+path, c.timeout)
		if err != nil {
			lastErr = cuerr.Wrap(cuerr.KindTransient, err, "fetching %s", path)
			continue
		}
		if statusCode == fasthttp.StatusNotFound {
			return cuerr.NotFound("su resource %s not found", path)
		}
		if statusCode != fasthttp.StatusOK {
			lastErr = cuerr.New(cuerr.KindTransient, "su returned status %d for %s", statusCode, path)
			continue
		}
		if err := json.Unmarshal(body, out); err != nil {
			return cuerr.Wrap(cuerr.KindTransient, err, "decoding response from %s", path)
		}
		return nil
	}
	return lastErr
}

// LoadProcess fetches process metadata.
func (c *Client) LoadProcess(processID string) (*ProcessMeta, error) {
	var out ProcessMeta
	if err := c.getJSON(fmt.Sprintf("/processes/%s", processID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadModule fetches module metadata.
func (c *Client) LoadModule(moduleID string) (*ModuleMeta, error) {
	var out ModuleMeta
	if err := c.getJSON(fmt.Sprintf("/modules/%s", moduleID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadTimestamp fetches the network's authoritative current position.
func (c *Client) LoadTimestamp() (*Timestamp, error) {
	var out Timestamp
	if err := c.getJSON("/timestamp", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadMessageMeta fetches metadata for a single message by id.
func (c *Client) LoadMessageMeta(messageID string) (*MessageMeta, error) {
	var out MessageMeta
	if err := c.getJSON(fmt.Sprintf("/messages/%s", messageID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type messagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// Stream is a lazy, non-restartable, paginated sequence of messages for
// processID in (from, to]. Next returns (message, true, nil) for each
// item, then (zero, false, nil) once exhausted.
type Stream struct {
	client    *Client
	processID string
	from, to  string
	buf       []Message
	done      bool
}

// LoadMessages opens a paginated message stream for processID with
// ordinate strictly after from, up to and including to. The stream
// fetches pageSize messages at a time and is not restartable: rewinding
// requires opening a new Stream.
func (c *Client) LoadMessages(processID string, from, to string) *Stream {
	return &Stream{client: c, processID: processID, from: from, to: to}
}

// Next advances the stream by one message, fetching another page
// transparently when the current one is exhausted.
func (s *Stream) Next() (Message, bool, error) {
	for len(s.buf) == 0 {
		if s.done {
			return Message{}, false, nil
		}
		page, err := s.fetchPage()
		if err != nil {
			return Message{}, false, err
		}
		s.buf = page.Messages
		if !page.HasMore {
			s.done = true
		}
		if len(page.Messages) > 0 {
			s.from = string(page.Messages[len(page.Messages)-1].Ordinate)
		}
		if len(s.buf) == 0 {
			return Message{}, false, nil
		}
	}
	m := s.buf[0]
	s.buf = s.buf[1:]
	return m, true, nil
}

func (s *Stream) fetchPage() (messagePage, error) {
	path := fmt.Sprintf("/processes/%s/messages?from=%s&to=%s&limit=%d", s.processID, s.from, s.to, pageSize)
	var page messagePage
	if err := s.client.getJSON(path, &page); err != nil {
		if cuerr.Is(err, cuerr.KindNotFound) {
			return messagePage{}, nil
		}
		return messagePage{}, err
	}
	return page, nil
}
