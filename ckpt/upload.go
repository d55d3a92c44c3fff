package ckpt

import (
	"time"

	"github.com/valyala/fasthttp"

	"github.com/permaweb/ao-cu/cuerr"
)

// HTTPUploader posts a signed DataItem to a bundler endpoint and reads
// back the assigned transaction id, using the same fasthttp client
// style as HTTPGateway.
type HTTPUploader struct {
	client  *fasthttp.Client
	url     string
	timeout time.Duration
}

func NewHTTPUploader(url string, timeout time.Duration) *HTTPUploader {
	return &HTTPUploader{client: &fasthttp.Client{}, url: url, timeout: timeout}
}

type uploadResponse struct {
	ID string `json:"id"`
}

// Upload POSTs item.Data as an application/octet-stream body, with
// item.Owner in an X-Owner header. The item's signature and tags are
// not sent.
func (u *HTTPUploader) Upload(item *DataItem) (string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(u.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/octet-stream")
	req.Header.Set("X-Owner", item.Owner)
	req.SetBody(item.Data)

	if err := u.client.DoTimeout(req, resp, u.timeout); err != nil {
		return "", cuerr.Wrap(cuerr.KindTransient, err, "uploading checkpoint item")
	}
	if resp.StatusCode() != fasthttp.StatusOK && resp.StatusCode() != fasthttp.StatusAccepted {
		return "", cuerr.New(cuerr.KindTransient, "bundler returned status %d", resp.StatusCode())
	}

	var out uploadResponse
	if err := gwjson.Unmarshal(resp.Body(), &out); err != nil {
		return "", cuerr.Wrap(cuerr.KindTransient, err, "decoding bundler response")
	}
	if out.ID == "" {
		return "", cuerr.New(cuerr.KindTransient, "bundler response missing transaction id")
	}
	return out.ID, nil
}
