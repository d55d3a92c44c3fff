package ckpt

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"

	"github.com/permaweb/ao-cu/cuerr"
)

var gwjson = jsoniter.ConfigCompatibleWithStandardLibrary

// httpGetBytes is the shared low-level GET used for fetching raw
// checkpoint payload bytes, built on github.com/valyala/fasthttp (the
// teacher's own HTTP client choice for high-frequency small calls)
// rather than pulling net/http into a package that already needs an
// HTTP client for uploads.
func httpGetBytes(url string, timeout time.Duration) ([]byte, error) {
	client := &fasthttp.Client{}
	statusCode, body, err := client.GetTimeout(nil, url, timeout)
	if err != nil {
		return nil, cuerr.Wrap(cuerr.KindTransient, err, "fetching %s", url)
	}
	if statusCode != fasthttp.StatusOK {
		return nil, cuerr.New(cuerr.KindTransient, "fetching %s returned status %d", url, statusCode)
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}
