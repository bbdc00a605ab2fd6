package tracing

import (
	"net/http"

	"github.com/smallbiznis/erpcore/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// WrapHTTPClient propagates the trace context and correlation id on outbound
// requests made by client.
func WrapHTTPClient(client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *client
	wrapped.Transport = &propagatingTransport{base: base}
	return &wrapped
}

type propagatingTransport struct {
	base http.RoundTripper
}

func (t *propagatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	req = req.Clone(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" && req.Header.Get(correlation.HeaderName) == "" {
		req.Header.Set(correlation.HeaderName, cid)
	}
	return t.base.RoundTrip(req)
}
