package vat_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/vies/internal/domain"
	"github.com/dukerupert/vies/internal/telemetry"
	"github.com/dukerupert/vies/internal/vat"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const soapFault = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
	`<soap:Fault><faultcode>soap:Server</faultcode><faultstring>MS_MAX_CONCURRENT_REQ</faultstring></soap:Fault>` +
	`</soap:Body></soap:Envelope>`

// capturedRequest is what the fake VIES server saw.
type capturedRequest struct {
	Method  string
	Proto   string
	Host    string
	Headers http.Header
	Body    string
}

// fakeVIES serves body with status for every request and records the last one.
func fakeVIES(t *testing.T, status int, body string) (*httptest.Server, func() capturedRequest) {
	t.Helper()

	var (
		mu   sync.Mutex
		last capturedRequest
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)

		mu.Lock()
		last = capturedRequest{
			Method:  r.Method,
			Proto:   r.Proto,
			Host:    r.Host,
			Headers: r.Header.Clone(),
			Body:    string(b),
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return srv, func() capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func newTestClient(t *testing.T, cfg vat.Config) *vat.Client {
	t.Helper()
	c, err := vat.NewClient(cfg)
	require.NoError(t, err)
	return c
}

func TestClient_Get_Valid(t *testing.T) {
	srv, last := fakeVIES(t, http.StatusOK, validResponse(
		"<ns2:name>NV ANHEUSER-BUSCH INBEV</ns2:name>",
		"<ns2:address>Grote Markt 1\n1000 Brussel</ns2:address>",
	))
	client := newTestClient(t, vat.Config{Endpoint: srv.URL})
	q := mustQuery(t, "BE", "0403170701")

	rec, err := client.Get(context.Background(), q)

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "BE", rec.CountryCode)
	assert.Equal(t, "0403170701", rec.VATNumber)
	assert.True(t, rec.Valid)
	assert.Equal(t, ptr("NV ANHEUSER-BUSCH INBEV"), rec.CompanyName)
	assert.Equal(t, ptr("1000"), rec.Postcode)

	req := last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "HTTP/1.1", req.Proto)
	assert.Equal(t, vat.BuildEnvelope(q), req.Body)
	assert.Equal(t, "application/xml", req.Headers.Get("Content-Type"))
	assert.Equal(t, "*/*", req.Headers.Get("Accept"))
	assert.Equal(t, "gzip, deflate, br, zstd", req.Headers.Get("Accept-Encoding"))
	assert.Equal(t, strings.TrimPrefix(srv.URL, "http://"), req.Host, "custom endpoints keep their own host")
}

func TestClient_Get_InvalidNumber(t *testing.T) {
	srv, _ := fakeVIES(t, http.StatusOK, viesResponse(
		"<ns2:countryCode>BE</ns2:countryCode><ns2:vatNumber>0000000000</ns2:vatNumber>"+
			"<ns2:valid>false</ns2:valid><ns2:name>---</ns2:name><ns2:address>---</ns2:address>",
	))
	client := newTestClient(t, vat.Config{Endpoint: srv.URL})

	rec, err := client.Get(context.Background(), mustQuery(t, "BE", "0000000000"))

	assert.Nil(t, rec)
	assert.ErrorIs(t, err, vat.ErrInvalidVATNumber)
	assert.Equal(t, "The provided VAT number is invalid", domain.ErrorMessage(err))
}

func TestClient_Get_SOAPFaultOnServerError(t *testing.T) {
	srv, _ := fakeVIES(t, http.StatusInternalServerError, soapFault)
	client := newTestClient(t, vat.Config{Endpoint: srv.URL})

	rec, err := client.Get(context.Background(), mustQuery(t, "FR", "40303265045"))

	assert.Nil(t, rec)
	assert.ErrorIs(t, err, vat.ErrServiceFault)

	var fault *vat.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "MS_MAX_CONCURRENT_REQ", fault.String)
}

func TestClient_Get_MalformedResponse(t *testing.T) {
	srv, _ := fakeVIES(t, http.StatusBadGateway, "<html><body>Bad Gateway</body></html>")
	client := newTestClient(t, vat.Config{Endpoint: srv.URL})

	_, err := client.Get(context.Background(), mustQuery(t, "IT", "00743110157"))

	assert.ErrorIs(t, err, vat.ErrMalformedResponse)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func TestClient_Get_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	t.Run("lenient returns nothing", func(t *testing.T) {
		client := newTestClient(t, vat.Config{Endpoint: endpoint})

		rec, err := client.Get(context.Background(), mustQuery(t, "NL", "004495445B01"))

		assert.Nil(t, rec)
		assert.NoError(t, err)
	})

	t.Run("strict returns transport error", func(t *testing.T) {
		client := newTestClient(t, vat.Config{Endpoint: endpoint, Strict: true})

		rec, err := client.Get(context.Background(), mustQuery(t, "NL", "004495445B01"))

		assert.Nil(t, rec)
		assert.ErrorIs(t, err, vat.ErrTransport)
		assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
		assert.Equal(t, "vat.get", domain.ErrorOp(err))
	})
}

func TestClient_Get_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, vat.Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})

	start := time.Now()
	rec, err := client.Get(context.Background(), mustQuery(t, "AT", "U10223006"))

	assert.Nil(t, rec)
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_Get_CanceledContext(t *testing.T) {
	srv, _ := fakeVIES(t, http.StatusOK, validResponse("", ""))
	client := newTestClient(t, vat.Config{Endpoint: srv.URL, Strict: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, mustQuery(t, "AT", "U10223006"))

	assert.ErrorIs(t, err, vat.ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Get_Redirects(t *testing.T) {
	t.Run("followed with the body resent", func(t *testing.T) {
		var hits atomic.Int32
		var mux http.ServeMux
		mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.Redirect(w, r, "/new", http.StatusTemporaryRedirect)
		})
		mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			b, _ := io.ReadAll(r.Body)
			if r.Method != http.MethodPost || !bytes.Contains(b, []byte("<tns1:vatNumber>0403170701</tns1:vatNumber>")) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, validResponse("<ns2:name>ACME</ns2:name>", ""))
		})
		srv := httptest.NewServer(&mux)
		t.Cleanup(srv.Close)

		client := newTestClient(t, vat.Config{Endpoint: srv.URL + "/old"})

		rec, err := client.Get(context.Background(), mustQuery(t, "BE", "0403170701"))

		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, ptr("ACME"), rec.CompanyName)
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("loop stops after the limit", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.Redirect(w, r, r.URL.Path, http.StatusTemporaryRedirect)
		}))
		t.Cleanup(srv.Close)

		client := newTestClient(t, vat.Config{Endpoint: srv.URL + "/loop"})

		rec, err := client.Get(context.Background(), mustQuery(t, "BE", "0403170701"))

		assert.Nil(t, rec)
		assert.NoError(t, err)
		assert.Equal(t, int32(vat.DefaultMaxRedirects+1), hits.Load())
	})

	t.Run("custom limit", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.Redirect(w, r, r.URL.Path, http.StatusTemporaryRedirect)
		}))
		t.Cleanup(srv.Close)

		client := newTestClient(t, vat.Config{Endpoint: srv.URL + "/loop", MaxRedirects: 2, Strict: true})

		_, err := client.Get(context.Background(), mustQuery(t, "BE", "0403170701"))

		assert.ErrorIs(t, err, vat.ErrTransport)
		assert.Equal(t, int32(3), hits.Load())
	})
}

func TestClient_Get_CompressedResponse(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := io.WriteString(zw, validResponse("<ns2:name>ACME</ns2:name>", ""))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, vat.Config{Endpoint: srv.URL})

	rec, err := client.Get(context.Background(), mustQuery(t, "BE", "0403170701"))

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ptr("ACME"), rec.CompanyName)
}

// roundTripFunc lets a test stand in for the network.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestClient_Get_DefaultEndpointHost(t *testing.T) {
	var seen *http.Request
	httpClient := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		seen = r
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(validResponse("", ""))),
			Request:    r,
		}, nil
	})}

	client := newTestClient(t, vat.Config{HTTPClient: httpClient})

	_, err := client.Get(context.Background(), mustQuery(t, "BE", "0403170701"))

	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "ec.europa.eu", seen.Host)
	assert.Equal(t, vat.DefaultEndpoint, seen.URL.String())
}

func TestClient_Get_RejectsZeroQuery(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, vat.Config{Endpoint: srv.URL})

	rec, err := client.Get(context.Background(), vat.Query{})

	assert.Nil(t, rec)
	assert.ErrorIs(t, err, vat.ErrInvalidCountry)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_Get_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewVIESMetrics("", reg)

	valid, _ := fakeVIES(t, http.StatusOK, validResponse("", ""))
	faulty, _ := fakeVIES(t, http.StatusInternalServerError, soapFault)

	q := mustQuery(t, "BE", "0403170701")

	_, err := newTestClient(t, vat.Config{Endpoint: valid.URL, Metrics: metrics}).Get(context.Background(), q)
	require.NoError(t, err)
	_, err = newTestClient(t, vat.Config{Endpoint: faulty.URL, Metrics: metrics}).Get(context.Background(), q)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Lookups.WithLabelValues("BE", telemetry.OutcomeValid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Lookups.WithLabelValues("BE", telemetry.OutcomeFault)))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.LookupDuration))
}

func TestNewClient_InvalidEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{"unsupported scheme", "ftp://ec.europa.eu/checkVatService"},
		{"relative path", "/checkVatService"},
		{"no host", "http://"},
		{"unparseable", "http://[::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := vat.NewClient(vat.Config{Endpoint: tt.endpoint})

			assert.Nil(t, client)
			assert.ErrorContains(t, err, "invalid endpoint")
		})
	}
}

func TestClient_ImplementsVerifier(t *testing.T) {
	var _ vat.Verifier = newTestClient(t, vat.Config{})
	var _ vat.Verifier = vat.NewMockVerifier()
}
