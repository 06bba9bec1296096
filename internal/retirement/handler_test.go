package retirement

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"carbon-scribe/credit-registry/internal/auth"
	"carbon-scribe/credit-registry/internal/ledger"
)

func newRouter(t *testing.T, f *fixture) (*gin.Engine, *auth.Authenticator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	authn, err := auth.NewAuthenticator("test-secret", time.Hour)
	require.NoError(t, err)
	router := gin.New()
	NewHandler(f.retire, authn, zaptest.NewLogger(t)).RegisterRoutes(router.Group("/api/v1"))
	return router, authn
}

func call(t *testing.T, router *gin.Engine, authn *auth.Authenticator, method, path string, caller ledger.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		tok, err := authn.IssueToken(caller)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlerRetireFlow(t *testing.T) {
	f := newFixture(t)
	router, authn := newRouter(t, f)
	id := f.mintTo(company)
	path := "/api/v1/retirement/retirements/" + id.String()

	w := call(t, router, authn, http.MethodPost, "/api/v1/retirement/retirements", "", RetireCreditRequest{Retirement: claim(id, 100)})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(t, router, authn, http.MethodPost, "/api/v1/retirement/retirements", company, RetireCreditRequest{Retirement: claim(id, 100)})
	assert.Equal(t, http.StatusConflict, w.Code, "no approval")

	w = call(t, router, authn, http.MethodPost, "/api/v1/retirement/retirements", company, RetireCreditRequest{
		Authorization: approval(id, company),
		Retirement:    claim(id, 0),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusNotFound, call(t, router, authn, http.MethodGet, path, "", nil).Code)

	w = call(t, router, authn, http.MethodPost, "/api/v1/retirement/retirements", company, RetireCreditRequest{
		Authorization: approval(id, company),
		Retirement:    claim(id, 100),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp RetireCreditResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.TokenID)

	w = call(t, router, authn, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cert Certificate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cert))
	assert.Equal(t, company, cert.Company)
	assert.Equal(t, resp.RetiredAt, cert.RetiredAt.Unix())

	w = call(t, router, authn, http.MethodGet, path+"/certificate.pdf", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w = call(t, router, authn, http.MethodGet, "/api/v1/retirement/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats GlobalStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, GlobalStats{TotalTonnesRetired: 100, TotalRetirements: 1}, stats)
}

func TestHandlerCertificateErrors(t *testing.T) {
	f := newFixture(t)
	router, authn := newRouter(t, f)

	assert.Equal(t, http.StatusBadRequest, call(t, router, authn, http.MethodGet, "/api/v1/retirement/retirements/x/certificate.pdf", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, call(t, router, authn, http.MethodGet, "/api/v1/retirement/retirements/7/certificate.pdf", "", nil).Code)
	assert.Equal(t, http.StatusConflict, call(t, router, authn, http.MethodPost, "/api/v1/retirement/registry", other, nil).Code)
}

func TestWriteCertificatePDF(t *testing.T) {
	cert := &Certificate{
		TokenID:     12,
		Company:     company,
		CompanyName: "Company Ltd",
		CO2Tonnes:   250,
		RetiredAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Proof:       "ab12",
	}
	out, err := WriteCertificatePDF(cert, DefaultCertificateOptions())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = WriteCertificatePDF(cert, CertificateOptions{PageSize: "NOPE", FontFamily: "Arial"})
	assert.Error(t, err)
}
