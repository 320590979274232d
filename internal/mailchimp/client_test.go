package mailchimp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/mcmigrate/internal/errors"
)

const (
	testKey  = "0123456789abcdef0123456789abcdef-us6"
	testBase = "https://us6.api.mailchimp.com/3.0/"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) RecordRemoteRequest(endpoint, status string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, endpoint+":"+status)
}

func newTestClient(t *testing.T, key string) (*Client, *httpmock.MockTransport, *recordingObserver) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	observer := &recordingObserver{}
	client := NewClient(Config{APIKey: key, Transport: transport, Observer: observer})
	t.Cleanup(client.Close)
	return client, transport, observer
}

func categoriesJSON(start, n, total int) string {
	items := make([]map[string]any, 0, n)
	for i := start; i < start+n; i++ {
		items = append(items, map[string]any{"id": fmt.Sprintf("cat%d", i), "list_id": "L1", "title": fmt.Sprintf("Category %d", i)})
	}
	return mustJSON(map[string]any{"categories": items, "total_items": total})
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func TestParseAPIKey(t *testing.T) {
	tests := []struct {
		key     string
		wantDC  string
		wantErr bool
	}{
		{testKey, "us6", false},
		{"abc-us1", "us1", false},
		{"", "", true},
		{"nodash", "", true},
		{"a-b-c", "", true},
		{"-us6", "", true},
		{"abc-", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			key, err := ParseAPIKey(tt.key)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidKeyFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDC, key.Datacenter)
			assert.Equal(t, tt.key, key.String())
			assert.Equal(t, "https://"+tt.wantDC+".api.mailchimp.com/3.0/", key.BaseURL())
		})
	}
}

func TestValidateKey_Success(t *testing.T) {
	client, transport, observer := newTestClient(t, testKey)
	transport.RegisterResponder(http.MethodGet, testBase, func(req *http.Request) (*http.Response, error) {
		user, pass, ok := req.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "apikey", user)
		assert.Equal(t, testKey, pass)
		return httpmock.NewStringResponse(http.StatusOK, `{"account_id":"8d3a3db4d97663a9074efcc16","account_name":"EE"}`), nil
	})

	require.NoError(t, client.ValidateKey(t.Context()))
	require.NoError(t, client.ValidateKey(t.Context()))

	assert.Equal(t, 2, transport.GetTotalCallCount(), "root validation must not be cached")
	assert.Equal(t, []string{"root:200", "root:200"}, observer.calls)
}

func TestValidateKey_Failures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		category  errors.ErrorCategory
	}{
		{"missing account id", httpmock.NewStringResponder(http.StatusOK, `{"account_name":"x"}`), errors.CategoryConfiguration},
		{"unauthorized", httpmock.NewStringResponder(http.StatusUnauthorized, `{"title":"API Key Invalid","status":401,"detail":"Your API key may be invalid"}`), errors.CategoryConfiguration},
		{"malformed body", httpmock.NewStringResponder(http.StatusOK, `not json`), errors.CategoryHTTP},
		{"transport error", httpmock.NewErrorResponder(fmt.Errorf("connection reset")), errors.CategoryNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport, _ := newTestClient(t, testKey)
			transport.RegisterResponder(http.MethodGet, testBase, tt.responder)

			err := client.ValidateKey(t.Context())
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tt.category), "got %v", errors.CategoryOf(err))
		})
	}
}

func TestValidateKey_MalformedKeySkipsNetwork(t *testing.T) {
	client, transport, _ := newTestClient(t, "a-b-c")

	err := client.ValidateKey(t.Context())
	require.ErrorIs(t, err, ErrInvalidKeyFormat)
	assert.Equal(t, 0, transport.GetTotalCallCount())
}

func TestInterestCategories_FirstPageParams(t *testing.T) {
	client, transport, _ := newTestClient(t, testKey)
	transport.RegisterResponder(http.MethodGet, testBase+"lists/L1/interest-categories",
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			assert.Equal(t, "_links,categories._links", q.Get("exclude_fields"))
			assert.Equal(t, "200", q.Get("count"))
			assert.False(t, q.Has("offset"))
			return httpmock.NewStringResponse(http.StatusOK, categoriesJSON(0, 2, 2)), nil
		})

	cats, err := client.InterestCategories(t.Context(), "L1")
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "cat0", cats[0].ID)
	assert.Equal(t, "cat1", cats[1].ID)
}

func TestInterestCategories_Paging(t *testing.T) {
	client, transport, _ := newTestClient(t, testKey)
	transport.RegisterResponder(http.MethodGet, testBase+"lists/L1/interest-categories",
		func(req *http.Request) (*http.Response, error) {
			offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
			switch offset {
			case 0:
				return httpmock.NewStringResponse(http.StatusOK, categoriesJSON(0, PageSize, PageSize+1)), nil
			case PageSize:
				return httpmock.NewStringResponse(http.StatusOK, categoriesJSON(PageSize, 1, PageSize+1)), nil
			}
			return httpmock.NewStringResponse(http.StatusBadRequest, `{}`), nil
		})

	cats, err := client.InterestCategories(t.Context(), "L1")
	require.NoError(t, err)
	assert.Len(t, cats, PageSize+1)
	assert.Equal(t, "cat200", cats[PageSize].ID)
	assert.Equal(t, 2, transport.GetTotalCallCount())
}

func TestInterestCategories_FullPageMatchingTotalStops(t *testing.T) {
	client, transport, _ := newTestClient(t, testKey)
	transport.RegisterResponder(http.MethodGet, testBase+"lists/L1/interest-categories",
		httpmock.NewStringResponder(http.StatusOK, categoriesJSON(0, PageSize, PageSize)))

	cats, err := client.InterestCategories(t.Context(), "L1")
	require.NoError(t, err)
	assert.Len(t, cats, PageSize)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestInterestCategories_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing categories", `{"total_items":0}`, http.StatusOK},
		{"empty body", ``, http.StatusOK},
		{"not found", `{"title":"Resource Not Found","status":404}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport, _ := newTestClient(t, testKey)
			transport.RegisterResponder(http.MethodGet, testBase+"lists/L1/interest-categories",
				httpmock.NewStringResponder(tt.code, tt.body))

			cats, err := client.InterestCategories(t.Context(), "L1")
			require.Error(t, err)
			assert.Nil(t, cats)
		})
	}
}

func TestInterestCategories_Cached(t *testing.T) {
	client, transport, _ := newTestClient(t, testKey)
	transport.RegisterResponder(http.MethodGet, testBase+"lists/L1/interest-categories",
		httpmock.NewStringResponder(http.StatusOK, categoriesJSON(0, 1, 1)))

	_, err := client.InterestCategories(t.Context(), "L1")
	require.NoError(t, err)
	_, err = client.InterestCategories(t.Context(), "L1")
	require.NoError(t, err)

	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestInterests(t *testing.T) {
	client, transport, observer := newTestClient(t, testKey)
	transport.RegisterResponder(http.MethodGet, testBase+"lists/L1/interest-categories/C1/interests",
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			assert.Equal(t, "interests", q.Get("fields"))
			assert.Equal(t, "interests._links", q.Get("exclude_fields"))
			assert.Equal(t, "200", q.Get("count"))
			return httpmock.NewStringResponse(http.StatusOK,
				`{"interests":[{"id":"i1","name":"Volunteer"},{"id":"i2","category_id":"C1","list_id":"L1","name":"Speaker"}]}`), nil
		})

	interests, err := client.Interests(t.Context(), "L1", "C1")
	require.NoError(t, err)
	require.Len(t, interests, 2)
	assert.Equal(t, Interest{ID: "i1", CategoryID: "C1", ListID: "L1", Name: "Volunteer"}, interests[0])
	assert.Equal(t, "Speaker", interests[1].Name)
	assert.Equal(t, []string{"interests:200"}, observer.calls)
}

func TestInterests_ServerError(t *testing.T) {
	client, transport, _ := newTestClient(t, testKey)
	transport.RegisterResponder(http.MethodGet, testBase+"lists/L1/interest-categories/C1/interests",
		httpmock.NewStringResponder(http.StatusInternalServerError, `oops`))

	_, err := client.Interests(t.Context(), "L1", "C1")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))
	assert.Contains(t, err.Error(), "status 500")
}

func TestGet_BaseURLOverride(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "http://proxy.local/mc/lists",
		httpmock.NewStringResponder(http.StatusOK, `{"lists":[]}`))
	client := NewClient(Config{APIKey: testKey, BaseURL: "http://proxy.local/mc", Transport: transport})
	t.Cleanup(client.Close)

	resp := client.Get(t.Context(), "lists", nil)
	require.True(t, resp.Success())
	assert.JSONEq(t, `{"lists":[]}`, string(resp.Body))
}
