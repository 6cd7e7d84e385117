package episodes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/config"
)

const catalogPage = `{"search-results":{"total":2,"result":[
	{"id":"mp-1","dcTitle":"Lecture 1","mediapackage":{"id":"mp-1","title":"Lecture 1",
	 "series":"20150112345","start":"2015-09-24T13:00:00Z","duration":"3600000"}},
	{"id":"mp-2","dcTitle":"Lecture 2"}
]}}`

const workflow = `{"workflows":{"totalCount":"1","workflow":{"id":42,"state":"SUCCEEDED",
	"operations":{"operation":[{"id":"capture","started":1000,"completed":4000},
	{"id":"retract-element","started":5000,"completed":6000}]}}}}`

// fakeElasticsearch records indexed documents by path.
type fakeElasticsearch struct {
	mu      sync.Mutex
	created bool
	docs    map[string]map[string]any
}

func (f *fakeElasticsearch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/":
		_, _ = w.Write([]byte(`{"version":{"number":"8.11.0"},"tagline":"You Know, for Search"}`))
	case r.Method == http.MethodHead && r.URL.Path == "/episodes":
		if !f.created {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && r.URL.Path == "/episodes":
		f.created = true
		_, _ = w.Write([]byte(`{"acknowledged":true,"index":"episodes"}`))
	case r.Method == http.MethodPut || r.Method == http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		var doc map[string]any
		_ = json.Unmarshal(body, &doc)
		f.docs[r.URL.Path] = doc
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func TestLoadEpisodesCommand(t *testing.T) {
	mh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/episode.json":
			if r.URL.Query().Get("offset") == "0" {
				_, _ = w.Write([]byte(catalogPage))
				return
			}
			_, _ = w.Write([]byte(`{"search-results":{"total":2}}`))
		case "/workflow/instances.json":
			_, _ = w.Write([]byte(workflow))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(mh.Close)

	es := &fakeElasticsearch{docs: map[string]map[string]any{}}
	esSrv := httptest.NewServer(es)
	t.Cleanup(esSrv.Close)

	v := viper.New()
	config.SetDefaults(v)
	v.Set("elasticsearch.url", esSrv.URL)
	v.Set("indexer.wait", "0s")
	v.Set("logging.level", "error")

	cmd := Command(v)
	cmd.SetArgs([]string{"--admin-host", mh.URL, "--engage-host", mh.URL, "--batch-size", "10"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.True(t, es.created)
	require.Len(t, es.docs, 1, "episode without a media package is skipped")

	doc := es.docs["/episodes/_doc/mp-1"]
	require.NotNil(t, doc)
	assert.Equal(t, "Lecture 1", doc["title"])
	assert.Equal(t, "2015", doc["year"])
	assert.Equal(t, "42", doc["workflow_id"])
	assert.Equal(t, mh.URL, v.GetString("matterhorn.admin_host"))
}

func TestLoadEpisodesCommand_RequiresHosts(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("logging.level", "error")

	cmd := Command(v)
	cmd.SetArgs([]string{})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matterhorn.admin_host")
}
