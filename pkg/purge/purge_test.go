package purge

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tr := New("http://cache.local/purge", "tiles")
	assert.Equal(t, "tiles-42", tr.Key(42))
}

func TestFire(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.URL.Query().Get("key")
	}))
	defer srv.Close()

	New(srv.URL, "tiles").Fire(7)

	select {
	case key := <-got:
		assert.Equal(t, "tiles-7", key)
	case <-time.After(2 * time.Second):
		t.Fatal("purge trigger never delivered")
	}
}

func TestFire_DisabledWithoutEndpoint(t *testing.T) {
	// Must not panic or block.
	New("", "tiles").Fire(7)
}
