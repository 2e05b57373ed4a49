package fixtures

import (
	"bytes"
	"image"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImagesDecode(t *testing.T) {
	for name, data := range map[string][]byte{"png": PNG(5, 3), "jpeg": JPEG(5, 3), "gif": GIF(5, 3)} {
		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err, name)
		assert.Equal(t, name, format)
		assert.Equal(t, 5, cfg.Width)
		assert.Equal(t, 3, cfg.Height)
	}
}

func TestImageServer(t *testing.T) {
	data := PNG(2, 2)
	srv := NewImageServer(t, data, "image/png")

	resp, err := http.Get(srv.URL + "/any/path.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, data, body)
	assert.Equal(t, 1, srv.Hits())
}

func TestResults(t *testing.T) {
	res := Results(3)
	require.Len(t, res, 3)
	assert.Equal(t, ResultURL(2), res[2].URL)
	assert.Equal(t, "tok-alice", Alice().Token)
}
