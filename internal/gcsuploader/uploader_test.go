package gcsuploader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://my-bucket/path/to/file.json")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/file.json", object)

	for _, bad := range []string{"my-bucket/file.json", "gs://my-bucket", "gs:///file.json", "gs://my-bucket/"} {
		_, _, err := ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatGCSURI(t *testing.T) {
	assert.Equal(t, "gs://b/payloads/x.json", FormatGCSURI("b", "payloads/x.json"))
	assert.Equal(t, "gs://b/x.json", FormatGCSURI("b", "/x.json"))
}
