package codec

import (
	"errors"
	"io"
	"testing"

	"github.com/moolen/engine-client/internal/job"
	"github.com/moolen/engine-client/internal/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON_ConfigurationRoundTrip(t *testing.T) {
	c := NewJSON()
	cfg := job.FarequoteConfiguration()
	cfg.AnalysisLimits = &job.AnalysisLimits{ModelMemoryLimit: 512}
	cfg.AnalysisConfig.Detectors = append(cfg.AnalysisConfig.Detectors, job.Detector{
		Function:      job.FunctionCount,
		OverFieldName: "clientip",
	})

	data, err := c.Encode(cfg)
	require.NoError(t, err)

	body := string(data)
	assert.Contains(t, body, `"bucketSpan":3600`)
	assert.Contains(t, body, `"fieldDelimiter":","`)
	assert.Contains(t, body, `"overFieldName":"clientip"`)
	assert.NotContains(t, body, `"partitionFieldName"`, "empty optional fields are omitted")

	var decoded job.JobConfiguration
	require.NoError(t, c.Decode(data, &decoded))
	assert.Equal(t, *cfg, decoded)
	require.NoError(t, decoded.Validate())
}

func TestJSON_DecodeEmptyPayload(t *testing.T) {
	c := NewJSON()

	var doc results.SingleDocument[results.Bucket]
	err := c.Decode([]byte("  \n"), &doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestJSON_DecodeMalformed(t *testing.T) {
	c := NewJSON()

	var page results.Pagination[results.Bucket]
	err := c.Decode([]byte(`{"documents": [`), &page)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestJSON_ContentType(t *testing.T) {
	assert.Equal(t, "application/json", NewJSON().ContentType())
}
