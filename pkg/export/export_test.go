package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"action", "actor"},
		Rows: []map[string]string{
			{"action": "approve", "actor": "warden-1"},
			{"action": "=HYPERLINK(1)", "actor": "x"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "action,actor\napprove,warden-1\n'=HYPERLINK(1),x\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(Dataset{
		Headers: []string{"action"},
		Rows:    []map[string]string{{"action": "override"}},
	}, "audit")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderGatePass(t *testing.T) {
	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	out, err := NewPDFExporter().RenderGatePass(GatePass{
		LeaveID:     "leave-1",
		StudentName: "Asha",
		Room:        "B-204",
		Reason:      "Family visit",
		Code:        "042917",
		ValidFrom:   from,
		ValidUntil:  from.Add(48 * time.Hour),
		IssuedAt:    from.Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().RenderGatePass(GatePass{})
	assert.Error(t, err)
}
