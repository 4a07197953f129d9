package line

import (
	"testing"

	"github.com/driveflow/driveflow-api/internal/notify"
	"github.com/stretchr/testify/assert"
)

func TestFormatMessageCompleted(t *testing.T) {
	msg := formatMessage(notify.EventProcessingCompleted, notify.Payload{
		Filename: "2026-08-invoice.pdf",
		Summary:  "August invoice from the hosting provider.",
		Tags:     []string{"invoice", "hosting"},
	})

	assert.Contains(t, msg, "2026-08-invoice.pdf is ready")
	assert.Contains(t, msg, "August invoice")
	assert.Contains(t, msg, "invoice, hosting")
}

func TestFormatMessageCompletedWithoutEnrichment(t *testing.T) {
	msg := formatMessage(notify.EventProcessingCompleted, notify.Payload{Filename: "scan.png"})
	assert.Contains(t, msg, "scan.png is ready")
	assert.NotContains(t, msg, "Tags:")
}

func TestFormatMessageFailed(t *testing.T) {
	msg := formatMessage(notify.EventProcessingFailed, notify.Payload{
		Filename: "report.docx",
		Error:    "task abandoned: claim exceeded staleness threshold",
	})

	assert.Contains(t, msg, "Processing of report.docx failed")
	assert.Contains(t, msg, "staleness threshold")
}
