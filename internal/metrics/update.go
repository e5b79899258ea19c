package metrics

import (
	"context"
	"fmt"

	"github.com/readalong/readalong/internal/metadatastore"
)

// UpdateOutputRef updates a metric record with output document reference fields.
// outputCID is optional; if empty, only doc/type are updated.
func UpdateOutputRef(ctx context.Context, client *metadatastore.Client, metricDocID, outputType, outputDocID, outputCID string) error {
	if client == nil {
		return fmt.Errorf("defra client is nil")
	}
	if metricDocID == "" || outputType == "" || outputDocID == "" {
		return nil
	}

	fields := fmt.Sprintf("output_doc_id: %q, output_type: %q", outputDocID, outputType)
	if outputCID != "" {
		fields += fmt.Sprintf(", output_cid: %q", outputCID)
	}

	query := fmt.Sprintf(`mutation { update_Metric(docID: %q, input: {%s}) { _docID } }`, metricDocID, fields)
	resp, err := client.Execute(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("failed to update metric output ref: %w", err)
	}
	if errMsg := resp.Error(); errMsg != "" {
		return fmt.Errorf("failed to update metric output ref: %s", errMsg)
	}
	return nil
}
