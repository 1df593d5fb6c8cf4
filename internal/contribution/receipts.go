package contribution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ReceiptArchiver writes a durable copy of every completed PurchaseJob to
// object storage, independent of the job_state row, for finance
// reconciliation and dispute handling.
type ReceiptArchiver struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

func NewReceiptArchiver(client *minio.Client, bucket string, logger *zap.Logger) *ReceiptArchiver {
	return &ReceiptArchiver{client: client, bucket: bucket, logger: logger}
}

// PurchaseReceipt is the archived record of a completed token purchase.
type PurchaseReceipt struct {
	JobID       string  `json:"job_id"`
	Amount      float64 `json:"amount"`
	Quantity    int     `json:"quantity"`
	Provider    string  `json:"provider"`
	OrderID     string  `json:"order_id"`
	TokenCount  int     `json:"token_count"`
}

// Archive is fire-and-forget: a failed upload is logged, never turns a
// completed purchase back into a failure.
func (a *ReceiptArchiver) Archive(ctx context.Context, jobID string, state PurchaseState) {
	if a.client == nil {
		return
	}
	receipt := PurchaseReceipt{
		JobID:      jobID,
		Amount:     state.Amount,
		Quantity:   state.Quantity,
		Provider:   state.Provider,
		OrderID:    state.OrderID,
		TokenCount: len(state.Tokens),
	}
	payload, err := json.Marshal(receipt)
	if err != nil {
		a.logger.Error("failed to marshal purchase receipt", zap.Error(err))
		return
	}
	go func() {
		key := fmt.Sprintf("purchase-receipts/%s.json", jobID)
		_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)),
			minio.PutObjectOptions{ContentType: "application/json"})
		if err != nil {
			a.logger.Error("failed to archive purchase receipt", zap.String("job_id", jobID), zap.Error(err))
		}
	}()
}
