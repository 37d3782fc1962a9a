package receipts

import "time"

// Result итог проверки чека у платёжной платформы.
type Result struct {
	Valid     bool
	ProductID string
	ExpiresAt *time.Time
}

// appleVerifyRequest тело запроса к verifyReceipt.
type appleVerifyRequest struct {
	ReceiptData string `json:"receipt-data"`
	Password    string `json:"password"`
}

// appleVerifyResponse ответ verifyReceipt. Интересны только статус и
// последняя запись о покупке.
type appleVerifyResponse struct {
	Status            int `json:"status"`
	LatestReceiptInfo []struct {
		ProductID     string `json:"product_id"`
		ExpiresDateMS string `json:"expires_date_ms"`
	} `json:"latest_receipt_info"`
}

// googleSubscriptionResponse ответ androidpublisher purchases.subscriptions.get.
type googleSubscriptionResponse struct {
	ExpiryTimeMillis string `json:"expiryTimeMillis"`
	PaymentState     *int   `json:"paymentState"`
}
