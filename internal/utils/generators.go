package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"
)

var orderSeq uint64

func init() {
	// Seed the sequence randomly so parallel instances diverge; the unique
	// column on order_number catches the remaining collision window.
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err == nil {
		orderSeq = n.Uint64()
	}
}

// GenerateOrderNumber returns a human-readable order number with a
// timestamp prefix and a monotonic sequence, e.g. ORD-20260829143052-004217.
func GenerateOrderNumber() string {
	seq := atomic.AddUint64(&orderSeq, 1) % 1_000_000
	return fmt.Sprintf("ORD-%s-%06d", time.Now().UTC().Format("20060102150405"), seq)
}

// GenerateTicketNumber returns a globally unique ticket number.
func GenerateTicketNumber() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999_999_999))
	return fmt.Sprintf("TKT-%d-%09d", timestamp, randomNum.Int64())
}

// GenerateTransactionID returns the idempotency key for one charge attempt.
func GenerateTransactionID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999_999_999))
	return fmt.Sprintf("txn_%d_%09d", timestamp, randomNum.Int64())
}
