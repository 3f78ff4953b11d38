package e2e_test

import (
	"context"
	"testing"

	"github.com/joho/godotenv"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wardenhq/warden/internal/logging"
)

var ctx context.Context

func TestE2E(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "E2E Suite")
}

var _ = BeforeSuite(func() {
	// Load environment variables from .env file first
	_ = godotenv.Load("../../.env")

	// Keep engine logs out of the suite output
	logging.Init(logging.Config{Level: logging.ErrorLevel})

	ctx = context.Background()
})
