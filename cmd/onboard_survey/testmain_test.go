package main

import (
	"os"
	"testing"

	"github.com/joho/godotenv"

	"github.com/jonathan/onboarding-survey/internal/observability"
)

func TestMain(m *testing.M) {
	// Load .env file if it exists (from project root)
	_ = godotenv.Load("../../.env")

	code := m.Run()
	observability.ResetForTest()
	os.Exit(code)
}
