package services

import (
	"os"
	"testing"

	"github.com/cppla/anyrate/config"
	"github.com/cppla/anyrate/utils"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret")
	utils.InitLogger(config.AppConfig{LogLevel: "error"})
	os.Exit(m.Run())
}
