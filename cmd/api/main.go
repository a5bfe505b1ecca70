package main

import (
	"os"

	"presencegate/internal/app"
	"presencegate/internal/bootstrap"
	"presencegate/internal/shared/apperror"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	apperror.Init()
	r := gin.Default()

	if err := app.BuildApp(r); err != nil {
		logger.Fatal("build app failed", zap.Error(err))
	}

	auditLogger := bootstrap.NewStdoutAuditLogger()
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	if err := bootstrap.StartHTTPServer(r, bootstrap.DefaultServerConfig(port), auditLogger); err != nil {
		logger.Fatal("server terminated", zap.Error(err))
	}
}
