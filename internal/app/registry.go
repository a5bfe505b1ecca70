package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"presencegate/internal/admission"
	"presencegate/internal/alert"
	"presencegate/internal/attendance"
	"presencegate/internal/audit"
	"presencegate/internal/devicetrust"
	"presencegate/internal/factor"
	"presencegate/internal/messaging/kafka"
	"presencegate/internal/metrics"
	"presencegate/internal/middleware"
	"presencegate/internal/motion"
	"presencegate/internal/policy"
	"presencegate/internal/ratelimit"
	"presencegate/internal/signer"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const policyCacheTTL = 300 * time.Second

func registerModules(
	router *gin.Engine,
	db *sql.DB,
	gormDB *gorm.DB,
	rdb *redis.Client,
) error {
	logger := zap.L()

	router.Use(middleware.RequestID())
	router.Use(middleware.ContextLogger(logger))
	router.Use(middleware.RateLimitByIP(rate.Limit(20), 40))

	// --- Repositories ---
	attendanceRepo := attendance.NewRepository(db)
	deviceRepo := devicetrust.NewRepository(gormDB)
	policyRepo := policy.NewRepository(gormDB)
	outboxRepo := kafka.NewOutboxRepository(db)
	factorStore := factor.NewStore(gormDB)
	versionCounter := policy.NewVersionCounter(gormDB)

	// --- Factor evaluators ---
	evaluators := []factor.Evaluator{
		factor.NewGeofenceEvaluator(factorStore),
		factor.NewNetworkEvaluator(factorStore),
		factor.NewBeaconEvaluator(factorStore),
		factor.NewNFCEvaluator(factorStore),
		factor.NewQREvaluator(os.Getenv("QR_TOKEN_SECRET"), 5*time.Minute),
	}
	if recognitionURL := os.Getenv("FACE_RECOGNITION_URL"); recognitionURL != "" {
		client := factor.NewHTTPRecognitionClient(recognitionURL, 5*time.Second)
		evaluators = append(evaluators, factor.NewFaceEvaluator(client, 5*time.Second, 0.85))
	}

	registry, err := factor.NewRegistry(evaluators...)
	if err != nil {
		return err
	}

	// --- Pipeline components ---
	vSigner, err := signer.New(os.Getenv("VERDICT_SIGNING_SECRET"))
	if err != nil {
		return fmt.Errorf("verdict signer: %w", err)
	}

	policyCache := policy.NewCache(rdb, policyRepo, policyCacheTTL, logger)
	policyCache.RegisterInvalidationHook(func(ctx context.Context, policyID string, officeID *string) error {
		fields := []zap.Field{zap.String("policy_id", policyID)}
		if officeID != nil {
			fields = append(fields, zap.String("office_id", *officeID))
		}
		logger.Named("policy.cache").Info("policy invalidated", fields...)
		return nil
	})

	policyEvaluator := policy.NewEvaluator(registry, 10*time.Second, logger)
	limiter := ratelimit.NewLimiter(rdb, ratelimit.DefaultConfig(), logger)
	trustEvaluator := devicetrust.NewEvaluator(deviceRepo, devicetrust.DefaultConfig(), logger)
	guard := motion.NewGuard(motion.DefaultConfig())

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	recorder := metrics.NewPrometheusRecorder(promRegistry)

	auditLogger := audit.NewOutboxLogger(outboxRepo, logger)
	alertDispatcher := alert.NewOutboxDispatcher(outboxRepo, logger)

	// --- Services ---
	admissionService := admission.NewService(admission.Deps{
		DB:        db,
		Repo:      attendanceRepo,
		Limiter:   limiter,
		Trust:     trustEvaluator,
		Guard:     guard,
		Policies:  policyCache,
		Evaluator: policyEvaluator,
		Signer:    vSigner,
		Recorder:  recorder,
		Audit:     auditLogger,
		Alerts:    alertDispatcher,
		Logger:    logger,
	})
	attendanceService := attendance.NewService(attendanceRepo)
	policyService := policy.NewService(policyRepo, versionCounter, policyCache)

	// --- Handlers ---
	admissionHandler := admission.NewHandler(admissionService)
	attendanceHandler := attendance.NewHandler(attendanceService)
	policyHandler := policy.NewHandler(policyService)

	idem := middleware.NewIdempotency(rdb, 24*time.Hour)

	// --- Routes ---
	api := router.Group("/api/v1")
	{
		admission.RegisterRoutes(api, admissionHandler, idem)
		attendance.RegisterRoutes(api, attendanceHandler)
		policy.RegisterRoutes(api, policyHandler)
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return nil
}
